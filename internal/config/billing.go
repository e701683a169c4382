package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// BillingConfig tunes generated invoices. Changes apply to the next run.
type BillingConfig struct {
	DefaultInvoiceExpirationDays int                 `mapstructure:"default_invoice_expiration_days"`
	RoundingPlaces               int32               `mapstructure:"rounding_places"`
	Descriptions                 BillingDescriptions `mapstructure:"descriptions"`
}

// BillingDescriptions is the wording put on invoices and general ledger posts.
type BillingDescriptions struct {
	Invoice    string `mapstructure:"invoice"`
	Correction string `mapstructure:"correction"`
	Debtor     string `mapstructure:"debtor"`
	Proceeds   string `mapstructure:"proceeds"`
	VAT        string `mapstructure:"vat"`
}

func DefaultBillingConfig() BillingConfig {
	return BillingConfig{
		DefaultInvoiceExpirationDays: 14,
		RoundingPlaces:               2,
		Descriptions: BillingDescriptions{
			Invoice:    "Invoice",
			Correction: "Correction invoice",
			Debtor:     "Debtor",
			Proceeds:   "Proceeds",
			VAT:        "VAT",
		},
	}
}

type BillingConfigHolder struct {
	current atomic.Value // holds BillingConfig
}

// NewStaticBillingConfigHolder serves cfg without watching any file.
func NewStaticBillingConfigHolder(cfg BillingConfig) *BillingConfigHolder {
	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewBillingConfigHolder() (*BillingConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("billing")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/invoiceengine/config")
	v.AddConfigPath("/etc/invoiceengine")
	v.AddConfigPath(".")

	v.SetEnvPrefix("INVOICEENGINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultBillingConfig()
	v.SetDefault("billing.default_invoice_expiration_days", defaults.DefaultInvoiceExpirationDays)
	v.SetDefault("billing.rounding_places", defaults.RoundingPlaces)
	v.SetDefault("billing.descriptions.invoice", defaults.Descriptions.Invoice)
	v.SetDefault("billing.descriptions.correction", defaults.Descriptions.Correction)
	v.SetDefault("billing.descriptions.debtor", defaults.Descriptions.Debtor)
	v.SetDefault("billing.descriptions.proceeds", defaults.Descriptions.Proceeds)
	v.SetDefault("billing.descriptions.vat", defaults.Descriptions.VAT)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
	}

	cfg, err := unmarshalBilling(v)
	if err != nil {
		return nil, err
	}
	if err := validateBillingConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticBillingConfigHolder(cfg)
	if !fileFound {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := unmarshalBilling(v)
		if err != nil {
			log.Printf("[billing-config] reload failed: %v", err)
			return
		}
		if err := validateBillingConfig(updated); err != nil {
			log.Printf("[billing-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[billing-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// unmarshalBilling decodes through AllSettings so file values merge with defaults per key.
func unmarshalBilling(v *viper.Viper) (BillingConfig, error) {
	var wrapper struct {
		Billing BillingConfig `mapstructure:"billing"`
	}
	if err := v.Unmarshal(&wrapper); err != nil {
		return BillingConfig{}, err
	}
	return wrapper.Billing, nil
}

func (h *BillingConfigHolder) Get() BillingConfig {
	if h == nil {
		return DefaultBillingConfig()
	}
	cfg, ok := h.current.Load().(BillingConfig)
	if !ok {
		return DefaultBillingConfig()
	}
	return cfg
}

func validateBillingConfig(cfg BillingConfig) error {
	if cfg.DefaultInvoiceExpirationDays < 0 {
		return errors.New("billing.default_invoice_expiration_days cannot be negative")
	}
	if cfg.RoundingPlaces < 0 || cfg.RoundingPlaces > 6 {
		return errors.New("billing.rounding_places must be between 0 and 6")
	}
	return nil
}
