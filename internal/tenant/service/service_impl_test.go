package service

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/invoiceengine/internal/config"
	"github.com/smallbiznis/invoiceengine/internal/migration"
	"github.com/smallbiznis/invoiceengine/internal/store/gormstore"
	tenantdomain "github.com/smallbiznis/invoiceengine/internal/tenant/domain"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (tenantdomain.Service, *gormstore.Store) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, migration.Migrate(db))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	cfg := config.DefaultBillingConfig()
	cfg.DefaultInvoiceExpirationDays = 30
	st := gormstore.New(db)
	return NewService(Params{
		Store:         st,
		Log:           zap.NewNop(),
		GenID:         node,
		BillingConfig: config.NewStaticBillingConfigHolder(cfg),
	}), st
}

func TestCreateDefaultsExpirationFromBillingConfig(t *testing.T) {
	svc, _ := newTestService(t)

	tenant, err := svc.Create(context.Background(), tenantdomain.CreateRequest{Name: "  acme  "})
	require.NoError(t, err)
	require.Equal(t, "acme", tenant.Name)
	require.Equal(t, 30, tenant.DaysUntilInvoiceExpiration)
	require.Zero(t, tenant.LastInvoiceNumber)

	days := 7
	other, err := svc.Create(context.Background(), tenantdomain.CreateRequest{Name: "globex", DaysUntilInvoiceExpiration: &days})
	require.NoError(t, err)
	require.Equal(t, 7, other.DaysUntilInvoiceExpiration)

	list, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
}

func TestCreateValidation(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Create(context.Background(), tenantdomain.CreateRequest{Name: "   "})
	require.ErrorIs(t, err, tenantdomain.ErrInvalidName)

	days := -1
	_, err = svc.Create(context.Background(), tenantdomain.CreateRequest{Name: "acme", DaysUntilInvoiceExpiration: &days})
	require.ErrorIs(t, err, tenantdomain.ErrInvalidRequest)
}

func TestUpdateKeepsInvoiceCounter(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	tenant, err := svc.Create(ctx, tenantdomain.CreateRequest{Name: "acme"})
	require.NoError(t, err)

	stored, err := st.GetTenant(ctx, tenant.ID)
	require.NoError(t, err)
	stored.LastInvoiceNumber = 41
	require.NoError(t, st.SaveTenant(ctx, stored))

	name := "acme holding"
	updated, err := svc.Update(ctx, tenantdomain.UpdateRequest{ID: tenant.ID, Name: &name})
	require.NoError(t, err)
	require.Equal(t, "acme holding", updated.Name)
	require.Equal(t, int64(41), updated.LastInvoiceNumber)

	_, err = svc.Update(ctx, tenantdomain.UpdateRequest{ID: 999, Name: &name})
	require.ErrorIs(t, err, tenantdomain.ErrNotFound)
}

func TestGetUnknownTenant(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Get(context.Background(), 12345)
	require.ErrorIs(t, err, tenantdomain.ErrNotFound)
}
