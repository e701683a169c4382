package billing

import (
	billingdomain "github.com/smallbiznis/invoiceengine/internal/billing/domain"
	"github.com/smallbiznis/invoiceengine/internal/billing/service"
	"go.uber.org/fx"
)

var Module = fx.Module("billing.service",
	fx.Provide(
		fx.Annotate(
			service.NewService,
			fx.As(new(billingdomain.Service)),
			fx.As(new(billingdomain.Corrector)),
		),
	),
)
