package invoice

import (
	"github.com/smallbiznis/invoiceengine/internal/invoice/service"
	"go.uber.org/fx"
)

// Module provides the read side over issued invoices used by exports.
var Module = fx.Module("invoice.export",
	fx.Provide(service.NewService),
)
