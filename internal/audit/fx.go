package audit

import (
	"github.com/smallbiznis/invoiceengine/internal/audit/repository"
	"github.com/smallbiznis/invoiceengine/internal/audit/service"
	"go.uber.org/fx"
)

// Module provides the audit trail. Billing services take it as an optional
// dependency, so leaving it out disables auditing.
var Module = fx.Module("audit",
	fx.Provide(
		repository.Provide,
		service.NewService,
	),
)
