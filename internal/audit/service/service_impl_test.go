package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	auditdomain "github.com/smallbiznis/invoiceengine/internal/audit/domain"
	"github.com/smallbiznis/invoiceengine/internal/audit/repository"
	"github.com/smallbiznis/invoiceengine/internal/clock"
	"github.com/smallbiznis/invoiceengine/pkg/tenantctx"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (*Service, *clock.FakeClock) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&auditdomain.AuditLog{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	fake := clock.NewFakeClock(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	svc := NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  repository.Provide(),
		Clock: fake,
	}).(*Service)
	return svc, fake
}

func TestAuditLogMasksPaymentDetails(t *testing.T) {
	svc, _ := newTestService(t)
	tenantID := snowflake.ID(7)
	ctx := auditdomain.WithActor(context.Background(), auditdomain.ActorTypeCLI, "ops")
	target := "99"

	err := svc.AuditLog(ctx, &tenantID, "", nil, "contract.persons.set", "contract", &target, map[string]any{
		"iban": "NL91ABNA0417164300",
		"":     "dropped",
	})
	require.NoError(t, err)

	var rows []auditdomain.AuditLog
	require.NoError(t, svc.db.Find(&rows).Error)
	require.Len(t, rows, 1)
	require.Equal(t, "cli", rows[0].ActorType)
	require.Equal(t, "ops", *rows[0].ActorID)
	require.Equal(t, "****4300", rows[0].Metadata["iban"])
	require.NotContains(t, rows[0].Metadata, "")
}

func TestAuditLogRequiresAction(t *testing.T) {
	svc, _ := newTestService(t)
	err := svc.AuditLog(context.Background(), nil, "", nil, "  ", "", nil, nil)
	require.ErrorIs(t, err, auditdomain.ErrInvalidAction)
}

func TestListPaginatesPerTenant(t *testing.T) {
	svc, fake := newTestService(t)
	tenantID := snowflake.ID(7)
	other := snowflake.ID(8)
	ctx := tenantctx.WithTenantID(context.Background(), tenantID)

	for i := 0; i < 3; i++ {
		require.NoError(t, svc.AuditLog(ctx, nil, "", nil, "billing.run", "tenant", nil, nil))
		fake.Advance(time.Minute)
	}
	require.NoError(t, svc.AuditLog(context.Background(), &other, "", nil, "billing.run", "tenant", nil, nil))

	first, err := svc.List(ctx, auditdomain.ListAuditLogRequest{Action: "billing.run"})
	require.NoError(t, err)
	require.Len(t, first.AuditLogs, 3)
	require.False(t, first.HasMore)

	req := auditdomain.ListAuditLogRequest{}
	req.PageSize = 2
	page, err := svc.List(ctx, req)
	require.NoError(t, err)
	require.Len(t, page.AuditLogs, 2)
	require.True(t, page.HasMore)
	require.Equal(t, "system", page.AuditLogs[0].ActorType)

	req.PageToken = page.NextPageToken
	rest, err := svc.List(ctx, req)
	require.NoError(t, err)
	require.Len(t, rest.AuditLogs, 1)
	require.False(t, rest.HasMore)
}

func TestListRejectsBadInput(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.List(context.Background(), auditdomain.ListAuditLogRequest{})
	require.ErrorIs(t, err, auditdomain.ErrInvalidTenant)

	ctx := tenantctx.WithTenantID(context.Background(), 7)
	start := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, -1)
	_, err = svc.List(ctx, auditdomain.ListAuditLogRequest{StartAt: &start, EndAt: &end})
	require.ErrorIs(t, err, auditdomain.ErrInvalidTimeRange)

	req := auditdomain.ListAuditLogRequest{}
	req.PageToken = "%%%"
	_, err = svc.List(ctx, req)
	require.ErrorIs(t, err, auditdomain.ErrInvalidPageToken)
}
