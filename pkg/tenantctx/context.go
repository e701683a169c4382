package tenantctx

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
)

type keyType string

const (
	TenantIDKey keyType = "tenant_id"
)

// WithTenantID stores the tenant id on ctx.
func WithTenantID(ctx context.Context, id snowflake.ID) context.Context {
	return context.WithValue(ctx, TenantIDKey, id)
}

// TenantID returns the tenant id carried by ctx, if any.
func TenantID(ctx context.Context) (snowflake.ID, bool) {
	if ctx == nil {
		return 0, false
	}
	switch v := ctx.Value(TenantIDKey).(type) {
	case snowflake.ID:
		return v, v != 0
	case int64:
		return snowflake.ID(v), v != 0
	case string:
		id, err := snowflake.ParseString(strings.TrimSpace(v))
		if err != nil || id == 0 {
			return 0, false
		}
		return id, true
	}
	return 0, false
}
