package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/smallbiznis/invoiceengine/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAsOf(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2024, 3, 20, 17, 45, 0, 0, time.UTC))

	day, err := parseAsOf("", clk)
	require.NoError(t, err)
	assert.True(t, day.Equal(time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC)))

	day, err = parseAsOf(" 2024-02-01 ", clk)
	require.NoError(t, err)
	assert.True(t, day.Equal(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)))

	_, err = parseAsOf("01/02/2024", clk)
	require.ErrorContains(t, err, "YYYY-MM-DD")
}

func TestRunRequiresTenant(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"run"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tenant")
}

func TestRunRejectsMalformedTenant(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"run", "--tenant", "acme"})
	root.SetOut(&bytes.Buffer{})

	err := root.Execute()
	require.ErrorContains(t, err, `invalid --tenant "acme"`)
}
