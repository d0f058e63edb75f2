package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransitionPeriodStatus(t *testing.T) {
	statuses := []FiscalPeriodStatus{FiscalPeriodOpen, FiscalPeriodClosed, FiscalPeriodLocked}

	allowed := map[[2]FiscalPeriodStatus]bool{
		{FiscalPeriodOpen, FiscalPeriodClosed}:   true,
		{FiscalPeriodClosed, FiscalPeriodLocked}: true,
	}
	// Everything else is forbidden: no reopening, no skipping OPEN -> LOCKED,
	// no self-transition.
	for _, from := range statuses {
		for _, to := range statuses {
			got := CanTransitionPeriodStatus(from, to)
			assert.Equal(t, allowed[[2]FiscalPeriodStatus{from, to}], got, "%s -> %s", from, to)
		}
	}
}

func TestAssertPeriodOpen(t *testing.T) {
	open := &FiscalPeriod{Name: "FY2026-Q1", Status: FiscalPeriodOpen}
	require.NoError(t, AssertPeriodOpen(open))

	for _, status := range []FiscalPeriodStatus{FiscalPeriodClosed, FiscalPeriodLocked} {
		period := &FiscalPeriod{Name: "FY2026-Q1", Status: status}
		err := AssertPeriodOpen(period)
		var lockErr *PeriodLockedError
		require.ErrorAs(t, err, &lockErr)
		assert.Equal(t, "FY2026-Q1", lockErr.PeriodName)
		assert.Equal(t, status, lockErr.Status)
	}
}
