package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReconcileDateWindowDays(t *testing.T) {
	t.Setenv("RECONCILE_DATE_WINDOW_DAYS", "")
	assert.Equal(t, 5, ReconcileDateWindowDays())

	t.Setenv("RECONCILE_DATE_WINDOW_DAYS", "3")
	assert.Equal(t, 3, ReconcileDateWindowDays())

	// Nonsense values fall back to the default instead of disabling the
	// date score outright.
	t.Setenv("RECONCILE_DATE_WINDOW_DAYS", "petrol")
	assert.Equal(t, 5, ReconcileDateWindowDays())
	t.Setenv("RECONCILE_DATE_WINDOW_DAYS", "-2")
	assert.Equal(t, 5, ReconcileDateWindowDays())
}
