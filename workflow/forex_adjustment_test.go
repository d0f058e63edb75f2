package workflow

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bitbucket.org/mmdatafocus/finledger_backend/models"
)

func TestComputeForexAdjustment_Gain(t *testing.T) {
	// Booked 10,000 USD at 2100, settled at 2105: 50,000 base-currency gain.
	got := ComputeForexAdjustment(dec("10000"), dec("2100"), dec("2105"))
	assert.True(t, got.Equal(dec("50000")), "adjustment = %s", got)
}

func TestComputeForexAdjustment_Loss(t *testing.T) {
	got := ComputeForexAdjustment(dec("10000"), dec("2105"), dec("2100"))
	assert.True(t, got.Equal(dec("-50000")), "adjustment = %s", got)
}

func TestComputeForexAdjustment_NoRateChange(t *testing.T) {
	assert.True(t, ComputeForexAdjustment(dec("10000"), dec("2100"), dec("2100")).IsZero())
}

func TestComputeForexAdjustment_RoundsOnceAtTheEnd(t *testing.T) {
	// 333.33 * 0.0001 = 0.033333; rounding the final product gives 0.03.
	// Rounding the rate delta first would zero the whole adjustment.
	got := ComputeForexAdjustment(dec("333.33"), dec("1.0000"), dec("1.0001"))
	assert.True(t, got.Equal(dec("0.03")), "adjustment = %s", got)

	// Half-up at the second decimal.
	got = ComputeForexAdjustment(dec("150.50"), dec("1.00"), dec("1.0001"))
	assert.True(t, got.Equal(dec("0.02")), "adjustment = %s", got)
}

func TestForexAdjustmentInput_Validate(t *testing.T) {
	valid := ForexAdjustmentInput{
		ForeignAmount:  dec("1000"),
		CurrencyCode:   "USD",
		BookingRate:    dec("2100"),
		SettlementRate: dec("2105"),
		SettlementDate: time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC),
		IdempotencyKey: "fx-001",
	}
	require.NoError(t, valid.validate())

	negAmount := valid
	negAmount.ForeignAmount = dec("-1000")
	var verr *models.ValidationError
	require.ErrorAs(t, negAmount.validate(), &verr)
	assert.Equal(t, "INVALID_AMOUNT", verr.Code)

	zeroRate := valid
	zeroRate.BookingRate = decimal.Zero
	require.ErrorAs(t, zeroRate.validate(), &verr)
	assert.Equal(t, "INVALID_RATE", verr.Code)
}
