package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/finledger_backend/config"
	"bitbucket.org/mmdatafocus/finledger_backend/models"
	"bitbucket.org/mmdatafocus/finledger_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ForexAdjustmentInput describes a foreign-currency exposure settled at a
// rate different from the one it was booked at.
type ForexAdjustmentInput struct {
	ForeignAmount   decimal.Decimal `json:"foreign_amount" binding:"required"`
	CurrencyCode    string          `json:"currency_code" binding:"required,currencycode"`
	BookingRate     decimal.Decimal `json:"booking_rate" binding:"required"`
	SettlementRate  decimal.Decimal `json:"settlement_rate" binding:"required"`
	SettlementDate  time.Time       `json:"settlement_date" binding:"required"`
	ReferenceNumber string          `json:"reference_number"`
	IdempotencyKey  string          `json:"idempotency_key" binding:"required"`
}

func (input ForexAdjustmentInput) validate() error {
	if input.ForeignAmount.Sign() <= 0 {
		return models.NewValidationError("INVALID_AMOUNT", "foreign amount must be positive")
	}
	if input.BookingRate.Sign() <= 0 || input.SettlementRate.Sign() <= 0 {
		return models.NewValidationError("INVALID_RATE", "exchange rates must be positive")
	}
	return nil
}

// ComputeForexAdjustment returns the base-currency gain or loss:
// (settlement rate - booking rate) * foreign amount, rounded to 2 decimal
// places exactly once. Positive means gain, negative means loss.
func ComputeForexAdjustment(foreignAmount, bookingRate, settlementRate decimal.Decimal) decimal.Decimal {
	return settlementRate.Sub(bookingRate).Mul(foreignAmount).Round(2)
}

func findSystemAccountCtx(ctx context.Context, db *gorm.DB, code string) (*models.Account, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return models.GetSystemAccount(db.WithContext(ctx), businessId, code)
}

// PostForexAdjustment computes the realized gain or loss and posts it as a
// FOREX_ADJUSTMENT transaction. A gain credits the forex gain account
// against the settlement variance account; a loss debits the forex loss
// account. A zero adjustment posts nothing and returns nil.
func PostForexAdjustment(ctx context.Context, input ForexAdjustmentInput) (*models.Transaction, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	adjustment := ComputeForexAdjustment(input.ForeignAmount, input.BookingRate, input.SettlementRate)
	if adjustment.IsZero() {
		return nil, nil
	}

	db := config.GetDB()
	gainAccount, err := findSystemAccountCtx(ctx, db, models.SystemAccountForexGain)
	if err != nil {
		return nil, err
	}
	lossAccount, err := findSystemAccountCtx(ctx, db, models.SystemAccountForexLoss)
	if err != nil {
		return nil, err
	}
	varianceAccount, err := findSystemAccountCtx(ctx, db, models.SystemAccountSettlementVariance)
	if err != nil {
		return nil, err
	}

	draft := models.DraftTransaction{
		Type:            models.TransactionTypeForexAdjustment,
		TransactionDate: input.SettlementDate,
		CurrencyCode:    config.BaseCurrencyCode(),
		ExchangeRate:    input.SettlementRate,
		Description: fmt.Sprintf("Forex adjustment on %s %s settled at %s (booked %s)",
			input.ForeignAmount.String(), input.CurrencyCode,
			input.SettlementRate.String(), input.BookingRate.String()),
		ReferenceNumber: input.ReferenceNumber,
		IdempotencyKey:  input.IdempotencyKey,
	}
	amount := adjustment.Abs()
	if adjustment.Sign() > 0 {
		draft.Lines = []models.DraftLine{
			{AccountId: varianceAccount.ID, Side: models.LedgerSideDebit, Amount: amount, Description: "Settlement variance"},
			{AccountId: gainAccount.ID, Side: models.LedgerSideCredit, Amount: amount, Description: "Realized forex gain"},
		}
	} else {
		draft.Lines = []models.DraftLine{
			{AccountId: lossAccount.ID, Side: models.LedgerSideDebit, Amount: amount, Description: "Realized forex loss"},
			{AccountId: varianceAccount.ID, Side: models.LedgerSideCredit, Amount: amount, Description: "Settlement variance"},
		}
	}
	return PostTransaction(ctx, draft)
}
