package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/finledger_backend/config"
	"bitbucket.org/mmdatafocus/finledger_backend/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FiscalPeriod is a bounded date range with a posting-eligibility status.
// Status moves one way only: OPEN -> CLOSED -> LOCKED. There is no reopening;
// corrections to a closed period go through a new adjustment period instead.
type FiscalPeriod struct {
	ID         int                `gorm:"primary_key" json:"id"`
	BusinessId string             `gorm:"size:64;index;not null" json:"business_id"`
	Name       string             `gorm:"size:100;not null" json:"name" binding:"required"`
	StartDate  time.Time          `gorm:"index;not null" json:"start_date" binding:"required"`
	EndDate    time.Time          `gorm:"index;not null" json:"end_date" binding:"required"`
	Status     FiscalPeriodStatus `gorm:"type:enum('OPEN','CLOSED','LOCKED');default:'OPEN';index;not null" json:"status"`
	// IsAdjustment marks an explicitly-dated correction period created after
	// its natural predecessor closed.
	IsAdjustment bool `gorm:"not null;default:false" json:"is_adjustment"`
	// ClosingTransactionId references the year-end closing journal entry once
	// the period has been closed.
	ClosingTransactionId *int      `gorm:"index" json:"closing_transaction_id"`
	CreatedAt            time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewFiscalPeriod struct {
	Name      string    `json:"name" binding:"required"`
	StartDate time.Time `json:"start_date" binding:"required"`
	EndDate   time.Time `json:"end_date" binding:"required"`
}

// CanTransitionPeriodStatus encodes the one-directional state machine.
// No skipping, no reverse transitions.
func CanTransitionPeriodStatus(from, to FiscalPeriodStatus) bool {
	switch {
	case from == FiscalPeriodOpen && to == FiscalPeriodClosed:
		return true
	case from == FiscalPeriodClosed && to == FiscalPeriodLocked:
		return true
	}
	return false
}

// AssertPeriodOpen returns a PeriodLockedError unless the period accepts
// postings.
func AssertPeriodOpen(period *FiscalPeriod) error {
	if period.Status != FiscalPeriodOpen {
		return &PeriodLockedError{PeriodName: period.Name, Status: period.Status}
	}
	return nil
}

func (input *NewFiscalPeriod) validate(ctx context.Context, businessId string, isAdjustment bool) error {
	if !input.EndDate.After(input.StartDate) {
		return errors.New("period end date must be after start date")
	}
	if err := utils.ValidateUnique[FiscalPeriod](ctx, businessId, "name", input.Name, 0); err != nil {
		return err
	}
	if isAdjustment {
		// Adjustment periods may overlap closed periods; that is their point.
		return nil
	}
	count, err := utils.ResourceCountWhere[FiscalPeriod](ctx, businessId,
		"is_adjustment = false AND start_date <= ? AND end_date >= ?", input.EndDate, input.StartDate)
	if err != nil {
		return err
	}
	if count > 0 {
		return errors.New("period overlaps an existing period")
	}
	return nil
}

func createPeriod(ctx context.Context, input *NewFiscalPeriod, isAdjustment bool) (*FiscalPeriod, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if err := input.validate(ctx, businessId, isAdjustment); err != nil {
		return nil, err
	}
	period := FiscalPeriod{
		BusinessId:   businessId,
		Name:         input.Name,
		StartDate:    input.StartDate,
		EndDate:      input.EndDate,
		Status:       FiscalPeriodOpen,
		IsAdjustment: isAdjustment,
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&period).Error; err != nil {
		return nil, err
	}
	return &period, nil
}

func CreateFiscalPeriod(ctx context.Context, input *NewFiscalPeriod) (*FiscalPeriod, error) {
	return createPeriod(ctx, input, false)
}

// CreateAdjustmentPeriod is the sanctioned way to accept late postings after
// a period closed: a new explicitly-dated period, never a reverse transition.
func CreateAdjustmentPeriod(ctx context.Context, input *NewFiscalPeriod) (*FiscalPeriod, error) {
	return createPeriod(ctx, input, true)
}

func GetFiscalPeriod(ctx context.Context, id int) (*FiscalPeriod, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[FiscalPeriod](ctx, businessId, id)
}

func GetFiscalPeriods(ctx context.Context) ([]*FiscalPeriod, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchAllModels[FiscalPeriod](ctx, businessId)
}

// PeriodForDate resolves which period a transaction date posts into.
// Open adjustment periods win over the regular period covering the same date,
// so corrections land in the adjustment period without touching closed books.
func PeriodForDate(tx *gorm.DB, businessId string, date time.Time) (*FiscalPeriod, error) {
	day, err := utils.ConvertToDate(date, "")
	if err != nil {
		return nil, err
	}
	var period FiscalPeriod
	err = tx.Where("business_id = ? AND start_date <= ? AND end_date >= ?", businessId, day, day).
		Order("is_adjustment DESC, start_date DESC").
		First(&period).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("no fiscal period covers %s", day.Format("2006-01-02"))
		}
		return nil, err
	}
	return &period, nil
}

// LockPeriodRowForUpdate re-reads the period with a row lock inside the
// caller's transaction. Used by the posting engine so a close racing with a
// post cannot slip a transaction into a period that just closed.
func LockPeriodRowForUpdate(tx *gorm.DB, periodID int) (*FiscalPeriod, error) {
	var period FiscalPeriod
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", periodID).
		First(&period).Error; err != nil {
		return nil, err
	}
	return &period, nil
}

// TransitionPeriodStatus applies one legal step of the state machine under a
// row lock.
func TransitionPeriodStatus(tx *gorm.DB, periodID int, to FiscalPeriodStatus, closingTransactionId *int) (*FiscalPeriod, error) {
	period, err := LockPeriodRowForUpdate(tx, periodID)
	if err != nil {
		return nil, err
	}
	if !CanTransitionPeriodStatus(period.Status, to) {
		return nil, fmt.Errorf("illegal period transition %s -> %s for %q", period.Status, to, period.Name)
	}
	updates := map[string]interface{}{"status": to}
	if closingTransactionId != nil {
		updates["closing_transaction_id"] = *closingTransactionId
	}
	if err := tx.Model(&FiscalPeriod{}).Where("id = ?", periodID).Updates(updates).Error; err != nil {
		return nil, err
	}
	period.Status = to
	if closingTransactionId != nil {
		period.ClosingTransactionId = closingTransactionId
	}
	return period, nil
}
