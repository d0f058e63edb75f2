package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/finledger_backend/config"
	"bitbucket.org/mmdatafocus/finledger_backend/utils"
	"gorm.io/gorm"
)

// Account is one row of the chart of accounts. The engine treats the chart
// as read-mostly reference data owned by the master-data collaborator; only
// lookups and activation changes happen here.
type Account struct {
	ID            int             `gorm:"primary_key" json:"id"`
	BusinessId    string          `gorm:"size:64;index;not null" json:"business_id"`
	Name          string          `gorm:"size:100;index;not null" json:"name" binding:"required"`
	Code          string          `gorm:"size:100;index" json:"code"`
	MainType      AccountMainType `gorm:"type:enum('Asset','Liability','Equity','Income','Expense');default:'Expense';index;size:10;not null" json:"main_type" binding:"required"`
	NormalBalance NormalBalance   `gorm:"size:16;not null;default:'DEBIT'" json:"normal_balance"`
	IsActive      *bool           `gorm:"not null;default:true" json:"is_active"`
	// SystemDefaultCode identifies the accounts the engine itself posts to
	// (accounts payable, forex gain/loss, retained earnings, ...).
	SystemDefaultCode string    `gorm:"index;size:8" json:"system_default_code"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// System default account codes used by the posting workflows.
const (
	SystemAccountAccountsPayable    = "AP"
	SystemAccountAccountsReceivable = "AR"
	SystemAccountBank               = "BNK"
	SystemAccountExpense            = "EXP"
	SystemAccountForexGain          = "FXG"
	SystemAccountForexLoss          = "FXL"
	SystemAccountSettlementVariance = "SV"
	SystemAccountRetainedEarnings   = "RE"
)

type NewAccount struct {
	Name          string          `json:"name" binding:"required"`
	Code          string          `json:"code"`
	MainType      AccountMainType `json:"main_type" binding:"required"`
	NormalBalance NormalBalance   `json:"normal_balance"`
}

func (input *NewAccount) validate(ctx context.Context, businessId string, id int) error {
	if err := utils.ValidateUnique[Account](ctx, businessId, "name", input.Name, id); err != nil {
		return err
	}
	if input.Code != "" {
		if err := utils.ValidateUnique[Account](ctx, businessId, "code", input.Code, id); err != nil {
			return err
		}
	}
	switch input.MainType {
	case AccountMainTypeAsset, AccountMainTypeLiability, AccountMainTypeEquity,
		AccountMainTypeIncome, AccountMainTypeExpense:
	default:
		return errors.New("invalid account main type")
	}
	return nil
}

// DefaultNormalBalance returns the customary balance side for a main type.
func DefaultNormalBalance(mainType AccountMainType) NormalBalance {
	switch mainType {
	case AccountMainTypeAsset, AccountMainTypeExpense:
		return NormalBalanceDebit
	default:
		return NormalBalanceCredit
	}
}

func CreateAccount(ctx context.Context, input *NewAccount) (*Account, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if err := input.validate(ctx, businessId, 0); err != nil {
		return nil, err
	}

	normalBalance := input.NormalBalance
	if normalBalance == "" {
		normalBalance = DefaultNormalBalance(input.MainType)
	}

	account := Account{
		BusinessId:    businessId,
		Name:          input.Name,
		Code:          input.Code,
		MainType:      input.MainType,
		NormalBalance: normalBalance,
		IsActive:      utils.NewTrue(),
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

// DeactivateAccount is the only mutation allowed once an account has been
// referenced by a posted ledger line.
func DeactivateAccount(ctx context.Context, id int) (*Account, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	account, err := utils.FetchModel[Account](ctx, businessId, id)
	if err != nil {
		return nil, err
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Model(account).Update("is_active", false).Error; err != nil {
		return nil, err
	}
	account.IsActive = utils.NewFalse()
	return account, nil
}

func GetAccount(ctx context.Context, id int) (*Account, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[Account](ctx, businessId, id)
}

func GetAccounts(ctx context.Context) ([]*Account, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchAllModels[Account](ctx, businessId)
}

// LoadAccountIndex fetches the referenced accounts in one query and returns
// them keyed by id, for the validator's existence/active checks.
func LoadAccountIndex(tx *gorm.DB, businessId string, accountIds []int) (map[int]Account, error) {
	var accounts []Account
	if err := tx.Where("business_id = ? AND id IN ?", businessId, utils.UniqueSlice(accountIds)).
		Find(&accounts).Error; err != nil {
		return nil, err
	}
	index := make(map[int]Account, len(accounts))
	for _, a := range accounts {
		index[a.ID] = a
	}
	return index, nil
}

// GetSystemAccount resolves one of the engine's well-known posting targets.
func GetSystemAccount(tx *gorm.DB, businessId string, systemCode string) (*Account, error) {
	var account Account
	err := tx.Where("business_id = ? AND system_default_code = ?", businessId, systemCode).
		First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("system account not configured: " + systemCode)
		}
		return nil, err
	}
	return &account, nil
}

// SeedDefaultAccounts creates the minimum chart the engine needs for a new
// tenant. Idempotent: existing system codes are left untouched.
func SeedDefaultAccounts(tx *gorm.DB, businessId string) error {
	defaults := []Account{
		{Name: "Accounts Payable", Code: "2000", MainType: AccountMainTypeLiability, SystemDefaultCode: SystemAccountAccountsPayable},
		{Name: "Accounts Receivable", Code: "1200", MainType: AccountMainTypeAsset, SystemDefaultCode: SystemAccountAccountsReceivable},
		{Name: "Bank", Code: "1000", MainType: AccountMainTypeAsset, SystemDefaultCode: SystemAccountBank},
		{Name: "General Expense", Code: "5000", MainType: AccountMainTypeExpense, SystemDefaultCode: SystemAccountExpense},
		{Name: "Exchange Gain", Code: "4900", MainType: AccountMainTypeIncome, SystemDefaultCode: SystemAccountForexGain},
		{Name: "Exchange Loss", Code: "5900", MainType: AccountMainTypeExpense, SystemDefaultCode: SystemAccountForexLoss},
		{Name: "Settlement Variance", Code: "1190", MainType: AccountMainTypeAsset, SystemDefaultCode: SystemAccountSettlementVariance},
		{Name: "Retained Earnings", Code: "3200", MainType: AccountMainTypeEquity, SystemDefaultCode: SystemAccountRetainedEarnings},
	}
	for _, account := range defaults {
		var count int64
		if err := tx.Model(&Account{}).
			Where("business_id = ? AND system_default_code = ?", businessId, account.SystemDefaultCode).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			continue
		}
		account.BusinessId = businessId
		account.NormalBalance = DefaultNormalBalance(account.MainType)
		account.IsActive = utils.NewTrue()
		if err := tx.Create(&account).Error; err != nil {
			return err
		}
	}
	return nil
}
