package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/finledger_backend/config"
	"bitbucket.org/mmdatafocus/finledger_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// MatchToleranceConfig holds the per-business matching policy. Variance
// percentages are against the purchase order value of the line; the value
// threshold escalates severity for high-value invoices.
type MatchToleranceConfig struct {
	ID         int    `gorm:"primary_key" json:"id"`
	BusinessId string `gorm:"size:64;not null;index:uniq_tolerance_biz,unique" json:"business_id"`
	// Variance at or below AutoApprovePct is treated as a clean match.
	AutoApprovePct decimal.Decimal `gorm:"type:decimal(10,4);not null" json:"auto_approve_pct"`
	LowMaxPct      decimal.Decimal `gorm:"type:decimal(10,4);not null" json:"low_max_pct"`
	MediumMaxPct   decimal.Decimal `gorm:"type:decimal(10,4);not null" json:"medium_max_pct"`
	// Invoices at or above HighValueThreshold get their severity escalated
	// one rank.
	HighValueThreshold decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"high_value_threshold"`
	CreatedAt          time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func DefaultMatchToleranceConfig(businessId string) MatchToleranceConfig {
	return MatchToleranceConfig{
		BusinessId:         businessId,
		AutoApprovePct:     decimal.NewFromInt(2),
		LowMaxPct:          decimal.NewFromInt(5),
		MediumMaxPct:       decimal.NewFromInt(10),
		HighValueThreshold: decimal.NewFromInt(100000),
	}
}

func toleranceCacheKey(businessId string) string {
	return fmt.Sprintf("tolerance_config_%s", businessId)
}

// GetMatchToleranceConfig resolves the policy for a business, falling back
// to defaults when none is configured. Results are cached in Redis; cache
// misses or Redis being down degrade to a DB read.
func GetMatchToleranceConfig(tx *gorm.DB, businessId string) (MatchToleranceConfig, error) {
	var cached MatchToleranceConfig
	if found, err := config.GetRedisObject(toleranceCacheKey(businessId), &cached); err == nil && found {
		return cached, nil
	}

	var cfg MatchToleranceConfig
	err := tx.Where("business_id = ?", businessId).First(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return DefaultMatchToleranceConfig(businessId), nil
	}
	if err != nil {
		return MatchToleranceConfig{}, err
	}
	_ = config.SetRedisObject(toleranceCacheKey(businessId), cfg, time.Hour)
	return cfg, nil
}

type UpsertMatchToleranceConfig struct {
	AutoApprovePct     decimal.Decimal `json:"auto_approve_pct" binding:"required"`
	LowMaxPct          decimal.Decimal `json:"low_max_pct" binding:"required"`
	MediumMaxPct       decimal.Decimal `json:"medium_max_pct" binding:"required"`
	HighValueThreshold decimal.Decimal `json:"high_value_threshold" binding:"required"`
}

func (input UpsertMatchToleranceConfig) validate() error {
	if input.AutoApprovePct.Sign() < 0 || input.LowMaxPct.Sign() < 0 || input.MediumMaxPct.Sign() < 0 {
		return NewValidationError("INVALID_TOLERANCE", "tolerance percentages cannot be negative")
	}
	if input.AutoApprovePct.GreaterThan(input.LowMaxPct) || input.LowMaxPct.GreaterThan(input.MediumMaxPct) {
		return NewValidationError("INVALID_TOLERANCE", "thresholds must be ordered: auto approve <= low <= medium")
	}
	if input.HighValueThreshold.Sign() <= 0 {
		return NewValidationError("INVALID_TOLERANCE", "high value threshold must be positive")
	}
	return nil
}

func SaveMatchToleranceConfig(ctx context.Context, input UpsertMatchToleranceConfig) (*MatchToleranceConfig, error) {
	db := config.GetDB()
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if err := input.validate(); err != nil {
		return nil, err
	}

	var cfg MatchToleranceConfig
	err := db.Where("business_id = ?", businessId).First(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		cfg = MatchToleranceConfig{BusinessId: businessId}
	} else if err != nil {
		return nil, err
	}

	cfg.AutoApprovePct = input.AutoApprovePct
	cfg.LowMaxPct = input.LowMaxPct
	cfg.MediumMaxPct = input.MediumMaxPct
	cfg.HighValueThreshold = input.HighValueThreshold
	if err := db.Save(&cfg).Error; err != nil {
		return nil, err
	}
	_ = config.RemoveRedisKey(toleranceCacheKey(businessId))
	return &cfg, nil
}
