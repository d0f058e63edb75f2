package utils

import (
	"context"
	"errors"

	"bitbucket.org/mmdatafocus/finledger_backend/config"
	"gorm.io/gorm"
)

func FetchModel[T any](ctx context.Context, businessId string, id int, associations ...string) (*T, error) {
	db := config.GetDB()
	var model T
	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	for _, assoc := range associations {
		dbCtx = dbCtx.Preload(assoc)
	}
	if err := dbCtx.First(&model, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrorRecordNotFound
		}
		return nil, err
	}
	return &model, nil
}

// FetchModelTx is FetchModel on an existing transaction handle.
func FetchModelTx[T any](tx *gorm.DB, businessId string, id int, associations ...string) (*T, error) {
	var model T
	dbTx := tx.Where("business_id = ?", businessId)
	for _, assoc := range associations {
		dbTx = dbTx.Preload(assoc)
	}
	if err := dbTx.First(&model, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrorRecordNotFound
		}
		return nil, err
	}
	return &model, nil
}

func FetchAllModels[T any](ctx context.Context, businessId string, associations ...string) ([]*T, error) {
	db := config.GetDB()
	var models []*T
	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	for _, assoc := range associations {
		dbCtx = dbCtx.Preload(assoc)
	}
	if err := dbCtx.Find(&models).Error; err != nil {
		return nil, err
	}
	return models, nil
}
