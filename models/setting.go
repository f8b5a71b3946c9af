package models

import (
	"context"
	"errors"
	"time"

	"github.com/arkline-sg/backoffice_backend/config"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Setting is a persisted key-value config row (company profile, NAS paths,
// feature toggles). Values are opaque strings; callers own the format.
type Setting struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Key       string    `gorm:"column:setting_key;size:100;not null;unique" json:"key"`
	Value     string    `gorm:"type:text" json:"value"`
	UpdatedBy int       `json:"updated_by"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func GetSetting(ctx context.Context, key string) (string, error) {
	db := config.GetDB()
	var setting Setting
	err := db.WithContext(ctx).Where("setting_key = ?", key).Take(&setting).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", err
	}
	return setting.Value, nil
}

func SetSetting(ctx context.Context, key string, value string, updatedBy int) error {
	db := config.GetDB()
	setting := Setting{Key: key, Value: value, UpdatedBy: updatedBy}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "setting_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_by"}),
		}).
		Create(&setting).Error
}

func ListSettings(ctx context.Context) ([]Setting, error) {
	db := config.GetDB()
	var settings []Setting
	if err := db.WithContext(ctx).Order("setting_key").Find(&settings).Error; err != nil {
		return nil, err
	}
	return settings, nil
}
