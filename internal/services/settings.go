// internal/services/settings.go
package services

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/javajoker/coopfund-backend/internal/models"
)

const (
	settingsCategoryPause       = "pause"
	settingsCategoryProofExpiry = "proof_expiry"
)

func loadSetting(tx *gorm.DB, category, key string) (*models.AdminSettings, error) {
	var setting models.AdminSettings
	err := tx.Where("category = ? AND key = ?", category, key).First(&setting).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &setting, nil
}

func saveSetting(tx *gorm.DB, category, key string, value interface{}, dataType, actor string) error {
	setting, err := loadSetting(tx, category, key)
	if err != nil {
		return err
	}

	if setting == nil {
		setting = &models.AdminSettings{
			Category:  category,
			Key:       key,
			Value:     models.JSONB{"value": value},
			DataType:  dataType,
			UpdatedBy: actor,
		}
		if err := tx.Create(setting).Error; err != nil {
			return fmt.Errorf("failed to create setting: %w", err)
		}
		return nil
	}

	setting.Value = models.JSONB{"value": value}
	setting.DataType = dataType
	setting.UpdatedBy = actor
	if err := tx.Save(setting).Error; err != nil {
		return fmt.Errorf("failed to update setting: %w", err)
	}
	return nil
}

func settingBool(s *models.AdminSettings) bool {
	if s == nil {
		return false
	}
	v, _ := s.Value["value"].(bool)
	return v
}

// settingInt64 reads a numeric setting. JSON numbers decode as float64.
func settingInt64(s *models.AdminSettings) (int64, bool) {
	if s == nil {
		return 0, false
	}
	switch v := s.Value["value"].(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	}
	return 0, false
}
