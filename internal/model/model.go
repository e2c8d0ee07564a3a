// Package model contains the persisted asset model for the database.
package model

import "gorm.io/gorm"

// Asset records whether an injected asset should be re-injected
// (persisted) or was explicitly ejected for good (desisted).
type Asset struct {
	gorm.Model        // adds ID, created_at etc.
	AppID      string `gorm:"uniqueIndex:idx_app_path;not null" json:"app_id"`
	Path       string `gorm:"uniqueIndex:idx_app_path;not null" json:"path"`
	Persisted  bool   `json:"persisted"`
}
