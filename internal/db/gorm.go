package db

import (
	"fmt"
	"time"

	"github.com/HuuDungg/TrollFools-Framework-Selected/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// gormStore implements the asset queries shared by the gorm databases.
type gormStore struct {
	db *gorm.DB
}

func (g *gormStore) open(dialector gorm.Dialector, batchSize int) (err error) {
	g.db, err = gorm.Open(dialector, &gorm.Config{
		CreateBatchSize:        batchSize,
		SkipDefaultTransaction: true,
		TranslateError:         true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return err
	}
	return g.db.AutoMigrate(&model.Asset{})
}

func (g *gormStore) upsert(appID string, paths []string, persisted bool) error {
	if len(paths) == 0 {
		return nil
	}
	assets := make([]model.Asset, 0, len(paths))
	for _, p := range paths {
		assets = append(assets, model.Asset{AppID: appID, Path: p, Persisted: persisted})
	}
	if err := g.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "app_id"}, {Name: "path"}},
		DoUpdates: clause.Assignments(map[string]any{
			"persisted":  persisted,
			"updated_at": time.Now(),
			"deleted_at": nil,
		}),
	}).Create(&assets).Error; err != nil {
		return fmt.Errorf("failed to save assets of %s: %w", appID, err)
	}
	return nil
}

// Persist records paths as persisted for appID.
func (g *gormStore) Persist(appID string, paths []string) error {
	return g.upsert(appID, paths, true)
}

// Desist records paths as desisted for appID.
func (g *gormStore) Desist(appID string, paths []string) error {
	return g.upsert(appID, paths, false)
}

func (g *gormStore) paths(appID string, persisted bool) ([]string, error) {
	var paths []string
	if err := g.db.Model(&model.Asset{}).
		Where("app_id = ? AND persisted = ?", appID, persisted).
		Order("path").
		Pluck("path", &paths).Error; err != nil {
		return nil, fmt.Errorf("failed to query assets of %s: %w", appID, err)
	}
	return paths, nil
}

// PersistedPaths returns the persisted paths of appID.
func (g *gormStore) PersistedPaths(appID string) ([]string, error) {
	return g.paths(appID, true)
}

// DesistedPaths returns the desisted paths of appID.
func (g *gormStore) DesistedPaths(appID string) ([]string, error) {
	return g.paths(appID, false)
}

// Close closes the database.
func (g *gormStore) Close() error {
	if g.db == nil {
		return nil
	}
	db, err := g.db.DB()
	if err != nil {
		return err
	}
	return db.Close()
}
