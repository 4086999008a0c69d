package store

import (
	"context"

	"github.com/pysugar/oura-twin-sync/internal/db/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SQLBackend stores documents as (document, key, value) rows. Every Update runs in one transaction.
type SQLBackend struct {
	db *gorm.DB
}

func NewSQLBackend(db *gorm.DB) *SQLBackend {
	return &SQLBackend{db: db}
}

func (s *SQLBackend) Read(ctx context.Context, document string) (map[string]string, error) {
	return readEntries(s.db.WithContext(ctx), document)
}

func (s *SQLBackend) Update(ctx context.Context, document string, fn func(doc map[string]string) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		before, err := readEntries(tx, document)
		if err != nil {
			return err
		}

		after := copyDoc(before)
		if err := fn(after); err != nil {
			return err
		}

		for key := range before {
			if _, ok := after[key]; ok {
				continue
			}
			if err := tx.Where("document = ? AND key = ?", document, key).Delete(&models.DocumentEntry{}).Error; err != nil {
				return err
			}
		}

		for key, value := range after {
			if old, ok := before[key]; ok && old == value {
				continue
			}
			entry := models.DocumentEntry{Document: document, Key: key, Value: value}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "document"}, {Name: "key"}},
				DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
			}).Create(&entry).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLBackend) Delete(ctx context.Context, document string) error {
	return s.db.WithContext(ctx).Where("document = ?", document).Delete(&models.DocumentEntry{}).Error
}

func readEntries(db *gorm.DB, document string) (map[string]string, error) {
	var entries []models.DocumentEntry
	if err := db.Where("document = ?", document).Find(&entries).Error; err != nil {
		return nil, err
	}
	doc := make(map[string]string, len(entries))
	for _, e := range entries {
		doc[e.Key] = e.Value
	}
	return doc, nil
}
