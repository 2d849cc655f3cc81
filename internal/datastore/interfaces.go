// Package datastore persists completed transcript records.
package datastore

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/voicewire/voicewire-go/internal/conf"
	"github.com/voicewire/voicewire-go/internal/errors"
)

// Interface abstracts the underlying database implementation.
type Interface interface {
	Open() error
	Save(record *TranscriptRecord) error
	Get(id string) (TranscriptRecord, error)
	Delete(id string) error
	GetLast(limit int) ([]TranscriptRecord, error)
	Search(query string, limit, offset int) ([]TranscriptRecord, error)
	Count() (int64, error)
	Close() error
}

// DataStore implements Interface using a GORM database.
type DataStore struct {
	DB *gorm.DB
}

// New selects a store implementation from the output settings. Only SQLite
// is wired at the moment.
func New(settings *conf.Settings) (Interface, error) {
	switch {
	case settings.Output.SQLite.Enabled:
		return &SQLiteStore{Settings: settings}, nil
	default:
		return nil, errors.Newf("no database output enabled in settings").
			Component("datastore").
			Category(errors.CategoryConfiguration).
			Build()
	}
}

// Save inserts one transcript record.
func (ds *DataStore) Save(record *TranscriptRecord) error {
	if ds.DB == nil {
		return errDatabaseNotOpen()
	}
	if err := ds.DB.Create(record).Error; err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "save").
			Build()
	}
	return nil
}

// Get retrieves a transcript record by its ID.
func (ds *DataStore) Get(id string) (TranscriptRecord, error) {
	if ds.DB == nil {
		return TranscriptRecord{}, errDatabaseNotOpen()
	}
	var record TranscriptRecord
	if err := ds.DB.First(&record, "id = ?", id).Error; err != nil {
		return TranscriptRecord{}, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "get").
			Context("id", id).
			Build()
	}
	return record, nil
}

// Delete removes a transcript record by its ID.
func (ds *DataStore) Delete(id string) error {
	if ds.DB == nil {
		return errDatabaseNotOpen()
	}
	result := ds.DB.Delete(&TranscriptRecord{}, "id = ?", id)
	if result.Error != nil {
		return errors.New(result.Error).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "delete").
			Context("id", id).
			Build()
	}
	if result.RowsAffected == 0 {
		return errors.Newf("transcript %s not found", id).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	return nil
}

// GetLast returns the most recent records, newest first.
func (ds *DataStore) GetLast(limit int) ([]TranscriptRecord, error) {
	if ds.DB == nil {
		return nil, errDatabaseNotOpen()
	}
	var records []TranscriptRecord
	err := ds.DB.Order("timestamp DESC").Limit(limit).Find(&records).Error
	if err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "get_last").
			Build()
	}
	return records, nil
}

// Search finds records whose transcript text contains the query,
// newest first.
func (ds *DataStore) Search(query string, limit, offset int) ([]TranscriptRecord, error) {
	if ds.DB == nil {
		return nil, errDatabaseNotOpen()
	}
	var records []TranscriptRecord
	err := ds.DB.
		Where("transcript LIKE ?", "%"+query+"%").
		Order("timestamp DESC").
		Limit(limit).
		Offset(offset).
		Find(&records).Error
	if err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "search").
			Build()
	}
	return records, nil
}

// Count returns the total number of stored records.
func (ds *DataStore) Count() (int64, error) {
	if ds.DB == nil {
		return 0, errDatabaseNotOpen()
	}
	var count int64
	if err := ds.DB.Model(&TranscriptRecord{}).Count(&count).Error; err != nil {
		return 0, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "count").
			Build()
	}
	return count, nil
}

// Close closes the underlying database connection.
func (ds *DataStore) Close() error {
	if ds.DB == nil {
		return nil
	}
	sqlDB, err := ds.DB.DB()
	if err != nil {
		return fmt.Errorf("getting underlying database: %w", err)
	}
	return sqlDB.Close()
}

func errDatabaseNotOpen() error {
	return errors.Newf("database connection is not initialized").
		Component("datastore").
		Category(errors.CategoryDatabase).
		Build()
}
