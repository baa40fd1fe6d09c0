package session

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StorageEntry is one key/value row of persistent client storage.
type StorageEntry struct {
	Key       string    `gorm:"column:key;primaryKey;size:128"`
	Value     string    `gorm:"column:value;type:text"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

// TableName overrides the default table name.
func (StorageEntry) TableName() string {
	return "client_storage"
}

// PostgresKV is client storage kept in a postgres table through gorm.
type PostgresKV struct {
	db *gorm.DB
}

// NewPostgresKV creates a new adapter instance.
func NewPostgresKV(db *gorm.DB) *PostgresKV {
	return &PostgresKV{db: db}
}

// AutoMigrate ensures the schema is available.
func (p *PostgresKV) AutoMigrate(ctx context.Context) error {
	return p.db.WithContext(ctx).AutoMigrate(&StorageEntry{})
}

// Get loads one key.
func (p *PostgresKV) Get(ctx context.Context, key string) (string, error) {
	var entry StorageEntry
	err := p.db.WithContext(ctx).First(&entry, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrKeyNotFound
	}
	if err != nil {
		return "", err
	}
	return entry.Value, nil
}

// Set upserts one key. The screen never calls it; provisioning and tests do.
func (p *PostgresKV) Set(ctx context.Context, key, value string) error {
	entry := StorageEntry{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	return p.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&entry).Error
}

// Ping checks the database connection.
func (p *PostgresKV) Ping(ctx context.Context) error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the connection pool.
func (p *PostgresKV) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
