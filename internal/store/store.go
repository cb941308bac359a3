// Package store owns the local persistent layer: a single sqlite file holding
// conversations, messages, the settings table and encrypted provider records.
package store

import (
	"time"

	"github.com/glebarez/sqlite"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Setting is one row of the config table: a named JSON value.
type Setting struct {
	Name      string `gorm:"primaryKey;type:varchar(64)"`
	Value     string `gorm:"type:text;not null"`
	UpdatedAt time.Time
}

func (Setting) TableName() string { return "config" }

// ProviderCredential is an encrypted API key at rest. Ciphertext and IV come
// straight from the vault; plaintext never touches this table.
type ProviderCredential struct {
	Name       string    `gorm:"primaryKey;type:varchar(32)" json:"providerName"`
	Ciphertext string    `gorm:"type:text;not null" json:"ciphertext"`
	IV         string    `gorm:"type:varchar(64);not null" json:"iv"`
	AddedAt    time.Time `gorm:"not null" json:"addedAt"`
}

func (ProviderCredential) TableName() string { return "providers" }

// Open opens (or creates) the sqlite store at path and migrates the store's
// own tables plus any extra models the caller owns.
func Open(path string, extra ...any) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(err, "store: open")
	}
	models := append([]any{&Setting{}, &ProviderCredential{}}, extra...)
	if err := db.AutoMigrate(models...); err != nil {
		return nil, errors.Wrap(err, "store: migrate")
	}
	return db, nil
}
