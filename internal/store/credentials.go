package store

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Credentials is the repo over the providers table.
type Credentials struct {
	db *gorm.DB
}

func NewCredentials(db *gorm.DB) *Credentials {
	return &Credentials{db: db}
}

// Put creates or overwrites the record for cred.Name.
func (c *Credentials) Put(ctx context.Context, cred *ProviderCredential) error {
	return c.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(cred).Error
}

func (c *Credentials) Get(ctx context.Context, name string) (*ProviderCredential, error) {
	var cred ProviderCredential
	if err := c.db.WithContext(ctx).First(&cred, "name = ?", name).Error; err != nil {
		return nil, err
	}
	return &cred, nil
}

func (c *Credentials) List(ctx context.Context) ([]ProviderCredential, error) {
	var creds []ProviderCredential
	if err := c.db.WithContext(ctx).Order("name ASC").Find(&creds).Error; err != nil {
		return nil, err
	}
	return creds, nil
}

func (c *Credentials) Delete(ctx context.Context, name string) error {
	return c.db.WithContext(ctx).Delete(&ProviderCredential{}, "name = ?", name).Error
}
