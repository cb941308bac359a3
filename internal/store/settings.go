package store

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Well-known setting names.
const (
	SettingPreferences    = "preferences"
	SettingCurrentUI      = "currentUI"
	SettingActiveProvider = "activeProvider"
)

var ErrSettingNotFound = errors.New("store: setting not found")

// Preferences are plain, unencrypted user preferences, persisted verbatim.
type Preferences struct {
	Theme           string `json:"theme"`
	FontSize        string `json:"fontSize"`
	StreamResponses bool   `json:"streamResponses"`
}

func DefaultPreferences() Preferences {
	return Preferences{Theme: "light", FontSize: "medium", StreamResponses: true}
}

// Settings is the JSON-valued KV over the config table.
type Settings struct {
	db *gorm.DB
}

func NewSettings(db *gorm.DB) *Settings {
	return &Settings{db: db}
}

func (s *Settings) Put(ctx context.Context, name string, value any) error {
	b, err := json.Marshal(value)
	if err != nil {
		return errors.Wrapf(err, "store: marshal setting %s", name)
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&Setting{Name: name, Value: string(b)}).Error
}

func (s *Settings) Get(ctx context.Context, name string, out any) error {
	var row Setting
	if err := s.db.WithContext(ctx).First(&row, "name = ?", name).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSettingNotFound
		}
		return err
	}
	return errors.Wrapf(json.Unmarshal([]byte(row.Value), out), "store: unmarshal setting %s", name)
}

func (s *Settings) Delete(ctx context.Context, name string) error {
	return s.db.WithContext(ctx).Delete(&Setting{}, "name = ?", name).Error
}

// GetPreferences returns persisted preferences, falling back to defaults
// when none were saved yet.
func (s *Settings) GetPreferences(ctx context.Context) (Preferences, error) {
	p := DefaultPreferences()
	err := s.Get(ctx, SettingPreferences, &p)
	if errors.Is(err, ErrSettingNotFound) {
		return DefaultPreferences(), nil
	}
	if err != nil {
		return Preferences{}, err
	}
	return p, nil
}
