package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const TypeSystemSetting = "system_setting"

var settingNamespace = uuid.MustParse("6f1d2c3e-8b7a-4e1f-9a0b-5c4d3e2f1a09")

// SettingID is the stable id for key, so a key can only be stored once.
func SettingID(key string) uuid.UUID {
	return uuid.NewSHA1(settingNamespace, []byte(key))
}

type SystemSetting struct {
	SettingID   uuid.UUID `json:"id"`
	Key         string    `json:"key" validate:"required,max=128,setting_key"`
	Value       string    `json:"value" validate:"max=4096"`
	Description string    `json:"description,omitempty" validate:"max=256"`
	ReadOnly    bool      `json:"read_only"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func NewSystemSetting(key, value string) SystemSetting {
	return SystemSetting{SettingID: SettingID(key), Key: key, Value: value}
}

func (s SystemSetting) ID() uuid.UUID { return s.SettingID }
func (SystemSetting) TypeTag() string { return TypeSystemSetting }

func (s SystemSetting) Validate() error {
	if err := validateStruct(s); err != nil {
		return err
	}
	if s.SettingID != SettingID(s.Key) {
		return fmt.Errorf("id does not match key %q", s.Key)
	}
	return nil
}

func (s SystemSetting) CheckDeletable() error {
	if s.ReadOnly {
		return fmt.Errorf("%w: %s", ErrReadOnlySetting, s.Key)
	}
	return nil
}
