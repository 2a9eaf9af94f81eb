package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const TypeDatabaseProfile = "database_profile"

// DatabaseProfile is one back-office database the terminal can connect to.
// Exactly one profile is expected to be the default.
type DatabaseProfile struct {
	ProfileID          uuid.UUID `json:"id"`
	Name               string    `json:"name" validate:"required,profile_name"`
	Server             string    `json:"server" validate:"required,max=253"`
	Port               int       `json:"port" validate:"omitempty,min=1,max=65535"`
	Database           string    `json:"database" validate:"required,max=128"`
	IntegratedSecurity bool      `json:"integrated_security"`
	Username           string    `json:"username,omitempty" validate:"required_if=IntegratedSecurity false,max=128"`
	Password           string    `json:"password,omitempty" validate:"max=256"`
	TimeoutSeconds     int       `json:"timeout_seconds,omitempty" validate:"omitempty,min=1,max=600"`
	IsDefault          bool      `json:"is_default"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func (p DatabaseProfile) ID() uuid.UUID   { return p.ProfileID }
func (DatabaseProfile) TypeTag() string   { return TypeDatabaseProfile }
func (p DatabaseProfile) Validate() error { return validateStruct(p) }

func (p DatabaseProfile) CheckDeletable() error {
	if p.IsDefault {
		return fmt.Errorf("%w: %s", ErrDefaultProfile, p.Name)
	}
	return nil
}

// ConnectionString renders the profile in ADO.NET key=value form. The
// password is included only when withPassword is set.
func (p DatabaseProfile) ConnectionString(withPassword bool) string {
	server := p.Server
	if p.Port > 0 {
		server = fmt.Sprintf("%s,%d", p.Server, p.Port)
	}
	parts := []string{
		"Server=" + server,
		"Database=" + p.Database,
	}
	if p.IntegratedSecurity {
		parts = append(parts, "Integrated Security=True")
	} else {
		parts = append(parts, "User Id="+p.Username)
		if withPassword {
			parts = append(parts, "Password="+p.Password)
		} else if p.Password != "" {
			parts = append(parts, "Password=********")
		}
	}
	if p.TimeoutSeconds > 0 {
		parts = append(parts, fmt.Sprintf("Connect Timeout=%d", p.TimeoutSeconds))
	}
	return strings.Join(parts, ";") + ";"
}
