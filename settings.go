package orchestrator

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Settings is the orchestrator's singleton, mutable configuration.
// It is loaded at the start of every fleet-wide operation.
type Settings struct {
	// MaxConcurrency bounds the number of tenants migrated in parallel.
	MaxConcurrency int `json:"maxConcurrency" validate:"min=1,max=256"`

	// DefaultModules are the modules migrated when the module scope is All.
	DefaultModules []string `json:"defaultModules" validate:"min=1,dive,required"`

	// AutoApplyMigrations applies all default modules when a tenant registers.
	AutoApplyMigrations bool `json:"autoApplyMigrations"`

	// MigrationTimeoutSeconds bounds a single tenant's migration run.
	MigrationTimeoutSeconds int `json:"migrationTimeoutSeconds" validate:"min=1,max=86400"`

	// EnableScheduledMigrations gates ScheduleMigration.
	EnableScheduledMigrations bool `json:"enableScheduledMigrations"`

	// DefaultScheduleTime is the UTC time of day ("HH:MM") used when a
	// schedule request carries no explicit time.
	DefaultScheduleTime string `json:"defaultScheduleTime" validate:"required,datetime=15:04"`

	NotifyOnMigrationComplete bool     `json:"notifyOnMigrationComplete"`
	NotifyOnMigrationFailure  bool     `json:"notifyOnMigrationFailure"`
	NotificationEmails        []string `json:"notificationEmails" validate:"dive,email"`
}

// DefaultSettings returns the settings used when none have been stored.
func DefaultSettings() Settings {
	return Settings{
		MaxConcurrency:            4,
		DefaultModules:            []string{"core"},
		AutoApplyMigrations:       false,
		MigrationTimeoutSeconds:   300,
		EnableScheduledMigrations: true,
		DefaultScheduleTime:       "02:00",
		NotifyOnMigrationComplete: true,
		NotifyOnMigrationFailure:  true,
	}
}

var settingsValidator = validator.New()

// Validate checks the settings' invariants.
// Returns an error wrapping ErrInvalidSettings describing every violated field.
func (s Settings) Validate() error {
	if err := settingsValidator.Struct(s); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	return nil
}

// MigrationTimeout returns the per-tenant migration timeout.
func (s Settings) MigrationTimeout() time.Duration {
	return time.Duration(s.MigrationTimeoutSeconds) * time.Second
}

// NextDefaultScheduleTime returns the first occurrence of DefaultScheduleTime
// strictly after now, in UTC.
func (s Settings) NextDefaultScheduleTime(now time.Time) (time.Time, error) {
	tod, err := time.Parse("15:04", s.DefaultScheduleTime)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: default schedule time %q", ErrInvalidSettings, s.DefaultScheduleTime)
	}

	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), tod.Hour(), tod.Minute(), 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next, nil
}
