package config

import (
	"fmt"
	"os"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/colonyops/chime/internal/core/alarm"
	"github.com/hay-kot/criterio"
)

// ValidationWarning represents a non-fatal configuration issue.
type ValidationWarning struct {
	Category string `json:"category"`
	Item     string `json:"item,omitempty"`
	Message  string `json:"message"`
}

// ValidateDeep performs comprehensive validation of the configuration including
// timezone lookup, time formats, glob patterns and file accessibility. The
// configPath argument specifies the config file location to validate (empty
// string skips config file check). This calls Validate() first for basic
// structural validation.
func (c *Config) ValidateDeep(configPath string) error {
	if err := c.Validate(); err != nil {
		return err
	}

	return criterio.ValidateStruct(
		c.validateFileAccess(configPath),
		c.validateReminders(),
	)
}

// Warnings returns non-fatal configuration issues.
func (c *Config) Warnings() []ValidationWarning {
	var warnings []ValidationWarning

	if !c.Notifications.Enabled {
		warnings = append(warnings, ValidationWarning{
			Category: "Notifications",
			Message:  "notifications are disabled; alarms will be processed without alerts",
		})
	}

	if c.Reminders.SnoozeLongMinutes < c.Reminders.SnoozeShortMinutes {
		warnings = append(warnings, ValidationWarning{
			Category: "Reminders",
			Item:     "snooze_long_minutes",
			Message:  "long snooze is shorter than short snooze",
		})
	}

	if c.Calendar.DeleteEventsOnCompletion && !c.Calendar.CreateEventsForTasks {
		warnings = append(warnings, ValidationWarning{
			Category: "Calendar",
			Item:     "delete_events_on_completion",
			Message:  "has no effect while create_events_for_tasks is disabled",
		})
	}

	return warnings
}

func (c *Config) validateFileAccess(configPath string) error {
	return criterio.ValidateStruct(
		validateConfigFile(configPath),
		criterio.Run("data_dir", c.DataDir, isDirectoryOrNotExist),
	)
}

func (c *Config) validateReminders() error {
	var errs criterio.FieldErrorsBuilder

	if _, err := alarm.ParseTimeOfDay(c.Reminders.DefaultReminderTime); err != nil {
		errs = errs.Append("reminders.default_reminder_time", err)
	}

	if c.Reminders.Timezone != "" {
		if _, err := time.LoadLocation(c.Reminders.Timezone); err != nil {
			errs = errs.Append("reminders.timezone", fmt.Errorf("unknown timezone %q", c.Reminders.Timezone))
		}
	}

	for i, p := range c.Reminders.ExcludedCalendars {
		if !doublestar.ValidatePattern(p) {
			errs = errs.Append(fmt.Sprintf("reminders.excluded_calendars[%d]", i), fmt.Errorf("invalid glob %q", p))
		}
	}

	return errs.ToError()
}

func validateConfigFile(configPath string) error {
	if configPath == "" {
		return nil
	}

	info, err := os.Stat(configPath)
	if os.IsNotExist(err) {
		return nil // not found is fine, using defaults
	}
	if err != nil {
		return criterio.NewFieldErrors("config_file", fmt.Errorf("cannot access: %w", err))
	}
	if info.IsDir() {
		return criterio.NewFieldErrors("config_file", fmt.Errorf("%s is a directory, not a file", configPath))
	}
	return nil
}

// isDirectoryOrNotExist validates that a path is a directory or doesn't exist.
func isDirectoryOrNotExist(path string) error {
	if path == "" {
		return nil
	}
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil // will be created
	}
	if err != nil {
		return fmt.Errorf("cannot access: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("exists but is not a directory")
	}
	return nil
}
