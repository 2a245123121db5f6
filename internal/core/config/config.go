// Package config handles configuration loading and validation for chime.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/colonyops/chime/internal/core/alarm"
	"gopkg.in/yaml.v3"
)

// LegacyTasksFile is the name of the pre-database task file in the data directory.
const LegacyTasksFile = "tasks.json"

// Config holds the application configuration.
type Config struct {
	Reminders     RemindersConfig     `yaml:"reminders"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Jobs          JobsConfig          `yaml:"jobs"`
	Timer         TimerConfig         `yaml:"timer"`
	Calendar      CalendarConfig      `yaml:"calendar"`
	DataDir       string              `yaml:"-"` // set by caller, not from config file
}

// RemindersConfig controls which alarms are produced and how they are handled.
type RemindersConfig struct {
	AutoReminders       bool     `yaml:"auto_reminders"`        // implicit alarms for due/start dates
	DefaultReminderTime string   `yaml:"default_reminder_time"` // HH:MM for all-day dates
	ImplicitLeadMinutes int      `yaml:"implicit_lead_minutes"`
	GraceMinutes        int      `yaml:"grace_minutes"` // how late a missed alarm may still fire
	SnoozeShortMinutes  uint     `yaml:"snooze_short_minutes"`
	SnoozeLongMinutes   uint     `yaml:"snooze_long_minutes"`
	Timezone            string   `yaml:"timezone"` // IANA name; empty = local
	ExcludedCalendars   []string `yaml:"excluded_calendars"`
}

// NotificationsConfig controls the notification surface.
type NotificationsConfig struct {
	Enabled bool `yaml:"enabled"` // false behaves like revoked permission
}

// JobsConfig controls background job retries and retention.
type JobsConfig struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	PruneAfter     time.Duration `yaml:"prune_after"`
}

// TimerConfig controls the wake timer.
type TimerConfig struct {
	MaxSleep time.Duration `yaml:"max_sleep"` // upper bound between timer re-checks
}

// CalendarConfig controls peripheral calendar event sync.
type CalendarConfig struct {
	CreateEventsForTasks     bool `yaml:"create_events_for_tasks"`
	DeleteEventsOnCompletion bool `yaml:"delete_events_on_completion"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Reminders: RemindersConfig{
			AutoReminders:       true,
			DefaultReminderTime: alarm.DefaultReminderTime.String(),
			GraceMinutes:        60,
			SnoozeShortMinutes:  60,
			SnoozeLongMinutes:   1440,
		},
		Notifications: NotificationsConfig{
			Enabled: true,
		},
		Jobs: JobsConfig{
			MaxAttempts:    5,
			InitialBackoff: time.Second,
			MaxBackoff:     time.Minute,
			PruneAfter:     7 * 24 * time.Hour,
		},
		Timer: TimerConfig{
			MaxSleep: time.Minute,
		},
	}
}

// Load reads configuration from the given path and sets the data directory.
// If configPath is empty or doesn't exist, returns defaults with the provided dataDir.
func Load(configPath, dataDir string) (*Config, error) {
	cfg := DefaultConfig()
	cfg.DataDir = dataDir

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			data, err := os.ReadFile(configPath)
			if err != nil {
				return nil, fmt.Errorf("read config file: %w", err)
			}

			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config file: %w", err)
			}

			// Re-set dataDir since Unmarshal may have cleared it
			cfg.DataDir = dataDir
		}
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets default values for options left at zero where zero is
// not meaningful. grace_minutes: 0 is kept and means only alarms due exactly
// now fire.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()
	if c.Reminders.DefaultReminderTime == "" {
		c.Reminders.DefaultReminderTime = defaults.Reminders.DefaultReminderTime
	}
	if c.Reminders.SnoozeShortMinutes == 0 {
		c.Reminders.SnoozeShortMinutes = defaults.Reminders.SnoozeShortMinutes
	}
	if c.Reminders.SnoozeLongMinutes == 0 {
		c.Reminders.SnoozeLongMinutes = defaults.Reminders.SnoozeLongMinutes
	}
	if c.Jobs.MaxAttempts == 0 {
		c.Jobs.MaxAttempts = defaults.Jobs.MaxAttempts
	}
	if c.Jobs.InitialBackoff == 0 {
		c.Jobs.InitialBackoff = defaults.Jobs.InitialBackoff
	}
	if c.Jobs.MaxBackoff == 0 {
		c.Jobs.MaxBackoff = defaults.Jobs.MaxBackoff
	}
	if c.Jobs.PruneAfter == 0 {
		c.Jobs.PruneAfter = defaults.Jobs.PruneAfter
	}
	if c.Timer.MaxSleep == 0 {
		c.Timer.MaxSleep = defaults.Timer.MaxSleep
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data directory cannot be empty")
	}

	if c.Reminders.GraceMinutes < 0 {
		return fmt.Errorf("reminders.grace_minutes cannot be negative")
	}

	if c.Reminders.ImplicitLeadMinutes < 0 {
		return fmt.Errorf("reminders.implicit_lead_minutes cannot be negative")
	}

	if c.Jobs.MaxAttempts < 1 {
		return fmt.Errorf("jobs.max_attempts must be at least 1")
	}

	if c.Jobs.MaxBackoff < c.Jobs.InitialBackoff {
		return fmt.Errorf("jobs.max_backoff must not be less than jobs.initial_backoff")
	}

	if c.Timer.MaxSleep < time.Second {
		return fmt.Errorf("timer.max_sleep must be at least 1s")
	}

	return nil
}

// Grace is the window within which a missed alarm still fires.
func (c *Config) Grace() time.Duration {
	return time.Duration(c.Reminders.GraceMinutes) * time.Minute
}

// Location returns the configured timezone, falling back to local time when
// unset or unknown.
func (c *Config) Location() *time.Location {
	if c.Reminders.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Reminders.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// AlarmOptions translates the reminders section into alarm computation
// options. An unparsable reminder time falls back to 09:00.
func (c *Config) AlarmOptions() alarm.Options {
	def, err := alarm.ParseTimeOfDay(c.Reminders.DefaultReminderTime)
	if err != nil {
		def = alarm.DefaultReminderTime
	}

	opts := alarm.Options{
		AutoReminders: c.Reminders.AutoReminders,
		DefaultTime:   def,
		ImplicitLead:  time.Duration(c.Reminders.ImplicitLeadMinutes) * time.Minute,
		Location:      c.Location(),
	}

	if patterns := c.Reminders.ExcludedCalendars; len(patterns) > 0 {
		opts.Excluded = func(calendar string) bool {
			return CalendarExcluded(patterns, calendar)
		}
	}

	return opts
}

// CalendarExcluded reports whether calendar matches any glob pattern.
// Invalid patterns never match.
func CalendarExcluded(patterns []string, calendar string) bool {
	for _, p := range patterns {
		if ok, err := doublestar.Match(p, calendar); err == nil && ok {
			return true
		}
	}
	return false
}

// DatabaseDir is the directory holding the SQLite database.
func (c *Config) DatabaseDir() string {
	return c.DataDir
}

// LegacyTasksPath is the location of the pre-database task file.
func (c *Config) LegacyTasksPath() string {
	return filepath.Join(c.DataDir, LegacyTasksFile)
}
