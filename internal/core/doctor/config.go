package doctor

import (
	"context"
	"errors"
	"os"

	"github.com/colonyops/chime/internal/core/config"
	"github.com/hay-kot/criterio"
)

// ConfigCheck runs deep configuration validation and reports warnings.
type ConfigCheck struct {
	cfg  *config.Config
	path string
}

// NewConfigCheck creates a new config check.
func NewConfigCheck(cfg *config.Config, path string) *ConfigCheck {
	return &ConfigCheck{cfg: cfg, path: path}
}

func (c *ConfigCheck) Name() string {
	return "Config"
}

func (c *ConfigCheck) Run(_ context.Context) Result {
	result := Result{Name: c.Name()}

	if err := c.cfg.ValidateDeep(c.path); err != nil {
		var fieldErrs criterio.FieldErrors
		if errors.As(err, &fieldErrs) {
			for _, fe := range fieldErrs {
				result.Items = append(result.Items, fail(fe.Field, fe.Err.Error()))
			}
		} else {
			result.Items = append(result.Items, fail("config", err.Error()))
		}
	} else {
		result.Items = append(result.Items, pass("Validation", c.path))
	}

	for _, w := range c.cfg.Warnings() {
		label := w.Category
		if w.Item != "" {
			label += "." + w.Item
		}
		result.Items = append(result.Items, warn(label, w.Message))
	}

	return result
}

// LegacyFileCheck warns about a legacy task file that has not been migrated.
type LegacyFileCheck struct {
	path string
}

// NewLegacyFileCheck creates a new legacy file check.
func NewLegacyFileCheck(path string) *LegacyFileCheck {
	return &LegacyFileCheck{path: path}
}

func (c *LegacyFileCheck) Name() string {
	return "Legacy data"
}

func (c *LegacyFileCheck) Run(_ context.Context) Result {
	result := Result{Name: c.Name()}

	_, err := os.Stat(c.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		result.Items = append(result.Items, pass("tasks.json", "nothing to migrate"))
	case err != nil:
		result.Items = append(result.Items, fail("tasks.json", err.Error()))
	default:
		item := warn("tasks.json", c.path+" has not been migrated")
		item.Fixable = true
		result.Items = append(result.Items, item)
	}

	return result
}
