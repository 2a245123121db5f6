// Package logging holds zerolog helpers shared by chime components.
package logging

import (
	"github.com/rs/zerolog"
)

// ComponentKey is the field naming the subsystem a log line came from.
const ComponentKey = "component"

// Component derives a logger tagged with the component name.
func Component(parent zerolog.Logger, name string) zerolog.Logger {
	return parent.With().Str(ComponentKey, name).Logger()
}
