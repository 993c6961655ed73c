package logger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Migrate adapts a slog.Logger to the Printf/Verbose logger expected by
// golang-migrate.
type Migrate struct {
	log     *slog.Logger
	verbose bool
}

// NewMigrate tags every line with the migrate component. Verbose output is
// emitted at debug level.
func NewMigrate(log *slog.Logger) *Migrate {
	if log == nil {
		log = slog.Default()
	}
	return &Migrate{
		log:     log.With("component", "migrate"),
		verbose: log.Enabled(context.Background(), slog.LevelDebug),
	}
}

// Printf implements migrate.Logger.
func (m *Migrate) Printf(format string, v ...interface{}) {
	m.log.Info(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

// Verbose implements migrate.Logger.
func (m *Migrate) Verbose() bool {
	return m.verbose
}
