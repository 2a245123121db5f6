package reminder

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/colonyops/chime/internal/core/alarm"
	"github.com/colonyops/chime/internal/core/clock"
	"github.com/colonyops/chime/internal/core/logging"
	"github.com/colonyops/chime/pkg/iojson"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// TaskWriter stores tasks.
type TaskWriter interface {
	Upsert(ctx context.Context, t alarm.Task) (alarm.Task, error)
}

// ImportResult reports what an import wrote.
type ImportResult struct {
	Imported []string `json:"imported"`
	Skipped  bool     `json:"skipped,omitempty"`
}

// Importer writes TaskFile documents into the task store.
type Importer struct {
	store TaskWriter
	clock clock.Clock
	log   zerolog.Logger
}

// NewImporter creates an importer.
func NewImporter(store TaskWriter, clk clock.Clock, log zerolog.Logger) *Importer {
	return &Importer{store: store, clock: clk, log: logging.Component(log, "import")}
}

// Import upserts every task of file. Entries are validated before anything
// is written.
func (im *Importer) Import(ctx context.Context, file TaskFile) (ImportResult, error) {
	now := im.clock.Now()

	tasks := make([]alarm.Task, 0, len(file.Tasks))
	for i, e := range file.Tasks {
		t, err := e.Task(now)
		if err != nil {
			var ve *ValidationError
			if errors.As(err, &ve) {
				ve.Field = fmt.Sprintf("tasks[%d].%s", i, ve.Field)
			}
			return ImportResult{}, err
		}
		tasks = append(tasks, t)
	}

	result := ImportResult{Imported: make([]string, 0, len(tasks))}
	for _, t := range tasks {
		saved, err := im.store.Upsert(ctx, t)
		if err != nil {
			return result, fmt.Errorf("import %q: %w", t.Title, err)
		}
		result.Imported = append(result.Imported, saved.ID)
	}

	im.log.Info().Int("tasks", len(result.Imported)).Msg("tasks imported")
	return result, nil
}

// MigrateLegacy imports the pre-database tasks file at path once. On success
// the file is renamed with a .migrated suffix; a missing file is skipped.
// Tasks without ids get ids written back before import so a retried
// migration does not duplicate them.
func (im *Importer) MigrateLegacy(ctx context.Context, path string) (ImportResult, error) {
	file, err := iojson.ReadFile[TaskFile](path)
	if errors.Is(err, os.ErrNotExist) {
		return ImportResult{Imported: []string{}, Skipped: true}, nil
	}
	if err != nil {
		var pathErr *fs.PathError
		if errors.As(err, &pathErr) {
			return ImportResult{}, err
		}
		return ImportResult{}, &ValidationError{Field: filepath.Base(path), Message: err.Error()}
	}

	if assignIDs(&file) {
		if err := iojson.WriteFile(path, file); err != nil {
			return ImportResult{}, fmt.Errorf("write task ids: %w", err)
		}
	}

	result, err := im.Import(ctx, file)
	if err != nil {
		return result, err
	}

	if err := os.Rename(path, path+".migrated"); err != nil {
		return result, fmt.Errorf("mark legacy file migrated: %w", err)
	}
	im.log.Info().Str("path", path).Msg("legacy tasks migrated")
	return result, nil
}

func assignIDs(file *TaskFile) bool {
	changed := false
	for i := range file.Tasks {
		if file.Tasks[i].ID == "" {
			file.Tasks[i].ID = uuid.NewString()
			changed = true
		}
		for j := range file.Tasks[i].Alarms {
			if file.Tasks[i].Alarms[j].ID == "" {
				file.Tasks[i].Alarms[j].ID = uuid.NewString()
				changed = true
			}
		}
	}
	return changed
}
