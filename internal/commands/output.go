package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/colonyops/chime/internal/core/jobs"
	"github.com/colonyops/chime/pkg/iojson"
	"github.com/urfave/cli/v3"
)

const timeLayout = "2006-01-02 15:04"

func writeJSON(c *cli.Command, obj any) error {
	return iojson.WriteWith(c.Root().Writer, c.Root().ErrWriter, obj)
}

func newTable(c *cli.Command) *tabwriter.Writer {
	return tabwriter.NewWriter(c.Root().Writer, 0, 0, 2, ' ', 0)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(timeLayout)
}

// awaitOutput waits for h and decodes its output into T.
func awaitOutput[T any](ctx context.Context, h *jobs.Handle) (T, error) {
	var out T
	if err := h.Wait(ctx); err != nil {
		return out, fmt.Errorf("%s job: %w", h.Kind, err)
	}
	if raw := h.Output(); len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return out, fmt.Errorf("decode %s output: %w", h.Kind, err)
		}
	}
	return out, nil
}
