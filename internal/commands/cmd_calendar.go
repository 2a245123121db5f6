package commands

import (
	"context"
	"fmt"

	"github.com/colonyops/chime/internal/core/calendar"
	"github.com/colonyops/chime/internal/reminder"
	"github.com/urfave/cli/v3"
)

type CalendarCmd struct {
	flags *Flags
	app   *reminder.App

	jsonOutput bool
}

// NewCalendarCmd creates a new calendar command.
func NewCalendarCmd(flags *Flags, app *reminder.App) *CalendarCmd {
	return &CalendarCmd{flags: flags, app: app}
}

// Register adds the calendar command to the application.
func (cmd *CalendarCmd) Register(app *cli.Command) *cli.Command {
	jsonFlag := &cli.BoolFlag{
		Name:        "json",
		Usage:       "output as JSON",
		Destination: &cmd.jsonOutput,
	}

	app.Commands = append(app.Commands, &cli.Command{
		Name:  "calendar",
		Usage: "Manage calendar events mirrored from tasks",
		Commands: []*cli.Command{
			{
				Name:      "sync",
				Usage:     "Mirror tasks into calendar events",
				UsageText: "chime calendar sync [--json]",
				Description: `Creates or updates one event per open task with a due date when
calendar.create_events_for_tasks is enabled, and removes events of completed
tasks when calendar.delete_events_on_completion is enabled.`,
				Flags:  []cli.Flag{jsonFlag},
				Action: cmd.runSync,
			},
			{
				Name:      "list",
				Aliases:   []string{"ls"},
				Usage:     "List calendar events",
				UsageText: "chime calendar list [--json]",
				Flags:     []cli.Flag{jsonFlag},
				Action:    cmd.runList,
			},
		},
	})

	return app
}

func (cmd *CalendarCmd) runSync(ctx context.Context, c *cli.Command) error {
	h, err := cmd.app.SyncCalendar(ctx)
	if err != nil {
		return err
	}

	res, err := awaitOutput[reminder.CalendarSyncResult](ctx, h)
	if err != nil {
		return err
	}

	if cmd.jsonOutput {
		return writeJSON(c, res)
	}

	_, _ = fmt.Fprintf(c.Root().Writer, "upserted %d event(s), deleted %d\n", res.Upserted, res.Deleted)
	return nil
}

func (cmd *CalendarCmd) runList(ctx context.Context, c *cli.Command) error {
	events, err := cmd.app.Events.List(ctx)
	if err != nil {
		return fmt.Errorf("list events: %w", err)
	}

	if cmd.jsonOutput {
		if events == nil {
			events = []calendar.Event{}
		}
		return writeJSON(c, events)
	}

	if len(events) == 0 {
		_, _ = fmt.Fprintln(c.Root().ErrWriter, "No calendar events")
		return nil
	}

	w := newTable(c)
	_, _ = fmt.Fprintln(w, "STARTS\tTASK\tTITLE")
	for _, e := range events {
		starts := formatTime(e.StartsAt)
		if e.AllDay {
			starts = e.StartsAt.UTC().Format("2006-01-02")
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", starts, e.TaskID, e.Title)
	}
	return w.Flush()
}
