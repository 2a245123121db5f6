package commands

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/colonyops/chime/internal/core/jobs"
	"github.com/colonyops/chime/internal/core/styles"
	"github.com/colonyops/chime/internal/reminder"
	"github.com/urfave/cli/v3"
)

type StatusCmd struct {
	flags *Flags
	app   *reminder.App

	jsonOutput bool
}

// NewStatusCmd creates a new status command.
func NewStatusCmd(flags *Flags, app *reminder.App) *StatusCmd {
	return &StatusCmd{flags: flags, app: app}
}

// Register adds the status command to the application.
func (cmd *StatusCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "status",
		Usage:     "Summarise the schedule, notifications and jobs",
		UsageText: "chime status [--json]",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "output as JSON",
				Destination: &cmd.jsonOutput,
			},
		},
		Action: cmd.run,
	})

	return app
}

type statusJSON struct {
	Tasks          int     `json:"tasks"`
	Pending        int     `json:"pending_alarms"`
	Firing         int     `json:"firing_alarms"`
	NextAlarm      *string `json:"next_alarm"`
	TimerArmed     *string `json:"timer_armed"`
	LastWake       *string `json:"last_wake"`
	Notifications  int     `json:"notifications"`
	UnfinishedJobs int     `json:"unfinished_jobs"`
	FailedJobs     int     `json:"failed_jobs"`
	AlertsEnabled  bool    `json:"alerts_enabled"`
}

func (cmd *StatusCmd) run(ctx context.Context, c *cli.Command) error {
	st, err := cmd.collect(ctx)
	if err != nil {
		return err
	}

	if cmd.jsonOutput {
		return writeJSON(c, st)
	}

	cmd.outputText(c.Root().Writer, st)
	return nil
}

func (cmd *StatusCmd) collect(ctx context.Context) (statusJSON, error) {
	app := cmd.app
	if err := app.Tasks.Load(ctx); err != nil {
		return statusJSON{}, fmt.Errorf("load tasks: %w", err)
	}

	tasks, err := app.Tasks.List(ctx)
	if err != nil {
		return statusJSON{}, err
	}
	pending, err := app.Tasks.Pending(ctx)
	if err != nil {
		return statusJSON{}, err
	}
	firing, err := app.Tasks.FiringAlarms(ctx, app.Config().Grace())
	if err != nil {
		return statusJSON{}, err
	}
	next, _, err := app.Scheduler.ComputeNextWake(ctx)
	if err != nil {
		return statusJSON{}, err
	}
	armed, _, err := app.Timer.Armed(ctx)
	if err != nil {
		return statusJSON{}, err
	}
	lastWake, _, err := app.Timer.LastFired(ctx)
	if err != nil {
		return statusJSON{}, err
	}
	shown, err := app.Notifications.List(ctx)
	if err != nil {
		return statusJSON{}, err
	}
	unfinished, err := app.Journal.Unfinished(ctx)
	if err != nil {
		return statusJSON{}, err
	}
	recent, err := app.Journal.Recent(ctx, 50)
	if err != nil {
		return statusJSON{}, err
	}

	failed := 0
	for _, r := range recent {
		if r.State == jobs.StateFailed {
			failed++
		}
	}

	return statusJSON{
		Tasks:          len(tasks),
		Pending:        len(pending),
		Firing:         len(firing),
		NextAlarm:      rfc3339(next),
		TimerArmed:     rfc3339(armed),
		LastWake:       rfc3339(lastWake),
		Notifications:  len(shown),
		UnfinishedJobs: len(unfinished),
		FailedJobs:     failed,
		AlertsEnabled:  app.Config().Notifications.Enabled,
	}, nil
}

func (cmd *StatusCmd) outputText(w io.Writer, st statusJSON) {
	divider := styles.TextMutedStyle.Render(strings.Repeat("─", 40))
	label := func(s string) string { return styles.TextMutedStyle.Render(fmt.Sprintf("%-16s", s)) }

	_, _ = fmt.Fprintln(w, styles.TextPrimaryBoldStyle.Render("Chime Status"))
	_, _ = fmt.Fprintln(w, divider)

	_, _ = fmt.Fprintf(w, "%s%d\n", label("Tasks"), st.Tasks)
	_, _ = fmt.Fprintf(w, "%s%d\n", label("Pending alarms"), st.Pending)

	firing := fmt.Sprintf("%d", st.Firing)
	if st.Firing > 0 {
		firing = styles.TextWarningStyle.Render(firing)
	}
	_, _ = fmt.Fprintf(w, "%s%s\n", label("Firing"), firing)

	_, _ = fmt.Fprintf(w, "%s%s\n", label("Next alarm"), formatRFC(st.NextAlarm))

	timer := formatRFC(st.TimerArmed)
	if !sameInstant(st.NextAlarm, st.TimerArmed) {
		timer = styles.TextWarningStyle.Render(timer + " (out of date, run 'chime refresh')")
	}
	_, _ = fmt.Fprintf(w, "%s%s\n", label("Timer"), timer)
	_, _ = fmt.Fprintf(w, "%s%s\n", label("Last wake"), formatRFC(st.LastWake))

	alerts := styles.TextSuccessStyle.Render("enabled")
	if !st.AlertsEnabled {
		alerts = styles.TextWarningStyle.Render("disabled")
	}
	_, _ = fmt.Fprintf(w, "%s%s, %d shown\n", label("Notifications"), alerts, st.Notifications)

	failed := fmt.Sprintf("%d failed", st.FailedJobs)
	if st.FailedJobs > 0 {
		failed = styles.TextErrorStyle.Render(failed)
	}
	_, _ = fmt.Fprintf(w, "%s%d unfinished, %s\n", label("Jobs"), st.UnfinishedJobs, failed)
}

func formatRFC(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

func sameInstant(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
