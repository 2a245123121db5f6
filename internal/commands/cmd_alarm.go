package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/colonyops/chime/internal/core/alarm"
	"github.com/colonyops/chime/internal/core/notify"
	"github.com/colonyops/chime/internal/reminder"
	"github.com/urfave/cli/v3"
)

type AlarmCmd struct {
	flags *Flags
	app   *reminder.App

	jsonOutput bool
	minutes    int
	long       bool
}

// NewAlarmCmd creates a new alarm command.
func NewAlarmCmd(flags *Flags, app *reminder.App) *AlarmCmd {
	return &AlarmCmd{flags: flags, app: app}
}

// Register adds the alarm command to the application.
func (cmd *AlarmCmd) Register(app *cli.Command) *cli.Command {
	jsonFlag := &cli.BoolFlag{
		Name:        "json",
		Usage:       "output as JSON",
		Destination: &cmd.jsonOutput,
	}

	app.Commands = append(app.Commands, &cli.Command{
		Name:  "alarm",
		Usage: "Inspect and respond to alarms",
		Commands: []*cli.Command{
			{
				Name:      "list",
				Aliases:   []string{"ls"},
				Usage:     "List pending alarms",
				UsageText: "chime alarm list [--json]",
				Flags:     []cli.Flag{jsonFlag},
				Action:    cmd.runList,
			},
			{
				Name:      "firing",
				Usage:     "List alarms that are due and within the grace window",
				UsageText: "chime alarm firing [--json]",
				Flags:     []cli.Flag{jsonFlag},
				Action:    cmd.runFiring,
			},
			{
				Name:      "next",
				Usage:     "Show the next wake-up time",
				UsageText: "chime alarm next [--json]",
				Flags:     []cli.Flag{jsonFlag},
				Action:    cmd.runNext,
			},
			{
				Name:      "snooze",
				Usage:     "Snooze an alarm",
				UsageText: "chime alarm snooze <task-id> <alarm-id> [--minutes N | --long]",
				Description: `Acknowledges the alarm and schedules a snooze alarm. Without --minutes the
configured short snooze is used; --long uses the configured long snooze.`,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:        "minutes",
						Aliases:     []string{"m"},
						Usage:       "snooze length in minutes",
						Destination: &cmd.minutes,
					},
					&cli.BoolFlag{
						Name:        "long",
						Usage:       "use the long snooze length",
						Destination: &cmd.long,
					},
				},
				Action: cmd.runSnooze,
			},
			{
				Name:      "dismiss",
				Usage:     "Dismiss an alarm",
				UsageText: "chime alarm dismiss <task-id> <alarm-id>",
				Action:    cmd.runDismiss,
			},
		},
	})

	return app
}

func (cmd *AlarmCmd) runList(ctx context.Context, c *cli.Command) error {
	if err := cmd.app.Tasks.Load(ctx); err != nil {
		return fmt.Errorf("load tasks: %w", err)
	}

	pending, err := cmd.app.Tasks.Pending(ctx)
	if err != nil {
		return fmt.Errorf("list pending alarms: %w", err)
	}

	return cmd.printAlarms(c, pending, "No pending alarms")
}

func (cmd *AlarmCmd) runFiring(ctx context.Context, c *cli.Command) error {
	if err := cmd.app.Tasks.Load(ctx); err != nil {
		return fmt.Errorf("load tasks: %w", err)
	}

	firing, err := cmd.app.Tasks.FiringAlarms(ctx, cmd.app.Config().Grace())
	if err != nil {
		return fmt.Errorf("list firing alarms: %w", err)
	}

	return cmd.printAlarms(c, firing, "No alarms firing")
}

func (cmd *AlarmCmd) printAlarms(c *cli.Command, alarms []alarm.Info, empty string) error {
	if cmd.jsonOutput {
		if alarms == nil {
			alarms = []alarm.Info{}
		}
		return writeJSON(c, alarms)
	}

	if len(alarms) == 0 {
		_, _ = fmt.Fprintln(c.Root().ErrWriter, empty)
		return nil
	}

	w := newTable(c)
	_, _ = fmt.Fprintln(w, "TRIGGER\tTASK\tALARM\tTITLE\tBODY")
	for _, a := range alarms {
		alarmID := a.AlarmID
		if a.Implicit {
			alarmID += " (implicit)"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", formatTime(a.TriggerAt), a.TaskID, alarmID, a.Title, a.Body)
	}
	return w.Flush()
}

func rfc3339(t time.Time) *string {
	if t.IsZero() {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

type nextJSON struct {
	NextAlarm *string `json:"next_alarm"`
	Armed     *string `json:"armed"`
}

func (cmd *AlarmCmd) runNext(ctx context.Context, c *cli.Command) error {
	if err := cmd.app.Tasks.Load(ctx); err != nil {
		return fmt.Errorf("load tasks: %w", err)
	}

	next, _, err := cmd.app.Scheduler.ComputeNextWake(ctx)
	if err != nil {
		return fmt.Errorf("compute next wake: %w", err)
	}

	armed, _, err := cmd.app.Timer.Armed(ctx)
	if err != nil {
		return fmt.Errorf("read timer: %w", err)
	}

	if cmd.jsonOutput {
		return writeJSON(c, nextJSON{NextAlarm: rfc3339(next), Armed: rfc3339(armed)})
	}

	out := c.Root().Writer
	_, _ = fmt.Fprintf(out, "next alarm: %s\n", formatTime(next))
	_, _ = fmt.Fprintf(out, "timer:      %s\n", formatTime(armed))
	return nil
}

func (cmd *AlarmCmd) runSnooze(ctx context.Context, c *cli.Command) error {
	if cmd.minutes < 0 {
		return fmt.Errorf("--minutes must be positive")
	}

	minutes := uint(cmd.minutes)
	if minutes == 0 {
		minutes = cmd.app.Config().Reminders.SnoozeShortMinutes
		if cmd.long {
			minutes = cmd.app.Config().Reminders.SnoozeLongMinutes
		}
	}

	return cmd.respond(ctx, c, notify.ActionSnooze, minutes)
}

func (cmd *AlarmCmd) runDismiss(ctx context.Context, c *cli.Command) error {
	return cmd.respond(ctx, c, notify.ActionDismiss, 0)
}

func (cmd *AlarmCmd) respond(ctx context.Context, c *cli.Command, action notify.ActionKind, minutes uint) error {
	taskID := strings.TrimSpace(c.Args().Get(0))
	alarmID := strings.TrimSpace(c.Args().Get(1))
	if taskID == "" || alarmID == "" {
		return fmt.Errorf("task id and alarm id are required")
	}

	h, err := cmd.app.OnNotificationAction(ctx, reminder.ActionPayload{
		Action:  action,
		TaskID:  taskID,
		AlarmID: alarmID,
		Minutes: minutes,
	})
	if err != nil {
		return err
	}

	res, err := awaitOutput[reminder.ActionResult](ctx, h)
	if err != nil {
		return err
	}

	out := c.Root().Writer
	if !res.Changed {
		_, _ = fmt.Fprintln(out, "nothing to do")
		return nil
	}

	switch action {
	case notify.ActionSnooze:
		_, _ = fmt.Fprintf(out, "snoozed for %dm\n", minutes)
	default:
		_, _ = fmt.Fprintln(out, "dismissed")
	}
	if res.NextWake != nil {
		_, _ = fmt.Fprintf(out, "next wake: %s\n", formatTime(*res.NextWake))
	}
	return nil
}
