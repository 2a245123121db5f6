package commands

import (
	"context"
	"fmt"

	"github.com/colonyops/chime/internal/reminder"
	"github.com/urfave/cli/v3"
)

type RefreshCmd struct {
	flags *Flags
	app   *reminder.App

	jsonOutput bool
}

// NewRefreshCmd creates a new refresh command.
func NewRefreshCmd(flags *Flags, app *reminder.App) *RefreshCmd {
	return &RefreshCmd{flags: flags, app: app}
}

// Register adds the refresh command to the application.
func (cmd *RefreshCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "refresh",
		Usage:     "Post firing alarms and re-arm the timer",
		UsageText: "chime refresh [--json]",
		Description: `Runs the same job the wake timer runs: every alarm within the grace window
is posted as a notification and the timer is armed for the next alarm.`,
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

func (cmd *RefreshCmd) run(ctx context.Context, c *cli.Command) error {
	h, err := cmd.app.Refresh(ctx)
	if err != nil {
		return err
	}

	res, err := awaitOutput[reminder.WakeResult](ctx, h)
	if err != nil {
		return err
	}

	if cmd.jsonOutput {
		return writeJSON(c, res)
	}

	out := c.Root().Writer
	_, _ = fmt.Fprintf(out, "fired %d alarm(s), posted %d notification(s)\n", len(res.Fired), res.Posted)
	if res.NextWake != nil {
		_, _ = fmt.Fprintf(out, "next wake: %s\n", formatTime(*res.NextWake))
	} else {
		_, _ = fmt.Fprintln(out, "no pending alarms")
	}
	return nil
}
