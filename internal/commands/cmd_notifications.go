package commands

import (
	"context"
	"fmt"

	"github.com/colonyops/chime/internal/core/notify"
	"github.com/colonyops/chime/internal/reminder"
	"github.com/urfave/cli/v3"
)

type NotificationsCmd struct {
	flags *Flags
	app   *reminder.App

	jsonOutput bool
}

// NewNotificationsCmd creates a new notifications command.
func NewNotificationsCmd(flags *Flags, app *reminder.App) *NotificationsCmd {
	return &NotificationsCmd{flags: flags, app: app}
}

// Register adds the notifications command to the application.
func (cmd *NotificationsCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:    "notifications",
		Aliases: []string{"notif"},
		Usage:   "Inspect posted notifications",
		Commands: []*cli.Command{
			{
				Name:      "list",
				Aliases:   []string{"ls"},
				Usage:     "List notifications currently shown",
				UsageText: "chime notifications list [--json]",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:        "json",
						Usage:       "output as JSON",
						Destination: &cmd.jsonOutput,
					},
				},
				Action: cmd.runList,
			},
		},
	})

	return app
}

func (cmd *NotificationsCmd) runList(ctx context.Context, c *cli.Command) error {
	shown, err := cmd.app.Notifications.List(ctx)
	if err != nil {
		return fmt.Errorf("list notifications: %w", err)
	}

	if cmd.jsonOutput {
		if shown == nil {
			shown = []notify.Notification{}
		}
		return writeJSON(c, shown)
	}

	if len(shown) == 0 {
		_, _ = fmt.Fprintln(c.Root().ErrWriter, "No notifications shown")
		return nil
	}

	w := newTable(c)
	_, _ = fmt.Fprintln(w, "POSTED\tTASK\tALARM\tTITLE\tBODY")
	for _, n := range shown {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", formatTime(n.PostedAt), n.TaskID, n.AlarmID, n.Title, n.Body)
	}
	return w.Flush()
}
