package commands

import (
	"context"
	"fmt"

	"github.com/colonyops/chime/internal/reminder"
	"github.com/urfave/cli/v3"
)

type MigrateCmd struct {
	flags *Flags
	app   *reminder.App
}

// NewMigrateCmd creates a new migrate command.
func NewMigrateCmd(flags *Flags, app *reminder.App) *MigrateCmd {
	return &MigrateCmd{flags: flags, app: app}
}

// Register adds the migrate command to the application.
func (cmd *MigrateCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "migrate",
		Usage:     "Import the legacy tasks.json into the database",
		UsageText: "chime migrate",
		Description: `Imports <data-dir>/tasks.json and renames it to tasks.json.migrated.

The daemon runs this on start; use the command to migrate without starting
it. Nothing happens when there is no legacy file.`,
		Action: cmd.run,
	})

	return app
}

func (cmd *MigrateCmd) run(ctx context.Context, c *cli.Command) error {
	h, err := cmd.app.MigrateLegacy(ctx)
	if err != nil {
		return err
	}

	res, err := awaitOutput[reminder.ImportResult](ctx, h)
	if err != nil {
		return err
	}

	if res.Skipped {
		_, _ = fmt.Fprintf(c.Root().Writer, "no legacy file at %s\n", cmd.app.Config().LegacyTasksPath())
		return nil
	}

	_, _ = fmt.Fprintf(c.Root().Writer, "migrated %d task(s)\n", len(res.Imported))
	return nil
}
