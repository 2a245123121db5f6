package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/colonyops/chime/internal/profiler"
	"github.com/colonyops/chime/internal/reminder"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"
)

type DaemonCmd struct {
	flags *Flags
	app   *reminder.App

	pprofAddr string
}

// NewDaemonCmd creates a new daemon command.
func NewDaemonCmd(flags *Flags, app *reminder.App) *DaemonCmd {
	return &DaemonCmd{flags: flags, app: app}
}

// Register adds the daemon command to the application.
func (cmd *DaemonCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "daemon",
		Usage:     "Run the alarm scheduler in the foreground",
		UsageText: "chime daemon",
		Description: `Runs the wake timer and posts notifications when alarms fire.

On start the daemon resumes jobs interrupted by a previous shutdown, restores
the schedule and imports a legacy tasks.json if one is present. The config
file is watched and reloaded on change. Stop with SIGINT or SIGTERM.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "pprof",
				Usage:       "serve pprof endpoints on this address (e.g. localhost:6060)",
				Sources:     cli.EnvVars("CHIME_PPROF"),
				Destination: &cmd.pprofAddr,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *DaemonCmd) run(ctx context.Context, c *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cmd.pprofAddr != "" {
		prof := profiler.New(cmd.pprofAddr, log.Logger)
		go func() {
			if err := prof.Run(ctx); err != nil {
				log.Error().Err(err).Msg("profiler stopped")
			}
		}()
	}

	return cmd.app.Serve(ctx, cmd.flags.ConfigPath)
}
