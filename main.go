package main

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/colonyops/chime/internal/commands"
	"github.com/colonyops/chime/internal/core/clock"
	"github.com/colonyops/chime/internal/core/config"
	"github.com/colonyops/chime/internal/reminder"
	"github.com/colonyops/chime/pkg/logutils"
)

var (
	// Build information. Populated at build-time via -ldflags flag.
	// When installed via `go install module@version`, init() populates
	// these from runtime/debug.BuildInfo instead.
	version = "dev"
	commit  = "HEAD"
	date    = "now"
)

func build() string {
	v, c, d := version, commit, date

	// When installed via `go install module@version`, ldflags aren't set
	// so version remains "dev". Fall back to runtime/debug.BuildInfo which
	// Go populates automatically with the module version and VCS metadata.
	if v == "dev" {
		if info, ok := debug.ReadBuildInfo(); ok {
			if mv := info.Main.Version; mv != "" && mv != "(devel)" {
				v = mv
			}
			for _, s := range info.Settings {
				switch s.Key {
				case "vcs.revision":
					c = s.Value
				case "vcs.time":
					d = s.Value
				}
			}
		}
	}

	short := c
	if len(c) > 7 {
		short = c[:7]
	}

	return fmt.Sprintf("%s (%s) %s", v, short, d)
}

func main() {
	ctx := context.Background()

	var (
		logCloser func()
		chimeApp  = &reminder.App{}
		opened    bool
	)

	flags := &commands.Flags{}

	app := &cli.Command{
		Name:      "chime",
		Usage:     "Schedule task alarms and deliver reminder notifications",
		UsageText: "chime [global options] command [command options]",
		Description: `Chime wakes up when a task alarm is due and posts a notification that can be
snoozed or dismissed. Alarms come from explicit triggers on tasks and, when
enabled, from task due and start dates.

Run 'chime daemon' to keep the schedule running.
Run 'chime status' to see what is pending.`,
		Version: build(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "log level (debug, info, warn, error, fatal, panic)",
				Sources:     cli.EnvVars("CHIME_LOG_LEVEL"),
				Value:       "info",
				Destination: &flags.LogLevel,
			},
			&cli.StringFlag{
				Name:        "log-file",
				Usage:       "path to log file",
				Sources:     cli.EnvVars("CHIME_LOG_FILE"),
				Value:       commands.DefaultLogFile(),
				Destination: &flags.LogFile,
			},
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "path to config file",
				Sources:     cli.EnvVars("CHIME_CONFIG"),
				Value:       commands.DefaultConfigPath(),
				Destination: &flags.ConfigPath,
			},
			&cli.StringFlag{
				Name:        "data-dir",
				Usage:       "path to data directory",
				Sources:     cli.EnvVars("CHIME_DATA_DIR"),
				Value:       commands.DefaultDataDir(),
				Destination: &flags.DataDir,
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			logger, closer, err := logutils.New(flags.LogLevel, flags.LogFile)
			if err != nil {
				return ctx, fmt.Errorf("setup logger: %w", err)
			}
			log.Logger = logger
			logCloser = closer

			cfg, err := config.Load(flags.ConfigPath, flags.DataDir)
			if err != nil {
				return ctx, fmt.Errorf("load config: %w", err)
			}
			flags.Config = cfg

			// Populate the pre-allocated App (commands already hold a pointer to it)
			if err := chimeApp.Init(ctx, cfg, clock.Real{}, log.Logger); err != nil {
				return ctx, err
			}
			opened = true

			return ctx, nil
		},
		After: func(ctx context.Context, c *cli.Command) error {
			var closeErr error
			if opened {
				if closeErr = chimeApp.Close(); closeErr != nil {
					log.Error().Err(closeErr).Msg("failed to close database")
				}
			}

			if logCloser != nil {
				logCloser()
			}
			return closeErr
		},
	}

	app = commands.NewDaemonCmd(flags, chimeApp).Register(app)
	app = commands.NewTaskCmd(flags, chimeApp).Register(app)
	app = commands.NewAlarmCmd(flags, chimeApp).Register(app)
	app = commands.NewRefreshCmd(flags, chimeApp).Register(app)
	app = commands.NewJobsCmd(flags, chimeApp).Register(app)
	app = commands.NewNotificationsCmd(flags, chimeApp).Register(app)
	app = commands.NewCalendarCmd(flags, chimeApp).Register(app)
	app = commands.NewMigrateCmd(flags, chimeApp).Register(app)
	app = commands.NewStatusCmd(flags, chimeApp).Register(app)
	app = commands.NewDoctorCmd(flags, chimeApp).Register(app)
	app = commands.NewConfigValidateCmd(flags).Register(app)

	exitCode := 0
	runErr := app.Run(ctx, os.Args)
	if runErr != nil {
		fmt.Println()
		fmt.Println(runErr.Error())
		exitCode = 1
	}

	os.Exit(exitCode)
}
