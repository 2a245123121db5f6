package commands

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/colonyops/chime/internal/core/doctor"
	"github.com/colonyops/chime/internal/core/jobs"
	"github.com/colonyops/chime/internal/core/styles"
	"github.com/colonyops/chime/internal/reminder"
	"github.com/urfave/cli/v3"
)

// staleJobAge is how long an unfinished job may go without an update before
// doctor reports it as interrupted.
const staleJobAge = 10 * time.Minute

type DoctorCmd struct {
	flags *Flags
	app   *reminder.App

	format  string
	autofix bool
}

// NewDoctorCmd creates a new doctor command.
func NewDoctorCmd(flags *Flags, app *reminder.App) *DoctorCmd {
	return &DoctorCmd{flags: flags, app: app}
}

// Register adds the doctor command to the application.
func (cmd *DoctorCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "doctor",
		Usage:     "Check the schedule, jobs and configuration for problems",
		UsageText: "chime doctor [--autofix] [--format text|json]",
		Description: `Runs health checks and reports the results.

With --autofix, a timer that does not match the next alarm is re-armed and a
legacy tasks.json is migrated, then the checks run again.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "format",
				Usage:       "output format (text, json)",
				Value:       "text",
				Destination: &cmd.format,
			},
			&cli.BoolFlag{
				Name:        "autofix",
				Usage:       "fix issues that can be fixed automatically",
				Destination: &cmd.autofix,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *DoctorCmd) checks() []doctor.Check {
	app := cmd.app
	return []doctor.Check{
		doctor.NewConfigCheck(app.Config(), cmd.flags.ConfigPath),
		doctor.NewScheduleCheck(app.Tasks, app.Timer),
		doctor.NewJobsCheck(app.Journal, app.Now, staleJobAge),
		doctor.NewLegacyFileCheck(app.Config().LegacyTasksPath()),
	}
}

func (cmd *DoctorCmd) run(ctx context.Context, c *cli.Command) error {
	results := doctor.RunAll(ctx, cmd.checks())

	if cmd.autofix && doctor.CountFixable(results) > 0 {
		if err := cmd.fix(ctx, results); err != nil {
			return err
		}
		results = doctor.RunAll(ctx, cmd.checks())
	}

	if cmd.format == "json" {
		passed, warned, failed := doctor.Summary(results)
		if err := writeJSON(c, doctorJSON{
			Results: results,
			Summary: summaryJSON{Passed: passed, Warned: warned, Failed: failed},
		}); err != nil {
			return err
		}
	} else {
		cmd.outputText(c.Root().Writer, results)
	}

	if _, _, failed := doctor.Summary(results); failed > 0 {
		return cli.Exit("", 1)
	}
	return nil
}

func (cmd *DoctorCmd) fix(ctx context.Context, results []doctor.Result) error {
	for _, r := range results {
		for _, item := range r.Items {
			if !item.Fixable || item.Status == doctor.StatusPass {
				continue
			}

			var err error
			switch r.Name {
			case "Schedule":
				err = cmd.wait(ctx, cmd.app.Refresh)
			case "Legacy data":
				err = cmd.wait(ctx, cmd.app.MigrateLegacy)
			}
			if err != nil {
				return fmt.Errorf("fix %s: %w", strings.ToLower(r.Name), err)
			}
		}
	}
	return nil
}

func (cmd *DoctorCmd) wait(ctx context.Context, enqueue func(context.Context) (*jobs.Handle, error)) error {
	h, err := enqueue(ctx)
	if err != nil {
		return err
	}
	return h.Wait(ctx)
}

type doctorJSON struct {
	Results []doctor.Result `json:"results"`
	Summary summaryJSON     `json:"summary"`
}

type summaryJSON struct {
	Passed int `json:"passed"`
	Warned int `json:"warned"`
	Failed int `json:"failed"`
}

func (cmd *DoctorCmd) outputText(w io.Writer, results []doctor.Result) {
	divider := styles.TextMutedStyle.Render(strings.Repeat("─", 40))

	_, _ = fmt.Fprintln(w, styles.TextPrimaryBoldStyle.Render("Chime Doctor"))
	_, _ = fmt.Fprintln(w, divider)
	_, _ = fmt.Fprintln(w)

	for _, result := range results {
		_, _ = fmt.Fprintln(w, styles.TextForegroundBoldStyle.Render(result.Name))

		for _, item := range result.Items {
			var detail string
			if item.Detail != "" {
				detail = " " + styles.TextMutedStyle.Render(item.Detail)
			}

			var icon string
			switch item.Status {
			case doctor.StatusPass:
				icon = styles.TextSuccessStyle.Render("✔")
			case doctor.StatusWarn:
				icon = styles.TextWarningStyle.Render("●")
			case doctor.StatusFail:
				icon = styles.TextErrorStyle.Render("✘")
			}

			_, _ = fmt.Fprintf(w, "  %s %s%s\n", icon, item.Label, detail)
		}

		_, _ = fmt.Fprintln(w)
	}

	passed, warned, failed := doctor.Summary(results)
	_, _ = fmt.Fprintf(w, "%s  %s  %s\n",
		styles.TextSuccessStyle.Render(fmt.Sprintf("%d passed", passed)),
		styles.TextWarningStyle.Render(fmt.Sprintf("%d warnings", warned)),
		styles.TextErrorStyle.Render(fmt.Sprintf("%d failed", failed)),
	)

	if !cmd.autofix {
		if fixable := doctor.CountFixable(results); fixable > 0 {
			_, _ = fmt.Fprintln(w)
			_, _ = fmt.Fprintln(w, styles.TextMutedStyle.Render(fmt.Sprintf("Run 'chime doctor --autofix' to fix %d issue(s)", fixable)))
		}
	}
}
