package commands

import (
	"context"
	"fmt"

	"github.com/colonyops/chime/internal/core/jobs"
	"github.com/colonyops/chime/internal/reminder"
	"github.com/urfave/cli/v3"
)

type JobsCmd struct {
	flags *Flags
	app   *reminder.App

	limit      int
	jsonOutput bool
}

// NewJobsCmd creates a new jobs command.
func NewJobsCmd(flags *Flags, app *reminder.App) *JobsCmd {
	return &JobsCmd{flags: flags, app: app}
}

// Register adds the jobs command to the application.
func (cmd *JobsCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:  "jobs",
		Usage: "Inspect the background job journal",
		Commands: []*cli.Command{
			{
				Name:      "list",
				Aliases:   []string{"ls"},
				Usage:     "List recent jobs, newest first",
				UsageText: "chime jobs list [--limit N] [--json]",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:        "limit",
						Aliases:     []string{"n"},
						Usage:       "maximum number of jobs to show",
						Value:       20,
						Destination: &cmd.limit,
					},
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

func (cmd *JobsCmd) runList(ctx context.Context, c *cli.Command) error {
	records, err := cmd.app.Journal.Recent(ctx, cmd.limit)
	if err != nil {
		return fmt.Errorf("list jobs: %w", err)
	}

	if cmd.jsonOutput {
		if records == nil {
			records = []jobs.Record{}
		}
		return writeJSON(c, records)
	}

	if len(records) == 0 {
		_, _ = fmt.Fprintln(c.Root().ErrWriter, "No jobs found")
		return nil
	}

	w := newTable(c)
	_, _ = fmt.Fprintln(w, "ID\tKEY\tSTATE\tATTEMPTS\tUPDATED\tERROR")
	for _, r := range records {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			r.ID, r.Key, r.State, r.Attempts, formatTime(r.UpdatedAt), dashIfEmpty(r.Err))
	}
	return w.Flush()
}
