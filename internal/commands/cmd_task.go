package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/colonyops/chime/internal/core/alarm"
	"github.com/colonyops/chime/internal/reminder"
	"github.com/colonyops/chime/pkg/iojson"
	"github.com/urfave/cli/v3"
)

type TaskCmd struct {
	flags *Flags
	app   *reminder.App

	// add flags
	title    string
	due      string
	start    string
	calendar string
	alarms   []string

	// list flags
	all        bool
	jsonOutput bool

	importReader iojson.FileReader[reminder.TaskFile]
}

// NewTaskCmd creates a new task command.
func NewTaskCmd(flags *Flags, app *reminder.App) *TaskCmd {
	return &TaskCmd{flags: flags, app: app}
}

// Register adds the task command to the application.
func (cmd *TaskCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:  "task",
		Usage: "Manage tasks and their alarms",
		Commands: []*cli.Command{
			cmd.addCmd(),
			cmd.importCmd(),
			{
				Name:      "complete",
				Usage:     "Mark a task completed",
				UsageText: "chime task complete <task-id>",
				Action:    cmd.runComplete,
			},
			{
				Name:      "delete",
				Usage:     "Delete a task and its alarms",
				UsageText: "chime task delete <task-id>",
				Action:    cmd.runDelete,
			},
			cmd.listCmd(),
		},
	})

	return app
}

func (cmd *TaskCmd) addCmd() *cli.Command {
	return &cli.Command{
		Name:      "add",
		Usage:     "Create a task",
		UsageText: "chime task add --title <title> [--due <date>] [--start <date>] [--alarm <trigger>]...",
		Description: `Dates are a day (2006-01-02, all-day) or an RFC 3339 instant.

An alarm trigger is a duration relative to the due instant (or the start
instant when there is no specific due instant), e.g. -15m, or an RFC 3339
instant. Without explicit alarms, due and start dates get implicit reminders
when auto_reminders is enabled.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "title",
				Aliases:     []string{"t"},
				Usage:       "task title",
				Required:    true,
				Destination: &cmd.title,
			},
			&cli.StringFlag{
				Name:        "due",
				Usage:       "due date",
				Destination: &cmd.due,
			},
			&cli.StringFlag{
				Name:        "start",
				Usage:       "start date",
				Destination: &cmd.start,
			},
			&cli.StringFlag{
				Name:        "calendar",
				Usage:       "calendar the task belongs to",
				Destination: &cmd.calendar,
			},
			&cli.StringSliceFlag{
				Name:        "alarm",
				Aliases:     []string{"a"},
				Usage:       "alarm trigger (repeatable)",
				Destination: &cmd.alarms,
			},
		},
		Action: cmd.runAdd,
	}
}

func (cmd *TaskCmd) importCmd() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Import tasks from a JSON file",
		UsageText: "chime task import [-f file]",
		Description: `Reads a task file and upserts every task. Tasks with an id replace the
stored task with that id. The whole file is validated before anything is
written.

  {"tasks": [{"title": "Pay rent", "due": "2025-02-01", "alarms": [{"trigger": "-1h"}]}]}`,
		Flags:  []cli.Flag{cmd.importReader.Flag()},
		Action: cmd.runImport,
	}
}

func (cmd *TaskCmd) listCmd() *cli.Command {
	return &cli.Command{
		Name:      "list",
		Aliases:   []string{"ls"},
		Usage:     "List tasks",
		UsageText: "chime task list [--all] [--json]",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "all",
				Usage:       "include completed tasks",
				Destination: &cmd.all,
			},
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "output as JSON",
				Destination: &cmd.jsonOutput,
			},
		},
		Action: cmd.runList,
	}
}

func (cmd *TaskCmd) runAdd(ctx context.Context, c *cli.Command) error {
	entry := reminder.TaskEntry{
		Title:    cmd.title,
		Calendar: cmd.calendar,
		Due:      cmd.due,
		Start:    cmd.start,
	}
	for _, tr := range cmd.alarms {
		entry.Alarms = append(entry.Alarms, reminder.AlarmEntry{Trigger: tr})
	}

	task, err := entry.Task(cmd.app.Now())
	if err != nil {
		return err
	}

	saved, err := cmd.app.SaveTask(ctx, task)
	if err != nil {
		return fmt.Errorf("save task: %w", err)
	}

	_, _ = fmt.Fprintln(c.Root().Writer, saved.ID)
	return nil
}

func (cmd *TaskCmd) runImport(ctx context.Context, c *cli.Command) error {
	file, err := cmd.importReader.Read()
	if err != nil {
		return err
	}

	res, err := cmd.app.ImportTasks(ctx, file)
	if err != nil {
		return fmt.Errorf("import tasks: %w", err)
	}

	_, _ = fmt.Fprintf(c.Root().Writer, "imported %d task(s)\n", len(res.Imported))
	return nil
}

func (cmd *TaskCmd) runComplete(ctx context.Context, c *cli.Command) error {
	id, err := taskIDArg(c)
	if err != nil {
		return err
	}

	changed, err := cmd.app.CompleteTask(ctx, id)
	if err != nil {
		return fmt.Errorf("complete task: %w", err)
	}
	if !changed {
		_, _ = fmt.Fprintf(c.Root().Writer, "task %s already completed\n", id)
		return nil
	}

	_, _ = fmt.Fprintf(c.Root().Writer, "completed %s\n", id)
	return nil
}

func (cmd *TaskCmd) runDelete(ctx context.Context, c *cli.Command) error {
	id, err := taskIDArg(c)
	if err != nil {
		return err
	}

	deleted, err := cmd.app.DeleteTask(ctx, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if !deleted {
		return fmt.Errorf("task %s not found", id)
	}

	_, _ = fmt.Fprintf(c.Root().Writer, "deleted %s\n", id)
	return nil
}

func (cmd *TaskCmd) runList(ctx context.Context, c *cli.Command) error {
	if err := cmd.app.Tasks.Load(ctx); err != nil {
		return fmt.Errorf("load tasks: %w", err)
	}

	all, err := cmd.app.Tasks.List(ctx)
	if err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}

	tasks := make([]alarm.Task, 0, len(all))
	for _, t := range all {
		if t.Completed && !cmd.all {
			continue
		}
		tasks = append(tasks, t)
	}

	if cmd.jsonOutput {
		entries := make([]reminder.TaskEntry, 0, len(tasks))
		for _, t := range tasks {
			entries = append(entries, reminder.EntryFor(t))
		}
		return writeJSON(c, reminder.TaskFile{Tasks: entries})
	}

	if len(tasks) == 0 {
		_, _ = fmt.Fprintln(c.Root().ErrWriter, "No tasks found")
		return nil
	}

	w := newTable(c)
	_, _ = fmt.Fprintln(w, "ID\tTITLE\tDUE\tSTART\tALARMS\tSTATE")
	for _, t := range tasks {
		state := "open"
		if t.Completed {
			state = "completed"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
			t.ID, t.Title, dashIfEmpty(reminder.FormatDate(t.Due)), dashIfEmpty(reminder.FormatDate(t.Start)), len(t.Alarms), state)
	}
	return w.Flush()
}

func taskIDArg(c *cli.Command) (string, error) {
	id := strings.TrimSpace(c.Args().First())
	if id == "" {
		return "", fmt.Errorf("task id is required")
	}
	return id, nil
}

func dashIfEmpty(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
