package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"taskd/internal/store"
	"taskd/internal/task"
	logx "taskd/pkg/logx"
)

func storeFromFlags(cmd *cobra.Command) *store.Store {
	dir, _ := cmd.Flags().GetString("dir")
	return store.New(dir, logx.Nop())
}

// findByID resolves a task id to its record file. The fast path assumes the
// file stem equals the id; the slow path scans the store because the id
// inside the file is authoritative.
func findByID(st *store.Store, id string) (string, *task.Record, error) {
	path := st.PathFor(id)
	if st.Exists(path) {
		if rec, err := st.Load(path); err == nil && rec.TaskID == id {
			return path, rec, nil
		}
	}
	paths, err := st.List()
	if err != nil {
		return "", nil, err
	}
	for _, p := range paths {
		rec, err := st.Load(p)
		if err != nil {
			continue
		}
		if rec.TaskID == id {
			return p, rec, nil
		}
	}
	return "", nil, fmt.Errorf("task %q not found in %s", id, st.Dir())
}

func parseArgsJSON(raw string) (map[string]any, error) {
	if raw == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("--args must be a JSON object: %w", err)
	}
	return args, nil
}

func buildCreateCmd() *cobra.Command {
	var (
		id       string
		at       string
		interval int64
		tool     string
		argsJSON string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task record",
		Example: `  # One-shot echo at an explicit instant
  taskctl create --at 2026-09-01T10:00:00+08:00 --tool echo --args '{"msg":"hi"}'

  # Recurring subprocess every 10 minutes, compact local time (+08:00)
  taskctl create --at 2026-09-01-10:00 --interval 600 --tool run \
      --args '{"command":"git","args":["pull"],"dir":"/srv/repo"}'`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st := storeFromFlags(cmd)
			if err := st.EnsureDir(); err != nil {
				return err
			}

			if id == "" {
				id = uuid.NewString()
			}
			if _, _, err := findByID(st, id); err == nil {
				return fmt.Errorf("task %q already exists", id)
			}

			due, err := task.ParseScheduledTime(at)
			if err != nil {
				return err
			}
			args, err := parseArgsJSON(argsJSON)
			if err != nil {
				return err
			}

			rec := &task.Record{
				TaskID:             id,
				ScheduledLocalTime: task.Canonical(due),
				Interval:           interval,
				ToolCall:           &task.ToolCall{ToolName: tool, Arguments: args},
			}
			path := st.PathFor(id)
			if err := st.Save(path, rec); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s)\n", id, filepath.Base(path))
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "task id (default: random uuid)")
	cmd.Flags().StringVar(&at, "at", "", "scheduled time, RFC3339 with offset or YYYY-MM-DD-HH:mm (+08:00)")
	cmd.Flags().Int64Var(&interval, "interval", 0, "recurrence interval in seconds (0 = one-shot)")
	cmd.Flags().StringVar(&tool, "tool", "", "tool name to invoke")
	cmd.Flags().StringVar(&argsJSON, "args", "{}", "tool arguments as a JSON object")
	cobra.CheckErr(cmd.MarkFlagRequired("at"))
	cobra.CheckErr(cmd.MarkFlagRequired("tool"))

	return cmd
}

func buildEditCmd() *cobra.Command {
	var (
		at       string
		interval int64
		tool     string
		argsJSON string
	)

	cmd := &cobra.Command{
		Use:   "edit <task-id>",
		Short: "Rewrite fields of an existing task record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st := storeFromFlags(cmd)
			path, rec, err := findByID(st, args[0])
			if err != nil {
				return err
			}

			if cmd.Flags().Changed("at") {
				due, err := task.ParseScheduledTime(at)
				if err != nil {
					return err
				}
				rec.ScheduledLocalTime = task.Canonical(due)
			}
			if cmd.Flags().Changed("interval") {
				rec.Interval = interval
			}
			if cmd.Flags().Changed("tool") {
				rec.ToolCall.ToolName = tool
			}
			if cmd.Flags().Changed("args") {
				a, err := parseArgsJSON(argsJSON)
				if err != nil {
					return err
				}
				rec.ToolCall.Arguments = a
			}

			if err := st.Save(path, rec); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "updated %s\n", rec.TaskID)
			return nil
		},
	}

	cmd.Flags().StringVar(&at, "at", "", "new scheduled time")
	cmd.Flags().Int64Var(&interval, "interval", 0, "new recurrence interval in seconds (0 = one-shot)")
	cmd.Flags().StringVar(&tool, "tool", "", "new tool name")
	cmd.Flags().StringVar(&argsJSON, "args", "", "new tool arguments as a JSON object")

	return cmd
}

func buildRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <task-id>",
		Short: "Remove a task record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st := storeFromFlags(cmd)
			path, rec, err := findByID(st, args[0])
			if err != nil {
				return err
			}
			if err := st.Delete(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", rec.TaskID)
			return nil
		},
	}
}

func buildLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List task records",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st := storeFromFlags(cmd)
			paths, err := st.List()
			if err != nil {
				if os.IsNotExist(err) {
					return nil
				}
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 2, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tDUE\tEVERY\tTOOL")
			for _, p := range paths {
				rec, err := st.Load(p)
				if err != nil {
					fmt.Fprintf(w, "-\t-\t-\t(unreadable: %s)\n", filepath.Base(p))
					continue
				}
				every := "-"
				if rec.Recurring() {
					every = (time.Duration(rec.Interval) * time.Second).String()
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					rec.TaskID, rec.ScheduledLocalTime, every, rec.ToolCall.ToolName)
			}
			return w.Flush()
		},
	}
}
