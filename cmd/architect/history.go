package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var (
	historyLimit int
	showPlan     bool
	showReport   bool
)

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum number of runs to list (0 for all)")
	showCmd.Flags().BoolVar(&showPlan, "plan", false, "Print the plan instead of the script")
	showCmd.Flags().BoolVar(&showReport, "report", false, "Print the run report instead of the script")
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List archived runs, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.close()
		store, err := a.openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		runs, err := store.ListRuns(context.Background(), historyLimit)
		if err != nil {
			return fmt.Errorf("failed to list runs: %w", err)
		}
		if len(runs) == 0 {
			fmt.Println("No runs archived yet.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATE\tSECTIONS\tLANGUAGE\tSTARTED\tPROMPT")
		for _, r := range runs {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n",
				r.ID, r.State, r.Sections, r.Language,
				r.StartedAt.Local().Format(time.DateTime), ellipsize(r.Prompt, 50))
		}
		return w.Flush()
	},
}

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print an archived run's script",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.close()
		store, err := a.openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		res, err := store.GetRun(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("run %s: %w", args[0], err)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		switch {
		case showPlan:
			if res.Plan == nil {
				return fmt.Errorf("run %s has no plan (state %s)", res.ID, res.State)
			}
			return enc.Encode(res.Plan)
		case showReport:
			if res.Report == nil {
				return fmt.Errorf("run %s has no report", res.ID)
			}
			return enc.Encode(res.Report)
		}

		if res.Script == "" {
			return fmt.Errorf("run %s has no script (state %s): %s", res.ID, res.State, res.Error)
		}
		fmt.Print(res.Script)
		return nil
	},
}

func ellipsize(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}
