package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"media-pipeline/internal/journal"
	"media-pipeline/internal/startup"

	"github.com/spf13/cobra"
)

func (c *cli) historyCmd() *cobra.Command {
	var (
		limit int
		runID string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent runs from the journal",
		Long: `history reads the run journal (--journal or $JOURNAL_PATH) and lists the
most recent runs, newest first. With --run it lists every file event of one run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := startup.ReadConfigFile(c.v, c.cfgFile); err != nil {
				return err
			}
			path := c.v.GetString(startup.KeyJournalPath)
			if path == "" {
				return errors.New("no journal configured (set --journal or JOURNAL_PATH)")
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			j, err := journal.Open(ctx, path)
			if err != nil {
				return err
			}
			defer func() { _ = j.Close() }()

			if runID != "" {
				events, err := j.Events(ctx, runID)
				if err != nil {
					return err
				}
				printEvents(cmd.OutOrStdout(), events)
				return nil
			}

			runs, err := j.RecentRuns(ctx, limit)
			if err != nil {
				return err
			}
			printRuns(cmd.OutOrStdout(), runs)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of runs to list")
	cmd.Flags().StringVar(&runID, "run", "", "list the events of this run")
	return cmd
}

func printRuns(w io.Writer, runs []journal.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "no runs recorded")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTARTED\tSTATUS\tIMAGES\tVIDEOS\tFAILURES\tDURATION\tDIR")
	for _, r := range runs {
		duration := "-"
		if !r.FinishedAt.IsZero() {
			duration = r.Duration().Round(time.Millisecond).String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
			r.ID, r.StartedAt.Local().Format(time.DateTime), r.Status,
			r.Images, r.Videos, r.Failures, duration, r.MediaDir)
	}
	_ = tw.Flush()
}

func printEvents(w io.Writer, events []journal.Event) {
	if len(events) == 0 {
		fmt.Fprintln(w, "no events recorded")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STAGE\tFILE\tACTION\tSTATUS\tDETAIL")
	for _, e := range events {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.Stage, e.File, e.Action, e.Status, e.Detail)
	}
	_ = tw.Flush()
}
