package main

import (
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/rmax-ai/proximl/pkg/blob"
	"github.com/rmax-ai/proximl/pkg/reports"
	"github.com/rmax-ai/proximl/pkg/resources"
	"github.com/rmax-ai/proximl/pkg/store"
)

func newLogsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Inspect log lines archived by attach (requires PROXIML_LOG_ARCHIVE)",
	}

	requireStore := func() (*store.Store, error) {
		st, err := a.store()
		if err != nil {
			return nil, err
		}
		if st == nil {
			return nil, fmt.Errorf("no log archive configured, set PROXIML_LOG_ARCHIVE")
		}
		return st, nil
	}

	var since time.Duration
	var limit int
	showCmd := &cobra.Command{
		Use:   "show <entity> <id>",
		Short: "Replay archived log lines of an entity",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := requireStore()
			if err != nil {
				return err
			}
			filter := store.Filter{Entity: args[0], EntityID: args[1], Type: "subscription", Limit: limit}
			if since > 0 {
				filter.From = time.Now().Add(-since)
			}
			records, err := st.ReadFrames(cmd.Context(), filter)
			if err != nil {
				return err
			}
			printLine := resources.PrintLogs(cmd.OutOrStdout())
			for _, rec := range records {
				printLine(rec.Frame())
			}
			return nil
		},
	}
	showCmd.Flags().DurationVar(&since, "since", 0, "Only show lines newer than this (e.g. 1h)")
	showCmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of lines")
	cmd.AddCommand(showCmd)

	var (
		reportSince time.Duration
		entity      string
		entityID    string
		saveDir     string
	)
	reportCmd := &cobra.Command{
		Use:   "report <logs|summary>",
		Short: "Write a CSV report of archived log lines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := requireStore()
			if err != nil {
				return err
			}
			gen, err := reports.NewReportGenerator(reports.ReportType(args[0]), st)
			if err != nil {
				return err
			}
			params := reports.ReportParams{
				End:     time.Now(),
				Filters: map[string]interface{}{"entity": entity, "entity_id": entityID},
			}
			if reportSince > 0 {
				params.Start = params.End.Add(-reportSince)
			}
			if saveDir == "" {
				return writeReport(cmd.Context(), cmd.OutOrStdout(), gen, params)
			}
			key, err := saveReport(cmd.Context(), blob.NewLocalBlobStore(saveDir), args[0], gen, params)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s\n", filepath.Join(saveDir, filepath.FromSlash(key)))
			return nil
		},
	}
	reportCmd.Flags().DurationVar(&reportSince, "since", 24*time.Hour, "Report window (0 for everything)")
	reportCmd.Flags().StringVar(&entity, "entity", "", "Only include this entity type")
	reportCmd.Flags().StringVar(&entityID, "id", "", "Only include this entity id")
	reportCmd.Flags().StringVar(&saveDir, "save-dir", "", "Save the report under this directory instead of printing it")
	cmd.AddCommand(reportCmd)

	var listDir string
	savedCmd := &cobra.Command{
		Use:   "saved [logs|summary]",
		Short: "List reports saved with --save-dir",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prefix := ""
			if len(args) == 1 {
				prefix = args[0]
			}
			keys, err := blob.NewLocalBlobStore(listDir).List(cmd.Context(), prefix)
			if err != nil {
				return err
			}
			for _, key := range keys {
				fmt.Fprintln(cmd.OutOrStdout(), key)
			}
			return nil
		},
	}
	savedCmd.Flags().StringVar(&listDir, "save-dir", ".", "Directory reports were saved under")
	cmd.AddCommand(savedCmd)

	var olderThan time.Duration
	pruneCmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete archived log lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := requireStore()
			if err != nil {
				return err
			}
			n, err := st.Prune(cmd.Context(), time.Now().Add(-olderThan))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d frames\n", n)
			return nil
		},
	}
	pruneCmd.Flags().DurationVar(&olderThan, "older-than", 7*24*time.Hour, "Delete lines archived before this age")
	cmd.AddCommand(pruneCmd)

	return cmd
}

// saveReport stores a generated report as <type>/<UTC timestamp>.csv.
func saveReport(ctx context.Context, bs blob.BlobStore, reportType string, gen reports.Generator, params reports.ReportParams) (string, error) {
	r, err := gen.Generate(ctx, params)
	if err != nil {
		return "", err
	}
	key := path.Join(reportType, params.End.UTC().Format("20060102-150405")+".csv")
	if err := bs.Put(ctx, key, r); err != nil {
		return "", err
	}
	return key, nil
}

func writeReport(ctx context.Context, w io.Writer, gen reports.Generator, params reports.ReportParams) error {
	r, err := gen.Generate(ctx, params)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, r)
	return err
}
