package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/pipedrive-export/internal/columns"
	"github.com/sells-group/pipedrive-export/internal/config"
	"github.com/sells-group/pipedrive-export/internal/export"
	"github.com/sells-group/pipedrive-export/internal/fetcher"
	"github.com/sells-group/pipedrive-export/internal/metrics"
	"github.com/sells-group/pipedrive-export/internal/model"
	"github.com/sells-group/pipedrive-export/internal/pipeline"
	"github.com/sells-group/pipedrive-export/internal/resilience"
	"github.com/sells-group/pipedrive-export/internal/workbook"
	"github.com/sells-group/pipedrive-export/pkg/pipedrive"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Fetch, normalize and export the configured pipelines",
	Long:  "Runs a full resync: every deal of every configured pipeline is fetched, deduplicated, labelled and written to one spreadsheet per pipeline. The consolidated workbook is refreshed afterwards unless --no-refresh is given.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := applyExportFlags(cmd, cfg); err != nil {
			return err
		}
		if err := cfg.Validate("export"); err != nil {
			return err
		}
		_, err := runExport(cmd.Context(), cfg, os.Stdout)
		return err
	},
}

func init() {
	addExportFlags(exportCmd)
	rootCmd.AddCommand(exportCmd)
}

func addExportFlags(cmd *cobra.Command) {
	cmd.Flags().Int64Slice("categories", nil, "pipeline ids to export (default: all configured)")
	cmd.Flags().String("output-dir", "", "directory for exported files (overrides export.output_dir)")
	cmd.Flags().String("format", "", "output format: xlsx or csv (overrides export.format)")
	cmd.Flags().Bool("no-refresh", false, "skip the consolidated workbook refresh")
}

// applyExportFlags folds command-line overrides into c.
func applyExportFlags(cmd *cobra.Command, c *config.Config) error {
	flags := cmd.Flags()
	if dir, _ := flags.GetString("output-dir"); dir != "" {
		c.Export.OutputDir = dir
	}
	if format, _ := flags.GetString("format"); format != "" {
		c.Export.Format = format
	}
	if noRefresh, _ := flags.GetBool("no-refresh"); noRefresh {
		c.Workbook.Path = ""
	}
	if flags.Changed("categories") {
		ids, err := flags.GetInt64Slice("categories")
		if err != nil {
			return eris.Wrap(err, "parse --categories")
		}
		c.Export.Categories = selectCategories(c.Export, ids)
		c.Export.CategoryIDs = nil
	}
	return nil
}

// selectCategories narrows the configured categories to ids, keeping
// configured file names and deriving names for ids not configured.
func selectCategories(e config.ExportConfig, ids []int64) []config.CategoryConfig {
	configured := make(map[int64]config.CategoryConfig)
	for _, c := range e.CategoryList() {
		configured[c.ID] = c
	}

	out := make([]config.CategoryConfig, 0, len(ids))
	for _, id := range ids {
		if c, ok := configured[id]; ok {
			out = append(out, c)
			continue
		}
		derived := e
		derived.Categories = nil
		derived.CategoryIDs = []int64{id}
		out = append(out, derived.CategoryList()...)
	}
	return out
}

func newPipedriveClient(c config.PipedriveConfig) pipedrive.Client {
	return pipedrive.NewClient(c.APIToken,
		pipedrive.WithBaseURL(c.BaseURL),
		pipedrive.WithTimeout(c.Timeout()),
		pipedrive.WithRateLimit(c.RateLimitRPS),
		pipedrive.WithObserver(observeRequest),
	)
}

func observeRequest(endpoint string, _ int, err error, d time.Duration) {
	metrics.ObserveRequest(endpoint, string(fetcher.Classify(err)), d)
}

func exportKeys(e config.ExportConfig) model.Keys {
	return model.Keys{
		ID:       model.FieldKey(e.IDField),
		Category: model.FieldKey(e.CategoryField),
	}
}

// runExport wires the configured collaborators and runs one resync.
// Only setup failures and interruption are returned as errors.
func runExport(ctx context.Context, c *config.Config, out io.Writer) (*model.RunReport, error) {
	log := zap.L().With(zap.String("component", "export"))

	client := newPipedriveClient(c.Pipedrive)
	keys := exportKeys(c.Export)
	f := fetcher.New(client, c.Pipedrive.MaxRetries,
		fetcher.WithPageSize(c.Pipedrive.PageSize),
		fetcher.WithKeys(keys),
	)

	cols, warnings, err := columns.Load(c.Export.ColumnsFile)
	if err != nil {
		return nil, err
	}
	for _, w := range warnings {
		log.Warn("export: column dictionary", zap.String("warning", w))
	}

	writer, err := export.New(c.Export.Format, c.Export.SheetName)
	if err != nil {
		return nil, err
	}

	cats := c.Export.CategoryList()
	categories := make([]model.Category, len(cats))
	for i, cat := range cats {
		categories[i] = model.Category{ID: cat.ID, File: cat.File}
	}

	opts := pipeline.Options{
		Categories:   categories,
		Columns:      cols,
		Keys:         keys,
		StageField:   model.FieldKey(c.Export.StageField),
		OutputDir:    c.Export.OutputDir,
		Retry:        resilience.PageRetryConfig(c.Pipedrive.MaxRetries),
		WorkbookPath: c.Workbook.Path,
	}

	var extras []pipeline.Option
	if storeEnabled(c.Store) {
		st, err := initStore(ctx, c.Store)
		if err != nil {
			log.Warn("export: run history unavailable", zap.String("driver", c.Store.Driver), zap.Error(err))
		} else {
			defer st.Close() //nolint:errcheck
			extras = append(extras, pipeline.WithRecorder(st))
		}
	}
	if c.Workbook.Path != "" {
		extras = append(extras, pipeline.WithRefresher(
			workbook.New(c.Workbook.SofficePath, time.Duration(c.Workbook.TimeoutSecs)*time.Second),
		))
	}

	p, err := pipeline.New(client, f, writer, opts, extras...)
	if err != nil {
		return nil, err
	}

	report, runErr := p.Run(ctx)

	if c.Metrics.Textfile != "" {
		if err := metrics.WriteTextfile(c.Metrics.Textfile); err != nil {
			log.Warn("export: failed to write metrics textfile", zap.String("path", c.Metrics.Textfile), zap.Error(err))
		}
	}

	if report != nil {
		formatRunReport(out, report)
	}
	return report, runErr
}

// formatRunReport writes a per-category summary of a run to out.
func formatRunReport(out io.Writer, r *model.RunReport) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "CATEGORY\tSTATUS\tFETCHED\tROWS\tDUPES\tSTAGES\tFILE")
	_, _ = fmt.Fprintln(w, "--------\t------\t-------\t----\t-----\t------\t----")
	for _, c := range r.Categories {
		status := string(c.Status)
		if !c.FetchComplete {
			status += " (incomplete)"
		}
		stages := "ids"
		if c.StagesResolved {
			stages = "names"
		}
		file := c.Path
		if c.Error != "" {
			file = c.Error
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%d\t%s\t%s\n",
			c.CategoryID, status, c.Fetched, c.Rows, c.Duplicates, stages, file)
	}
	_ = w.Flush()

	_, _ = fmt.Fprintf(out, "\nRun %s: %s, %d fetched, %d duplicates, %d unmatched",
		truncateID(r.RunID), r.Status(), r.Fetched, r.Deduped, r.Unmatched)
	if !r.SchemaResolved {
		_, _ = fmt.Fprint(out, ", raw option ids")
	}
	if r.Refreshed {
		_, _ = fmt.Fprint(out, ", workbook refreshed")
	}
	_, _ = fmt.Fprintln(out)
}
