package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/pipedrive-export/internal/config"
	"github.com/sells-group/pipedrive-export/internal/model"
	"github.com/sells-group/pipedrive-export/internal/pipeline"
	"github.com/sells-group/pipedrive-export/internal/resilience"
)

var fieldsCmd = &cobra.Command{
	Use:   "fields",
	Short: "Print the resolved deal field definitions",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("schema"); err != nil {
			return err
		}
		categorical, _ := cmd.Flags().GetBool("categorical")
		return runFields(cmd.Context(), cfg, os.Stdout, categorical)
	},
}

var stagesCmd = &cobra.Command{
	Use:   "stages <category>",
	Short: "Print the stage id to name map of a pipeline",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("schema"); err != nil {
			return err
		}
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || id <= 0 {
			return fmt.Errorf("invalid category id %q", args[0])
		}
		return runStages(cmd.Context(), cfg, os.Stdout, id)
	},
}

func init() {
	fieldsCmd.Flags().Bool("categorical", false, "only print single- and multi-select fields")
	rootCmd.AddCommand(fieldsCmd)
	rootCmd.AddCommand(stagesCmd)
}

func runFields(ctx context.Context, c *config.Config, out io.Writer, categoricalOnly bool) error {
	client := newPipedriveClient(c.Pipedrive)
	defs, err := pipeline.ResolveFieldDefinitions(ctx, client, resilience.PageRetryConfig(c.Pipedrive.MaxRetries))
	if err != nil {
		return err
	}
	if categoricalOnly {
		filtered := defs[:0]
		for _, d := range defs {
			if d.Categorical() {
				filtered = append(filtered, d)
			}
		}
		defs = filtered
	}
	formatFields(out, defs)
	return nil
}

func runStages(ctx context.Context, c *config.Config, out io.Writer, categoryID int64) error {
	client := newPipedriveClient(c.Pipedrive)
	stages, err := pipeline.FetchStageMap(ctx, client, categoryID, resilience.PageRetryConfig(c.Pipedrive.MaxRetries))
	if err != nil {
		return err
	}
	formatStages(out, stages)
	return nil
}

// formatFields writes one line per field definition to out.
func formatFields(out io.Writer, defs []model.FieldDefinition) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "KEY\tKIND\tOPTIONS\tNAME")
	for _, d := range defs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", d.Key, d.Kind, len(d.Options), d.Name)
	}
	_ = w.Flush()
}

// formatStages writes the stage map sorted by numeric id.
func formatStages(out io.Writer, stages model.StageMap) {
	ids := make([]string, 0, len(stages))
	for id := range stages {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, errA := strconv.ParseInt(ids[i], 10, 64)
		b, errB := strconv.ParseInt(ids[j], 10, 64)
		if errA != nil || errB != nil {
			return ids[i] < ids[j]
		}
		return a < b
	})

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME")
	for _, id := range ids {
		_, _ = fmt.Fprintf(w, "%s\t%s\n", id, stages[id])
	}
	_ = w.Flush()
}
