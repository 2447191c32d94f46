package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/pipedrive-export/internal/workbook"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh [path]",
	Short: "Recalculate the consolidated workbook without exporting",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("refresh"); err != nil {
			return err
		}
		path := cfg.Workbook.Path
		if len(args) == 1 {
			path = args[0]
		}
		if path == "" {
			return eris.New("no workbook path given and workbook.path is not set")
		}

		r := workbook.New(cfg.Workbook.SofficePath, time.Duration(cfg.Workbook.TimeoutSecs)*time.Second)
		refreshed, err := r.Refresh(cmd.Context(), path)
		if err != nil {
			return err
		}
		if refreshed {
			_, _ = fmt.Fprintf(os.Stdout, "Refreshed %s\n", path)
		} else {
			_, _ = fmt.Fprintf(os.Stdout, "Nothing to refresh at %s\n", path)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(refreshCmd)
}
