package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/case-forecast/internal/model"
	"github.com/sells-group/case-forecast/internal/report"
)

var (
	qualitySource sourceFlags
	qualityFormat string
)

var qualityCmd = &cobra.Command{
	Use:   "quality",
	Short: "Audit a series without forecasting",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env := initOffline()

		src, err := qualitySource.build(cmd, env.Fetcher)
		if err != nil {
			return err
		}
		ds, err := env.Pipeline.Load(ctx, src)
		if err != nil {
			return eris.Wrap(err, "quality")
		}
		return writeQuality(os.Stdout, ds, qualityFormat)
	},
}

func init() {
	qualitySource.register(qualityCmd)
	qualityCmd.Flags().StringVar(&qualityFormat, "format", "table", "output format: table or json")
	rootCmd.AddCommand(qualityCmd)
}

func writeQuality(out io.Writer, ds *model.Dataset, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"source":       ds.Source,
			"points":       len(ds.Series),
			"dropped_rows": ds.DroppedRows,
			"quality":      ds.Quality,
		})
	case "table", "":
		_, _ = fmt.Fprintf(out, "Source: %s %s\n", ds.Source.Kind, ds.Source.Location)
		_, _ = fmt.Fprintf(out, "Weeks: %d (dropped %d)\n\n", len(ds.Series), ds.DroppedRows)
		report.WriteQualityTable(out, ds.Quality)
		return nil
	default:
		return eris.Errorf("unknown format %q (want table or json)", format)
	}
}
