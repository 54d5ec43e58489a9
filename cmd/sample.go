package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/case-forecast/internal/ingest"
)

var (
	sampleWeeks   int
	sampleSeed    uint64
	sampleFactors bool
	sampleOut     string
)

var sampleCmd = &cobra.Command{
	Use:   "sample",
	Short: "Generate a synthetic weekly case-count file",
	Long:  "Writes a deterministic synthetic series as CSV (or XLSX when the output path ends in .xlsx).",
	RunE: func(cmd *cobra.Command, _ []string) error {
		src := sampleSource(cmd, sampleWeeks, sampleSeed, sampleFactors)
		table := src.Generate()

		if sampleOut == "" || sampleOut == "-" {
			return ingest.Write(os.Stdout, table, ingest.FormatCSV)
		}

		f, err := os.Create(sampleOut)
		if err != nil {
			return eris.Wrap(err, "sample: create output")
		}
		if err := ingest.Write(f, table, ingest.FormatFor(sampleOut)); err != nil {
			_ = f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return eris.Wrap(err, "sample: close output")
		}

		zap.L().Info("sample written",
			zap.String("path", sampleOut),
			zap.Int("weeks", len(table.Rows)),
			zap.Uint64("seed", src.Seed),
		)
		return nil
	},
}

func init() {
	sampleCmd.Flags().IntVar(&sampleWeeks, "weeks", 0, "number of weeks (default from config)")
	sampleCmd.Flags().Uint64Var(&sampleSeed, "seed", 0, "random seed (default from config)")
	sampleCmd.Flags().BoolVar(&sampleFactors, "factors", false, "include factor columns")
	sampleCmd.Flags().StringVarP(&sampleOut, "output", "o", "", "output path (default stdout)")
	rootCmd.AddCommand(sampleCmd)
}
