package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/case-forecast/internal/fetcher"
	"github.com/sells-group/case-forecast/internal/ingest"
	"github.com/sells-group/case-forecast/internal/model"
)

// sourceFlags selects an ingestion path on the command line.
type sourceFlags struct {
	kind        string
	url         string
	file        string
	format      string
	weeks       int
	seed        uint64
	withFactors bool
}

func (sf *sourceFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&sf.kind, "source", "sheet", "data source: sheet, file or sample")
	cmd.Flags().StringVar(&sf.url, "url", "", "hosted sheet export URL (default from config)")
	cmd.Flags().StringVar(&sf.file, "file", "", "local CSV or XLSX file (implies --source file)")
	cmd.Flags().StringVar(&sf.format, "sheet-format", "", "hosted sheet format: csv or xlsx (default from config)")
	cmd.Flags().IntVar(&sf.weeks, "weeks", 0, "sample weeks (default from config)")
	cmd.Flags().Uint64Var(&sf.seed, "seed", 0, "sample seed (default from config)")
	cmd.Flags().BoolVar(&sf.withFactors, "with-factors", false, "include factor columns in the sample")
}

// build returns the Source the flags describe.
func (sf *sourceFlags) build(cmd *cobra.Command, f fetcher.Fetcher) (ingest.Source, error) {
	kind := sf.kind
	if sf.file != "" {
		kind = "file"
	}

	switch kind {
	case string(model.SourceSheet):
		url := sf.url
		if url == "" {
			url = cfg.Source.SheetURL
		}
		format := sf.format
		if format == "" {
			format = cfg.Source.Format
		}
		return ingest.NewSheetSource(f, url, ingest.Format(format)), nil
	case "file", string(model.SourceUpload):
		if sf.file == "" {
			return nil, eris.New("--file is required for --source file")
		}
		return ingest.FileSource{Path: sf.file}, nil
	case string(model.SourceSample):
		return sampleSource(cmd, sf.weeks, sf.seed, sf.withFactors), nil
	default:
		return nil, eris.Errorf("unknown source %q (want sheet, file or sample)", kind)
	}
}

// sampleSource applies config defaults to unset sample flags.
func sampleSource(cmd *cobra.Command, weeks int, seed uint64, withFactors bool) ingest.SampleSource {
	src := ingest.SampleSource{
		Weeks:       cfg.Sample.Weeks,
		Seed:        cfg.Sample.Seed,
		WithFactors: cfg.Sample.WithFactors || withFactors,
	}
	if weeks > 0 {
		src.Weeks = weeks
	}
	if cmd.Flags().Changed("seed") {
		src.Seed = seed
	}
	return src
}
