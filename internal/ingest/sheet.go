package ingest

import (
	"context"
	"io"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/case-forecast/internal/fetcher"
	"github.com/sells-group/case-forecast/internal/model"
)

// SheetSource reads a hosted spreadsheet export over HTTP. It remembers
// the last ETag so Refresh can skip unchanged sheets.
type SheetSource struct {
	fetcher fetcher.Fetcher
	url     string
	format  Format

	mu   sync.Mutex
	etag string
}

// NewSheetSource creates a SheetSource for url. An empty format means CSV.
func NewSheetSource(f fetcher.Fetcher, url string, format Format) *SheetSource {
	if format == "" {
		format = FormatCSV
	}
	return &SheetSource{fetcher: f, url: url, format: format}
}

// WithETag seeds the ETag Refresh compares against, typically the one
// recorded on a previously loaded dataset.
func (s *SheetSource) WithETag(etag string) *SheetSource {
	s.mu.Lock()
	s.etag = etag
	s.mu.Unlock()
	return s
}

// Load always downloads the sheet.
func (s *SheetSource) Load(ctx context.Context) (*RawTable, model.SourceInfo, error) {
	table, info, _, err := s.fetch(ctx, "")
	return table, info, err
}

// Refresh downloads the sheet only when its ETag has changed since the
// last successful fetch. changed is false and the table nil otherwise.
func (s *SheetSource) Refresh(ctx context.Context) (*RawTable, model.SourceInfo, bool, error) {
	s.mu.Lock()
	etag := s.etag
	s.mu.Unlock()
	return s.fetch(ctx, etag)
}

// Describe names the sheet URL and the last seen ETag.
func (s *SheetSource) Describe() model.SourceInfo {
	return model.SourceInfo{Kind: model.SourceSheet, Location: s.url, ETag: s.ETag()}
}

// ETag returns the ETag of the last successful download.
func (s *SheetSource) ETag() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.etag
}

func (s *SheetSource) fetch(ctx context.Context, etag string) (*RawTable, model.SourceInfo, bool, error) {
	info := model.SourceInfo{Kind: model.SourceSheet, Location: s.url, ETag: etag}
	if s.url == "" {
		return nil, info, false, eris.Wrap(model.ErrIngestion, "ingest: sheet url is empty")
	}

	body, newETag, changed, err := s.fetcher.DownloadIfChanged(ctx, s.url, etag)
	if err != nil {
		return nil, info, false, model.Classify(model.ErrIngestion, err, "ingest: download sheet")
	}
	if !changed {
		zap.L().Debug("sheet unchanged", zap.String("url", s.url), zap.String("etag", etag))
		return nil, info, false, nil
	}
	defer body.Close() //nolint:errcheck

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, info, false, model.Classify(model.ErrIngestion, err, "ingest: read sheet body")
	}

	table, err := Parse(ctx, data, s.format)
	if err != nil {
		return nil, info, false, err
	}

	s.mu.Lock()
	s.etag = newETag
	s.mu.Unlock()
	info.ETag = newETag

	zap.L().Info("sheet downloaded",
		zap.String("url", s.url),
		zap.Int("rows", len(table.Rows)),
		zap.String("etag", newETag),
	)
	return table, info, true, nil
}
