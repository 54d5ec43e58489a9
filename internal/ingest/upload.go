package ingest

import (
	"context"
	"os"

	"github.com/sells-group/case-forecast/internal/model"
)

// UploadSource parses a file's contents already held in memory.
type UploadSource struct {
	Name string
	Data []byte
}

// Load parses the upload, picking CSV or XLSX from the file name.
func (u UploadSource) Load(ctx context.Context) (*RawTable, model.SourceInfo, error) {
	info := u.Describe()
	table, err := Parse(ctx, u.Data, FormatFor(u.Name))
	if err != nil {
		return nil, info, err
	}
	return table, info, nil
}

// Describe names the uploaded file.
func (u UploadSource) Describe() model.SourceInfo {
	return model.SourceInfo{Kind: model.SourceUpload, Location: u.Name}
}

// FileSource reads a local file and parses it like an upload.
type FileSource struct {
	Path string
}

// Load reads the file at Path.
func (f FileSource) Load(ctx context.Context) (*RawTable, model.SourceInfo, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, f.Describe(), model.Classify(model.ErrIngestion, err, "ingest: read file")
	}
	return UploadSource{Name: f.Path, Data: data}.Load(ctx)
}

// Describe names the local path.
func (f FileSource) Describe() model.SourceInfo {
	return model.SourceInfo{Kind: model.SourceUpload, Location: f.Path}
}
