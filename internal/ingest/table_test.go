package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/case-forecast/internal/model"
)

const validCSV = "End_Date, Cases ,week_num,temperature\n07/01/2024,120,1,4.5\n14/01/2024,135,2,5.0\n"

func TestFormatFor(t *testing.T) {
	tests := []struct {
		name string
		want Format
	}{
		{"cases.csv", FormatCSV},
		{"cases.XLSX", FormatXLSX},
		{"cases.xlsm", FormatXLSX},
		{"cases", FormatCSV},
		{"cases.txt", FormatCSV},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, FormatFor(tt.name))
		})
	}
}

func TestParse_CSVNormalisesHeader(t *testing.T) {
	table, err := Parse(context.Background(), []byte(validCSV), FormatCSV)
	require.NoError(t, err)
	assert.Equal(t, []string{"end_date", "cases", "week_num", "temperature"}, table.Header)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, "135", table.Value(1, ColCases))
	assert.Equal(t, "", table.Value(1, "humidity"))
	assert.Equal(t, "", table.Value(5, ColCases))
}

func TestParse_MissingColumns(t *testing.T) {
	_, err := Parse(context.Background(), []byte("end_date,value\n07/01/2024,1\n"), FormatCSV)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrIngestion))
	assert.Contains(t, err.Error(), "cases, week_num")
}

func TestParse_Empty(t *testing.T) {
	_, err := Parse(context.Background(), nil, FormatCSV)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrIngestion))
}

func TestParse_UnsupportedFormat(t *testing.T) {
	_, err := Parse(context.Background(), []byte(validCSV), Format("parquet"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrIngestion))
}

func TestParse_InvalidXLSX(t *testing.T) {
	_, err := Parse(context.Background(), []byte("not a zip"), FormatXLSX)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrIngestion))
}

func writeXLSX(t *testing.T, rows [][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Sheet1")
	require.NoError(t, err)
	for _, r := range rows {
		row := sheet.AddRow()
		for _, c := range r {
			row.AddCell().SetString(c)
		}
	}
	path := filepath.Join(t.TempDir(), "cases.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestFileSource_XLSX(t *testing.T) {
	path := writeXLSX(t, [][]string{
		{"end_date", "cases", "week_num"},
		{"07/01/2024", "120", "1"},
	})

	table, info, err := FileSource{Path: path}.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.SourceUpload, info.Kind)
	assert.Equal(t, path, info.Location)
	assert.Equal(t, "120", table.Value(0, ColCases))
}

func TestFileSource_Missing(t *testing.T) {
	_, _, err := FileSource{Path: filepath.Join(t.TempDir(), "nope.csv")}.Load(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrIngestion))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestUploadSource_CSV(t *testing.T) {
	table, info, err := UploadSource{Name: "upload.csv", Data: []byte(validCSV)}.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.SourceUpload, info.Kind)
	assert.Len(t, table.Rows, 2)
}
