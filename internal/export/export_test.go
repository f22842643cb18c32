package export

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"

	"github.com/lehigh-university-libraries/cardscan/internal/models"
)

func sampleRecords() []Record {
	return []Record{
		{
			Source: "cards/jane.jpg",
			Fields: models.FieldMap{
				"full_name":           "Jane Doe",
				"first_name":          "Jane",
				"last_name":           "Doe",
				"email":               "jane@example.com",
				"website":             nil,
				"services":            "Consulting",
				"timestamp":           "2024-05-01T09:30:00.000Z",
				"back_side_processed": true,
			},
		},
		{
			Source: "cards/blurry.png",
			Error:  "UnparsableReply: model reply did not contain a JSON object",
		},
	}
}

func TestColumnsOrder(t *testing.T) {
	cols := Columns()
	require.Equal(t, models.CardKeys, cols[:len(models.CardKeys)])
	require.Equal(t, []string{"back_side_processed", "source", "error"}, cols[len(cols)-3:])
}

func TestWriteXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cards.xlsx")
	require.NoError(t, Write(path, sampleRecords()))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, Columns(), rows[0])

	col := func(name string) int {
		for i, c := range Columns() {
			if c == name {
				return i
			}
		}
		t.Fatalf("no column %s", name)
		return -1
	}
	require.Equal(t, "Jane Doe", rows[1][col("full_name")])
	require.Equal(t, "cards/jane.jpg", rows[1][col("source")])
	require.Equal(t, "TRUE", strings.ToUpper(rows[1][col("back_side_processed")]))
	require.Equal(t, "cards/blurry.png", rows[2][col("source")])
	require.Contains(t, rows[2][col("error")], "UnparsableReply")
}

func TestWriteParquet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cards.parquet")
	require.NoError(t, Write(path, sampleRecords()))

	got, err := ReadParquet(path)
	require.NoError(t, err)
	require.Len(t, got, 2)

	require.Equal(t, "cards/jane.jpg", got[0].Source)
	require.Equal(t, "Jane Doe", got[0].Fields["full_name"])
	require.Equal(t, "Consulting", got[0].Fields["services"])
	require.Equal(t, true, got[0].Fields["back_side_processed"])
	require.NotContains(t, got[0].Fields, "website")
	require.Empty(t, got[0].Error)

	require.Equal(t, "cards/blurry.png", got[1].Source)
	require.Contains(t, got[1].Error, "UnparsableReply")
	require.Empty(t, got[1].Fields)
}

func TestWriteYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cards.yaml")
	require.NoError(t, Write(path, sampleRecords()))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(b), "- full_name: Jane Doe\n"), string(b))

	var got []map[string]any
	require.NoError(t, yaml.Unmarshal(b, &got))
	require.Len(t, got, 2)
	require.Equal(t, "jane@example.com", got[0]["email"])
	require.Nil(t, got[0]["website"])
	require.Equal(t, true, got[0]["back_side_processed"])
	require.Nil(t, got[1]["full_name"])
}

func TestWriteJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cards.jsonl")
	require.NoError(t, Write(path, sampleRecords()))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, 2, strings.Count(string(b), "\n"))

	got, err := ReadJSONL(path)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "Jane", got[0].Fields["first_name"])
	require.Equal(t, true, got[0].Fields["back_side_processed"])
	require.Equal(t, "cards/blurry.png", got[1].Source)
	require.NotEmpty(t, got[1].Error)
}

func TestWriteUnsupportedFormat(t *testing.T) {
	err := Write(filepath.Join(t.TempDir(), "cards.csv"), sampleRecords())
	require.ErrorContains(t, err, "unsupported export format")
}

func TestReadDispatchesOnExtension(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"cards.parquet", "cards.jsonl"} {
		path := filepath.Join(dir, name)
		require.NoError(t, Write(path, sampleRecords()))

		got, err := Read(path)
		require.NoError(t, err, name)
		require.Len(t, got, 2, name)
		require.Equal(t, "cards/jane.jpg", got[0].Source, name)
		require.Equal(t, "Jane Doe", got[0].Fields.Get("full_name"), name)
		require.NotEmpty(t, got[1].Error, name)
	}

	xlsx := filepath.Join(dir, "cards.xlsx")
	require.NoError(t, Write(xlsx, sampleRecords()))
	_, err := Read(xlsx)
	require.ErrorContains(t, err, "cannot read")

	_, err = Read(filepath.Join(dir, "missing.jsonl"))
	require.Error(t, err)
}
