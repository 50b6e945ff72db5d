package sheet

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func createTestXLSX(t *testing.T, sheets map[string][][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	for name, rows := range sheets {
		s, err := f.AddSheet(name)
		require.NoError(t, err)
		for _, rowData := range rows {
			row := s.AddRow()
			for _, cellData := range rowData {
				row.AddCell().SetString(cellData)
			}
		}
	}
	path := filepath.Join(t.TempDir(), "test.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestRead_Basic(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"Sheet1": {
			{"building_type", "vintage", "climate_zone"},
			{"1", "2", "3"},
			{"4", "5", "6"},
		},
	})

	rows, err := Read(path, ReadOptions{})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"building_type", "vintage", "climate_zone"}, rows[0])
	assert.Equal(t, []string{"4", "5", "6"}, rows[2])
}

func TestRead_SkipRowsAndBlank(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"Sheet1": {
			{"Header1", "Header2"},
			{"a", "b"},
			{"", ""},
			{"c", "d"},
		},
	})

	rows, err := Read(path, ReadOptions{SkipRows: 1})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a", "b"}, {"c", "d"}}, rows)
}

func TestRead_SheetName(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"First":  {{"a", "b"}},
		"Second": {{"x", "y"}, {"1", "2"}},
	})

	rows, err := Read(path, ReadOptions{SheetName: "Second"})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"1", "2"}, rows[1])
}

func TestRead_SheetErrors(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{"Sheet1": {{"a"}}})

	_, err := Read(path, ReadOptions{SheetName: "Missing"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")

	_, err = Read(path, ReadOptions{SheetIndex: 5})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")

	_, err = Read(filepath.Join(t.TempDir(), "nope.xlsx"), ReadOptions{})
	assert.Error(t, err)
}

func TestWrite_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.xlsx")
	err := Write(path, Table{
		Name:   "Recommendations",
		Header: []string{"name", "chosen", "count"},
		Rows: [][]any{
			{"office", "2;5", 2},
			{"school", "", 0},
		},
	})
	require.NoError(t, err)

	rows, err := Read(path, ReadOptions{SheetName: "Recommendations"})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"name", "chosen", "count"}, rows[0])
	assert.Equal(t, "office", rows[1][0])
	assert.Equal(t, "2;5", rows[1][1])
	assert.Equal(t, "school", rows[2][0])
}

func TestEncode(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, Table{Header: []string{"a"}, Rows: [][]any{{1.5}}}))
	assert.NotZero(t, buf.Len())

	f, err := xlsx.OpenBinary(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, f.Sheets, 1)
	assert.Equal(t, "Sheet1", f.Sheets[0].Name)
}
