package tabular_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/JaimeStill/reconify/internal/datasets"
	"github.com/JaimeStill/reconify/internal/tabular"
)

func TestParseCSV(t *testing.T) {
	data := []byte("\xEF\xBB\xBF Email , Name,Dept\n" +
		"a@example.com, Ada ,eng\n" +
		",,\n" +
		"b@example.com,Bob\n")

	rows, err := tabular.Parse("hr.CSV", data)
	require.NoError(t, err)
	require.Equal(t, []datasets.Row{
		{{Column: "email", Value: "a@example.com"}, {Column: "name", Value: "Ada"}, {Column: "dept", Value: "eng"}},
		{{Column: "email", Value: "b@example.com"}, {Column: "name", Value: "Bob"}, {Column: "dept", Value: ""}},
	}, rows)
}

func TestParseCSVWindows1252(t *testing.T) {
	// 0xE9 is é in Windows-1252 and invalid as UTF-8.
	data := []byte("name\nJos\xE9\n")

	rows, err := tabular.Parse("people.csv", data)
	require.NoError(t, err)
	v, _ := rows[0].Get("name")
	require.Equal(t, "José", v)
}

func TestParseXLSX(t *testing.T) {
	f := excelize.NewFile()
	t.Cleanup(func() { f.Close() })

	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]any{"Email", "Panel Role"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]any{"a@example.com", "admin"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A4", &[]any{"b@example.com", "viewer"}))

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	rows, err := tabular.Parse("panel.xlsx", buf.Bytes())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, []string{"email", "panel role"}, rows[0].Columns())
	v, _ := rows[1].Get("panel role")
	require.Equal(t, "viewer", v)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		data     string
		want     error
	}{
		{"unsupported", "report.pdf", "%PDF", tabular.ErrUnsupportedFormat},
		{"empty", "a.csv", "", nil},
		{"header only", "a.csv", "email,name\n", nil},
		{"empty column", "a.csv", "email,,name\nx,y,z\n", nil},
		{"duplicate column", "a.csv", "email,Email\nx,y\n", nil},
		{"corrupt workbook", "a.xlsx", "not a zip", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tabular.Parse(tt.filename, []byte(tt.data))

			var perr *tabular.ParseError
			require.True(t, errors.As(err, &perr), "want ParseError, got %v", err)
			require.Equal(t, tt.filename, perr.Filename)
			if tt.want != nil {
				require.ErrorIs(t, err, tt.want)
			}
		})
	}
}

func TestTrailingEmptyHeaderCellsIgnored(t *testing.T) {
	rows, err := tabular.Parse("a.csv", []byte("email,name,,\nx,y,,\n"))
	require.NoError(t, err)
	require.Equal(t, []string{"email", "name"}, rows[0].Columns())
}

func TestSupported(t *testing.T) {
	require.True(t, tabular.Supported("feed.XLSX"))
	require.True(t, tabular.Supported("feed.txt"))
	require.False(t, tabular.Supported("feed.xls"))
	require.False(t, tabular.Supported("feed"))
}

func TestValidate(t *testing.T) {
	require.NoError(t, tabular.Validate("hr_data", nil, []string{"anything"}))
	require.NoError(t, tabular.Validate("hr_data", []string{"email", "name"}, []string{"name", "email"}))

	err := tabular.Validate("hr_data", []string{"email", "name", "dept"}, []string{"email", "title"})

	var verr *tabular.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, []string{"dept", "name"}, verr.Missing)
	require.Equal(t, []string{"title"}, verr.Extra)
	require.Equal(t,
		"File structure mismatch for 'hr_data'. Missing required columns: dept, name. "+
			"Extra columns (will be ignored): title. Expected columns: dept, email, name",
		err.Error())
}
