package output

import (
	"io"

	"github.com/olekukonko/tablewriter"
)

// TableRenderer is the shape a value needs to render under "-o table".
type TableRenderer interface {
	Headers() []string
	Rows() [][]string
}

// newBareTable returns a tablewriter in the CLI's listing style:
// left-aligned, no borders or row lines, two-space padding. columnSep
// separates columns; listings use none, key-value summaries use ":".
func newBareTable(w io.Writer, columnSep string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator(columnSep)
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)
	return table
}

// PrintTable renders a listing with an upper-cased header row, the way
// "pending" shows interrupted uploads.
func PrintTable(w io.Writer, data TableRenderer) error {
	table := newBareTable(w, "")
	table.SetAutoFormatHeaders(true)
	table.SetHeader(data.Headers())

	for _, row := range data.Rows() {
		table.Append(row)
	}

	table.Render()
	return nil
}

// TableData is an ad-hoc TableRenderer built row by row.
type TableData struct {
	headers []string
	rows    [][]string
}

// NewTableData creates a TableData with the given column headers.
func NewTableData(headers ...string) *TableData {
	return &TableData{headers: headers}
}

// AddRow appends one row. Callers keep the column count consistent.
func (t *TableData) AddRow(row ...string) {
	t.rows = append(t.rows, row)
}

func (t *TableData) Headers() []string { return t.headers }

func (t *TableData) Rows() [][]string { return t.rows }

// SimpleTable prints key-value pairs without a header row, used for the
// post-upload summary.
func SimpleTable(w io.Writer, pairs [][2]string) error {
	table := newBareTable(w, ":")
	table.SetAutoFormatHeaders(false)

	for _, pair := range pairs {
		table.Append([]string{pair[0], pair[1]})
	}

	table.Render()
	return nil
}
