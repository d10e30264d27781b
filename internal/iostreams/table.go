package iostreams

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// TablePrinter renders tabular data to IOStreams.Out.
// When the output is a TTY with colors enabled, it renders styled headers
// and a divider. When piped or in non-TTY mode, it uses plain tabwriter
// for machine-friendly output.
type TablePrinter struct {
	ios     *IOStreams
	headers []string
	rows    [][]string
}

// NewTablePrinter creates a new table printer with the given column headers.
// The table writes to ios.Out when Render() is called.
func (ios *IOStreams) NewTablePrinter(headers ...string) *TablePrinter {
	return &TablePrinter{
		ios:     ios,
		headers: headers,
	}
}

// AddRow adds a data row to the table. If fewer columns are provided than
// headers, missing columns are treated as empty strings.
func (tp *TablePrinter) AddRow(cols ...string) {
	tp.rows = append(tp.rows, cols)
}

// Len returns the number of data rows (not including headers).
func (tp *TablePrinter) Len() int {
	return len(tp.rows)
}

// Render writes the table to the IOStreams output.
// Returns an error if writing fails.
func (tp *TablePrinter) Render() error {
	if len(tp.headers) == 0 {
		return nil
	}

	if tp.ios.IsOutputTTY() && tp.ios.ColorEnabled() {
		return tp.renderStyled()
	}
	return tp.renderPlain()
}

// renderPlain writes a tab-separated table using tabwriter.
func (tp *TablePrinter) renderPlain() error {
	w := tabwriter.NewWriter(tp.ios.Out, 0, 0, 2, ' ', 0)

	fmt.Fprintln(w, strings.Join(tp.headers, "\t"))

	for _, row := range tp.rows {
		cols := tp.normalizeRow(row)
		fmt.Fprintln(w, strings.Join(cols, "\t"))
	}

	return w.Flush()
}

// renderStyled delegates to RenderStyledTable, which handles per-cell
// styling and content-aware column widths.
func (tp *TablePrinter) renderStyled() error {
	rows := make([][]string, len(tp.rows))
	for i, row := range tp.rows {
		rows[i] = tp.normalizeRow(row)
	}
	_, err := fmt.Fprintln(tp.ios.Out, tp.ios.RenderStyledTable(tp.headers, rows, nil))
	return err
}

// normalizeRow pads or truncates a row to match the number of headers.
func (tp *TablePrinter) normalizeRow(row []string) []string {
	cols := make([]string, len(tp.headers))
	for i := range cols {
		if i < len(row) {
			cols[i] = row[i]
		}
	}
	return cols
}

// TableStyleOverrides customizes RenderStyledTable. Each function receives
// cell text and returns styled text; nil fields fall back to the defaults
// (uppercase TableHeaderStyle headers, TablePrimaryColumnStyle first column,
// unstyled cells).
type TableStyleOverrides struct {
	Header  func(string) string
	Primary func(string) string
	Cell    func(string) string
}

// RenderStyledTable renders headers and rows through lipgloss/table with
// content-aware column widths and returns the result as a string. Borders
// are suppressed so the output matches the plain renderer's shape, with
// two spaces of inter-column padding.
func (ios *IOStreams) RenderStyledTable(headers []string, rows [][]string, overrides *TableStyleOverrides) string {
	headerFn := func(s string) string { return TableHeaderStyle.Render(strings.ToUpper(s)) }
	primaryFn := func(s string) string { return TablePrimaryColumnStyle.Render(s) }
	cellFn := func(s string) string { return s }
	if overrides != nil {
		if overrides.Header != nil {
			headerFn = overrides.Header
		}
		if overrides.Primary != nil {
			primaryFn = overrides.Primary
		}
		if overrides.Cell != nil {
			cellFn = overrides.Cell
		}
	}

	styledHeaders := make([]string, len(headers))
	for i, h := range headers {
		styledHeaders[i] = headerFn(h)
	}

	t := table.New().
		Border(lipgloss.HiddenBorder()).
		BorderTop(false).
		BorderBottom(false).
		BorderLeft(false).
		BorderRight(false).
		BorderHeader(false).
		BorderColumn(false).
		BorderRow(false).
		StyleFunc(func(_, col int) lipgloss.Style {
			if col < len(headers)-1 {
				return lipgloss.NewStyle().PaddingRight(2)
			}
			return lipgloss.NewStyle()
		}).
		Headers(styledHeaders...)
	if w := ios.TerminalWidth(); w > 0 {
		t = t.Width(w)
	}

	for _, row := range rows {
		styled := make([]string, len(row))
		for i, c := range row {
			if i == 0 {
				styled[i] = primaryFn(c)
			} else {
				styled[i] = cellFn(c)
			}
		}
		t = t.Row(styled...)
	}

	return strings.TrimRight(t.String(), "\n")
}
