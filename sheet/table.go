// Package sheet reads product lists from CSV or XLSX files and writes the
// promotion report next to the input columns.
package sheet

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/christianvidalwolf-prog/promochecker/models"
)

// Output columns appended after the input columns, in order.
var OutputColumns = []string{"Promo Status", "Details", "Current Price", "Normal Price", "Discount"}

// Table is a header plus data rows. Every row has len(Header) cells.
type Table struct {
	Header []string
	Rows   [][]string
	// Lines holds the source line of each row, the header being line 1.
	// Nil means the rows sit on consecutive lines right after the header.
	Lines []int
}

// Line returns the source line of row i.
func (t *Table) Line(i int) int {
	if i < len(t.Lines) {
		return t.Lines[i]
	}
	return i + 2
}

// newTable drops blank rows but remembers where the others came from.
// lines gives the source line of each record; nil means record i is on
// line i+1.
func newTable(records [][]string, lines []int) (*Table, error) {
	if len(records) == 0 {
		return nil, invalidInput("input file is empty", nil)
	}
	header := make([]string, len(records[0]))
	for i, h := range records[0] {
		header[i] = strings.TrimSpace(h)
	}
	t := &Table{Header: header}
	for i := 1; i < len(records); i++ {
		rec := records[i]
		if isBlank(rec) {
			continue
		}
		row := make([]string, len(header))
		copy(row, rec)
		t.Rows = append(t.Rows, row)
		line := i + 1
		if i < len(lines) {
			line = lines[i]
		}
		t.Lines = append(t.Lines, line)
	}
	return t, nil
}

func isBlank(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// Column returns the index of the first header equal to name, ignoring case.
func (t *Table) Column(name string) int {
	for i, h := range t.Header {
		if strings.EqualFold(h, name) {
			return i
		}
	}
	return -1
}

// Read opens path and dispatches on its extension (.csv or .xlsx).
func Read(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, invalidInput("cannot open input file", err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return ReadCSV(f)
	case ".xlsx":
		return ReadXLSX(f)
	default:
		return nil, invalidInput(fmt.Sprintf("unsupported input file type %q (want .csv or .xlsx)", filepath.Ext(path)), nil)
	}
}

// Write creates path and writes the report in the format its extension names.
func Write(path string, t *Table, results []models.PromoCheckResult) error {
	var write func(io.Writer, *Table, []models.PromoCheckResult) error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		write = WriteCSV
	case ".xlsx":
		write = WriteXLSX
	default:
		return invalidInput(fmt.Sprintf("unsupported output file type %q (want .csv or .xlsx)", filepath.Ext(path)), nil)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f, t, results); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Inputs turns table rows into check inputs. A URL column wins; otherwise
// an ASIN column is expanded against the marketplace domain. A missing
// column or an empty cell in the chosen column is an INVALID_INPUT error.
func Inputs(t *Table, marketplace string) ([]models.ProductCheckInput, error) {
	urlCol := t.Column("url")
	asinCol := t.Column("asin")
	if urlCol < 0 && asinCol < 0 {
		return nil, invalidInput(fmt.Sprintf("input has neither a URL nor an ASIN column (found %s)",
			strings.Join(t.Header, ", ")), nil)
	}

	var domain string
	if urlCol < 0 {
		d, ok := LookupMarketplace(marketplace)
		if !ok {
			return nil, invalidInput(fmt.Sprintf("unknown marketplace %q", marketplace), nil)
		}
		domain = d
	}

	inputs := make([]models.ProductCheckInput, 0, len(t.Rows))
	for i, row := range t.Rows {
		line := t.Line(i)
		if urlCol >= 0 {
			u := strings.TrimSpace(row[urlCol])
			if u == "" {
				return nil, invalidInput(fmt.Sprintf("row %d: empty URL cell", line), nil)
			}
			inputs = append(inputs, models.ProductCheckInput{Row: i, URL: models.NormalizeURL(u)})
			continue
		}
		asin := strings.TrimSpace(row[asinCol])
		if asin == "" {
			return nil, invalidInput(fmt.Sprintf("row %d: empty ASIN cell", line), nil)
		}
		inputs = append(inputs, models.ProductCheckInput{
			Row:         i,
			URL:         ASINURL(asin, domain),
			ASIN:        asin,
			Marketplace: domain,
		})
	}
	return inputs, nil
}

// reportRows lays out the header and rows of the report: the input columns,
// a URL column when the input had none, then the output columns.
func reportRows(t *Table, results []models.PromoCheckResult) (header []string, rows [][]string, urlCol int) {
	byRow := make(map[int]models.PromoCheckResult, len(results))
	for _, r := range results {
		byRow[r.Row] = r
	}

	urlCol = t.Column("url")
	addURL := urlCol < 0
	header = append(header, t.Header...)
	if addURL {
		urlCol = len(header)
		header = append(header, "URL")
	}
	header = append(header, OutputColumns...)

	for i, in := range t.Rows {
		row := append([]string(nil), in...)
		res, ok := byRow[i]
		if addURL {
			row = append(row, res.URL)
		}
		if ok {
			row = append(row,
				string(res.Status),
				res.Details,
				res.CurrentPrice.String(),
				res.NormalPrice.String(),
				res.DiscountLabel,
			)
		} else {
			row = append(row, make([]string, len(OutputColumns))...)
		}
		rows = append(rows, row)
	}
	return header, rows, urlCol
}

func invalidInput(msg string, err error) *models.CheckError {
	return models.NewCheckError(models.ErrCodeInvalidInput, msg, err)
}
