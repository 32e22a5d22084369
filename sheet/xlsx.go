package sheet

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/christianvidalwolf-prog/promochecker/models"
)

// ReportSheet is the name of the single sheet of the XLSX report.
const ReportSheet = "Report"

// templateURLs are the sample rows of a fresh input template.
var templateURLs = []string{
	"https://www.amazon.es/dp/B08N5W4N65",
	"https://www.amazon.es/dp/B09G9F5T3N",
	"https://www.amazon.es/dp/B07PGV7C9Q",
}

// ReadXLSX parses the first sheet of a workbook.
func ReadXLSX(r io.Reader) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, invalidInput("cannot open XLSX input", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, invalidInput("workbook has no sheets", nil)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, invalidInput(fmt.Sprintf("cannot read sheet %q", sheets[0]), err)
	}
	return newTable(rows, nil)
}

// WriteXLSX writes the report workbook: one sheet, input columns followed by
// the output columns, and absolute http(s) URLs rendered as hyperlinks.
func WriteXLSX(w io.Writer, t *Table, results []models.PromoCheckResult) error {
	header, rows, urlCol := reportRows(t, results)

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", ReportSheet); err != nil {
		return err
	}
	if err := f.SetSheetRow(ReportSheet, "A1", &header); err != nil {
		return err
	}

	linkStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Color: "0563C1", Underline: "single"},
	})
	if err != nil {
		return err
	}

	for i, row := range rows {
		start, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(ReportSheet, start, &row); err != nil {
			return err
		}

		link := row[urlCol]
		if !isAbsoluteHTTPURL(link) {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(urlCol+1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetCellHyperLink(ReportSheet, cell, link, "External"); err != nil {
			return err
		}
		if err := f.SetCellStyle(ReportSheet, cell, cell, linkStyle); err != nil {
			return err
		}
	}

	return f.Write(w)
}

// Template writes an input workbook with a URL column and sample rows.
func Template(w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetCellValue("Sheet1", "A1", "URL"); err != nil {
		return err
	}
	for i, u := range templateURLs {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetCellValue("Sheet1", cell, u); err != nil {
			return err
		}
	}
	if err := f.SetColWidth("Sheet1", "A", "A", 45); err != nil {
		return err
	}
	return f.Write(w)
}

func isAbsoluteHTTPURL(s string) bool {
	if s == "" {
		return false
	}
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
