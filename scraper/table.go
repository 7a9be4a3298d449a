package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/use-agent/fonfetch/models"
	"github.com/use-agent/fonfetch/parser"
)

// TableSpec names a data grid and the logical names of its columns, in
// display order.
type TableSpec struct {
	Name     string
	Selector string
	Columns  []string
}

var (
	reDateCell = regexp.MustCompile(`^\d{2}\.\d{2}\.\d{4}$`)
	reCodeCell = regexp.MustCompile(`^[A-ZÇĞİÖŞÜ0-9]{2,6}$`)
)

// WaitForRows polls the grid until it shows at least one data row, then
// waits the table settle interval so batched DOM updates land.
func WaitForRows(ctx context.Context, s *Session, spec TableSpec, timeout time.Duration) error {
	op := "wait rows " + spec.Name
	start := time.Now()

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(s.cfg.Timing.TablePoll)
	defer ticker.Stop()

	polls := 0
	for {
		polls++
		if markup, err := tableHTML(waitCtx, s, spec); err == nil && markup != "" {
			if rows, err := ParseTable(markup, spec.Columns); err == nil && HasDataRow(rows) {
				slog.Debug("table has data",
					"session", s.ID, "table", spec.Name, "rows", len(rows), "polls", polls, "elapsed", time.Since(start))
				if err := sleepCtx(ctx, s.cfg.Timing.TableSettle); err != nil {
					return models.NewTimeoutError(op, timeout, "request expired during table settle")
				}
				return nil
			}
		}

		select {
		case <-ticker.C:
		case <-waitCtx.Done():
			return models.NewTimeoutError(op, timeout,
				fmt.Sprintf("no data rows in %s after %d polls", spec.Selector, polls))
		}
	}
}

// ExtractRows returns the grid's rows as trimmed cell text keyed by logical
// column name. It does not interpret the values.
func ExtractRows(ctx context.Context, s *Session, spec TableSpec) ([]map[string]string, error) {
	op := "extract " + spec.Name
	markup, err := tableHTML(ctx, s, spec)
	if err != nil {
		return nil, models.NewClientError(op, "failed to read table markup", err)
	}
	if markup == "" {
		return nil, models.NewClientError(op, fmt.Sprintf("table %s not present", spec.Selector), nil)
	}
	rows, err := ParseTable(markup, spec.Columns)
	if err != nil {
		return nil, models.NewParseError(op, "table markup could not be parsed", markup, err)
	}
	return rows, nil
}

// tableHTML returns the outer HTML of the first element matching the spec,
// or "" when the grid is not in the DOM yet.
func tableHTML(ctx context.Context, s *Session, spec TableSpec) (string, error) {
	els, err := s.page.Context(ctx).Elements(spec.Selector)
	if err != nil {
		return "", err
	}
	if len(els) == 0 {
		return "", nil
	}
	return els.First().HTML()
}

// ParseTable reads body rows of an HTML table into maps keyed by columns.
// Rows made of a single spanning cell, the grid's empty placeholder, are
// skipped. Missing trailing cells are absent from the map.
func ParseTable(markup string, columns []string) ([]map[string]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, err
	}

	rowSel := doc.Find("tbody tr")
	if rowSel.Length() == 0 {
		rowSel = doc.Find("tr")
	}

	var rows []map[string]string
	rowSel.Each(func(_ int, tr *goquery.Selection) {
		cells := tr.Find("td")
		if cells.Length() == 0 {
			return
		}
		if cells.Length() == 1 && (cells.HasClass("dataTables_empty") || len(columns) > 1) {
			return
		}
		row := make(map[string]string, len(columns))
		cells.Each(func(i int, td *goquery.Selection) {
			if i < len(columns) {
				row[columns[i]] = normalizeCell(td.Text())
			}
		})
		rows = append(rows, row)
	})
	return rows, nil
}

// HasDataRow reports whether any row's date or fund code cell looks like
// data rather than a header or placeholder.
func HasDataRow(rows []map[string]string) bool {
	for _, row := range rows {
		for _, key := range []string{"tarih", "fonKodu"} {
			v, ok := row[key]
			if !ok || parser.IsSentinel(v) {
				continue
			}
			if reDateCell.MatchString(v) || reCodeCell.MatchString(v) {
				return true
			}
		}
	}
	return false
}

func normalizeCell(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "\u00a0", " "))
}
