package audit

import (
	"context"
	"fmt"
	"io"
	"time"
)

// TableExporter reads the rows of one month from the exported tables.
type TableExporter interface {
	GetTableNames(ctx context.Context) ([]string, error)

	// GetTableData returns rows whose time column falls in [from, to).
	GetTableData(ctx context.Context, tableName string, from, to time.Time) ([]map[string]interface{}, []string, error)
}

// ExcelWriter writes data to Excel format.
type ExcelWriter interface {
	AddSheet(name string) error
	WriteHeader(columns []string) error
	WriteRow(row []interface{}) error
	Save(w io.Writer) error
	Close() error
}

// Notifier delivers the finished report.
type Notifier interface {
	SendDocument(ctx context.Context, filename string, data []byte, caption string) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, filename string, data []byte, caption string) error

func (f NotifierFunc) SendDocument(ctx context.Context, filename string, data []byte, caption string) error {
	return f(ctx, filename, data, caption)
}

// DataCleaner deletes claims past the retention window.
type DataCleaner interface {
	DeleteOldClaims(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Logger for audit operations.
type Logger interface {
	Info(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Debug(msg string, fields ...interface{})
}

// MonthNames in German for file names.
var MonthNames = map[time.Month]string{
	time.January:   "Januar",
	time.February:  "Februar",
	time.March:     "März",
	time.April:     "April",
	time.May:       "Mai",
	time.June:      "Juni",
	time.July:      "Juli",
	time.August:    "August",
	time.September: "September",
	time.October:   "Oktober",
	time.November:  "November",
	time.December:  "Dezember",
}

// SheetTitles names the workbook sheets per table.
var SheetTitles = map[string]string{
	"aufguss_claims": "Aufgüsse",
	"festivals":      "Feste",
	"posts":          "Beiträge",
}

// GenerateFilename creates a filename like "Oktober_2026.xlsx".
func GenerateFilename(t time.Time) string {
	return fmt.Sprintf("%s_%d.xlsx", MonthNames[t.Month()], t.Year())
}

// MonthRange returns the first instant of month and of the month after, in loc.
func MonthRange(month time.Time, loc *time.Location) (time.Time, time.Time) {
	m := month.In(loc)
	from := time.Date(m.Year(), m.Month(), 1, 0, 0, 0, 0, loc)
	return from, from.AddDate(0, 1, 0)
}

// ParseMonth parses "YYYY-MM".
func ParseMonth(s string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01", s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("month must be YYYY-MM: %w", err)
	}
	return t, nil
}
