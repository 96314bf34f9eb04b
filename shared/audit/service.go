package audit

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
)

// Config holds configuration for the audit service.
type Config struct {
	// DataRetentionDays is how long tallied claims are kept. Default: 365.
	DataRetentionDays int

	// ExportDir keeps a copy of every monthly report. Empty disables the copy.
	ExportDir string

	// ClubName appears in the report caption.
	ClubName string

	Location *time.Location
}

// Service exports the previous month to Excel and removes expired claims.
type Service struct {
	config   Config
	exporter TableExporter
	writer   func() ExcelWriter
	notifier Notifier
	cleaner  DataCleaner
	logger   Logger
	now      func() time.Time
}

// NewService creates the audit service. notifier and cleaner may be nil.
func NewService(
	config Config,
	exporter TableExporter,
	writerFactory func() ExcelWriter,
	notifier Notifier,
	cleaner DataCleaner,
	logger Logger,
) *Service {
	if config.DataRetentionDays <= 0 {
		config.DataRetentionDays = 365
	}
	if config.Location == nil {
		config.Location = time.Local
	}
	if config.ClubName == "" {
		config.ClubName = "Saunafreunde"
	}
	if writerFactory == nil {
		writerFactory = NewExcelizeWriter
	}

	return &Service{
		config:   config,
		exporter: exporter,
		writer:   writerFactory,
		notifier: notifier,
		cleaner:  cleaner,
		logger:   logger,
		now:      time.Now,
	}
}

// Register schedules RunMonthly on c.
func (s *Service) Register(c *cron.Cron, spec string) error {
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()
		s.RunMonthly(ctx)
	})
	if err != nil {
		return fmt.Errorf("schedule audit %q: %w", spec, err)
	}
	s.logger.Info("Audit scheduled", "spec", spec, "retention_days", s.config.DataRetentionDays)
	return nil
}

// RunMonthly sends the report of the previous month and deletes expired claims.
func (s *Service) RunMonthly(ctx context.Context) {
	now := s.now().In(s.config.Location)
	prev := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, s.config.Location).AddDate(0, -1, 0)

	if err := s.sendReport(ctx, prev); err != nil {
		s.logger.Error("Failed to export audit data", "month", prev.Format("2006-01"), "error", err)
	}
	if err := s.Cleanup(ctx); err != nil {
		s.logger.Error("Failed to clean up old claims", "error", err)
	}
}

func (s *Service) sendReport(ctx context.Context, month time.Time) error {
	var buf bytes.Buffer
	if err := s.ExportMonth(ctx, month, &buf); err != nil {
		return err
	}
	filename := GenerateFilename(month)

	if s.config.ExportDir != "" {
		if err := os.MkdirAll(s.config.ExportDir, 0o755); err != nil {
			return fmt.Errorf("create export dir: %w", err)
		}
		if err := os.WriteFile(filepath.Join(s.config.ExportDir, filename), buf.Bytes(), 0o644); err != nil {
			return fmt.Errorf("write export: %w", err)
		}
	}

	if s.notifier != nil {
		caption := fmt.Sprintf("📊 Monatsbericht %s: %s %d", s.config.ClubName, MonthNames[month.Month()], month.Year())
		if err := s.notifier.SendDocument(ctx, filename, buf.Bytes(), caption); err != nil {
			return fmt.Errorf("send document: %w", err)
		}
	}

	s.logger.Info("Audit report created", "filename", filename, "bytes", buf.Len())
	return nil
}

// ExportMonth writes one sheet per table with the rows of month.
func (s *Service) ExportMonth(ctx context.Context, month time.Time, w io.Writer) error {
	from, to := MonthRange(month, s.config.Location)

	tables, err := s.exporter.GetTableNames(ctx)
	if err != nil {
		return fmt.Errorf("get table names: %w", err)
	}

	excel := s.writer()
	defer excel.Close()

	for _, table := range tables {
		data, columns, err := s.exporter.GetTableData(ctx, table, from, to)
		if err != nil {
			return fmt.Errorf("read %s: %w", table, err)
		}

		title := table
		if t, ok := SheetTitles[table]; ok {
			title = t
		}
		if err := excel.AddSheet(title); err != nil {
			return err
		}
		if err := excel.WriteHeader(columns); err != nil {
			return fmt.Errorf("write header of %s: %w", table, err)
		}
		for _, row := range data {
			values := make([]interface{}, len(columns))
			for i, col := range columns {
				values[i] = row[col]
			}
			if err := excel.WriteRow(values); err != nil {
				return fmt.Errorf("write row of %s: %w", table, err)
			}
		}
		s.logger.Debug("Exported table", "table", table, "rows", len(data))
	}

	if err := excel.Save(w); err != nil {
		return fmt.Errorf("save excel: %w", err)
	}
	return nil
}

// Cleanup deletes tallied claims older than the retention window.
func (s *Service) Cleanup(ctx context.Context) error {
	if s.cleaner == nil {
		return nil
	}

	retention := time.Duration(s.config.DataRetentionDays) * 24 * time.Hour
	deleted, err := s.cleaner.DeleteOldClaims(ctx, retention)
	if err != nil {
		return fmt.Errorf("delete old claims: %w", err)
	}

	s.logger.Info("Cleaned up old claims",
		"deleted_count", deleted,
		"retention_days", s.config.DataRetentionDays,
	)
	return nil
}
