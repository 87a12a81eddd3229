// Package export renders the job table as an XLSX workbook.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"transcriptiond/internal/domain"
)

// Sheet names in the generated workbook.
const (
	JobsSheet    = "Jobs"
	SummarySheet = "Summary"
)

// Lister is the read side of the job store.
type Lister interface {
	List(ctx context.Context) ([]domain.Job, error)
}

// Service produces XLSX bytes for job reports.
type Service struct {
	jobs   Lister
	logger *slog.Logger
}

func NewService(jobs Lister, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{jobs: jobs, logger: logger}
}

// JobsXLSX returns a workbook with one row per job, oldest first, and a
// per-status summary sheet.
func (s *Service) JobsXLSX(ctx context.Context) ([]byte, error) {
	start := time.Now()

	jobs, err := s.jobs.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	// NewFile starts with "Sheet1"; rename it so Jobs is the first tab.
	if err := f.SetSheetName(f.GetSheetName(0), JobsSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(SummarySheet); err != nil {
		return nil, err
	}

	headers := []string{"ID", "Filename", "Status", "Created At (UTC)", "Upload Path"}
	if err := f.SetSheetRow(JobsSheet, "A1", &headers); err != nil {
		return nil, err
	}

	counts := map[domain.JobStatus]int{}
	for i, job := range jobs {
		counts[job.Status]++
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		row := []any{
			job.ID,
			job.Filename,
			string(job.Status),
			job.CreatedAt.UTC().Format(time.DateTime),
			job.UploadPath,
		}
		if err := f.SetSheetRow(JobsSheet, cell, &row); err != nil {
			return nil, err
		}
	}

	_ = f.SetColWidth(JobsSheet, "A", "A", 38)
	_ = f.SetColWidth(JobsSheet, "B", "B", 32)
	_ = f.SetColWidth(JobsSheet, "C", "C", 10)
	_ = f.SetColWidth(JobsSheet, "D", "D", 20)
	_ = f.SetColWidth(JobsSheet, "E", "E", 60)
	_ = f.SetPanes(JobsSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})

	_ = f.SetSheetRow(SummarySheet, "A1", &[]string{"Status", "Jobs"})
	statuses := []domain.JobStatus{domain.JobStatusQueued, domain.JobStatusRunning, domain.JobStatusDone, domain.JobStatusFailed}
	for i, status := range statuses {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(SummarySheet, cell, &[]any{string(status), counts[status]}); err != nil {
			return nil, err
		}
	}
	total, _ := excelize.CoordinatesToCellName(1, len(statuses)+2)
	_ = f.SetSheetRow(SummarySheet, total, &[]any{"total", len(jobs)})

	f.SetActiveSheet(0)
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("jobs exported",
		"rows", len(jobs),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}
