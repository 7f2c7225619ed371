package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/noah-isme/lessons-api/internal/models"
	"github.com/noah-isme/lessons-api/pkg/export"
	appErrors "github.com/noah-isme/lessons-api/pkg/errors"
)

// ExportFormat is an output format for lesson exports.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

const exportTimeLayout = "2006-01-02 15:04"

var lessonExportHeaders = []string{"ID", "Title", "Teacher", "Student", "Start", "End", "Status", "Updated"}

// ExportResult is a rendered export ready to stream back.
type ExportResult struct {
	Filename    string
	ContentType string
	Body        []byte
}

// ParseExportFormat validates a requested format. Empty means CSV.
func ParseExportFormat(raw string) (ExportFormat, error) {
	switch ExportFormat(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ExportFormatCSV:
		return ExportFormatCSV, nil
	case ExportFormatPDF:
		return ExportFormatPDF, nil
	}
	return "", appErrors.WithDetails(appErrors.Clone(appErrors.ErrValidation, "unsupported export format"),
		map[string]string{"format": "format must be csv or pdf"})
}

func lessonDataset(lessons []models.Lesson) export.Dataset {
	data := export.Dataset{
		Title:   "Lessons",
		Headers: lessonExportHeaders,
		Rows:    make([]map[string]string, 0, len(lessons)),
	}
	for _, l := range lessons {
		data.Rows = append(data.Rows, map[string]string{
			"ID":      l.ID,
			"Title":   l.Title,
			"Teacher": l.TeacherID,
			"Student": l.StudentID,
			"Start":   l.StartTime.UTC().Format(exportTimeLayout),
			"End":     l.EndTime.UTC().Format(exportTimeLayout),
			"Status":  string(l.Status),
			"Updated": l.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}
	return data
}

func renderLessons(lessons []models.Lesson, format ExportFormat, now time.Time) (*ExportResult, error) {
	data := lessonDataset(lessons)
	filename := fmt.Sprintf("lessons-%s.%s", now.UTC().Format("20060102-150405"), format)

	switch format {
	case ExportFormatCSV:
		body, err := export.RenderCSV(data)
		if err != nil {
			return nil, err
		}
		return &ExportResult{Filename: filename, ContentType: "text/csv", Body: body}, nil
	case ExportFormatPDF:
		body, err := export.RenderPDF(data)
		if err != nil {
			return nil, err
		}
		return &ExportResult{Filename: filename, ContentType: "application/pdf", Body: body}, nil
	}
	return nil, fmt.Errorf("unsupported format %s", format)
}
