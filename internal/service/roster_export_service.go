package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/noah-isme/qr-attendance-gateway/internal/models"
	appErrors "github.com/noah-isme/qr-attendance-gateway/pkg/errors"
	"github.com/noah-isme/qr-attendance-gateway/pkg/export"
)

type activeRosterSource interface {
	ActiveRoster(teacherID string) (*models.QRSession, *models.Roster, error)
}

// ExportFile is a rendered roster ready for download.
type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// RosterExportService renders the live roster of the active session.
type RosterExportService struct {
	source    activeRosterSource
	exporters map[string]export.Exporter
	location  *time.Location
	now       func() time.Time
}

// NewRosterExportService constructs the service with CSV and PDF renderers.
func NewRosterExportService(source activeRosterSource, loc *time.Location) *RosterExportService {
	if loc == nil {
		loc = time.UTC
	}
	return &RosterExportService{
		source: source,
		exporters: map[string]export.Exporter{
			"csv": export.NewCSVExporter(),
			"pdf": export.NewPDFExporter(),
		},
		location: loc,
		now:      time.Now,
	}
}

// Export renders the roster in format ("csv" or "pdf", default csv).
func (s *RosterExportService) Export(ctx context.Context, teacherID, format string) (*ExportFile, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = "csv"
	}
	exporter, ok := s.exporters[format]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}

	session, roster, err := s.source.ActiveRoster(teacherID)
	if err != nil {
		return nil, err
	}

	data, err := exporter.Render(s.dataset(session, roster))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render roster export")
	}
	return &ExportFile{
		Filename:    fmt.Sprintf("qr-attendance_%s_%s.%s", session.Scope.Date, sanitizeFilePart(session.SessionID), exporter.Extension()),
		ContentType: exporter.ContentType(),
		Data:        data,
	}, nil
}

func (s *RosterExportService) dataset(session *models.QRSession, roster *models.Roster) export.Dataset {
	title := "QR Attendance"
	if label := strings.TrimSpace(session.SubjectName + " " + session.DivisionName); label != "" {
		title += " - " + label
	}
	meta := []string{
		"Session: " + session.SessionID,
		"Date: " + session.Scope.Date,
		"Time slot: " + session.Scope.TimeSlotID,
		fmt.Sprintf("Students: %d", roster.Count),
		"Exported at: " + s.now().In(s.location).Format("2006-01-02 15:04:05"),
	}
	if !roster.LastRefreshedAt.IsZero() {
		meta = append(meta, "Last refreshed: "+roster.LastRefreshedAt.In(s.location).Format("2006-01-02 15:04:05"))
	}

	headers := []string{"No", "Student ID", "Roll Number", "Name", "Observed At"}
	rows := make([]map[string]string, 0, len(roster.Records))
	for i, record := range roster.Records {
		rows = append(rows, map[string]string{
			"No":          strconv.Itoa(i + 1),
			"Student ID":  record.StudentID,
			"Roll Number": record.RollNumber,
			"Name":        record.Name,
			"Observed At": record.ObservedAt.In(s.location).Format(models.ClockLayout),
		})
	}
	return export.Dataset{Title: title, Meta: meta, Headers: headers, Rows: rows}
}

func sanitizeFilePart(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}
