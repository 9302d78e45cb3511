package dashclient

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// ReportExporterOptions configures the report exporter.
type ReportExporterOptions struct {
	Gateway   ReportGateway
	Saver     FileSaver
	Telemetry Telemetry
	Logger    *zap.Logger

	// Extension of the saved report file, without the dot. The server
	// currently emits PDF.
	Extension string
}

// ReportExporter requests the binary report for an upload and saves it
// locally. Export failures never touch any other view state.
type ReportExporter struct {
	opts ReportExporterOptions
}

// NewReportExporter builds an exporter with safe defaults: files land in
// the current working directory as report_<id>.pdf.
func NewReportExporter(opts ReportExporterOptions) *ReportExporter {
	opts.Telemetry = normalizeTelemetry(opts.Telemetry)
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Saver == nil {
		opts.Saver = DirFileSaver{}
	}
	if opts.Extension == "" {
		opts.Extension = "pdf"
	}
	return &ReportExporter{opts: opts}
}

// ExportReport fetches the report blob for uploadID and triggers a local
// save, returning the path written.
func (e *ReportExporter) ExportReport(ctx context.Context, uploadID int) (string, error) {
	if e.opts.Gateway == nil {
		return "", fmt.Errorf("dashclient: report gateway not configured")
	}
	blob, err := e.opts.Gateway.Report(ctx, uploadID)
	if err != nil {
		e.opts.Logger.Warn("report fetch failed", zap.Int("upload_id", uploadID), zap.Error(err))
		return "", fmt.Errorf("dashclient: export report for upload %d: %w", uploadID, err)
	}

	name := fmt.Sprintf("report_%d.%s", uploadID, e.opts.Extension)
	path, err := e.opts.Saver.Save(name, blob)
	if err != nil {
		return "", fmt.Errorf("dashclient: save report %s: %w", name, err)
	}
	e.opts.Telemetry.Record(ctx, "report.exported", map[string]any{
		"upload_id": uploadID,
		"bytes":     len(blob),
	})
	return path, nil
}

// DirFileSaver writes files into Dir (working directory when empty).
type DirFileSaver struct {
	Dir string
}

// Save writes content under the saver's directory and returns the path.
func (s DirFileSaver) Save(name string, content []byte) (string, error) {
	dir := s.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
