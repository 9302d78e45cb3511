package dashclient

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/ettle/strcase"
	"go.uber.org/zap"
)

// UploadState tracks where a submission is in its lifecycle.
type UploadState string

const (
	UploadIdle      UploadState = "idle"
	UploadUploading UploadState = "uploading"
	UploadSucceeded UploadState = "succeeded"
	UploadFailed    UploadState = "failed"
)

// Column names (normalized) every uploaded CSV must carry. The server
// parses by the original headers; checking here turns a doomed upload into
// a local error before any bytes leave the client.
var requiredColumns = []string{"equipment_name", "type", "flowrate", "pressure", "temperature"}

// UploadControllerOptions configures the upload controller.
type UploadControllerOptions struct {
	Gateway   UploadGateway
	ViewModel *ViewModel
	Telemetry Telemetry
	Events    *Broadcast
	Logger    *zap.Logger
}

// UploadController drives CSV submission. A successful upload chains two
// further steps as a unit: refresh history, then select the new upload.
// The flow only reports loaded once both complete; a failure in either is
// an upload-flow failure even though the upload itself landed.
type UploadController struct {
	opts UploadControllerOptions

	mu       sync.Mutex
	state    UploadState
	lastErr  string
	inFlight bool
}

// NewUploadController builds an idle controller.
func NewUploadController(opts UploadControllerOptions) *UploadController {
	opts.Telemetry = normalizeTelemetry(opts.Telemetry)
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &UploadController{opts: opts, state: UploadIdle}
}

// State returns the current lifecycle state and, when failed, the error
// message of the last attempt.
func (u *UploadController) State() (UploadState, string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.state, u.lastErr
}

// Submit uploads the CSV read from content. Submission is serialized: a
// second call while one is uploading is rejected without issuing a
// network request.
func (u *UploadController) Submit(ctx context.Context, filename string, content io.Reader) error {
	if content == nil {
		return ErrMissingFile
	}
	if u.opts.Gateway == nil {
		return fmt.Errorf("dashclient: upload gateway not configured")
	}

	u.mu.Lock()
	if u.inFlight {
		u.mu.Unlock()
		return ErrUploadInFlight
	}
	u.inFlight = true
	u.state = UploadUploading
	u.lastErr = ""
	u.mu.Unlock()

	err := u.submit(ctx, filename, content)

	u.mu.Lock()
	u.inFlight = false
	if err != nil {
		u.state = UploadFailed
		u.lastErr = err.Error()
	} else {
		u.state = UploadSucceeded
	}
	u.mu.Unlock()
	return err
}

func (u *UploadController) submit(ctx context.Context, filename string, content io.Reader) error {
	data, err := io.ReadAll(content)
	if err != nil {
		return fmt.Errorf("dashclient: read upload file: %w", err)
	}
	if err := checkCSVHeaders(data); err != nil {
		return err
	}

	result, err := u.opts.Gateway.Upload(ctx, filename, bytes.NewReader(data))
	if err != nil {
		u.opts.Logger.Warn("upload failed", zap.String("filename", filename), zap.Error(err))
		return fmt.Errorf("dashclient: upload %s: %w", filename, err)
	}
	u.opts.Logger.Info("upload accepted",
		zap.String("filename", filename),
		zap.Int("upload_id", result.ID),
		zap.Int("records", result.Records))
	u.opts.Telemetry.Record(ctx, "upload.accepted", map[string]any{
		"upload_id": result.ID,
		"records":   result.Records,
	})

	// Post-success chain: the history refresh must land before the
	// selection so the new entry passes the selection's history check.
	if u.opts.ViewModel != nil {
		if err := u.opts.ViewModel.RefreshHistory(ctx); err != nil {
			return fmt.Errorf("dashclient: upload %d accepted but history refresh failed: %w", result.ID, err)
		}
		if err := u.opts.ViewModel.SelectUpload(ctx, result.ID); err != nil {
			return fmt.Errorf("dashclient: upload %d accepted but selection failed: %w", result.ID, err)
		}
	}

	u.opts.Events.Publish(StateEvent{Kind: EventUploadSucceeded, UploadID: result.ID})
	return nil
}

// checkCSVHeaders validates the header row locally. Headers are compared
// after snake_case normalization so "Equipment Name" and "equipment_name"
// both pass.
func checkCSVHeaders(data []byte) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return fmt.Errorf("dashclient: %w: file is empty", ErrMissingFile)
	}
	reader := csv.NewReader(bytes.NewReader(data))
	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("dashclient: unreadable CSV header: %w", err)
	}
	seen := make(map[string]bool, len(header))
	for _, col := range header {
		seen[strcase.ToSnake(strings.TrimSpace(col))] = true
	}
	var missing []string
	for _, col := range requiredColumns {
		if !seen[col] {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("dashclient: CSV missing required columns: %s", strings.Join(missing, ", "))
	}
	return nil
}
