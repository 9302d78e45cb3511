package dashclient

import (
	"context"
	"io"
	"time"
)

// UploadSummary is one entry in the upload history list. Entries are
// immutable server-side; the list is consumed in the order the server
// returns it (most recent first).
type UploadSummary struct {
	ID         int       `json:"id"`
	UploadedAt time.Time `json:"uploaded_at"`
	UploadedBy string    `json:"user"`
	Filename   string    `json:"file"`
	Records    int       `json:"total_records"`
}

// EquipmentRecord is a single parsed CSV row belonging to one upload.
type EquipmentRecord struct {
	ID            int     `json:"id"`
	EquipmentName string  `json:"equipment_name"`
	EquipmentType string  `json:"equipment_type"`
	Flowrate      float64 `json:"flowrate"`
	Pressure      float64 `json:"pressure"`
	Temperature   float64 `json:"temperature"`
}

// Averages holds the server-computed mean of each measured parameter.
type Averages struct {
	Flowrate    float64 `json:"avg_flowrate"`
	Pressure    float64 `json:"avg_pressure"`
	Temperature float64 `json:"avg_temperature"`
}

// TypeCount buckets equipment rows by type.
type TypeCount struct {
	EquipmentType string `json:"equipment_type"`
	Count         int    `json:"count"`
}

// StatsSummary is the aggregate computed server-side for one upload. It is
// recomputed whole whenever a different upload is selected, never merged.
type StatsSummary struct {
	UploadID         int         `json:"upload_id"`
	TotalCount       int         `json:"total_count"`
	Averages         Averages    `json:"averages"`
	TypeDistribution []TypeCount `json:"type_distribution"`
}

// SelectedUpload pairs an upload id with its row data. It is only ever
// committed to view state together with the matching StatsSummary.
type SelectedUpload struct {
	ID      int
	Records []EquipmentRecord
}

// UserProfile describes the logged-in user, and doubles as the entry shape
// of the admin users listing.
type UserProfile struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	IsStaff  bool   `json:"is_staff"`
}

// Tab identifies the mutually exclusive top-level dashboard views.
type Tab string

const (
	TabDashboard Tab = "dashboard"
	TabHistory   Tab = "history"
	TabUpload    Tab = "upload"
	TabUsers     Tab = "users"
)

// UploadResult is the server acknowledgement of a CSV submission.
type UploadResult struct {
	ID       int    `json:"id"`
	Filename string `json:"file"`
	Records  int    `json:"total_records"`
}

// Credentials carry a login attempt.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Registration carries a sign-up attempt.
type Registration struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// DataGateway is the read surface the view-model depends on. The concrete
// *Client implements it; tests substitute channel-gated stubs.
type DataGateway interface {
	Profile(ctx context.Context) (UserProfile, error)
	History(ctx context.Context) ([]UploadSummary, error)
	Summary(ctx context.Context, uploadID int) (StatsSummary, error)
	Data(ctx context.Context, uploadID int) ([]EquipmentRecord, error)
	Users(ctx context.Context) ([]UserProfile, error)
}

// AuthGateway covers the unauthenticated account endpoints.
type AuthGateway interface {
	Login(ctx context.Context, creds Credentials) (string, error)
	Register(ctx context.Context, reg Registration) error
	RequestPasswordReset(ctx context.Context, email string) error
	ConfirmPasswordReset(ctx context.Context, uid, token, newPassword string) error
}

// UploadGateway submits multipart CSV payloads.
type UploadGateway interface {
	Upload(ctx context.Context, filename string, content io.Reader) (UploadResult, error)
}

// ReportGateway fetches the server-rendered binary report for an upload.
type ReportGateway interface {
	Report(ctx context.Context, uploadID int) ([]byte, error)
}

// TokenKeeper persists the session token across process restarts.
type TokenKeeper interface {
	Load() (string, error)
	Store(token string) error
	Clear() error
}

// FileSaver writes exported payloads to local storage.
type FileSaver interface {
	Save(name string, content []byte) (string, error)
}
