package domain

import "time"

// Uploaded file status constants
const (
	FileStatusQueued     = "queued"
	FileStatusProcessing = "processing"
	FileStatusCompleted  = "completed"
	FileStatusFailed     = "failed"
)

// User holds the per-user credit balance alongside account metadata.
type User struct {
	ID        string    `db:"id"`
	Email     string    `db:"email"`
	Plan      string    `db:"plan"`
	Credits   int       `db:"credits"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Project groups one uploaded source video and its extracted clips.
type Project struct {
	ID          string    `db:"id"`
	Name        string    `db:"name"`
	Description *string   `db:"description"`
	OwnerID     string    `db:"owner_id"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// UploadedFile is the durable record of one source video, keyed by its
// object-storage key. Status transitions are owned by the workflow machine.
type UploadedFile struct {
	ID          string    `db:"id"`
	R2Key       string    `db:"r2_key"`
	DisplayName *string   `db:"display_name"`
	Uploaded    bool      `db:"uploaded"`
	Status      string    `db:"status"`
	UserID      string    `db:"user_id"`
	ProjectID   string    `db:"project_id"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// Clip references one extracted clip object. The (r2_key, uploaded_file_id)
// pair is unique so repeated bucket listings never create duplicate rows.
type Clip struct {
	ID             string    `db:"id"`
	R2Key          string    `db:"r2_key"`
	UserID         string    `db:"user_id"`
	UploadedFileID string    `db:"uploaded_file_id"`
	CreatedAt      time.Time `db:"created_at"`
}

// CreditTransaction is the audit row backing ledger idempotency. At most one
// debit and one refund row can exist per (user, instance).
type CreditTransaction struct {
	ID         int64     `db:"id"`
	UserID     string    `db:"user_id"`
	InstanceID string    `db:"instance_id"`
	Kind       string    `db:"kind"`
	Amount     int       `db:"amount"`
	CreatedAt  time.Time `db:"created_at"`
}
