package store

import (
	"errors"

	"formforge/pkg/domain"
)

// ErrDuplicate is returned when an insert violates a unique constraint.
var ErrDuplicate = errors.New("duplicate record")

// ErrTableMissing is returned by raw credential queries when the usercred
// table has not been created yet.
var ErrTableMissing = errors.New("usercred table does not exist")

// ColumnInfo describes one column of the usercred table.
type ColumnInfo struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}

// Store defines persistence operations for credentials, form definitions,
// and submission snapshots.
type Store interface {
	// credentials
	CreateUser(username, email, passwordHash string) (domain.User, error)
	HasUsername(username string) (bool, error)
	HasUserEmail(email string) (bool, error)
	GetUserByUsername(username string) (domain.User, bool, error)
	GetUserByID(id string) (domain.User, bool, error)
	CredentialRows() ([]map[string]any, error)
	CredentialColumns() ([]ColumnInfo, error)

	// forms
	CreateForm(form domain.Form) (domain.Form, error)
	ListForms() ([]domain.Form, error)
	GetForm(id int64) (domain.Form, bool, error)
	UpdateForm(form domain.Form) (domain.Form, error)

	// snapshots
	CreateSnapshot(snap domain.FormSnapshot) (domain.FormSnapshot, error)
	LatestSnapshotByFormID(formID int64) (domain.FormSnapshot, bool, error)
	ListSnapshotsByUser(userID string) ([]domain.FormSnapshot, error)
	GetSnapshot(id int64) (domain.FormSnapshot, bool, error)
	UpdateSnapshot(snap domain.FormSnapshot) (domain.FormSnapshot, error)
	DeleteSnapshot(id int64) error
}

// SessionStore issues and validates bearer tokens.
type SessionStore interface {
	NewSession(userID string) (string, error)
	GetUserIDByToken(token string) (string, bool, error)
	DeleteSession(token string) error
}
