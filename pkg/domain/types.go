package domain

import (
	"fmt"
	"strconv"
	"time"
)

// User is a registered account. The password hash never leaves the backend.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// FormField is one entry in a form definition's ordered field list.
type FormField struct {
	ID          string   `json:"id"`
	Type        string   `json:"type"`
	Label       string   `json:"label"`
	Required    bool     `json:"required,omitempty"`
	Placeholder string   `json:"placeholder,omitempty"`
	Caption     string   `json:"caption,omitempty"`
	Options     []string `json:"options,omitempty"`
	Value       any      `json:"value,omitempty"`
}

// Form is an editable form definition owned by a user.
type Form struct {
	ID        int64       `json:"form_id"`
	Name      string      `json:"form_name"`
	Fields    []FormField `json:"fields"`
	UserID    string      `json:"user_id"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// FormElement is one rendered element inside a submission snapshot.
type FormElement struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	Label       string         `json:"label"`
	Placeholder string         `json:"placeholder,omitempty"`
	Options     []string       `json:"options,omitempty"`
	Required    bool           `json:"required,omitempty"`
	Validation  map[string]any `json:"validation,omitempty"`
	Value       string         `json:"value,omitempty"`
	Size        string         `json:"size,omitempty"`
}

// FormTheme captures the visual settings stored with a snapshot.
type FormTheme struct {
	PrimaryColor    string `json:"primaryColor"`
	BackgroundColor string `json:"backgroundColor"`
	TextColor       string `json:"textColor"`
	BorderRadius    string `json:"borderRadius"`
	FontFamily      string `json:"fontFamily"`
	Layout          string `json:"layout"`
	Style           string `json:"style"`
}

// FormSnapshot is a stored copy of a form's elements and theme at submission
// time. Multiple snapshots may share a form id; the newest one wins on fetch.
type FormSnapshot struct {
	ID          int64         `json:"id"`
	FormID      int64         `json:"form_id"`
	Name        string        `json:"form_name"`
	Description string        `json:"form_description,omitempty"`
	Elements    []FormElement `json:"form_elements"`
	Theme       *FormTheme    `json:"form_theme,omitempty"`
	UserID      string        `json:"user_id"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// FormatUserID renders a sequence number as a public user id.
// IDs are zero-padded to three digits and simply widen beyond 999.
func FormatUserID(seq int64) string {
	return fmt.Sprintf("%03d", seq)
}

// ParseUserID converts a public user id back to its sequence number.
func ParseUserID(id string) (int64, error) {
	seq, err := strconv.ParseInt(id, 10, 64)
	if err != nil || seq <= 0 {
		return 0, fmt.Errorf("invalid user id %q", id)
	}
	return seq, nil
}
