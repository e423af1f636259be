package app

import (
	"fmt"
	"strings"
	"time"

	"formforge/pkg/domain"
)

// DefaultFormName is substituted when a form is saved with a blank name.
const DefaultFormName = "Untitled Form"

func normalizeFormName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultFormName
	}
	return name
}

// AutoSave inserts a new form definition row. Every auto-save creates a new
// record; there is no upsert in this flow.
func (a *App) AutoSave(name string, fields []domain.FormField, userID string) (domain.Form, error) {
	if len(fields) == 0 {
		return domain.Form{}, ErrFieldsRequired
	}
	if _, err := domain.ParseUserID(userID); err != nil {
		return domain.Form{}, ErrUserIDRequired
	}
	now := time.Now().UTC()
	form := domain.Form{
		Name:      normalizeFormName(name),
		Fields:    fields,
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	saved, err := a.store.CreateForm(form)
	if err != nil {
		return domain.Form{}, fmt.Errorf("save form: %w", err)
	}
	return saved, nil
}

// ListForms returns every form row, unfiltered by user.
func (a *App) ListForms() ([]domain.Form, error) {
	forms, err := a.store.ListForms()
	if err != nil {
		return nil, fmt.Errorf("list forms: %w", err)
	}
	return forms, nil
}

// GetForm returns a form definition by id.
func (a *App) GetForm(id int64) (domain.Form, error) {
	form, ok, err := a.store.GetForm(id)
	if err != nil {
		return domain.Form{}, fmt.Errorf("fetch form: %w", err)
	}
	if !ok {
		return domain.Form{}, ErrFormNotFound
	}
	return form, nil
}

// UpdateForm overwrites name and fields after an ownership check.
func (a *App) UpdateForm(id int64, name string, fields []domain.FormField, userID string) (domain.Form, error) {
	existing, ok, err := a.store.GetForm(id)
	if err != nil {
		return domain.Form{}, fmt.Errorf("fetch form: %w", err)
	}
	if !ok {
		return domain.Form{}, ErrFormNotFound
	}
	if existing.UserID != userID {
		return domain.Form{}, ErrNotOwner
	}
	existing.Name = normalizeFormName(name)
	existing.Fields = fields
	updated, err := a.store.UpdateForm(existing)
	if err != nil {
		return domain.Form{}, fmt.Errorf("update form: %w", err)
	}
	return updated, nil
}
