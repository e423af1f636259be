package app

import (
	"fmt"
	"strings"
	"time"

	"formforge/pkg/domain"
)

const defaultElementSize = "normal"

func normalizeElements(elements []domain.FormElement) []domain.FormElement {
	for i := range elements {
		if strings.TrimSpace(elements[i].Size) == "" {
			elements[i].Size = defaultElementSize
		}
	}
	return elements
}

// CreateSnapshot stores a new submission snapshot for a form.
func (a *App) CreateSnapshot(snap domain.FormSnapshot) (domain.FormSnapshot, error) {
	if snap.FormID <= 0 {
		return domain.FormSnapshot{}, ErrFormIDRequired
	}
	if strings.TrimSpace(snap.Name) == "" {
		return domain.FormSnapshot{}, ErrFormNameRequired
	}
	if snap.Elements == nil {
		return domain.FormSnapshot{}, ErrElementsRequired
	}
	if _, err := domain.ParseUserID(snap.UserID); err != nil {
		return domain.FormSnapshot{}, ErrUserIDRequired
	}
	now := time.Now().UTC()
	snap.ID = 0
	snap.Elements = normalizeElements(snap.Elements)
	snap.CreatedAt = now
	snap.UpdatedAt = now
	saved, err := a.store.CreateSnapshot(snap)
	if err != nil {
		return domain.FormSnapshot{}, fmt.Errorf("save form data: %w", err)
	}
	return saved, nil
}

// LatestSnapshot returns the most recently created snapshot for a form id.
func (a *App) LatestSnapshot(formID int64) (domain.FormSnapshot, error) {
	snap, ok, err := a.store.LatestSnapshotByFormID(formID)
	if err != nil {
		return domain.FormSnapshot{}, fmt.Errorf("fetch form data: %w", err)
	}
	if !ok {
		return domain.FormSnapshot{}, ErrSnapshotNotFound
	}
	return snap, nil
}

// SnapshotsByUser returns every snapshot owned by the user. An empty result
// is not an error.
func (a *App) SnapshotsByUser(userID string) ([]domain.FormSnapshot, error) {
	snaps, err := a.store.ListSnapshotsByUser(userID)
	if err != nil {
		return nil, fmt.Errorf("list form data: %w", err)
	}
	return snaps, nil
}

// UpdateSnapshot overwrites a stored snapshot. When the caller's identity is
// known it must match the stored owner.
func (a *App) UpdateSnapshot(id int64, snap domain.FormSnapshot, callerID string) (domain.FormSnapshot, error) {
	existing, ok, err := a.store.GetSnapshot(id)
	if err != nil {
		return domain.FormSnapshot{}, fmt.Errorf("fetch form data: %w", err)
	}
	if !ok {
		return domain.FormSnapshot{}, ErrSnapshotNotFound
	}
	if callerID != "" && existing.UserID != callerID {
		return domain.FormSnapshot{}, ErrNotOwner
	}
	if strings.TrimSpace(snap.Name) == "" {
		return domain.FormSnapshot{}, ErrFormNameRequired
	}
	if snap.Elements == nil {
		return domain.FormSnapshot{}, ErrElementsRequired
	}
	snap.ID = id
	snap.FormID = existing.FormID
	snap.UserID = existing.UserID
	snap.CreatedAt = existing.CreatedAt
	snap.Elements = normalizeElements(snap.Elements)
	updated, err := a.store.UpdateSnapshot(snap)
	if err != nil {
		return domain.FormSnapshot{}, fmt.Errorf("update form data: %w", err)
	}
	return updated, nil
}

// DeleteSnapshot removes a snapshot. When the caller's identity is known it
// must match the stored owner.
func (a *App) DeleteSnapshot(id int64, callerID string) error {
	existing, ok, err := a.store.GetSnapshot(id)
	if err != nil {
		return fmt.Errorf("fetch form data: %w", err)
	}
	if !ok {
		return ErrSnapshotNotFound
	}
	if callerID != "" && existing.UserID != callerID {
		return ErrNotOwner
	}
	if err := a.store.DeleteSnapshot(id); err != nil {
		return fmt.Errorf("delete form data: %w", err)
	}
	return nil
}
