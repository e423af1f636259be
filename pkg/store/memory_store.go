package store

import (
	"sort"
	"sync"
	"time"

	"formforge/pkg/domain"
)

// MemoryStore keeps records in-process. It backs tests and local runs
// without a database.
type MemoryStore struct {
	mu        sync.RWMutex
	users     map[int64]domain.User
	nextUser  int64
	forms     map[int64]domain.Form
	nextForm  int64
	snaps     map[int64]domain.FormSnapshot
	nextSnap  int64
	snapOrder []int64
	hasTable  bool
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[int64]domain.User),
		forms:    make(map[int64]domain.Form),
		snaps:    make(map[int64]domain.FormSnapshot),
		hasTable: true,
	}
}

// SetCredentialTableMissing makes credential queries behave as if the
// usercred table was never created.
func (m *MemoryStore) SetCredentialTableMissing(missing bool) {
	m.mu.Lock()
	m.hasTable = !missing
	m.mu.Unlock()
}

// SeedUserSequence advances the id counter so the next user gets seq+1.
func (m *MemoryStore) SeedUserSequence(seq int64) {
	m.mu.Lock()
	if seq > m.nextUser {
		m.nextUser = seq
	}
	m.mu.Unlock()
}

// CreateUser allocates the next sequence value and stores the record.
func (m *MemoryStore) CreateUser(username, email, passwordHash string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == username || u.Email == email {
			return domain.User{}, ErrDuplicate
		}
	}
	m.nextUser++
	user := domain.User{
		ID:           domain.FormatUserID(m.nextUser),
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	m.users[m.nextUser] = user
	return user, nil
}

// HasUsername checks if the username exists.
func (m *MemoryStore) HasUsername(username string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.Username == username {
			return true, nil
		}
	}
	return false, nil
}

// HasUserEmail checks if the email exists.
func (m *MemoryStore) HasUserEmail(email string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.Email == email {
			return true, nil
		}
	}
	return false, nil
}

// GetUserByUsername looks up a user by username.
func (m *MemoryStore) GetUserByUsername(username string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.Username == username {
			return u, true, nil
		}
	}
	return domain.User{}, false, nil
}

// GetUserByID returns a user by its public id.
func (m *MemoryStore) GetUserByID(id string) (domain.User, bool, error) {
	seq, err := domain.ParseUserID(id)
	if err != nil {
		return domain.User{}, false, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[seq]
	return u, ok, nil
}

// CredentialRows returns every credential row without password material.
func (m *MemoryStore) CredentialRows() ([]map[string]any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.hasTable {
		return nil, ErrTableMissing
	}
	seqs := make([]int64, 0, len(m.users))
	for seq := range m.users {
		seqs = append(seqs, seq)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
	rows := make([]map[string]any, 0, len(seqs))
	for _, seq := range seqs {
		u := m.users[seq]
		rows = append(rows, map[string]any{
			"user_id":      u.ID,
			"username":     u.Username,
			"email":        u.Email,
			"created_date": u.CreatedAt,
		})
	}
	return rows, nil
}

// CredentialColumns reports the fixed usercred column layout.
func (m *MemoryStore) CredentialColumns() ([]ColumnInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.hasTable {
		return nil, ErrTableMissing
	}
	return []ColumnInfo{
		{Name: "user_id", Type: "bigint", Nullable: false},
		{Name: "username", Type: "varchar", Nullable: false},
		{Name: "email", Type: "varchar", Nullable: false},
		{Name: "password", Type: "varchar", Nullable: false},
		{Name: "created_date", Type: "timestamp", Nullable: false},
	}, nil
}

// CreateForm stores a new form definition.
func (m *MemoryStore) CreateForm(form domain.Form) (domain.Form, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextForm++
	form.ID = m.nextForm
	m.forms[form.ID] = form
	return form, nil
}

// ListForms returns every form ordered by id.
func (m *MemoryStore) ListForms() ([]domain.Form, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]int64, 0, len(m.forms))
	for id := range m.forms {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	forms := make([]domain.Form, 0, len(ids))
	for _, id := range ids {
		forms = append(forms, m.forms[id])
	}
	return forms, nil
}

// GetForm returns a form by id.
func (m *MemoryStore) GetForm(id int64) (domain.Form, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	form, ok := m.forms[id]
	return form, ok, nil
}

// UpdateForm replaces the stored form record.
func (m *MemoryStore) UpdateForm(form domain.Form) (domain.Form, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.forms[form.ID]
	if !ok {
		return domain.Form{}, nil
	}
	form.CreatedAt = existing.CreatedAt
	form.UpdatedAt = time.Now().UTC()
	m.forms[form.ID] = form
	return form, nil
}

// CreateSnapshot stores a new submission snapshot.
func (m *MemoryStore) CreateSnapshot(snap domain.FormSnapshot) (domain.FormSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextSnap++
	snap.ID = m.nextSnap
	m.snaps[snap.ID] = snap
	m.snapOrder = append(m.snapOrder, snap.ID)
	return snap, nil
}

// LatestSnapshotByFormID returns the newest snapshot sharing the form id.
func (m *MemoryStore) LatestSnapshotByFormID(formID int64) (domain.FormSnapshot, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var latest domain.FormSnapshot
	found := false
	for _, id := range m.snapOrder {
		snap, ok := m.snaps[id]
		if !ok || snap.FormID != formID {
			continue
		}
		if !found || !snap.CreatedAt.Before(latest.CreatedAt) {
			latest = snap
			found = true
		}
	}
	return latest, found, nil
}

// ListSnapshotsByUser returns snapshots owned by the user in creation order.
func (m *MemoryStore) ListSnapshotsByUser(userID string) ([]domain.FormSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snaps := make([]domain.FormSnapshot, 0)
	for _, id := range m.snapOrder {
		if snap, ok := m.snaps[id]; ok && snap.UserID == userID {
			snaps = append(snaps, snap)
		}
	}
	return snaps, nil
}

// GetSnapshot returns a snapshot by its own id.
func (m *MemoryStore) GetSnapshot(id int64) (domain.FormSnapshot, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.snaps[id]
	return snap, ok, nil
}

// UpdateSnapshot replaces the stored snapshot record.
func (m *MemoryStore) UpdateSnapshot(snap domain.FormSnapshot) (domain.FormSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.snaps[snap.ID]
	if !ok {
		return domain.FormSnapshot{}, nil
	}
	snap.FormID = existing.FormID
	snap.UserID = existing.UserID
	snap.CreatedAt = existing.CreatedAt
	snap.UpdatedAt = time.Now().UTC()
	m.snaps[snap.ID] = snap
	return snap, nil
}

// DeleteSnapshot removes the snapshot record.
func (m *MemoryStore) DeleteSnapshot(id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snaps, id)
	filtered := m.snapOrder[:0]
	for _, item := range m.snapOrder {
		if item != id {
			filtered = append(filtered, item)
		}
	}
	m.snapOrder = filtered
	return nil
}
