package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"formforge/pkg/domain"
)

const migrateLockID int64 = 52418736

// PoolConfig bounds the database connection pool.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
}

func (p PoolConfig) withDefaults() PoolConfig {
	if p.MaxOpenConns <= 0 {
		p.MaxOpenConns = 10
	}
	if p.MaxIdleConns <= 0 {
		p.MaxIdleConns = 5
	}
	if p.ConnMaxIdleTime <= 0 {
		p.ConnMaxIdleTime = 5 * time.Minute
	}
	if p.ConnMaxLifetime <= 0 {
		p.ConnMaxLifetime = time.Hour
	}
	return p
}

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB, configures the connection pool, and runs the
// idempotent schema migration under an advisory lock.
func NewGormStore(dsn string, pool PoolConfig) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         gormLog,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db: %w", err)
	}
	pool = pool.withDefaults()
	sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
	sqlDB.SetMaxIdleConns(pool.MaxIdleConns)
	sqlDB.SetConnMaxIdleTime(pool.ConnMaxIdleTime)
	sqlDB.SetConnMaxLifetime(pool.ConnMaxLifetime)

	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&UserModel{}, &FormModel{}, &FormDataModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(context.Background(), conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// CreateUser inserts a credential record, letting the database allocate the
// next sequence value. The public id is the zero-padded sequence.
func (s *GormStore) CreateUser(username, email, passwordHash string) (domain.User, error) {
	model := UserModel{
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.db.Create(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.User{}, ErrDuplicate
		}
		return domain.User{}, err
	}
	return userFromModel(model), nil
}

// HasUsername checks if the username exists.
func (s *GormStore) HasUsername(username string) (bool, error) {
	var count int64
	if err := s.db.Model(&UserModel{}).Where("username = ?", username).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// HasUserEmail checks if the email exists.
func (s *GormStore) HasUserEmail(email string) (bool, error) {
	var count int64
	if err := s.db.Model(&UserModel{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetUserByUsername looks up a user by username.
func (s *GormStore) GetUserByUsername(username string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.Where("username = ?", username).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByID returns a user by its public id.
func (s *GormStore) GetUserByID(id string) (domain.User, bool, error) {
	seq, err := domain.ParseUserID(id)
	if err != nil {
		return domain.User{}, false, nil
	}
	var model UserModel
	if err := s.db.First(&model, "user_id = ?", seq).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// CredentialRows returns every usercred row with password columns stripped.
func (s *GormStore) CredentialRows() ([]map[string]any, error) {
	if !s.db.Migrator().HasTable(&UserModel{}) {
		return nil, ErrTableMissing
	}
	var models []UserModel
	if err := s.db.Order("user_id ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	rows := make([]map[string]any, 0, len(models))
	for _, m := range models {
		rows = append(rows, map[string]any{
			"user_id":      domain.FormatUserID(m.ID),
			"username":     m.Username,
			"email":        m.Email,
			"created_date": m.CreatedAt,
		})
	}
	return rows, nil
}

// CredentialColumns reports column metadata for the usercred table.
func (s *GormStore) CredentialColumns() ([]ColumnInfo, error) {
	if !s.db.Migrator().HasTable(&UserModel{}) {
		return nil, ErrTableMissing
	}
	columnTypes, err := s.db.Migrator().ColumnTypes(&UserModel{})
	if err != nil {
		return nil, err
	}
	columns := make([]ColumnInfo, 0, len(columnTypes))
	for _, ct := range columnTypes {
		nullable, _ := ct.Nullable()
		columns = append(columns, ColumnInfo{
			Name:     ct.Name(),
			Type:     ct.DatabaseTypeName(),
			Nullable: nullable,
		})
	}
	return columns, nil
}

// CreateForm inserts a new form definition row.
func (s *GormStore) CreateForm(form domain.Form) (domain.Form, error) {
	model, err := formToModel(form)
	if err != nil {
		return domain.Form{}, err
	}
	if err := s.db.Create(&model).Error; err != nil {
		return domain.Form{}, err
	}
	return formFromModel(model)
}

// ListForms returns every form row.
func (s *GormStore) ListForms() ([]domain.Form, error) {
	var models []FormModel
	if err := s.db.Order("form_id ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	forms := make([]domain.Form, 0, len(models))
	for _, m := range models {
		form, err := formFromModel(m)
		if err != nil {
			return nil, err
		}
		forms = append(forms, form)
	}
	return forms, nil
}

// GetForm returns a form definition by id.
func (s *GormStore) GetForm(id int64) (domain.Form, bool, error) {
	var model FormModel
	if err := s.db.First(&model, "form_id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Form{}, false, nil
		}
		return domain.Form{}, false, err
	}
	form, err := formFromModel(model)
	if err != nil {
		return domain.Form{}, false, err
	}
	return form, true, nil
}

// UpdateForm overwrites name, fields, and updated_at in place.
func (s *GormStore) UpdateForm(form domain.Form) (domain.Form, error) {
	fields, err := json.Marshal(form.Fields)
	if err != nil {
		return domain.Form{}, fmt.Errorf("marshal fields: %w", err)
	}
	form.UpdatedAt = time.Now().UTC()
	if err := s.db.Model(&FormModel{}).
		Where("form_id = ?", form.ID).
		Updates(map[string]any{
			"form_name":  form.Name,
			"form_data":  datatypes.JSON(fields),
			"updated_at": form.UpdatedAt,
		}).Error; err != nil {
		return domain.Form{}, err
	}
	updated, _, err := s.GetForm(form.ID)
	return updated, err
}

// CreateSnapshot inserts a new submission snapshot row.
func (s *GormStore) CreateSnapshot(snap domain.FormSnapshot) (domain.FormSnapshot, error) {
	model, err := snapshotToModel(snap)
	if err != nil {
		return domain.FormSnapshot{}, err
	}
	if err := s.db.Create(&model).Error; err != nil {
		return domain.FormSnapshot{}, err
	}
	return snapshotFromModel(model)
}

// LatestSnapshotByFormID returns the most recently created snapshot for the
// given form id.
func (s *GormStore) LatestSnapshotByFormID(formID int64) (domain.FormSnapshot, bool, error) {
	var model FormDataModel
	if err := s.db.Where("form_id = ?", formID).Order("created_at DESC").First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.FormSnapshot{}, false, nil
		}
		return domain.FormSnapshot{}, false, err
	}
	snap, err := snapshotFromModel(model)
	if err != nil {
		return domain.FormSnapshot{}, false, err
	}
	return snap, true, nil
}

// ListSnapshotsByUser returns every snapshot owned by the user.
func (s *GormStore) ListSnapshotsByUser(userID string) ([]domain.FormSnapshot, error) {
	var models []FormDataModel
	if err := s.db.Where("user_id = ?", userID).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	snaps := make([]domain.FormSnapshot, 0, len(models))
	for _, m := range models {
		snap, err := snapshotFromModel(m)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	return snaps, nil
}

// GetSnapshot returns a snapshot by its own id.
func (s *GormStore) GetSnapshot(id int64) (domain.FormSnapshot, bool, error) {
	var model FormDataModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.FormSnapshot{}, false, nil
		}
		return domain.FormSnapshot{}, false, err
	}
	snap, err := snapshotFromModel(model)
	if err != nil {
		return domain.FormSnapshot{}, false, err
	}
	return snap, true, nil
}

// UpdateSnapshot overwrites the stored snapshot in place.
func (s *GormStore) UpdateSnapshot(snap domain.FormSnapshot) (domain.FormSnapshot, error) {
	elements, err := json.Marshal(snap.Elements)
	if err != nil {
		return domain.FormSnapshot{}, fmt.Errorf("marshal elements: %w", err)
	}
	updates := map[string]any{
		"form_name":        snap.Name,
		"form_description": snap.Description,
		"form_elements":    datatypes.JSON(elements),
		"updated_at":       time.Now().UTC(),
	}
	if snap.Theme != nil {
		theme, err := json.Marshal(snap.Theme)
		if err != nil {
			return domain.FormSnapshot{}, fmt.Errorf("marshal theme: %w", err)
		}
		updates["form_theme"] = datatypes.JSON(theme)
	} else {
		updates["form_theme"] = nil
	}
	if err := s.db.Model(&FormDataModel{}).Where("id = ?", snap.ID).Updates(updates).Error; err != nil {
		return domain.FormSnapshot{}, err
	}
	updated, _, err := s.GetSnapshot(snap.ID)
	return updated, err
}

// DeleteSnapshot removes a snapshot row.
func (s *GormStore) DeleteSnapshot(id int64) error {
	return s.db.Delete(&FormDataModel{}, "id = ?", id).Error
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:           domain.FormatUserID(m.ID),
		Username:     m.Username,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		CreatedAt:    m.CreatedAt,
	}
}

func formToModel(form domain.Form) (FormModel, error) {
	fields, err := json.Marshal(form.Fields)
	if err != nil {
		return FormModel{}, fmt.Errorf("marshal fields: %w", err)
	}
	return FormModel{
		ID:        form.ID,
		Name:      form.Name,
		Fields:    datatypes.JSON(fields),
		UserID:    form.UserID,
		CreatedAt: form.CreatedAt,
		UpdatedAt: form.UpdatedAt,
	}, nil
}

func formFromModel(m FormModel) (domain.Form, error) {
	var fields []domain.FormField
	if len(m.Fields) > 0 {
		if err := json.Unmarshal(m.Fields, &fields); err != nil {
			return domain.Form{}, fmt.Errorf("unmarshal fields: %w", err)
		}
	}
	return domain.Form{
		ID:        m.ID,
		Name:      m.Name,
		Fields:    fields,
		UserID:    m.UserID,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}, nil
}

func snapshotToModel(snap domain.FormSnapshot) (FormDataModel, error) {
	elements, err := json.Marshal(snap.Elements)
	if err != nil {
		return FormDataModel{}, fmt.Errorf("marshal elements: %w", err)
	}
	model := FormDataModel{
		ID:          snap.ID,
		FormID:      snap.FormID,
		Name:        snap.Name,
		Description: snap.Description,
		Elements:    datatypes.JSON(elements),
		UserID:      snap.UserID,
		CreatedAt:   snap.CreatedAt,
		UpdatedAt:   snap.UpdatedAt,
	}
	if snap.Theme != nil {
		theme, err := json.Marshal(snap.Theme)
		if err != nil {
			return FormDataModel{}, fmt.Errorf("marshal theme: %w", err)
		}
		model.Theme = datatypes.JSON(theme)
	}
	return model, nil
}

func snapshotFromModel(m FormDataModel) (domain.FormSnapshot, error) {
	var elements []domain.FormElement
	if len(m.Elements) > 0 {
		if err := json.Unmarshal(m.Elements, &elements); err != nil {
			return domain.FormSnapshot{}, fmt.Errorf("unmarshal elements: %w", err)
		}
	}
	var theme *domain.FormTheme
	if len(m.Theme) > 0 {
		theme = &domain.FormTheme{}
		if err := json.Unmarshal(m.Theme, theme); err != nil {
			return domain.FormSnapshot{}, fmt.Errorf("unmarshal theme: %w", err)
		}
	}
	return domain.FormSnapshot{
		ID:          m.ID,
		FormID:      m.FormID,
		Name:        m.Name,
		Description: m.Description,
		Elements:    elements,
		Theme:       theme,
		UserID:      m.UserID,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}, nil
}
