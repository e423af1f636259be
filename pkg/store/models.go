package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence. Table names match the legacy schema.

type UserModel struct {
	ID           int64     `gorm:"column:user_id;primaryKey;autoIncrement"`
	Username     string    `gorm:"size:45;uniqueIndex;not null"`
	Email        string    `gorm:"size:255;uniqueIndex;not null"`
	PasswordHash string    `gorm:"column:password;not null"`
	CreatedAt    time.Time `gorm:"column:created_date;not null"`
}

func (UserModel) TableName() string { return "usercred" }

type FormModel struct {
	ID        int64          `gorm:"column:form_id;primaryKey;autoIncrement"`
	Name      string         `gorm:"column:form_name;size:255;not null"`
	Fields    datatypes.JSON `gorm:"column:form_data;not null"`
	UserID    string         `gorm:"column:user_id;size:32;not null;index"`
	CreatedAt time.Time      `gorm:"not null"`
	UpdatedAt time.Time
}

func (FormModel) TableName() string { return "forms" }

type FormDataModel struct {
	ID          int64          `gorm:"primaryKey;autoIncrement"`
	FormID      int64          `gorm:"column:form_id;not null;index"`
	Name        string         `gorm:"column:form_name;size:255;not null"`
	Description string         `gorm:"column:form_description;type:text"`
	Elements    datatypes.JSON `gorm:"column:form_elements;not null"`
	Theme       datatypes.JSON `gorm:"column:form_theme"`
	UserID      string         `gorm:"column:user_id;size:32;not null;index"`
	CreatedAt   time.Time      `gorm:"not null;index"`
	UpdatedAt   time.Time
}

func (FormDataModel) TableName() string { return "formdata" }
