package models

import (
	"time"
)

// User owns one or more connected accounts
type User struct {
	ID           int64     `gorm:"primaryKey;autoIncrement;column:id"`
	Email        string    `gorm:"type:varchar(255);not null;uniqueIndex:connector_users_ux1;column:email"`
	PasswordHash string    `gorm:"type:varchar(255);not null;column:password_hash"`
	Name         string    `gorm:"type:varchar(255);not null;default:'';column:name"`
	CreatedAt    time.Time `gorm:"not null;column:created_at"`
}

// TableName specifies the table name for User
func (User) TableName() string {
	return "connector_users"
}
