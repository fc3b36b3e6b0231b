package models

import (
	"database/sql"
	"time"
)

// Metric is one point-in-time measurement: post-level insights or an
// account-level snapshot (follower count). Append-only; there is no
// natural key and no upsert — every fetch produces a new row.
type Metric struct {
	ID        int64         `gorm:"primaryKey;autoIncrement;column:id"`
	PostID    sql.NullInt64 `gorm:"column:post_id"`
	AccountID sql.NullInt64 `gorm:"column:account_id"`
	Date      time.Time     `gorm:"not null;column:date"`

	// Sparse counters; most fetches set only a subset
	Views     sql.NullInt64 `gorm:"column:views"`
	Likes     sql.NullInt64 `gorm:"column:likes"`
	Comments  sql.NullInt64 `gorm:"column:comments"`
	Shares    sql.NullInt64 `gorm:"column:shares"`
	Followers sql.NullInt64 `gorm:"column:followers"`

	// Raw retains the provider response verbatim
	Raw       sql.NullString `gorm:"type:text;column:raw"`
	CreatedAt time.Time      `gorm:"not null;column:created_at"`

	// Relationships
	Post    *Post    `gorm:"foreignKey:PostID;references:ID"`
	Account *Account `gorm:"foreignKey:AccountID;references:ID"`
}

// TableName specifies the table name for Metric
func (Metric) TableName() string {
	return "connector_metrics"
}
