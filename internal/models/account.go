package models

import (
	"database/sql"
	"encoding/json"
	"time"
)

// Platform discriminator values. Only Meta has a connector today; the
// column anticipates other providers.
const (
	PlatformMeta      = "META"
	PlatformInstagram = "INSTAGRAM"
)

// Account represents one authorized identity on one provider.
// (platform, platform_account_id) is the natural key: re-authorizing the
// same page updates the existing row.
type Account struct {
	ID                int64  `gorm:"primaryKey;autoIncrement;column:id"`
	UserID            int64  `gorm:"not null;column:user_id"`
	Platform          string `gorm:"type:varchar(16);not null;uniqueIndex:connector_accounts_ux1;column:platform"`
	PlatformAccountID string `gorm:"type:varchar(64);not null;uniqueIndex:connector_accounts_ux1;column:platform_account_id"`
	Name              string `gorm:"type:varchar(255);not null;default:'';column:name"`
	Username          string `gorm:"type:varchar(255);not null;default:'';column:username"`
	AvatarURL         string `gorm:"type:varchar(1024);not null;default:'';column:avatar_url"`

	// Meta holds the raw provider page object, including the linked
	// instagram_business_account id when one exists.
	Meta sql.NullString `gorm:"type:text;column:meta"`

	// Tokens are stored encrypted (iv:tag:ciphertext, hex segments)
	AccessToken    string         `gorm:"type:text;not null;column:access_token"`
	RefreshToken   sql.NullString `gorm:"type:text;column:refresh_token"`
	TokenExpiresAt sql.NullTime   `gorm:"column:token_expires_at"`

	LastSyncedAt sql.NullTime `gorm:"column:last_synced_at"`
	CreatedAt    time.Time    `gorm:"not null;column:created_at"`

	// Relationships
	User *User `gorm:"foreignKey:UserID;references:ID"`
}

// TableName specifies the table name for Account
func (Account) TableName() string {
	return "connector_accounts"
}

// InstagramBusinessID extracts the linked Instagram Business account id
// from the meta blob, or "" when none is linked.
func (a *Account) InstagramBusinessID() string {
	if !a.Meta.Valid || a.Meta.String == "" {
		return ""
	}
	var meta struct {
		InstagramBusinessAccount struct {
			ID string `json:"id"`
		} `json:"instagram_business_account"`
	}
	if err := json.Unmarshal([]byte(a.Meta.String), &meta); err != nil {
		return ""
	}
	return meta.InstagramBusinessAccount.ID
}
