package models

import (
	"database/sql"
	"encoding/json"
	"time"
)

// Post type values
const (
	PostTypeFBPost = "fb_post"
)

// Post represents one piece of content pulled from the provider.
// platform_post_id is the natural key the whole ingest pipeline upserts on;
// re-ingesting the same item updates the existing row.
type Post struct {
	ID             int64  `gorm:"primaryKey;autoIncrement;column:id"`
	AccountID      int64  `gorm:"not null;column:account_id"`
	PlatformPostID string `gorm:"type:varchar(64);not null;uniqueIndex:connector_posts_ux1;column:platform_post_id"`
	Type           string `gorm:"type:varchar(32);not null;default:'';column:type"`
	ContentText    string `gorm:"type:text;not null;default:'';column:content_text"`

	// MediaURLs is a JSON-encoded ordered array of media URL strings
	MediaURLs string `gorm:"type:text;not null;default:'[]';column:media_urls"`

	PostedAt time.Time `gorm:"not null;column:posted_at"`

	// RawResponse retains the provider payload verbatim
	RawResponse sql.NullString `gorm:"type:text;column:raw_response"`
	CreatedAt   time.Time      `gorm:"not null;column:created_at"`

	// Relationships
	Account *Account `gorm:"foreignKey:AccountID;references:ID"`
}

// TableName specifies the table name for Post
func (Post) TableName() string {
	return "connector_posts"
}

// SetMediaURLs encodes the ordered media URL list into the column
func (p *Post) SetMediaURLs(urls []string) error {
	if urls == nil {
		urls = []string{}
	}
	b, err := json.Marshal(urls)
	if err != nil {
		return err
	}
	p.MediaURLs = string(b)
	return nil
}

// GetMediaURLs decodes the ordered media URL list from the column
func (p *Post) GetMediaURLs() ([]string, error) {
	if p.MediaURLs == "" {
		return nil, nil
	}
	var urls []string
	if err := json.Unmarshal([]byte(p.MediaURLs), &urls); err != nil {
		return nil, err
	}
	return urls, nil
}
