// Package sync normalizes provider payloads into the canonical schema and
// drives per-account backfill runs.
package sync

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/socialpulse/connector/internal/models"
)

// GraphList is the envelope the Graph API wraps list results in
type GraphList struct {
	Data []json.RawMessage `json:"data"`
}

// MediaItem is one Instagram media entry. Every field except the id may be
// absent upstream.
type MediaItem struct {
	ID           string `json:"id"`
	Caption      string `json:"caption"`
	MediaType    string `json:"media_type"`
	MediaURL     string `json:"media_url"`
	ThumbnailURL string `json:"thumbnail_url"`
	Timestamp    string `json:"timestamp"`
	Permalink    string `json:"permalink"`
}

// Attachment is one node of a page post's attachment tree
type Attachment struct {
	Media *struct {
		Image *struct {
			Src string `json:"src"`
		} `json:"image"`
	} `json:"media"`
	MediaURL       string `json:"media_url"`
	Subattachments *struct {
		Data []Attachment `json:"data"`
	} `json:"subattachments"`
}

// PagePost is one Facebook Page feed entry
type PagePost struct {
	ID          string `json:"id"`
	Message     string `json:"message"`
	CreatedTime string `json:"created_time"`
	Attachments *struct {
		Data []Attachment `json:"data"`
	} `json:"attachments"`
	PermalinkURL string `json:"permalink_url"`
}

// Graph timestamps come as ISO 8601 with a colon-less zone offset
var graphTimeLayouts = []string{
	"2006-01-02T15:04:05-0700",
	time.RFC3339,
}

func parseGraphTime(value string, fallback time.Time) time.Time {
	for _, layout := range graphTimeLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts
		}
	}
	return fallback
}

// NormalizeMediaItem maps an Instagram media entry onto a Post. The raw
// payload is retained verbatim.
func NormalizeMediaItem(accountID int64, raw json.RawMessage, now time.Time) (*models.Post, error) {
	var item MediaItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil, fmt.Errorf("malformed media item: %w", err)
	}
	if item.ID == "" {
		return nil, fmt.Errorf("media item has no id")
	}

	postType := "media"
	if item.MediaType != "" {
		postType = strings.ToLower(item.MediaType)
	}

	postedAt := now
	if item.Timestamp != "" {
		postedAt = parseGraphTime(item.Timestamp, now)
	}

	mediaURLs := []string{}
	if item.MediaURL != "" {
		mediaURLs = append(mediaURLs, item.MediaURL)
	}
	if item.ThumbnailURL != "" {
		mediaURLs = append(mediaURLs, item.ThumbnailURL)
	}

	post := &models.Post{
		AccountID:      accountID,
		PlatformPostID: item.ID,
		Type:           postType,
		ContentText:    item.Caption,
		PostedAt:       postedAt,
		RawResponse:    sql.NullString{String: string(raw), Valid: true},
	}
	if err := post.SetMediaURLs(mediaURLs); err != nil {
		return nil, err
	}
	return post, nil
}

// NormalizePagePost maps a Facebook Page feed entry onto a Post. Media URLs
// are collected depth-first through the attachment tree: for each node the
// nested image source first, then the direct media URL, then its
// sub-attachments.
func NormalizePagePost(accountID int64, raw json.RawMessage, now time.Time) (*models.Post, error) {
	var post PagePost
	if err := json.Unmarshal(raw, &post); err != nil {
		return nil, fmt.Errorf("malformed page post: %w", err)
	}
	if post.ID == "" {
		return nil, fmt.Errorf("page post has no id")
	}

	postedAt := now
	if post.CreatedTime != "" {
		postedAt = parseGraphTime(post.CreatedTime, now)
	}

	mediaURLs := []string{}
	if post.Attachments != nil {
		for _, attachment := range post.Attachments.Data {
			mediaURLs = collectAttachmentURLs(attachment, mediaURLs)
		}
	}

	result := &models.Post{
		AccountID:      accountID,
		PlatformPostID: post.ID,
		Type:           models.PostTypeFBPost,
		ContentText:    post.Message,
		PostedAt:       postedAt,
		RawResponse:    sql.NullString{String: string(raw), Valid: true},
	}
	if err := result.SetMediaURLs(mediaURLs); err != nil {
		return nil, err
	}
	return result, nil
}

func collectAttachmentURLs(attachment Attachment, urls []string) []string {
	if attachment.Media != nil && attachment.Media.Image != nil && attachment.Media.Image.Src != "" {
		urls = append(urls, attachment.Media.Image.Src)
	}
	if attachment.MediaURL != "" {
		urls = append(urls, attachment.MediaURL)
	}
	if attachment.Subattachments != nil {
		for _, sub := range attachment.Subattachments.Data {
			urls = collectAttachmentURLs(sub, urls)
		}
	}
	return urls
}

// SnapshotFollowers extracts the follower count from an account snapshot.
// fan_count (Facebook Page) wins over followers_count (Instagram); when
// neither is present the count stays null.
func SnapshotFollowers(raw json.RawMessage) sql.NullInt64 {
	var snapshot struct {
		FanCount       *int64 `json:"fan_count"`
		FollowersCount *int64 `json:"followers_count"`
	}
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return sql.NullInt64{}
	}
	if snapshot.FanCount != nil {
		return sql.NullInt64{Int64: *snapshot.FanCount, Valid: true}
	}
	if snapshot.FollowersCount != nil {
		return sql.NullInt64{Int64: *snapshot.FollowersCount, Valid: true}
	}
	return sql.NullInt64{}
}
