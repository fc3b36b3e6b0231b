package meta

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/socialpulse/connector/internal/models"
	"github.com/socialpulse/connector/pkg/telemetry"
)

const (
	pagePostFields = "id,message,created_time,attachments{media_type,media_url,subattachments},permalink_url"
	igMediaFields  = "id,caption,media_type,media_url,timestamp,permalink,thumbnail_url"
)

// FetchPagePosts fetches the most recent feed posts of a Facebook Page
func (c *Client) FetchPagePosts(ctx context.Context, pageID, accessToken, since string) (json.RawMessage, error) {
	ctx, span := telemetry.StartSpan(ctx, "meta.fetch_page_posts")
	defer span.End()

	params := map[string]string{
		"fields": pagePostFields,
		"limit":  strconv.Itoa(c.pageSize),
	}
	if since != "" {
		params["since"] = since
	}
	return c.Get(ctx, pageID+"/posts", accessToken, params)
}

// FetchIGMedia fetches the media list of an Instagram Business account
func (c *Client) FetchIGMedia(ctx context.Context, igBusinessID, accessToken, since string) (json.RawMessage, error) {
	ctx, span := telemetry.StartSpan(ctx, "meta.fetch_ig_media")
	defer span.End()

	params := map[string]string{
		"fields": igMediaFields,
		"limit":  strconv.Itoa(c.pageSize),
	}
	if since != "" {
		params["since"] = since
	}
	return c.Get(ctx, igBusinessID+"/media", accessToken, params)
}

// FetchPostInsights fetches insight metrics for a single post or media item
func (c *Client) FetchPostInsights(ctx context.Context, itemID, accessToken string, metrics []string) (json.RawMessage, error) {
	ctx, span := telemetry.StartSpan(ctx, "meta.fetch_post_insights")
	defer span.End()

	return c.Get(ctx, itemID+"/insights", accessToken, map[string]string{
		"metric": strings.Join(metrics, ","),
	})
}

// FetchAccountSnapshot fetches a point-in-time account-level snapshot.
// Field selection depends on which platform the account id belongs to: fan
// count for a Facebook Page, follower count for an Instagram Business
// account.
func (c *Client) FetchAccountSnapshot(ctx context.Context, accountID, accessToken, platform string) (json.RawMessage, error) {
	ctx, span := telemetry.StartSpan(ctx, "meta.fetch_account_snapshot")
	defer span.End()

	fields := "id,username,followers_count"
	if platform == models.PlatformMeta {
		fields = "name,fan_count"
	}
	return c.Get(ctx, accountID, accessToken, map[string]string{"fields": fields})
}
