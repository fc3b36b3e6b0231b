package meta

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/socialpulse/connector/pkg/telemetry"
)

// Scopes requested on the consent dialog
var oauthScopes = []string{
	"pages_show_list",
	"pages_read_engagement",
	"pages_read_user_content",
	"instagram_basic",
	"instagram_manage_insights",
	"instagram_manage_comments",
}

// TokenResponse is the Graph API's token exchange response
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Page is one entry of the authorized user's page list. Raw retains the
// provider object verbatim for the account meta blob.
type Page struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Picture struct {
		Data struct {
			URL string `json:"url"`
		} `json:"data"`
	} `json:"picture"`
	InstagramBusinessAccount *struct {
		ID string `json:"id"`
	} `json:"instagram_business_account"`
	ConnectedInstagramAccount *struct {
		ID string `json:"id"`
	} `json:"connected_instagram_account"`

	Raw json.RawMessage `json:"-"`
}

// InstagramBusinessID returns the linked Instagram Business account id, or
// "". The directly linked business account wins over a connected one.
func (p *Page) InstagramBusinessID() string {
	if p.InstagramBusinessAccount != nil && p.InstagramBusinessAccount.ID != "" {
		return p.InstagramBusinessAccount.ID
	}
	if p.ConnectedInstagramAccount != nil && p.ConnectedInstagramAccount.ID != "" {
		return p.ConnectedInstagramAccount.ID
	}
	return ""
}

// ConsentURL builds the Meta OAuth dialog URL for the given state blob
func (c *Client) ConsentURL(state string) string {
	q := url.Values{}
	q.Set("client_id", c.cfg.AppID)
	q.Set("redirect_uri", c.cfg.RedirectURI)
	q.Set("state", state)
	q.Set("scope", strings.Join(oauthScopes, ","))
	return c.cfg.DialogURL + "?" + q.Encode()
}

// ExchangeCodeForShortToken exchanges an authorization code for a
// short-lived user access token
func (c *Client) ExchangeCodeForShortToken(ctx context.Context, code string) (*TokenResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "meta.exchange_code")
	defer span.End()

	q := url.Values{}
	q.Set("client_id", c.cfg.AppID)
	q.Set("client_secret", c.cfg.AppSecret)
	q.Set("redirect_uri", c.cfg.RedirectURI)
	q.Set("code", code)

	body, err := c.doGet(ctx, fmt.Sprintf("%s/oauth/access_token?%s", c.cfg.GraphURL, q.Encode()), "oauth/access_token")
	if err != nil {
		return nil, err
	}
	return decodeToken(body)
}

// ExchangeShortForLongToken exchanges a short-lived token for a long-lived one
func (c *Client) ExchangeShortForLongToken(ctx context.Context, shortToken string) (*TokenResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "meta.exchange_long_token")
	defer span.End()

	q := url.Values{}
	q.Set("grant_type", "fb_exchange_token")
	q.Set("client_id", c.cfg.AppID)
	q.Set("client_secret", c.cfg.AppSecret)
	q.Set("fb_exchange_token", shortToken)

	body, err := c.doGet(ctx, fmt.Sprintf("%s/oauth/access_token?%s", c.cfg.GraphURL, q.Encode()), "oauth/access_token")
	if err != nil {
		return nil, err
	}
	return decodeToken(body)
}

// GetPages lists the pages the authorized user manages
func (c *Client) GetPages(ctx context.Context, accessToken string) ([]Page, error) {
	ctx, span := telemetry.StartSpan(ctx, "meta.get_pages")
	defer span.End()

	body, err := c.Get(ctx, "me/accounts", accessToken, map[string]string{
		"fields": "id,name,picture,instagram_business_account,connected_instagram_account",
	})
	if err != nil {
		return nil, err
	}

	var list struct {
		Data []json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("failed to decode page list: %w", err)
	}

	pages := make([]Page, 0, len(list.Data))
	for _, raw := range list.Data {
		var page Page
		if err := json.Unmarshal(raw, &page); err != nil {
			return nil, fmt.Errorf("failed to decode page entry: %w", err)
		}
		page.Raw = raw
		pages = append(pages, page)
	}
	return pages, nil
}

func decodeToken(body json.RawMessage) (*TokenResponse, error) {
	var token TokenResponse
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("empty access token in response")
	}
	return &token, nil
}
