package meta

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"testing"
)

func TestConsentURL(t *testing.T) {
	client, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {})
	defer srv.Close()

	raw := client.ConsentURL("signed-state")
	parsed, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("ConsentURL produced unparseable URL: %v", err)
	}

	q := parsed.Query()
	if q.Get("client_id") != "app-id" {
		t.Errorf("client_id = %q, want app-id", q.Get("client_id"))
	}
	if q.Get("state") != "signed-state" {
		t.Errorf("state = %q, want signed-state", q.Get("state"))
	}
	if !strings.Contains(q.Get("scope"), "pages_read_engagement") {
		t.Errorf("scope %q missing pages_read_engagement", q.Get("scope"))
	}
	if !strings.Contains(q.Get("scope"), "instagram_manage_insights") {
		t.Errorf("scope %q missing instagram_manage_insights", q.Get("scope"))
	}
}

func TestExchangeCodeForShortToken(t *testing.T) {
	var gotQuery url.Values
	client, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Write([]byte(`{"access_token":"short-tok","token_type":"bearer","expires_in":5183944}`))
	})
	defer srv.Close()

	token, err := client.ExchangeCodeForShortToken(context.Background(), "auth-code")
	if err != nil {
		t.Fatalf("ExchangeCodeForShortToken failed: %v", err)
	}
	if token.AccessToken != "short-tok" {
		t.Errorf("access token = %q, want short-tok", token.AccessToken)
	}
	if gotQuery.Get("code") != "auth-code" {
		t.Errorf("code = %q, want auth-code", gotQuery.Get("code"))
	}
	if gotQuery.Get("client_secret") != "app-secret" {
		t.Errorf("client_secret = %q, want app-secret", gotQuery.Get("client_secret"))
	}
}

func TestExchangeShortForLongToken(t *testing.T) {
	var gotQuery url.Values
	client, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Write([]byte(`{"access_token":"long-tok","expires_in":5183944}`))
	})
	defer srv.Close()

	token, err := client.ExchangeShortForLongToken(context.Background(), "short-tok")
	if err != nil {
		t.Fatalf("ExchangeShortForLongToken failed: %v", err)
	}
	if token.AccessToken != "long-tok" {
		t.Errorf("access token = %q, want long-tok", token.AccessToken)
	}
	if gotQuery.Get("grant_type") != "fb_exchange_token" {
		t.Errorf("grant_type = %q, want fb_exchange_token", gotQuery.Get("grant_type"))
	}
	if gotQuery.Get("fb_exchange_token") != "short-tok" {
		t.Errorf("fb_exchange_token = %q, want short-tok", gotQuery.Get("fb_exchange_token"))
	}
}

func TestExchangeRejectsEmptyToken(t *testing.T) {
	client, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"token_type":"bearer"}`))
	})
	defer srv.Close()

	if _, err := client.ExchangeCodeForShortToken(context.Background(), "code"); err == nil {
		t.Error("expected error for response without access_token")
	}
}

func TestGetPages(t *testing.T) {
	client, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[
			{"id":"page-1","name":"First Page","picture":{"data":{"url":"https://cdn.example/p1.jpg"}},"instagram_business_account":{"id":"ig-77"}},
			{"id":"page-2","name":"Second Page"}
		]}`))
	})
	defer srv.Close()

	pages, err := client.GetPages(context.Background(), "long-tok")
	if err != nil {
		t.Fatalf("GetPages failed: %v", err)
	}
	if len(pages) != 2 {
		t.Fatalf("got %d pages, want 2", len(pages))
	}

	if pages[0].ID != "page-1" || pages[0].InstagramBusinessID() != "ig-77" {
		t.Errorf("page 1 = %+v, want id page-1 with ig-77", pages[0])
	}
	if pages[0].Picture.Data.URL != "https://cdn.example/p1.jpg" {
		t.Errorf("page 1 avatar = %q", pages[0].Picture.Data.URL)
	}
	if len(pages[0].Raw) == 0 {
		t.Error("page raw payload should be retained")
	}
	if pages[1].InstagramBusinessID() != "" {
		t.Errorf("page 2 should have no linked IG account, got %q", pages[1].InstagramBusinessID())
	}
}

func TestInstagramBusinessIDPrecedence(t *testing.T) {
	page := Page{
		InstagramBusinessAccount:  &struct {
			ID string `json:"id"`
		}{ID: "direct"},
		ConnectedInstagramAccount: &struct {
			ID string `json:"id"`
		}{ID: "connected"},
	}
	if got := page.InstagramBusinessID(); got != "direct" {
		t.Errorf("InstagramBusinessID() = %q, want direct", got)
	}

	page.InstagramBusinessAccount = nil
	if got := page.InstagramBusinessID(); got != "connected" {
		t.Errorf("InstagramBusinessID() = %q, want connected", got)
	}
}

func TestGetPagesSurfacesGraphError(t *testing.T) {
	client, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":{"message":"Session expired","type":"OAuthException","code":190}}`))
	})
	defer srv.Close()

	if _, err := client.GetPages(context.Background(), "stale-tok"); err == nil {
		t.Error("expected GraphError for error payload")
	}
}
