package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/socialpulse/connector/internal/db"
	"github.com/socialpulse/connector/internal/meta"
	"github.com/socialpulse/connector/internal/models"
	"github.com/socialpulse/connector/pkg/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeAccountStore struct {
	byID   map[int64]*models.Account
	byPage map[string]*models.Account
	merged map[int64]string
	nextID int64
}

func newFakeAccountStore() *fakeAccountStore {
	return &fakeAccountStore{
		byID:   map[int64]*models.Account{},
		byPage: map[string]*models.Account{},
		merged: map[int64]string{},
	}
}

func (f *fakeAccountStore) Upsert(_ context.Context, account *models.Account) error {
	if existing, ok := f.byPage[account.PlatformAccountID]; ok {
		account.ID = existing.ID
	} else {
		f.nextID++
		account.ID = f.nextID
	}
	clone := *account
	f.byPage[account.PlatformAccountID] = &clone
	f.byID[account.ID] = &clone
	return nil
}

func (f *fakeAccountStore) MergeInstagramBusinessID(_ context.Context, account *models.Account, igID string) error {
	f.merged[account.ID] = igID
	return nil
}

func (f *fakeAccountStore) GetByIDString(_ context.Context, id string) (*models.Account, error) {
	parsed, err := db.ParseID("account id", id)
	if err != nil {
		return nil, err
	}
	return f.byID[parsed], nil
}

type fakeUserStore struct {
	users map[int64]*models.User
}

func (f *fakeUserStore) GetByID(_ context.Context, id int64) (*models.User, error) {
	return f.users[id], nil
}

type fakeSealer struct{}

func (fakeSealer) Encrypt(plaintext string) (string, error) {
	return "enc:" + plaintext, nil
}

type fakeBackfill struct {
	triggered chan int64
}

func (f *fakeBackfill) BackfillAccount(_ context.Context, accountID int64) error {
	f.triggered <- accountID
	return nil
}

// graphResponses configures the canned provider used by handler tests
type graphResponses struct {
	shortToken string
	longToken  string
	pages      string
}

func newConnectorFixture(t *testing.T, responses graphResponses) (*gin.Engine, *fakeAccountStore, *fakeBackfill, *httptest.Server) {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/oauth/access_token"):
			if r.URL.Query().Get("grant_type") == "fb_exchange_token" {
				w.Write([]byte(responses.longToken))
			} else {
				w.Write([]byte(responses.shortToken))
			}
		case strings.HasSuffix(r.URL.Path, "/me/accounts"):
			w.Write([]byte(responses.pages))
		default:
			w.Write([]byte(`{}`))
		}
	}))

	cfg := &config.MetaConfig{
		AppID:       "app-id",
		AppSecret:   "app-secret",
		RedirectURI: "https://example.com/callback",
		GraphURL:    srv.URL,
		DialogURL:   srv.URL + "/dialog/oauth",
		SuccessURL:  "/connected?ok=1",
	}
	client := meta.New(cfg, 25)

	states, err := NewStateCodec(testSigningKey)
	if err != nil {
		t.Fatal(err)
	}

	users := &fakeUserStore{users: map[int64]*models.User{
		7: {ID: 7, Email: "owner@example.com"},
	}}
	accounts := newFakeAccountStore()
	backfill := &fakeBackfill{triggered: make(chan int64, 8)}

	connector := NewConnectorHandler(client, users, accounts, fakeSealer{}, states, backfill, cfg.SuccessURL)
	read := NewReadHandler(accounts, nil, nil)
	router := NewRouter(connector, read, nil, nil)

	engine := gin.New()
	router.SetupRoutes(engine)

	return engine, accounts, backfill, srv
}

func TestAuthRedirectsToConsentDialog(t *testing.T) {
	engine, _, _, srv := newConnectorFixture(t, graphResponses{})
	defer srv.Close()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/connectors/meta/auth?userId=7", nil)
	engine.ServeHTTP(w, req)

	if w.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", w.Code)
	}

	location, err := url.Parse(w.Header().Get("Location"))
	if err != nil {
		t.Fatal(err)
	}
	q := location.Query()
	if q.Get("client_id") != "app-id" {
		t.Errorf("client_id = %q, want app-id", q.Get("client_id"))
	}

	// The embedded state must verify and carry the user id
	states, _ := NewStateCodec(testSigningKey)
	state, err := states.Decode(q.Get("state"))
	if err != nil {
		t.Fatalf("redirect state does not verify: %v", err)
	}
	if state.UserID != 7 {
		t.Errorf("state user id = %d, want 7", state.UserID)
	}
}

func TestAuthRequiresUserID(t *testing.T) {
	engine, _, _, srv := newConnectorFixture(t, graphResponses{})
	defer srv.Close()

	for _, path := range []string{
		"/api/connectors/meta/auth",
		"/api/connectors/meta/auth?userId=not-a-number",
	} {
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusBadRequest {
			t.Errorf("GET %s: status = %d, want 400", path, w.Code)
		}
	}
}

func TestAuthUnknownUserIs404(t *testing.T) {
	engine, _, _, srv := newConnectorFixture(t, graphResponses{})
	defer srv.Close()

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/connectors/meta/auth?userId=999", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestCallbackConnectsPagesAndTriggersBackfill(t *testing.T) {
	engine, accounts, backfill, srv := newConnectorFixture(t, graphResponses{
		shortToken: `{"access_token":"short-tok","expires_in":3600}`,
		longToken:  `{"access_token":"long-tok","expires_in":5183944}`,
		pages: `{"data":[
			{"id":"page-1","name":"First","picture":{"data":{"url":"https://cdn.example/p.jpg"}},"instagram_business_account":{"id":"ig-77"}},
			{"id":"page-2","name":"Second"}
		]}`,
	})
	defer srv.Close()

	states, _ := NewStateCodec(testSigningKey)
	state, _ := states.Encode(7)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/connectors/meta/callback?code=auth-code&state="+url.QueryEscape(state), nil)
	engine.ServeHTTP(w, req)

	if w.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302, body: %s", w.Code, w.Body.String())
	}
	if loc := w.Header().Get("Location"); loc != "/connected?ok=1" {
		t.Errorf("Location = %q, want /connected?ok=1", loc)
	}

	if len(accounts.byPage) != 2 {
		t.Fatalf("got %d accounts, want 2", len(accounts.byPage))
	}

	first := accounts.byPage["page-1"]
	if first.UserID != 7 {
		t.Errorf("UserID = %d, want 7 (from signed state)", first.UserID)
	}
	if first.AccessToken != "enc:long-tok" {
		t.Errorf("AccessToken = %q, want the sealed long-lived token", first.AccessToken)
	}
	if first.Platform != models.PlatformMeta {
		t.Errorf("Platform = %q, want META", first.Platform)
	}
	if igID := accounts.merged[first.ID]; igID != "ig-77" {
		t.Errorf("merged IG id = %q, want ig-77", igID)
	}

	// Both pages get a detached backfill
	got := map[int64]bool{}
	for i := 0; i < 2; i++ {
		select {
		case id := <-backfill.triggered:
			got[id] = true
		case <-time.After(2 * time.Second):
			t.Fatalf("backfill %d never triggered", i+1)
		}
	}
	if len(got) != 2 {
		t.Errorf("backfills triggered for %v, want two distinct accounts", got)
	}
}

func TestCallbackRequiresCodeAndValidState(t *testing.T) {
	engine, _, _, srv := newConnectorFixture(t, graphResponses{})
	defer srv.Close()

	states, _ := NewStateCodec(testSigningKey)
	state, _ := states.Encode(7)

	tests := []struct {
		name string
		path string
	}{
		{name: "missing code", path: "/api/connectors/meta/callback?state=" + url.QueryEscape(state)},
		{name: "missing state", path: "/api/connectors/meta/callback?code=x"},
		{name: "forged state", path: "/api/connectors/meta/callback?code=x&state=forged.deadbeef"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
		})
	}
}

func TestCallbackSurfacesProviderError(t *testing.T) {
	engine, accounts, _, srv := newConnectorFixture(t, graphResponses{
		shortToken: `{"error":{"message":"Invalid verification code","type":"OAuthException","code":100}}`,
	})
	defer srv.Close()

	states, _ := NewStateCodec(testSigningKey)
	state, _ := states.Encode(7)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/connectors/meta/callback?code=bad&state="+url.QueryEscape(state), nil)
	engine.ServeHTTP(w, req)

	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", w.Code)
	}
	// Raw provider body is passed through
	if !strings.Contains(w.Body.String(), "Invalid verification code") {
		t.Errorf("body = %s, want raw provider error", w.Body.String())
	}
	if len(accounts.byPage) != 0 {
		t.Error("no accounts should be persisted when the exchange fails")
	}
}
