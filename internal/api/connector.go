package api

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/socialpulse/connector/internal/db"
	"github.com/socialpulse/connector/internal/meta"
	"github.com/socialpulse/connector/internal/models"
	"github.com/socialpulse/connector/pkg/logging"
)

// Fallback token lifetime when the exchange response omits expires_in
const defaultTokenLifetime = 60 * 24 * time.Hour

// AccountStore is the account persistence the handlers depend on
type AccountStore interface {
	Upsert(ctx context.Context, account *models.Account) error
	MergeInstagramBusinessID(ctx context.Context, account *models.Account, igID string) error
	GetByIDString(ctx context.Context, id string) (*models.Account, error)
}

// UserStore looks up the user an account is connected for
type UserStore interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
}

// TokenSealer encrypts provider tokens before they are stored
type TokenSealer interface {
	Encrypt(plaintext string) (string, error)
}

// BackfillRunner triggers a sync for one account
type BackfillRunner interface {
	BackfillAccount(ctx context.Context, accountID int64) error
}

// ConnectorHandler serves the Meta OAuth flow
type ConnectorHandler struct {
	graph      *meta.Client
	users      UserStore
	accounts   AccountStore
	sealer     TokenSealer
	states     *StateCodec
	backfill   BackfillRunner
	successURL string
	logger     *zap.Logger
}

// NewConnectorHandler creates the Meta connector handler
func NewConnectorHandler(graph *meta.Client, users UserStore, accounts AccountStore, sealer TokenSealer, states *StateCodec, backfill BackfillRunner, successURL string) *ConnectorHandler {
	return &ConnectorHandler{
		graph:      graph,
		users:      users,
		accounts:   accounts,
		sealer:     sealer,
		states:     states,
		backfill:   backfill,
		successURL: successURL,
		logger:     logging.GetLogger().With(zap.String("component", "meta-connector")),
	}
}

// Auth redirects the user to the provider's consent dialog
func (h *ConnectorHandler) Auth(c *gin.Context) {
	userID := c.Query("userId")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing userId"})
		return
	}
	parsed, err := db.ParseID("user id", userID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.users.GetByID(c.Request.Context(), parsed)
	if err != nil {
		h.logger.Error("Failed to load user", zap.Int64("user_id", parsed), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load user"})
		return
	}
	if user == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}

	state, err := h.states.Encode(user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build state"})
		return
	}

	c.Redirect(http.StatusFound, h.graph.ConsentURL(state))
}

// Callback completes the OAuth flow: verifies state, exchanges the code
// for a long-lived token, upserts one account per authorized page, and
// fires a detached backfill for each.
func (h *ConnectorHandler) Callback(c *gin.Context) {
	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing code"})
		return
	}

	state, err := h.states.Decode(c.Query("state"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid state"})
		return
	}

	ctx := c.Request.Context()

	shortToken, err := h.graph.ExchangeCodeForShortToken(ctx, code)
	if err != nil {
		h.providerError(c, "short token exchange failed", err)
		return
	}

	longToken, err := h.graph.ExchangeShortForLongToken(ctx, shortToken.AccessToken)
	if err != nil {
		h.providerError(c, "long token exchange failed", err)
		return
	}

	pages, err := h.graph.GetPages(ctx, longToken.AccessToken)
	if err != nil {
		h.providerError(c, "page list failed", err)
		return
	}

	for _, page := range pages {
		if err := h.connectPage(ctx, state.UserID, page, longToken); err != nil {
			h.logger.Error("Failed to connect page",
				zap.String("page_id", page.ID), zap.Error(err))
			continue
		}
	}

	c.Redirect(http.StatusFound, h.successURL)
}

// connectPage upserts the page as an account and triggers its backfill
func (h *ConnectorHandler) connectPage(ctx context.Context, userID int64, page meta.Page, token *meta.TokenResponse) error {
	encrypted, err := h.sealer.Encrypt(token.AccessToken)
	if err != nil {
		return err
	}

	lifetime := defaultTokenLifetime
	if token.ExpiresIn > 0 {
		lifetime = time.Duration(token.ExpiresIn) * time.Second
	}

	account := &models.Account{
		UserID:            userID,
		Platform:          models.PlatformMeta,
		PlatformAccountID: page.ID,
		Name:              page.Name,
		Username:          page.Name,
		AvatarURL:         page.Picture.Data.URL,
		Meta:              sql.NullString{String: string(page.Raw), Valid: len(page.Raw) > 0},
		AccessToken:       encrypted,
		TokenExpiresAt:    sql.NullTime{Time: time.Now().UTC().Add(lifetime), Valid: true},
	}

	if err := h.accounts.Upsert(ctx, account); err != nil {
		return err
	}

	if igID := page.InstagramBusinessID(); igID != "" {
		if err := h.accounts.MergeInstagramBusinessID(ctx, account, igID); err != nil {
			return err
		}
	}

	// Detached: the authorization response must not wait on a slow sync
	accountID := account.ID
	go func() {
		if err := h.backfill.BackfillAccount(context.Background(), accountID); err != nil {
			h.logger.Error("Backfill failed",
				zap.Int64("account_id", accountID), zap.Error(err))
		}
	}()

	return nil
}

// providerError surfaces a Graph error payload to the caller verbatim
func (h *ConnectorHandler) providerError(c *gin.Context, msg string, err error) {
	h.logger.Error(msg, zap.Error(err))

	var gerr *meta.GraphError
	if errors.As(err, &gerr) && len(gerr.RawBody) > 0 {
		c.Data(http.StatusBadGateway, "application/json", gerr.RawBody)
		return
	}
	c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
}
