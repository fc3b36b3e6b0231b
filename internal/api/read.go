package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/socialpulse/connector/internal/db"
	"github.com/socialpulse/connector/internal/models"
	"github.com/socialpulse/connector/pkg/logging"
)

const defaultListLimit = 50

// PostStore lists ingested posts
type PostStore interface {
	ListByAccount(ctx context.Context, accountID int64, limit int) ([]*models.Post, error)
	CountByAccount(ctx context.Context, accountID int64) (int64, error)
}

// MetricStore lists recorded metrics
type MetricStore interface {
	ListByAccount(ctx context.Context, accountID int64, limit int) ([]*models.Metric, error)
}

// ReadHandler serves the query side: ingested posts and metrics per account
type ReadHandler struct {
	accounts AccountStore
	posts    PostStore
	metrics  MetricStore
	logger   *zap.Logger
}

// NewReadHandler creates the read API handler
func NewReadHandler(accounts AccountStore, posts PostStore, metrics MetricStore) *ReadHandler {
	return &ReadHandler{
		accounts: accounts,
		posts:    posts,
		metrics:  metrics,
		logger:   logging.GetLogger().With(zap.String("component", "read-api")),
	}
}

type postResponse struct {
	ID             int64     `json:"id"`
	PlatformPostID string    `json:"platformPostId"`
	Type           string    `json:"type"`
	ContentText    string    `json:"contentText"`
	MediaURLs      []string  `json:"mediaUrls"`
	PostedAt       time.Time `json:"postedAt"`
}

type metricResponse struct {
	ID        int64     `json:"id"`
	PostID    *int64    `json:"postId,omitempty"`
	Date      time.Time `json:"date"`
	Followers *int64    `json:"followers,omitempty"`
}

// ListPosts handles GET /api/accounts/:id/posts
func (h *ReadHandler) ListPosts(c *gin.Context) {
	account, ok := h.loadAccount(c)
	if !ok {
		return
	}

	posts, err := h.posts.ListByAccount(c.Request.Context(), account.ID, listLimit(c))
	if err != nil {
		h.logger.Error("Failed to list posts", zap.Int64("account_id", account.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list posts"})
		return
	}

	total, err := h.posts.CountByAccount(c.Request.Context(), account.ID)
	if err != nil {
		h.logger.Error("Failed to count posts", zap.Int64("account_id", account.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list posts"})
		return
	}

	out := make([]postResponse, 0, len(posts))
	for _, post := range posts {
		urls, err := post.GetMediaURLs()
		if err != nil {
			urls = nil
		}
		out = append(out, postResponse{
			ID:             post.ID,
			PlatformPostID: post.PlatformPostID,
			Type:           post.Type,
			ContentText:    post.ContentText,
			MediaURLs:      urls,
			PostedAt:       post.PostedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"data": out, "total": total})
}

// ListMetrics handles GET /api/accounts/:id/metrics
func (h *ReadHandler) ListMetrics(c *gin.Context) {
	account, ok := h.loadAccount(c)
	if !ok {
		return
	}

	metrics, err := h.metrics.ListByAccount(c.Request.Context(), account.ID, listLimit(c))
	if err != nil {
		h.logger.Error("Failed to list metrics", zap.Int64("account_id", account.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list metrics"})
		return
	}

	out := make([]metricResponse, 0, len(metrics))
	for _, metric := range metrics {
		resp := metricResponse{ID: metric.ID, Date: metric.Date}
		if metric.PostID.Valid {
			id := metric.PostID.Int64
			resp.PostID = &id
		}
		if metric.Followers.Valid {
			followers := metric.Followers.Int64
			resp.Followers = &followers
		}
		out = append(out, resp)
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}

func (h *ReadHandler) loadAccount(c *gin.Context) (*models.Account, bool) {
	account, err := h.accounts.GetByIDString(c.Request.Context(), c.Param("id"))
	if err != nil {
		var verr *db.ValidationError
		if errors.As(err, &verr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error()})
			return nil, false
		}
		h.logger.Error("Failed to load account", zap.String("id", c.Param("id")), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load account"})
		return nil, false
	}
	if account == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
		return nil, false
	}
	return account, true
}

func listLimit(c *gin.Context) int {
	if raw := c.Query("limit"); raw != "" {
		if limit, err := strconv.Atoi(raw); err == nil && limit > 0 && limit <= 200 {
			return limit
		}
	}
	return defaultListLimit
}
