package sync

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/socialpulse/connector/internal/crypto"
	"github.com/socialpulse/connector/internal/models"
	"github.com/socialpulse/connector/pkg/config"
	"github.com/socialpulse/connector/pkg/logging"
	"github.com/socialpulse/connector/pkg/telemetry"
)

// ErrAccountNotFound is returned when a backfill is requested for an
// account id that does not exist
var ErrAccountNotFound = errors.New("account not found")

// AccountStore is the account persistence the backfill depends on
type AccountStore interface {
	GetByID(ctx context.Context, id int64) (*models.Account, error)
	TouchLastSynced(ctx context.Context, id int64, at time.Time) error
}

// PostStore upserts posts by their platform post id
type PostStore interface {
	Upsert(ctx context.Context, post *models.Post) error
}

// MetricStore appends metric rows
type MetricStore interface {
	Insert(ctx context.Context, metric *models.Metric) error
}

// GraphAPI is the slice of the provider client the backfill uses
type GraphAPI interface {
	FetchPagePosts(ctx context.Context, pageID, accessToken, since string) (json.RawMessage, error)
	FetchIGMedia(ctx context.Context, igBusinessID, accessToken, since string) (json.RawMessage, error)
	FetchPostInsights(ctx context.Context, itemID, accessToken string, metrics []string) (json.RawMessage, error)
	FetchAccountSnapshot(ctx context.Context, accountID, accessToken, platform string) (json.RawMessage, error)
}

// RunGuard coalesces overlapping backfill triggers for one account.
// Acquire reports false when another run already holds the guard.
type RunGuard interface {
	Acquire(ctx context.Context, accountID int64, ttl time.Duration) (bool, error)
	Release(ctx context.Context, accountID int64)
}

// Backfill pulls an account's content and engagement data from the
// provider into the local store. Runs are idempotent: posts and accounts
// upsert on their natural keys, metrics append.
type Backfill struct {
	accounts       AccountStore
	posts          PostStore
	metrics        MetricStore
	graph          GraphAPI
	codec          *crypto.Codec
	guard          RunGuard // optional
	insightMetrics []string
	guardTTL       time.Duration
	logger         *zap.Logger
}

// NewBackfill creates a backfill runner. guard may be nil, in which case
// overlapping runs for the same account are allowed (idempotent upserts
// make that wasted work, not corruption).
func NewBackfill(cfg *config.SyncConfig, accounts AccountStore, posts PostStore, metrics MetricStore, graph GraphAPI, codec *crypto.Codec, guard RunGuard) *Backfill {
	return &Backfill{
		accounts:       accounts,
		posts:          posts,
		metrics:        metrics,
		graph:          graph,
		codec:          codec,
		guard:          guard,
		insightMetrics: strings.Split(cfg.InsightMetrics, ","),
		guardTTL:       time.Duration(cfg.RunGuardSeconds) * time.Second,
		logger:         logging.GetLogger().With(zap.String("component", "backfill")),
	}
}

// BackfillAccount runs one sync for the given account.
//
// Failure policy is two-tier: a missing account or an undecryptable token
// aborts the run; everything after that is best effort. Item and phase
// failures are logged and skipped so sibling items and later phases still
// run, and a partial sync that reaches the last-synced update counts as a
// success.
func (b *Backfill) BackfillAccount(ctx context.Context, accountID int64) error {
	ctx, span := telemetry.StartSpan(ctx, "sync.backfill_account")
	defer span.End()

	logger := b.logger.With(zap.Int64("account_id", accountID))

	if b.guard != nil {
		acquired, err := b.guard.Acquire(ctx, accountID, b.guardTTL)
		if err != nil {
			// Guard trouble must not block the sync itself
			logger.Warn("Run guard unavailable, continuing unguarded", zap.Error(err))
		} else if !acquired {
			logger.Info("Backfill already in flight, skipping run")
			return nil
		} else {
			defer b.guard.Release(ctx, accountID)
		}
	}

	account, err := b.accounts.GetByID(ctx, accountID)
	if err != nil {
		return fmt.Errorf("failed to load account %d: %w", accountID, err)
	}
	if account == nil {
		return fmt.Errorf("%w: %d", ErrAccountNotFound, accountID)
	}

	accessToken, err := b.codec.Decrypt(account.AccessToken)
	if err != nil {
		return fmt.Errorf("failed to decrypt access token for account %d: %w", accountID, err)
	}

	logger.Info("Starting backfill", zap.String("platform_account_id", account.PlatformAccountID))

	if igID := account.InstagramBusinessID(); igID != "" {
		b.syncIGMedia(ctx, account, igID, accessToken, logger)
	}

	b.syncPagePosts(ctx, account, accessToken, logger)
	b.syncSnapshot(ctx, account, accessToken, logger)

	if err := b.accounts.TouchLastSynced(ctx, account.ID, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to update last synced time for account %d: %w", accountID, err)
	}

	logger.Info("Backfill complete")
	return nil
}

// syncIGMedia ingests the Instagram media list, one insights fetch per item
func (b *Backfill) syncIGMedia(ctx context.Context, account *models.Account, igID, accessToken string, logger *zap.Logger) {
	ctx, span := telemetry.StartSpan(ctx, "sync.ig_media_phase")
	defer span.End()

	body, err := b.graph.FetchIGMedia(ctx, igID, accessToken, "")
	if err != nil {
		logger.Warn("IG media fetch failed", zap.String("ig_id", igID), zap.Error(err))
		return
	}

	var list GraphList
	if err := json.Unmarshal(body, &list); err != nil || list.Data == nil {
		// A response without a data array is tolerated silently
		return
	}

	for _, raw := range list.Data {
		post, err := NormalizeMediaItem(account.ID, raw, time.Now().UTC())
		if err != nil {
			logger.Warn("Skipping malformed media item", zap.Error(err))
			continue
		}
		if err := b.posts.Upsert(ctx, post); err != nil {
			logger.Warn("Failed to upsert media post", zap.String("platform_post_id", post.PlatformPostID), zap.Error(err))
			continue
		}

		// Insights failures never undo the post persisted above
		b.fetchItemInsights(ctx, account, post, accessToken, logger)
	}
}

// fetchItemInsights records a metric row for one media item, best effort
func (b *Backfill) fetchItemInsights(ctx context.Context, account *models.Account, post *models.Post, accessToken string, logger *zap.Logger) {
	insights, err := b.graph.FetchPostInsights(ctx, post.PlatformPostID, accessToken, b.insightMetrics)
	if err != nil {
		logger.Warn("Insights fetch failed", zap.String("platform_post_id", post.PlatformPostID), zap.Error(err))
		return
	}

	metric := &models.Metric{
		PostID:    sql.NullInt64{Int64: post.ID, Valid: post.ID != 0},
		AccountID: sql.NullInt64{Int64: account.ID, Valid: true},
		Date:      time.Now().UTC(),
		Raw:       sql.NullString{String: string(insights), Valid: true},
	}
	if err := b.metrics.Insert(ctx, metric); err != nil {
		logger.Warn("Failed to insert insights metric", zap.String("platform_post_id", post.PlatformPostID), zap.Error(err))
	}
}

// syncPagePosts ingests the page feed. No per-item insights fetch here:
// high-volume feeds would exhaust provider rate limits.
func (b *Backfill) syncPagePosts(ctx context.Context, account *models.Account, accessToken string, logger *zap.Logger) {
	ctx, span := telemetry.StartSpan(ctx, "sync.page_post_phase")
	defer span.End()

	body, err := b.graph.FetchPagePosts(ctx, account.PlatformAccountID, accessToken, "")
	if err != nil {
		logger.Warn("Page posts fetch failed", zap.Error(err))
		return
	}

	var list GraphList
	if err := json.Unmarshal(body, &list); err != nil || list.Data == nil {
		return
	}

	for _, raw := range list.Data {
		post, err := NormalizePagePost(account.ID, raw, time.Now().UTC())
		if err != nil {
			logger.Warn("Skipping malformed page post", zap.Error(err))
			continue
		}
		if err := b.posts.Upsert(ctx, post); err != nil {
			logger.Warn("Failed to upsert page post", zap.String("platform_post_id", post.PlatformPostID), zap.Error(err))
		}
	}
}

// syncSnapshot records an account-level follower snapshot, best effort
func (b *Backfill) syncSnapshot(ctx context.Context, account *models.Account, accessToken string, logger *zap.Logger) {
	ctx, span := telemetry.StartSpan(ctx, "sync.snapshot_phase")
	defer span.End()

	snapshot, err := b.graph.FetchAccountSnapshot(ctx, account.PlatformAccountID, accessToken, account.Platform)
	if err != nil {
		logger.Warn("Account snapshot fetch failed", zap.Error(err))
		return
	}

	metric := &models.Metric{
		AccountID: sql.NullInt64{Int64: account.ID, Valid: true},
		Date:      time.Now().UTC(),
		Followers: SnapshotFollowers(snapshot),
		Raw:       sql.NullString{String: string(snapshot), Valid: true},
	}
	if err := b.metrics.Insert(ctx, metric); err != nil {
		logger.Warn("Failed to insert snapshot metric", zap.Error(err))
	}
}
