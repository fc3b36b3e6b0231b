package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/socialpulse/connector/internal/models"
)

// Repository provides database access methods
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// UserRepository provides user-related database operations
type UserRepository struct {
	*Repository
}

// NewUserRepository creates a new user repository
func NewUserRepository(repo *Repository) *UserRepository {
	return &UserRepository{Repository: repo}
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

// Create creates a new user
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Create(user).Error
}

// AccountRepository provides account-related database operations
type AccountRepository struct {
	*Repository
}

// NewAccountRepository creates a new account repository
func NewAccountRepository(repo *Repository) *AccountRepository {
	return &AccountRepository{Repository: repo}
}

// GetByID retrieves an account by ID. Returns nil when no row exists.
func (r *AccountRepository) GetByID(ctx context.Context, id int64) (*models.Account, error) {
	var account models.Account
	if err := r.db.WithContext(ctx).First(&account, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

// GetByIDString retrieves an account by a string-form id, rejecting
// malformed input with a ValidationError
func (r *AccountRepository) GetByIDString(ctx context.Context, id string) (*models.Account, error) {
	parsed, err := ParseID("account id", id)
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, parsed)
}

// GetByPlatformAccountID retrieves an account by its natural key
func (r *AccountRepository) GetByPlatformAccountID(ctx context.Context, platform, platformAccountID string) (*models.Account, error) {
	var account models.Account
	err := r.db.WithContext(ctx).
		Where("platform = ? AND platform_account_id = ?", platform, platformAccountID).
		First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

// Upsert creates or updates an account keyed on (platform, platform_account_id)
// and reloads the resulting row into the argument
func (r *AccountRepository) Upsert(ctx context.Context, account *models.Account) error {
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now().UTC()
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "platform"}, {Name: "platform_account_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"user_id", "name", "username", "avatar_url", "meta",
			"access_token", "refresh_token", "token_expires_at",
		}),
	}).Create(account).Error
	if err != nil {
		return err
	}

	// Re-read so callers always see the persisted row, including the id of
	// a pre-existing account after a conflict update
	existing, err := r.GetByPlatformAccountID(ctx, account.Platform, account.PlatformAccountID)
	if err != nil {
		return err
	}
	if existing != nil {
		*account = *existing
	}
	return nil
}

// TouchLastSynced sets last_synced_at for an account
func (r *AccountRepository) TouchLastSynced(ctx context.Context, id int64, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Account{}).
		Where("id = ?", id).
		Update("last_synced_at", sql.NullTime{Time: at, Valid: true}).Error
}

// MergeInstagramBusinessID merges a discovered Instagram Business id into
// the account's meta blob, preserving the other fields of the blob
func (r *AccountRepository) MergeInstagramBusinessID(ctx context.Context, account *models.Account, igID string) error {
	meta := map[string]interface{}{}
	if account.Meta.Valid && account.Meta.String != "" {
		if err := json.Unmarshal([]byte(account.Meta.String), &meta); err != nil {
			// Unreadable blob: start over rather than fail the merge
			meta = map[string]interface{}{}
		}
	}
	meta["instagram_business_account"] = map[string]interface{}{"id": igID}

	encoded, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	account.Meta = sql.NullString{String: string(encoded), Valid: true}

	return r.db.WithContext(ctx).
		Model(&models.Account{}).
		Where("id = ?", account.ID).
		Update("meta", account.Meta).Error
}

// PostRepository provides post-related database operations
type PostRepository struct {
	*Repository
}

// NewPostRepository creates a new post repository
func NewPostRepository(repo *Repository) *PostRepository {
	return &PostRepository{Repository: repo}
}

// Upsert creates or updates a post keyed on platform_post_id and reloads
// the resulting row into the argument
func (r *PostRepository) Upsert(ctx context.Context, post *models.Post) error {
	if post.CreatedAt.IsZero() {
		post.CreatedAt = time.Now().UTC()
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "platform_post_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"account_id", "type", "content_text", "media_urls", "posted_at", "raw_response",
		}),
	}).Create(post).Error
	if err != nil {
		return err
	}

	var existing models.Post
	if err := r.db.WithContext(ctx).
		Where("platform_post_id = ?", post.PlatformPostID).
		First(&existing).Error; err == nil {
		*post = existing
	}
	return nil
}

// ListByAccount retrieves posts for an account, newest first
func (r *PostRepository) ListByAccount(ctx context.Context, accountID int64, limit int) ([]*models.Post, error) {
	var posts []*models.Post
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("posted_at DESC").
		Limit(limit).
		Find(&posts).Error
	if err != nil {
		return nil, err
	}
	return posts, nil
}

// CountByAccount counts posts for an account
func (r *PostRepository) CountByAccount(ctx context.Context, accountID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Post{}).
		Where("account_id = ?", accountID).
		Count(&count).Error
	return count, err
}

// MetricRepository provides metric-related database operations
type MetricRepository struct {
	*Repository
}

// NewMetricRepository creates a new metric repository
func NewMetricRepository(repo *Repository) *MetricRepository {
	return &MetricRepository{Repository: repo}
}

// Insert appends a metric row. Metrics are a time series; there is no upsert.
func (r *MetricRepository) Insert(ctx context.Context, metric *models.Metric) error {
	if metric.Date.IsZero() {
		metric.Date = time.Now().UTC()
	}
	if metric.CreatedAt.IsZero() {
		metric.CreatedAt = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Create(metric).Error
}

// ListByAccount retrieves metrics for an account, newest first
func (r *MetricRepository) ListByAccount(ctx context.Context, accountID int64, limit int) ([]*models.Metric, error) {
	var metrics []*models.Metric
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("date DESC").
		Limit(limit).
		Find(&metrics).Error
	if err != nil {
		return nil, err
	}
	return metrics, nil
}
