package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"rulemate/internal/model"
)

// Repository is the persistent store shared by the fetcher, the rule engine
// and the action executor. Every method is its own unit of work.
type Repository struct {
	db *gorm.DB
}

// New creates a repository on top of an initialized database.
func New(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// ActionFilter narrows ListActions.
type ActionFilter struct {
	Status model.ActionStatus
	Limit  int
	Offset int
}

// GetLastFetchedTime returns the checkpoint.
func (r *Repository) GetLastFetchedTime(ctx context.Context) (time.Time, error) {
	var cp model.Checkpoint
	if err := r.db.WithContext(ctx).First(&cp, model.CheckpointID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return time.Time{}, ErrNotFound
		}
		return time.Time{}, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	return cp.LastFetchedTimestamp, nil
}

// UpdateLastFetchedTime moves the checkpoint forward. Older timestamps are
// ignored so the checkpoint never decreases.
func (r *Repository) UpdateLastFetchedTime(ctx context.Context, ts time.Time) error {
	return advanceCheckpoint(r.db.WithContext(ctx), ts)
}

// Timestamps are written in UTC: sqlite stores them as text, so comparisons
// and ordering are only correct when every row uses the same offset.
func advanceCheckpoint(tx *gorm.DB, ts time.Time) error {
	ts = ts.UTC()
	result := tx.Model(&model.Checkpoint{}).
		Where("id = ? AND last_fetched_timestamp < ?", model.CheckpointID, ts).
		Update("last_fetched_timestamp", ts)
	if result.Error != nil {
		return fmt.Errorf("failed to update checkpoint: %w", result.Error)
	}
	return nil
}

// AddEmail stores an email unless one with the same id already exists. It
// reports whether a row was inserted.
func (r *Repository) AddEmail(ctx context.Context, email *model.Email) (bool, error) {
	return insertEmail(r.db.WithContext(ctx), email)
}

func insertEmail(tx *gorm.DB, email *model.Email) (bool, error) {
	email.IsProcessed = false
	if email.FetchedAt.IsZero() {
		email.FetchedAt = time.Now()
	}
	email.FetchedAt = email.FetchedAt.UTC()
	email.Received = email.Received.UTC()
	result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(email)
	if result.Error != nil {
		return false, fmt.Errorf("failed to store email %s: %w", email.ID, result.Error)
	}
	return result.RowsAffected > 0, nil
}

// SaveFetched stores the emails of one fetch cycle and, when the cycle saw at
// least one email, advances the checkpoint to fetchedAt. Both happen in one
// transaction. It returns the number of emails that were new.
func (r *Repository) SaveFetched(ctx context.Context, emails []model.Email, fetchedAt time.Time) (int, error) {
	inserted := 0
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range emails {
			if emails[i].FetchedAt.IsZero() {
				emails[i].FetchedAt = fetchedAt
			}
			ok, err := insertEmail(tx, &emails[i])
			if err != nil {
				return err
			}
			if ok {
				inserted++
			}
		}
		if len(emails) == 0 {
			return nil
		}
		return advanceCheckpoint(tx, fetchedAt)
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// GetEmail returns the email with the given id or ErrNotFound.
func (r *Repository) GetEmail(ctx context.Context, id string) (*model.Email, error) {
	var email model.Email
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get email %s: %w", id, err)
	}
	return &email, nil
}

// GetNewEmails returns every email not yet seen by the rule engine.
func (r *Repository) GetNewEmails(ctx context.Context) ([]model.Email, error) {
	var emails []model.Email
	result := r.db.WithContext(ctx).
		Where("is_processed = ?", false).
		Order("received ASC").Order("id ASC").
		Find(&emails)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get new emails: %w", result.Error)
	}
	return emails, nil
}

// ListEmails returns stored emails, newest first, with the total count.
func (r *Repository) ListEmails(ctx context.Context, limit, offset int) ([]model.Email, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&model.Email{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count emails: %w", err)
	}

	var emails []model.Email
	if err := r.db.WithContext(ctx).Order("received DESC").Offset(offset).Limit(limit).Find(&emails).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list emails: %w", err)
	}
	return emails, total, nil
}

// EnqueueActions inserts the entries as pending and marks the email processed
// in one transaction, so a crash cannot leave a processed email without its
// actions. It fails with ErrAlreadyProcessed if the email is missing or was
// processed concurrently; nothing is enqueued in that case.
func (r *Repository) EnqueueActions(ctx context.Context, emailID string, entries []model.ActionEntry) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(entries) > 0 {
			for i := range entries {
				entries[i].EmailID = emailID
				entries[i].Status = model.ActionStatusPending
				entries[i].RetryCount = 0
			}
			if err := tx.Create(&entries).Error; err != nil {
				return fmt.Errorf("failed to enqueue actions for email %s: %w", emailID, err)
			}
		}

		result := tx.Model(&model.Email{}).
			Where("id = ? AND is_processed = ?", emailID, false).
			Update("is_processed", true)
		if result.Error != nil {
			return fmt.Errorf("failed to mark email %s processed: %w", emailID, result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("email %s: %w", emailID, ErrAlreadyProcessed)
		}
		return nil
	})
}

// AddAction enqueues a single pending entry.
func (r *Repository) AddAction(ctx context.Context, entry *model.ActionEntry) error {
	entry.Status = model.ActionStatusPending
	entry.RetryCount = 0
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to add action: %w", err)
	}
	return nil
}

// GetPendingActions returns pending entries oldest first.
func (r *Repository) GetPendingActions(ctx context.Context) ([]model.ActionEntry, error) {
	var entries []model.ActionEntry
	result := r.db.WithContext(ctx).
		Where("status = ?", model.ActionStatusPending).
		Order("created_at ASC").Order("id ASC").
		Find(&entries)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get pending actions: %w", result.Error)
	}
	return entries, nil
}

// GetAction returns one entry or ErrNotFound.
func (r *Repository) GetAction(ctx context.Context, id uint) (*model.ActionEntry, error) {
	var entry model.ActionEntry
	if err := r.db.WithContext(ctx).Preload("Email").First(&entry, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get action %d: %w", id, err)
	}
	return &entry, nil
}

// UpdateActionStatus records the outcome of an execution attempt. Only
// pending entries are updated; terminal entries return ErrNotPending.
func (r *Repository) UpdateActionStatus(ctx context.Context, id uint, status model.ActionStatus, retryCount int, lastErr string) error {
	result := r.db.WithContext(ctx).Model(&model.ActionEntry{}).
		Where("id = ? AND status = ?", id, model.ActionStatusPending).
		Updates(map[string]interface{}{
			"status":      status,
			"retry_count": retryCount,
			"last_error":  lastErr,
			"updated_at":  time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update action %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("action %d: %w", id, ErrNotPending)
	}
	return nil
}

// ListActions returns entries newest first with the total matching count.
func (r *Repository) ListActions(ctx context.Context, filter ActionFilter) ([]model.ActionEntry, int64, error) {
	query := r.db.WithContext(ctx).Model(&model.ActionEntry{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count actions: %w", err)
	}

	var entries []model.ActionEntry
	if err := query.Order("created_at DESC").Order("id DESC").Offset(filter.Offset).Limit(filter.Limit).Find(&entries).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list actions: %w", err)
	}
	return entries, total, nil
}

// CountActionsByStatus returns the queue size per status. Statuses with no
// entries are reported as zero.
func (r *Repository) CountActionsByStatus(ctx context.Context) (map[model.ActionStatus]int64, error) {
	var rows []struct {
		Status model.ActionStatus
		Count  int64
	}
	err := r.db.WithContext(ctx).Model(&model.ActionEntry{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count actions: %w", err)
	}

	counts := map[model.ActionStatus]int64{
		model.ActionStatusPending: 0,
		model.ActionStatusSuccess: 0,
		model.ActionStatusFailed:  0,
	}
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// Ping checks database connectivity.
func (r *Repository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
