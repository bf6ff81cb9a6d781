// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Assignment
// model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations. They
// follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition. The one piece of mechanism that lives
// here is SaveTransition's optimistic version check, which gives the service
// layer its per-assignment linearization guarantee.
//
// Error semantics:
//   - When an assignment is not found, functions return
//     gorm.ErrRecordNotFound (also exported here as ErrNotFound).
//   - When a version-checked save loses a race, SaveTransition returns
//     ErrVersionConflict; the caller re-reads and re-applies.
//   - On other DB errors the raw gorm error is propagated.
package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/askecho/ask-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist. It aliases
// gorm.ErrRecordNotFound for convenience and consistency across the service
// layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrVersionConflict is returned by SaveTransition when the stored row no
// longer carries the version the snapshot was read at: another writer
// committed first.
var ErrVersionConflict = errors.New("assignment version conflict")

// CreateAssignment inserts a new assignment row. The caller supplies the ID
// and link token (minted by the service layer).
func CreateAssignment(ctx context.Context, db *gorm.DB, a *domain.Assignment) error {
	return db.WithContext(ctx).Create(a).Error
}

// GetAssignment fetches a single assignment by its ID and owner (userID).
// If the record does not exist, it returns ErrNotFound.
func GetAssignment(ctx context.Context, db *gorm.DB, id, userID string) (*domain.Assignment, error) {
	var a domain.Assignment
	err := db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&a).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// GetAssignmentByToken resolves a public link token to its assignment. This
// is the only lookup the unauthenticated surface may use; raw assignment ids
// are never accepted from public callers.
func GetAssignmentByToken(ctx context.Context, db *gorm.DB, token string) (*domain.Assignment, error) {
	var a domain.Assignment
	err := db.WithContext(ctx).
		Where("link_token = ?", token).
		First(&a).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// CountAssignments returns the total number of assignments owned by userID.
func CountAssignments(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Assignment{}).
		Where("user_id = ?", userID).
		Count(&total).Error
	return total, err
}

// ListAssignmentsPage returns a paginated slice of assignments for userID,
// ordered by creation time descending. Use CountAssignments to obtain the
// total for pagination metadata.
//
// The caller is responsible for computing offset and limit (e.g., (page-1)*pageSize).
func ListAssignmentsPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.Assignment, error) {
	var out []domain.Assignment
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// SaveTransition commits a mutated snapshot using compare-and-swap on the
// version column. The snapshot's Version must be the value the row was read
// at; the update bumps it by one. If no row matches (the assignment is gone
// or another writer already bumped the version) it returns ErrVersionConflict
// and leaves the snapshot untouched except that a successful save increments
// the in-memory Version to match the store.
func SaveTransition(ctx context.Context, db *gorm.DB, a *domain.Assignment) error {
	res := db.WithContext(ctx).
		Model(&domain.Assignment{}).
		Where("id = ? AND version = ?", a.ID, a.Version).
		Updates(map[string]any{
			"status":           a.Status,
			"sent_at":          a.SentAt,
			"viewed_at":        a.ViewedAt,
			"answered_at":      a.AnsweredAt,
			"recording_id":     a.RecordingID,
			"reminder_count":   a.ReminderCount,
			"last_reminder_at": a.LastReminderAt,
			"version":          a.Version + 1,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}
	a.Version++
	return nil
}

// DeleteAssignment removes an assignment identified by id and owned by
// userID. If no rows are affected, it returns ErrNotFound. The service layer
// is responsible for rejecting deletion of answered assignments.
func DeleteAssignment(ctx context.Context, db *gorm.DB, id, userID string) error {
	res := db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&domain.Assignment{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
