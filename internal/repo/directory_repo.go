// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the People,
// PushToken, and Question models, the directory the dispatcher resolves
// destination addresses from.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/askecho/ask-backend/internal/domain"
)

// CreatePerson inserts a new person row owned by userID. The person ID is a
// randomly generated UUID, and CreatedAt is set to UTC.
func CreatePerson(ctx context.Context, db *gorm.DB, userID, name, phone, email string) (*domain.Person, error) {
	p := &domain.Person{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      name,
		Phone:     phone,
		Email:     email,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(p).Error; err != nil {
		return nil, err
	}
	return p, nil
}

// GetPerson fetches a single person by ID and owner. If the record does not
// exist, it returns ErrNotFound.
func GetPerson(ctx context.Context, db *gorm.DB, id, userID string) (*domain.Person, error) {
	var p domain.Person
	err := db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// AddPushToken registers a device token for a person. Re-registering the
// same token for the same person is a unique-index violation surfaced as the
// raw DB error; callers typically treat it as already-registered.
func AddPushToken(ctx context.Context, db *gorm.DB, personID, token, platform string) (*domain.PushToken, error) {
	t := &domain.PushToken{
		ID:        uuid.NewString(),
		PersonID:  personID,
		Token:     token,
		Platform:  platform,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(t).Error; err != nil {
		return nil, err
	}
	return t, nil
}

// ListPushTokens returns every registered device token for a person, oldest
// first. It returns an empty slice when the person has no devices.
func ListPushTokens(ctx context.Context, db *gorm.DB, personID string) ([]domain.PushToken, error) {
	var out []domain.PushToken
	err := db.WithContext(ctx).
		Where("person_id = ?", personID).
		Order("created_at asc").
		Find(&out).Error
	return out, err
}

// CreateQuestion inserts a new question row owned by userID.
func CreateQuestion(ctx context.Context, db *gorm.DB, userID, text string) (*domain.Question, error) {
	q := &domain.Question{
		ID:        uuid.NewString(),
		UserID:    userID,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(q).Error; err != nil {
		return nil, err
	}
	return q, nil
}

// GetQuestion fetches a single question by ID and owner. If the record does
// not exist, it returns ErrNotFound.
func GetQuestion(ctx context.Context, db *gorm.DB, id, userID string) (*domain.Question, error) {
	var q domain.Question
	err := db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&q).Error
	if err != nil {
		return nil, err
	}
	return &q, nil
}
