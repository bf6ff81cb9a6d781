// Package services – DirectoryService.
//
// Thin authoring service for the people/question directory the dispatcher
// addresses from. No lifecycle logic lives here; the only rule enforced is
// ownership (a device can only be registered on a person the caller owns).
package services

import (
	"context"

	"gorm.io/gorm"

	"github.com/askecho/ask-backend/internal/domain"
	"github.com/askecho/ask-backend/internal/repo"
)

// DirectoryService provides create operations for people, their devices,
// and questions.
type DirectoryService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
}

// CreatePerson inserts a new person owned by userID.
func (s *DirectoryService) CreatePerson(ctx context.Context, userID, name, phone, email string) (*domain.Person, error) {
	return repo.CreatePerson(ctx, s.DB, userID, name, phone, email)
}

// AddPushToken registers a device on a person owned by userID.
func (s *DirectoryService) AddPushToken(ctx context.Context, userID, personID, token, platform string) (*domain.PushToken, error) {
	if _, err := repo.GetPerson(ctx, s.DB, personID, userID); err != nil {
		return nil, mapNotFound(err, ErrPersonNotFound)
	}
	return repo.AddPushToken(ctx, s.DB, personID, token, platform)
}

// CreateQuestion inserts a new question owned by userID.
func (s *DirectoryService) CreateQuestion(ctx context.Context, userID, text string) (*domain.Question, error) {
	return repo.CreateQuestion(ctx, s.DB, userID, text)
}
