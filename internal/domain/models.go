// Package domain defines the persistence models for assignments, people,
// push tokens, and questions. These types are mapped with GORM and form the
// core data layer of the ask backend.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// Assignment represents one question directed at one person. It is the only
// entity in the system with a lifecycle: it is created pending, marked sent
// when first dispatched, viewed when the public recording page is opened,
// and answered when a recording is submitted.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - UserID: identifier of the asker; indexed for efficient retrieval.
//   - QuestionID / PersonID: foreign keys to the question and the recipient.
//   - Status: lifecycle state; see Status for the allowed values.
//   - LinkToken: opaque single-purpose token that grants unauthenticated
//     access to the public recording page for this assignment only.
//   - SentAt / ViewedAt / AnsweredAt: transition timestamps; each is set at
//     most once and never cleared.
//   - ReminderCount: number of reminders dispatched so far (never decreases).
//   - LastReminderAt: time of the most recent reminder, if any.
//   - Version: optimistic-lock counter; every committed transition bumps it.
type Assignment struct {
	ID         string `json:"id"          gorm:"type:char(36);primaryKey"`
	UserID     string `json:"user_id"     gorm:"type:varchar(64);not null;index:idx_user_assignments"`
	QuestionID string `json:"question_id" gorm:"type:char(36);not null;index"`
	PersonID   string `json:"person_id"   gorm:"type:char(36);not null;index"`

	Status    Status `json:"status"     gorm:"type:varchar(16);not null;default:'pending';check:status IN ('pending','sent','viewed','answered')"`
	LinkToken string `json:"-"          gorm:"type:char(36);not null;uniqueIndex:ux_assignment_token"`

	SentAt         *time.Time `json:"sent_at,omitempty"`
	ViewedAt       *time.Time `json:"viewed_at,omitempty"`
	AnsweredAt     *time.Time `json:"answered_at,omitempty"`
	RecordingID    *string    `json:"recording_id,omitempty" gorm:"type:char(36)"`
	ReminderCount  int        `json:"reminder_count" gorm:"not null;default:0;check:reminder_count >= 0"`
	LastReminderAt *time.Time `json:"last_reminder_at,omitempty"`

	Version   int            `json:"-" gorm:"not null;default:0"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	// Person is the recipient. Assignments are cascade-deleted if the
	// person is removed.
	Person Person `json:"-" gorm:"foreignKey:PersonID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	// Question is the question being asked.
	Question Question `json:"-" gorm:"foreignKey:QuestionID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Assignment.
func (Assignment) TableName() string { return "assignments" }

// Person is a recipient of questions. Contact details are the addresses the
// dispatcher resolves when delivering a send or a reminder; either may be
// empty, in which case the corresponding channel is unavailable.
type Person struct {
	ID        string         `json:"id"      gorm:"type:char(36);primaryKey"`
	UserID    string         `json:"user_id" gorm:"type:varchar(64);not null;index:idx_user_people"`
	Name      string         `json:"name"    gorm:"type:varchar(255);not null"`
	Phone     string         `json:"phone,omitempty" gorm:"type:varchar(32)"`
	Email     string         `json:"email,omitempty" gorm:"type:varchar(255)"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// TableName returns the database table name for Person.
func (Person) TableName() string { return "people" }

// PushToken is one registered device of a person. A person may have several;
// push dispatch broadcasts to all of them and aggregates the outcome.
type PushToken struct {
	ID        string         `json:"id"        gorm:"type:char(36);primaryKey"`
	PersonID  string         `json:"person_id" gorm:"type:char(36);not null;index;uniqueIndex:ux_person_device,priority:1"`
	Token     string         `json:"token"     gorm:"type:varchar(512);not null;uniqueIndex:ux_person_device,priority:2"`
	Platform  string         `json:"platform"  gorm:"type:varchar(16);not null;check:platform IN ('ios','android')"`
	CreatedAt time.Time      `json:"created_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	Person Person `json:"-" gorm:"foreignKey:PersonID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for PushToken.
func (PushToken) TableName() string { return "push_tokens" }

// Question is the text being asked. Question authoring is plain CRUD; the
// engine only reads the text to compose outgoing messages.
type Question struct {
	ID        string         `json:"id"      gorm:"type:char(36);primaryKey"`
	UserID    string         `json:"user_id" gorm:"type:varchar(64);not null;index:idx_user_questions"`
	Text      string         `json:"text"    gorm:"type:text;not null"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// TableName returns the database table name for Question.
func (Question) TableName() string { return "questions" }
