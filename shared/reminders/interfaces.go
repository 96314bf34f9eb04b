package reminders

import (
	"context"
	"time"

	"saunafreunde/internal/models"
)

// ClaimStore provides access to claims for the reminder service.
type ClaimStore interface {
	// UpcomingUnreminded returns claims starting in (now, now+within] whose
	// reminder has not been sent yet.
	UpcomingUnreminded(ctx context.Context, now time.Time, within time.Duration) ([]models.AufgussClaim, error)

	// MarkReminderSent marks a claim as having had its reminder sent.
	MarkReminderSent(ctx context.Context, claimID int64) error
}

// Recipients resolves the claimant of a claim.
type Recipients interface {
	GetProfile(ctx context.Context, id string) (*models.Profile, error)
}

// Notifier sends reminder notifications to members.
type Notifier interface {
	// SendReminder sends a reminder about the claim to the given chat.
	SendReminder(ctx context.Context, chatID int64, claim *models.AufgussClaim) error
}

// Logger interface for logging.
type Logger interface {
	Info(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Debug(msg string, fields ...interface{})
}
