package reminders

import (
	"context"
	"errors"
	"sync"
	"time"

	"saunafreunde/internal/models"
)

// Config holds configuration for the reminder service.
type Config struct {
	// CheckInterval is how often to look for upcoming claims.
	// Default: 15 minutes.
	CheckInterval time.Duration

	// HoursBefore is how long before the start a claimant is reminded.
	// Default: 24 hours.
	HoursBefore int

	// MaxConcurrentNotifications limits parallel notification sends.
	// Default: 10.
	MaxConcurrentNotifications int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		CheckInterval:              15 * time.Minute,
		HoursBefore:                24,
		MaxConcurrentNotifications: 10,
	}
}

// Service reminds claimants of their upcoming Aufguss.
type Service struct {
	config     *Config
	claims     ClaimStore
	recipients Recipients
	sender     *Sender
	logger     Logger
	now        func() time.Time
	stopCh     chan struct{}
	wg         sync.WaitGroup
	mu         sync.Mutex
	running    bool
}

// NewService creates a new reminder service.
func NewService(
	config *Config,
	claims ClaimStore,
	recipients Recipients,
	sender *Sender,
	logger Logger,
) *Service {
	if config == nil {
		config = DefaultConfig()
	}
	if config.CheckInterval == 0 {
		config.CheckInterval = 15 * time.Minute
	}
	if config.HoursBefore == 0 {
		config.HoursBefore = 24
	}
	if config.MaxConcurrentNotifications == 0 {
		config.MaxConcurrentNotifications = 10
	}

	return &Service{
		config:     config,
		claims:     claims,
		recipients: recipients,
		sender:     sender,
		logger:     logger,
		now:        time.Now,
		stopCh:     make(chan struct{}),
	}
}

// Start begins the reminder check loop.
func (s *Service) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop()

	s.logger.Info("Reminder service started",
		"check_interval", s.config.CheckInterval,
		"hours_before", s.config.HoursBefore,
	)
}

// Stop gracefully stops the reminder service.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()

	s.logger.Info("Reminder service stopped")
}

func (s *Service) loop() {
	defer s.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-s.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	s.CheckNow(ctx)

	ticker := time.NewTicker(s.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.CheckNow(ctx)
		}
	}
}

// CheckNow sends every reminder that is due and returns how many were delivered.
func (s *Service) CheckNow(ctx context.Context) int {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	within := time.Duration(s.config.HoursBefore) * time.Hour
	claims, err := s.claims.UpcomingUnreminded(ctx, s.now(), within)
	if err != nil {
		s.logger.Error("Failed to get upcoming claims", "error", err)
		return 0
	}
	if len(claims) == 0 {
		return 0
	}
	s.logger.Debug("Found claims to remind", "count", len(claims))

	sem := make(chan struct{}, s.config.MaxConcurrentNotifications)
	var wg sync.WaitGroup
	var mu sync.Mutex
	delivered := 0

	for i := range claims {
		claim := &claims[i]
		wg.Add(1)
		sem <- struct{}{}

		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			ok, err := s.remind(ctx, claim)
			if err != nil {
				s.logger.Error("Failed to send reminder",
					"claim_id", claim.ID,
					"user_id", claim.ClaimedBy,
					"error", err,
				)
				return
			}
			if ok {
				mu.Lock()
				delivered++
				mu.Unlock()
			}
		}()
	}

	wg.Wait()
	return delivered
}

// remind reports whether a message went out. Claims of members without a chat are skipped.
func (s *Service) remind(ctx context.Context, claim *models.AufgussClaim) (bool, error) {
	profile, err := s.recipients.GetProfile(ctx, claim.ClaimedBy)
	if err != nil {
		return false, err
	}
	if profile.TelegramChatID == 0 {
		return false, nil
	}

	err = s.sender.Send(ctx, profile.TelegramChatID, claim)
	switch {
	case err == nil:
	case errors.Is(err, ErrUndeliverable):
		// retrying will not help; do not try again on the next check
	default:
		return false, err
	}

	if markErr := s.claims.MarkReminderSent(ctx, claim.ID); markErr != nil {
		s.logger.Error("Failed to mark reminder as sent",
			"claim_id", claim.ID,
			"error", markErr,
		)
	}
	if err != nil {
		return false, nil
	}

	s.logger.Info("Reminder sent",
		"claim_id", claim.ID,
		"user_id", claim.ClaimedBy,
	)
	return true, nil
}
