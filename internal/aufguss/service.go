package aufguss

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"saunafreunde/internal/cache"
	"saunafreunde/internal/database"
	"saunafreunde/internal/events"
	"saunafreunde/internal/metrics"
	"saunafreunde/internal/models"
	"saunafreunde/internal/schedule"
)

// ClaimStore persists claims.
type ClaimStore interface {
	CreateClaim(ctx context.Context, c *models.AufgussClaim) error
	GetClaim(ctx context.Context, id int64) (*models.AufgussClaim, error)
	ClaimsBetween(ctx context.Context, from, to time.Time) ([]models.AufgussClaim, error)
	ClaimsByUser(ctx context.Context, userID string, from time.Time) ([]models.AufgussClaim, error)
	CancelClaim(ctx context.Context, id int64, userID string, now time.Time, window time.Duration) (*models.AufgussClaim, bool, error)
	ShareToFeed(ctx context.Context, po *models.Post, now time.Time, cooldown time.Duration) error
	TallyFinished(ctx context.Context, now time.Time) (int, error)
}

// Publisher delivers claim events.
type Publisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// Settings is the part of the sauna configuration the service works with.
// It is replaced as a whole when the configuration is reloaded.
type Settings struct {
	Table             schedule.Table
	Categories        *schedule.Categories
	Unmatched         schedule.UnmatchedPolicy
	ShortNoticeWindow time.Duration
	ShareCooldown     time.Duration
}

// ClaimRequest asks for one slot.
type ClaimRequest struct {
	UserID      string
	SaunaName   string
	StartTime   time.Time
	AufgussType string
}

// CancelRequest withdraws a claim.
type CancelRequest struct {
	ClaimID int64
	UserID  string
}

// CancelResult reports the withdrawn claim and whether it counted as short notice.
type CancelResult struct {
	Claim       *models.AufgussClaim `json:"claim"`
	ShortNotice bool                 `json:"short_notice"`
}

// Service plans Aufguss slots: it builds week plans and applies claims and cancellations.
type Service struct {
	store   ClaimStore
	cache   cache.WeekCache
	events  Publisher
	logger  zerolog.Logger
	timeout time.Duration
	now     func() time.Time

	mu       sync.RWMutex
	settings Settings
}

// NewService wires the service. cache and events may be nil.
func NewService(store ClaimStore, weekCache cache.WeekCache, bus Publisher, settings Settings, timeout time.Duration, logger *zerolog.Logger) *Service {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Service{
		store:    store,
		cache:    weekCache,
		events:   bus,
		logger:   logger.With().Str("component", "aufguss").Logger(),
		timeout:  timeout,
		now:      time.Now,
		settings: settings.withDefaults(),
	}
}

func (s Settings) withDefaults() Settings {
	if s.Categories == nil {
		s.Categories, _ = schedule.NewCategories(nil)
	}
	if s.Unmatched == "" {
		s.Unmatched = schedule.UnmatchedDrop
	}
	if s.ShortNoticeWindow <= 0 {
		s.ShortNoticeWindow = schedule.DefaultShortNoticeWindow
	}
	if s.ShareCooldown <= 0 {
		s.ShareCooldown = DefaultShareCooldown
	}
	return s
}

// Settings returns the active settings.
func (s *Service) Settings() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// UpdateSettings swaps the table and policies, e.g. after the sauna file changed.
func (s *Service) UpdateSettings(settings Settings) {
	settings = settings.withDefaults()
	s.mu.Lock()
	s.settings = settings
	s.mu.Unlock()
	s.logger.Info().Int("saunas", len(settings.Table.Resources)).Msg("Sauna settings updated")
}

// Categories returns the configured Aufguss categories.
func (s *Service) Categories() []schedule.Category {
	return s.Settings().Categories.List()
}

// Week returns the plan of the week containing date.
func (s *Service) Week(ctx context.Context, date time.Time) (schedule.WeekPlan, error) {
	settings := s.Settings()
	weekStart := schedule.WeekStart(date, settings.Table.Location)

	claims, err := s.weekClaims(ctx, weekStart)
	if err != nil {
		return schedule.WeekPlan{}, err
	}

	plan, err := schedule.BuildWeek(date, settings.Table, claims, settings.Unmatched)
	if err != nil {
		return schedule.WeekPlan{}, fmt.Errorf("build week: %w", err)
	}
	if n := len(plan.Unmatched); n > 0 {
		s.logger.Debug().Time("week_start", weekStart).Int("unmatched", n).Msg("Claims without canonical slot")
	}
	return plan, nil
}

func (s *Service) weekClaims(ctx context.Context, weekStart time.Time) ([]models.AufgussClaim, error) {
	cacheable := false
	var version int64
	if s.cache != nil {
		claims, ok, err := s.cache.GetWeek(ctx, weekStart)
		switch {
		case err != nil:
			s.logger.Warn().Err(err).Msg("Week cache read failed")
			metrics.IncWeekCache("error")
		case ok:
			metrics.IncWeekCache("hit")
			return claims, nil
		default:
			metrics.IncWeekCache("miss")
		}
		// read before the claims; an invalidation during the load then rejects the write below
		if version, err = s.cache.WeekVersion(ctx, weekStart); err == nil {
			cacheable = true
		} else {
			s.logger.Warn().Err(err).Msg("Week cache version read failed")
		}
	}

	sctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	claims, err := s.store.ClaimsBetween(sctx, weekStart, weekStart.AddDate(0, 0, 7))
	if err != nil {
		return nil, fmt.Errorf("load claims: %w", err)
	}

	if cacheable {
		err := s.cache.SetWeek(ctx, weekStart, version, claims)
		switch {
		case errors.Is(err, cache.ErrWeekChanged):
			s.logger.Debug().Time("week_start", weekStart).Msg("Week changed while loading, not cached")
		case err != nil:
			s.logger.Warn().Err(err).Msg("Week cache write failed")
		}
	}
	return claims, nil
}

// Claim takes a canonical slot for the user.
// A slot someone else holds returns database.ErrSlotTaken. Only the storage insert decides that.
func (s *Service) Claim(ctx context.Context, req ClaimRequest) (*models.AufgussClaim, error) {
	settings := s.Settings()

	if strings.TrimSpace(req.UserID) == "" {
		return nil, invalid("user_id", "required")
	}
	category, err := settings.Categories.Parse(req.AufgussType)
	if err != nil {
		return nil, invalid("aufguss_type", err.Error())
	}
	if _, ok := settings.Table.Resource(req.SaunaName); !ok {
		return nil, invalid("sauna_name", fmt.Sprintf("unknown sauna '%s'", req.SaunaName))
	}
	slot, ok := settings.Table.Lookup(req.SaunaName, req.StartTime)
	if !ok {
		return nil, invalid("start_time", "not a slot of the schedule")
	}
	now := s.now()
	if !slot.Start.After(now) {
		return nil, invalid("start_time", "slot is in the past")
	}
	weekStart := schedule.WeekStart(slot.Start, settings.Table.Location)

	claim := &models.AufgussClaim{
		SaunaName:   slot.Resource,
		StartTime:   slot.Start,
		EndTime:     slot.End,
		ClaimedBy:   req.UserID,
		AufgussType: string(category),
		CreatedAt:   now,
	}

	sctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.store.CreateClaim(sctx, claim); err != nil {
		switch {
		case errors.Is(err, database.ErrSlotTaken):
			metrics.IncClaimCreated("taken")
			return nil, err
		case errors.Is(err, database.ErrProfileNotFound):
			metrics.IncClaimCreated("invalid")
			return nil, invalid("user_id", "profile setup required")
		}
		metrics.IncClaimCreated("error")
		return nil, fmt.Errorf("create claim: %w", err)
	}
	metrics.IncClaimCreated("ok")

	if stored, err := s.store.GetClaim(sctx, claim.ID); err == nil {
		claim = stored
	} else {
		s.logger.Warn().Err(err).Int64("claim_id", claim.ID).Msg("Reload claim failed")
	}

	s.changed(ctx, events.ClaimCreated, events.ClaimPayload{Claim: *claim, WeekStart: weekStart})

	s.logger.Info().
		Int64("claim_id", claim.ID).
		Str("user_id", claim.ClaimedBy).
		Str("sauna", claim.SaunaName).
		Time("start", claim.StartTime).
		Msg("Aufguss claimed")
	return claim, nil
}

// Cancel withdraws the caller's claim. Only the claimant may cancel, and only before the start.
func (s *Service) Cancel(ctx context.Context, req CancelRequest) (*CancelResult, error) {
	settings := s.Settings()
	if strings.TrimSpace(req.UserID) == "" {
		return nil, invalid("user_id", "required")
	}

	sctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	claim, shortNotice, err := s.store.CancelClaim(sctx, req.ClaimID, req.UserID, s.now(), settings.ShortNoticeWindow)
	if err != nil {
		if errors.Is(err, database.ErrClaimStarted) {
			return nil, invalid("claim_id", "claim has already started")
		}
		return nil, err
	}
	metrics.IncClaimCancelled(shortNotice)

	weekStart := schedule.WeekStart(claim.StartTime, settings.Table.Location)
	s.changed(ctx, events.ClaimCancelled, events.ClaimPayload{Claim: *claim, WeekStart: weekStart, ShortNotice: shortNotice})

	s.logger.Info().
		Int64("claim_id", claim.ID).
		Str("user_id", req.UserID).
		Bool("short_notice", shortNotice).
		Msg("Aufguss cancelled")
	return &CancelResult{Claim: claim, ShortNotice: shortNotice}, nil
}

// MyClaims lists the user's claims that have not started yet.
func (s *Service) MyClaims(ctx context.Context, userID string) ([]models.AufgussClaim, error) {
	return s.ClaimsFrom(ctx, userID, s.now())
}

// ClaimsFrom lists the user's claims starting at or after from.
func (s *Service) ClaimsFrom(ctx context.Context, userID string, from time.Time) ([]models.AufgussClaim, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, invalid("user_id", "required")
	}
	sctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.store.ClaimsByUser(sctx, userID, from)
}

// changed drops the cached week and publishes the event. Failures are logged only:
// the claim change itself is already committed.
func (s *Service) changed(ctx context.Context, eventType string, payload events.ClaimPayload) {
	if s.cache != nil {
		if err := s.cache.InvalidateWeek(ctx, payload.WeekStart); err != nil {
			s.logger.Warn().Err(err).Time("week_start", payload.WeekStart).Msg("Week cache invalidation failed")
		}
	}
	if s.events != nil {
		if err := s.events.PublishJSON(eventType, payload); err != nil {
			s.logger.Error().Err(err).Str("event", eventType).Msg("Event handler failed")
		}
	}
}

// HasSauna reports whether name is a configured sauna.
func (s *Service) HasSauna(name string) bool {
	_, ok := s.Settings().Table.Resource(name)
	return ok
}
