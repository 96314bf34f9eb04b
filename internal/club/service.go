// Package club manages member profiles, the member list and festivals.
package club

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"saunafreunde/internal/models"
)

// emailRule is the same check the HTTP layer applies with the `email` tag.
var emailRule = validator.New()

// ProfileStore persists member profiles.
type ProfileStore interface {
	CreateProfile(ctx context.Context, p *models.Profile) error
	GetProfile(ctx context.Context, id string) (*models.Profile, error)
	UpdateProfile(ctx context.Context, p *models.Profile, now time.Time) error
	ListMembers(ctx context.Context) ([]models.Profile, error)
}

// FestivalStore persists festivals.
type FestivalStore interface {
	CreateFestival(ctx context.Context, f *models.Festival) error
	GetFestival(ctx context.Context, id int64) (*models.Festival, error)
	ListFestivals(ctx context.Context) ([]models.Festival, error)
	DeleteFestival(ctx context.Context, id int64) error
}

// Access checks the caller's permissions.
type Access interface {
	RequirePermission(ctx context.Context, userID, perm string) (*models.Profile, error)
}

// ProfileInput carries the editable profile fields.
type ProfileInput struct {
	Username         string
	Name             string
	Email            string
	PrimarySauna     string
	AvatarURL        string
	Nickname         string
	Phone            string
	Motto            string
	Qualifications   []string
	Awards           []string
	ShowInMemberList *bool
	TelegramChatID   int64
}

// FestivalInput describes a new festival.
type FestivalInput struct {
	Name        string
	Description string
	StartDate   time.Time
	EndDate     time.Time
	Location    string
}

// Service implements profile and festival operations.
type Service struct {
	profiles   ProfileStore
	festivals  FestivalStore
	access     Access
	knownSauna func(string) bool
	timeout    time.Duration
	logger     zerolog.Logger
	now        func() time.Time
}

// NewService creates the club service. knownSauna may be nil to accept any primary sauna.
func NewService(profiles ProfileStore, festivals FestivalStore, access Access, knownSauna func(string) bool, timeout time.Duration, logger *zerolog.Logger) *Service {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Service{
		profiles:   profiles,
		festivals:  festivals,
		access:     access,
		knownSauna: knownSauna,
		timeout:    timeout,
		logger:     logger.With().Str("component", "club").Logger(),
		now:        time.Now,
	}
}

func (s *Service) validateProfile(in *ProfileInput) error {
	in.Username = strings.TrimSpace(in.Username)
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	in.PrimarySauna = strings.TrimSpace(in.PrimarySauna)

	switch {
	case in.Username == "":
		return models.Invalid("username", "required")
	case strings.ContainsAny(in.Username, " \t@/"):
		return models.Invalid("username", "must not contain spaces, '@' or '/'")
	case in.Name == "":
		return models.Invalid("name", "required")
	case in.Email == "":
		return models.Invalid("email", "required")
	case in.PrimarySauna == "":
		return models.Invalid("primary_sauna", "required")
	}
	if err := emailRule.Var(in.Email, "email"); err != nil {
		return models.Invalid("email", "not an e-mail address")
	}
	if s.knownSauna != nil && !s.knownSauna(in.PrimarySauna) {
		return models.Invalid("primary_sauna", fmt.Sprintf("unknown sauna '%s'", in.PrimarySauna))
	}
	return nil
}

func (in ProfileInput) apply(p *models.Profile) {
	p.Username = in.Username
	p.Name = in.Name
	p.Email = in.Email
	p.PrimarySauna = in.PrimarySauna
	p.AvatarURL = in.AvatarURL
	p.Nickname = in.Nickname
	p.Phone = in.Phone
	p.Motto = in.Motto
	p.Qualifications = in.Qualifications
	p.Awards = in.Awards
	p.TelegramChatID = in.TelegramChatID
	if in.ShowInMemberList != nil {
		p.ShowInMemberList = *in.ShowInMemberList
	}
}

// CreateProfile sets up the profile of a newly registered user.
func (s *Service) CreateProfile(ctx context.Context, userID string, in ProfileInput) (*models.Profile, error) {
	if userID == "" {
		return nil, models.Invalid("user_id", "required")
	}
	if err := s.validateProfile(&in); err != nil {
		return nil, err
	}

	p := &models.Profile{ID: userID, ShowInMemberList: true, CreatedAt: s.now()}
	in.apply(p)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.profiles.CreateProfile(ctx, p); err != nil {
		return nil, err
	}
	s.logger.Info().Str("user_id", userID).Str("username", p.Username).Msg("Profile created")
	return s.profiles.GetProfile(ctx, userID)
}

// Profile returns a member profile.
func (s *Service) Profile(ctx context.Context, id string) (*models.Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.profiles.GetProfile(ctx, id)
}

// UpdateProfile changes the caller's own profile.
func (s *Service) UpdateProfile(ctx context.Context, userID string, in ProfileInput) (*models.Profile, error) {
	if err := s.validateProfile(&in); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	p, err := s.profiles.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	in.apply(p)
	if err := s.profiles.UpdateProfile(ctx, p, s.now()); err != nil {
		return nil, err
	}
	return p, nil
}

// Members returns the public member list.
func (s *Service) Members(ctx context.Context) ([]models.ProfileFragment, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	profiles, err := s.profiles.ListMembers(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.ProfileFragment, 0, len(profiles))
	for i := range profiles {
		out = append(out, *profiles[i].Fragment())
	}
	return out, nil
}

// Festivals lists all festivals by start date.
func (s *Service) Festivals(ctx context.Context) ([]models.Festival, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.festivals.ListFestivals(ctx)
}

// UpcomingFestivals lists festivals that have not ended yet.
func (s *Service) UpcomingFestivals(ctx context.Context) ([]models.Festival, error) {
	all, err := s.Festivals(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	upcoming := make([]models.Festival, 0, len(all))
	for i := range all {
		if all[i].IsUpcoming(now) {
			upcoming = append(upcoming, all[i])
		}
	}
	return upcoming, nil
}

// CreateFestival adds a festival. Admins and festival managers only.
func (s *Service) CreateFestival(ctx context.Context, actorID string, in FestivalInput) (*models.Festival, error) {
	if _, err := s.access.RequirePermission(ctx, actorID, models.PermissionManageFestivals); err != nil {
		return nil, err
	}
	in.Name = strings.TrimSpace(in.Name)
	switch {
	case in.Name == "":
		return nil, models.Invalid("name", "required")
	case in.StartDate.IsZero():
		return nil, models.Invalid("start_date", "required")
	case in.EndDate.IsZero():
		return nil, models.Invalid("end_date", "required")
	case in.EndDate.Before(in.StartDate):
		return nil, models.Invalid("end_date", "before start_date")
	}

	f := &models.Festival{
		Name:        in.Name,
		Description: in.Description,
		StartDate:   in.StartDate,
		EndDate:     in.EndDate,
		Location:    in.Location,
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.festivals.CreateFestival(ctx, f); err != nil {
		return nil, err
	}
	s.logger.Info().Int64("festival_id", f.ID).Str("by", actorID).Msg("Festival created")
	return f, nil
}

// DeleteFestival removes a festival. Admins and festival managers only.
func (s *Service) DeleteFestival(ctx context.Context, actorID string, id int64) error {
	if _, err := s.access.RequirePermission(ctx, actorID, models.PermissionManageFestivals); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.festivals.DeleteFestival(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Int64("festival_id", id).Str("by", actorID).Msg("Festival deleted")
	return nil
}
