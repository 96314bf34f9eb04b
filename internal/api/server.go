// Package api exposes the club backend over HTTP/JSON.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"saunafreunde/internal/aufguss"
	"saunafreunde/internal/auth"
	"saunafreunde/internal/club"
	"saunafreunde/internal/feed"
	"saunafreunde/internal/metrics"
	"saunafreunde/shared/access"
	"saunafreunde/shared/audit"
)

// Services are the domain services behind the routes. Audit and Media may be nil.
type Services struct {
	Aufguss *aufguss.Service
	Club    *club.Service
	Feed    *feed.Service
	Access  *access.Service
	Audit   *audit.Service
	Media   http.Handler
}

// Options tune the HTTP server.
type Options struct {
	Address            string
	RequestTimeout     time.Duration
	MutationsPerMinute int
	MaxUploadBytes     int64
	Location           *time.Location
}

// HTTPServer serves the club API.
type HTTPServer struct {
	server   *http.Server
	svc      Services
	verifier *auth.Verifier
	limiter  *userLimiter
	validate *validator.Validate
	opts     Options
	logger   zerolog.Logger
	now      func() time.Time
}

func NewHTTPServer(svc Services, verifier *auth.Verifier, opts Options, logger *zerolog.Logger) *HTTPServer {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 5 * time.Second
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 10 << 20
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}

	s := &HTTPServer{
		svc:      svc,
		verifier: verifier,
		limiter:  newUserLimiter(opts.MutationsPerMinute),
		opts:     opts,
		logger:   logger.With().Str("component", "api").Logger(),
		now:      time.Now,
	}
	s.validate = newValidator(func(name string) bool {
		return s.svc.Aufguss.Settings().Categories.Contains(name)
	})
	s.server = &http.Server{
		Addr:              opts.Address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the routed handler with middleware applied.
func (s *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /api/v1/schedule", s.public("schedule", s.handleSchedule))
	mux.Handle("GET /api/v1/categories", s.public("categories", s.handleCategories))
	mux.Handle("POST /api/v1/claims", s.member("claim_create", s.handleClaim))
	mux.Handle("DELETE /api/v1/claims/{id}", s.member("claim_cancel", s.handleCancel))
	mux.Handle("POST /api/v1/claims/{id}/share", s.member("claim_share", s.handleShare))
	mux.Handle("GET /api/v1/me/claims", s.member("my_claims", s.handleMyClaims))
	mux.Handle("GET /api/v1/me/aufguss.ics", s.member("my_calendar", s.handleMyCalendar))

	mux.Handle("POST /api/v1/profiles", s.member("profile_create", s.handleCreateProfile))
	mux.Handle("GET /api/v1/profiles/me", s.member("profile_me", s.handleMyProfile))
	mux.Handle("PUT /api/v1/profiles/me", s.member("profile_update", s.handleUpdateProfile))
	mux.Handle("GET /api/v1/profiles/{id}", s.member("profile_get", s.handleProfile))
	mux.Handle("GET /api/v1/members", s.member("members", s.handleMembers))

	mux.Handle("GET /api/v1/posts", s.member("posts", s.handlePosts))
	mux.Handle("POST /api/v1/posts", s.member("post_create", s.handleCreatePost))
	mux.Handle("DELETE /api/v1/posts/{id}", s.member("post_delete", s.handleDeletePost))
	mux.Handle("POST /api/v1/posts/{id}/like", s.member("post_like", s.handleLike))
	mux.Handle("POST /api/v1/posts/{id}/votes", s.member("post_vote", s.handleVote))
	mux.Handle("POST /api/v1/posts/{id}/comments", s.member("post_comment", s.handleComment))

	mux.Handle("GET /api/v1/festivals", s.public("festivals", s.handleFestivals))
	mux.Handle("POST /api/v1/festivals", s.member("festival_create", s.handleCreateFestival))
	mux.Handle("DELETE /api/v1/festivals/{id}", s.member("festival_delete", s.handleDeleteFestival))
	mux.Handle("GET /api/v1/festivals.ics", s.public("festivals_calendar", s.handleFestivalsCalendar))

	mux.Handle("GET /api/v1/admin/export", s.member("admin_export", s.handleExport))
	mux.Handle("PUT /api/v1/admin/profiles/{id}/permissions", s.member("admin_permissions", s.handlePermissions))

	if s.svc.Media != nil {
		mux.Handle("GET /media/", http.StripPrefix("/media", s.svc.Media))
	}

	return s.withRequestID(s.recoverPanics(mux))
}

// Start blocks serving requests until Shutdown.
func (s *HTTPServer) Start() error {
	s.logger.Info().Str("address", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

type requestIDKey struct{}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func (s *HTTPServer) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func (s *HTTPServer) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error().
					Interface("panic", rec).
					Str("request_id", requestID(r.Context())).
					Str("path", r.URL.Path).
					Msg("Handler panicked")
				writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *HTTPServer) public(route string, h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		metrics.IncHTTP(route)
		ctx, cancel := context.WithTimeout(r.Context(), s.opts.RequestTimeout)
		defer cancel()
		h(w, r.WithContext(ctx))
	})
}

// member requires a valid session token and throttles mutations per member.
func (s *HTTPServer) member(route string, h http.HandlerFunc) http.Handler {
	return s.public(route, func(w http.ResponseWriter, r *http.Request) {
		token, err := auth.FromRequest(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		userID, err := s.verifier.Verify(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		if r.Method != http.MethodGet && !s.limiter.Allow(userID, s.now()) {
			writeError(w, http.StatusTooManyRequests, "too many requests")
			return
		}
		h(w, r.WithContext(auth.WithUser(r.Context(), userID)))
	})
}

func currentUser(r *http.Request) string {
	id, _ := auth.UserID(r.Context())
	return id
}
