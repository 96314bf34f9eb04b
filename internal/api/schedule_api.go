package api

import (
	"net/http"
	"time"

	"saunafreunde/internal/aufguss"
	"saunafreunde/internal/calendar"
	"saunafreunde/internal/models"
)

// claimRequest is the body of POST /api/v1/claims.
type claimRequest struct {
	AufgussType string    `json:"aufguss_type" validate:"required,aufguss_category"`
	SaunaName   string    `json:"sauna_name" validate:"required"`
	StartTime   time.Time `json:"start_time" validate:"required"`
}

type claimsResponse struct {
	Claims []models.AufgussClaim `json:"claims"`
}

// handleSchedule returns the merged week plan.
// GET /api/v1/schedule?date=YYYY-MM-DD
func (s *HTTPServer) handleSchedule(w http.ResponseWriter, r *http.Request) {
	date := s.now()
	if raw := r.URL.Query().Get("date"); raw != "" {
		d, err := time.ParseInLocation("2006-01-02", raw, s.opts.Location)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
			return
		}
		date = d
	}

	plan, err := s.svc.Aufguss.Week(r.Context(), date)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

// GET /api/v1/categories
func (s *HTTPServer) handleCategories(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"categories": s.svc.Aufguss.Categories()})
}

// POST /api/v1/claims
func (s *HTTPServer) handleClaim(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeValidation(w, err)
		return
	}

	claim, err := s.svc.Aufguss.Claim(r.Context(), aufguss.ClaimRequest{
		UserID:      currentUser(r),
		SaunaName:   req.SaunaName,
		StartTime:   req.StartTime,
		AufgussType: req.AufgussType,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, claim)
}

// DELETE /api/v1/claims/{id}
func (s *HTTPServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid claim id")
		return
	}
	res, err := s.svc.Aufguss.Cancel(r.Context(), aufguss.CancelRequest{ClaimID: id, UserID: currentUser(r)})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// POST /api/v1/claims/{id}/share
func (s *HTTPServer) handleShare(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid claim id")
		return
	}
	post, err := s.svc.Aufguss.Share(r.Context(), aufguss.ShareRequest{ClaimID: id, UserID: currentUser(r)})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, post)
}

// GET /api/v1/me/claims
func (s *HTTPServer) handleMyClaims(w http.ResponseWriter, r *http.Request) {
	claims, err := s.svc.Aufguss.MyClaims(r.Context(), currentUser(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if claims == nil {
		claims = []models.AufgussClaim{}
	}
	writeJSON(w, http.StatusOK, claimsResponse{Claims: claims})
}

// handleMyCalendar serves the caller's claims of the last 30 days and the future as iCalendar.
// GET /api/v1/me/aufguss.ics
func (s *HTTPServer) handleMyCalendar(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	claims, err := s.svc.Aufguss.ClaimsFrom(r.Context(), currentUser(r), now.AddDate(0, 0, -30))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeCalendar(w, "aufguss.ics", calendar.Claims(currentUser(r), claims, now))
}

func writeCalendar(w http.ResponseWriter, filename, body string) {
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}
