package api

import (
	"net/http"
	"time"

	"saunafreunde/internal/calendar"
	"saunafreunde/internal/club"
	"saunafreunde/internal/models"
)

// profileRequest is the body of POST /api/v1/profiles and PUT /api/v1/profiles/me.
type profileRequest struct {
	Username         string   `json:"username" validate:"required,max=40"`
	Name             string   `json:"name" validate:"required,max=100"`
	Email            string   `json:"email" validate:"required,email"`
	PrimarySauna     string   `json:"primary_sauna" validate:"required"`
	AvatarURL        string   `json:"avatar_url" validate:"omitempty,url"`
	Nickname         string   `json:"nickname" validate:"max=40"`
	Phone            string   `json:"phone" validate:"max=40"`
	Motto            string   `json:"motto" validate:"max=200"`
	Qualifications   []string `json:"qualifications" validate:"max=20,dive,max=80"`
	Awards           []string `json:"awards" validate:"max=20,dive,max=80"`
	ShowInMemberList *bool    `json:"show_in_member_list"`
	TelegramChatID   int64    `json:"telegram_chat_id"`
}

func (p profileRequest) input() club.ProfileInput {
	return club.ProfileInput{
		Username:         p.Username,
		Name:             p.Name,
		Email:            p.Email,
		PrimarySauna:     p.PrimarySauna,
		AvatarURL:        p.AvatarURL,
		Nickname:         p.Nickname,
		Phone:            p.Phone,
		Motto:            p.Motto,
		Qualifications:   p.Qualifications,
		Awards:           p.Awards,
		ShowInMemberList: p.ShowInMemberList,
		TelegramChatID:   p.TelegramChatID,
	}
}

// festivalRequest is the body of POST /api/v1/festivals.
type festivalRequest struct {
	Name        string    `json:"name" validate:"required,max=120"`
	Description string    `json:"description" validate:"max=2000"`
	StartDate   time.Time `json:"start_date" validate:"required"`
	EndDate     time.Time `json:"end_date" validate:"required"`
	Location    string    `json:"location" validate:"max=200"`
}

type permissionsRequest struct {
	IsAdmin     bool     `json:"is_admin"`
	Permissions []string `json:"permissions"`
}

func (s *HTTPServer) decodeProfile(w http.ResponseWriter, r *http.Request) (profileRequest, bool) {
	var req profileRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return req, false
	}
	if err := s.validate.Struct(req); err != nil {
		writeValidation(w, err)
		return req, false
	}
	return req, true
}

// POST /api/v1/profiles
func (s *HTTPServer) handleCreateProfile(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeProfile(w, r)
	if !ok {
		return
	}
	profile, err := s.svc.Club.CreateProfile(r.Context(), currentUser(r), req.input())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, profile)
}

// GET /api/v1/profiles/me
func (s *HTTPServer) handleMyProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := s.svc.Club.Profile(r.Context(), currentUser(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// PUT /api/v1/profiles/me
func (s *HTTPServer) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeProfile(w, r)
	if !ok {
		return
	}
	profile, err := s.svc.Club.UpdateProfile(r.Context(), currentUser(r), req.input())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// GET /api/v1/profiles/{id}
func (s *HTTPServer) handleProfile(w http.ResponseWriter, r *http.Request) {
	if _, err := s.svc.Access.Member(r.Context(), currentUser(r)); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	profile, err := s.svc.Club.Profile(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	profile.Email = ""
	profile.Phone = ""
	profile.TelegramChatID = 0
	writeJSON(w, http.StatusOK, profile)
}

// GET /api/v1/members
func (s *HTTPServer) handleMembers(w http.ResponseWriter, r *http.Request) {
	if _, err := s.svc.Access.Member(r.Context(), currentUser(r)); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	members, err := s.svc.Club.Members(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"members": members})
}

// GET /api/v1/festivals?upcoming=true
func (s *HTTPServer) handleFestivals(w http.ResponseWriter, r *http.Request) {
	list := s.svc.Club.Festivals
	if r.URL.Query().Get("upcoming") == "true" {
		list = s.svc.Club.UpcomingFestivals
	}
	festivals, err := list(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if festivals == nil {
		festivals = []models.Festival{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"festivals": festivals})
}

// POST /api/v1/festivals
func (s *HTTPServer) handleCreateFestival(w http.ResponseWriter, r *http.Request) {
	var req festivalRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeValidation(w, err)
		return
	}
	festival, err := s.svc.Club.CreateFestival(r.Context(), currentUser(r), club.FestivalInput{
		Name:        req.Name,
		Description: req.Description,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
		Location:    req.Location,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, festival)
}

// DELETE /api/v1/festivals/{id}
func (s *HTTPServer) handleDeleteFestival(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid festival id")
		return
	}
	if err := s.svc.Club.DeleteFestival(r.Context(), currentUser(r), id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/v1/festivals.ics
func (s *HTTPServer) handleFestivalsCalendar(w http.ResponseWriter, r *http.Request) {
	festivals, err := s.svc.Club.Festivals(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeCalendar(w, "festivals.ics", calendar.Festivals(festivals, s.now()))
}

// PUT /api/v1/admin/profiles/{id}/permissions
func (s *HTTPServer) handlePermissions(w http.ResponseWriter, r *http.Request) {
	var req permissionsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	target := r.PathValue("id")
	if err := s.svc.Access.Grant(r.Context(), currentUser(r), target, req.IsAdmin, req.Permissions); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	profile, err := s.svc.Club.Profile(r.Context(), target)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}
