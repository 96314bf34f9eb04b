package api

import (
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"saunafreunde/internal/feed"
	"saunafreunde/internal/models"
)

const defaultFeedLimit = 50

// postRequest is the JSON body of POST /api/v1/posts. Image posts are sent as multipart form.
type postRequest struct {
	Type        string   `json:"type" validate:"required,oneof=text poll embed"`
	Content     string   `json:"content" validate:"max=5000"`
	PollOptions []string `json:"poll_options" validate:"max=10,dive,max=200"`
	EmbedURL    string   `json:"embed_url"`
}

type voteRequest struct {
	Option string `json:"option" validate:"required"`
}

type commentRequest struct {
	Content string `json:"content" validate:"required,max=2000"`
}

// GET /api/v1/posts?limit=
func (s *HTTPServer) handlePosts(w http.ResponseWriter, r *http.Request) {
	limit := defaultFeedLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 200 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 200")
			return
		}
		limit = n
	}
	posts, err := s.svc.Feed.List(r.Context(), limit)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if posts == nil {
		posts = []models.Post{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"posts": posts})
}

// POST /api/v1/posts
func (s *HTTPServer) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	var in feed.PostInput

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes+(1<<20))
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds size limit")
				return
			}
			writeError(w, http.StatusBadRequest, "invalid multipart body")
			return
		}
		file, header, err := r.FormFile("image")
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid image: required", Field: "image"})
			return
		}
		defer file.Close()

		in = feed.PostInput{
			Type:     models.PostImage,
			Content:  r.FormValue("content"),
			Image:    file,
			ImageExt: filepath.Ext(header.Filename),
		}
	} else {
		var req postRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if err := s.validate.Struct(req); err != nil {
			writeValidation(w, err)
			return
		}
		in = feed.PostInput{
			Type:        models.PostType(req.Type),
			Content:     req.Content,
			PollOptions: req.PollOptions,
			EmbedURL:    req.EmbedURL,
		}
	}

	post, err := s.svc.Feed.Create(r.Context(), currentUser(r), in)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, post)
}

// DELETE /api/v1/posts/{id}
func (s *HTTPServer) handleDeletePost(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid post id")
		return
	}
	if err := s.svc.Feed.Delete(r.Context(), currentUser(r), id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/v1/posts/{id}/like
func (s *HTTPServer) handleLike(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid post id")
		return
	}
	post, liked, err := s.svc.Feed.ToggleLike(r.Context(), currentUser(r), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"post": post, "liked": liked})
}

// POST /api/v1/posts/{id}/votes
func (s *HTTPServer) handleVote(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid post id")
		return
	}
	var req voteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeValidation(w, err)
		return
	}
	post, err := s.svc.Feed.Vote(r.Context(), currentUser(r), id, req.Option)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

// POST /api/v1/posts/{id}/comments
func (s *HTTPServer) handleComment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid post id")
		return
	}
	var req commentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeValidation(w, err)
		return
	}
	comment, err := s.svc.Feed.Comment(r.Context(), currentUser(r), id, req.Content)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, comment)
}
