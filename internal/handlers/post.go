package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kedevs/blogapi/internal/auth"
	"github.com/kedevs/blogapi/internal/metrics"
	"github.com/kedevs/blogapi/internal/services"
	"github.com/kedevs/blogapi/internal/store"
)

// PostHandler provides HTTP handlers for blog posts.
type PostHandler struct {
	postService *services.PostService
	metrics     *metrics.Metrics
}

// NewPostHandler constructs a handler with the provided service.
func NewPostHandler(postService *services.PostService, m *metrics.Metrics) *PostHandler {
	return &PostHandler{postService: postService, metrics: m}
}

// PostRouter registers post routes on the given router. Reads are public but
// a bearer token, when sent, must still be valid.
func PostRouter(r chi.Router, handler *PostHandler, tokens *auth.TokenIssuer) {
	r.Use(Authenticate(tokens))

	r.Get("/", handler.ListPosts)
	r.Post("/", handler.CreatePost)
	r.Route("/{postID}", func(r chi.Router) {
		r.Get("/", handler.GetPost)
		r.Put("/", handler.ReplacePost)
		r.Patch("/", handler.PatchPost)
		r.Delete("/", handler.DeletePost)
	})
}

func (h *PostHandler) ListPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := h.postService.List(r.Context(), principalFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, r, err, "failed to list posts")
		return
	}
	writeJSON(w, http.StatusOK, posts)
}

func (h *PostHandler) GetPost(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "postID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid post id")
		return
	}

	post, err := h.postService.Get(r.Context(), principalFromContext(r.Context()), id)
	if err != nil {
		writeServiceError(w, r, err, "failed to fetch post")
		return
	}
	writeJSON(w, http.StatusOK, post)
}

func (h *PostHandler) CreatePost(w http.ResponseWriter, r *http.Request) {
	principal := principalFromContext(r.Context())
	if !principal.IsAuthenticated() {
		writeServiceError(w, r, auth.ErrUnauthenticated, "")
		return
	}

	var req PostRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	post, err := h.postService.Create(r.Context(), principal, services.PostInput{
		Title:   deref(req.Title),
		Content: deref(req.Content),
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			writeError(w, http.StatusConflict, "author already has a post with this title")
			return
		}
		writeServiceError(w, r, err, "failed to create post")
		return
	}

	h.metrics.ObservePostMutation(string(auth.ActionCreate))
	writeJSON(w, http.StatusCreated, post)
}

// ReplacePost requires both title and content.
func (h *PostHandler) ReplacePost(w http.ResponseWriter, r *http.Request) {
	h.updatePost(w, r, true)
}

// PatchPost changes only the fields present in the body.
func (h *PostHandler) PatchPost(w http.ResponseWriter, r *http.Request) {
	h.updatePost(w, r, false)
}

func (h *PostHandler) updatePost(w http.ResponseWriter, r *http.Request, replace bool) {
	principal := principalFromContext(r.Context())
	if !principal.IsAuthenticated() {
		writeServiceError(w, r, auth.ErrUnauthenticated, "")
		return
	}

	id, err := parseIDParam(r, "postID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid post id")
		return
	}

	var req PostRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if replace && (req.Title == nil || req.Content == nil) {
		writeError(w, http.StatusBadRequest, "title and content are required")
		return
	}

	post, err := h.postService.Update(r.Context(), principal, id, services.PostPatch{
		Title:   req.Title,
		Content: req.Content,
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			writeError(w, http.StatusConflict, "author already has a post with this title")
			return
		}
		writeServiceError(w, r, err, "failed to update post")
		return
	}

	h.metrics.ObservePostMutation(string(auth.ActionUpdate))
	writeJSON(w, http.StatusOK, post)
}

func (h *PostHandler) DeletePost(w http.ResponseWriter, r *http.Request) {
	principal := principalFromContext(r.Context())
	if !principal.IsAuthenticated() {
		writeServiceError(w, r, auth.ErrUnauthenticated, "")
		return
	}

	id, err := parseIDParam(r, "postID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid post id")
		return
	}

	if err := h.postService.Delete(r.Context(), principal, id); err != nil {
		writeServiceError(w, r, err, "failed to delete post")
		return
	}

	h.metrics.ObservePostMutation(string(auth.ActionDelete))
	w.WriteHeader(http.StatusNoContent)
}

// PostRequest is the allow-listed post payload. Author fields sent by the
// client are ignored.
type PostRequest struct {
	Title   *string `json:"title"`
	Content *string `json:"content"`
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
