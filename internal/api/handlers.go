package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"skyfeed/internal/logging"
	"skyfeed/internal/model"
	"skyfeed/internal/pagination"
	"skyfeed/internal/timeline"
)

type feedRequest struct {
	UserID string `validate:"required,max=128"`
	Cursor string `validate:"max=1024"`
	Limit  int    `validate:"gte=0"`
}

type trendingRequest struct {
	Category string `validate:"omitempty,max=32"`
	Limit    int    `validate:"gte=0"`
}

// viewer is the authenticated user id forwarded by the gateway, or the
// user_id query parameter.
func viewer(r *http.Request) string {
	if id := r.Header.Get("X-User-ID"); id != "" {
		return id
	}
	return r.URL.Query().Get("user_id")
}

func parseLimit(r *http.Request) (int, bool) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	return n, err == nil
}

func (h *Handler) checkLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	limit, ok := parseLimit(r)
	if !ok {
		respondError(w, r, http.StatusBadRequest, "VALIDATION_FAILED", "limit must be an integer")
		return 0, false
	}
	if h.maxLimit > 0 && limit > h.maxLimit {
		respondError(w, r, http.StatusBadRequest, "VALIDATION_FAILED", "limit must be at most "+strconv.Itoa(h.maxLimit))
		return 0, false
	}
	return limit, true
}

func (h *Handler) parseFeedRequest(w http.ResponseWriter, r *http.Request) (feedRequest, bool) {
	limit, ok := h.checkLimit(w, r)
	if !ok {
		return feedRequest{}, false
	}
	req := feedRequest{UserID: viewer(r), Cursor: r.URL.Query().Get("cursor"), Limit: limit}
	if err := h.validate.Struct(req); err != nil {
		respondError(w, r, http.StatusBadRequest, "VALIDATION_FAILED", err.Error())
		return req, false
	}
	return req, true
}

func (h *Handler) handleForYou(w http.ResponseWriter, r *http.Request) {
	req, ok := h.parseFeedRequest(w, r)
	if !ok {
		return
	}
	r = r.WithContext(logging.ContextWithUserID(r.Context(), req.UserID))
	page, err := h.feeds.ForYou(r.Context(), req.UserID, req.Cursor, req.Limit)
	h.respondPage(w, r, page, err)
}

func (h *Handler) handleFollowing(w http.ResponseWriter, r *http.Request) {
	req, ok := h.parseFeedRequest(w, r)
	if !ok {
		return
	}
	r = r.WithContext(logging.ContextWithUserID(r.Context(), req.UserID))
	page, err := h.feeds.Following(r.Context(), req.UserID, req.Cursor, req.Limit)
	h.respondPage(w, r, page, err)
}

func (h *Handler) handleTrending(w http.ResponseWriter, r *http.Request) {
	limit, ok := h.checkLimit(w, r)
	if !ok {
		return
	}
	req := trendingRequest{Category: r.URL.Query().Get("category"), Limit: limit}
	if err := h.validate.Struct(req); err != nil {
		respondError(w, r, http.StatusBadRequest, "VALIDATION_FAILED", err.Error())
		return
	}
	page, err := h.feeds.Trending(r.Context(), model.Category(req.Category), req.Limit)
	h.respondPage(w, r, page, err)
}

type pageResponse struct {
	Data       []timeline.Item `json:"data"`
	NextCursor *string         `json:"next_cursor"`
	HasMore    bool            `json:"has_more"`
}

func (h *Handler) respondPage(w http.ResponseWriter, r *http.Request, page timeline.Page, err error) {
	switch {
	case err == nil:
	case errors.Is(err, pagination.ErrInvalidCursor):
		respondError(w, r, http.StatusBadRequest, "INVALID_CURSOR", err.Error())
		return
	case errors.Is(err, model.ErrUnknownCategory):
		respondError(w, r, http.StatusBadRequest, "VALIDATION_FAILED", err.Error())
		return
	case errors.Is(err, context.DeadlineExceeded):
		logging.Ctx(r.Context()).Error().Err(err).Msg("feed timed out")
		respondError(w, r, http.StatusServiceUnavailable, "TIMEOUT", "request timed out")
		return
	default:
		logging.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("feed failed")
		respondError(w, r, http.StatusInternalServerError, "INTERNAL", "internal error")
		return
	}
	resp := pageResponse{Data: page.Items, HasMore: page.HasMore}
	if resp.Data == nil {
		resp.Data = []timeline.Item{}
	}
	if page.NextCursor != "" {
		resp.NextCursor = &page.NextCursor
	}
	respondJSON(w, r, http.StatusOK, resp)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.health.Ping(ctx); err != nil {
			logging.Ctx(r.Context()).Warn().Err(err).Msg("health check failed")
			respondJSON(w, r, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	respondJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}
