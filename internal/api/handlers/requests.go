package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/requestdesk/internal/api/errors"
	"github.com/bigkaa/requestdesk/internal/api/middleware"
	"github.com/bigkaa/requestdesk/internal/domain/model"
	"github.com/bigkaa/requestdesk/internal/service"
)

type createRequestBody struct {
	Title       string                  `json:"title"`
	Content     string                  `json:"content"`
	Attachments []model.AttachmentInput `json:"attachments"`
}

type submitReplyBody struct {
	Content string `json:"content"`
}

// ListRequests — GET /api/requests. admin получает все заявки, остальные — свои.
func (h *APIHandler) ListRequests(w http.ResponseWriter, r *http.Request) {
	list, err := h.requests.List(r.Context(), middleware.UserIDFromContext(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if list == nil {
		list = []*model.RequestWithDetails{}
	}
	writeJSON(w, http.StatusOK, list)
}

// CreateRequest — POST /api/requests.
func (h *APIHandler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	var body createRequestBody
	if err := decodeJSON(r, &body); err != nil {
		apierrors.ValidationError(w, "Некорректное тело запроса")
		return
	}

	req, err := h.requests.Create(r.Context(), middleware.UserIDFromContext(r.Context()), service.CreateRequestInput{
		Title:       body.Title,
		Content:     body.Content,
		Attachments: body.Attachments,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

// GetRequest — GET /api/requests/{id}.
func (h *APIHandler) GetRequest(w http.ResponseWriter, r *http.Request) {
	id, err := requestIDParam(chi.URLParam(r, "id"))
	if err != nil {
		apierrors.ValidationError(w, "Некорректный id заявки")
		return
	}

	req, err := h.requests.Get(r.Context(), middleware.UserIDFromContext(r.Context()), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// SubmitReply — POST /api/requests/{id}/reply.
func (h *APIHandler) SubmitReply(w http.ResponseWriter, r *http.Request) {
	id, err := requestIDParam(chi.URLParam(r, "id"))
	if err != nil {
		apierrors.ValidationError(w, "Некорректный id заявки")
		return
	}

	var body submitReplyBody
	if err := decodeJSON(r, &body); err != nil {
		apierrors.ValidationError(w, "Некорректное тело запроса")
		return
	}

	reply, err := h.replies.Submit(r.Context(), middleware.UserIDFromContext(r.Context()), id, body.Content)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, reply)
}
