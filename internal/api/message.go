package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/teamforge/collab/pkg/membership"
	"github.com/teamforge/collab/pkg/message"
)

type MessageHandler struct {
	store message.Store
	gate  *membership.Gate
}

func NewMessageHandler(store message.Store, gate *membership.Gate) *MessageHandler {
	return &MessageHandler{store: store, gate: gate}
}

// GetProjectMessagesHandler returns the most recent messages of a project,
// oldest-first, under the same contract as the join replay.
func (h *MessageHandler) GetProjectMessagesHandler(w http.ResponseWriter, r *http.Request) error {
	projectID := r.PathValue("projectID")
	identity := identityFromRequest(r)

	if err := h.gate.Check(r.Context(), identity.UserID, projectID, membership.CapParticipate); err != nil {
		switch {
		case errors.Is(err, membership.ErrProjectNotFound):
			return NewApiError(err.Error(), http.StatusNotFound)
		case errors.Is(err, membership.ErrUnauthorized):
			return NewApiError(err.Error(), http.StatusUnauthorized)
		default:
			return err
		}
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	messages, err := h.store.ListRecent(r.Context(), projectID, limit)
	if err != nil {
		return err
	}
	if messages == nil {
		messages = []message.Message{}
	}

	return WriteJsonResponse(w, messages)
}

// MarkMessageReadHandler appends a read receipt for the calling user.
func (h *MessageHandler) MarkMessageReadHandler(w http.ResponseWriter, r *http.Request) error {
	messageID := r.PathValue("messageID")
	identity := identityFromRequest(r)

	if err := h.store.MarkRead(r.Context(), messageID, identity.UserID); err != nil {
		if errors.Is(err, message.ErrMessageNotFound) {
			return NewApiError(err.Error(), http.StatusNotFound)
		}
		return err
	}

	w.WriteHeader(http.StatusNoContent)
	return nil
}
