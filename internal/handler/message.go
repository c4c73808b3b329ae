package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/socialhub/internal/apperror"
	"github.com/sakif/socialhub/internal/auth"
	"github.com/sakif/socialhub/internal/model"
	"github.com/sakif/socialhub/internal/service"
)

// MessageHandler serves conversations and direct messages.
//
// Only participants may read or write a conversation. The store does not
// check this; the handler does, before every call.
type MessageHandler struct {
	messages *service.MessageService
	logger   *slog.Logger
}

// NewMessageHandler creates a MessageHandler.
func NewMessageHandler(messages *service.MessageService, logger *slog.Logger) *MessageHandler {
	return &MessageHandler{messages: messages, logger: logger}
}

// HandleListConversations returns the caller's conversations, most recent
// first. Live updates are on /ws/conversations.
//
// HTTP: GET /api/conversations
func (h *MessageHandler) HandleListConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := snapshot(r.Context(), h.messages.StreamUserConversations)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, convs)
}

// HandleOpenConversation finds or starts the caller's conversation with the
// user registered under email.
//
// HTTP: POST /api/conversations
// REQUEST BODY: {"email": "b@x.com"}
func (h *MessageHandler) HandleOpenConversation(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, err)
		return
	}
	id, err := h.messages.ResolveOrCreateConversation(r.Context(), body.Email)
	if err != nil {
		writeError(w, err)
		return
	}
	conv, err := h.messages.GetConversation(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// HandleListMessages returns the messages of a conversation, oldest first.
//
// HTTP: GET /api/conversations/{id}/messages
func (h *MessageHandler) HandleListMessages(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.participantOnly(w, r)
	if !ok {
		return
	}
	msgs, err := snapshot(r.Context(), func(ctx context.Context) (<-chan []model.Message, error) {
		return h.messages.StreamMessages(ctx, conv.ID)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

// HandleSendMessage posts a message to a conversation.
//
// HTTP: POST /api/conversations/{id}/messages
// REQUEST BODY: {"content": "hi"}
func (h *MessageHandler) HandleSendMessage(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.participantOnly(w, r)
	if !ok {
		return
	}
	var body struct {
		Content string `json:"content"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, err)
		return
	}
	msg, err := h.messages.SendMessage(r.Context(), conv.ID, body.Content)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// HandleMarkRead clears the caller's unread counter.
//
// HTTP: POST /api/conversations/{id}/read
func (h *MessageHandler) HandleMarkRead(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.participantOnly(w, r)
	if !ok {
		return
	}
	if err := h.messages.MarkAsRead(r.Context(), conv.ID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// participantOnly loads {id} and writes 401/403/404 unless the caller takes
// part in it.
func (h *MessageHandler) participantOnly(w http.ResponseWriter, r *http.Request) (*model.Conversation, bool) {
	conv, err := loadConversationFor(r.Context(), h.messages, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return conv, true
}

func loadConversationFor(ctx context.Context, messages *service.MessageService, id string) (*model.Conversation, error) {
	me, ok := auth.IdentityFromContext(ctx)
	if !ok {
		return nil, apperror.Unauthenticated()
	}
	conv, err := messages.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(me.UID) {
		return nil, apperror.Forbidden("you are not part of this conversation")
	}
	return conv, nil
}

// snapshot opens a stream, takes its first emission and closes it again.
// Live queries emit the current result immediately, so this is a one-shot read.
func snapshot[T any](ctx context.Context, open func(context.Context) (<-chan T, error)) (T, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var zero T
	ch, err := open(ctx)
	if err != nil {
		return zero, err
	}
	select {
	case v, ok := <-ch:
		if !ok {
			return zero, apperror.Transient("reading stream", context.Cause(ctx))
		}
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
