package handler

// LIVE STREAMS OVER WEBSOCKET:
// Every live query in the service layer is a Go channel that emits the full
// current result, then a fresh result after each change. A websocket route
// simply forwards each emission as one JSON text frame:
//
//	client                         server
//	  |--- GET /ws/posts (Upgrade) --->|  open stream, then upgrade
//	  |<-------- [post, post] ---------|  initial result
//	  |<----- [post, post, post] ------|  after someone posts
//	  |---------- close -------------->|  stream cancelled
//
// The stream is opened BEFORE the upgrade, so "not signed in" or "not your
// conversation" still goes out as a normal HTTP error response.
//
// Clients never send data frames. The read loop only exists to notice when
// the peer goes away and to answer pings.

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/sakif/socialhub/internal/auth"
	"github.com/sakif/socialhub/internal/model"
	"github.com/sakif/socialhub/internal/service"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// SessionWatcher streams the state of a session. *auth.Provider implements it.
type SessionWatcher interface {
	WatchSession(ctx context.Context, sessionID string) <-chan *auth.Identity
}

// StreamHandler serves the websocket routes.
type StreamHandler struct {
	sessions SessionWatcher
	posts    *service.PostService
	messages *service.MessageService
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewStreamHandler creates a StreamHandler. allowedOrigins lists the Origin
// headers accepted on upgrade; when empty only same-host origins are.
func NewStreamHandler(
	sessions SessionWatcher,
	posts *service.PostService,
	messages *service.MessageService,
	allowedOrigins []string,
	logger *slog.Logger,
) *StreamHandler {
	h := &StreamHandler{
		sessions: sessions,
		posts:    posts,
		messages: messages,
		logger:   logger,
	}
	if len(allowedOrigins) > 0 {
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			return slices.Contains(allowedOrigins, r.Header.Get("Origin"))
		}
	}
	return h
}

// HandleSession streams the caller's identity, then null when the session
// ends. Anonymous callers receive a single null.
//
// WS: /ws/session
func (h *StreamHandler) HandleSession(w http.ResponseWriter, r *http.Request) {
	serveStream(h, w, r, func(ctx context.Context) (<-chan *auth.Identity, error) {
		sid, ok := auth.SessionIDFromContext(ctx)
		if !ok {
			ch := make(chan *auth.Identity, 1)
			ch <- nil
			return ch, nil
		}
		return h.sessions.WatchSession(ctx, sid), nil
	})
}

// HandlePosts streams the feed, newest first. ?author= narrows it.
//
// WS: /ws/posts
func (h *StreamHandler) HandlePosts(w http.ResponseWriter, r *http.Request) {
	author := r.URL.Query().Get("author")
	serveStream(h, w, r, func(ctx context.Context) (<-chan []model.Post, error) {
		return h.posts.StreamPosts(ctx, author)
	})
}

// HandleConversations streams the caller's conversations, most recent first.
//
// WS: /ws/conversations
func (h *StreamHandler) HandleConversations(w http.ResponseWriter, r *http.Request) {
	serveStream(h, w, r, h.messages.StreamUserConversations)
}

// HandleMessages streams one conversation's messages, oldest first.
//
// WS: /ws/conversations/{id}/messages
func (h *StreamHandler) HandleMessages(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	serveStream(h, w, r, func(ctx context.Context) (<-chan []model.Message, error) {
		if _, err := loadConversationFor(ctx, h.messages, id); err != nil {
			return nil, err
		}
		return h.messages.StreamMessages(ctx, id)
	})
}

// serveStream opens a stream, upgrades the connection and forwards every
// emission until either side goes away.
func serveStream[T any](h *StreamHandler, w http.ResponseWriter, r *http.Request, open func(context.Context) (<-chan T, error)) {
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	ch, err := open(ctx)
	if err != nil {
		writeError(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already answered with an HTTP error.
		h.logger.Debug("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	go readUntilClosed(conn, cancel)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case v, ok := <-ch:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(v); err != nil {
				h.logger.Debug("websocket write failed",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				return
			}
		}
	}
}

// readUntilClosed discards incoming frames and cancels once the peer closes
// the connection or stops answering pings.
func readUntilClosed(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.NextReader(); err != nil {
			return
		}
	}
}
