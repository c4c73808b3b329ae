package service

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/sakif/socialhub/internal/apperror"
	"github.com/sakif/socialhub/internal/model"
	"github.com/sakif/socialhub/internal/repository"
)

// MaxMessageLength bounds a direct message.
const MaxMessageLength = 2000

// MessageService is the conversation and messaging store.
type MessageService struct {
	docs   repository.DocumentStore
	logger *slog.Logger
}

// NewMessageService creates a MessageService.
func NewMessageService(docs repository.DocumentStore, logger *slog.Logger) *MessageService {
	return &MessageService{docs: docs, logger: logger}
}

// ResolveOrCreateConversation returns the id of the signed-in user's
// conversation with otherEmail, creating it on first contact.
//
// The lookup and the create are separate steps, so two users opening a
// conversation with each other at the same moment can end up with two.
func (s *MessageService) ResolveOrCreateConversation(ctx context.Context, otherEmail string) (string, error) {
	me, err := currentUser(ctx)
	if err != nil {
		return "", err
	}
	otherEmail = strings.ToLower(strings.TrimSpace(otherEmail))
	if otherEmail == "" {
		return "", apperror.ValidationFailed("email", "email is required")
	}
	if strings.EqualFold(otherEmail, me.Email) {
		return "", apperror.SelfChat()
	}

	mine, err := s.docs.Query(ctx, myConversations(me.Email))
	if err != nil {
		return "", fmt.Errorf("service/message: listing conversations: %w", err)
	}
	for _, c := range decodeAll(mine, decodeConversation, s.logger) {
		if c.HasEmail(otherEmail) {
			return c.ID, nil
		}
	}

	other, err := findProfileByEmail(ctx, s.docs, otherEmail)
	if err != nil {
		return "", err
	}
	if other == nil {
		return "", apperror.UnknownRecipient(otherEmail)
	}

	emails := []string{strings.ToLower(me.Email), otherEmail}
	slices.Sort(emails)
	conv := model.Conversation{
		Participants:       []string{me.UID, other.UID},
		ParticipantsEmails: emails,
		LastMessage:        "",
		LastMessageTime:    model.Now(),
		UnreadCount:        map[string]int{},
	}
	id, err := s.docs.Add(ctx, ConversationsCollection, conv)
	if err != nil {
		return "", fmt.Errorf("service/message: creating conversation: %w", err)
	}

	s.logger.Info("conversation created",
		slog.String("id", id),
		slog.String("from", me.UID),
		slog.String("to", other.UID),
	)
	return id, nil
}

// GetConversation returns one conversation or apperror.ErrNotFound.
func (s *MessageService) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	snap, err := s.docs.Get(ctx, ConversationsCollection, id)
	if err != nil {
		return nil, fmt.Errorf("service/message: getting conversation %s: %w", id, err)
	}
	c, err := decodeConversation(*snap)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// StreamMessages emits every message of the conversation, oldest first, now
// and after each new message. Messages with equal timestamps keep their
// insertion order.
func (s *MessageService) StreamMessages(ctx context.Context, conversationID string) (<-chan []model.Message, error) {
	in, err := s.docs.Watch(ctx, repository.Query{Collection: model.MessagesCollection(conversationID)})
	if err != nil {
		return nil, fmt.Errorf("service/message: watching messages of %s: %w", conversationID, err)
	}
	return mapStream(ctx, in, decodeMessage, sortMessages, s.logger), nil
}

// SendMessage appends a message from the signed-in user and then updates the
// conversation summary: last message, its time, and the unread counter of
// every other participant. If the summary update fails the message stays.
func (s *MessageService) SendMessage(ctx context.Context, conversationID, content string) (*model.Message, error) {
	me, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	content, err = requireText("content", content, MaxMessageLength)
	if err != nil {
		return nil, err
	}

	conv, err := s.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	ts := model.Now()
	// Keep lastMessageTime from moving backwards if the clock does.
	if ts.Before(conv.LastMessageTime.Time) {
		ts = conv.LastMessageTime
	}

	msg := model.Message{
		ConversationID: conversationID,
		SenderID:       me.UID,
		SenderEmail:    me.Email,
		Content:        content,
		Timestamp:      ts,
		Read:           false,
	}
	id, err := s.docs.Add(ctx, model.MessagesCollection(conversationID), msg)
	if err != nil {
		return nil, fmt.Errorf("service/message: sending to %s: %w", conversationID, err)
	}
	msg.ID = id

	muts := []repository.Mutation{
		repository.SetField("lastMessage", content),
		repository.SetField("lastMessageTime", ts),
	}
	for _, uid := range conv.Participants {
		if uid != me.UID {
			muts = append(muts, repository.Increment("unreadCount."+uid, 1))
		}
	}
	if err := s.docs.Update(ctx, ConversationsCollection, conversationID, muts...); err != nil {
		s.logger.Error("conversation summary is stale",
			slog.String("conversation", conversationID),
			slog.String("message", id),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("service/message: updating summary of %s: %w", conversationID, err)
	}
	return &msg, nil
}

// MarkAsRead resets the signed-in user's unread counter. Without a session it
// does nothing.
func (s *MessageService) MarkAsRead(ctx context.Context, conversationID string) error {
	me, err := currentUser(ctx)
	if err != nil {
		return nil
	}
	if err := s.docs.Update(ctx, ConversationsCollection, conversationID,
		repository.SetField("unreadCount."+me.UID, 0),
	); err != nil {
		return fmt.Errorf("service/message: marking %s read: %w", conversationID, err)
	}
	return nil
}

// StreamUserConversations emits the signed-in user's conversations, most
// recent activity first, now and after every change.
func (s *MessageService) StreamUserConversations(ctx context.Context) (<-chan []model.Conversation, error) {
	me, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	in, err := s.docs.Watch(ctx, myConversations(me.Email))
	if err != nil {
		return nil, fmt.Errorf("service/message: watching conversations: %w", err)
	}
	return mapStream(ctx, in, decodeConversation, sortConversations, s.logger), nil
}

func myConversations(email string) repository.Query {
	return repository.Query{
		Collection: ConversationsCollection,
		Filters: []repository.Filter{
			repository.Where("participantsEmails", repository.OpArrayContains, strings.ToLower(email)),
		},
	}
}

func sortMessages(ms []model.Message) {
	slices.SortStableFunc(ms, func(a, b model.Message) int {
		return cmp.Compare(a.Timestamp.Micros(), b.Timestamp.Micros())
	})
}

func sortConversations(cs []model.Conversation) {
	slices.SortStableFunc(cs, func(a, b model.Conversation) int {
		return cmp.Compare(b.LastMessageTime.Micros(), a.LastMessageTime.Micros())
	})
}

func decodeConversation(snap repository.Snapshot) (model.Conversation, error) {
	return snapshotTo(snap, func(c *model.Conversation, id string) {
		c.ID = id
		if c.UnreadCount == nil {
			c.UnreadCount = map[string]int{}
		}
	})
}

func decodeMessage(snap repository.Snapshot) (model.Message, error) {
	return snapshotTo(snap, func(m *model.Message, id string) { m.ID = id })
}
