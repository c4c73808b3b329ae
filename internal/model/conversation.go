package model

import "strings"

// Conversation is a two-party thread stored in "conversations".
//
// ParticipantsEmails is kept sorted so the pair reads the same regardless
// of who started the conversation. UnreadCount maps a participant uid to
// the number of messages they have not read.
type Conversation struct {
	ID                 string         `json:"id,omitempty"`
	Participants       []string       `json:"participants"`
	ParticipantsEmails []string       `json:"participantsEmails"`
	LastMessage        string         `json:"lastMessage"`
	LastMessageTime    Timestamp      `json:"lastMessageTime"`
	UnreadCount        map[string]int `json:"unreadCount"`
}

// HasParticipant reports whether uid takes part in the conversation.
func (c *Conversation) HasParticipant(uid string) bool {
	for _, p := range c.Participants {
		if p == uid {
			return true
		}
	}
	return false
}

// HasEmail reports whether email (compared case-insensitively) is one of
// the participant emails.
func (c *Conversation) HasEmail(email string) bool {
	for _, e := range c.ParticipantsEmails {
		if strings.EqualFold(e, email) {
			return true
		}
	}
	return false
}

// OtherEmail returns the email of the participant who is not self, or ""
// when the conversation does not include self.
func (c *Conversation) OtherEmail(self string) string {
	if !c.HasEmail(self) {
		return ""
	}
	for _, e := range c.ParticipantsEmails {
		if !strings.EqualFold(e, self) {
			return e
		}
	}
	return ""
}

// Message lives in the "conversations/<id>/messages" sub-collection.
// Read is a legacy flag; unread state is tracked on the conversation.
type Message struct {
	ID             string    `json:"id,omitempty"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	SenderEmail    string    `json:"senderEmail"`
	Content        string    `json:"content"`
	Timestamp      Timestamp `json:"timestamp"`
	Read           bool      `json:"read"`
}

// MessagesCollection returns the collection path holding a conversation's messages.
func MessagesCollection(conversationID string) string {
	return "conversations/" + conversationID + "/messages"
}
