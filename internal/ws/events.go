package ws

import "github.com/avestan-labs/pigeon/internal/models"

// Events form a closed set of tagged variants, decoded and validated at the
// connection boundary before dispatch.

// ClientEvent is the envelope for everything a client may send.
type ClientEvent struct {
	Type       string `json:"type"`
	Token      string `json:"token,omitempty"`
	ReceiverID int    `json:"receiver_id,omitempty"`
	Content    string `json:"content,omitempty"`
	TempID     string `json:"temp_id,omitempty"`
}

const (
	EventAuthenticate = "authenticate"
	EventSendMessage  = "send_message"

	EventAuthenticated = "authenticated"
	EventAuthError     = "auth_error"
	EventMessageSent   = "message_sent"
	EventMessageError  = "message_error"
	EventNewMessage    = "new_message"
)

type AuthenticatedEvent struct {
	Type   string `json:"type"`
	UserID int    `json:"user_id"`
}

type AuthErrorEvent struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// MessageSentEvent acknowledges one send on the connection that issued it.
// TempID echoes the client's correlation id so it can reconcile its
// optimistic UI; it is never forwarded to the receiver.
type MessageSentEvent struct {
	Type    string          `json:"type"`
	TempID  string          `json:"temp_id,omitempty"`
	Message *models.Message `json:"message"`
}

type MessageErrorEvent struct {
	Type   string `json:"type"`
	TempID string `json:"temp_id,omitempty"`
	Error  string `json:"error"`
}

type NewMessageEvent struct {
	Type    string          `json:"type"`
	Message *models.Message `json:"message"`
}
