package models

import "time"

type User struct {
	ID          int       `json:"id"`
	Username    string    `json:"username"`
	PhoneNumber string    `json:"phone_number"`
	DisplayName *string   `json:"display_name,omitempty"`
	AvatarURL   *string   `json:"avatar_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Message is immutable once persisted. The server assigns ID and CreatedAt;
// IDs are monotone per store and double as the recency ordering.
type Message struct {
	ID         int       `json:"id"`
	SenderID   int       `json:"sender_id"`
	ReceiverID int       `json:"receiver_id"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
}

// Contact is a directional address-book entry: owner A naming peer B says
// nothing about B's book. At most one row exists per (owner, peer) pair.
type Contact struct {
	ID        int       `json:"id"`
	OwnerID   int       `json:"owner_id"`
	PeerID    int       `json:"peer_id"`
	Nickname  string    `json:"nickname"`
	CreatedAt time.Time `json:"created_at"`
}

// ConversationSummary is the latest-message view of a 1:1 thread, one row
// per distinct peer.
type ConversationSummary struct {
	PeerID      int       `json:"peer_id"`
	DisplayName string    `json:"display_name"`
	AvatarURL   *string   `json:"avatar_url,omitempty"`
	IsOnline    bool      `json:"is_online"`
	IsOutgoing  bool      `json:"is_outgoing"`
	LastMessage string    `json:"last_message"`
	Timestamp   time.Time `json:"timestamp"`
}
