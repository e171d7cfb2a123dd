package store

import (
	"database/sql"
	"fmt"

	"github.com/avestan-labs/pigeon/internal/models"
)

// MessageStore is the append-only message log. Rows are immutable; ids are
// assigned by sqlite's AUTOINCREMENT, so they are monotone per store and
// serve as the recency ordering throughout the system.
type MessageStore struct {
	db *sql.DB
}

func NewMessageStore(db *sql.DB) *MessageStore {
	return &MessageStore{db: db}
}

// Insert persists a message with a server-assigned id and timestamp and
// returns the stored row. Client-supplied time is never trusted.
func (s *MessageStore) Insert(senderID, receiverID int, content string) (*models.Message, error) {
	result, err := s.db.Exec(`
		INSERT INTO messages (sender_id, receiver_id, content, created_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
	`, senderID, receiverID, content)
	if err != nil {
		return nil, fmt.Errorf("failed to insert message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get message id: %w", err)
	}

	return s.GetByID(int(id))
}

func (s *MessageStore) GetByID(id int) (*models.Message, error) {
	msg := &models.Message{}
	err := s.db.QueryRow(`
		SELECT id, sender_id, receiver_id, content, created_at
		FROM messages WHERE id = ?
	`, id).Scan(&msg.ID, &msg.SenderID, &msg.ReceiverID, &msg.Content, &msg.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query message %d: %w", id, err)
	}
	return msg, nil
}

// Between returns the full history between two users in ascending id order.
func (s *MessageStore) Between(userID, peerID int) ([]*models.Message, error) {
	rows, err := s.db.Query(`
		SELECT id, sender_id, receiver_id, content, created_at
		FROM messages
		WHERE (sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)
		ORDER BY id ASC
	`, userID, peerID, peerID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

// InboundSince returns messages addressed to userID with id > lastID, in
// ascending id order. Used by the polling fallback.
func (s *MessageStore) InboundSince(userID, lastID int) ([]*models.Message, error) {
	rows, err := s.db.Query(`
		SELECT id, sender_id, receiver_id, content, created_at
		FROM messages
		WHERE receiver_id = ? AND id > ?
		ORDER BY id ASC
	`, userID, lastID)
	if err != nil {
		return nil, fmt.Errorf("failed to query new messages: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

// LatestPerPeer returns, for every distinct peer userID has exchanged
// messages with, the message with the maximum id. Max id stands in for
// "most recent" since ids are assigned serially at persistence time; under
// clock skew this can diverge from wall-clock order, which is accepted
// behavior rather than something to correct with timestamp ordering.
func (s *MessageStore) LatestPerPeer(userID int) ([]*models.Message, error) {
	rows, err := s.db.Query(`
		SELECT m.id, m.sender_id, m.receiver_id, m.content, m.created_at
		FROM messages m
		JOIN (
			SELECT MAX(id) AS max_id
			FROM messages
			WHERE sender_id = ? OR receiver_id = ?
			GROUP BY CASE WHEN sender_id = ? THEN receiver_id ELSE sender_id END
		) latest ON latest.max_id = m.id
		ORDER BY m.id DESC
	`, userID, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest messages: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

func scanMessages(rows *sql.Rows) ([]*models.Message, error) {
	var messages []*models.Message
	for rows.Next() {
		msg := &models.Message{}
		if err := rows.Scan(&msg.ID, &msg.SenderID, &msg.ReceiverID, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}
