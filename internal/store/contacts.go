package store

import (
	"database/sql"
	"fmt"

	"github.com/avestan-labs/pigeon/internal/models"
)

// ContactStore is the per-user address book. Rows are directional and
// unique per (owner_id, peer_id); the database constraint, not application
// logic, is what makes concurrent auto-creation safe.
type ContactStore struct {
	db *sql.DB
}

func NewContactStore(db *sql.DB) *ContactStore {
	return &ContactStore{db: db}
}

func (s *ContactStore) GetByPair(ownerID, peerID int) (*models.Contact, error) {
	contact := &models.Contact{}
	err := s.db.QueryRow(`
		SELECT id, owner_id, peer_id, nickname, created_at
		FROM contacts WHERE owner_id = ? AND peer_id = ?
	`, ownerID, peerID).Scan(&contact.ID, &contact.OwnerID, &contact.PeerID, &contact.Nickname, &contact.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query contact: %w", err)
	}
	return contact, nil
}

func (s *ContactStore) GetByID(id int) (*models.Contact, error) {
	contact := &models.Contact{}
	err := s.db.QueryRow(`
		SELECT id, owner_id, peer_id, nickname, created_at
		FROM contacts WHERE id = ?
	`, id).Scan(&contact.ID, &contact.OwnerID, &contact.PeerID, &contact.Nickname, &contact.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query contact %d: %w", id, err)
	}
	return contact, nil
}

func (s *ContactStore) Create(ownerID, peerID int, nickname string) (*models.Contact, error) {
	result, err := s.db.Exec(`
		INSERT INTO contacts (owner_id, peer_id, nickname) VALUES (?, ?, ?)
	`, ownerID, peerID, nickname)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("failed to create contact: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get contact id: %w", err)
	}

	return s.GetByID(int(id))
}

func (s *ContactStore) ListByOwner(ownerID int) ([]*models.Contact, error) {
	rows, err := s.db.Query(`
		SELECT id, owner_id, peer_id, nickname, created_at
		FROM contacts WHERE owner_id = ? ORDER BY nickname ASC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query contacts: %w", err)
	}
	defer rows.Close()

	var contacts []*models.Contact
	for rows.Next() {
		contact := &models.Contact{}
		if err := rows.Scan(&contact.ID, &contact.OwnerID, &contact.PeerID, &contact.Nickname, &contact.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan contact: %w", err)
		}
		contacts = append(contacts, contact)
	}
	return contacts, rows.Err()
}

func (s *ContactStore) UpdateNickname(id, ownerID int, nickname string) error {
	result, err := s.db.Exec(`
		UPDATE contacts SET nickname = ? WHERE id = ? AND owner_id = ?
	`, nickname, id, ownerID)
	if err != nil {
		return fmt.Errorf("failed to update contact %d: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update contact %d: %w", id, err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a contact row. Message history with the peer is untouched.
func (s *ContactStore) Delete(id, ownerID int) error {
	result, err := s.db.Exec(`
		DELETE FROM contacts WHERE id = ? AND owner_id = ?
	`, id, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete contact %d: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete contact %d: %w", id, err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
