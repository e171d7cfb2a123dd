package store

import (
	"database/sql"
	"fmt"

	"github.com/avestan-labs/pigeon/internal/models"
)

// UserStore is the identity lookup the messaging core consumes. Credential
// handling lives in internal/auth; this store only reads identity records.
type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) GetByID(id int) (*models.User, error) {
	user := &models.User{}
	err := s.db.QueryRow(`
		SELECT id, username, phone_number, display_name, avatar_url, created_at
		FROM users WHERE id = ?
	`, id).Scan(&user.ID, &user.Username, &user.PhoneNumber, &user.DisplayName, &user.AvatarURL, &user.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query user %d: %w", id, err)
	}
	return user, nil
}

func (s *UserStore) GetByUsername(username string) (*models.User, error) {
	user := &models.User{}
	err := s.db.QueryRow(`
		SELECT id, username, phone_number, display_name, avatar_url, created_at
		FROM users WHERE username = ?
	`, username).Scan(&user.ID, &user.Username, &user.PhoneNumber, &user.DisplayName, &user.AvatarURL, &user.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query user %q: %w", username, err)
	}
	return user, nil
}

func (s *UserStore) Exists(id int) (bool, error) {
	var exists bool
	err := s.db.QueryRow("SELECT EXISTS(SELECT 1 FROM users WHERE id = ?)", id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to query user %d: %w", id, err)
	}
	return exists, nil
}

// Search lists up to limit users other than excludeID whose username or
// display name matches the query. An empty query lists everyone.
func (s *UserStore) Search(excludeID int, query string, limit int) ([]*models.User, error) {
	if limit <= 0 || limit > 50 {
		limit = 20
	}

	var rows *sql.Rows
	var err error
	if query != "" {
		pattern := "%" + query + "%"
		rows, err = s.db.Query(`
			SELECT id, username, phone_number, display_name, avatar_url, created_at
			FROM users
			WHERE id != ? AND (username LIKE ? OR display_name LIKE ?)
			ORDER BY username LIMIT ?
		`, excludeID, pattern, pattern, limit)
	} else {
		rows, err = s.db.Query(`
			SELECT id, username, phone_number, display_name, avatar_url, created_at
			FROM users WHERE id != ? ORDER BY username LIMIT ?
		`, excludeID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user := &models.User{}
		if err := rows.Scan(&user.ID, &user.Username, &user.PhoneNumber, &user.DisplayName, &user.AvatarURL, &user.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (s *UserStore) UpdateDisplayName(id int, displayName string) error {
	_, err := s.db.Exec(`
		UPDATE users SET display_name = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, displayName, id)
	if err != nil {
		return fmt.Errorf("failed to update user %d: %w", id, err)
	}
	return nil
}
