// Package chat implements the messaging core: the send pipeline, the
// conversation aggregation query, and contact auto-creation.
package chat

import (
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/avestan-labs/pigeon/internal/metrics"
	"github.com/avestan-labs/pigeon/internal/models"
	"github.com/avestan-labs/pigeon/internal/store"
)

// PresenceChecker reports whether a user currently holds a live connection.
type PresenceChecker interface {
	IsOnline(userID int) bool
}

// Deliverer fans a persisted message out to the receiver's live
// connections. Delivery is best-effort; zero live handles is not an error.
type Deliverer interface {
	DeliverNewMessage(msg *models.Message)
}

// Pusher nudges an offline receiver out-of-band.
type Pusher interface {
	SendNewMessageNotification(receiverID int, senderUsername string)
}

type Service struct {
	messages *store.MessageStore
	contacts *store.ContactStore
	users    *store.UserStore
	presence PresenceChecker
	logger   *zap.Logger

	deliverer Deliverer
	pusher    Pusher
}

func NewService(messages *store.MessageStore, contacts *store.ContactStore, users *store.UserStore, presence PresenceChecker, logger *zap.Logger) *Service {
	return &Service{
		messages: messages,
		contacts: contacts,
		users:    users,
		presence: presence,
		logger:   logger,
	}
}

// SetDeliverer wires the real-time fan-out. Set after construction because
// the websocket hub and this service reference each other.
func (s *Service) SetDeliverer(d Deliverer) { s.deliverer = d }

// SetPusher wires the offline notification path. Optional.
func (s *Service) SetPusher(p Pusher) { s.pusher = p }

// Send validates, persists, and fans out one message. The returned message
// carries the server-assigned id and timestamp. Validation and unknown
// receivers fail before any row is written. Fan-out and the contact side
// effect never fail the send.
func (s *Service) Send(senderID, receiverID int, content string) (*models.Message, error) {
	if receiverID <= 0 {
		return nil, ErrInvalidReceiver
	}
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}
	if receiverID == senderID {
		return nil, ErrSelfMessage
	}

	exists, err := s.users.Exists(receiverID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, store.ErrNotFound
	}

	msg, err := s.messages.Insert(senderID, receiverID, content)
	if err != nil {
		return nil, err
	}
	metrics.MessagesSentTotal.Inc()

	if s.deliverer != nil {
		s.deliverer.DeliverNewMessage(msg)
	}

	go s.ensureContactLogged(receiverID, senderID)

	if s.pusher != nil && !s.presence.IsOnline(receiverID) {
		go s.notifyOffline(msg)
	}

	return msg, nil
}

// ListConversations returns one summary per distinct peer, newest-first.
// "Newest" means the maximum message id per peer, not the maximum
// timestamp; ids are assigned serially at persistence time and the two can
// diverge under clock skew, which is accepted behavior.
//
// For every summary whose latest message is inbound and has no contact row
// yet, a contact is created in the background with the peer's phone number
// as nickname. The response does not wait for that write, so a client
// polling immediately after may see the peer without a nickname once;
// the next read self-corrects.
func (s *Service) ListConversations(userID int) ([]*models.ConversationSummary, error) {
	latest, err := s.messages.LatestPerPeer(userID)
	if err != nil {
		return nil, err
	}

	summaries := make([]*models.ConversationSummary, 0, len(latest))
	for _, msg := range latest {
		peerID := msg.SenderID
		if peerID == userID {
			peerID = msg.ReceiverID
		}

		peer, err := s.users.GetByID(peerID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				s.logger.Warn("skipping conversation with unknown peer",
					zap.Int("user_id", userID), zap.Int("peer_id", peerID))
				continue
			}
			return nil, err
		}

		isOutgoing := msg.SenderID == userID

		displayName := peer.Username
		contact, err := s.contacts.GetByPair(userID, peerID)
		switch {
		case err == nil:
			displayName = contact.Nickname
		case errors.Is(err, store.ErrNotFound):
			if !isOutgoing {
				go s.ensureContactLogged(userID, peerID)
			}
		default:
			return nil, err
		}

		summaries = append(summaries, &models.ConversationSummary{
			PeerID:      peerID,
			DisplayName: displayName,
			AvatarURL:   peer.AvatarURL,
			IsOnline:    s.presence.IsOnline(peerID),
			IsOutgoing:  isOutgoing,
			LastMessage: msg.Content,
			Timestamp:   msg.CreatedAt,
		})
	}

	return summaries, nil
}

// History returns the full thread with one peer in ascending order and
// makes sure a contact row exists for the peer.
func (s *Service) History(userID, peerID int) ([]*models.Message, error) {
	exists, err := s.users.Exists(peerID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, store.ErrNotFound
	}

	messages, err := s.messages.Between(userID, peerID)
	if err != nil {
		return nil, err
	}

	go s.ensureContactLogged(userID, peerID)

	return messages, nil
}

// NewSince returns inbound messages with id greater than lastID, ascending,
// and ensures a contact row for every distinct sender. This is the polling
// fallback for clients without a live connection.
func (s *Service) NewSince(userID, lastID int) ([]*models.Message, error) {
	messages, err := s.messages.InboundSince(userID, lastID)
	if err != nil {
		return nil, err
	}

	senders := make(map[int]struct{})
	for _, msg := range messages {
		senders[msg.SenderID] = struct{}{}
	}
	for senderID := range senders {
		go s.ensureContactLogged(userID, senderID)
	}

	return messages, nil
}

// EnsureContact returns the (owner, peer) contact row, creating it if
// absent with the peer's phone number as nickname (username when the phone
// number is blank). An existing row is returned untouched: a user-chosen
// nickname is never overwritten by this path. Losing a concurrent creation
// race is treated as success followed by a re-read.
func (s *Service) EnsureContact(ownerID, peerID int) (*models.Contact, error) {
	contact, err := s.contacts.GetByPair(ownerID, peerID)
	if err == nil {
		return contact, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	peer, err := s.users.GetByID(peerID)
	if err != nil {
		return nil, err
	}

	nickname := peer.PhoneNumber
	if nickname == "" {
		nickname = peer.Username
	}

	contact, err = s.contacts.Create(ownerID, peerID, nickname)
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return s.contacts.GetByPair(ownerID, peerID)
		}
		return nil, err
	}
	metrics.ContactsAutoCreatedTotal.Inc()
	return contact, nil
}

// CreateContact is the explicit user action. Unlike EnsureContact it
// reports duplicates to the caller instead of swallowing them.
func (s *Service) CreateContact(ownerID, peerID int, nickname string) (*models.Contact, error) {
	if peerID == ownerID {
		return nil, ErrSelfContact
	}

	peer, err := s.users.GetByID(peerID)
	if err != nil {
		return nil, err
	}

	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		nickname = peer.PhoneNumber
		if nickname == "" {
			nickname = peer.Username
		}
	}

	return s.contacts.Create(ownerID, peerID, nickname)
}

func (s *Service) ensureContactLogged(ownerID, peerID int) {
	if _, err := s.EnsureContact(ownerID, peerID); err != nil {
		// Contact creation is a side effect; it never fails the
		// triggering send or read.
		s.logger.Warn("contact auto-creation failed",
			zap.Int("owner_id", ownerID),
			zap.Int("peer_id", peerID),
			zap.Error(err))
	}
}

func (s *Service) notifyOffline(msg *models.Message) {
	sender, err := s.users.GetByID(msg.SenderID)
	if err != nil {
		s.logger.Warn("push skipped, sender lookup failed",
			zap.Int("sender_id", msg.SenderID), zap.Error(err))
		return
	}
	s.pusher.SendNewMessageNotification(msg.ReceiverID, sender.Username)
}
