package push

import (
	"database/sql"
	"encoding/json"

	webpush "github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"
)

// Notifier sends Web Push notifications to subscribed users. It is the
// out-of-band nudge for receivers with no live connection; real delivery
// happens when the client polls or reconnects.
type Notifier struct {
	db              *sql.DB
	logger          *zap.Logger
	vapidPublicKey  string
	vapidPrivateKey string
}

// Subscription represents a stored Web Push subscription.
type Subscription struct {
	Endpoint  string `json:"endpoint"`
	KeyP256dh string `json:"p256dh"`
	KeyAuth   string `json:"auth"`
}

// NewNotifier creates a push Notifier. Returns nil if VAPID keys are empty.
func NewNotifier(db *sql.DB, logger *zap.Logger, vapidPublicKey, vapidPrivateKey string) *Notifier {
	if vapidPublicKey == "" || vapidPrivateKey == "" {
		return nil
	}
	return &Notifier{
		db:              db,
		logger:          logger,
		vapidPublicKey:  vapidPublicKey,
		vapidPrivateKey: vapidPrivateKey,
	}
}

// VAPIDPublicKey returns the public VAPID key for clients.
func (n *Notifier) VAPIDPublicKey() string {
	return n.vapidPublicKey
}

// Subscribe stores a subscription for the user, reviving a previously
// revoked row for the same endpoint.
func (n *Notifier) Subscribe(userID int, sub Subscription) error {
	_, err := n.db.Exec(`
		INSERT INTO push_subscriptions (user_id, endpoint, p256dh, auth)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(endpoint) DO UPDATE SET
			user_id = excluded.user_id,
			p256dh = excluded.p256dh,
			auth = excluded.auth,
			revoked_at = NULL
	`, userID, sub.Endpoint, sub.KeyP256dh, sub.KeyAuth)
	return err
}

// Unsubscribe revokes the subscription for the endpoint.
func (n *Notifier) Unsubscribe(userID int, endpoint string) error {
	_, err := n.db.Exec(`
		UPDATE push_subscriptions SET revoked_at = CURRENT_TIMESTAMP
		WHERE user_id = ? AND endpoint = ?
	`, userID, endpoint)
	return err
}

// payload is the JSON structure sent inside the push notification.
type payload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url"`
}

// SendNewMessageNotification sends a push notification to all active
// subscriptions of receiverID.
func (n *Notifier) SendNewMessageNotification(receiverID int, senderUsername string) {
	if n == nil {
		return
	}

	rows, err := n.db.Query(
		"SELECT endpoint, p256dh, auth FROM push_subscriptions WHERE user_id = ? AND revoked_at IS NULL",
		receiverID,
	)
	if err != nil {
		n.logger.Warn("failed to query push subscriptions",
			zap.Int("user_id", receiverID), zap.Error(err))
		return
	}
	defer rows.Close()

	p := payload{
		Title: "New message",
		Body:  "New message from " + senderUsername,
		URL:   "/",
	}
	data, _ := json.Marshal(p)

	var subs []Subscription
	for rows.Next() {
		var sub Subscription
		if err := rows.Scan(&sub.Endpoint, &sub.KeyP256dh, &sub.KeyAuth); err != nil {
			continue
		}
		subs = append(subs, sub)
	}
	rows.Close()

	if len(subs) == 0 {
		return
	}

	n.logger.Debug("sending push notifications",
		zap.Int("user_id", receiverID), zap.Int("subscriptions", len(subs)))
	for _, sub := range subs {
		go n.sendToSubscription(sub, data)
	}
}

func (n *Notifier) sendToSubscription(sub Subscription, data []byte) {
	s := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.KeyP256dh,
			Auth:   sub.KeyAuth,
		},
	}

	resp, err := webpush.SendNotification(data, s, &webpush.Options{
		VAPIDPublicKey:  n.vapidPublicKey,
		VAPIDPrivateKey: n.vapidPrivateKey,
		Subscriber:      "mailto:push@pigeon.local",
		TTL:             86400,
	})
	if err != nil {
		n.logger.Warn("push send failed", zap.String("endpoint", sub.Endpoint), zap.Error(err))
		return
	}
	defer resp.Body.Close()

	// 410 Gone or 404 means the subscription is expired
	if resp.StatusCode == 410 || resp.StatusCode == 404 {
		n.db.Exec("DELETE FROM push_subscriptions WHERE endpoint = ?", sub.Endpoint)
		n.logger.Info("removed expired push subscription",
			zap.String("endpoint", sub.Endpoint), zap.Int("status", resp.StatusCode))
	}
}
