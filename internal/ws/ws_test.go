package ws

import (
	"database/sql"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/avestan-labs/pigeon/internal/auth"
	"github.com/avestan-labs/pigeon/internal/chat"
	"github.com/avestan-labs/pigeon/internal/registry"
	"github.com/avestan-labs/pigeon/internal/store"
)

type testEnv struct {
	db       *sql.DB
	hub      *Hub
	registry *registry.Registry
	authSvc  *auth.Service
	server   *httptest.Server
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test db: %v", err)
	}

	_, err = db.Exec(`
		CREATE TABLE users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT UNIQUE NOT NULL,
			phone_number TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			display_name TEXT,
			avatar_url TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			sender_id INTEGER NOT NULL,
			receiver_id INTEGER NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE contacts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			owner_id INTEGER NOT NULL,
			peer_id INTEGER NOT NULL,
			nickname TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (owner_id, peer_id)
		);
	`)
	if err != nil {
		t.Fatalf("Failed to create tables: %v", err)
	}

	db.Exec("INSERT INTO users (id, username, phone_number, password_hash) VALUES (1, 'alice', '+15550001', 'hash')")
	db.Exec("INSERT INTO users (id, username, phone_number, password_hash) VALUES (2, 'bob', '+15550002', 'hash')")

	logger := zap.NewNop()
	authSvc := auth.New(db, "test-secret")
	reg := registry.New()
	chatSvc := chat.NewService(
		store.NewMessageStore(db),
		store.NewContactStore(db),
		store.NewUserStore(db),
		reg,
		logger,
	)

	hub := NewHub(reg, chatSvc, authSvc, logger)
	chatSvc.SetDeliverer(hub)

	router := gin.New()
	router.GET("/ws", hub.HandleWebSocket)
	server := httptest.NewServer(router)

	t.Cleanup(func() {
		server.Close()
		db.Close()
	})

	return &testEnv{db: db, hub: hub, registry: reg, authSvc: authSvc, server: server}
}

func (env *testEnv) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func (env *testEnv) token(t *testing.T, userID int, username string) string {
	t.Helper()
	token, err := env.authSvc.GenerateToken(userID, username)
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}
	return token
}

func sendEvent(t *testing.T, conn *websocket.Conn, event interface{}) {
	t.Helper()
	if err := conn.WriteJSON(event); err != nil {
		t.Fatalf("Failed to write event: %v", err)
	}
}

func readEvent(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read event: %v", err)
	}
	var event map[string]interface{}
	if err := json.Unmarshal(data, &event); err != nil {
		t.Fatalf("Failed to decode event: %v", err)
	}
	return event
}

func authenticate(t *testing.T, env *testEnv, conn *websocket.Conn, userID int, username string) {
	t.Helper()
	sendEvent(t, conn, ClientEvent{Type: EventAuthenticate, Token: env.token(t, userID, username)})
	event := readEvent(t, conn)
	if event["type"] != EventAuthenticated {
		t.Fatalf("Expected authenticated event, got %v", event)
	}
}

func waitOnline(t *testing.T, env *testEnv, userID int, online bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if env.registry.IsOnline(userID) == online {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("User %d online state never became %v", userID, online)
}

func TestAuthenticateSuccess(t *testing.T) {
	env := setupTestEnv(t)
	conn := env.dial(t)

	sendEvent(t, conn, ClientEvent{Type: EventAuthenticate, Token: env.token(t, 1, "alice")})

	event := readEvent(t, conn)
	if event["type"] != EventAuthenticated {
		t.Fatalf("Expected authenticated, got %v", event["type"])
	}
	if int(event["user_id"].(float64)) != 1 {
		t.Errorf("Expected user_id 1, got %v", event["user_id"])
	}

	waitOnline(t, env, 1, true)
}

func TestAuthenticateBadTokenKeepsConnectionOpen(t *testing.T) {
	env := setupTestEnv(t)
	conn := env.dial(t)

	sendEvent(t, conn, ClientEvent{Type: EventAuthenticate, Token: "garbage"})

	event := readEvent(t, conn)
	if event["type"] != EventAuthError {
		t.Fatalf("Expected auth_error, got %v", event["type"])
	}
	if env.registry.IsOnline(1) {
		t.Error("Expected no registration after failed auth")
	}

	// The connection survives a failed attempt; a retry with a valid
	// token succeeds.
	authenticate(t, env, conn, 1, "alice")
	waitOnline(t, env, 1, true)
}

func TestAuthenticateUnknownUser(t *testing.T) {
	env := setupTestEnv(t)
	conn := env.dial(t)

	sendEvent(t, conn, ClientEvent{Type: EventAuthenticate, Token: env.token(t, 99, "ghost")})

	event := readEvent(t, conn)
	if event["type"] != EventAuthError {
		t.Fatalf("Expected auth_error for unknown user, got %v", event["type"])
	}
}

func TestSendBeforeAuthenticateRejected(t *testing.T) {
	env := setupTestEnv(t)
	conn := env.dial(t)

	sendEvent(t, conn, ClientEvent{Type: EventSendMessage, ReceiverID: 2, Content: "hi", TempID: "tmp-1"})

	event := readEvent(t, conn)
	if event["type"] != EventMessageError {
		t.Fatalf("Expected message_error, got %v", event["type"])
	}
	if event["temp_id"] != "tmp-1" {
		t.Errorf("Expected temp_id echoed for correlation, got %v", event["temp_id"])
	}

	var count int
	env.db.QueryRow("SELECT COUNT(*) FROM messages").Scan(&count)
	if count != 0 {
		t.Errorf("Expected no persisted rows, got %d", count)
	}
}

func TestSendMessageAckAndFanOut(t *testing.T) {
	env := setupTestEnv(t)

	sender := env.dial(t)
	authenticate(t, env, sender, 1, "alice")

	// Two connections for the receiver: multi-device fan-out
	receiverA := env.dial(t)
	authenticate(t, env, receiverA, 2, "bob")
	receiverB := env.dial(t)
	authenticate(t, env, receiverB, 2, "bob")

	sendEvent(t, sender, ClientEvent{Type: EventSendMessage, ReceiverID: 2, Content: "hello bob", TempID: "tmp-42"})

	ack := readEvent(t, sender)
	if ack["type"] != EventMessageSent {
		t.Fatalf("Expected message_sent ack, got %v", ack)
	}
	if ack["temp_id"] != "tmp-42" {
		t.Errorf("Expected temp_id tmp-42 echoed, got %v", ack["temp_id"])
	}
	ackMsg := ack["message"].(map[string]interface{})
	if ackMsg["id"].(float64) <= 0 {
		t.Error("Expected server-assigned id in ack")
	}
	if ackMsg["content"] != "hello bob" {
		t.Errorf("Unexpected ack content: %v", ackMsg["content"])
	}

	for _, conn := range []*websocket.Conn{receiverA, receiverB} {
		event := readEvent(t, conn)
		if event["type"] != EventNewMessage {
			t.Fatalf("Expected new_message, got %v", event)
		}
		// temp_id is meaningless to the receiver and must not leak
		if _, ok := event["temp_id"]; ok {
			t.Error("new_message must not carry the sender's temp_id")
		}
		msg := event["message"].(map[string]interface{})
		if msg["content"] != "hello bob" {
			t.Errorf("Unexpected content: %v", msg["content"])
		}
		if int(msg["sender_id"].(float64)) != 1 {
			t.Errorf("Unexpected sender: %v", msg["sender_id"])
		}
	}

	var count int
	env.db.QueryRow("SELECT COUNT(*) FROM messages").Scan(&count)
	if count != 1 {
		t.Errorf("Expected exactly one persisted row, got %d", count)
	}
}

func TestSendToOfflineReceiverStillAcked(t *testing.T) {
	env := setupTestEnv(t)

	sender := env.dial(t)
	authenticate(t, env, sender, 1, "alice")

	sendEvent(t, sender, ClientEvent{Type: EventSendMessage, ReceiverID: 2, Content: "hi", TempID: "tmp-7"})

	ack := readEvent(t, sender)
	if ack["type"] != EventMessageSent {
		t.Fatalf("Expected success ack despite offline receiver, got %v", ack)
	}

	var count int
	env.db.QueryRow("SELECT COUNT(*) FROM messages WHERE receiver_id = 2").Scan(&count)
	if count != 1 {
		t.Errorf("Expected message persisted for offline receiver, got %d rows", count)
	}
}

func TestSendErrorsTaggedWithTempID(t *testing.T) {
	env := setupTestEnv(t)

	conn := env.dial(t)
	authenticate(t, env, conn, 1, "alice")

	cases := []struct {
		name  string
		event ClientEvent
	}{
		{"empty content", ClientEvent{Type: EventSendMessage, ReceiverID: 2, TempID: "t1"}},
		{"missing receiver", ClientEvent{Type: EventSendMessage, Content: "hi", TempID: "t2"}},
		{"unknown receiver", ClientEvent{Type: EventSendMessage, ReceiverID: 99, Content: "hi", TempID: "t3"}},
	}

	for _, tc := range cases {
		sendEvent(t, conn, tc.event)
		event := readEvent(t, conn)
		if event["type"] != EventMessageError {
			t.Errorf("%s: expected message_error, got %v", tc.name, event["type"])
		}
		if event["temp_id"] != tc.event.TempID {
			t.Errorf("%s: expected temp_id %q, got %v", tc.name, tc.event.TempID, event["temp_id"])
		}
	}

	// The connection stays usable after failed operations
	sendEvent(t, conn, ClientEvent{Type: EventSendMessage, ReceiverID: 2, Content: "still works", TempID: "t4"})
	if event := readEvent(t, conn); event["type"] != EventMessageSent {
		t.Errorf("Expected connection to remain usable, got %v", event)
	}
}

func TestDisconnectUnregisters(t *testing.T) {
	env := setupTestEnv(t)

	conn := env.dial(t)
	authenticate(t, env, conn, 1, "alice")
	waitOnline(t, env, 1, true)

	conn.Close()
	waitOnline(t, env, 1, false)
}

func TestDisconnectKeepsOtherDeviceOnline(t *testing.T) {
	env := setupTestEnv(t)

	first := env.dial(t)
	authenticate(t, env, first, 1, "alice")
	second := env.dial(t)
	authenticate(t, env, second, 1, "alice")

	first.Close()

	// Still online through the second device
	time.Sleep(50 * time.Millisecond)
	if !env.registry.IsOnline(1) {
		t.Error("Expected user to stay online while a second connection lives")
	}

	second.Close()
	waitOnline(t, env, 1, false)
}
