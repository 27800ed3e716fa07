package api_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teamforge/collab/internal/api"
	"github.com/teamforge/collab/pkg/auth"
	"github.com/teamforge/collab/pkg/message"
)

var tokenOptions = auth.TokenOptions{
	Exp:    time.Hour,
	Secret: []byte("secret"),
}

func setUpTestApiServer(t *testing.T) (*httptest.Server, *sql.DB, func()) {
	t.Helper()

	db, err := sql.Open("sqlite3", "file::memory:?cache=shared")
	if err != nil {
		t.Fatal(err)
	}

	migrationFS := os.DirFS("../../migrations")
	goose.SetBaseFS(migrationFS)

	if err := goose.SetDialect("sqlite3"); err != nil {
		t.Fatal(err)
	}

	if err := goose.Up(db, "."); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	config := api.ApiConfig{
		TokenOptions: tokenOptions,
		OpTimeout:    time.Second,
		HistoryLimit: 50,
	}

	_api := api.NewApi(ctx, db, config)

	server := httptest.NewServer(_api.Mux())

	return server, db, func() {
		server.Close()
		cancel()
		db.Close()
	}
}

func seed(t *testing.T, db *sql.DB) {
	t.Helper()
	stmts := []string{
		`INSERT INTO users (id, name, email, role) VALUES
		('alice', 'Alice', 'alice@example.com', 'member'),
		('bob', 'Bob', 'bob@example.com', 'member')`,
		`INSERT INTO projects (id, name, lead) VALUES ('p1', 'Apollo', 'alice')`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
}

func tokenFor(t *testing.T, userID, name string) string {
	t.Helper()
	signed, _, err := auth.CreateToken(auth.Identity{UserID: userID, Name: name, Role: "member"}, tokenOptions)
	if err != nil {
		t.Fatal(err)
	}
	return signed
}

func doRequest(t *testing.T, server *httptest.Server, method, path, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, server.URL+path, nil)
	require.Nil(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res, err := server.Client().Do(req)
	require.Nil(t, err)
	return res
}

func appendMessage(t *testing.T, db *sql.DB, projectID, sender, content string) *message.Message {
	t.Helper()
	msg, err := message.NewSQLiteStore(db).Append(context.Background(), message.CreateInput{
		ProjectID: projectID, Sender: sender, Content: content,
	})
	require.Nil(t, err)
	return msg
}

func Test_Healthz(t *testing.T) {
	server, _, tearDown := setUpTestApiServer(t)
	defer tearDown()

	res := doRequest(t, server, http.MethodGet, "/healthz", "")
	defer res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func Test_GetProjectMessages(t *testing.T) {
	server, db, tearDown := setUpTestApiServer(t)
	defer tearDown()
	seed(t, db)
	appendMessage(t, db, "p1", "alice", "first")
	appendMessage(t, db, "p1", "alice", "second")

	t.Run("requires_token", func(t *testing.T) {
		res := doRequest(t, server, http.MethodGet, "/api/projects/p1/messages", "")
		defer res.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	})

	t.Run("non_member_is_unauthorized", func(t *testing.T) {
		res := doRequest(t, server, http.MethodGet, "/api/projects/p1/messages", tokenFor(t, "bob", "Bob"))
		defer res.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	})

	t.Run("unknown_project_is_not_found", func(t *testing.T) {
		res := doRequest(t, server, http.MethodGet, "/api/projects/nope/messages", tokenFor(t, "alice", "Alice"))
		defer res.Body.Close()
		assert.Equal(t, http.StatusNotFound, res.StatusCode)
	})

	t.Run("member_gets_messages_oldest_first", func(t *testing.T) {
		res := doRequest(t, server, http.MethodGet, "/api/projects/p1/messages", tokenFor(t, "alice", "Alice"))
		defer res.Body.Close()
		require.Equal(t, http.StatusOK, res.StatusCode)

		var messages []message.Message
		require.Nil(t, json.NewDecoder(res.Body).Decode(&messages))
		require.Len(t, messages, 2)
		assert.Equal(t, "first", messages[0].Content)
		assert.Equal(t, "second", messages[1].Content)
	})
}

func Test_MarkMessageRead(t *testing.T) {
	server, db, tearDown := setUpTestApiServer(t)
	defer tearDown()
	seed(t, db)
	msg := appendMessage(t, db, "p1", "alice", "read me")

	t.Run("unknown_message_is_not_found", func(t *testing.T) {
		res := doRequest(t, server, http.MethodPost, "/api/messages/nope/read", tokenFor(t, "alice", "Alice"))
		defer res.Body.Close()
		assert.Equal(t, http.StatusNotFound, res.StatusCode)
	})

	t.Run("receipt_is_recorded", func(t *testing.T) {
		res := doRequest(t, server, http.MethodPost,
			fmt.Sprintf("/api/messages/%s/read", msg.ID), tokenFor(t, "alice", "Alice"))
		defer res.Body.Close()
		require.Equal(t, http.StatusNoContent, res.StatusCode)

		res = doRequest(t, server, http.MethodGet, "/api/projects/p1/messages", tokenFor(t, "alice", "Alice"))
		defer res.Body.Close()
		var messages []message.Message
		require.Nil(t, json.NewDecoder(res.Body).Decode(&messages))
		require.Len(t, messages, 1)
		require.Len(t, messages[0].ReadBy, 1)
		assert.Equal(t, "alice", messages[0].ReadBy[0].UserID)
	})
}

func dialWS(t *testing.T, server *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?token=" + url.QueryEscape(token)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Nil(t, err)
	return conn
}

type wsEvent struct {
	Type string          `json:"type"`
	Body json.RawMessage `json:"body"`
}

func readEvent(t *testing.T, conn *websocket.Conn) wsEvent {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event wsEvent
	require.Nil(t, conn.ReadJSON(&event))
	return event
}

func writeEvent(t *testing.T, conn *websocket.Conn, eventType string, body any) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.Nil(t, err)
	require.Nil(t, conn.WriteJSON(wsEvent{Type: eventType, Body: raw}))
}

func Test_Websocket(t *testing.T) {
	server, db, tearDown := setUpTestApiServer(t)
	defer tearDown()
	seed(t, db)

	t.Run("handshake_without_token_is_rejected", func(t *testing.T) {
		wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
		_, res, err := websocket.DefaultDialer.Dial(wsURL, nil)
		require.NotNil(t, err)
		require.NotNil(t, res)
		assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	})

	t.Run("ping_pong", func(t *testing.T) {
		conn := dialWS(t, server, tokenFor(t, "alice", "Alice"))
		defer conn.Close()

		writeEvent(t, conn, "ping", map[string]any{"nonce": "abc"})

		event := readEvent(t, conn)
		require.Equal(t, "pong", event.Type)
		var body map[string]any
		require.Nil(t, json.Unmarshal(event.Body, &body))
		assert.Equal(t, "abc", body["nonce"])
		assert.NotEmpty(t, body["serverTime"])
	})

	t.Run("join_and_send_round_trip", func(t *testing.T) {
		conn := dialWS(t, server, tokenFor(t, "alice", "Alice"))
		defer conn.Close()

		writeEvent(t, conn, "join-project", map[string]string{"projectId": "p1"})

		event := readEvent(t, conn)
		require.Equal(t, "previous-messages", event.Type)

		writeEvent(t, conn, "send-message", map[string]string{"projectId": "p1", "content": "hello"})

		event = readEvent(t, conn)
		require.Equal(t, "new-message", event.Type)
		var msg message.Message
		require.Nil(t, json.Unmarshal(event.Body, &msg))
		assert.Equal(t, "hello", msg.Content)
		assert.Equal(t, "alice", msg.Sender)
		assert.NotEmpty(t, msg.ID)
		assert.False(t, msg.CreatedAt.IsZero())
	})

	t.Run("non_member_send_gets_error_event", func(t *testing.T) {
		conn := dialWS(t, server, tokenFor(t, "bob", "Bob"))
		defer conn.Close()

		writeEvent(t, conn, "send-message", map[string]string{"projectId": "p1", "content": "nope"})

		event := readEvent(t, conn)
		require.Equal(t, "error", event.Type)
		var body struct {
			Code string `json:"code"`
		}
		require.Nil(t, json.Unmarshal(event.Body, &body))
		assert.Equal(t, "unauthorized", body.Code)
	})
}
