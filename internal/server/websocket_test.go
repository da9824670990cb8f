package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestServer starts a full hub plus HTTP surface on an httptest server.
// Origins are wide open because the test dialer sends none.
func newTestServer(t *testing.T, mutate func(*Config)) (*Hub, *httptest.Server) {
	t.Helper()

	cfg := NewConfig()
	cfg.AllowedOrigins = []string{"*"}
	if mutate != nil {
		mutate(&cfg)
	}

	hub := NewHub(cfg, NewRegistry(cfg))
	go hub.Run()

	ts := httptest.NewServer(SetupRoutes(hub))
	t.Cleanup(func() {
		ts.Close()
		_ = hub.Shutdown(2 * time.Second)
	})

	return hub, ts
}

func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func createRoom(t *testing.T, ts *httptest.Server) CreateRoomResponse {
	t.Helper()

	resp, err := http.Post(ts.URL+"/rooms", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created CreateRoomResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	require.NotEmpty(t, created.RoomID)
	require.NotEmpty(t, created.HostToken)
	return created
}

func sendEvent(t *testing.T, conn *websocket.Conn, event string, payload any) {
	t.Helper()

	var data json.RawMessage
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		data = raw
	}
	require.NoError(t, conn.WriteJSON(Envelope{Event: event, Data: data}))
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env Envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

// readUntil drains frames until one with the wanted event arrives.
func readUntil(t *testing.T, conn *websocket.Conn, event string) Envelope {
	t.Helper()

	for i := 0; i < 20; i++ {
		env := readEnvelope(t, conn)
		if env.Event == event {
			return env
		}
	}
	t.Fatalf("no %q event arrived", event)
	return Envelope{}
}

func decodeAs[T any](t *testing.T, data json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v))
	return v
}

func joinRoom(t *testing.T, conn *websocket.Conn, roomID, username, hostToken string) Ack {
	t.Helper()

	sendEvent(t, conn, EventJoinRoom, JoinRequest{RoomID: roomID, Username: username, HostToken: hostToken})
	env := readUntil(t, conn, EventAck)
	return decodeAs[Ack](t, env.Data)
}

// TestCreateAndInfoEndpoints exercises the request/response surface: room
// creation, info lookup, and 404 for unknown rooms.
func TestCreateAndInfoEndpoints(t *testing.T) {
	_, ts := newTestServer(t, nil)

	created := createRoom(t, ts)

	resp, err := http.Get(ts.URL + "/rooms/" + created.RoomID)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var info RoomInfoResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
	assert.Equal(t, 0, info.UserCount)
	assert.InDelta(t, time.Now().UnixMilli(), info.CreatedAt, float64(5*time.Second/time.Millisecond))

	missing, err := http.Get(ts.URL + "/rooms/never-created")
	require.NoError(t, err)
	defer missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

// TestHealthEndpoint verifies the plain-text health check.
func TestHealthEndpoint(t *testing.T) {
	_, ts := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	assert.Contains(t, buf.String(), "running")
}

// TestJoinBroadcastsRosterAndAcks verifies the join flow: system notice and
// roster reach every member including the joiner, then the ack arrives.
func TestJoinBroadcastsRosterAndAcks(t *testing.T) {
	_, ts := newTestServer(t, nil)
	created := createRoom(t, ts)

	alice := dialWS(t, ts)
	sendEvent(t, alice, EventJoinRoom, JoinRequest{RoomID: created.RoomID, Username: "Alice", HostToken: created.HostToken})

	notice := decodeAs[SystemNotice](t, readUntil(t, alice, EventSystem).Data)
	assert.Equal(t, SystemJoin, notice.Type)
	assert.Equal(t, "Alice", notice.Username)

	roster := decodeAs[[]string](t, readUntil(t, alice, EventParticipants).Data)
	assert.Equal(t, []string{"Alice"}, roster)

	ack := decodeAs[Ack](t, readUntil(t, alice, EventAck).Data)
	assert.True(t, ack.OK)
	assert.Equal(t, created.RoomID, ack.RoomID)
	assert.Equal(t, 1, ack.UserCount)
	assert.True(t, ack.Host)

	// Bob joins without the token: host stays false, Alice sees the update.
	bob := dialWS(t, ts)
	ack = joinRoom(t, bob, created.RoomID, "Bob", "")
	assert.True(t, ack.OK)
	assert.Equal(t, 2, ack.UserCount)
	assert.False(t, ack.Host)

	notice = decodeAs[SystemNotice](t, readUntil(t, alice, EventSystem).Data)
	assert.Equal(t, "Bob", notice.Username)
	roster = decodeAs[[]string](t, readUntil(t, alice, EventParticipants).Data)
	assert.Equal(t, []string{"Alice", "Bob"}, roster)
}

// TestJoinValidation verifies the error acks for missing parameters, unknown
// rooms, full rooms, and double joins.
func TestJoinValidation(t *testing.T) {
	_, ts := newTestServer(t, func(cfg *Config) {
		cfg.RoomCapacity = 2
	})
	created := createRoom(t, ts)

	conn := dialWS(t, ts)
	sendEvent(t, conn, EventJoinRoom, JoinRequest{RoomID: created.RoomID})
	ack := decodeAs[Ack](t, readUntil(t, conn, EventAck).Data)
	assert.False(t, ack.OK)
	assert.Equal(t, "Missing parameters", ack.Error)

	ack = joinRoom(t, conn, "never-created", "Eve", "")
	assert.False(t, ack.OK)
	assert.Equal(t, "Room not found or closed", ack.Error)

	ack = joinRoom(t, conn, created.RoomID, "Eve", "")
	require.True(t, ack.OK)

	ack = joinRoom(t, conn, created.RoomID, "Eve again", "")
	assert.False(t, ack.OK)
	assert.Equal(t, "Already in a room", ack.Error)

	second := dialWS(t, ts)
	ack = joinRoom(t, second, created.RoomID, "Mallory", "")
	require.True(t, ack.OK)

	third := dialWS(t, ts)
	ack = joinRoom(t, third, created.RoomID, "Trent", "")
	assert.False(t, ack.OK)
	assert.Equal(t, "Room full (max 2)", ack.Error)
}

// TestMessageRelay runs the canonical scenario: Bob sends "hi" and both
// Alice and Bob receive it with Bob as the sender.
func TestMessageRelay(t *testing.T) {
	_, ts := newTestServer(t, nil)
	created := createRoom(t, ts)

	alice := dialWS(t, ts)
	require.True(t, joinRoom(t, alice, created.RoomID, "Alice", created.HostToken).OK)
	bob := dialWS(t, ts)
	require.True(t, joinRoom(t, bob, created.RoomID, "Bob", "").OK)

	sendEvent(t, bob, EventMessage, "hi")

	for _, conn := range []*websocket.Conn{alice, bob} {
		msg := decodeAs[ChatMessage](t, readUntil(t, conn, EventMessage).Data)
		assert.Equal(t, "Bob", msg.From)
		assert.Equal(t, "hi", msg.Text)
		assert.InDelta(t, time.Now().UnixMilli(), msg.Ts, float64(5*time.Second/time.Millisecond))
	}

	ack := decodeAs[Ack](t, readUntil(t, bob, EventAck).Data)
	assert.True(t, ack.OK)
}

// TestMessageRequiresRoom verifies the not-in-room ack for roomless senders.
func TestMessageRequiresRoom(t *testing.T) {
	_, ts := newTestServer(t, nil)

	conn := dialWS(t, ts)
	sendEvent(t, conn, EventMessage, "anyone there?")

	ack := decodeAs[Ack](t, readUntil(t, conn, EventAck).Data)
	assert.False(t, ack.OK)
	assert.Equal(t, "Not in a room", ack.Error)
}

// TestMessageTruncation verifies the 1000-character cap on relayed text.
func TestMessageTruncation(t *testing.T) {
	_, ts := newTestServer(t, func(cfg *Config) {
		cfg.MessageMaxLength = 10
	})
	created := createRoom(t, ts)

	conn := dialWS(t, ts)
	require.True(t, joinRoom(t, conn, created.RoomID, "Chatty", "").OK)

	sendEvent(t, conn, EventMessage, "0123456789overflow")
	msg := decodeAs[ChatMessage](t, readUntil(t, conn, EventMessage).Data)
	assert.Equal(t, "0123456789", msg.Text)
}

// TestMessageRateLimit verifies that the threshold-plus-first message inside
// one window is rejected with a rate-limit ack and not relayed.
func TestMessageRateLimit(t *testing.T) {
	_, ts := newTestServer(t, func(cfg *Config) {
		cfg.RateLimitMax = 2
		cfg.RateLimitWindow = time.Minute
	})
	created := createRoom(t, ts)

	conn := dialWS(t, ts)
	require.True(t, joinRoom(t, conn, created.RoomID, "Flooder", "").OK)

	for i := 0; i < 2; i++ {
		sendEvent(t, conn, EventMessage, fmt.Sprintf("burst %d", i))
		readUntil(t, conn, EventMessage)
		ack := decodeAs[Ack](t, readUntil(t, conn, EventAck).Data)
		require.True(t, ack.OK)
	}

	sendEvent(t, conn, EventMessage, "one too many")
	env := readEnvelope(t, conn)
	require.Equal(t, EventAck, env.Event, "rejected message must not be relayed")
	ack := decodeAs[Ack](t, env.Data)
	assert.False(t, ack.OK)
	assert.Equal(t, "Rate limit exceeded, slow down", ack.Error)
}

// TestTypingExcludesSender verifies that typing indicators reach the other
// members only and carry no ack.
func TestTypingExcludesSender(t *testing.T) {
	_, ts := newTestServer(t, nil)
	created := createRoom(t, ts)

	alice := dialWS(t, ts)
	require.True(t, joinRoom(t, alice, created.RoomID, "Alice", "").OK)
	bob := dialWS(t, ts)
	require.True(t, joinRoom(t, bob, created.RoomID, "Bob", "").OK)
	readUntil(t, alice, EventParticipants) // drain Bob's join

	sendEvent(t, bob, EventTyping, nil)
	notice := decodeAs[TypingNotice](t, readUntil(t, alice, EventTyping).Data)
	assert.Equal(t, "Bob", notice.Username)

	sendEvent(t, bob, EventStopTyping, nil)
	notice = decodeAs[TypingNotice](t, readUntil(t, alice, EventStopTyping).Data)
	assert.Equal(t, "Bob", notice.Username)

	// Bob sends a message next; the first frame he receives must be that
	// relay, not an echo of his own typing indicators.
	sendEvent(t, bob, EventMessage, "done typing")
	env := readEnvelope(t, bob)
	assert.Equal(t, EventMessage, env.Event)
}

// TestCloseRoom verifies host-token authority: a forged token is rejected
// leaving the room intact, the real token closes the room for everyone, and
// the room is unreachable afterwards.
func TestCloseRoom(t *testing.T) {
	hub, ts := newTestServer(t, nil)
	created := createRoom(t, ts)

	alice := dialWS(t, ts)
	require.True(t, joinRoom(t, alice, created.RoomID, "Alice", created.HostToken).OK)
	bob := dialWS(t, ts)
	require.True(t, joinRoom(t, bob, created.RoomID, "Bob", "").OK)

	sendEvent(t, bob, EventCloseRoom, CloseRequest{RoomID: created.RoomID, HostToken: "forged"})
	ack := decodeAs[Ack](t, readUntil(t, bob, EventAck).Data)
	assert.False(t, ack.OK)
	assert.Equal(t, "Invalid host token", ack.Error)

	sendEvent(t, bob, EventCloseRoom, CloseRequest{RoomID: "never-created", HostToken: created.HostToken})
	ack = decodeAs[Ack](t, readUntil(t, bob, EventAck).Data)
	assert.Equal(t, "Room not found", ack.Error)

	count, _, err := hub.Registry().RoomInfo(created.RoomID)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	sendEvent(t, alice, EventCloseRoom, CloseRequest{RoomID: created.RoomID, HostToken: created.HostToken})

	for _, conn := range []*websocket.Conn{alice, bob} {
		notice := decodeAs[SystemNotice](t, readUntil(t, conn, EventSystem).Data)
		assert.Equal(t, SystemRoomClosed, notice.Type)
	}
	ack = decodeAs[Ack](t, readUntil(t, alice, EventAck).Data)
	assert.True(t, ack.OK)

	_, _, err = hub.Registry().RoomInfo(created.RoomID)
	assert.ErrorIs(t, err, ErrRoomNotFound)

	// Bob's participation ended with the room; his next message bounces.
	sendEvent(t, bob, EventMessage, "hello?")
	ack = decodeAs[Ack](t, readUntil(t, bob, EventAck).Data)
	assert.False(t, ack.OK)
	assert.Equal(t, "Not in a room", ack.Error)
}

// TestDisconnectCleanup runs the second half of the canonical scenario:
// Alice drops, Bob learns about it, Bob drops, the room disappears.
func TestDisconnectCleanup(t *testing.T) {
	hub, ts := newTestServer(t, nil)
	created := createRoom(t, ts)

	alice := dialWS(t, ts)
	require.True(t, joinRoom(t, alice, created.RoomID, "Alice", "").OK)
	bob := dialWS(t, ts)
	require.True(t, joinRoom(t, bob, created.RoomID, "Bob", "").OK)

	require.NoError(t, alice.Close())

	notice := decodeAs[SystemNotice](t, readUntil(t, bob, EventSystem).Data)
	assert.Equal(t, SystemLeave, notice.Type)
	assert.Equal(t, "Alice", notice.Username)

	roster := decodeAs[[]string](t, readUntil(t, bob, EventParticipants).Data)
	assert.Equal(t, []string{"Bob"}, roster)

	require.NoError(t, bob.Close())

	assert.Eventually(t, func() bool {
		_, _, err := hub.Registry().RoomInfo(created.RoomID)
		return err != nil
	}, 2*time.Second, 20*time.Millisecond, "room survived after its last member disconnected")
}

// TestMalformedFrame verifies that garbage input is answered with an error
// ack while the connection stays usable.
func TestMalformedFrame(t *testing.T) {
	_, ts := newTestServer(t, nil)
	created := createRoom(t, ts)

	conn := dialWS(t, ts)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json at all")))

	ack := decodeAs[Ack](t, readUntil(t, conn, EventAck).Data)
	assert.False(t, ack.OK)
	assert.Equal(t, "Invalid message", ack.Error)

	sendEvent(t, conn, "no-such-event", nil)
	ack = decodeAs[Ack](t, readUntil(t, conn, EventAck).Data)
	assert.False(t, ack.OK)

	// Still connected and fully functional.
	assert.True(t, joinRoom(t, conn, created.RoomID, "Survivor", "").OK)
}
