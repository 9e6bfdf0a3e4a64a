package chathub_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"shelterchat/backend/internal/auth"
	"shelterchat/backend/internal/chat"
	"shelterchat/backend/internal/chathub"
	"shelterchat/backend/internal/localization"
	"shelterchat/backend/internal/members"
	"shelterchat/backend/internal/models"
	"shelterchat/backend/internal/storage"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "ws-test-secret"

type liveServer struct {
	url string
	svc *chat.Service
}

func startLiveServer(t *testing.T) *liveServer {
	t.Helper()
	loc, err := localization.Default("en")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	hub := chathub.NewHub(nil, zap.NewNop())
	go hub.Run(ctx)

	msgs := storage.NewMemoryMessageStore()
	svc := chat.NewService(chat.Deps{
		Rooms:     storage.NewMemoryRoomStore(),
		Messages:  msgs,
		Seq:       storage.NewLockingAllocator(storage.NewLocalLocker(), msgs),
		Members:   members.NewMemoryDirectory(true),
		Fanout:    hub,
		Localizer: loc,
	}, chat.Options{})

	gw := chathub.NewGateway(hub, svc, loc, zap.NewNop(),
		&chathub.Gatekeeper{Resolver: auth.NewJWTResolver(testSecret, ""), Rooms: svc})

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		gw.Serve(r.Context(), conn, "en")
	}))
	t.Cleanup(srv.Close)

	return &liveServer{url: "ws" + strings.TrimPrefix(srv.URL, "http"), svc: svc}
}

func signToken(t *testing.T, memberID int64, ttl time.Duration) string {
	t.Helper()
	claims := auth.Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(memberID, 10),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

type wsPeer struct {
	t    *testing.T
	conn *websocket.Conn
}

func dial(t *testing.T, url string) *wsPeer {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &wsPeer{t: t, conn: conn}
}

func (p *wsPeer) send(command string, headers map[string]string, body interface{}) {
	p.t.Helper()
	require.NoError(p.t, p.conn.WriteMessage(websocket.TextMessage, frame(p.t, command, headers, body)))
}

func (p *wsPeer) read() chathub.Frame {
	p.t.Helper()
	require.NoError(p.t, p.conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, data, err := p.conn.ReadMessage()
	require.NoError(p.t, err)
	var f chathub.Frame
	require.NoError(p.t, json.Unmarshal(data, &f))
	return f
}

func (p *wsPeer) connect(memberID int64) {
	p.t.Helper()
	p.send(chathub.CmdConnect, map[string]string{chathub.HeaderAuthorization: "Bearer " + signToken(p.t, memberID, time.Hour)}, nil)
	require.Equal(p.t, chathub.CmdConnected, p.read().Command)
}

func TestWebSocket_MessageRoundTrip(t *testing.T) {
	live := startLiveServer(t)
	room, err := live.svc.CreatePrivateRoom(context.Background(), 1, 2)
	require.NoError(t, err)

	sender := dial(t, live.url)
	sender.connect(1)

	recipient := dial(t, live.url)
	recipient.connect(2)
	recipient.send(chathub.CmdSubscribe, map[string]string{chathub.HeaderID: "room", chathub.HeaderDestination: chathub.RoomTopic(room)}, nil)
	recipient.send(chathub.CmdSubscribe, map[string]string{chathub.HeaderID: "me", chathub.HeaderDestination: chathub.MemberTopic(2)}, nil)
	// subscriptions are in place once a later frame on the connection was handled
	recipient.send(chathub.CmdSubscribe, map[string]string{chathub.HeaderID: "probe", chathub.HeaderDestination: chathub.MemberTopic(1)}, nil)
	require.Equal(t, "FORBIDDEN_DESTINATION", recipient.read().Header(chathub.HeaderCode))

	sender.send(chathub.CmdSend, map[string]string{chathub.HeaderDestination: chathub.RoomPublish(room)},
		chat.Draft{Type: models.MessageText, Content: "hello over the wire"})

	got := map[string]chathub.Frame{}
	for len(got) < 2 {
		f := recipient.read()
		require.Equal(t, chathub.CmdMessage, f.Command)
		got[f.Header(chathub.HeaderSubscription)] = f
	}

	var msg models.MessagePayload
	require.NoError(t, json.Unmarshal(got["room"].Body, &msg))
	assert.Equal(t, int64(1), msg.Seq)
	assert.Equal(t, int64(1), msg.SenderID)
	assert.Equal(t, "hello over the wire", msg.Content)

	var summary models.RoomSummary
	require.NoError(t, json.Unmarshal(got["me"].Body, &summary))
	assert.Equal(t, room, summary.RoomID)
	assert.Equal(t, int64(1), summary.UnreadCount)
}

func TestWebSocket_InvalidTokenClosesConnection(t *testing.T) {
	live := startLiveServer(t)
	peer := dial(t, live.url)

	peer.send(chathub.CmdConnect, map[string]string{chathub.HeaderAuthorization: "Bearer " + signToken(t, 1, -time.Minute)}, nil)
	errFrame := peer.read()
	assert.Equal(t, chathub.CmdError, errFrame.Command)
	assert.Equal(t, "TOKEN_EXPIRED", errFrame.Header(chathub.HeaderCode))

	require.NoError(t, peer.conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, _, err := peer.conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestWebSocket_NonMemberCannotSubscribe(t *testing.T) {
	live := startLiveServer(t)
	room, err := live.svc.CreatePrivateRoom(context.Background(), 1, 2)
	require.NoError(t, err)

	outsider := dial(t, live.url)
	outsider.connect(3)
	outsider.send(chathub.CmdSubscribe, map[string]string{chathub.HeaderID: "peek", chathub.HeaderDestination: chathub.RoomTopic(room)}, nil)

	assert.Equal(t, "MEMBER_NOT_IN_CHAT_ROOM", outsider.read().Header(chathub.HeaderCode))
}
