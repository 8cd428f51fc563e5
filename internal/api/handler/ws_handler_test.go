package handler_test

import (
	"Mentora/internal/api/dto"
	"Mentora/internal/pkg/realtime"
	"Mentora/internal/pkg/response"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialWs(t *testing.T, env *testEnv, userID uint64) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/api/chat/ws?token=" + env.token(t, userID)
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() {
		_ = conn.Close()
	})
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) *realtime.Event {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var evt realtime.Event
	require.NoError(t, json.Unmarshal(raw, &evt))
	return &evt
}

func assertNoEvent(t *testing.T, conn *websocket.Conn) {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, raw, err := conn.ReadMessage()
	if err == nil {
		t.Fatalf("不应收到下行事件: %s", raw)
	}
}

func sendClientEvent(t *testing.T, conn *websocket.Conn, evt *realtime.ClientEvent) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(evt))
}

// waitRoomSize 轮询等待房间人数收敛，join 在服务端异步生效
func waitRoomSize(t *testing.T, env *testEnv, room string, want int) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if env.hub.RoomSize(room) == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("房间 %s 人数未达到 %d, 当前 %d", room, want, env.hub.RoomSize(room))
}

func TestWsRejectsBadToken(t *testing.T) {
	env := newTestEnv(t)

	wsURL := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/api/chat/ws"

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	_, resp, err = websocket.DefaultDialer.Dial(wsURL+"?token=not-a-jwt", nil)
	require.Error(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
}

func TestWsNewConversationPushedToUserRooms(t *testing.T) {
	env := newTestEnv(t)

	bob := dialWs(t, env, 2)
	carol := dialWs(t, env, 3)
	waitRoomSize(t, env, realtime.UserRoom(2), 1)
	waitRoomSize(t, env, realtime.UserRoom(3), 1)

	resp := env.postJSON(t, 1, "/api/chat/group", dto.CreateGroupReq{Name: "晚自习", MemberIDs: []uint64{2, 3}})
	require.Equal(t, response.Created, resp.Code)

	// 群聊创建后所有成员的个人房间都收到 new_conversation
	for _, conn := range []*websocket.Conn{bob, carol} {
		evt := readEvent(t, conn)
		assert.Equal(t, realtime.EventNewConversation, evt.Type)

		data, err := json.Marshal(evt.Data)
		require.NoError(t, err)
		var conv dto.ConversationDTO
		require.NoError(t, json.Unmarshal(data, &conv))
		assert.Equal(t, "晚自习", conv.Name)
		assert.Len(t, conv.Members, 3)
	}
}

func TestWsNewMessageFanout(t *testing.T) {
	env := newTestEnv(t)

	resp := env.postJSON(t, 1, "/api/chat/direct", dto.CreateDirectReq{RecipientID: 2})
	var created dto.CreateDirectResp
	decodeData(t, resp, &created)
	convID := created.Conversation.ConversationID

	alicePhone := dialWs(t, env, 1)
	aliceLaptop := dialWs(t, env, 1)
	bob := dialWs(t, env, 2)

	room := realtime.ConversationRoom(convID)
	for _, conn := range []*websocket.Conn{alicePhone, aliceLaptop, bob} {
		sendClientEvent(t, conn, &realtime.ClientEvent{Type: realtime.EventJoinConversation, ConversationID: convID})
	}
	waitRoomSize(t, env, room, 3)

	resp = env.postJSON(t, 1, "/api/chat/send", dto.SendMessageReq{ConversationID: convID, Content: "到了吗"})
	require.Equal(t, response.Created, resp.Code)

	// 发送者自己的每个在线设备同样收到广播
	for _, conn := range []*websocket.Conn{alicePhone, aliceLaptop, bob} {
		evt := readEvent(t, conn)
		assert.Equal(t, realtime.EventNewMessage, evt.Type)

		data, err := json.Marshal(evt.Data)
		require.NoError(t, err)
		var msg dto.MessageDTO
		require.NoError(t, json.Unmarshal(data, &msg))
		assert.Equal(t, "到了吗", msg.Content)
		assert.Equal(t, uint64(1), msg.SenderID)
		assert.Equal(t, convID, msg.ConversationID)
	}
}

func TestWsJoinDeniedForNonMember(t *testing.T) {
	env := newTestEnv(t)

	resp := env.postJSON(t, 1, "/api/chat/direct", dto.CreateDirectReq{RecipientID: 2})
	var created dto.CreateDirectResp
	decodeData(t, resp, &created)
	convID := created.Conversation.ConversationID

	mallory := dialWs(t, env, 3)
	waitRoomSize(t, env, realtime.UserRoom(3), 1)

	sendClientEvent(t, mallory, &realtime.ClientEvent{Type: realtime.EventJoinConversation, ConversationID: convID})

	// 非成员的 join 被拒绝，房间人数保持为零
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 0, env.hub.RoomSize(realtime.ConversationRoom(convID)))
}

func TestWsTypingExcludesSender(t *testing.T) {
	env := newTestEnv(t)

	resp := env.postJSON(t, 1, "/api/chat/direct", dto.CreateDirectReq{RecipientID: 2})
	var created dto.CreateDirectResp
	decodeData(t, resp, &created)
	convID := created.Conversation.ConversationID

	alice := dialWs(t, env, 1)
	bob := dialWs(t, env, 2)

	room := realtime.ConversationRoom(convID)
	sendClientEvent(t, alice, &realtime.ClientEvent{Type: realtime.EventJoinConversation, ConversationID: convID})
	sendClientEvent(t, bob, &realtime.ClientEvent{Type: realtime.EventJoinConversation, ConversationID: convID})
	waitRoomSize(t, env, room, 2)

	sendClientEvent(t, alice, &realtime.ClientEvent{Type: realtime.EventTyping, ConversationID: convID, UserName: "小明"})

	evt := readEvent(t, bob)
	assert.Equal(t, realtime.EventTyping, evt.Type)

	data, err := json.Marshal(evt.Data)
	require.NoError(t, err)
	var typing dto.TypingDTO
	require.NoError(t, json.Unmarshal(data, &typing))
	assert.Equal(t, convID, typing.ConversationID)
	assert.Equal(t, uint64(1), typing.UserID)
	assert.Equal(t, "小明", typing.UserName)

	// 输入状态不回显给发送者
	assertNoEvent(t, alice)
}

func TestWsLeaveStopsDelivery(t *testing.T) {
	env := newTestEnv(t)

	resp := env.postJSON(t, 1, "/api/chat/direct", dto.CreateDirectReq{RecipientID: 2})
	var created dto.CreateDirectResp
	decodeData(t, resp, &created)
	convID := created.Conversation.ConversationID

	bob := dialWs(t, env, 2)
	room := realtime.ConversationRoom(convID)

	sendClientEvent(t, bob, &realtime.ClientEvent{Type: realtime.EventJoinConversation, ConversationID: convID})
	waitRoomSize(t, env, room, 1)

	sendClientEvent(t, bob, &realtime.ClientEvent{Type: realtime.EventLeaveConversation, ConversationID: convID})
	waitRoomSize(t, env, room, 0)

	resp = env.postJSON(t, 1, "/api/chat/send", dto.SendMessageReq{ConversationID: convID, Content: fmt.Sprintf("退了就收不到了 %d", convID)})
	require.Equal(t, response.Created, resp.Code)

	assertNoEvent(t, bob)
}

func TestWsDisconnectCleansRooms(t *testing.T) {
	env := newTestEnv(t)

	resp := env.postJSON(t, 1, "/api/chat/direct", dto.CreateDirectReq{RecipientID: 2})
	var created dto.CreateDirectResp
	decodeData(t, resp, &created)
	convID := created.Conversation.ConversationID

	bob := dialWs(t, env, 2)
	room := realtime.ConversationRoom(convID)

	sendClientEvent(t, bob, &realtime.ClientEvent{Type: realtime.EventJoinConversation, ConversationID: convID})
	waitRoomSize(t, env, room, 1)
	waitRoomSize(t, env, realtime.UserRoom(2), 1)

	require.NoError(t, bob.Close())

	waitRoomSize(t, env, room, 0)
	waitRoomSize(t, env, realtime.UserRoom(2), 0)
}
