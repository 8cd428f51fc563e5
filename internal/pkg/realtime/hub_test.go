package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestConn 构造不绑定底层 websocket 的连接，直接从 send 通道断言投递结果
func newTestConn(userID uint64) *Connection {
	return NewConnection(userID, nil)
}

func recvPayload(t *testing.T, c *Connection) []byte {
	t.Helper()
	select {
	case payload := <-c.send:
		return payload
	case <-time.After(time.Second):
		t.Fatal("期望收到投递但超时")
		return nil
	}
}

func assertNoPayload(t *testing.T, c *Connection) {
	t.Helper()
	select {
	case payload := <-c.send:
		t.Fatalf("不应收到投递: %s", payload)
	default:
	}
}

func TestHubBroadcastToRoom(t *testing.T) {
	hub := NewHub(nil)
	ctx := context.Background()

	alice := newTestConn(1)
	bob := newTestConn(2)
	hub.Register(alice)
	hub.Register(bob)
	hub.Join(alice, ConversationRoom(10))
	hub.Join(bob, ConversationRoom(10))

	err := hub.Broadcast(ctx, ConversationRoom(10), &Event{Type: EventNewMessage, Data: "hello"})
	require.NoError(t, err)

	for _, c := range []*Connection{alice, bob} {
		var evt Event
		require.NoError(t, json.Unmarshal(recvPayload(t, c), &evt))
		assert.Equal(t, EventNewMessage, evt.Type)
		assert.Equal(t, "hello", evt.Data)
	}
}

func TestHubBroadcastSkipsOtherRooms(t *testing.T) {
	hub := NewHub(nil)

	alice := newTestConn(1)
	bob := newTestConn(2)
	hub.Register(alice)
	hub.Register(bob)
	hub.Join(alice, ConversationRoom(10))
	hub.Join(bob, ConversationRoom(11))

	require.NoError(t, hub.Broadcast(context.Background(), ConversationRoom(10), &Event{Type: EventNewMessage}))

	recvPayload(t, alice)
	assertNoPayload(t, bob)
}

func TestHubJoinIdempotent(t *testing.T) {
	hub := NewHub(nil)

	alice := newTestConn(1)
	hub.Register(alice)
	hub.Join(alice, ConversationRoom(10))
	hub.Join(alice, ConversationRoom(10))

	assert.Equal(t, 1, hub.RoomSize(ConversationRoom(10)))

	require.NoError(t, hub.Broadcast(context.Background(), ConversationRoom(10), &Event{Type: EventNewMessage}))

	// 重复加入不会导致重复投递
	recvPayload(t, alice)
	assertNoPayload(t, alice)
}

func TestHubLeaveNeverJoined(t *testing.T) {
	hub := NewHub(nil)

	alice := newTestConn(1)
	hub.Register(alice)

	// 离开从未加入的房间是空操作
	hub.Leave(alice, ConversationRoom(10))
	assert.Equal(t, 0, hub.RoomSize(ConversationRoom(10)))
}

func TestHubJoinWithoutRegister(t *testing.T) {
	hub := NewHub(nil)

	ghost := newTestConn(1)
	hub.Join(ghost, ConversationRoom(10))

	assert.Equal(t, 0, hub.RoomSize(ConversationRoom(10)))
}

func TestHubBroadcastExcept(t *testing.T) {
	hub := NewHub(nil)

	alice := newTestConn(1)
	bob := newTestConn(2)
	hub.Register(alice)
	hub.Register(bob)
	hub.Join(alice, ConversationRoom(10))
	hub.Join(bob, ConversationRoom(10))

	evt := &Event{Type: EventTyping, Data: map[string]any{"user_id": 1}}
	require.NoError(t, hub.BroadcastExcept(context.Background(), ConversationRoom(10), alice.ID, evt))

	// 输入状态不回显给发送者本人
	assertNoPayload(t, alice)
	recvPayload(t, bob)
}

func TestHubMultiDeviceDelivery(t *testing.T) {
	hub := NewHub(nil)

	phone := newTestConn(1)
	laptop := newTestConn(1)
	hub.Register(phone)
	hub.Register(laptop)
	hub.Join(phone, UserRoom(1))
	hub.Join(laptop, UserRoom(1))

	require.NoError(t, hub.Broadcast(context.Background(), UserRoom(1), &Event{Type: EventNewConversation}))

	// 同一用户的每条连接都要收到
	recvPayload(t, phone)
	recvPayload(t, laptop)
}

func TestHubUnregisterCleansRooms(t *testing.T) {
	hub := NewHub(nil)

	alice := newTestConn(1)
	hub.Register(alice)
	hub.Join(alice, UserRoom(1))
	hub.Join(alice, ConversationRoom(10))

	hub.Unregister(alice)

	assert.Equal(t, 0, hub.RoomSize(UserRoom(1)))
	assert.Equal(t, 0, hub.RoomSize(ConversationRoom(10)))

	require.NoError(t, hub.Broadcast(context.Background(), ConversationRoom(10), &Event{Type: EventNewMessage}))
	assertNoPayload(t, alice)

	// 摘除后再退出房间不报错
	hub.Unregister(alice)
	hub.Leave(alice, ConversationRoom(10))
}
