package realtime

import (
	"Mentora/internal/pkg/consts"
	"strconv"
)

// 客户端上行事件
const (
	EventJoinUser          = "join_user"
	EventJoinConversation  = "join_conversation"
	EventLeaveConversation = "leave_conversation"
	EventTyping            = "typing"
	EventStopTyping        = "stop_typing"
)

// 服务端下行事件
const (
	EventNewMessage      = "new_message"
	EventNewConversation = "new_conversation"
)

// Event 下行事件封装
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// ClientEvent 上行事件封装
// 正在输入事件是瞬态的：只做转发，从不落库。
type ClientEvent struct {
	Type           string `json:"type"`
	ConversationID uint64 `json:"conversation_id"`
	UserID         uint64 `json:"user_id"`
	UserName       string `json:"user_name"`
}

// UserRoom 个人房间名
func UserRoom(userID uint64) string {
	return consts.RoomUserPrefix + strconv.FormatUint(userID, 10)
}

// ConversationRoom 会话房间名
func ConversationRoom(convID uint64) string {
	return consts.RoomConversationPrefix + strconv.FormatUint(convID, 10)
}
