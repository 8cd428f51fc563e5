package consts

const (
	// RoomUserPrefix 个人房间：连接建立后加入，接收会话外的带外通知
	RoomUserPrefix = "user:"
	// RoomConversationPrefix 会话房间：客户端打开会话视图时显式加入
	RoomConversationPrefix = "conversation:"
)

const (
	DefaultAvatarURL = "default_avatar.png"
)
