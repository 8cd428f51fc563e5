package handler

import (
	"Mentora/internal/api/dto"
	"Mentora/internal/pkg/realtime"
	"Mentora/internal/pkg/response"
	"Mentora/internal/pkg/security"
	"Mentora/internal/service"
	log "log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type WsHandler struct {
	hub         *realtime.Hub
	chatService service.ChatService
}

func NewWsHandler(hub *realtime.Hub, chat service.ChatService) *WsHandler {
	return &WsHandler{hub: hub, chatService: chat}
}

// Connect Websocket 接入点
// 连接建立后自动加入个人房间；会话房间需要客户端显式 join 并通过成员校验。
func (s *WsHandler) Connect(c *gin.Context) {
	// 鉴权：浏览器 Websocket 不便携带自定义头，token 走查询参数
	token := c.Query("token")
	if token == "" {
		response.Error(c, service.UnauthorizedError)
		return
	}
	claims, err := security.ValidateToken(token)
	if err != nil {
		log.Warn("WS 鉴权失败", "err", err)
		response.Error(c, service.UnauthorizedError)
		return
	}
	userID := claims.UserID

	// 升级 Websocket
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WS 协议升级失败", "err", err)
		return
	}

	conn := realtime.NewConnection(userID, ws)
	s.hub.Register(conn)
	conn.Start()
	s.hub.Join(conn, realtime.UserRoom(userID))

	log.Info("用户 WS 连接已建立", "user_id", userID, "conn_id", conn.ID)

	defer func() {
		s.hub.Unregister(conn)
		log.Info("用户 WS 连接已断开", "user_id", userID, "conn_id", conn.ID)
	}()

	// 读循环：消费客户端上行事件直到连接断开
	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			return
		}

		var evt realtime.ClientEvent
		if err = json.Unmarshal(raw, &evt); err != nil {
			log.Warn("WS 上行事件解析失败", "user_id", userID, "err", err)
			continue
		}
		s.dispatch(c, conn, &evt)
	}
}

// dispatch 处理单条上行事件，非法事件静默丢弃
func (s *WsHandler) dispatch(c *gin.Context, conn *realtime.Connection, evt *realtime.ClientEvent) {
	switch evt.Type {
	case realtime.EventJoinUser:
		// 注册时已自动入场，重复 join 幂等
		s.hub.Join(conn, realtime.UserRoom(conn.UserID))

	case realtime.EventJoinConversation:
		ok, err := s.chatService.IsParticipant(c.Request.Context(), evt.ConversationID, conn.UserID)
		if err != nil {
			log.Error("WS 成员校验失败", "conversation_id", evt.ConversationID, "err", err)
			return
		}
		if !ok {
			log.Warn("WS 拒绝加入会话房间", "user_id", conn.UserID, "conversation_id", evt.ConversationID)
			return
		}
		s.hub.Join(conn, realtime.ConversationRoom(evt.ConversationID))

	case realtime.EventLeaveConversation:
		s.hub.Leave(conn, realtime.ConversationRoom(evt.ConversationID))

	case realtime.EventTyping, realtime.EventStopTyping:
		s.relayTyping(c, conn, evt)

	default:
		log.Warn("WS 未知上行事件", "type", evt.Type, "user_id", conn.UserID)
	}
}

// relayTyping 转发输入状态给会话内其他连接
// 瞬态事件：不落库，发送者身份以鉴权结果为准。
func (s *WsHandler) relayTyping(c *gin.Context, conn *realtime.Connection, evt *realtime.ClientEvent) {
	ok, err := s.chatService.IsParticipant(c.Request.Context(), evt.ConversationID, conn.UserID)
	if err != nil || !ok {
		return
	}

	payload := &realtime.Event{
		Type: evt.Type,
		Data: &dto.TypingDTO{
			ConversationID: evt.ConversationID,
			UserID:         conn.UserID,
			UserName:       evt.UserName,
		},
	}
	if err = s.hub.BroadcastExcept(c.Request.Context(), realtime.ConversationRoom(evt.ConversationID), conn.ID, payload); err != nil {
		log.Warn("输入状态转发失败", "conversation_id", evt.ConversationID, "err", err)
	}
}
