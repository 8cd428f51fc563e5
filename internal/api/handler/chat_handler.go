package handler

import (
	"Mentora/internal/api/dto"
	"Mentora/internal/pkg/response"
	"Mentora/internal/service"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

type ChatHandler struct {
	chatService service.ChatService
}

func NewChatHandler(chatService service.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

// CreateDirect 发起单聊接口
// 复用既有会话返回 200 业务码，新建返回 201 业务码
func (s *ChatHandler) CreateDirect(c *gin.Context) {
	var req dto.CreateDirectReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}

	// 从 Context 中获取中间件解析出的当前用户 ID
	userID := c.GetUint64("user_id")

	conv, created, err := s.chatService.GetOrCreateDirectConversation(c, userID, req.RecipientID)
	if err != nil {
		response.Error(c, err)
		return
	}

	res := &dto.CreateDirectResp{Conversation: conv, Created: created}
	if created {
		response.SuccessCreated(c, res)
		return
	}
	response.Success(c, res)
}

// CreateGroup 创建群聊接口
func (s *ChatHandler) CreateGroup(c *gin.Context) {
	var req dto.CreateGroupReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}

	userID := c.GetUint64("user_id")

	res, err := s.chatService.CreateGroupConversation(c, userID, &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessCreated(c, res)
}

// GetConversationList 获取会话列表
func (s *ChatHandler) GetConversationList(c *gin.Context) {
	userID := c.GetUint64("user_id")

	res, err := s.chatService.GetConversationList(c, userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// SendMessage 发送消息接口
func (s *ChatHandler) SendMessage(c *gin.Context) {
	var req dto.SendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}

	userID := c.GetUint64("user_id")

	res, err := s.chatService.SendMessage(c, userID, &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessCreated(c, res)
}

// GetChatHistory 获取历史消息
// before 为上一页最旧一条消息的毫秒时间戳，配合 before_id 消歧；首页不传
func (s *ChatHandler) GetChatHistory(c *gin.Context) {
	convID, _ := strconv.ParseUint(c.Query("conversation_id"), 10, 64)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	beforeMs, _ := strconv.ParseInt(c.Query("before"), 10, 64)
	beforeID, _ := strconv.ParseUint(c.Query("before_id"), 10, 64)

	userID := c.GetUint64("user_id")

	q := &dto.HistoryQuery{Limit: limit, BeforeID: beforeID}
	if beforeMs > 0 {
		q.Before = time.UnixMilli(beforeMs)
	}

	res, err := s.chatService.GetChatHistory(c, userID, convID, q)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}
