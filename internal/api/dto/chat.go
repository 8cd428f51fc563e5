package dto

import "time"

// CreateDirectReq 发起单聊请求体
type CreateDirectReq struct {
	RecipientID uint64 `json:"recipient_id" binding:"required"`
}

// CreateDirectResp 单聊创建/复用响应
// Created 用于区分新建 (201 语义) 与命中既有会话 (200 语义)
type CreateDirectResp struct {
	Conversation *ConversationDTO `json:"conversation"`
	Created      bool             `json:"created"`
}

// CreateGroupReq 创建群聊请求体
type CreateGroupReq struct {
	MemberIDs []uint64 `json:"member_ids" binding:"required"`
	Name      string   `json:"name" binding:"required"`
}

// SendMessageReq 发送消息请求体
type SendMessageReq struct {
	ConversationID uint64 `json:"conversation_id" binding:"required"`
	Content        string `json:"content" binding:"required"`
}

// HistoryQuery 历史消息游标
// Before/BeforeID 取上一页最旧一条消息的 created_at (毫秒时间戳) 与 id，
// 首页两者均传 0。
type HistoryQuery struct {
	Limit    int
	Before   time.Time
	BeforeID uint64
}

// MessageDTO 消息明细响应
type MessageDTO struct {
	ID             uint64        `json:"id"`
	ConversationID uint64        `json:"conversation_id"`
	SenderID       uint64        `json:"sender_id"`
	Content        string        `json:"content"`
	CreatedAt      time.Time     `json:"created_at"`
	CreatedAtMs    int64         `json:"created_at_ms"` // 游标回传用
	Sender         *UserBriefDTO `json:"sender,omitempty"`
}

// ChatHistoryDTO 历史消息分页响应，消息按时间正序排列
type ChatHistoryDTO struct {
	Messages []*MessageDTO `json:"messages"`
	HasMore  bool          `json:"has_more"`
}

// ConversationDTO 会话列表项响应
type ConversationDTO struct {
	ConversationID uint64          `json:"conversation_id"`
	Type           int8            `json:"type"` // 1-单聊, 2-群聊
	Name           string          `json:"name,omitempty"`
	Members        []*UserBriefDTO `json:"members"`
	LastMsgContent string          `json:"last_msg_content"`
	LastSenderID   uint64          `json:"last_sender_id"`
	LastMessageAt  time.Time       `json:"last_message_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// TypingDTO 正在输入事件负载
type TypingDTO struct {
	ConversationID uint64 `json:"conversation_id"`
	UserID         uint64 `json:"user_id"`
	UserName       string `json:"user_name"`
}
