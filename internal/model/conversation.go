package model

import "time"

const (
	// ConversationTypeDirect 单聊：恰好两名成员，首次互发时自动创建
	ConversationTypeDirect int8 = 1
	// ConversationTypeGroup 群聊：显式创建，必须有群名称
	ConversationTypeGroup int8 = 2
)

// Conversation 会话主表
type Conversation struct {
	ID             uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Type           int8      `gorm:"not null;default:1" json:"type"`                       // 1-单聊, 2-群聊
	Name           string    `gorm:"type:varchar(100)" json:"name"`                        // 群聊名称，单聊为空
	PeerKey        *string   `gorm:"uniqueIndex;type:varchar(64)" json:"peerKey,omitempty"` // 单聊 uid1_uid2 (小号在前)，群聊为 NULL
	LastMsgContent string    `gorm:"type:varchar(255)" json:"lastMsgContent"`
	LastSenderID   uint64    `gorm:"not null;default:0" json:"lastSenderId"`
	LastMessageAt  time.Time `gorm:"index" json:"lastMessageAt"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `gorm:"index" json:"updatedAt"` // 随每条新消息刷新，用于收件箱排序
}

func (Conversation) TableName() string { return "conversations" }

// ConversationMember 会话成员表
type ConversationMember struct {
	ID             uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ConversationID uint64     `gorm:"uniqueIndex:idx_conv_user" json:"conversationId"`
	UserID         uint64     `gorm:"uniqueIndex:idx_conv_user;index" json:"userId"`
	JoinedAt       time.Time  `json:"joinedAt"`
	LastReadAt     *time.Time `json:"lastReadAt"` // 预留：已读回执

	Conversation Conversation `gorm:"foreignKey:ConversationID;references:ID" json:"conversation"`
}

func (ConversationMember) TableName() string { return "conversation_members" }
