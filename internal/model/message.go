package model

import "time"

// Message 消息表
// 消息一经写入即不可变更，按 (conversation_id, created_at) 做游标分页，
// created_at 相同时以 id 次序决定先后。
type Message struct {
	ID             uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	ConversationID uint64    `gorm:"not null;index:idx_conv_created,priority:1" json:"conversationId"`
	SenderID       uint64    `gorm:"not null;index" json:"senderId"`
	Content        string    `gorm:"type:varchar(2000);not null" json:"content"`
	CreatedAt      time.Time `gorm:"index:idx_conv_created,priority:2" json:"createdAt"`
}

func (Message) TableName() string { return "messages" }
