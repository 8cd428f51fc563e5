package mongo

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	// SysBoxTypeGroupInvite 被拉入群聊
	SysBoxTypeGroupInvite int8 = 1
)

// SysBoxModel 系统通知模型
// 实时推送之外的持久化兜底：离线用户上线后仍能看到群聊邀请。
type SysBoxModel struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ReceiverID uint64             `bson:"receiver_id" json:"receiverId"` // 消息接收者ID
	SenderID   uint64             `bson:"sender_id" json:"senderId"`     // 动作发起者ID (系统通知可为0)
	Type       int8               `bson:"type" json:"type"`              // 通知类型: 1-群聊邀请
	TargetID   uint64             `bson:"target_id" json:"targetId"`     // 关联的会话ID
	Content    string             `bson:"content" json:"content"`        // 通知文案预览
	IsRead     bool               `bson:"is_read" json:"isRead"`         // 是否已读
	CreatedAt  time.Time          `bson:"created_at" json:"createdAt"`   // 创建时间
}
