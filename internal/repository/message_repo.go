package repository

import (
	"Mentora/internal/model"
	"context"
	"time"

	"gorm.io/gorm"
)

type MessageRepo interface {
	Append(ctx context.Context, msg *model.Message, preview string) error
	ListBefore(ctx context.Context, convID uint64, before time.Time, beforeID uint64, limit int) ([]*model.Message, error)
}

type messageRepoImpl struct {
	db *gorm.DB
}

func NewMessageRepo(db *gorm.DB) MessageRepo {
	return &messageRepoImpl{db: db}
}

// Append 在一个事务内完成消息落库与会话预览/updated_at 的刷新
// 两者必须同生共死：任何一步失败则整体回滚，不留下半截消息。
func (s *messageRepoImpl) Append(ctx context.Context, msg *model.Message, preview string) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(msg).Error; err != nil {
			return err
		}

		result := tx.Model(&model.Conversation{}).
			Where("id = ?", msg.ConversationID).
			Updates(map[string]interface{}{
				"last_msg_content": preview,
				"last_sender_id":   msg.SenderID,
				"last_message_at":  msg.CreatedAt,
				"updated_at":       msg.CreatedAt, // 收件箱按 updated_at 排序
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

// ListBefore 游标式拉取历史消息
// 按 (created_at, id) 降序取 limit 条，created_at 相同用 id 消歧，
// 由服务层反转为时间正序。before 为零值表示从最新一条开始。
func (s *messageRepoImpl) ListBefore(ctx context.Context, convID uint64, before time.Time, beforeID uint64, limit int) ([]*model.Message, error) {
	q := s.db.WithContext(ctx).Where("conversation_id = ?", convID)

	if !before.IsZero() {
		if beforeID > 0 {
			q = q.Where("created_at < ? OR (created_at = ? AND id < ?)", before, before, beforeID)
		} else {
			q = q.Where("created_at < ?", before)
		}
	}

	var messages []*model.Message
	err := q.Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&messages).Error
	return messages, err
}
