package repository

import (
	"Mentora/internal/model"
	"context"
	"time"

	"gorm.io/gorm"
)

type ConversationRepo interface {
	CreateConversation(ctx context.Context, conv *model.Conversation, members []*model.ConversationMember) error
	GetConversation(ctx context.Context, convID uint64) (*model.Conversation, error)
	GetDirectByPeerKey(ctx context.Context, peerKey string) (*model.Conversation, error)
	IsMember(ctx context.Context, convID uint64, userID uint64) (bool, error)
	CountMembers(ctx context.Context, convID uint64) (int64, error)
	GetMembers(ctx context.Context, convIDs []uint64) ([]*model.ConversationMember, error)
	GetUserConversations(ctx context.Context, userID uint64) ([]*model.ConversationMember, error)
}

type conversationRepoImpl struct {
	db *gorm.DB
}

func NewConversationRepo(db *gorm.DB) ConversationRepo {
	return &conversationRepoImpl{db: db}
}

// CreateConversation 开启事务创建会话及初始成员
// 单聊的 peer_key 唯一索引在此处生效：并发重复创建会以
// gorm.ErrDuplicatedKey 失败，由调用方回读既有会话。
func (s *conversationRepoImpl) CreateConversation(ctx context.Context, conv *model.Conversation, members []*model.ConversationMember) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(conv).Error; err != nil {
			return err
		}
		for _, m := range members {
			m.ConversationID = conv.ID
			if m.JoinedAt.IsZero() {
				m.JoinedAt = time.Now()
			}
			if err := tx.Create(m).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// GetConversation 根据会话 ID 获取会话
func (s *conversationRepoImpl) GetConversation(ctx context.Context, convID uint64) (*model.Conversation, error) {
	var conv model.Conversation
	err := s.db.WithContext(ctx).First(&conv, convID).Error
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// GetDirectByPeerKey 根据规范化的单聊标识获取会话
func (s *conversationRepoImpl) GetDirectByPeerKey(ctx context.Context, peerKey string) (*model.Conversation, error) {
	var conv model.Conversation
	err := s.db.WithContext(ctx).
		Where("peer_key = ? AND type = ?", peerKey, model.ConversationTypeDirect).
		First(&conv).Error
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// IsMember 检查用户是否是会话成员
func (s *conversationRepoImpl) IsMember(ctx context.Context, convID uint64, userID uint64) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.ConversationMember{}).
		Where("conversation_id = ? AND user_id = ?", convID, userID).
		Count(&count).Error
	return count > 0, err
}

// CountMembers 统计会话成员数，用于单聊去重命中后的防御性校验
func (s *conversationRepoImpl) CountMembers(ctx context.Context, convID uint64) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.ConversationMember{}).
		Where("conversation_id = ?", convID).
		Count(&count).Error
	return count, err
}

// GetMembers 批量获取多个会话的成员行，用于名册装配
func (s *conversationRepoImpl) GetMembers(ctx context.Context, convIDs []uint64) ([]*model.ConversationMember, error) {
	if len(convIDs) == 0 {
		return nil, nil
	}
	var members []*model.ConversationMember
	err := s.db.WithContext(ctx).
		Where("conversation_id IN ?", convIDs).
		Order("joined_at ASC").
		Find(&members).Error
	return members, err
}

// GetUserConversations 联表查询用户的全部会话，按最近活跃排序
// 使用 Conversation__ 别名配合 GORM 的嵌套填充特性
func (s *conversationRepoImpl) GetUserConversations(ctx context.Context, userID uint64) ([]*model.ConversationMember, error) {
	var members []*model.ConversationMember
	err := s.db.WithContext(ctx).Table("conversation_members m").
		Select("m.*, "+
			"c.id AS `Conversation__id`, c.type AS `Conversation__type`, "+
			"c.name AS `Conversation__name`, "+
			"c.peer_key AS `Conversation__peer_key`, "+
			"c.last_msg_content AS `Conversation__last_msg_content`, "+
			"c.last_sender_id AS `Conversation__last_sender_id`, "+
			"c.last_message_at AS `Conversation__last_message_at`, "+
			"c.updated_at AS `Conversation__updated_at`").
		Joins("JOIN conversations c ON m.conversation_id = c.id").
		Where("m.user_id = ?", userID).
		Order("c.updated_at DESC").
		Find(&members).Error
	return members, err
}
