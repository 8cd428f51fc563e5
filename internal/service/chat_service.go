package service

import (
	"Mentora/internal/api/dto"
	"Mentora/internal/model"
	"Mentora/internal/pkg/consts"
	"Mentora/internal/pkg/kafka"
	"Mentora/internal/pkg/mongo"
	"Mentora/internal/pkg/realtime"
	"Mentora/internal/pkg/redis"
	"Mentora/internal/repository"
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"gorm.io/gorm"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 100
	previewMaxLen       = 255
	userBriefCacheTTL   = 10 * time.Minute
	sideEffectTimeout   = 3 * time.Second
)

// ChatService 会话与消息服务接口定义
type ChatService interface {
	GetOrCreateDirectConversation(ctx context.Context, userID, targetUserID uint64) (*dto.ConversationDTO, bool, error)
	CreateGroupConversation(ctx context.Context, creatorID uint64, req *dto.CreateGroupReq) (*dto.ConversationDTO, error)
	GetConversationList(ctx context.Context, userID uint64) ([]*dto.ConversationDTO, error)
	SendMessage(ctx context.Context, senderID uint64, req *dto.SendMessageReq) (*dto.MessageDTO, error)
	GetChatHistory(ctx context.Context, userID, convID uint64, q *dto.HistoryQuery) (*dto.ChatHistoryDTO, error)
	IsParticipant(ctx context.Context, convID, userID uint64) (bool, error)
}

type chatServiceImpl struct {
	convRepo   repository.ConversationRepo
	msgRepo    repository.MessageRepo
	userRepo   repository.UserRepo
	hub        *realtime.Hub
	sysBoxRepo mongo.SysBoxRepo    // 可为 nil：关闭持久化通知
	producer   kafka.EventProducer // 可为 nil：关闭域事件投递
}

func NewChatService(
	convRepo repository.ConversationRepo,
	msgRepo repository.MessageRepo,
	userRepo repository.UserRepo,
	hub *realtime.Hub,
	sysBoxRepo mongo.SysBoxRepo,
	producer kafka.EventProducer,
) ChatService {
	return &chatServiceImpl{
		convRepo:   convRepo,
		msgRepo:    msgRepo,
		userRepo:   userRepo,
		hub:        hub,
		sysBoxRepo: sysBoxRepo,
		producer:   producer,
	}
}

// directPeerKey 规范化单聊标识：小号在前，保证无序对唯一
func directPeerKey(userA, userB uint64) string {
	if userA < userB {
		return fmt.Sprintf("%d_%d", userA, userB)
	}
	return fmt.Sprintf("%d_%d", userB, userA)
}

// GetOrCreateDirectConversation 获取或创建单聊会话
// 并发去重依赖 peer_key 唯一索引：创建输掉竞争时回读既有会话，
// 对调用方表现为复用成功而非冲突错误。
func (s *chatServiceImpl) GetOrCreateDirectConversation(ctx context.Context, userID, targetUserID uint64) (*dto.ConversationDTO, bool, error) {
	if userID == 0 || targetUserID == 0 {
		return nil, false, ErrParamInvalid
	}
	if userID == targetUserID {
		return nil, false, ErrSelfConversation
	}

	peerKey := directPeerKey(userID, targetUserID)

	conv, err := s.convRepo.GetDirectByPeerKey(ctx, peerKey)
	if err == nil {
		d, derr := s.verifyDirect(ctx, conv)
		return d, false, derr
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	// 同进程外的并发创建先用分布式锁收敛一轮，锁不可用时直接落到唯一索引兜底
	if redis.GetRdbClient() != nil {
		lockKey := consts.DirectCreateLock + peerKey
		locked, _ := redis.TryLock(ctx, lockKey, userID, 3*time.Second, 3)
		if locked {
			defer redis.UnLock(ctx, lockKey, userID)
			if conv, err = s.convRepo.GetDirectByPeerKey(ctx, peerKey); err == nil {
				d, derr := s.verifyDirect(ctx, conv)
				return d, false, derr
			}
		}
	}

	now := time.Now()
	newConv := &model.Conversation{
		Type:          model.ConversationTypeDirect,
		PeerKey:       &peerKey,
		LastMessageAt: now,
	}
	members := []*model.ConversationMember{
		{UserID: userID, JoinedAt: now},
		{UserID: targetUserID, JoinedAt: now},
	}

	if err = s.convRepo.CreateConversation(ctx, newConv, members); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			existing, rerr := s.convRepo.GetDirectByPeerKey(ctx, peerKey)
			if rerr == nil {
				d, derr := s.buildConversationDTO(ctx, existing, nil)
				return d, false, derr
			}
		}
		return nil, false, err
	}

	d, err := s.buildConversationDTO(ctx, newConv, members)
	return d, true, err
}

// verifyDirect 去重命中后的防御性校验：单聊必须恰好两名成员
func (s *chatServiceImpl) verifyDirect(ctx context.Context, conv *model.Conversation) (*dto.ConversationDTO, error) {
	count, err := s.convRepo.CountMembers(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	if count != 2 {
		log.Warn("单聊会话成员数异常", "conversation_id", conv.ID, "count", count)
		return nil, ErrConversationInvalid
	}
	return s.buildConversationDTO(ctx, conv, nil)
}

// CreateGroupConversation 创建群聊会话
// 成员集合 = {创建者} ∪ 指定成员（去重）。推送、持久化通知与域事件
// 均为尽力而为，任何一项失败都不影响创建结果。
func (s *chatServiceImpl) CreateGroupConversation(ctx context.Context, creatorID uint64, req *dto.CreateGroupReq) (*dto.ConversationDTO, error) {
	if creatorID == 0 {
		return nil, ErrParamInvalid
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, ErrGroupNameEmpty
	}
	if len(req.MemberIDs) == 0 {
		return nil, ErrGroupMembersEmpty
	}

	memberIDs := []uint64{creatorID}
	seen := map[uint64]struct{}{creatorID: {}}
	for _, id := range req.MemberIDs {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		memberIDs = append(memberIDs, id)
	}

	now := time.Now()
	conv := &model.Conversation{
		Type:          model.ConversationTypeGroup,
		Name:          name,
		LastMessageAt: now,
	}
	members := make([]*model.ConversationMember, 0, len(memberIDs))
	for _, id := range memberIDs {
		members = append(members, &model.ConversationMember{UserID: id, JoinedAt: now})
	}

	if err := s.convRepo.CreateConversation(ctx, conv, members); err != nil {
		return nil, err
	}

	d, err := s.buildConversationDTO(ctx, conv, members)
	if err != nil {
		return nil, err
	}

	s.notifyNewConversation(creatorID, d)

	return d, nil
}

// notifyNewConversation 向每个成员的个人房间推送新会话事件并落库邀请通知
func (s *chatServiceImpl) notifyNewConversation(creatorID uint64, d *dto.ConversationDTO) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
		defer cancel()

		evt := &realtime.Event{Type: realtime.EventNewConversation, Data: d}
		for _, m := range d.Members {
			if err := s.hub.Broadcast(ctx, realtime.UserRoom(m.UserID), evt); err != nil {
				log.Warn("新会话推送失败", "user_id", m.UserID, "err", err)
			}
		}

		if s.sysBoxRepo != nil {
			for _, m := range d.Members {
				if m.UserID == creatorID {
					continue
				}
				notice := &mongo.SysBoxModel{
					ReceiverID: m.UserID,
					SenderID:   creatorID,
					Type:       mongo.SysBoxTypeGroupInvite,
					TargetID:   d.ConversationID,
					Content:    d.Name,
					CreatedAt:  time.Now(),
				}
				if err := s.sysBoxRepo.CreateNotification(ctx, notice); err != nil {
					log.Warn("群聊邀请通知落库失败", "user_id", m.UserID, "err", err)
				}
			}
		}

		if s.producer != nil {
			s.producer.Emit(&kafka.ChatEvent{
				Type:           kafka.EventConversationCreated,
				ConversationID: d.ConversationID,
				SenderID:       creatorID,
				OccurredAt:     time.Now(),
			})
		}
	}()
}

// SendMessage 发送消息
// 校验在任何写入之前完成；落库成功后的实时推送是可接受的降级项，
// 推送失败只记录日志，消息本身已持久化。
func (s *chatServiceImpl) SendMessage(ctx context.Context, senderID uint64, req *dto.SendMessageReq) (*dto.MessageDTO, error) {
	if senderID == 0 || req.ConversationID == 0 {
		return nil, ErrParamInvalid
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, ErrMessageEmpty
	}

	isMember, err := s.convRepo.IsMember(ctx, req.ConversationID, senderID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, ErrNotMember
	}

	msg := &model.Message{
		ConversationID: req.ConversationID,
		SenderID:       senderID,
		Content:        content,
		CreatedAt:      time.Now(),
	}

	if err = s.msgRepo.Append(ctx, msg, truncatePreview(content)); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}

	d := s.toMessageDTO(msg)
	if briefs, berr := s.loadUserBriefs(ctx, []uint64{senderID}); berr == nil {
		d.Sender = briefs[senderID]
	}

	s.broadcastNewMessage(d)

	if s.producer != nil {
		s.producer.Emit(&kafka.ChatEvent{
			Type:           kafka.EventMessageSent,
			ConversationID: msg.ConversationID,
			SenderID:       senderID,
			OccurredAt:     msg.CreatedAt,
		})
	}

	return d, nil
}

// broadcastNewMessage 推送到会话房间，发送者的其他在线设备一并收到
func (s *chatServiceImpl) broadcastNewMessage(d *dto.MessageDTO) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
		defer cancel()

		evt := &realtime.Event{Type: realtime.EventNewMessage, Data: d}
		if err := s.hub.Broadcast(ctx, realtime.ConversationRoom(d.ConversationID), evt); err != nil {
			log.Warn("消息推送失败", "conversation_id", d.ConversationID, "err", err)
		}
	}()
}

// GetChatHistory 游标分页拉取历史消息，返回时间正序
func (s *chatServiceImpl) GetChatHistory(ctx context.Context, userID, convID uint64, q *dto.HistoryQuery) (*dto.ChatHistoryDTO, error) {
	if userID == 0 || convID == 0 {
		return nil, ErrParamInvalid
	}

	isMember, err := s.convRepo.IsMember(ctx, convID, userID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, ErrNotMember
	}

	limit := q.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	messages, err := s.msgRepo.ListBefore(ctx, convID, q.Before, q.BeforeID, limit)
	if err != nil {
		return nil, err
	}

	hasMore := len(messages) == limit

	// 查询按时间倒序，这里反转为正序返回
	res := make([]*dto.MessageDTO, len(messages))
	senderIDs := make([]uint64, 0, len(messages))
	for i, m := range messages {
		res[len(messages)-1-i] = s.toMessageDTO(m)
		senderIDs = append(senderIDs, m.SenderID)
	}

	briefs, err := s.loadUserBriefs(ctx, senderIDs)
	if err != nil {
		return nil, err
	}
	for _, d := range res {
		d.Sender = briefs[d.SenderID]
	}

	return &dto.ChatHistoryDTO{Messages: res, HasMore: hasMore}, nil
}

// GetConversationList 获取会话列表，按最近活跃排序并附带成员名册
func (s *chatServiceImpl) GetConversationList(ctx context.Context, userID uint64) ([]*dto.ConversationDTO, error) {
	if userID == 0 {
		return nil, ErrParamInvalid
	}

	memberships, err := s.convRepo.GetUserConversations(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(memberships) == 0 {
		return []*dto.ConversationDTO{}, nil
	}

	convIDs := make([]uint64, 0, len(memberships))
	for _, m := range memberships {
		convIDs = append(convIDs, m.ConversationID)
	}

	rosterRows, err := s.convRepo.GetMembers(ctx, convIDs)
	if err != nil {
		return nil, err
	}

	rosterByConv := make(map[uint64][]uint64, len(convIDs))
	allUserIDs := make([]uint64, 0, len(rosterRows))
	for _, r := range rosterRows {
		rosterByConv[r.ConversationID] = append(rosterByConv[r.ConversationID], r.UserID)
		allUserIDs = append(allUserIDs, r.UserID)
	}

	briefs, err := s.loadUserBriefs(ctx, allUserIDs)
	if err != nil {
		return nil, err
	}

	res := make([]*dto.ConversationDTO, 0, len(memberships))
	for _, m := range memberships {
		conv := m.Conversation
		d := &dto.ConversationDTO{
			ConversationID: m.ConversationID,
			Type:           conv.Type,
			Name:           conv.Name,
			LastMsgContent: conv.LastMsgContent,
			LastSenderID:   conv.LastSenderID,
			LastMessageAt:  conv.LastMessageAt,
			UpdatedAt:      conv.UpdatedAt,
		}
		for _, uid := range rosterByConv[m.ConversationID] {
			d.Members = append(d.Members, briefs[uid])
		}
		res = append(res, d)
	}
	return res, nil
}

// IsParticipant 会话成员资格检查，所有会话级操作的统一门禁
func (s *chatServiceImpl) IsParticipant(ctx context.Context, convID, userID uint64) (bool, error) {
	if convID == 0 || userID == 0 {
		return false, nil
	}
	return s.convRepo.IsMember(ctx, convID, userID)
}

// buildConversationDTO 装配会话响应；members 为 nil 时从库中补查名册
func (s *chatServiceImpl) buildConversationDTO(ctx context.Context, conv *model.Conversation, members []*model.ConversationMember) (*dto.ConversationDTO, error) {
	if members == nil {
		rows, err := s.convRepo.GetMembers(ctx, []uint64{conv.ID})
		if err != nil {
			return nil, err
		}
		members = rows
	}

	userIDs := make([]uint64, 0, len(members))
	for _, m := range members {
		userIDs = append(userIDs, m.UserID)
	}
	briefs, err := s.loadUserBriefs(ctx, userIDs)
	if err != nil {
		return nil, err
	}

	d := &dto.ConversationDTO{
		ConversationID: conv.ID,
		Type:           conv.Type,
		Name:           conv.Name,
		LastMsgContent: conv.LastMsgContent,
		LastSenderID:   conv.LastSenderID,
		LastMessageAt:  conv.LastMessageAt,
		UpdatedAt:      conv.UpdatedAt,
	}
	for _, uid := range userIDs {
		d.Members = append(d.Members, briefs[uid])
	}
	return d, nil
}

// loadUserBriefs 批量补全用户摘要，优先命中 Redis 缓存
func (s *chatServiceImpl) loadUserBriefs(ctx context.Context, ids []uint64) (map[uint64]*dto.UserBriefDTO, error) {
	res := make(map[uint64]*dto.UserBriefDTO, len(ids))
	useCache := redis.GetRdbClient() != nil

	missing := make([]uint64, 0, len(ids))
	for _, id := range ids {
		if _, ok := res[id]; ok {
			continue
		}
		if useCache {
			raw, err := redis.GetValue(ctx, consts.UserSimpleInfoKey+strconv.FormatUint(id, 10))
			if err == nil && raw != "" {
				var b dto.UserBriefDTO
				if json.Unmarshal([]byte(raw), &b) == nil {
					res[id] = &b
					continue
				}
			}
		}
		missing = append(missing, id)
	}

	if len(missing) > 0 {
		users, err := s.userRepo.GetUserSimpleInfoByIds(ctx, missing)
		if err != nil {
			return nil, err
		}
		for _, u := range users {
			b := &dto.UserBriefDTO{UserID: u.UserID, Nickname: u.Nickname, AvatarURL: u.AvatarURL}
			res[u.UserID] = b
			if useCache {
				data, _ := json.Marshal(b)
				_ = redis.SetWithExpiration(ctx, consts.UserSimpleInfoKey+strconv.FormatUint(u.UserID, 10), data, userBriefCacheTTL)
			}
		}
	}

	// 查不到详情的用户给占位摘要，避免前端拿到空指针
	for _, id := range ids {
		if _, ok := res[id]; !ok {
			res[id] = &dto.UserBriefDTO{UserID: id, AvatarURL: consts.DefaultAvatarURL}
		}
	}
	return res, nil
}

func (s *chatServiceImpl) toMessageDTO(m *model.Message) *dto.MessageDTO {
	return &dto.MessageDTO{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Content:        m.Content,
		CreatedAt:      m.CreatedAt,
		CreatedAtMs:    m.CreatedAt.UnixMilli(),
	}
}

func truncatePreview(content string) string {
	runes := []rune(content)
	if len(runes) <= previewMaxLen {
		return content
	}
	return string(runes[:previewMaxLen])
}
