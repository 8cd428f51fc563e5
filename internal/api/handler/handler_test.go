package handler_test

import (
	"Mentora/internal/api"
	"Mentora/internal/api/config"
	"Mentora/internal/api/handler"
	"Mentora/internal/api/dto"
	"Mentora/internal/model"
	"Mentora/internal/pkg/realtime"
	"Mentora/internal/pkg/security"
	"Mentora/internal/service"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	config.Cfg = &config.Config{}
	os.Exit(m.Run())
}

// memConvRepo 接口层测试用的内存会话存储
type memConvRepo struct {
	mu       sync.Mutex
	nextID   uint64
	convs    map[uint64]*model.Conversation
	members  map[uint64][]*model.ConversationMember
	peerKeys map[string]uint64
}

func (s *memConvRepo) CreateConversation(_ context.Context, conv *model.Conversation, members []*model.ConversationMember) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conv.PeerKey != nil {
		if _, ok := s.peerKeys[*conv.PeerKey]; ok {
			return gorm.ErrDuplicatedKey
		}
	}
	s.nextID++
	conv.ID = s.nextID
	if conv.UpdatedAt.IsZero() {
		conv.UpdatedAt = time.Now()
	}
	stored := *conv
	s.convs[conv.ID] = &stored
	if conv.PeerKey != nil {
		s.peerKeys[*conv.PeerKey] = conv.ID
	}
	for _, m := range members {
		m.ConversationID = conv.ID
		row := *m
		s.members[conv.ID] = append(s.members[conv.ID], &row)
	}
	return nil
}

func (s *memConvRepo) GetConversation(_ context.Context, convID uint64) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.convs[convID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	c := *conv
	return &c, nil
}

func (s *memConvRepo) GetDirectByPeerKey(_ context.Context, peerKey string) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.peerKeys[peerKey]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	c := *s.convs[id]
	return &c, nil
}

func (s *memConvRepo) IsMember(_ context.Context, convID uint64, userID uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.members[convID] {
		if m.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (s *memConvRepo) CountMembers(_ context.Context, convID uint64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.members[convID])), nil
}

func (s *memConvRepo) GetMembers(_ context.Context, convIDs []uint64) ([]*model.ConversationMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []*model.ConversationMember
	for _, id := range convIDs {
		for _, m := range s.members[id] {
			row := *m
			res = append(res, &row)
		}
	}
	return res, nil
}

func (s *memConvRepo) GetUserConversations(_ context.Context, userID uint64) ([]*model.ConversationMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []*model.ConversationMember
	for convID, rows := range s.members {
		for _, m := range rows {
			if m.UserID != userID {
				continue
			}
			row := *m
			row.Conversation = *s.convs[convID]
			res = append(res, &row)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].Conversation.UpdatedAt.After(res[j].Conversation.UpdatedAt)
	})
	return res, nil
}

type memMsgRepo struct {
	mu     sync.Mutex
	nextID uint64
	msgs   []*model.Message
	convs  *memConvRepo
}

func (s *memMsgRepo) Append(_ context.Context, msg *model.Message, preview string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.convs.mu.Lock()
	defer s.convs.mu.Unlock()

	conv, ok := s.convs.convs[msg.ConversationID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	// 对齐 DATETIME(3) 的毫秒精度，游标按毫秒时间戳回传
	msg.CreatedAt = msg.CreatedAt.Truncate(time.Millisecond)
	s.nextID++
	msg.ID = s.nextID
	stored := *msg
	s.msgs = append(s.msgs, &stored)

	conv.LastMsgContent = preview
	conv.LastSenderID = msg.SenderID
	conv.LastMessageAt = msg.CreatedAt
	conv.UpdatedAt = msg.CreatedAt
	return nil
}

func (s *memMsgRepo) ListBefore(_ context.Context, convID uint64, before time.Time, beforeID uint64, limit int) ([]*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []*model.Message
	for _, m := range s.msgs {
		if m.ConversationID != convID {
			continue
		}
		if !before.IsZero() {
			older := m.CreatedAt.Before(before) ||
				(m.CreatedAt.Equal(before) && beforeID > 0 && m.ID < beforeID)
			if !older {
				continue
			}
		}
		row := *m
		res = append(res, &row)
	}
	sort.Slice(res, func(i, j int) bool {
		if !res[i].CreatedAt.Equal(res[j].CreatedAt) {
			return res[i].CreatedAt.After(res[j].CreatedAt)
		}
		return res[i].ID > res[j].ID
	})
	if len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

type memUserRepo struct{}

func (s *memUserRepo) GetUserSimpleInfoById(_ context.Context, id uint64) (*model.UserDetail, error) {
	return &model.UserDetail{UserID: id, Nickname: "测试用户", AvatarURL: "avatar.png"}, nil
}

func (s *memUserRepo) GetUserSimpleInfoByIds(_ context.Context, ids []uint64) ([]*model.UserDetail, error) {
	res := make([]*model.UserDetail, 0, len(ids))
	for _, id := range ids {
		res = append(res, &model.UserDetail{UserID: id, Nickname: "测试用户", AvatarURL: "avatar.png"})
	}
	return res, nil
}

// testEnv 起一个完整的 HTTP 服务：真实路由、中间件、服务层，存储层走内存实现
type testEnv struct {
	srv *httptest.Server
	hub *realtime.Hub
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	convRepo := &memConvRepo{
		convs:    make(map[uint64]*model.Conversation),
		members:  make(map[uint64][]*model.ConversationMember),
		peerKeys: make(map[string]uint64),
	}
	msgRepo := &memMsgRepo{convs: convRepo}

	hub := realtime.NewHub(nil)
	chatService := service.NewChatService(convRepo, msgRepo, &memUserRepo{}, hub, nil, nil)

	handlers := &api.HandlersGroup{
		ChatHandler:   handler.NewChatHandler(chatService),
		WsHandler:     handler.NewWsHandler(hub, chatService),
		SysBoxHandler: handler.NewSysBoxHandler(nil),
	}
	srv := httptest.NewServer(api.SetupRouter(handlers))
	t.Cleanup(srv.Close)

	return &testEnv{srv: srv, hub: hub}
}

func (e *testEnv) token(t *testing.T, userID uint64) string {
	t.Helper()
	token, err := security.GenerateToken(userID)
	require.NoError(t, err)
	return token
}

// postJSON 以指定用户身份发起请求并解析统一响应壳
func (e *testEnv) postJSON(t *testing.T, userID uint64, path string, body any) *dto.Response {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, e.srv.URL+path, bytes.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.token(t, userID))

	return e.do(t, req)
}

func (e *testEnv) getJSON(t *testing.T, userID uint64, path string) *dto.Response {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, e.srv.URL+path, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+e.token(t, userID))

	return e.do(t, req)
}

func (e *testEnv) do(t *testing.T, req *http.Request) *dto.Response {
	t.Helper()

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() {
		_ = resp.Body.Close()
	}()

	var envelope dto.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	return &envelope
}

// decodeData 把响应壳里的 data 再解一层到目标结构
func decodeData(t *testing.T, envelope *dto.Response, out any) {
	t.Helper()
	raw, err := json.Marshal(envelope.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, out))
}
