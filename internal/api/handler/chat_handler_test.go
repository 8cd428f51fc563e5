package handler_test

import (
	"Mentora/internal/api/dto"
	"Mentora/internal/pkg/response"
	"bytes"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateDirectEnvelope(t *testing.T) {
	env := newTestEnv(t)

	// 新建返回 201 业务码
	resp := env.postJSON(t, 1, "/api/chat/direct", dto.CreateDirectReq{RecipientID: 2})
	assert.Equal(t, response.Created, resp.Code)

	var created dto.CreateDirectResp
	decodeData(t, resp, &created)
	assert.True(t, created.Created)
	require.NotNil(t, created.Conversation)
	assert.Len(t, created.Conversation.Members, 2)

	// 对端再次发起复用既有会话，返回 200 业务码
	resp = env.postJSON(t, 2, "/api/chat/direct", dto.CreateDirectReq{RecipientID: 1})
	assert.Equal(t, response.Ok, resp.Code)

	var reused dto.CreateDirectResp
	decodeData(t, resp, &reused)
	assert.False(t, reused.Created)
	assert.Equal(t, created.Conversation.ConversationID, reused.Conversation.ConversationID)
}

func TestCreateDirectSelfRejected(t *testing.T) {
	env := newTestEnv(t)

	resp := env.postJSON(t, 1, "/api/chat/direct", dto.CreateDirectReq{RecipientID: 1})
	assert.Equal(t, response.BadRequest, resp.Code)
}

func TestSendMessageForbiddenForNonMember(t *testing.T) {
	env := newTestEnv(t)

	resp := env.postJSON(t, 1, "/api/chat/direct", dto.CreateDirectReq{RecipientID: 2})
	var created dto.CreateDirectResp
	decodeData(t, resp, &created)

	resp = env.postJSON(t, 3, "/api/chat/send", dto.SendMessageReq{
		ConversationID: created.Conversation.ConversationID,
		Content:        "我也想看看",
	})
	assert.Equal(t, response.Forbidden, resp.Code)
}

func TestSendMessageMalformedBody(t *testing.T) {
	env := newTestEnv(t)

	req, err := http.NewRequest(http.MethodPost, env.srv.URL+"/api/chat/send", bytes.NewReader([]byte("{not json")))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+env.token(t, 1))

	resp := env.do(t, req)
	assert.Equal(t, response.BadRequest, resp.Code)
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t)

	req, err := http.NewRequest(http.MethodGet, env.srv.URL+"/api/chat/list", nil)
	require.NoError(t, err)

	resp := env.do(t, req)
	assert.Equal(t, response.Unauthorized, resp.Code)
}

func TestChatHistoryOverHTTP(t *testing.T) {
	env := newTestEnv(t)

	resp := env.postJSON(t, 1, "/api/chat/direct", dto.CreateDirectReq{RecipientID: 2})
	var created dto.CreateDirectResp
	decodeData(t, resp, &created)
	convID := created.Conversation.ConversationID

	for i := 0; i < 5; i++ {
		resp = env.postJSON(t, 1, "/api/chat/send", dto.SendMessageReq{ConversationID: convID, Content: fmt.Sprintf("第%d条", i)})
		require.Equal(t, response.Created, resp.Code)
	}

	resp = env.getJSON(t, 2, fmt.Sprintf("/api/chat/history?conversation_id=%d&limit=3", convID))
	require.Equal(t, response.Ok, resp.Code)

	var page dto.ChatHistoryDTO
	decodeData(t, resp, &page)
	require.Len(t, page.Messages, 3)
	assert.True(t, page.HasMore)
	assert.Equal(t, "第4条", page.Messages[2].Content)

	// 用上一页最旧一条作为游标翻页
	oldest := page.Messages[0]
	resp = env.getJSON(t, 2, fmt.Sprintf("/api/chat/history?conversation_id=%d&limit=3&before=%d&before_id=%d",
		convID, oldest.CreatedAtMs, oldest.ID))
	require.Equal(t, response.Ok, resp.Code)

	decodeData(t, resp, &page)
	require.Len(t, page.Messages, 2)
	assert.False(t, page.HasMore)
	assert.Equal(t, "第0条", page.Messages[0].Content)

	// 非成员拉历史直接拒绝
	resp = env.getJSON(t, 3, fmt.Sprintf("/api/chat/history?conversation_id=%d", convID))
	assert.Equal(t, response.Forbidden, resp.Code)
}

func TestConversationListOverHTTP(t *testing.T) {
	env := newTestEnv(t)

	resp := env.postJSON(t, 1, "/api/chat/direct", dto.CreateDirectReq{RecipientID: 2})
	require.Equal(t, response.Created, resp.Code)
	resp = env.postJSON(t, 1, "/api/chat/group", dto.CreateGroupReq{Name: "摸鱼群", MemberIDs: []uint64{2, 3}})
	require.Equal(t, response.Created, resp.Code)

	resp = env.getJSON(t, 1, "/api/chat/list")
	require.Equal(t, response.Ok, resp.Code)

	var list []*dto.ConversationDTO
	decodeData(t, resp, &list)
	require.Len(t, list, 2)

	// 最近创建的群聊排在前面
	assert.Equal(t, "摸鱼群", list[0].Name)
	assert.Len(t, list[0].Members, 3)
}
