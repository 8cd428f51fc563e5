package dto

// UserBriefDTO 用户摘要，用于消息发送者与名册展示
type UserBriefDTO struct {
	UserID    uint64 `json:"user_id"`
	Nickname  string `json:"nickname"`
	AvatarURL string `json:"avatar_url"`
}
