package dto

// SysBoxDTO 系统通知列表项
type SysBoxDTO struct {
	ID         string `json:"id"`
	SenderID   uint64 `json:"sender_id"`
	SenderName string `json:"sender_name"`
	AvatarURL  string `json:"avatar_url"`
	Type       int8   `json:"type"`
	TargetID   uint64 `json:"target_id"`
	Content    string `json:"content"`
	IsRead     bool   `json:"is_read"`
	CreatedAt  string `json:"created_at"`
}

// SysBoxUnreadDTO 未读数响应
type SysBoxUnreadDTO struct {
	UnreadCount int64 `json:"unread_count"`
}
