package model

import "time"

// User 用户主表（本服务只读，账号体系由用户中心维护）
type User struct {
	ID        uint64 `gorm:"primaryKey"`
	IsBan     bool   `gorm:"type:tinyint(1);default:0"`
	IsDelete  bool   `gorm:"type:tinyint(1);default:0"`
	CreatedAt time.Time
	UpdatedAt time.Time

	UserDetail UserDetail `gorm:"foreignKey:UserID;references:ID"`
}

func (User) TableName() string { return "users" }

// UserDetail 用户展示信息，用于消息与会话名册的发送者补全
type UserDetail struct {
	UserID    uint64 `gorm:"primaryKey"`
	Nickname  string `gorm:"type:varchar(50);not null"`
	AvatarURL string `gorm:"type:varchar(512);column:avatar_url;default:'default_avatar.png'"`
}

func (UserDetail) TableName() string { return "user_detail" }
