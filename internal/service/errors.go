package service

import (
	"errors"
)

const (
	BadRequest          = 400
	Unauthorized        = 401
	Forbidden           = 403
	NotFound            = 404
	InternalServerError = 500
)

var (
	ErrParamInvalid         = errors.New("参数错误")
	ErrSelfConversation     = errors.New("不能和自己创建会话")
	ErrGroupNameEmpty       = errors.New("群聊名称不能为空")
	ErrGroupMembersEmpty    = errors.New("群聊成员不能为空")
	ErrMessageEmpty         = errors.New("消息内容不能为空")
	ErrConversationInvalid  = errors.New("会话异常")
	ErrConversationNotFound = errors.New("会话不存在")
	ErrNotMember            = errors.New("不是会话成员")
	ErrSysBoxNotFound       = errors.New("系统通知不存在")
	UnauthorizedError       = errors.New("权限不足")
	UnExpectedError         = errors.New("系统异常，请稍后重试")
)

var ErrorMap = map[error]int{
	ErrParamInvalid:         BadRequest,
	ErrSelfConversation:     BadRequest,
	ErrGroupNameEmpty:       BadRequest,
	ErrGroupMembersEmpty:    BadRequest,
	ErrMessageEmpty:         BadRequest,
	ErrConversationInvalid:  BadRequest,
	ErrConversationNotFound: NotFound,
	ErrNotMember:            Forbidden,
	ErrSysBoxNotFound:       NotFound,
	UnauthorizedError:       Unauthorized,
	UnExpectedError:         InternalServerError,
}
