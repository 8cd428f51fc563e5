package consts

const (
	UserSimpleInfoKey = "user:simple:info:"
	IMRoomKey         = "im:room:" // 实时广播总线频道前缀，后接房间名
)

const (
	DirectCreateLock = "lock:im:direct:"
)
