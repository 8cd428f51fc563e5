package realtime

import (
	"Mentora/internal/pkg/consts"
	"context"
	"errors"
	log "log/slog"
	"sync"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// envelope 跨实例转发的信封
// Origin 用于丢弃本实例发出又经 Redis 回流的消息，Exclude 只在源实例有意义。
type envelope struct {
	Origin  string          `json:"origin"`
	Room    string          `json:"room"`
	Exclude string          `json:"exclude,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// Hub 维护存活连接与房间的映射并执行广播
// 不感知任何持久化状态，只处理不透明的房间名与负载。
// rdb 为 nil 时退化为单实例本地投递（测试场景）。
type Hub struct {
	instanceID string
	rdb        *redis.Client

	mu        sync.RWMutex
	conns     map[string]*Connection
	rooms     map[string]map[string]*Connection
	connRooms map[string]map[string]struct{}
}

func NewHub(rdb *redis.Client) *Hub {
	return &Hub{
		instanceID: uuid.NewString(),
		rdb:        rdb,
		conns:      make(map[string]*Connection),
		rooms:      make(map[string]map[string]*Connection),
		connRooms:  make(map[string]map[string]struct{}),
	}
}

// Run 订阅 Redis 总线并将其他实例的广播回放到本地房间，阻塞直至 ctx 取消
func (h *Hub) Run(ctx context.Context) error {
	if h.rdb == nil {
		<-ctx.Done()
		return nil
	}

	pubsub := h.rdb.PSubscribe(ctx, consts.IMRoomKey+"*")
	defer func() {
		_ = pubsub.Close()
	}()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return errors.New("realtime bus subscription closed")
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				log.Warn("丢弃无法解析的总线消息", "channel", msg.Channel, "err", err)
				continue
			}
			if env.Origin == h.instanceID {
				continue
			}
			h.deliverLocal(env.Room, env.Payload, env.Exclude)
		}
	}
}

// Register 纳管一条新连接
func (h *Hub) Register(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.conns[conn.ID] = conn
	h.connRooms[conn.ID] = make(map[string]struct{})
}

// Unregister 摘除连接并静默退出其加入过的所有房间
// 对刚关闭连接的并发操作不报错，直接按无事发生处理。
func (h *Hub) Unregister(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for room := range h.connRooms[conn.ID] {
		h.leaveLocked(conn.ID, room)
	}
	delete(h.connRooms, conn.ID)
	delete(h.conns, conn.ID)
}

// Join 将连接加入房间，重复加入是幂等的
func (h *Hub) Join(conn *Connection, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[conn.ID]; !ok {
		return
	}

	members, ok := h.rooms[room]
	if !ok {
		members = make(map[string]*Connection)
		h.rooms[room] = members
	}
	members[conn.ID] = conn
	h.connRooms[conn.ID][room] = struct{}{}
}

// Leave 将连接移出房间，未加入过则为空操作
func (h *Hub) Leave(conn *Connection, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.leaveLocked(conn.ID, room)
	if set, ok := h.connRooms[conn.ID]; ok {
		delete(set, room)
	}
}

func (h *Hub) leaveLocked(connID, room string) {
	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

// Broadcast 向房间内所有连接广播事件，并镜像到 Redis 总线供其他实例回放
// 尽力而为：对单个连接的投递失败不重试，总线不可用时只保留本地投递。
func (h *Hub) Broadcast(ctx context.Context, room string, event *Event) error {
	return h.broadcast(ctx, room, "", event)
}

// BroadcastExcept 同 Broadcast，但跳过指定连接（正在输入事件不回显给发送者）
func (h *Hub) BroadcastExcept(ctx context.Context, room string, excludeConnID string, event *Event) error {
	return h.broadcast(ctx, room, excludeConnID, event)
}

func (h *Hub) broadcast(ctx context.Context, room string, exclude string, event *Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	h.deliverLocal(room, payload, exclude)

	if h.rdb == nil {
		return nil
	}

	env := &envelope{
		Origin:  h.instanceID,
		Room:    room,
		Exclude: exclude,
		Payload: payload,
	}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return h.rdb.Publish(ctx, consts.IMRoomKey+room, data).Err()
}

func (h *Hub) deliverLocal(room string, payload []byte, exclude string) {
	h.mu.RLock()
	members := make([]*Connection, 0, len(h.rooms[room]))
	for id, c := range h.rooms[room] {
		if id == exclude {
			continue
		}
		members = append(members, c)
	}
	h.mu.RUnlock()

	for _, c := range members {
		if err := c.Send(payload); err != nil {
			log.Debug("房间投递跳过失效连接", "room", room, "conn", c.ID)
		}
	}
}

// RoomSize 返回房间内的连接数
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}
