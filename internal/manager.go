package internal

import (
	"log/slog"
	"sync"
)

// 系統設計問題：
//   如何追蹤所有即時連接的房間歸屬，讓加入、離開、配對在併發下保持一致？
//
// 核心挑戰：
//   1. 讀寫共享：每個連接一個 goroutine，外加週期性的心跳掃描，全都碰同一份註冊表
//   2. 配對原子性：兩個連接同時加入同一房間，「加入並檢查人數是否到二」
//      必須在鎖內完成，否則兩邊都看到人數一、誰都不觸發（或都觸發）對局開始
//   3. 引用一致性：連接記錄的房間 ID 與房間的成員列表不能出現任一方向的懸掛引用
//
// 設計方案：
//   ✅ 單一粗粒度 RWMutex：房間數量少，粗鎖夠用且不會死鎖
//   ✅ 加入、離開、角色分配全在鎖內；訊息送出為非阻塞，鎖內送出不會卡住
//   ✅ 空房間在離開的同一個臨界區內移除，不留垃圾

// Manager 房間註冊表
//
// 擁有房間映射與連接索引，是整個服務唯一的共享可變狀態
// （快速配對槽位除外，見 Queue）。所有變更透過這裡的方法進行，
// 沒有全域狀態。
type Manager struct {
	rooms   map[string]*Room   // roomID -> Room
	clients map[string]*Client // connID -> Client（所有已註冊連接）
	mu      sync.RWMutex
	tokens  TokenSource
	logger  *slog.Logger
}

// NewManager 創建房間註冊表
func NewManager(tokens TokenSource, logger *slog.Logger) *Manager {
	return &Manager{
		rooms:   make(map[string]*Room),
		clients: make(map[string]*Client),
		tokens:  tokens,
		logger:  logger,
	}
}

// NewConnectionID 產生新的連接識別碼
func (m *Manager) NewConnectionID() string {
	return m.tokens.ConnectionID()
}

// Register 註冊連接並放入指定房間（未指定時為大廳）
//
// 連接會收到 hello_ack{id, room} 作為入場確認。
func (m *Manager) Register(c *Client, roomID string) {
	if roomID == "" {
		roomID = LobbyID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.clients[c.ID()] = c
	m.joinLocked(c, roomID, HelloAckMessage(c.ID(), roomID))

	m.logger.Info("連接已註冊",
		"conn_id", c.ID(),
		"room_id", roomID)
}

// Disconnect 移除連接
//
// 客戶端主動關閉與心跳逾時強制關閉走同一條路徑，
// 保證無論連接怎麼結束，房間與佇列狀態都一致。
func (m *Manager) Disconnect(c *Client) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.clients[c.ID()]; !exists {
		return
	}
	delete(m.clients, c.ID())
	m.leaveRoomLocked(c)
	m.broadcastRoomsLocked()

	m.logger.Info("連接已移除", "conn_id", c.ID())
}

// CreateRoom 創建房間並加入
//
// roomID 為空時產生新的房間代碼；指定已存在的 ID 等同於加入該房間。
// 回傳實際使用的房間 ID。
func (m *Manager) CreateRoom(c *Client, roomID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if roomID == "" {
		roomID = m.newRoomIDLocked()
	}
	m.joinLocked(c, roomID, RoomCreatedMessage(roomID))
	return roomID
}

// JoinRoom 加入指定房間（不存在時自動創建）
func (m *Manager) JoinRoom(c *Client, roomID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.joinLocked(c, roomID, RoomJoinedMessage(roomID))
}

// ReturnToLobby 把連接移回大廳
//
// 快速配對的前置動作：佇列佔用者不得是非大廳房間的成員。
func (m *Manager) ReturnToLobby(c *Client) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.joinLocked(c, LobbyID, nil)
}

// PairQuickMatch 把佇列配對出的兩個連接移進新產生的房間
//
// first 是先佔用槽位的一方，先加入因此取得角色 A。
// 兩次加入在同一個臨界區內完成，中途不會被其他操作觀察到半配對狀態。
// 任一方在取得鎖之前已斷線（不在註冊表）時不開房，回傳 ok=false，
// 由呼叫端讓仍在線的一方回到佇列，不會獨自被困在空房間裡。
func (m *Manager) PairQuickMatch(first, second *Client) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.clients[first.ID()]; !exists {
		return "", false
	}
	if _, exists := m.clients[second.ID()]; !exists {
		return "", false
	}

	roomID := m.newRoomIDLocked()
	m.joinLocked(first, roomID, nil)
	m.joinLocked(second, roomID, nil)

	m.logger.Info("快速配對完成",
		"room_id", roomID,
		"first", first.ID(),
		"second", second.ID())
	return roomID, true
}

// ListRooms 列出大廳以外的所有房間與成員數
//
// 順序未定義，呼叫端不得依賴。
func (m *Manager) ListRooms() []RoomInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listRoomsLocked()
}

// NotifyName 把連接的顯示名稱廣播給同房間的其他成員
//
// who 欄位帶發送者的角色標籤，尚未分配角色時省略。
func (m *Manager) NotifyName(c *Client) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	room := m.rooms[c.Room()]
	if room == nil {
		return
	}
	msg := NameMessage(c.Role(), c.Name())
	for _, peer := range room.members {
		if peer != c {
			peer.Send(msg)
		}
	}
}

// Relay 把未識別的訊息原樣轉發給同房間的其他成員
//
// 伺服器不解讀內容，轉發的是收到的原始位元組。
// 單一成員送出失敗（緩衝滿、連接關閉中）不影響其他成員的遞送。
func (m *Manager) Relay(c *Client, raw []byte) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	room := m.rooms[c.Room()]
	if room == nil {
		return
	}
	for _, peer := range room.members {
		if peer != c {
			peer.Send(raw)
		}
	}
}

// Clients 回傳所有已註冊連接的快照
func (m *Manager) Clients() []*Client {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Client, 0, len(m.clients))
	for _, c := range m.clients {
		out = append(out, c)
	}
	return out
}

// RoomMembers 回傳指定房間的成員快照（依加入順序）
func (m *Manager) RoomMembers(roomID string) []*Client {
	m.mu.RLock()
	defer m.mu.RUnlock()

	room := m.rooms[roomID]
	if room == nil {
		return nil
	}
	out := make([]*Client, len(room.members))
	copy(out, room.members)
	return out
}

// Stats 獲取統計資訊
func (m *Manager) Stats() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	roomCount := 0
	playersInRooms := 0
	for id, room := range m.rooms {
		if id == LobbyID {
			continue
		}
		roomCount++
		playersInRooms += len(room.members)
	}

	return map[string]any{
		"total_rooms":       roomCount,
		"total_connections": len(m.clients),
		"players_in_rooms":  playersInRooms,
	}
}

// joinLocked 把連接移進目標房間（呼叫端持有寫鎖）
//
// 已在目標房間時只重送確認與列表刷新，是冪等操作。
// 否則先離開原房間（觸發離開的副作用），再加入目標房間、
// 檢查是否觸發對局開始，最後向所有連接刷新房間列表。
func (m *Manager) joinLocked(c *Client, roomID string, ack []byte) {
	if c.Room() == roomID {
		if ack != nil {
			c.Send(ack)
		}
		m.broadcastRoomsLocked()
		return
	}

	m.leaveRoomLocked(c)

	room := m.rooms[roomID]
	if room == nil {
		room = newRoom(roomID)
		m.rooms[roomID] = room
	}
	room.members = append(room.members, c)
	c.setRoom(roomID)

	if ack != nil {
		c.Send(ack)
	}
	m.maybeStartMatchLocked(room)
	m.broadcastRoomsLocked()
}

// leaveRoomLocked 把連接移出目前房間（呼叫端持有寫鎖）
//
// 成員歸零的房間立即銷毀；仍有成員時廣播 opponent_disconnected，
// 留下成員的角色維持不變（不重新配對）。離開者的角色歸零。
func (m *Manager) leaveRoomLocked(c *Client) {
	roomID := c.Room()
	if roomID == "" {
		return
	}
	c.setRoom("")
	c.setRole(RoleNone)

	room := m.rooms[roomID]
	if room == nil {
		return
	}
	room.remove(c)

	if room.empty() {
		delete(m.rooms, roomID)
		m.logger.Debug("空房間已銷毀", "room_id", roomID)
		return
	}

	msg := OpponentDisconnectedMessage()
	for _, peer := range room.members {
		peer.Send(msg)
	}
}

// maybeStartMatchLocked 檢查並觸發對局開始（呼叫端持有寫鎖）
//
// 成員數達到兩人時，依加入順序把角色 A/B 分配給前兩名成員，
// 各自收到 match{roomId, you}。已設定名稱的一方會把名稱補發給對方，
// 讓重連競態後的角色與名稱狀態保持一致。
// activated 旗標讓重複觸發成為 no-op：角色一旦分配就不換手。
func (m *Manager) maybeStartMatchLocked(room *Room) {
	if room.id == LobbyID || room.activated || len(room.members) < 2 {
		return
	}

	a, b := room.members[0], room.members[1]
	room.activated = true
	a.setRole(RoleA)
	b.setRole(RoleB)

	a.Send(MatchMessage(room.id, RoleA))
	b.Send(MatchMessage(room.id, RoleB))

	if name := a.Name(); name != "" {
		b.Send(NameMessage(RoleA, name))
	}
	if name := b.Name(); name != "" {
		a.Send(NameMessage(RoleB, name))
	}

	m.logger.Info("對局開始",
		"room_id", room.id,
		"role_a", a.ID(),
		"role_b", b.ID())
}

// broadcastRoomsLocked 向所有連接刷新房間列表（呼叫端持有鎖）
func (m *Manager) broadcastRoomsLocked() {
	msg := RoomsMessage(m.listRoomsLocked())
	for _, c := range m.clients {
		c.Send(msg)
	}
}

// listRoomsLocked 組出大廳以外的房間列表（呼叫端持有鎖）
func (m *Manager) listRoomsLocked() []RoomInfo {
	out := make([]RoomInfo, 0, len(m.rooms))
	for id, room := range m.rooms {
		if id == LobbyID {
			continue
		}
		out = append(out, RoomInfo{ID: id, Players: len(room.members)})
	}
	return out
}

// newRoomIDLocked 產生未被佔用的房間 ID（呼叫端持有寫鎖）
func (m *Manager) newRoomIDLocked() string {
	for {
		id := m.tokens.RoomID()
		if id == LobbyID {
			continue
		}
		if _, exists := m.rooms[id]; !exists {
			return id
		}
	}
}
