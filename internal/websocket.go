package internal

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// 系統設計問題：
//   如何在單一升級端點上承載所有連接，並且可靠地發現悄悄消失的客戶端？
//
// 核心挑戰：
//   1. 實時轉發：對局訊息要在毫秒級送達房間內的對手
//   2. 死連接回收：網路中斷的客戶端不會送出 close frame，
//      沒有心跳掃描的話，房間與佇列槽位會永久洩漏
//   3. 單一寫入者：gorilla/websocket 同一時間只允許一個寫入者，
//      所有出站訊息（含 ping）都得經過 writePump
//
// 設計方案：
//   ✅ Hub 模式 - 升級、訊息分派、生命週期集中管理
//   ✅ 心跳掃描是 Hub 擁有的週期性任務，不依附任何單一連接
//   ✅ 緩衝 channel 非阻塞送出，慢客戶端不拖累整個房間

const (
	// defaultHeartbeatInterval 心跳掃描間隔
	defaultHeartbeatInterval = 30 * time.Second

	// writeWait 單次寫入的期限
	writeWait = 10 * time.Second

	// sendBufferSize 每個連接的出站緩衝
	sendBufferSize = 256
)

// Client 一條已升級的 WebSocket 連接
//
// 身分（ID、名稱）與存活旗標由自身的鎖保護；
// 房間歸屬與角色只透過 Manager 在其鎖內變更。
// 底層 *websocket.Conn 由本結構獨占，Manager 只持有非擁有引用。
type Client struct {
	id   string
	conn *websocket.Conn
	hub  *Hub

	send chan []byte
	ping chan struct{}

	mu     sync.Mutex
	name   string
	room   string
	role   Role
	alive  bool
	closed bool

	closeOnce sync.Once
}

// NewClient 創建連接
//
// conn 與 hub 可為 nil（單元測試直接操作 Manager 時不啟動讀寫迴圈）。
func NewClient(id string, conn *websocket.Conn, hub *Hub) *Client {
	return &Client{
		id:    id,
		conn:  conn,
		hub:   hub,
		send:  make(chan []byte, sendBufferSize),
		ping:  make(chan struct{}, 1),
		alive: true,
	}
}

// ID 連接識別碼
func (c *Client) ID() string { return c.id }

// Name 顯示名稱
func (c *Client) Name() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.name
}

// SetName 設定顯示名稱（後寫覆蓋先寫）
func (c *Client) SetName(name string) {
	c.mu.Lock()
	c.name = name
	c.mu.Unlock()
}

// Room 目前所在房間的 ID，未註冊時為空
func (c *Client) Room() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room
}

func (c *Client) setRoom(roomID string) {
	c.mu.Lock()
	c.room = roomID
	c.mu.Unlock()
}

// Role 房間內角色
func (c *Client) Role() Role {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.role
}

func (c *Client) setRole(role Role) {
	c.mu.Lock()
	c.role = role
	c.mu.Unlock()
}

// MarkAlive 設定存活旗標（收到 pong 時呼叫）
func (c *Client) MarkAlive() {
	c.mu.Lock()
	c.alive = true
	c.mu.Unlock()
}

// sweepAlive 讀取並清除存活旗標，回傳上一輪是否有回應
func (c *Client) sweepAlive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	was := c.alive
	c.alive = false
	return was
}

// Closed 回傳連接是否已關閉
func (c *Client) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Send 非阻塞送出一則訊息
//
// 緩衝滿或連接已關閉時丟棄並回傳 false；
// 對單一成員送出失敗不得中斷對其他成員的廣播，所以這裡永不阻塞。
func (c *Client) Send(message []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- message:
		return true
	default:
		return false
	}
}

// Outbound 出站訊息通道（writePump 的來源，測試用來檢視送出內容）
func (c *Client) Outbound() <-chan []byte {
	return c.send
}

// requestPing 要求 writePump 送出一個 ping 控制幀
func (c *Client) requestPing() {
	select {
	case c.ping <- struct{}{}:
	default:
	}
}

// Close 關閉連接
//
// 冪等：send channel 只關一次，底層連接關閉會讓 readPump 退出，
// 進而走一般的清理路徑。
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		close(c.send)
		if c.conn != nil {
			c.conn.Close()
		}
	})
}

// Hub WebSocket 連接中心
//
// 持有升級器、訊息分派與心跳掃描。掃描是 Hub 生命週期擁有的
// 週期性任務，跟連接自身的讀寫 goroutine 無關，
// 透過 Manager 的鎖定操作跟客戶端驅動的事件協調。
type Hub struct {
	manager   *Manager
	queue     *Queue
	logger    *slog.Logger
	upgrader  websocket.Upgrader
	heartbeat time.Duration
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// NewHub 創建 Hub 並啟動心跳掃描
//
// heartbeat <= 0 時使用預設間隔；測試可以注入很短的間隔。
func NewHub(manager *Manager, queue *Queue, heartbeat time.Duration, logger *slog.Logger) *Hub {
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}
	hub := &Hub{
		manager: manager,
		queue:   queue,
		logger:  logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// 在生產環境應該檢查來源
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		heartbeat: heartbeat,
		stopCh:    make(chan struct{}),
	}

	hub.wg.Add(1)
	go hub.sweepLoop()

	return hub
}

// ServeWS 處理 WebSocket 升級
//
// ?room= 指定初始房間，未指定時放進大廳。
// 其他路徑不會進到這裡，維持一般的 HTTP 回應。
func (hub *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("room")
	if roomID == "" {
		roomID = LobbyID
	}

	conn, err := hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Error("升級 WebSocket 失敗", "error", err)
		return
	}

	c := NewClient(hub.manager.NewConnectionID(), conn, hub)
	hub.manager.Register(c, roomID)

	go c.writePump()
	go c.readPump()

	hub.logger.Info("WebSocket 連接建立",
		"conn_id", c.ID(),
		"room_id", roomID)
}

// Stop 停止 Hub
//
// 停止心跳掃描並關閉所有連接；各連接的 readPump 退出時
// 會自行走清理路徑，把房間與佇列狀態收乾淨。
func (hub *Hub) Stop() {
	close(hub.stopCh)
	hub.wg.Wait()

	for _, c := range hub.manager.Clients() {
		c.Close()
	}

	hub.logger.Info("WebSocket Hub 已停止")
}

// readWait 讀取期限
//
// 兩個掃描週期加上餘量：存活的客戶端在兩次 ping 之間
// 不會被讀取期限誤殺，真正的死連接交給掃描處理。
func (hub *Hub) readWait() time.Duration {
	return 2*hub.heartbeat + 5*time.Second
}

// sweepLoop 心跳掃描迴圈
func (hub *Hub) sweepLoop() {
	defer hub.wg.Done()

	ticker := time.NewTicker(hub.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			hub.sweep()
		case <-hub.stopCh:
			return
		}
	}
}

// sweep 單輪心跳掃描
//
// 上一輪沒有回應的連接強制關閉（跟客戶端主動斷線走同一條
// 清理路徑）；有回應的清除旗標並送出下一個 ping 探測。
// 這是唯一回收無聲消失客戶端的機制。
func (hub *Hub) sweep() {
	for _, c := range hub.manager.Clients() {
		if !c.sweepAlive() {
			hub.logger.Warn("心跳逾時，強制關閉連接",
				"conn_id", c.ID(),
				"room_id", c.Room())
			c.Close()
			continue
		}
		c.requestPing()
	}
}

// cleanup 連接結束後的統一清理路徑
//
// 主動關閉、對端斷線、心跳逾時都會走到這裡，
// 確保佇列槽位與房間成員不殘留懸掛引用。
func (hub *Hub) cleanup(c *Client) {
	hub.queue.Abandon(c)
	hub.manager.Disconnect(c)
	c.Close()
}

// handleMessage 分派一則已解碼的入站訊息
func (hub *Hub) handleMessage(c *Client, data []byte) {
	msg, ok := DecodeMessage(data)
	if !ok {
		// 容錯策略：無法解析的訊息靜默丟棄，連接保持開啟
		hub.logger.Debug("丟棄無法解析的訊息", "conn_id", c.ID())
		return
	}

	switch msg.Kind {
	case KindHello:
		c.Send(HelloAckMessage(c.ID(), c.Room()))

	case KindSetName:
		c.SetName(msg.Name)
		hub.manager.NotifyName(c)

	case KindListRooms:
		c.Send(RoomsMessage(hub.manager.ListRooms()))

	case KindCreateRoom:
		hub.queue.Abandon(c)
		hub.manager.CreateRoom(c, msg.ID)

	case KindJoinRoom:
		if msg.ID == "" {
			return
		}
		hub.queue.Abandon(c)
		hub.manager.JoinRoom(c, msg.ID)

	case KindQueue:
		hub.handleQueue(c)

	case KindOpaque:
		hub.manager.Relay(c, msg.Raw)
	}
}

// handleQueue 處理快速配對請求
//
// 佇列佔用者不得是非大廳房間的成員，所以排隊前先移回大廳。
// 槽位上已有等待者時立即配對：先佔用者先加入新房間，取得角色 A。
// 佔用者在取出之後、開房之前斷線時不成局，發送者回到佇列，
// 重新佔用空槽位或配對下一位等待者。
func (hub *Hub) handleQueue(c *Client) {
	if c.Room() != LobbyID {
		hub.manager.ReturnToLobby(c)
	}

	c.Send(QueuedMessage())

	for {
		partner := hub.queue.Pair(c)
		if partner == nil {
			hub.logger.Debug("進入快速配對佇列", "conn_id", c.ID())
			return
		}

		roomID, ok := hub.manager.PairQuickMatch(partner, c)
		if !ok {
			continue
		}

		hub.logger.Info("快速配對觸發",
			"room_id", roomID,
			"conn_id", c.ID(),
			"partner", partner.ID())
		return
	}
}

// readPump 讀取客戶端訊息
//
// 讀取期限由 pong 重置（見 readWait）；無論因為什麼原因退出，
// 都透過 hub.cleanup 走統一的清理路徑。
func (c *Client) readPump() {
	defer c.hub.cleanup(c)

	if err := c.conn.SetReadDeadline(time.Now().Add(c.hub.readWait())); err != nil {
		c.hub.logger.Error("設置讀取期限失敗", "error", err)
	}
	c.conn.SetPongHandler(func(string) error {
		c.MarkAlive()
		return c.conn.SetReadDeadline(time.Now().Add(c.hub.readWait()))
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.hub.logger.Error("WebSocket 讀取錯誤",
					"error", err,
					"conn_id", c.ID())
			}
			return
		}
		if messageType == websocket.TextMessage {
			c.hub.handleMessage(c, data)
		}
	}
}

// writePump 寫入訊息到客戶端
//
// 唯一的寫入者。心跳掃描透過 ping channel 要求送出探測，
// 不直接碰底層連接。
func (c *Client) writePump() {
	defer c.conn.Close()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if !ok {
				// 清理路徑關閉了通道，送出 close frame 後結束
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			// 批量送出佇列中剩餘的訊息
			n := len(c.send)
			for i := 0; i < n; i++ {
				message, ok = <-c.send
				if !ok {
					return
				}
				if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
					return
				}
			}

		case <-c.ping:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
