// Package relay 提供了一個雙人即時對局的訊息中繼服務。
//
// 讓兩個遠端參與者互相發現、配成一局（房間），並以低延遲交換
// 不透明的遊戲訊息。伺服器不理解遊戲規則，包含以下核心功能：
//
// 房間生命週期
//
// 提供完整的房間管理：
//   - 連接入場即進入預設大廳
//   - 房間首次引用時隱式創建，成員歸零時銷毀
//   - 成員數達到兩人觸發對局開始，依加入順序分配角色 A/B
//   - 成員離開時通知留下的對手
//
// 快速配對
//
// 單一槽位的等待佇列：
//   - 佇列為空時佔位等待
//   - 第二個排隊者到達時兩人移進新產生的房間，立即開局
//   - 槽位的取得與交換在同一個臨界區完成，併發排隊不會裂成兩局
//
// 訊息中繼
//
// 協議邊界只識別固定的控制訊息種類：
//   - hello / set_name / list_rooms / create_room / join_room / queue
//   - 其他一律視為遊戲內容，原樣轉發給同房間的其他成員
//   - 無法解析的訊息靜默丟棄，不中斷會話
//
// 心跳偵測
//
// Hub 擁有的週期性掃描（預設 30 秒）：
//   - 上一輪未回應 pong 的連接強制關閉
//   - 強制關閉與主動斷線走同一條清理路徑
//   - 這是唯一回收無聲消失客戶端的機制
//
// 使用範例
//
// 啟動服務器：
//
//	manager := internal.NewManager(internal.NewRandomTokenSource(), logger)
//	queue := internal.NewQueue()
//	hub := internal.NewHub(manager, queue, 30*time.Second, logger)
//
//	http.HandleFunc("/ws", hub.ServeWS)
//	log.Fatal(http.ListenAndServe(":8080", nil))
//
// 客戶端連接：
//
//	ws://localhost:8080/ws?room=k3x9qa
//
// 併發模型
//
// 每個連接一個讀取 goroutine 加一個寫入 goroutine，
// 外加 Hub 的心跳掃描。房間註冊表用單一粗粒度 RWMutex 保護，
// 加入、離開、角色分配都在鎖內完成；訊息送出透過緩衝 channel
// 非阻塞進行，單一慢客戶端不影響其他成員。
//
// 所有狀態都在行程記憶體內，服務重啟即清空；
// 水平擴展與持久化不在此服務的範圍內。
package relay
