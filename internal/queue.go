package internal

import "sync"

// 系統設計問題：
//   兩個互不相識的玩家如何在沒有房間 ID 的情況下湊成一局？
//
// 核心挑戰：
//   單一等待槽位是典型的 compare-and-swap 場景。
//   兩個連接同時送出 queue 時，只能有一個佔到空槽位，
//   另一個必須跟槽位裡的人配對，絕不能各自開出兩個房間。
//
// 設計方案：
//   ✅ 互斥鎖保護槽位，佔用與取出在同一個臨界區完成
//   ✅ 取出時驗證佔用者仍然存活，失效的佔用者直接被取代

// Queue 快速配對佇列
//
// 最多保存一個等待中的連接。佔用者不得同時是非大廳房間的成員，
// 這條不變式由呼叫端（Hub 的訊息分派）維護：
// 排隊前先把連接移回大廳，加入房間前先放棄槽位。
type Queue struct {
	mu      sync.Mutex
	waiting *Client
}

// NewQueue 創建快速配對佇列
func NewQueue() *Queue {
	return &Queue{}
}

// Pair 嘗試配對
//
// 槽位為空（或佔用者已失效）時由 c 佔用並回傳 nil，c 開始等待。
// 槽位已有其他有效佔用者時清空槽位並回傳該佔用者，由呼叫端把
// 兩者移進新房間。c 已是佔用者時維持原狀回傳 nil（重複排隊視為續留）。
func (q *Queue) Pair(c *Client) *Client {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.waiting == c {
		return nil
	}
	if q.waiting == nil || q.waiting.Closed() {
		q.waiting = c
		return nil
	}

	partner := q.waiting
	q.waiting = nil
	return partner
}

// Abandon 放棄槽位
//
// c 斷線或加入房間時呼叫；c 不是佔用者時為 no-op。
func (q *Queue) Abandon(c *Client) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.waiting == c {
		q.waiting = nil
	}
}

// Waiting 回傳槽位上是否有有效的等待者
func (q *Queue) Waiting() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.waiting != nil && !q.waiting.Closed()
}
