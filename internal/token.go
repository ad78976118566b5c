package internal

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TokenSource 識別碼產生器
//
// 連接 ID 與房間 ID 的產生透過介面注入，
// 測試時可以替換為確定性的實作，驗證配對順序與訊息內容。
type TokenSource interface {
	// ConnectionID 產生連接識別碼（全域唯一）
	ConnectionID() string
	// RoomID 產生簡短的房間識別碼
	RoomID() string
}

// randomTokenSource 預設實作：加密等級的隨機來源
type randomTokenSource struct{}

// NewRandomTokenSource 創建預設的識別碼產生器
func NewRandomTokenSource() TokenSource {
	return randomTokenSource{}
}

func (randomTokenSource) ConnectionID() string {
	return uuid.NewString()
}

// RoomID 產生 6 碼小寫英數房間代碼（如 "k3x9qa"）
func (randomTokenSource) RoomID() string {
	const chars = "abcdefghijklmnopqrstuvwxyz0123456789"

	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		// 如果隨機讀取失敗，使用時間戳作為備用
		return fmt.Sprintf("room_%d", time.Now().UnixNano())
	}
	for i := range b {
		b[i] = chars[int(b[i])%len(chars)]
	}
	return string(b)
}
