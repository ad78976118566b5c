package internal

import (
	"encoding/json"
)

// 協議設計：
//   入站訊息在協議邊界一次性解碼成封閉的種類集合，
//   後續流程只面對 MessageKind，不再碰字串分派。
//   任何無法識別的種類一律視為不透明的遊戲內容（KindOpaque），
//   保留原始位元組原樣轉發，伺服器不解讀遊戲語意。

// MessageKind 入站訊息種類
type MessageKind int

const (
	KindOpaque     MessageKind = iota // 未識別種類：原樣轉發給同房間的其他成員
	KindHello                         // 請求連接識別碼
	KindSetName                       // 設定顯示名稱
	KindListRooms                     // 查詢房間列表
	KindCreateRoom                    // 創建房間（可指定 ID）
	KindJoinRoom                      // 加入指定房間
	KindQueue                         // 進入快速配對佇列
)

// MaxNameLength 顯示名稱長度上限（rune 數）
const MaxNameLength = 32

// Message 解碼後的入站訊息
type Message struct {
	Kind MessageKind
	ID   string // create_room / join_room 指定的房間 ID
	Name string // set_name 的名稱（已截斷）
	Raw  []byte // 原始訊息內容，KindOpaque 轉發時使用
}

// DecodeMessage 解碼入站訊息
//
// 無法解析為 JSON 物件的訊息回傳 ok=false，由呼叫端直接丟棄：
// 中繼服務不能讓格式錯誤的封包中斷整個會話，連接保持開啟。
//
// 欄位逐一寬鬆解碼：遊戲內容可以合法地使用任何型別的 id、name
// 甚至非字串的 kind，這些都是有效的轉發對象。只有控制訊息實際
// 使用的欄位做型別檢查，不符時整則訊息降級為不透明內容，
// 不得誤判為格式錯誤而丟棄。
func DecodeMessage(data []byte) (Message, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return Message{}, false
	}

	opaque := Message{Kind: KindOpaque, Raw: data}

	var kind string
	if raw, ok := fields["kind"]; ok {
		if json.Unmarshal(raw, &kind) != nil {
			return opaque, true
		}
	}

	switch kind {
	case "hello":
		return Message{Kind: KindHello}, true
	case "set_name":
		name, ok := stringField(fields, "name")
		if !ok {
			return opaque, true
		}
		return Message{Kind: KindSetName, Name: truncateName(name)}, true
	case "list_rooms":
		return Message{Kind: KindListRooms}, true
	case "create_room":
		id, ok := stringField(fields, "id")
		if !ok {
			return opaque, true
		}
		return Message{Kind: KindCreateRoom, ID: id}, true
	case "join_room":
		id, ok := stringField(fields, "id")
		if !ok {
			return opaque, true
		}
		return Message{Kind: KindJoinRoom, ID: id}, true
	case "queue":
		return Message{Kind: KindQueue}, true
	default:
		return opaque, true
	}
}

// stringField 讀取字串欄位
//
// 欄位不存在時回傳空字串；存在但不是字串時回傳 ok=false。
func stringField(fields map[string]json.RawMessage, key string) (string, bool) {
	raw, ok := fields[key]
	if !ok {
		return "", true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// truncateName 將名稱截斷到 MaxNameLength 個 rune
//
// 以 rune 為單位截斷，避免把多位元組字元切成非法的 UTF-8。
func truncateName(name string) string {
	runes := []rune(name)
	if len(runes) <= MaxNameLength {
		return name
	}
	return string(runes[:MaxNameLength])
}

// RoomInfo 房間列表項目（list_rooms 的輸出格式）
type RoomInfo struct {
	ID      string `json:"id"`
	Players int    `json:"players"`
}

// encode 序列化出站訊息
func encode(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		// 出站訊息都是本套件構造的固定結構，序列化不應失敗
		return nil
	}
	return data
}

// HelloAckMessage 連接確認：{kind:"hello_ack", id, room}
func HelloAckMessage(id, room string) []byte {
	return encode(map[string]any{"kind": "hello_ack", "id": id, "room": room})
}

// RoomsMessage 房間列表：{kind:"rooms", rooms:[{id, players}]}
func RoomsMessage(rooms []RoomInfo) []byte {
	if rooms == nil {
		rooms = []RoomInfo{}
	}
	return encode(map[string]any{"kind": "rooms", "rooms": rooms})
}

// RoomCreatedMessage 創建房間確認：{kind:"room_created", id}
func RoomCreatedMessage(id string) []byte {
	return encode(map[string]any{"kind": "room_created", "id": id})
}

// RoomJoinedMessage 加入房間確認：{kind:"room_joined", id}
func RoomJoinedMessage(id string) []byte {
	return encode(map[string]any{"kind": "room_joined", "id": id})
}

// MatchMessage 對局開始：{kind:"match", roomId, you:"A"|"B"}
func MatchMessage(roomID string, role Role) []byte {
	return encode(map[string]any{"kind": "match", "roomId": roomID, "you": role.Symbol()})
}

// NameMessage 名稱通知：{kind:"name", who, name}
//
// who 是發送者的角色標籤（A 為 host，B 為 guest），未分配角色時省略。
func NameMessage(who Role, name string) []byte {
	msg := map[string]any{"kind": "name", "name": name}
	if label := who.Label(); label != "" {
		msg["who"] = label
	}
	return encode(msg)
}

// OpponentDisconnectedMessage 成員離開通知：{kind:"opponent_disconnected"}
func OpponentDisconnectedMessage() []byte {
	return encode(map[string]any{"kind": "opponent_disconnected"})
}

// QueuedMessage 排隊確認：{kind:"queued"}
func QueuedMessage() []byte {
	return encode(map[string]any{"kind": "queued"})
}
