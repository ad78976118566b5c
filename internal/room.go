package internal

// LobbyID 預設大廳的房間識別碼
//
// 未指定房間的連接一律放進大廳。大廳不出現在房間列表中，
// 也不觸發對局配對（兩個人同在大廳不算一場對局）。
const LobbyID = "lobby"

// Role 房間內角色
//
// 房間成員數達到兩人時，依加入順序分配給前兩名成員。
// 角色一旦分配就不再變動：之後加入的成員沒有角色，
// 成員離開也不觸發重新分配。
type Role int

const (
	RoleNone Role = iota
	RoleA         // 第一位成員，客戶端對應 host
	RoleB         // 第二位成員，客戶端對應 guest
)

// Symbol 回傳對局訊息中的角色代號（"A" / "B"）
func (r Role) Symbol() string {
	switch r {
	case RoleA:
		return "A"
	case RoleB:
		return "B"
	}
	return ""
}

// Label 回傳名稱通知中的角色標籤（"host" / "guest"），未分配時為空
func (r Role) Label() string {
	switch r {
	case RoleA:
		return "host"
	case RoleB:
		return "guest"
	}
	return ""
}

// Room 房間
//
// 成員列表依加入順序排列，前兩名成員是角色 A/B 的持有者。
// 欄位只在 Manager 的鎖內讀寫，Room 本身不帶鎖。
// 成員數歸零的房間立即從註冊表移除，不存在空房間。
type Room struct {
	id        string
	members   []*Client // 依加入順序
	activated bool      // 已觸發過對局開始（角色已分配）
}

func newRoom(id string) *Room {
	return &Room{id: id}
}

// remove 從成員列表移除指定連接，保留其餘成員的相對順序
func (r *Room) remove(c *Client) {
	for i, member := range r.members {
		if member == c {
			r.members = append(r.members[:i], r.members[i+1:]...)
			return
		}
	}
}

func (r *Room) empty() bool {
	return len(r.members) == 0
}
