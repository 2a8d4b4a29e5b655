package realtime

import "time"

// ConnectionState 连接状态
type ConnectionState int32

const (
	StateClosed ConnectionState = iota
	StateConnecting
	StateOpen
)

// String 与后端原生状态名一致
func (s ConnectionState) String() string {
	switch s {
	case StateClosed:
		return NativeClosed
	case StateConnecting:
		return NativeConnecting
	case StateOpen:
		return NativeOpen
	default:
		return "UNKNOWN"
	}
}

// MarshalText 以名称形式序列化
func (s ConnectionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Session 当前已认证的身份，仅在 StateOpen 时存在
type Session struct {
	UserID      string    `json:"user_id"`
	Nickname    string    `json:"nickname,omitempty"`
	ConnectedAt time.Time `json:"connected_at"`
}
