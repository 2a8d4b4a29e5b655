package wsclient

import (
	"encoding/json"

	"github.com/tokmz/tablesplit/pkg/realtime"
)

// 帧类型
const (
	FrameLogin   = "LOGI" // 握手结果，连接后的第一帧
	FrameMessage = "MESG" // 频道消息
	FrameUser    = "USER" // 用户信息请求/响应
)

// Frame 网关收发的 JSON 帧
type Frame struct {
	Type       string                 `json:"type"`
	ReqID      string                 `json:"req_id,omitempty"`
	Event      string                 `json:"event,omitempty"`
	ChannelURL string                 `json:"channel_url,omitempty"`
	User       *realtime.User         `json:"user,omitempty"`
	Payload    json.RawMessage        `json:"payload,omitempty"`
	Error      *realtime.BackendError `json:"error,omitempty"`
	Timestamp  int64                  `json:"ts,omitempty"` // Unix 毫秒
}
