package uds

import (
	"errors"
	"fmt"
	"sync/atomic"
)

var reqCounter atomic.Uint64

// ErrNotImplemented is returned by Client.Request when the remote
// channel exists but does not handle the requested method.
var ErrNotImplemented = errors.New("method not implemented")

// ErrConnClosed is returned for requests pending when the connection ends.
var ErrConnClosed = errors.New("connection closed")

// MsgType identifies the kind of message.
type MsgType string

const (
	MsgTypeReq MsgType = "req"
	MsgTypeRes MsgType = "res"
	MsgTypeEvt MsgType = "evt"
)

// Message is the envelope for all communication. It is encoded with the
// connection's codec; args and result are generic values.
type Message struct {
	Type           MsgType `json:"type"`
	ID             string  `json:"id"`
	Channel        string  `json:"channel,omitempty"`
	Method         string  `json:"method"`
	Args           any     `json:"args,omitempty"`
	Result         any     `json:"result,omitempty"`
	Error          string  `json:"error,omitempty"`
	ErrorCode      string  `json:"error_code,omitempty"`
	NotImplemented bool    `json:"not_implemented,omitempty"`
}

// NewRequest creates a new request message with a unique ID.
func NewRequest(channel, method string, args any) Message {
	return Message{
		Type:    MsgTypeReq,
		ID:      fmt.Sprintf("req-%d", reqCounter.Add(1)),
		Channel: channel,
		Method:  method,
		Args:    args,
	}
}

// NewResponse creates a successful response to a request.
func NewResponse(req Message, result any) Message {
	return Message{
		Type:    MsgTypeRes,
		ID:      req.ID,
		Channel: req.Channel,
		Method:  req.Method,
		Result:  result,
	}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(req Message, code, errMsg string) Message {
	return Message{
		Type:      MsgTypeRes,
		ID:        req.ID,
		Channel:   req.Channel,
		Method:    req.Method,
		Error:     errMsg,
		ErrorCode: code,
	}
}

// NewNotImplementedResponse tells the caller the method is unsupported.
func NewNotImplementedResponse(req Message) Message {
	return Message{
		Type:           MsgTypeRes,
		ID:             req.ID,
		Channel:        req.Channel,
		Method:         req.Method,
		NotImplemented: true,
	}
}

// NewEvent creates a server-pushed event.
func NewEvent(method string, data any) Message {
	return Message{
		Type:   MsgTypeEvt,
		ID:     fmt.Sprintf("evt-%d", reqCounter.Add(1)),
		Method: method,
		Result: data,
	}
}

// Control channel served by the host for viewing surfaces and the CLI.
const (
	ControlChannel = "uxhost/control"

	MethodPing        = "ping"
	MethodGetSnapshot = "getSnapshot"
	MethodClear       = "clear"
	MethodStats       = "stats"

	EventLogChanged = "log.changed"
)

// PingResponse is the response to a ping request.
type PingResponse struct {
	Pong    bool   `json:"pong"`
	Version string `json:"version,omitempty"`
}
