// Package bridge receives method calls from the embedded module and
// turns onKycEvent calls into log entries.
package bridge

import (
	"fmt"
	"sync"
)

// Names of the cross-boundary channel and its single method.
const (
	ChannelName      = "universal_experience_sdk/events"
	MethodOnKycEvent = "onKycEvent"
)

// MethodCall is one invocation delivered by the transport.
type MethodCall struct {
	Method    string
	Arguments any
}

// Result acknowledges a MethodCall. Exactly one method must be called
// per invocation; the caller is stalled until it is.
type Result interface {
	Success(value any)
	Error(code, message string, details any)
	NotImplemented()
}

// Handler processes method calls on a channel.
type Handler interface {
	HandleMethodCall(call MethodCall, result Result)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(call MethodCall, result Result)

// HandleMethodCall calls f.
func (f HandlerFunc) HandleMethodCall(call MethodCall, result Result) {
	f(call, result)
}

// ReplyKind classifies an acknowledgment.
type ReplyKind int

const (
	ReplySuccess ReplyKind = iota
	ReplyError
	ReplyNotImplemented
)

func (k ReplyKind) String() string {
	switch k {
	case ReplySuccess:
		return "success"
	case ReplyError:
		return "error"
	case ReplyNotImplemented:
		return "not-implemented"
	default:
		return fmt.Sprintf("reply(%d)", int(k))
	}
}

// Reply is the recorded acknowledgment of a call.
type Reply struct {
	Kind    ReplyKind
	Value   any
	Code    string
	Message string
	Details any
}

// onceResult forwards the first reply and ignores the rest.
type onceResult struct {
	once    sync.Once
	replied bool
	send    func(Reply)
}

func (r *onceResult) deliver(rep Reply) {
	r.once.Do(func() {
		r.replied = true
		r.send(rep)
	})
}

func (r *onceResult) Success(value any) {
	r.deliver(Reply{Kind: ReplySuccess, Value: value})
}

func (r *onceResult) Error(code, message string, details any) {
	r.deliver(Reply{Kind: ReplyError, Code: code, Message: message, Details: details})
}

func (r *onceResult) NotImplemented() {
	r.deliver(Reply{Kind: ReplyNotImplemented})
}

// Invoke runs h synchronously and returns its acknowledgment. A handler
// that returns without replying, or panics, is answered with an error
// reply so the caller is never left waiting.
func Invoke(h Handler, call MethodCall) (rep Reply) {
	r := &onceResult{send: func(got Reply) { rep = got }}
	defer func() {
		if p := recover(); p != nil {
			r.Error("handler_panic", fmt.Sprint(p), nil)
		}
		if !r.replied {
			r.Error("no_reply", "handler returned without acknowledging "+call.Method, nil)
		}
	}()
	h.HandleMethodCall(call, r)
	return rep
}
