// Package bot provides the handler interface, registry and event processor
// for the teaching-assistant modules. Each module (courseops, writing,
// speaking, quiz, tutor) implements the Handler interface; the registry
// dispatches events in registration order, which encodes routing priority.
package bot

import (
	"context"
	"net/url"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"

	"github.com/tcm-emi/linebot-go/internal/dispatch"
)

// Event is one normalized inbound text message from a 1-on-1 chat, together
// with the user's session snapshot at arrival time.
type Event struct {
	UserID     string
	ReplyToken string
	Text       string
	Mode       string // session.Mode* value
	State      string // session.State* value
}

// Reply carries the messages sent on the reply token plus optional background
// work queued after the reply goes out. Slow work (assistant runs, voice
// processing) must go in Job so the webhook acknowledgment never waits on it.
type Reply struct {
	Messages []messaging_api.MessageInterface
	Job      *dispatch.Job
}

// NewReply wraps messages in a Reply with no background job.
func NewReply(messages ...messaging_api.MessageInterface) *Reply {
	return &Reply{Messages: messages}
}

// Handler is implemented by each bot module.
type Handler interface {
	// Name identifies the module in logs and metrics.
	Name() string

	// CanHandle reports whether this module claims the event. The registry
	// asks handlers in registration order and the first claim wins.
	CanHandle(ctx context.Context, ev *Event) bool

	// Handle produces the reply for a claimed event.
	Handle(ctx context.Context, ev *Event) (*Reply, error)
}

// PostbackHandler is implemented by modules that also react to postback
// payloads (query-string encoded, e.g. "action=course").
type PostbackHandler interface {
	Handler

	// HandlePostback returns (reply, true) when the module handled the
	// payload, or (nil, false) to let the next module try.
	HandlePostback(ctx context.Context, userID string, params url.Values) (*Reply, bool, error)
}

// Pusher sends messages outside a reply token. Background jobs use it to
// deliver results after the webhook reply is long gone.
type Pusher interface {
	Push(ctx context.Context, to string, messages ...messaging_api.MessageInterface) error
}
