package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mark3labs/todochat/internal/history"
	"github.com/mark3labs/todochat/internal/logger"
	"github.com/mark3labs/todochat/internal/stream"
)

// Session manages the lifetime of one conversation: it tracks the server
// side conversation id across turns, enforces one in-flight stream at a
// time, and records finished turns in the transcript log.
type Session struct {
	client *stream.Client
	token  string
	label  string
	store  *history.Store // optional; nil disables transcript recording
	notify func(Update)

	mu             sync.Mutex
	conversationID *int64
	handle         *stream.Handle
	turn           *Turn
}

// SessionOptions configures a new session.
type SessionOptions struct {
	Client *stream.Client
	Token  string
	Label  string         // conversation label for the transcript log
	Store  *history.Store // nil disables history
	Notify func(Update)
}

// NewSession creates a session that streams turns through opts.Client.
func NewSession(opts SessionOptions) *Session {
	return &Session{
		client: opts.Client,
		token:  opts.Token,
		label:  opts.Label,
		store:  opts.Store,
		notify: opts.Notify,
	}
}

// ConversationID returns the server-assigned conversation id, or nil
// before the first turn completes.
func (s *Session) ConversationID() *int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

// CurrentTurn returns the most recent turn, or nil before the first Send.
func (s *Session) CurrentTurn() *Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turn
}

// Send starts a new turn for message. Any turn still streaming is canceled
// first; the newest message always wins. The returned turn is live and
// reports progress through the session's notify hook.
func (s *Session) Send(ctx context.Context, message string) *Turn {
	s.mu.Lock()
	if s.handle != nil {
		logger.Debug("Canceling in-flight turn before sending new message")
		s.handle.Cancel()
	}

	turn := NewTurn(s.wrapNotify())
	s.turn = turn

	req := stream.Request{
		ConversationID: s.conversationID,
		Message:        message,
	}
	s.handle = s.client.Start(ctx, s.token, req, turn.Callbacks())
	s.mu.Unlock()

	s.record(ctx, history.Entry{
		Conversation: s.label,
		Kind:         history.KindMessage,
		Role:         "user",
		Content:      message,
	})

	return turn
}

// Cancel stops the in-flight turn, if any.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle != nil {
		s.handle.Cancel()
	}
}

// Wait blocks until the current turn's stream goroutine exits.
func (s *Session) Wait() {
	s.mu.Lock()
	handle := s.handle
	s.mu.Unlock()
	if handle != nil {
		<-handle.Done()
	}
}

// wrapNotify intercepts terminal updates to capture the conversation id
// and append the finished turn to the transcript before forwarding.
func (s *Session) wrapNotify() func(Update) {
	return func(u Update) {
		switch u.Kind {
		case UpdateDone:
			s.mu.Lock()
			if u.Done != nil && u.Done.ConversationID != 0 {
				id := u.Done.ConversationID
				s.conversationID = &id
			}
			s.mu.Unlock()
			s.recordTurn(u)
		case UpdateError:
			s.recordTurn(u)
		}
		if s.notify != nil {
			s.notify(u)
		}
	}
}

// recordTurn appends the assistant reply and tool summaries for a finished
// turn.
func (s *Session) recordTurn(u Update) {
	ctx := context.Background()
	for _, call := range u.ToolCalls {
		meta, err := json.Marshal(history.ToolMeta{
			Tool:   call.Tool,
			CallID: call.CallID,
			Status: string(call.Status),
			Result: call.Result,
		})
		if err != nil {
			continue
		}
		s.record(ctx, history.Entry{
			Conversation: s.label,
			Kind:         history.KindTool,
			Role:         call.AgentName,
			Content:      call.Tool,
			Meta:         meta,
		})
	}
	if u.Text != "" {
		role := "assistant"
		if u.Agent != "" {
			role = u.Agent
		}
		s.record(ctx, history.Entry{
			Conversation: s.label,
			Kind:         history.KindMessage,
			Role:         role,
			Content:      u.Text,
		})
	}
	if u.Err != nil {
		s.record(ctx, history.Entry{
			Conversation: s.label,
			Kind:         history.KindSystem,
			Role:         "system",
			Content:      fmt.Sprintf("turn failed: %s (%s)", u.Err.Message, u.Err.Code),
		})
	}
}

func (s *Session) record(ctx context.Context, entry history.Entry) {
	if s.store == nil {
		return
	}
	if err := s.store.Append(ctx, entry); err != nil {
		logger.Warn("Failed to record history entry: %v", err)
	}
}
