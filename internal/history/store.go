package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gosimple/slug"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/mark3labs/todochat/internal/logger"
)

const (
	streamName = "todochat_history"

	// Entry kinds
	KindMessage = "message"
	KindTool    = "tool"
	KindSystem  = "system"
)

// Entry is one transcript record: a user or assistant message, a tool
// invocation summary, or a system note such as a handoff.
type Entry struct {
	ID           string          `json:"id"`        // NATS message sequence ID
	Timestamp    time.Time       `json:"timestamp"` // When the entry was recorded
	Conversation string          `json:"conversation"`
	Kind         string          `json:"kind"` // message, tool, system
	Role         string          `json:"role"` // user, assistant, or the agent name
	Content      string          `json:"content"`
	Meta         json.RawMessage `json:"meta,omitempty"` // Kind-specific metadata
}

// ToolMeta is the metadata attached to KindTool entries.
type ToolMeta struct {
	Tool   string          `json:"tool"`
	CallID string          `json:"call_id"`
	Status string          `json:"status"`
	Result json.RawMessage `json:"result,omitempty"`
}

// ConversationSlug normalizes a conversation label into a subject-safe
// token. NATS subjects cannot carry spaces or unicode punctuation.
func ConversationSlug(label string) string {
	return slug.Make(label)
}

// subjectForEntry returns the subject for one entry.
// Example: "todochat.grocery-run.message"
func subjectForEntry(conversation, kind string) string {
	return fmt.Sprintf("todochat.%s.%s", conversation, kind)
}

// subjectForConversation returns the wildcard subject matching all of a
// conversation's entries. Example: "todochat.grocery-run.>"
func subjectForConversation(conversation string) string {
	return fmt.Sprintf("todochat.%s.>", conversation)
}

// Store is the local transcript log backed by embedded JetStream.
type Store struct {
	ns     *server.Server
	nc     *nats.Conn
	js     jetstream.JetStream
	stream jetstream.Stream
}

// Open starts the embedded server and prepares the history stream inside
// dataDir. Callers must Close the store when done.
func Open(ctx context.Context, dataDir string) (*Store, error) {
	ns, err := startEmbeddedNATS(dataDir)
	if err != nil {
		return nil, fmt.Errorf("starting history server: %w", err)
	}

	nc, err := connectInProcess(ns)
	if err != nil {
		ns.Shutdown()
		return nil, fmt.Errorf("connecting to history server: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		_ = shutdown(nc, ns)
		return nil, fmt.Errorf("creating jetstream context: %w", err)
	}

	stream, err := setupStream(ctx, js)
	if err != nil {
		_ = shutdown(nc, ns)
		return nil, fmt.Errorf("creating history stream: %w", err)
	}

	return &Store{ns: ns, nc: nc, js: js, stream: stream}, nil
}

// Close drains and shuts down the embedded server.
func (s *Store) Close() error {
	return shutdown(s.nc, s.ns)
}

// Append adds an entry to the conversation's transcript log.
func (s *Store) Append(ctx context.Context, entry Entry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	entry.Conversation = ConversationSlug(entry.Conversation)

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling entry: %w", err)
	}

	subject := subjectForEntry(entry.Conversation, entry.Kind)
	logger.Debug("Appending history entry: conversation=%s kind=%s role=%s", entry.Conversation, entry.Kind, entry.Role)

	if _, err := s.js.Publish(ctx, subject, data); err != nil {
		logger.Error("Failed to publish history entry to %s: %v", subject, err)
		return fmt.Errorf("publishing entry: %w", err)
	}
	return nil
}

// LoadTranscript replays a conversation's entries from the beginning and
// returns them in publish order. Malformed records are logged and skipped
// so one bad write never poisons a transcript.
func (s *Store) LoadTranscript(ctx context.Context, conversation string) ([]Entry, error) {
	conversation = ConversationSlug(conversation)
	logger.Debug("Loading transcript for conversation: %s", conversation)

	consumer, err := s.stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		FilterSubject: subjectForConversation(conversation),
		DeliverPolicy: jetstream.DeliverAllPolicy,
		AckPolicy:     jetstream.AckExplicitPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("creating transcript consumer: %w", err)
	}

	var entries []Entry
	const batchSize = 1000
	malformed := 0
	for {
		msgs, err := consumer.FetchNoWait(batchSize)
		if err != nil {
			break
		}

		count := 0
		for msg := range msgs.Messages() {
			count++
			var entry Entry
			if err := json.Unmarshal(msg.Data(), &entry); err != nil {
				malformed++
				meta, _ := msg.Metadata()
				logger.Warn("Skipping malformed history entry (seq=%d): %v", meta.Sequence.Stream, err)
				_ = msg.Ack()
				continue
			}
			if entry.ID == "" {
				meta, _ := msg.Metadata()
				entry.ID = fmt.Sprintf("%d", meta.Sequence.Stream)
			}
			entries = append(entries, entry)
			_ = msg.Ack()
		}

		if count < batchSize {
			break
		}
	}

	if malformed > 0 {
		logger.Warn("Skipped %d malformed entries while loading transcript", malformed)
	}
	logger.Debug("Transcript loaded: %d entries", len(entries))
	return entries, nil
}
