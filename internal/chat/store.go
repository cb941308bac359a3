package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// PersistenceError marks a durable-store failure. Any optimistic cache state
// has been rolled back by the time the caller sees one.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("chat: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Event tells observers which slice of store state changed.
type Event int

const (
	EventConversations Event = iota + 1
	EventMessages
	EventCurrent
)

const (
	previewLen = 100
	titleLen   = 50
)

// Store is the in-memory authoritative cache of conversations and the
// current conversation's messages, backed by the Repo. Appends are
// optimistic: the cache is updated first and compensated if the durable
// write fails, so a visible message is always eventually durable or gone.
//
// Single-writer by design: one user, one turn at a time. There is no
// locking around the cache.
type Store struct {
	repo *Repo
	log  zerolog.Logger

	conversations []Conversation
	currentID     string
	messages      []Message

	// lastTimestamp enforces strictly increasing append timestamps.
	lastTimestamp time.Time

	onChange func(Event)
}

func NewStore(repo *Repo, log zerolog.Logger) *Store {
	return &Store{repo: repo, log: log}
}

// SetOnChange installs the change-notification callback consumed by
// presentation code. Pass nil to remove it.
func (s *Store) SetOnChange(fn func(Event)) {
	s.onChange = fn
}

func (s *Store) notify(ev Event) {
	if s.onChange != nil {
		s.onChange(ev)
	}
}

// Conversations returns a copy of the cached conversation list.
func (s *Store) Conversations() []Conversation {
	return append([]Conversation(nil), s.conversations...)
}

// Messages returns a copy of the current conversation's cached messages.
func (s *Store) Messages() []Message {
	return append([]Message(nil), s.messages...)
}

func (s *Store) CurrentID() string { return s.currentID }

// Current returns the cached current conversation, nil when none is current.
func (s *Store) Current() *Conversation {
	return s.find(s.currentID)
}

func (s *Store) find(id string) *Conversation {
	for i := range s.conversations {
		if s.conversations[i].ID == id {
			return &s.conversations[i]
		}
	}
	return nil
}

// LoadAll replaces the cached conversation list from the durable store,
// newest first.
func (s *Store) LoadAll(ctx context.Context) error {
	convs, err := s.repo.ListConversations(ctx)
	if err != nil {
		return &PersistenceError{Op: "load conversations", Err: err}
	}
	s.conversations = convs
	s.notify(EventConversations)
	return nil
}

// Create allocates a new conversation, persists it, puts it at the head of
// the list and makes it current.
func (s *Store) Create(ctx context.Context) (string, error) {
	now := time.Now()
	conv := Conversation{
		ID:        uuid.NewString(),
		Title:     DefaultTitle,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateConversation(ctx, &conv); err != nil {
		return "", &PersistenceError{Op: "create conversation", Err: err}
	}
	s.conversations = append([]Conversation{conv}, s.conversations...)
	s.currentID = conv.ID
	s.messages = nil
	s.notify(EventConversations)
	s.notify(EventCurrent)
	s.log.Debug().Str("conversation", conv.ID).Msg("conversation created")
	return conv.ID, nil
}

// SwitchTo makes id current and loads its messages. Switching to the
// already-current conversation is a no-op.
func (s *Store) SwitchTo(ctx context.Context, id string) error {
	if id == s.currentID {
		return nil
	}
	msgs, err := s.repo.ListMessages(ctx, id)
	if err != nil {
		return &PersistenceError{Op: "load messages", Err: err}
	}
	s.currentID = id
	s.messages = msgs
	if len(msgs) > 0 {
		s.lastTimestamp = msgs[len(msgs)-1].Timestamp
	}
	s.notify(EventCurrent)
	return nil
}

// Append adds a message to the current conversation, creating one first if
// none is current. The cache is updated before the durable write; a failed
// write removes the entry again and surfaces a PersistenceError.
func (s *Store) Append(ctx context.Context, role, content string, isError bool) (*Message, error) {
	if s.currentID == "" {
		if _, err := s.Create(ctx); err != nil {
			return nil, err
		}
	}

	ts := time.Now()
	if !ts.After(s.lastTimestamp) {
		ts = s.lastTimestamp.Add(time.Millisecond)
	}
	s.lastTimestamp = ts

	msg := Message{
		ID:             newMessageID(ts),
		ConversationID: s.currentID,
		Role:           role,
		Content:        content,
		IsError:        isError,
		Timestamp:      ts,
	}

	// Optimistic insert; compensate below on failure.
	s.messages = append(s.messages, msg)
	s.notify(EventMessages)

	if err := s.repo.InsertMessage(ctx, &msg); err != nil {
		s.messages = s.messages[:len(s.messages)-1]
		s.notify(EventMessages)
		return nil, &PersistenceError{Op: "append message", Err: err}
	}

	if err := s.refreshMetadata(ctx, msg); err != nil {
		// Metadata is recomputed from live message counts, so staleness
		// heals on the next append or reload.
		s.log.Warn().Err(err).Str("conversation", msg.ConversationID).Msg("metadata refresh failed")
	}
	return &msg, nil
}

// refreshMetadata recomputes and persists the owning conversation's preview,
// message count and, on the first user message, its derived title.
func (s *Store) refreshMetadata(ctx context.Context, msg Message) error {
	conv := s.find(msg.ConversationID)
	if conv == nil {
		return nil
	}
	count, err := s.repo.CountMessages(ctx, msg.ConversationID)
	if err != nil {
		return err
	}
	conv.MessageCount = int(count)
	conv.Preview = truncate(msg.Content, previewLen) + "..."
	conv.UpdatedAt = time.Now()
	if conv.Title == DefaultTitle && msg.Role == "user" && count == 1 {
		conv.Title = deriveTitle(msg.Content)
	}
	if err := s.repo.SaveConversation(ctx, conv); err != nil {
		return err
	}
	s.notify(EventConversations)
	return nil
}

// MessagePatch is an explicit in-place edit. Nil fields are left untouched.
type MessagePatch struct {
	Content *string
	IsError *bool
}

// UpdateMessage applies patch to a cached message and persists it, stamping
// EditedAt. Unknown IDs are a no-op.
func (s *Store) UpdateMessage(ctx context.Context, id string, patch MessagePatch) (*Message, error) {
	idx := -1
	for i := range s.messages {
		if s.messages[i].ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		return nil, nil
	}

	prev := s.messages[idx]
	updated := prev
	if patch.Content != nil {
		updated.Content = *patch.Content
	}
	if patch.IsError != nil {
		updated.IsError = *patch.IsError
	}
	now := time.Now()
	updated.EditedAt = &now

	s.messages[idx] = updated
	s.notify(EventMessages)
	if err := s.repo.SaveMessage(ctx, &updated); err != nil {
		s.messages[idx] = prev
		s.notify(EventMessages)
		return nil, &PersistenceError{Op: "update message", Err: err}
	}
	return &updated, nil
}

// Delete removes a conversation and all its messages. Deleting the current
// conversation clears the selection and the message cache.
func (s *Store) Delete(ctx context.Context, conversationID string) error {
	if err := s.repo.DeleteConversation(ctx, conversationID); err != nil {
		return &PersistenceError{Op: "delete conversation", Err: err}
	}
	kept := s.conversations[:0]
	for _, c := range s.conversations {
		if c.ID != conversationID {
			kept = append(kept, c)
		}
	}
	s.conversations = kept
	s.notify(EventConversations)
	if s.currentID == conversationID {
		s.currentID = ""
		s.messages = nil
		s.notify(EventCurrent)
	}
	return nil
}

// Rename sets an explicit title; derived titles never overwrite it again.
func (s *Store) Rename(ctx context.Context, id, title string) error {
	conv := s.find(id)
	if conv == nil {
		return nil
	}
	conv.Title = title
	conv.UpdatedAt = time.Now()
	if err := s.repo.SaveConversation(ctx, conv); err != nil {
		return &PersistenceError{Op: "rename conversation", Err: err}
	}
	s.notify(EventConversations)
	return nil
}

// TruncateAfter drops every message of the current conversation ordered
// after messageID, in cache and durably. Unknown IDs are a no-op.
func (s *Store) TruncateAfter(ctx context.Context, messageID string) error {
	idx := -1
	for i := range s.messages {
		if s.messages[i].ID == messageID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return nil
	}
	anchor := s.messages[idx]
	if err := s.repo.DeleteMessagesAfter(ctx, anchor.ConversationID, anchor); err != nil {
		return &PersistenceError{Op: "truncate messages", Err: err}
	}
	s.messages = s.messages[:idx+1]
	s.lastTimestamp = anchor.Timestamp
	s.notify(EventMessages)
	if err := s.refreshMetadata(ctx, anchor); err != nil {
		s.log.Warn().Err(err).Str("conversation", anchor.ConversationID).Msg("metadata refresh failed")
	}
	return nil
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func deriveTitle(content string) string {
	if len([]rune(content)) > titleLen {
		return truncate(content, titleLen) + "..."
	}
	return content
}
