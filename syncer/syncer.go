// Package syncer implements the local-first synchronization layer.
//
// The Manager is the application's only write path into the local
// store for chats and messages. Every operation is optimistic: the
// local write commits synchronously (so a live query issued right
// after observes it), then exactly one remote propagation attempt is
// enqueued. Remote failures never roll back local state; they surface
// on a non-blocking error channel and in the log.
package syncer

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/recallhq/recall-go-sdk/core"
	"github.com/recallhq/recall-go-sdk/remote"
	"github.com/recallhq/recall-go-sdk/store"
)

// SyncState tracks where an entity stands relative to the remote store.
type SyncState string

const (
	StatePending SyncState = "pending"
	StateSynced  SyncState = "synced"
	StateFailed  SyncState = "failed"
)

// SyncError reports a failed remote propagation. Local state for the
// entity remains authoritative.
type SyncError struct {
	Op       string
	EntityID string
	Err      error
}

func (e SyncError) Error() string {
	return fmt.Sprintf("sync %s %s: %v", e.Op, e.EntityID, e.Err)
}

// MessageHook runs synchronously after a message commits locally.
// The memory engine registers itself here to record one entry per
// message.
type MessageHook func(ctx context.Context, msg core.Message)

// Manager owns chat and message mutations.
type Manager struct {
	store  store.Store
	remote remote.Client // optional: nil keeps everything local
	hook   MessageHook

	mu     sync.Mutex
	seq    map[string]int64 // per-chat insertion counter
	states map[string]SyncState

	errs     chan SyncError
	inflight sync.WaitGroup
}

// Option configures the manager.
type Option func(*Manager)

// WithMessageHook registers a hook invoked after every local message
// commit.
func WithMessageHook(h MessageHook) Option {
	return func(m *Manager) { m.hook = h }
}

// New creates a sync manager over the given local store. rc may be nil
// for purely local operation.
func New(st store.Store, rc remote.Client, opts ...Option) *Manager {
	m := &Manager{
		store:  st,
		remote: rc,
		seq:    make(map[string]int64),
		states: make(map[string]SyncState),
		errs:   make(chan SyncError, 16),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateChat allocates a new chat with the default title sentinel,
// writes it locally, and propagates it remotely.
func (m *Manager) CreateChat(ctx context.Context) (core.Chat, error) {
	now := time.Now().UTC()
	chat := core.Chat{
		ID:        core.NewChatID(),
		Title:     core.DefaultChatTitle,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.store.Write(store.TableChats, chat.ID, chat); err != nil {
		return core.Chat{}, err
	}
	m.propagate(ctx, "chat.create", chat.ID, func(ctx context.Context) error {
		return m.remote.CreateChat(ctx, chat)
	})
	return chat, nil
}

// CreateMessage appends a message to an existing chat. The local write
// is synchronous with respect to the caller; remote propagation is not.
func (m *Manager) CreateMessage(ctx context.Context, chatID string, role core.Role, content string) (core.Message, error) {
	if !role.Valid() {
		return core.Message{}, fmt.Errorf("create message: invalid role %q", role)
	}
	chat, err := m.Chat(ctx, chatID)
	if err != nil {
		return core.Message{}, err
	}

	now := time.Now().UTC()
	msg := core.Message{
		ID:        core.NewID(),
		ChatID:    chatID,
		Role:      role,
		Content:   content,
		Seq:       m.nextSeq(chatID),
		CreatedAt: now,
	}
	if err := m.store.Write(store.TableMessages, msg.ID, msg); err != nil {
		return core.Message{}, err
	}

	// Touch the chat so recency ordering follows activity.
	chat.UpdatedAt = now
	if err := m.store.Write(store.TableChats, chat.ID, chat); err != nil {
		return core.Message{}, err
	}

	if m.hook != nil {
		m.hook(ctx, msg)
	}

	m.propagate(ctx, "message.create", msg.ID, func(ctx context.Context) error {
		return m.remote.CreateMessage(ctx, msg)
	})
	return msg, nil
}

// UpdateChat merges the patch into the chat record and propagates the
// merged record. Re-applying an identical patch is a no-op.
func (m *Manager) UpdateChat(ctx context.Context, chatID string, patch core.ChatPatch) (core.Chat, error) {
	chat, err := m.Chat(ctx, chatID)
	if err != nil {
		return core.Chat{}, err
	}

	changed := false
	if patch.Title != nil && *patch.Title != chat.Title {
		chat.Title = *patch.Title
		changed = true
	}
	if !changed {
		return chat, nil
	}

	chat.UpdatedAt = time.Now().UTC()
	if err := m.store.Write(store.TableChats, chat.ID, chat); err != nil {
		return core.Chat{}, err
	}
	m.propagate(ctx, "chat.update", chat.ID, func(ctx context.Context) error {
		return m.remote.UpdateChat(ctx, chat)
	})
	return chat, nil
}

// DeleteChat removes the chat and cascades removal of its messages from
// the local store. Remote propagation is fire-and-forget; retry is the
// transport's concern.
func (m *Manager) DeleteChat(ctx context.Context, chatID string) error {
	if _, err := m.Chat(ctx, chatID); err != nil {
		return err
	}

	msgs, err := m.Messages(ctx, chatID)
	if err != nil {
		return err
	}
	for _, msg := range msgs {
		if err := m.store.Delete(store.TableMessages, msg.ID); err != nil {
			return err
		}
	}
	if err := m.store.Delete(store.TableChats, chatID); err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.seq, chatID)
	m.mu.Unlock()

	m.propagate(ctx, "chat.delete", chatID, func(ctx context.Context) error {
		return m.remote.DeleteChat(ctx, chatID)
	})
	return nil
}

// Chat returns a chat by ID, or core.ErrUnknownChat.
func (m *Manager) Chat(ctx context.Context, chatID string) (core.Chat, error) {
	v, ok, err := m.store.Read(store.TableChats, chatID)
	if err != nil {
		return core.Chat{}, err
	}
	if !ok {
		return core.Chat{}, fmt.Errorf("chat %s: %w", chatID, core.ErrUnknownChat)
	}
	return v.(core.Chat), nil
}

// Messages returns a chat's messages ordered by creation time, ties
// broken by insertion order.
func (m *Manager) Messages(ctx context.Context, chatID string) ([]core.Message, error) {
	recs, err := m.store.List(store.TableMessages, func(v any) bool {
		msg, ok := v.(core.Message)
		return ok && msg.ChatID == chatID
	})
	if err != nil {
		return nil, err
	}
	msgs := make([]core.Message, 0, len(recs))
	for _, r := range recs {
		msgs = append(msgs, r.(core.Message))
	}
	sortMessages(msgs)
	return msgs, nil
}

// MessageCount returns the running message count for a chat.
func (m *Manager) MessageCount(ctx context.Context, chatID string) (int, error) {
	msgs, err := m.Messages(ctx, chatID)
	if err != nil {
		return 0, err
	}
	return len(msgs), nil
}

// LiveChats opens a live query over all chats, ordered by recency.
func (m *Manager) LiveChats(ctx context.Context) *ChatSubscription {
	raw := m.store.Subscribe(store.TableChats, nil)
	sub := &ChatSubscription{raw: raw, ch: make(chan []core.Chat, 1)}
	go sub.run()
	return sub
}

// LiveMessages opens a live query over one chat's messages in creation
// order.
func (m *Manager) LiveMessages(ctx context.Context, chatID string) *MessageSubscription {
	raw := m.store.Subscribe(store.TableMessages, func(v any) bool {
		msg, ok := v.(core.Message)
		return ok && msg.ChatID == chatID
	})
	sub := &MessageSubscription{raw: raw, ch: make(chan []core.Message, 1)}
	go sub.run()
	return sub
}

// State reports the sync state for an entity ID. Entities that never
// had a remote propagation report StateSynced.
func (m *Manager) State(entityID string) SyncState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.states[entityID]; ok {
		return s
	}
	return StateSynced
}

// Errors is the non-blocking side channel for remote propagation
// failures. When nobody drains it, failures are still logged.
func (m *Manager) Errors() <-chan SyncError {
	return m.errs
}

// Wait blocks until all enqueued remote propagations have finished.
func (m *Manager) Wait() {
	m.inflight.Wait()
}

func (m *Manager) nextSeq(chatID string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq[chatID]++
	return m.seq[chatID]
}

// propagate enqueues exactly one remote attempt for a local write.
// Propagation survives the caller's context: an abandoned UI context
// must not skip the remote write.
func (m *Manager) propagate(ctx context.Context, op, entityID string, call func(context.Context) error) {
	if m.remote == nil {
		return
	}
	m.setState(entityID, StatePending)

	rctx := context.WithoutCancel(ctx)
	m.inflight.Add(1)
	go func() {
		defer m.inflight.Done()
		if err := call(rctx); err != nil {
			m.setState(entityID, StateFailed)
			log.Warn("remote propagation failed", "op", op, "entity", entityID, "err", err)
			select {
			case m.errs <- SyncError{Op: op, EntityID: entityID, Err: err}:
			default:
			}
			return
		}
		m.setState(entityID, StateSynced)
		log.Debug("remote propagation done", "op", op, "entity", entityID)
	}()
}

func (m *Manager) setState(entityID string, s SyncState) {
	m.mu.Lock()
	m.states[entityID] = s
	m.mu.Unlock()
}

func sortMessages(msgs []core.Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].Seq < msgs[j].Seq
		}
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
}
