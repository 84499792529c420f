package syncer

import (
	"sort"

	"github.com/recallhq/recall-go-sdk/core"
	"github.com/recallhq/recall-go-sdk/store"
)

// ChatSubscription is a typed live query over chats, ordered by
// recency (most recently updated first). Snapshots are coalesced the
// same way as the underlying store subscription.
type ChatSubscription struct {
	raw store.Subscription
	ch  chan []core.Chat
}

// Snapshots returns the reactive sequence of chat lists.
func (s *ChatSubscription) Snapshots() <-chan []core.Chat { return s.ch }

// Close ends the subscription.
func (s *ChatSubscription) Close() { s.raw.Close() }

func (s *ChatSubscription) run() {
	defer close(s.ch)
	for snap := range s.raw.Snapshots() {
		chats := make([]core.Chat, 0, len(snap))
		for _, v := range snap {
			if c, ok := v.(core.Chat); ok {
				chats = append(chats, c)
			}
		}
		sort.SliceStable(chats, func(i, j int) bool {
			return chats[i].UpdatedAt.After(chats[j].UpdatedAt)
		})
		push(s.ch, chats)
	}
}

// MessageSubscription is a typed live query over one chat's messages in
// creation order.
type MessageSubscription struct {
	raw store.Subscription
	ch  chan []core.Message
}

// Snapshots returns the reactive sequence of message lists.
func (s *MessageSubscription) Snapshots() <-chan []core.Message { return s.ch }

// Close ends the subscription.
func (s *MessageSubscription) Close() { s.raw.Close() }

func (s *MessageSubscription) run() {
	defer close(s.ch)
	for snap := range s.raw.Snapshots() {
		msgs := make([]core.Message, 0, len(snap))
		for _, v := range snap {
			if m, ok := v.(core.Message); ok {
				msgs = append(msgs, m)
			}
		}
		sortMessages(msgs)
		push(s.ch, msgs)
	}
}

// push coalesces like the store layer: at most one pending snapshot,
// newest wins.
func push[T any](ch chan []T, snap []T) {
	select {
	case <-ch:
	default:
	}
	ch <- snap
}
