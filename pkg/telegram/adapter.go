package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/bridgecall/bridgecall/pkg/models"
	"github.com/bridgecall/bridgecall/pkg/store"
)

// Classify maps one webhook update to the matcher's normalized input.
// callbackID is non-empty for button presses and must be acked. ok is false
// for updates the bot ignores (channel posts, edits, non-private chats).
//
// Unknown callback_data still classifies: the matcher answers it with an
// Unexpected reply, so a stale button never crashes processing.
func Classify(upd Update) (in models.InboundUpdate, callbackID string, ok bool) {
	if cb := upd.CallbackQuery; cb != nil {
		uid := models.Uid(cb.From.ID)
		if uid == models.None {
			return models.InboundUpdate{}, "", false
		}
		cmd, known := models.ParseCmd(cb.Data)
		if !known {
			// Stale button, or an injected value like "sched" that only
			// the scheduler may produce. Forward anyway for the
			// Unexpected reply.
			slog.Debug("Unknown callback_data", "uid", uid, "data", cb.Data)
		}
		return models.NewCallback(uid, cmd), cb.ID, true
	}

	msg := upd.Message
	if msg == nil || msg.From == nil || msg.From.IsBot {
		return models.InboundUpdate{}, "", false
	}
	if msg.Chat.Type != "" && msg.Chat.Type != "private" {
		return models.InboundUpdate{}, "", false
	}
	uid := models.Uid(msg.From.ID)
	if uid == models.None {
		return models.InboundUpdate{}, "", false
	}

	if strings.HasPrefix(msg.Text, "/start") {
		return models.NewStart(uid, msg.From.DisplayName()), "", true
	}
	return models.NewText(uid, msg.Text), "", true
}

// Sender is the Bot API surface the dispatcher needs; *Client implements it.
type Sender interface {
	Call(ctx context.Context, method Method) (json.RawMessage, error)
}

// Dispatcher renders the matcher's outbound messages and sends them through
// the Bot API. It tracks the last interactive (keyboard-carrying) message id
// per user so countdown refreshes edit in place instead of flooding the chat.
type Dispatcher struct {
	client Sender
	db     *store.DB

	mu      sync.Mutex
	lastMsg map[models.Uid]int64
}

// NewDispatcher creates a dispatcher sending through client. db provides the
// recipient profile for gendered rendering.
func NewDispatcher(client Sender, db *store.DB) *Dispatcher {
	return &Dispatcher{
		client:  client,
		db:      db,
		lastMsg: make(map[models.Uid]int64),
	}
}

// Deliver sends the batch in order. The first failure aborts the remainder;
// state is already committed, so nothing is rolled back.
func (d *Dispatcher) Deliver(ctx context.Context, msgs []models.OutboundMessage) error {
	for _, msg := range msgs {
		if err := d.deliverOne(ctx, msg); err != nil {
			return fmt.Errorf("failed to deliver %s to uid %d: %w", msg.Kind, msg.UID, err)
		}
	}
	return nil
}

func (d *Dispatcher) deliverOne(ctx context.Context, msg models.OutboundMessage) error {
	sex, opinion := d.recipientProfile(msg.UID)
	rendered, err := Render(msg, sex, opinion)
	if err != nil {
		return err
	}

	chatID := int64(msg.UID)
	if rendered.EditInPlace {
		if lastID, ok := d.last(msg.UID); ok {
			_, err := d.client.Call(ctx, EditMessageText{
				ChatID:      chatID,
				MessageID:   lastID,
				Text:        rendered.Text,
				Entities:    rendered.Entities,
				ReplyMarkup: rendered.Keyboard,
			})
			if err != nil {
				// The message may have been deleted by the user; fall
				// through to a fresh send.
				slog.Debug("Edit failed, sending new message", "uid", msg.UID, "error", err)
			} else {
				return nil
			}
		}
	}

	result, err := d.client.Call(ctx, SendMessage{
		ChatID:      chatID,
		Text:        rendered.Text,
		Entities:    rendered.Entities,
		ReplyMarkup: rendered.Keyboard,
	})
	if err != nil {
		return err
	}

	// Unexpected replies never supersede the pending interactive message;
	// every other send replaces (or clears) the tracked id.
	if msg.Kind == models.KindUnexpected {
		return nil
	}
	if rendered.Keyboard == nil {
		d.forget(msg.UID)
		return nil
	}
	var sent Message
	if err := json.Unmarshal(result, &sent); err != nil {
		slog.Warn("Could not decode sent message, dropping message-id tracking",
			"uid", msg.UID, "error", err)
		d.forget(msg.UID)
		return nil
	}
	d.remember(msg.UID, sent.MessageID)
	return nil
}

// recipientProfile peeks the recipient's state for rendering. Pre-opinion
// states render with zero values, which the templates tolerate.
func (d *Dispatcher) recipientProfile(uid models.Uid) (models.Sex, models.Opinion) {
	state, ok := d.db.PeekState(uid)
	if !ok {
		return "", ""
	}
	switch s := state.(type) {
	case models.WaitingForName:
		return s.Sex, s.Opinion
	case models.Registered:
		p := s.Profile()
		return p.Sex, p.Opinion
	}
	return "", ""
}

func (d *Dispatcher) last(uid models.Uid) (int64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id, ok := d.lastMsg[uid]
	return id, ok
}

func (d *Dispatcher) remember(uid models.Uid, msgID int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastMsg[uid] = msgID
}

func (d *Dispatcher) forget(uid models.Uid) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.lastMsg, uid)
}
