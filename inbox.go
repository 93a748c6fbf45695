package main

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"i4.energy/across/gsmmodem/modem"
	"i4.energy/across/gsmmodem/pdu"
)

// InboxEvent is published for every received message, or for every
// completed message when parts are merged.
type InboxEvent struct {
	ID         string       `json:"id"`
	Index      int          `json:"index"`
	ReceivedAt time.Time    `json:"received_at"`
	Message    *pdu.Message `json:"message"`
}

// Sink receives inbox events. Publish must not block for long; the pump
// waits for it before reading the next message.
type Sink interface {
	Publish(ev InboxEvent)
}

// InboxSource is the part of *modem.Modem the pump uses.
type InboxSource interface {
	UnreadMessages(ctx context.Context) ([]modem.StoredMessage, error)
	ReadNewMessage(ctx context.Context) (modem.StoredMessage, error)
}

// Inbox drains the new message queue of a modem and hands every message
// to its sinks.
type Inbox struct {
	Source InboxSource
	Sinks  []Sink
	// Assembler merges concatenated parts; nil publishes parts as they come
	Assembler *pdu.Assembler
	Logger    *slog.Logger
}

// Run publishes the unread backlog and then every newly indicated message
// until ctx is done or the modem stops. Failures to read a single message
// are logged and skipped.
func (in *Inbox) Run(ctx context.Context) error {
	backlog, err := in.Source.UnreadMessages(ctx)
	if err != nil {
		if fatal(ctx, err) {
			return err
		}
		in.Logger.Warn("Failed to list unread messages", "error", err)
	}
	for _, sm := range backlog {
		in.deliver(sm)
	}

	for {
		sm, err := in.Source.ReadNewMessage(ctx)
		if err != nil {
			if fatal(ctx, err) {
				return err
			}
			in.Logger.Warn("Failed to read new message", "index", sm.Index, "error", err)
			continue
		}
		in.deliver(sm)
	}
}

func fatal(ctx context.Context, err error) bool {
	return ctx.Err() != nil ||
		errors.Is(err, modem.ErrLoopStopped) ||
		errors.Is(err, modem.ErrAlreadyClosed)
}

func (in *Inbox) deliver(sm modem.StoredMessage) {
	msg := sm.Message
	if in.Assembler != nil {
		merged, ok := in.Assembler.Add(msg)
		if !ok {
			in.Logger.Debug("Waiting for remaining parts", "index", sm.Index, "from", msg.Number)
			return
		}
		msg = merged
	}

	ev := InboxEvent{
		ID:         uuid.NewString(),
		Index:      sm.Index,
		ReceivedAt: time.Now().UTC(),
		Message:    msg,
	}
	in.Logger.Info("Message received", "id", ev.ID, "index", sm.Index, "from", msg.Number, "length", len(msg.Text))
	for _, sink := range in.Sinks {
		sink.Publish(ev)
	}
}
