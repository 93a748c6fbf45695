package modem

import (
	"log/slog"
	"strings"
	"sync/atomic"

	"i4.energy/across/gsmmodem/at"
)

// Listener scans lines that arrive while no exchange is in flight. New
// message indications are parsed into the index queue; every unsolicited
// line is also offered on the URC channel.
//
// The Engine disables the listener for the duration of each exchange. Lines
// arriving in that window belong to the exchange and never reach Handle.
type Listener struct {
	enabled atomic.Bool
	queue   *IndexQueue
	urc     chan string
	logger  *slog.Logger
}

func NewListener(queue *IndexQueue, logger *slog.Logger) *Listener {
	l := &Listener{
		queue:  queue,
		urc:    make(chan string, 100), // Buffered to prevent blocking on URCs
		logger: logger,
	}
	l.enabled.Store(true)
	return l
}

func (l *Listener) Enable()       { l.enabled.Store(true) }
func (l *Listener) Disable()      { l.enabled.Store(false) }
func (l *Listener) Enabled() bool { return l.enabled.Load() }

// URC returns the channel of unsolicited lines. It is never closed and drops
// lines when nobody is reading.
func (l *Listener) URC() <-chan string {
	return l.urc
}

// Handle never blocks. Lines that are not unsolicited result codes, and new
// message indications without a usable index, are ignored.
func (l *Listener) Handle(line string) {
	line = strings.TrimSpace(line)
	if at.Classify(line) != at.TypeURC {
		return
	}

	if index, ok := at.NewMessageIndex(line); ok {
		l.queue.Push(index)
		l.logger.Debug("new message indication", "index", index)
	}

	select {
	case l.urc <- line:
	default:
		l.logger.Debug("urc channel full, dropping", "line", line)
	}
}
