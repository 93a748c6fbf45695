package modem

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/warthog618/sms/encoding/ucs2"

	"i4.energy/across/gsmmodem/at"
	"i4.energy/across/gsmmodem/pdu"
)

// Modem represents a GSM/3G/4G cellular modem that communicates via AT commands
// in PDU mode. All operations are safe for concurrent use; they are serialized
// by the Engine so only one exchange is on the wire at a time.
type Modem struct {
	// transport provides the physical connection to the modem (serial, TCP, etc.)
	transport Transport
	// config contains the modem configuration settings
	config Config
	engine *Engine
	// listener feeds queue with the indices announced by +CMTI
	listener *Listener
	queue    *IndexQueue
	encoder  *pdu.Encoder
	logger   *slog.Logger

	mu sync.Mutex
	// closed indicates if the modem has been shut down
	closed bool
	// serviceCenter is the SMSC written into outgoing PDUs
	serviceCenter string

	// lastSubmit paces submissions; only touched while the engine guard is held
	lastSubmit time.Time
}

// New creates a new Modem instance with the given configuration. It only
// establishes the transport connection; start Loop and then call Open
// before using the modem.
func New(ctx context.Context, config Config) (*Modem, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	config.setDefaults()

	transport, err := config.Dialer.Dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("dial modem: %w", err)
	}
	if transport == nil {
		return nil, ErrNotInitialized
	}

	logger := config.Logger
	queue := NewIndexQueue()
	listener := NewListener(queue, logger.With("component", "listener"))

	return &Modem{
		transport:     transport,
		config:        config,
		engine:        NewEngine(transport, listener, config.ATTimeout, logger.With("component", "engine")),
		listener:      listener,
		queue:         queue,
		encoder:       pdu.NewEncoder(),
		logger:        logger,
		serviceCenter: config.ServiceCenter,
	}, nil
}

// Loop is the main event loop that reads the transport. It must be started
// exactly once, typically in its own goroutine, before Open or any other
// operation, and runs until ctx is cancelled or the transport fails.
//
//	m, err := modem.New(ctx, config)
//	if err != nil { return err }
//	go m.Loop(ctx)
//	if err := m.Open(ctx); err != nil { return err }
func (m *Modem) Loop(ctx context.Context) error {
	err := m.engine.Run(ctx)
	if err != nil && ctx.Err() == nil {
		m.logger.Error("modem loop stopped", "error", err)
	}
	return err
}

// Open prepares the modem for PDU messaging: echo off, PDU mode and new
// message indications routed as +CMTI. Any failure aborts the sequence.
func (m *Modem) Open(ctx context.Context) error {
	if err := m.check(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, m.config.InitTimeout)
	defer cancel()

	steps := []struct {
		cmd  string
		what string
	}{
		{at.CmdEchoOff, "disable echo"},
		{at.CmdPDUMode, "select PDU mode"},
		{at.CmdNotifyNewMessage, "configure new message indications"},
	}
	for _, step := range steps {
		if _, err := m.engine.Execute(ctx, Command{Text: step.cmd}); err != nil {
			return fmt.Errorf("%s: %w", step.what, err)
		}
	}
	m.logger.Info("modem ready")
	return nil
}

// URC returns a read-only channel that receives Unsolicited Result Codes
// seen outside command exchanges (e.g., incoming SMS, status reports, RING).
// The channel is buffered, but may drop some URC if not consumed fast enough.
func (m *Modem) URC() <-chan string {
	return m.listener.URC()
}

// Close shuts down the modem and releases all resources. Closing the
// transport ends Loop. After calling Close(), the modem cannot be reused.
func (m *Modem) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrAlreadyClosed
	}
	m.closed = true
	return m.transport.Close()
}

func (m *Modem) check() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrAlreadyClosed
	}
	return nil
}

// Exec runs one raw AT command and returns every response line.
func (m *Modem) Exec(ctx context.Context, cmd string) (Response, error) {
	if err := m.check(); err != nil {
		return nil, err
	}
	return m.engine.Execute(ctx, Command{Text: strings.TrimSpace(cmd)})
}

// Manufacturer returns the AT+CGMI identification.
func (m *Modem) Manufacturer(ctx context.Context) (string, error) {
	resp, err := m.Exec(ctx, at.CmdManufacturer)
	if err != nil {
		return "", err
	}
	var parts []string
	for _, line := range resp.Info() {
		parts = append(parts, strings.TrimSpace(strings.TrimPrefix(line, "+CGMI:")))
	}
	return strings.Join(parts, " "), nil
}

// SetServiceCenter overrides the SMSC used for outgoing messages. It is not
// written to the SIM.
func (m *Modem) SetServiceCenter(number string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.serviceCenter = number
}

// ServiceCenter returns the SMSC configured or set with SetServiceCenter,
// falling back to the number reported by AT+CSCA?.
func (m *Modem) ServiceCenter(ctx context.Context) (string, error) {
	if sca := m.localServiceCenter(); sca != "" {
		return sca, nil
	}
	resp, err := m.Exec(ctx, at.CmdServiceCenter)
	if err != nil {
		return "", err
	}
	for _, line := range resp.Info() {
		if strings.HasPrefix(line, at.InfoServiceCenter) {
			return parseServiceCenter(line)
		}
	}
	return "", fmt.Errorf("%w: no %s line in %q", ErrMalformedResponse, at.InfoServiceCenter, resp.String())
}

func (m *Modem) localServiceCenter() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.serviceCenter
}

// parseServiceCenter extracts the quoted number of a +CSCA line. Modems
// with the UCS2 character set report it as hex encoded UTF-16.
func parseServiceCenter(line string) (string, error) {
	fields := strings.SplitN(line, `"`, 3)
	if len(fields) < 3 {
		return "", fmt.Errorf("%w: unquoted service centre in %q", ErrMalformedResponse, line)
	}
	number := fields[1]
	if len(number) >= 4 && len(number)%4 == 0 {
		if raw, err := hex.DecodeString(number); err == nil {
			if runes, err := ucs2.Decode(raw); err == nil && dialable(runes) {
				return string(runes), nil
			}
		}
	}
	return number, nil
}

func dialable(runes []rune) bool {
	for i, r := range runes {
		if (r < '0' || r > '9') && !(r == '+' && i == 0) {
			return false
		}
	}
	return true
}
