package modem

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"i4.energy/across/gsmmodem/at"
)

// Command is one AT exchange. When Prompt is set the exchange ends as soon
// as that text arrives, leaving the caller to submit a body in the same
// session; otherwise it ends at the first final result code.
type Command struct {
	Text   string
	Prompt string
}

// Response holds the lines of one exchange, terminator included. Blank
// lines and unsolicited result codes are not part of it.
type Response []string

// Final returns the terminator line.
func (r Response) Final() string {
	if len(r) == 0 {
		return ""
	}
	return r[len(r)-1]
}

// Info returns the lines before the terminator.
func (r Response) Info() []string {
	if len(r) == 0 {
		return nil
	}
	return r[:len(r)-1]
}

func (r Response) String() string {
	return strings.Join(r, "\n")
}

// inputResetter is implemented by serial ports that can drop bytes already
// received but not yet read.
type inputResetter interface {
	ResetInputBuffer() error
}

// Engine owns the transport. Run is the only reader; it hands each line
// either to the listener or, while an exchange holds the guard, to that
// exchange. At most one exchange is in flight at a time.
type Engine struct {
	transport Transport
	listener  *Listener
	timeout   time.Duration
	logger    *slog.Logger

	guard   sync.Mutex
	lines   chan string
	running atomic.Bool

	stopOnce sync.Once
	stopped  chan struct{}
	stopErr  error
}

func NewEngine(transport Transport, listener *Listener, timeout time.Duration, logger *slog.Logger) *Engine {
	return &Engine{
		transport: transport,
		listener:  listener,
		timeout:   timeout,
		logger:    logger,
		lines:     make(chan string, 64),
		stopped:   make(chan struct{}),
	}
}

// Run reads the transport until ctx is cancelled or the transport fails. It
// must be running for any exchange to complete.
func (e *Engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return ErrLoopRunning
	}
	err := e.run(ctx)
	e.stop(err)
	return err
}

func (e *Engine) run(ctx context.Context) error {
	scanner := bufio.NewScanner(e.transport)
	scanner.Split(at.Splitter)

	// Unbuffered, so every token is routed before the scan error is seen.
	tokens := make(chan string)
	scanErr := make(chan error, 1)

	go func() {
		for scanner.Scan() {
			token := scanner.Text()
			if strings.TrimSpace(token) == "" {
				continue
			}
			select {
			case tokens <- token:
			case <-ctx.Done():
				return
			}
		}
		err := scanner.Err()
		if err == nil {
			err = io.EOF
		}
		scanErr <- err
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case token := <-tokens:
			e.route(token)
		case err := <-scanErr:
			switch {
			case errors.Is(err, io.EOF):
				return err
			case errors.Is(err, bufio.ErrTooLong):
				return fmt.Errorf("%w: %w", ErrLineTooLong, err)
			default:
				return fmt.Errorf("scanner error: %w", err)
			}
		}
	}
}

func (e *Engine) route(line string) {
	if e.listener.Enabled() {
		e.listener.Handle(line)
		return
	}
	select {
	case e.lines <- line:
	default:
		e.logger.Warn("response buffer full, dropping line", "line", line)
	}
}

func (e *Engine) stop(err error) {
	e.stopOnce.Do(func() {
		e.stopErr = err
		close(e.stopped)
	})
}

// Do runs fn as one exclusive exchange: stale input is discarded, the
// listener is disabled, and both the listener and the guard are restored
// however fn returns.
func (e *Engine) Do(ctx context.Context, fn func(*Session) error) error {
	e.guard.Lock()
	defer e.guard.Unlock()

	select {
	case <-e.stopped:
		return fmt.Errorf("%w: %w", ErrLoopStopped, e.stopErr)
	default:
	}

	e.discard()
	e.listener.Disable()
	defer e.listener.Enable()

	return fn(&Session{engine: e, ctx: ctx})
}

// Execute runs a single command in its own exchange.
func (e *Engine) Execute(ctx context.Context, cmd Command) (Response, error) {
	var resp Response
	err := e.Do(ctx, func(s *Session) error {
		var err error
		resp, err = s.Execute(cmd)
		return err
	})
	return resp, err
}

func (e *Engine) discard() {
	for {
		select {
		case line := <-e.lines:
			e.logger.Debug("discarding stale line", "line", line)
		default:
			if r, ok := e.transport.(inputResetter); ok {
				if err := r.ResetInputBuffer(); err != nil {
					e.logger.Debug("reset input buffer", "error", err)
				}
			}
			return
		}
	}
}

// Session is the handle an exchange uses while Do holds the guard.
type Session struct {
	engine *Engine
	ctx    context.Context
}

// Execute writes cmd followed by a carriage return and collects its
// response. A final result other than OK is returned as a *DeviceError
// together with the lines read so far.
func (s *Session) Execute(cmd Command) (Response, error) {
	if err := s.write(cmd.Text + at.CR); err != nil {
		return nil, err
	}
	if cmd.Prompt != "" {
		resp, err := s.awaitPrompt(cmd)
		if err != nil && awaitingInput(err) {
			s.abort()
		}
		return resp, err
	}
	return s.collect(cmd.Text)
}

// Submit writes a body terminated by Ctrl-Z, with no carriage return, and
// collects the response. It follows an Execute that waited for a prompt.
func (s *Session) Submit(body string) (Response, error) {
	if err := s.write(body + at.CtrlZ); err != nil {
		s.abort()
		return nil, err
	}
	return s.collect("body")
}

// abortSettle bounds the wait for the modem to acknowledge an escape.
const abortSettle = 500 * time.Millisecond

// awaitingInput reports whether the modem may still be waiting for a body
// after a prompt wait failed with err. A final result code means it is not.
func awaitingInput(err error) bool {
	var devErr *DeviceError
	return !errors.As(err, &devErr) && !errors.Is(err, ErrMalformedResponse)
}

// abort cancels body input with ESC and drains the acknowledgement, if
// any, so it cannot be taken for the answer to the next command. It runs
// even when the caller's context is done.
func (s *Session) abort() {
	if err := s.write(at.Esc); err != nil {
		s.engine.logger.Warn("cancel body input", "error", err)
		return
	}
	settle := min(abortSettle, s.engine.timeout)
	timer := time.NewTimer(settle)
	defer timer.Stop()
	for {
		select {
		case line := <-s.engine.lines:
			line = strings.TrimSpace(line)
			s.engine.logger.Debug("rx", "line", line)
			if at.Classify(line) == at.TypeFinal {
				return
			}
		case <-timer.C:
			return
		case <-s.engine.stopped:
			return
		}
	}
}

func (s *Session) write(wire string) error {
	s.engine.logger.Debug("tx", "data", strings.TrimRight(wire, at.CR+at.CtrlZ+at.Esc))
	if _, err := s.engine.transport.Write([]byte(wire)); err != nil {
		return fmt.Errorf("write %q: %w", strings.TrimSpace(wire), err)
	}
	return nil
}

func (s *Session) collect(what string) (Response, error) {
	ctx, cancel := context.WithTimeout(s.ctx, s.engine.timeout)
	defer cancel()

	var resp Response
	for {
		line, err := s.readLine(ctx, what)
		if err != nil {
			return resp, err
		}
		switch at.Classify(line) {
		case at.TypeURC:
			s.engine.logger.Debug("unsolicited line during exchange, not queued", "line", line)
		case at.TypeFinal:
			resp = append(resp, line)
			if line == at.OK {
				return resp, nil
			}
			return resp, &DeviceError{Command: what, Line: line}
		default:
			resp = append(resp, line)
		}
	}
}

func (s *Session) awaitPrompt(cmd Command) (Response, error) {
	ctx, cancel := context.WithTimeout(s.ctx, s.engine.timeout)
	defer cancel()

	prompt := strings.TrimSpace(cmd.Prompt)
	var resp Response
	for {
		line, err := s.readLine(ctx, cmd.Text)
		if err != nil {
			return resp, err
		}
		if line == prompt {
			return append(resp, line), nil
		}
		switch at.Classify(line) {
		case at.TypeURC:
			s.engine.logger.Debug("unsolicited line during exchange, not queued", "line", line)
		case at.TypeFinal:
			resp = append(resp, line)
			if line == at.OK {
				return resp, fmt.Errorf("%w: %s finished without prompt %q", ErrMalformedResponse, cmd.Text, prompt)
			}
			return resp, &DeviceError{Command: cmd.Text, Line: line}
		default:
			resp = append(resp, line)
		}
	}
}

// readLine returns the next trimmed line of the exchange. A deadline of the
// per-command timeout becomes ErrTransportTimeout; cancellation of the
// caller's context is returned as is.
func (s *Session) readLine(ctx context.Context, what string) (string, error) {
	select {
	case line := <-s.engine.lines:
		s.engine.logger.Debug("rx", "line", line)
		return strings.TrimSpace(line), nil
	case <-ctx.Done():
		if s.ctx.Err() != nil {
			return "", s.ctx.Err()
		}
		return "", fmt.Errorf("%w: %s after %s", ErrTransportTimeout, what, s.engine.timeout)
	case <-s.engine.stopped:
		return "", fmt.Errorf("%w: %w", ErrLoopStopped, s.engine.stopErr)
	}
}
