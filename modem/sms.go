package modem

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"i4.energy/across/gsmmodem/at"
	"i4.energy/across/gsmmodem/pdu"
)

// Status is the storage status of a message in PDU mode.
type Status int

const (
	StatusReceivedUnread Status = iota
	StatusReceivedRead
	StatusStoredUnsent
	StatusStoredSent
)

func (s Status) String() string {
	switch s {
	case StatusReceivedUnread:
		return "REC UNREAD"
	case StatusReceivedRead:
		return "REC READ"
	case StatusStoredUnsent:
		return "STO UNSENT"
	case StatusStoredSent:
		return "STO SENT"
	default:
		return "UNKNOWN"
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	for st := StatusReceivedUnread; st <= StatusStoredSent; st++ {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown message status %q", text)
}

// StoredMessage is a message held in SIM storage.
type StoredMessage struct {
	Index   int          `json:"index"`
	Status  Status       `json:"status"`
	Message *pdu.Message `json:"message"`
}

// SendSMS encodes text for number and submits every part in one exclusive
// exchange, so no other command can interleave between a part's AT+CMGS and
// its body. It returns the number of parts the device accepted. The first
// failing part stops the send and is reported as a *SendError.
func (m *Modem) SendSMS(ctx context.Context, number, text string) (int, error) {
	if err := m.check(); err != nil {
		return 0, err
	}
	parts, err := m.encoder.Encode(number, text, m.localServiceCenter())
	if err != nil {
		return 0, err
	}

	sent := 0
	err = m.engine.Do(ctx, func(s *Session) error {
		for i, part := range parts {
			if err := m.submit(ctx, s, part); err != nil {
				return &SendError{Part: i + 1, Total: len(parts), Err: err}
			}
			sent++
		}
		return nil
	})
	if err != nil {
		return sent, err
	}
	m.logger.Info("message sent", "to", number, "parts", len(parts))
	return sent, nil
}

func (m *Modem) submit(ctx context.Context, s *Session, part pdu.CodedMessage) error {
	if err := m.pace(ctx); err != nil {
		return err
	}
	if _, err := s.Execute(Command{Text: at.SendPDU(part.Length), Prompt: at.Prompt}); err != nil {
		return err
	}
	resp, err := s.Submit(part.PduCode)
	m.lastSubmit = time.Now()
	if err != nil {
		return err
	}
	m.logger.Debug("part accepted", "response", resp.String())
	return nil
}

// pace waits out MinSendInterval since the previous submission.
func (m *Modem) pace(ctx context.Context) error {
	if m.config.MinSendInterval <= 0 || m.lastSubmit.IsZero() {
		return nil
	}
	wait := m.config.MinSendInterval - time.Since(m.lastSubmit)
	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// UnreadMessages lists the received unread messages (AT+CMGL=0). The modem
// marks them read as a side effect. Each record is a +CMGL header line
// followed by its PDU line.
func (m *Modem) UnreadMessages(ctx context.Context) ([]StoredMessage, error) {
	resp, err := m.Exec(ctx, at.CmdListUnread)
	if err != nil {
		return nil, err
	}
	lines := resp.Info()
	if len(lines)%2 != 0 {
		return nil, fmt.Errorf("%w: %d lines do not form header and PDU pairs", ErrMalformedResponse, len(lines))
	}

	out := make([]StoredMessage, 0, len(lines)/2)
	for i := 0; i < len(lines); i += 2 {
		index, status, err := parseListHeader(lines[i])
		if err != nil {
			return nil, err
		}
		msg, err := pdu.Decode(lines[i+1])
		if err != nil {
			return nil, fmt.Errorf("decode message %d: %w", index, err)
		}
		out = append(out, StoredMessage{Index: index, Status: status, Message: msg})
	}
	return out, nil
}

// ReadMessage reads and decodes the message at index (AT+CMGR). With
// AutoDelete the message is then deleted; a failed delete is only logged.
func (m *Modem) ReadMessage(ctx context.Context, index int) (*pdu.Message, error) {
	resp, err := m.Exec(ctx, at.ReadMessage(index))
	if err != nil {
		return nil, err
	}
	// header, PDU, OK
	if len(resp) < 3 {
		return nil, fmt.Errorf("%w: read of index %d returned %q", ErrMalformedResponse, index, resp.String())
	}
	if !strings.HasPrefix(resp[0], at.InfoRead) {
		return nil, fmt.Errorf("%w: unexpected header %q", ErrMalformedResponse, resp[0])
	}
	msg, err := pdu.Decode(resp[1])
	if err != nil {
		return nil, fmt.Errorf("decode message %d: %w", index, err)
	}

	if m.config.AutoDelete {
		if err := m.DeleteMessage(ctx, index); err != nil {
			m.logger.Warn("auto delete failed", "index", index, "error", err)
		}
	}
	return msg, nil
}

// DeleteMessage removes the message at index (AT+CMGD). Anything but a lone
// OK is ErrDeviceRejected.
func (m *Modem) DeleteMessage(ctx context.Context, index int) error {
	resp, err := m.Exec(ctx, at.DeleteMessage(index))
	if err != nil {
		return err
	}
	if resp.String() != at.OK {
		return fmt.Errorf("%w: delete %d answered %q", ErrDeviceRejected, index, resp.String())
	}
	return nil
}

// ReadNewMessage blocks until a new message indication has been queued,
// then reads the message it announced. Indications are served in arrival
// order.
func (m *Modem) ReadNewMessage(ctx context.Context) (StoredMessage, error) {
	index, err := m.queue.Wait(ctx)
	if err != nil {
		return StoredMessage{}, err
	}
	msg, err := m.ReadMessage(ctx, index)
	if err != nil {
		return StoredMessage{Index: index}, err
	}
	return StoredMessage{Index: index, Status: StatusReceivedUnread, Message: msg}, nil
}

// Pending returns the number of queued new message indications.
func (m *Modem) Pending() int {
	return m.queue.Len()
}

// parseListHeader reads index and status from "+CMGL: <index>,<stat>,[<alpha>],<length>".
func parseListHeader(line string) (int, Status, error) {
	if !strings.HasPrefix(line, at.InfoList) {
		return 0, 0, fmt.Errorf("%w: expected %s header, got %q", ErrMalformedResponse, at.InfoList, line)
	}
	fields := strings.Split(strings.TrimPrefix(line, at.InfoList), ",")
	if len(fields) < 2 {
		return 0, 0, fmt.Errorf("%w: bad list header %q", ErrMalformedResponse, line)
	}
	index, err := strconv.Atoi(strings.TrimSpace(fields[0]))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: bad index in %q", ErrMalformedResponse, line)
	}
	stat, err := strconv.Atoi(strings.TrimSpace(fields[1]))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: bad status in %q", ErrMalformedResponse, line)
	}
	return index, Status(stat), nil
}
