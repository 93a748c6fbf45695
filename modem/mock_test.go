package modem_test

import (
	"io"

	gomock "go.uber.org/mock/gomock"
	"i4.energy/across/gsmmodem/modem"
)

// MockSequenceBuilder scripts command exchanges on a MockTransport. The
// loop's reader issues Read before the matching Write happens, so each
// scripted Read blocks until its command has been written. Only the writes
// are returned for ordering; reads are matched in the order they were
// declared.
type MockSequenceBuilder struct {
	transport *modem.MockTransport
	calls     []any
}

func NewMockSequence(transport *modem.MockTransport) *MockSequenceBuilder {
	return &MockSequenceBuilder{
		transport: transport,
		calls:     []any{},
	}
}

func (b *MockSequenceBuilder) exchange(cmd, reply string) *MockSequenceBuilder {
	written := make(chan struct{})
	wire := []byte(cmd + "\r")
	b.calls = append(b.calls,
		b.transport.EXPECT().Write(wire).DoAndReturn(func(p []byte) (int, error) {
			close(written)
			return len(p), nil
		}),
	)
	b.transport.EXPECT().Read(gomock.Any()).DoAndReturn(func(p []byte) (int, error) {
		<-written
		return copy(p, reply), nil
	})
	return b
}

func (b *MockSequenceBuilder) EchoOff() *MockSequenceBuilder {
	return b.exchange("ATE0", "ATE0\r\nOK\r\n")
}

func (b *MockSequenceBuilder) PDUMode() *MockSequenceBuilder {
	return b.exchange("AT+CMGF=0", "\r\nOK\r\n")
}

func (b *MockSequenceBuilder) NewMessageIndications() *MockSequenceBuilder {
	return b.exchange("AT+CNMI=2,1", "\r\nOK\r\n")
}

func (b *MockSequenceBuilder) Reject(cmd string) *MockSequenceBuilder {
	return b.exchange(cmd, "\r\nERROR\r\n")
}

// Hangup makes the next read block until release is closed and then report
// EOF, ending the loop.
func (b *MockSequenceBuilder) Hangup(release <-chan struct{}) *MockSequenceBuilder {
	b.transport.EXPECT().Read(gomock.Any()).DoAndReturn(func(p []byte) (int, error) {
		<-release
		return 0, io.EOF
	})
	return b
}

func (b *MockSequenceBuilder) Build() []any {
	return b.calls
}
