package rylr896

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeModule replies to each command line with the next scripted reply.
type fakeModule struct {
	mu      sync.Mutex
	replies []string
	in      bytes.Buffer
	out     bytes.Buffer
}

func (f *fakeModule) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.in.Write(p)
	if len(f.replies) > 0 {
		f.out.WriteString(f.replies[0])
		f.replies = f.replies[1:]
	}
	return len(p), nil
}

func (f *fakeModule) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.out.Len() == 0 {
		return 0, nil
	}
	return f.out.Read(p)
}

func (f *fakeModule) feed(s string) {
	f.mu.Lock()
	f.out.WriteString(s)
	f.mu.Unlock()
}

func (f *fakeModule) written() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.in.String()
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestRadio_Send(t *testing.T) {
	m := &fakeModule{replies: []string{"+OK\r\n"}}
	r := New(m, time.Second, quiet())

	require.NoError(t, r.Send(context.Background(), 2, []byte(`{"a":1}`)))
	assert.Equal(t, "AT+SEND=2,7,{\"a\":1}\r\n", m.written())
}

func TestRadio_SendModuleError(t *testing.T) {
	m := &fakeModule{replies: []string{"+ERR=5\r\n"}}
	r := New(m, time.Second, quiet())

	err := r.Send(context.Background(), 2, []byte("x"))
	var modErr *Error
	require.True(t, errors.As(err, &modErr))
	assert.Equal(t, 5, modErr.Code)
	assert.Contains(t, err.Error(), "length mismatch")
}

func TestRadio_SendTooLarge(t *testing.T) {
	r := New(&fakeModule{}, time.Second, quiet())
	err := r.Send(context.Background(), 2, bytes.Repeat([]byte("a"), MaxPayload+1))
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
}

func TestRadio_SendSkipsUnsolicitedFrames(t *testing.T) {
	m := &fakeModule{replies: []string{"+RCV=9,2,hi,-50,10\r\n+OK\r\n"}}
	r := New(m, time.Second, quiet())
	assert.NoError(t, r.Send(context.Background(), 1, []byte("x")))
}

func TestRadio_Init(t *testing.T) {
	m := &fakeModule{replies: []string{"+OK\r\n", "+OK\r\n", "+OK\r\n", "+OK\r\n"}}
	r := New(m, time.Second, quiet())

	require.NoError(t, r.Init(context.Background(), Config{Address: 1, NetworkID: 6, Band: 915000000}))
	assert.Equal(t, "AT\r\nAT+ADDRESS=1\r\nAT+NETWORKID=6\r\nAT+BAND=915000000\r\n", m.written())
}

func TestRadio_InitRetriesProbe(t *testing.T) {
	m := &fakeModule{replies: []string{"+ERR=1\r\n", "+OK\r\n", "+OK\r\n", "+OK\r\n"}}
	r := New(m, time.Second, quiet())

	require.NoError(t, r.Init(context.Background(), Config{Address: 2}))
	assert.Equal(t, 2, strings.Count(m.written(), "AT\r\n"))
}

func TestRadio_Receive(t *testing.T) {
	m := &fakeModule{}
	r := New(m, time.Second, quiet())
	m.feed("+READY\r\n+RCV=1,14,{\"lahanID\":1,},-42,11\r\n")

	p, err := r.Receive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, p.Address)
	assert.Equal(t, `{"lahanID":1,}`, string(p.Data))
	assert.Equal(t, -42, p.RSSI)
	assert.Equal(t, 11, p.SNR)
}

func TestRadio_ReceiveCancelled(t *testing.T) {
	r := New(&fakeModule{}, time.Second, quiet())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := r.Receive(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestParseRCV(t *testing.T) {
	p, err := ParseRCV("+RCV=50,5,HELLO,-99,40")
	require.NoError(t, err)
	assert.Equal(t, Packet{Address: 50, Data: []byte("HELLO"), RSSI: -99, SNR: 40}, p)

	for _, bad := range []string{
		"+OK",
		"+RCV=50",
		"+RCV=x,5,HELLO,-99,40",
		"+RCV=50,9,HELLO,-99,40",
		"+RCV=50,3,HELLO,-99,40",
		"+RCV=50,5,HELLO,-99",
		"+RCV=50,5,HELLO,a,40",
	} {
		_, err := ParseRCV(bad)
		assert.ErrorIs(t, err, ErrMalformedRCV, bad)
	}
}
