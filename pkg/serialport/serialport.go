// Package serialport opens UART devices and reads newline-terminated replies from them.
package serialport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
)

const (
	DefaultBaudRate    = 115200
	DefaultReadTimeout = 100 * time.Millisecond
)

// ErrTimeout is returned when no complete line arrived in time.
var ErrTimeout = errors.New("serialport: read timeout")

type Config struct {
	Device      string        `yaml:"device"`
	BaudRate    int           `yaml:"baud_rate"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

// Open opens the device in 8N1 mode. Reads on the returned port block for at
// most ReadTimeout and then return zero bytes, which LineReader relies on.
func Open(cfg Config) (serial.Port, error) {
	if cfg.Device == "" {
		return nil, errors.New("serialport: device is required")
	}
	if cfg.BaudRate == 0 {
		cfg.BaudRate = DefaultBaudRate
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}

	port, err := serial.Open(cfg.Device, &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", cfg.Device, err)
	}
	if err := port.SetReadTimeout(cfg.ReadTimeout); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", cfg.Device, err)
	}
	return port, nil
}

// LineReader splits a byte stream into lines, keeping partial input between calls.
type LineReader struct {
	mu      sync.Mutex
	r       io.Reader
	pending []byte
	chunk   []byte
}

func NewLineReader(r io.Reader) *LineReader {
	return &LineReader{r: r, chunk: make([]byte, 256)}
}

// ReadLine returns the next non-empty line without its CR/LF terminator.
// It gives up with ErrTimeout after timeout, or with ctx's error.
func (l *LineReader) ReadLine(ctx context.Context, timeout time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	deadline := time.Now().Add(timeout)
	for {
		if line, ok := l.next(); ok {
			return line, nil
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if !time.Now().Before(deadline) {
			return "", ErrTimeout
		}

		n, err := l.r.Read(l.chunk)
		if n > 0 {
			l.pending = append(l.pending, l.chunk[:n]...)
			continue
		}
		if err != nil {
			return "", fmt.Errorf("serialport: read: %w", err)
		}
		// timed-out read on a serial port: zero bytes, no error
		time.Sleep(time.Millisecond)
	}
}

// Discard drops any buffered partial input.
func (l *LineReader) Discard() {
	l.mu.Lock()
	l.pending = l.pending[:0]
	l.mu.Unlock()
}

func (l *LineReader) next() (string, bool) {
	for {
		i := bytes.IndexByte(l.pending, '\n')
		if i < 0 {
			return "", false
		}
		line := strings.TrimRight(string(l.pending[:i]), "\r")
		l.pending = l.pending[i+1:]
		if strings.TrimSpace(line) != "" {
			return line, true
		}
	}
}
