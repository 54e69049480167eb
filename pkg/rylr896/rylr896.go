// Package rylr896 drives a REYAX RYLR896 LoRa module through its UART AT command set.
package rylr896

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/LeonardoBeccarini/field-telemetry/pkg/serialport"
)

const (
	MaxPayload      = 240
	DefaultTimeout  = 2 * time.Second
	receivePollSpan = 500 * time.Millisecond
)

var (
	ErrPayloadTooLarge = fmt.Errorf("rylr896: payload exceeds %d bytes", MaxPayload)
	ErrUnexpectedReply = errors.New("rylr896: unexpected reply")
	ErrMalformedRCV    = errors.New("rylr896: malformed +RCV line")
)

// Error is a "+ERR=<code>" reply from the module.
type Error struct {
	Code int
}

var errorText = map[int]string{
	1:  "missing enter or \\r\\n",
	2:  "command does not start with AT",
	4:  "unknown command",
	5:  "data length mismatch",
	10: "TX over time",
	12: "CRC error",
	13: "TX data over 240 bytes",
	15: "unknown error",
}

func (e *Error) Error() string {
	if s, ok := errorText[e.Code]; ok {
		return fmt.Sprintf("rylr896: +ERR=%d (%s)", e.Code, s)
	}
	return fmt.Sprintf("rylr896: +ERR=%d", e.Code)
}

type Config struct {
	Serial      serialport.Config `yaml:"serial"`
	Address     int               `yaml:"address"`
	NetworkID   int               `yaml:"network_id"`
	Band        int               `yaml:"band"` // Hz, 0 keeps the module default
	Destination int               `yaml:"destination"`
}

// Packet is one frame heard by the module.
type Packet struct {
	Address int
	Data    []byte
	RSSI    int
	SNR     int
}

type Radio struct {
	mu      sync.Mutex
	w       io.Writer
	lines   *serialport.LineReader
	closer  io.Closer
	timeout time.Duration
	log     *slog.Logger
}

func New(conn io.ReadWriter, timeout time.Duration, log *slog.Logger) *Radio {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	r := &Radio{w: conn, lines: serialport.NewLineReader(conn), timeout: timeout, log: log}
	if c, ok := conn.(io.Closer); ok {
		r.closer = c
	}
	return r
}

// Open opens the UART and configures the module, retrying while it boots.
func Open(ctx context.Context, cfg Config, log *slog.Logger) (*Radio, error) {
	port, err := serialport.Open(cfg.Serial)
	if err != nil {
		return nil, err
	}
	r := New(port, 0, log)
	if err := r.Init(ctx, cfg); err != nil {
		_ = port.Close()
		return nil, err
	}
	return r, nil
}

// Init probes the module with AT and applies address, network id and band.
func (r *Radio) Init(ctx context.Context, cfg Config) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxElapsedTime = 10 * time.Second

	probe := func() error {
		err := r.command(ctx, "AT")
		if err != nil {
			r.log.Warn("rylr896: module not ready, retrying", "err", err)
		}
		return err
	}
	if err := backoff.Retry(probe, backoff.WithContext(backoff.WithMaxRetries(bo, 5), ctx)); err != nil {
		return fmt.Errorf("rylr896: probe: %w", err)
	}

	cmds := []string{
		fmt.Sprintf("AT+ADDRESS=%d", cfg.Address),
		fmt.Sprintf("AT+NETWORKID=%d", cfg.NetworkID),
	}
	if cfg.Band > 0 {
		cmds = append(cmds, fmt.Sprintf("AT+BAND=%d", cfg.Band))
	}
	for _, c := range cmds {
		if err := r.command(ctx, c); err != nil {
			return fmt.Errorf("rylr896: %s: %w", c, err)
		}
	}
	r.log.Info("rylr896: radio ready", "address", cfg.Address, "network", cfg.NetworkID)
	return nil
}

// Send transmits payload to addr and waits for the module to accept it.
func (r *Radio) Send(ctx context.Context, addr int, payload []byte) error {
	if len(payload) > MaxPayload {
		return ErrPayloadTooLarge
	}
	return r.command(ctx, fmt.Sprintf("AT+SEND=%d,%d,%s", addr, len(payload), payload))
}

// Receive blocks until a +RCV frame arrives or ctx is done.
func (r *Radio) Receive(ctx context.Context) (Packet, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Packet{}, err
		}
		line, err := r.readLine(ctx, receivePollSpan)
		if errors.Is(err, serialport.ErrTimeout) {
			continue
		}
		if err != nil {
			return Packet{}, err
		}
		if !strings.HasPrefix(line, "+RCV=") {
			r.log.Debug("rylr896: ignoring line", "line", line)
			continue
		}
		return ParseRCV(line)
	}
}

func (r *Radio) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

func (r *Radio) readLine(ctx context.Context, d time.Duration) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lines.ReadLine(ctx, d)
}

func (r *Radio) command(ctx context.Context, cmd string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := io.WriteString(r.w, cmd+"\r\n"); err != nil {
		return fmt.Errorf("rylr896: write: %w", err)
	}
	for {
		line, err := r.lines.ReadLine(ctx, r.timeout)
		if err != nil {
			return err
		}
		switch {
		case line == "+OK":
			return nil
		case strings.HasPrefix(line, "+ERR="):
			code, err := strconv.Atoi(strings.TrimPrefix(line, "+ERR="))
			if err != nil {
				return fmt.Errorf("%w: %q", ErrUnexpectedReply, line)
			}
			return &Error{Code: code}
		case strings.HasPrefix(line, "+RCV="), line == "+READY":
			// unsolicited, keep waiting for our reply
		default:
			return fmt.Errorf("%w: %q", ErrUnexpectedReply, line)
		}
	}
}

// ParseRCV decodes "+RCV=<addr>,<len>,<data>,<rssi>,<snr>". The data field may
// itself contain commas; its declared length delimits it.
func ParseRCV(line string) (Packet, error) {
	rest, ok := strings.CutPrefix(line, "+RCV=")
	if !ok {
		return Packet{}, fmt.Errorf("%w: %q", ErrMalformedRCV, line)
	}
	addrStr, rest, ok1 := strings.Cut(rest, ",")
	lenStr, rest, ok2 := strings.Cut(rest, ",")
	if !ok1 || !ok2 {
		return Packet{}, fmt.Errorf("%w: %q", ErrMalformedRCV, line)
	}
	addr, err := strconv.Atoi(addrStr)
	if err != nil {
		return Packet{}, fmt.Errorf("%w: address %q", ErrMalformedRCV, addrStr)
	}
	n, err := strconv.Atoi(lenStr)
	if err != nil || n < 0 || n > len(rest) {
		return Packet{}, fmt.Errorf("%w: length %q", ErrMalformedRCV, lenStr)
	}

	data, tail := rest[:n], rest[n:]
	tail, ok = strings.CutPrefix(tail, ",")
	if !ok {
		return Packet{}, fmt.Errorf("%w: data does not match length %d", ErrMalformedRCV, n)
	}
	rssiStr, snrStr, ok := strings.Cut(tail, ",")
	if !ok {
		return Packet{}, fmt.Errorf("%w: missing snr", ErrMalformedRCV)
	}
	rssi, err := strconv.Atoi(rssiStr)
	if err != nil {
		return Packet{}, fmt.Errorf("%w: rssi %q", ErrMalformedRCV, rssiStr)
	}
	snr, err := strconv.Atoi(snrStr)
	if err != nil {
		return Packet{}, fmt.Errorf("%w: snr %q", ErrMalformedRCV, snrStr)
	}
	return Packet{Address: addr, Data: []byte(data), RSSI: rssi, SNR: snr}, nil
}
