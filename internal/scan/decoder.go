package scan

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Decode is one raw decode attempt from the capture device. An empty payload
// is a no-read and is dropped before it reaches the pipeline.
type Decode struct {
	Payload string
	At      time.Time
}

type Source struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Device is a continuous-capture decoder. Open acquires the capture resource
// exclusively and streams decode attempts until the context is cancelled or
// Close is called; the returned channel is closed on release.
type Device interface {
	Open(ctx context.Context, sourceID string) (<-chan Decode, error)
	Close() error
	Sources(ctx context.Context) ([]Source, error)
}

// Adapter owns the device on behalf of the scan session. Start on a running
// adapter fully stops and releases the prior acquisition before reacquiring,
// so two acquisitions can never overlap.
type Adapter struct {
	mu        sync.Mutex
	device    Device
	onDecode  func(Decode)
	cancel    context.CancelFunc
	running   bool
	startedAt time.Time
}

func NewAdapter(device Device, onDecode func(Decode)) *Adapter {
	return &Adapter{device: device, onDecode: onDecode}
}

func (a *Adapter) Start(ctx context.Context, sourceID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.running {
		a.stopLocked()
	}

	runCtx, cancel := context.WithCancel(ctx)
	stream, err := a.device.Open(runCtx, sourceID)
	if err != nil {
		cancel()
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	a.cancel = cancel
	a.running = true
	a.startedAt = time.Now()

	go a.pump(stream)

	return nil
}

func (a *Adapter) pump(stream <-chan Decode) {
	for d := range stream {
		if strings.TrimSpace(d.Payload) == "" {
			continue // no-read
		}
		a.onDecode(d)
	}
}

func (a *Adapter) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopLocked()
}

func (a *Adapter) stopLocked() {
	if !a.running {
		return
	}
	a.cancel()
	if err := a.device.Close(); err != nil {
		log.Warnf("error releasing capture device: %s", err)
	}
	a.running = false
	a.cancel = nil
}

func (a *Adapter) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

func (a *Adapter) StartedAt() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.startedAt
}

func (a *Adapter) ListSources(ctx context.Context) ([]Source, error) {
	return a.device.Sources(ctx)
}

// LineDevice reads decode payloads from a line-oriented serial-over-TCP kiosk
// scanner, one payload per line. Blank lines are no-reads.
type LineDevice struct {
	addr string

	mu   sync.Mutex
	conn net.Conn
}

func NewLineDevice(addr string) *LineDevice {
	return &LineDevice{addr: addr}
}

func (d *LineDevice) Open(ctx context.Context, sourceID string) (<-chan Decode, error) {
	addr := d.addr
	if sourceID != "" {
		addr = sourceID // capture source override
	}

	dialer := net.Dialer{Timeout: 5 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial scanner %s: %w", addr, err)
	}

	d.mu.Lock()
	d.conn = conn
	d.mu.Unlock()

	out := make(chan Decode)

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	go func() {
		defer close(out)
		sc := bufio.NewScanner(conn)
		for sc.Scan() {
			select {
			case out <- Decode{Payload: strings.TrimSpace(sc.Text()), At: time.Now()}:
			case <-ctx.Done():
				return
			}
		}
		if err := sc.Err(); err != nil && ctx.Err() == nil {
			log.Warnf("scanner read ended: %s", err)
		}
	}()

	return out, nil
}

func (d *LineDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn == nil {
		return nil
	}
	err := d.conn.Close()
	d.conn = nil
	return err
}

func (d *LineDevice) Sources(ctx context.Context) ([]Source, error) {
	return []Source{{ID: d.addr, Label: "kiosk scanner"}}, nil
}
