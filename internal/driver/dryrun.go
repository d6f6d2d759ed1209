package driver

import (
	"context"
	"errors"
	"sync"

	"github.com/ichi0g0y/thermal-receipt/internal/device"
	"github.com/ichi0g0y/thermal-receipt/internal/shared/logger"
	"go.uber.org/zap"
)

var errDryRunNotConnected = errors.New("dry-run printer not connected")

// DryRun is an in-memory driver. It never touches hardware: sent jobs are kept
// in memory and logged. Failures and hardware status changes can be injected.
type DryRun struct {
	mu sync.Mutex

	devices   []device.Raw
	connected bool
	current   device.Identity
	sent      [][]byte

	connectOK  bool
	connectErr error
	sendErr    error

	subs map[chan Status]struct{}
}

// NewDryRun は指定したデバイスを列挙するドライランドライバーを作成する
func NewDryRun(devices ...device.Raw) *DryRun {
	return &DryRun{
		devices:   devices,
		connectOK: true,
		subs:      make(map[chan Status]struct{}),
	}
}

func (d *DryRun) Discover(ctx context.Context, kind TransportKind) (<-chan DiscoveryResult, error) {
	d.mu.Lock()
	devices := make([]device.Raw, len(d.devices))
	copy(devices, d.devices)
	d.mu.Unlock()

	out := make(chan DiscoveryResult)
	go func() {
		defer close(out)
		for _, raw := range devices {
			select {
			case out <- DiscoveryResult{Device: raw}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (d *DryRun) Connect(ctx context.Context, kind TransportKind, dev device.Identity) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.connectErr != nil {
		return false, d.connectErr
	}
	if !d.connectOK {
		return false, nil
	}

	d.connected = true
	d.current = dev
	logger.Info("Dry-run printer connected", zap.Stringer("device", dev))
	d.publishLocked(StatusConnected)
	return true, nil
}

func (d *DryRun) Disconnect(ctx context.Context, kind TransportKind) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.connected {
		logger.Info("Dry-run printer disconnected", zap.Stringer("device", d.current))
	}
	d.connected = false
	d.current = device.Identity{}
	d.publishLocked(StatusDisconnected)
	return nil
}

func (d *DryRun) Send(ctx context.Context, kind TransportKind, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.sendErr != nil {
		return d.sendErr
	}
	if !d.connected {
		return errDryRunNotConnected
	}

	job := make([]byte, len(data))
	copy(job, data)
	d.sent = append(d.sent, job)

	logger.Info("Dry-run mode: print job captured instead of sent",
		zap.Int("bytes", len(job)),
		zap.Int("total_jobs", len(d.sent)))
	return nil
}

func (d *DryRun) StatusFeed(ctx context.Context, kind TransportKind) (<-chan Status, error) {
	ch := make(chan Status, 16)

	d.mu.Lock()
	d.subs[ch] = struct{}{}
	d.mu.Unlock()

	go func() {
		<-ctx.Done()
		d.mu.Lock()
		delete(d.subs, ch)
		close(ch)
		d.mu.Unlock()
	}()
	return ch, nil
}

// Emit simulates an asynchronous hardware status notification such as a
// cable being unplugged or re-inserted.
func (d *DryRun) Emit(s Status) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.connected = s.Normalize() == StatusConnected
	d.publishLocked(s)
}

// SetDevices replaces the devices reported by Discover.
func (d *DryRun) SetDevices(devices ...device.Raw) {
	d.mu.Lock()
	d.devices = devices
	d.mu.Unlock()
}

// SetConnectResult controls the outcome of the next Connect calls.
func (d *DryRun) SetConnectResult(ok bool, err error) {
	d.mu.Lock()
	d.connectOK = ok
	d.connectErr = err
	d.mu.Unlock()
}

// SetSendError makes Send fail with err until it is reset with nil.
func (d *DryRun) SetSendError(err error) {
	d.mu.Lock()
	d.sendErr = err
	d.mu.Unlock()
}

// Sent returns copies of every job captured so far.
func (d *DryRun) Sent() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([][]byte, len(d.sent))
	for i, job := range d.sent {
		out[i] = append([]byte(nil), job...)
	}
	return out
}

func (d *DryRun) IsConnected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connected
}

func (d *DryRun) publishLocked(s Status) {
	for ch := range d.subs {
		select {
		case ch <- s:
		default:
			logger.Warn("Dry-run status subscriber is full, dropping status", zap.String("status", string(s)))
		}
	}
}
