// Package discovery runs bounded scans for attached printers.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ichi0g0y/thermal-receipt/internal/device"
	"github.com/ichi0g0y/thermal-receipt/internal/driver"
	"github.com/ichi0g0y/thermal-receipt/internal/printerr"
	"github.com/ichi0g0y/thermal-receipt/internal/shared/logger"
	"github.com/ichi0g0y/thermal-receipt/internal/status"
	"go.uber.org/zap"
)

const (
	DefaultTimeout = 10 * time.Second

	// deliveryBuffer is the capacity of Session.Devices.
	deliveryBuffer = 32
)

// Filter limits a scan to the given vendor ids. An empty filter accepts all.
type Filter struct {
	VendorIDs []string
}

// Match reports whether id passes the filter.
func (f Filter) Match(id device.Identity) bool {
	if len(f.VendorIDs) == 0 {
		return true
	}
	for _, v := range f.VendorIDs {
		if device.New("", v, "").VendorID == id.VendorID {
			return true
		}
	}
	return false
}

type Config struct {
	Transport driver.TransportKind
	Timeout   time.Duration
	Reporter  status.Reporter
}

// Scanner starts discovery sessions. At most one session is active at a time.
type Scanner struct {
	drv      driver.Driver
	kind     driver.TransportKind
	timeout  time.Duration
	reporter status.Reporter

	mu     sync.Mutex
	active *Session
}

func NewScanner(drv driver.Driver, cfg Config) *Scanner {
	if cfg.Transport == "" {
		cfg.Transport = driver.TransportUSB
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Reporter == nil {
		cfg.Reporter = status.Discard
	}
	return &Scanner{
		drv:      drv,
		kind:     cfg.Transport,
		timeout:  cfg.Timeout,
		reporter: cfg.Reporter,
	}
}

// Start begins a scan. When a scan is already running, that session is
// returned unchanged.
//
// The session lives until the timeout, the end of the driver feed, Cancel, or
// the cancellation of ctx, whichever comes first.
func (s *Scanner) Start(ctx context.Context, f Filter) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != nil && s.active.Scanning() {
		logger.Debug("Scan already in progress, reusing session")
		return s.active
	}
	s.active = s.startLocked(ctx, f)
	return s.active
}

// Restart cancels the running scan, waits for it to end, and starts a new
// session with an empty result list.
func (s *Scanner) Restart(ctx context.Context, f Filter) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != nil {
		s.active.Cancel()
	}
	s.active = s.startLocked(ctx, f)
	return s.active
}

// Current returns the most recent session, or nil when no scan has run.
func (s *Scanner) Current() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *Scanner) startLocked(ctx context.Context, f Filter) *Session {
	sctx, cancel := context.WithTimeout(ctx, s.timeout)
	sess := &Session{
		filter:   f,
		reporter: s.reporter,
		cancel:   cancel,
		devices:  make(chan device.Identity, deliveryBuffer),
		done:     make(chan struct{}),
		seen:     make(map[device.Key]struct{}),
	}
	sess.scanning.Store(true)

	s.reporter.Report(status.Event{Type: status.EventScanStarted, Message: "Printer scan started", At: time.Now()})
	logger.Info("Starting printer scan",
		zap.String("transport", string(s.kind)),
		zap.Duration("timeout", s.timeout),
		zap.Strings("vendor_filter", f.VendorIDs))

	feed, err := s.drv.Discover(sctx, s.kind)
	if err != nil {
		sess.reporter.Report(status.Failure("Failed to start printer scan",
			printerr.Wrap(printerr.KindDiscovery, "discover", err)))
		go sess.run(sctx, nil)
		return sess
	}
	go sess.run(sctx, feed)
	return sess
}

// Session is one bounded scan.
type Session struct {
	filter   Filter
	reporter status.Reporter
	cancel   context.CancelFunc

	devices  chan device.Identity
	done     chan struct{}
	scanning atomic.Bool

	mu    sync.Mutex
	seen  map[device.Key]struct{}
	found []device.Identity
}

// Devices delivers identities as they are found and is closed when the
// session ends. A reader that falls behind by more than the channel buffer
// misses deliveries; Found always holds the full list.
func (s *Session) Devices() <-chan device.Identity {
	return s.devices
}

// Found returns the de-duplicated identities discovered so far.
func (s *Session) Found() []device.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]device.Identity, len(s.found))
	copy(out, s.found)
	return out
}

func (s *Session) Scanning() bool {
	return s.scanning.Load()
}

// Done is closed once the session has ended.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Cancel stops the session and waits until it has ended. It is safe to call
// more than once and after the session ended on its own.
func (s *Session) Cancel() {
	s.cancel()
	<-s.done
}

func (s *Session) run(ctx context.Context, feed <-chan driver.DiscoveryResult) {
	reason := "feed closed"
	defer func() {
		s.cancel()
		s.scanning.Store(false)
		close(s.devices)

		n := len(s.Found())
		s.reporter.Report(status.Event{
			Type:    status.EventScanEnded,
			Message: fmt.Sprintf("Printer scan ended (%s), %d found", reason, n),
			At:      time.Now(),
		})
		close(s.done)
	}()

	if feed == nil {
		reason = "driver error"
		return
	}

	for {
		select {
		case <-ctx.Done():
			reason = "cancelled"
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				reason = "timeout"
			}
			return

		case r, ok := <-feed:
			if !ok {
				return
			}
			if r.Err != nil {
				s.reporter.Report(status.Failure("Printer discovery error",
					printerr.Wrap(printerr.KindDiscovery, "discover", r.Err)))
				continue
			}
			s.accept(device.FromRaw(r.Device))
		}
	}
}

func (s *Session) accept(id device.Identity) {
	if !s.filter.Match(id) {
		logger.Debug("Device filtered out", zap.Stringer("device", id))
		return
	}

	s.mu.Lock()
	if _, dup := s.seen[id.Key()]; dup {
		s.mu.Unlock()
		return
	}
	s.seen[id.Key()] = struct{}{}
	s.found = append(s.found, id)
	s.mu.Unlock()

	s.reporter.Report(status.Event{
		Type:    status.EventDeviceFound,
		Message: "Printer found",
		At:      time.Now(),
	}.WithDevice(id))

	select {
	case s.devices <- id:
	default:
		logger.Warn("Discovery reader is behind, device only available via Found", zap.Stringer("device", id))
	}
}
