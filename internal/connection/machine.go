package connection

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/ichi0g0y/thermal-receipt/internal/device"
	"github.com/ichi0g0y/thermal-receipt/internal/driver"
	"github.com/ichi0g0y/thermal-receipt/internal/printerr"
	"github.com/ichi0g0y/thermal-receipt/internal/shared/logger"
	"github.com/ichi0g0y/thermal-receipt/internal/status"
	"go.uber.org/zap"
)

const DefaultSettleDelay = time.Second

// ErrStopped is returned by calls made after Run has returned.
var ErrStopped = errors.New("connection machine stopped")

// State is the connection state. Only these three values exist.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

type Config struct {
	Transport   driver.TransportKind
	SettleDelay time.Duration
	Reporter    status.Reporter
}

// Snapshot is a consistent copy of the machine's state.
type Snapshot struct {
	State    State
	Selected *device.Identity
	Active   *device.Identity
	Pending  *PendingJob
}

type command struct {
	ctx context.Context
	fn  func(ctx context.Context) error
	res chan error
}

// Machine はプリンター接続の状態機械
//
// All state is owned by the goroutine running Run. Public methods post
// commands to it and wait for the result, so hardware status events and
// explicit calls are applied one at a time in arrival order.
type Machine struct {
	drv         driver.Driver
	kind        driver.TransportKind
	settleDelay time.Duration
	reporter    status.Reporter

	cmds    chan command
	stopped chan struct{}
	state   atomic.Int32
	running atomic.Bool

	// event loop only
	runCtx     context.Context
	feed       <-chan driver.Status
	selected   *device.Identity
	active     *device.Identity
	pending    slot
	generation uint64
	drainTimer *time.Timer
}

func New(drv driver.Driver, cfg Config) *Machine {
	if cfg.Transport == "" {
		cfg.Transport = driver.TransportUSB
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = DefaultSettleDelay
	}
	if cfg.Reporter == nil {
		cfg.Reporter = status.Discard
	}
	return &Machine{
		drv:         drv,
		kind:        cfg.Transport,
		settleDelay: cfg.SettleDelay,
		reporter:    cfg.Reporter,
		cmds:        make(chan command),
		stopped:     make(chan struct{}),
	}
}

// Run subscribes to the driver's status feed and processes commands and
// status events until ctx is cancelled. It must be called exactly once.
func (m *Machine) Run(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return errors.New("connection machine already running")
	}
	defer close(m.stopped)

	feedCtx, cancelFeed := context.WithCancel(ctx)
	defer cancelFeed()

	feed, err := m.drv.StatusFeed(feedCtx, m.kind)
	if err != nil {
		return printerr.Wrap(printerr.KindConnect, "subscribe status feed", err)
	}

	m.runCtx = ctx
	m.feed = feed
	logger.Info("Connection machine started",
		zap.String("transport", string(m.kind)),
		zap.Duration("settle_delay", m.settleDelay))

	for {
		select {
		case <-ctx.Done():
			if m.drainTimer != nil {
				m.drainTimer.Stop()
			}
			logger.Info("Connection machine stopped")
			return nil

		case s, ok := <-m.feed:
			if !ok {
				m.closeFeed()
				continue
			}
			m.handleStatus(s)

		case c := <-m.cmds:
			// コマンドより前に届いていたステータスを先に反映する
			m.applyBuffered()
			cctx := c.ctx
			if cctx == nil {
				cctx = ctx
			}
			err := c.fn(cctx)
			if c.res != nil {
				c.res <- err
			}
		}
	}
}

// applyBuffered handles every status already waiting in the feed.
func (m *Machine) applyBuffered() {
	for m.feed != nil {
		select {
		case s, ok := <-m.feed:
			if !ok {
				m.closeFeed()
				return
			}
			m.handleStatus(s)
		default:
			return
		}
	}
}

// dropEchoes discards the statuses the driver published while handling our
// own Connect or Disconnect. The machine has already applied that result, and
// handling the echo later would undo a newer transition.
func (m *Machine) dropEchoes() {
	for m.feed != nil {
		select {
		case s, ok := <-m.feed:
			if !ok {
				m.closeFeed()
				return
			}
			logger.Debug("Dropping status echo", zap.String("status", string(s)))
		default:
			return
		}
	}
}

func (m *Machine) closeFeed() {
	logger.Warn("Printer status feed closed")
	m.feed = nil
}

// State returns the current state without going through the event loop.
func (m *Machine) State() State {
	return State(m.state.Load())
}

// Select stores dev as the device to connect to. A different, currently
// connected device is disconnected first.
func (m *Machine) Select(ctx context.Context, dev device.Identity) error {
	return m.do(ctx, func(ctx context.Context) error {
		if m.State() == Connected && m.active != nil && !m.active.Equal(dev) {
			logger.Info("Selecting a different printer, disconnecting current one",
				zap.Stringer("current", *m.active),
				zap.Stringer("selected", dev))
			m.teardown(ctx, true)
		}
		selected := dev
		m.selected = &selected
		return nil
	})
}

// Connect connects to the selected device.
func (m *Machine) Connect(ctx context.Context) error {
	return m.do(ctx, m.connect)
}

// Reconnect tears down the current connection and connects to the selected
// device again. Unlike Disconnect it keeps the pending job, which is resent
// after the settle delay once the printer is back.
func (m *Machine) Reconnect(ctx context.Context) error {
	return m.do(ctx, func(ctx context.Context) error {
		if m.selected != nil && m.State() == Connected {
			m.teardown(ctx, false)
		}
		return m.connect(ctx)
	})
}

// Disconnect disconnects the active device. The machine always ends up
// Disconnected, whatever the driver reports.
func (m *Machine) Disconnect(ctx context.Context) error {
	return m.do(ctx, func(ctx context.Context) error {
		if m.State() != Connected {
			err := printerr.Wrap(printerr.KindInvalidOperation, "disconnect", printerr.ErrNotConnected)
			m.reporter.Report(status.Failure("Disconnect requested while not connected", err))
			return err
		}
		m.teardown(ctx, true)
		return nil
	})
}

// Send sends data to the printer. When the printer is not connected or the
// driver fails, data is kept as the pending job and a send error is returned.
func (m *Machine) Send(ctx context.Context, data []byte) error {
	return m.do(ctx, func(ctx context.Context) error {
		if m.State() != Connected {
			m.park(data)
			err := printerr.Wrap(printerr.KindSend, "send", printerr.ErrNotConnected)
			m.reporter.Report(status.Failure("Print job kept for retry: printer not connected", err))
			return err
		}

		if err := m.drv.Send(ctx, m.kind, data); err != nil {
			m.park(data)
			werr := printerr.Wrap(printerr.KindSend, "send", err)
			m.reporter.Report(status.Failure("Print job kept for retry: send failed", werr))
			return werr
		}

		m.reporter.Report(status.Event{Type: status.EventJobSent, Message: "Print job sent", At: time.Now()})
		return nil
	})
}

// Snapshot returns a copy of the machine's state.
func (m *Machine) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := m.do(ctx, func(context.Context) error {
		snap.State = m.State()
		if m.selected != nil {
			sel := *m.selected
			snap.Selected = &sel
		}
		if m.active != nil {
			act := *m.active
			snap.Active = &act
		}
		if job, ok := m.pending.peek(); ok {
			job.Data = append([]byte(nil), job.Data...)
			snap.Pending = &job
		}
		return nil
	})
	return snap, err
}

func (m *Machine) do(ctx context.Context, fn func(ctx context.Context) error) error {
	c := command{ctx: ctx, fn: fn, res: make(chan error, 1)}
	select {
	case m.cmds <- c:
	case <-ctx.Done():
		return ctx.Err()
	case <-m.stopped:
		return ErrStopped
	}
	select {
	case err := <-c.res:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Machine) connect(ctx context.Context) error {
	if m.selected == nil {
		err := printerr.Wrap(printerr.KindInvalidOperation, "connect", printerr.ErrNoDeviceSelected)
		m.reporter.Report(status.Failure("Connect requested without a selected printer", err))
		return err
	}
	sel := *m.selected

	if m.State() == Connected {
		if m.active == nil || m.active.Equal(sel) {
			m.active = &sel
			m.reporter.Report(status.Info("Printer already connected").WithDevice(sel))
			return nil
		}
		m.teardown(ctx, true)
	}

	m.setState(Connecting)
	ok, err := m.drv.Connect(ctx, m.kind, sel)
	m.dropEchoes()
	if err == nil && !ok {
		err = printerr.ErrConnectRejected
	}
	if err != nil {
		m.active = nil
		m.setState(Disconnected)
		werr := printerr.Wrap(printerr.KindConnect, "connect "+sel.String(), err)
		m.reporter.Report(status.Failure("Failed to connect printer", werr).WithDevice(sel))
		return werr
	}

	m.active = &sel
	m.enterConnected()
	return nil
}

// teardown disconnects through the driver and always ends Disconnected.
// An explicit disconnect discards the pending job.
func (m *Machine) teardown(ctx context.Context, explicit bool) {
	err := m.drv.Disconnect(ctx, m.kind)
	m.dropEchoes()
	if err != nil {
		m.reporter.Report(status.Failure("Driver reported an error while disconnecting",
			printerr.Wrap(printerr.KindConnect, "disconnect", err)))
	}
	if explicit {
		if job, ok := m.pending.peek(); ok {
			logger.Info("Discarding pending print job on explicit disconnect", zap.String("job_id", job.ID))
			m.pending.clear()
		}
	}
	m.enterDisconnected()
}

func (m *Machine) handleStatus(s driver.Status) {
	logger.Debug("Printer status event", zap.String("status", string(s)))
	if s.Normalize() == driver.StatusConnected {
		if m.active == nil && m.selected != nil {
			sel := *m.selected
			m.active = &sel
		}
		m.enterConnected()
		return
	}
	if m.State() != Disconnected {
		m.reporter.Report(status.Info("Printer disconnected by hardware"))
	}
	m.enterDisconnected()
}

// enterConnected is idempotent. On an actual transition it schedules the
// pending job drain after the settle delay.
func (m *Machine) enterConnected() {
	if m.State() == Connected {
		return
	}
	m.generation++
	m.setState(Connected)

	if m.pending.empty() {
		return
	}
	gen := m.generation
	if m.drainTimer != nil {
		m.drainTimer.Stop()
	}
	logger.Info("Pending print job will be resent after settle delay", zap.Duration("delay", m.settleDelay))
	m.drainTimer = time.AfterFunc(m.settleDelay, func() {
		c := command{fn: func(context.Context) error {
			m.drainOnConnect(gen)
			return nil
		}}
		select {
		case m.cmds <- c:
		case <-m.stopped:
		}
	})
}

func (m *Machine) enterDisconnected() {
	m.active = nil
	if m.State() == Disconnected {
		return
	}
	m.generation++
	if m.drainTimer != nil {
		m.drainTimer.Stop()
		m.drainTimer = nil
	}
	m.setState(Disconnected)
}

// drainOnConnect resends the pending job for the Connected transition gen.
// The slot is cleared only when the send succeeds.
func (m *Machine) drainOnConnect(gen uint64) {
	if gen != m.generation || m.State() != Connected {
		logger.Debug("Skipping stale pending job drain")
		return
	}
	job, ok := m.pending.peek()
	if !ok {
		return
	}

	if err := m.drv.Send(m.runCtx, m.kind, job.Data); err != nil {
		m.reporter.Report(status.Failure("Failed to resend pending print job",
			printerr.Wrap(printerr.KindSend, "resend pending job", err)))
		return
	}

	m.pending.clear()
	m.reporter.Report(status.Event{
		Type:    status.EventJobResent,
		Message: "Pending print job resent",
		At:      time.Now(),
	})
	logger.Info("Pending print job resent", zap.String("job_id", job.ID), zap.Int("bytes", len(job.Data)))
}

func (m *Machine) park(data []byte) {
	job := m.pending.offer(data)
	m.reporter.Report(status.Event{
		Type:    status.EventJobParked,
		Message: "Print job stored for retry",
		At:      time.Now(),
	})
	logger.Info("Print job parked", zap.String("job_id", job.ID), zap.Int("bytes", len(job.Data)))
}

func (m *Machine) setState(s State) {
	prev := State(m.state.Swap(int32(s)))
	if prev == s {
		return
	}
	e := status.Event{Type: status.EventStateChanged, State: s.String(), Message: "Printer " + s.String(), At: time.Now()}
	if m.active != nil {
		e = e.WithDevice(*m.active)
	} else if s == Connecting && m.selected != nil {
		e = e.WithDevice(*m.selected)
	}
	m.reporter.Report(e)
}
