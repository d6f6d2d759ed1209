package output

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ichi0g0y/thermal-receipt/internal/connection"
	"github.com/ichi0g0y/thermal-receipt/internal/profile"
	"github.com/ichi0g0y/thermal-receipt/internal/receipt"
	"github.com/ichi0g0y/thermal-receipt/internal/shared/logger"
	"github.com/ichi0g0y/thermal-receipt/internal/status"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.uber.org/zap"
)

const defaultQueueSize = 100

var ErrQueueFull = errors.New("print queue is full")

// Sender is the part of the connection machine the printer needs.
type Sender interface {
	Send(ctx context.Context, data []byte) error
}

var _ Sender = (*connection.Machine)(nil)

// CompileObserver receives the duration and size of every compilation.
type CompileObserver interface {
	ObserveCompile(d time.Duration, size int)
}

// PrintJob はキューに積まれた印刷ジョブ
type PrintJob struct {
	ID       string
	Document receipt.Document
}

// Printer compiles receipts for the configured profile and hands the bytes to
// the connection machine. Jobs are either printed directly or queued.
type Printer struct {
	sender   Sender
	reporter status.Reporter
	observer CompileObserver

	mu      sync.RWMutex
	cfg     PrinterConfig
	catalog *profile.Catalog
	profile profile.Profile

	queue chan PrintJob
}

func NewPrinter(sender Sender, cfg PrinterConfig, reporter status.Reporter, observer CompileObserver) *Printer {
	if reporter == nil {
		reporter = status.Discard
	}
	p := &Printer{
		sender:   sender,
		reporter: reporter,
		observer: observer,
		queue:    make(chan PrintJob, defaultQueueSize),
	}
	p.catalog = loadCatalog(cfg.ProfileFile, reporter)
	p.configure(cfg)
	return p
}

func loadCatalog(path string, reporter status.Reporter) *profile.Catalog {
	if path == "" {
		return profile.Builtin()
	}
	c, err := profile.LoadFile(path)
	if err != nil {
		logger.Warn("Failed to load profile file, using builtin profiles", zap.String("path", path), zap.Error(err))
		reporter.Report(status.Failure("Failed to load profile file, using builtin profiles", err))
		return profile.Builtin()
	}
	return c
}

func (p *Printer) configure(cfg PrinterConfig) {
	resolved := profile.Resolve(p.catalog, cfg.Profile, cfg.PaperSize, p.reporter)

	p.mu.Lock()
	p.cfg = cfg
	p.profile = resolved
	p.mu.Unlock()

	logger.Info("Printer profile selected",
		zap.String("profile", resolved.Name),
		zap.String("paper", resolved.PaperSize),
		zap.Int("line_width_dots", resolved.LineWidthDots),
		zap.Int("chars_per_line", resolved.CharsPerLine))
}

// Reconfigure applies new layout and image settings to later jobs.
func (p *Printer) Reconfigure(cfg PrinterConfig) {
	p.configure(cfg)
}

func (p *Printer) Config() PrinterConfig {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cfg
}

// Profile returns the resolved profile in use.
func (p *Printer) Profile() profile.Profile {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.profile
}

// Compile turns doc into printer bytes for the current profile.
func (p *Printer) Compile(doc receipt.Document) ([]byte, error) {
	p.mu.RLock()
	prof, cfg := p.profile, p.cfg
	p.mu.RUnlock()

	start := time.Now()
	data, err := receipt.Compile(doc, prof, receipt.Options{Raster: cfg.Raster, Reporter: p.reporter})
	if err != nil {
		p.reporter.Report(status.Failure("Failed to compile receipt", err))
		return nil, err
	}
	if p.observer != nil {
		p.observer.ObserveCompile(time.Since(start), len(data))
	}
	return data, nil
}

// Print compiles doc and sends it. A send failure leaves the job pending for
// the next reconnect and is returned to the caller.
func (p *Printer) Print(ctx context.Context, doc receipt.Document) error {
	data, err := p.Compile(doc)
	if err != nil {
		return err
	}
	if err := p.sender.Send(ctx, data); err != nil {
		return fmt.Errorf("failed to send receipt: %w", err)
	}
	logger.Info("Receipt printed", zap.Int("bytes", len(data)), zap.Int("elements", len(doc)))
	return nil
}

// PrintTest prints the built-in test receipt.
func (p *Printer) PrintTest(ctx context.Context) error {
	return p.Print(ctx, TestReceipt(p.Profile(), time.Now()))
}

// Enqueue adds doc to the print queue without blocking.
func (p *Printer) Enqueue(doc receipt.Document) (string, error) {
	id, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("failed to create job id: %w", err)
	}

	select {
	case p.queue <- PrintJob{ID: id, Document: doc}:
		logger.Debug("Print job queued", zap.String("job_id", id), zap.Int("queue_size", len(p.queue)))
		return id, nil
	default:
		logger.Error("Print queue is full, dropping job")
		return "", ErrQueueFull
	}
}

// QueueSize returns the current number of items in the print queue.
func (p *Printer) QueueSize() int {
	return len(p.queue)
}

// Run prints queued jobs one at a time until ctx is cancelled.
func (p *Printer) Run(ctx context.Context) {
	logger.Info("Print queue started")
	for {
		select {
		case <-ctx.Done():
			logger.Info("Print queue stopped", zap.Int("remaining", len(p.queue)))
			return
		case job := <-p.queue:
			if err := p.Print(ctx, job.Document); err != nil {
				logger.Warn("Queued print job failed",
					zap.String("job_id", job.ID),
					zap.Error(err))
			}
		}
	}
}
