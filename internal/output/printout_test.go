package output

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ichi0g0y/thermal-receipt/internal/connection"
	"github.com/ichi0g0y/thermal-receipt/internal/device"
	"github.com/ichi0g0y/thermal-receipt/internal/driver"
	"github.com/ichi0g0y/thermal-receipt/internal/env"
	"github.com/ichi0g0y/thermal-receipt/internal/escpos"
	"github.com/ichi0g0y/thermal-receipt/internal/printerr"
	"github.com/ichi0g0y/thermal-receipt/internal/raster"
	"github.com/ichi0g0y/thermal-receipt/internal/receipt"
	"github.com/ichi0g0y/thermal-receipt/internal/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	mu   sync.Mutex
	sent [][]byte
	err  error
}

func (f *fakeSender) Send(ctx context.Context, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, data)
	return nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type observer struct {
	calls int
	bytes int
}

func (o *observer) ObserveCompile(d time.Duration, size int) {
	o.calls++
	o.bytes += size
}

func testConfig() PrinterConfig {
	return PrinterConfig{
		Type:      PrinterTypeDryRun,
		Profile:   "default",
		PaperSize: "58mm",
		Raster:    raster.DefaultOptions(),
	}
}

func TestConfigFromEnv(t *testing.T) {
	v := env.EnvValue{
		PrinterType:    "usb",
		PrinterProfile: "epson-tm-t20",
		PaperSize:      "80mm",
		Threshold:      100,
		Dither:         true,
		SettleDelay:    2 * time.Second,
		VendorFilter:   []string{"04b8"},
	}

	cfg := ConfigFromEnv(v)
	assert.Equal(t, PrinterTypeUSB, cfg.Type)
	assert.Equal(t, driver.TransportUSB, cfg.Transport())
	assert.Equal(t, 100, cfg.Raster.Threshold)
	assert.Equal(t, 2*time.Second, cfg.SettleDelay)
	assert.Equal(t, []string{"04b8"}, cfg.VendorFilter)

	v.DryRunMode = true
	cfg = ConfigFromEnv(v)
	assert.Equal(t, PrinterTypeDryRun, cfg.Type)
	assert.Equal(t, driver.TransportDryRun, cfg.Transport())
}

func TestNewDriver(t *testing.T) {
	drv, closeFn, err := NewDriver(PrinterConfig{Type: PrinterTypeDryRun})
	require.NoError(t, err)
	assert.IsType(t, &driver.DryRun{}, drv)
	assert.NoError(t, closeFn())

	_, _, err = NewDriver(PrinterConfig{Type: "bluetooth"})
	assert.Error(t, err)
}

func TestProfileFallsBackForUnknownName(t *testing.T) {
	cfg := testConfig()
	cfg.Profile = "no-such-printer"
	p := NewPrinter(&fakeSender{}, cfg, nil, nil)

	assert.Equal(t, "default", p.Profile().Name)
	assert.Equal(t, 384, p.Profile().LineWidthDots)

	cfg.Profile = "epson-tm-t20"
	cfg.PaperSize = "80mm"
	p.Reconfigure(cfg)
	assert.Equal(t, "epson-tm-t20", p.Profile().Name)
	assert.Equal(t, 576, p.Profile().LineWidthDots)
}

func TestPrintSendsCompiledBytes(t *testing.T) {
	sender := &fakeSender{}
	obs := &observer{}
	p := NewPrinter(sender, testConfig(), nil, obs)

	doc := receipt.Document{receipt.Text{Content: "hello"}}
	require.NoError(t, p.Print(context.Background(), doc))

	require.Equal(t, 1, sender.count())
	assert.Equal(t, []byte{0x1B, 0x40}, sender.sent[0][:2])
	assert.True(t, bytes.Contains(sender.sent[0], []byte("hello\n")))
	assert.Equal(t, 1, obs.calls)
	assert.Equal(t, len(sender.sent[0]), obs.bytes)
}

func TestPrintReportsCompileErrors(t *testing.T) {
	sender := &fakeSender{}
	var events []status.Event
	p := NewPrinter(sender, testConfig(), status.ReporterFunc(func(e status.Event) {
		events = append(events, e)
	}), nil)

	err := p.Print(context.Background(), receipt.Document{receipt.Row{Columns: []receipt.Column{{Width: 3, Text: "x"}}}})
	require.Error(t, err)
	assert.True(t, printerr.IsLayout(err))
	assert.Zero(t, sender.count())
	require.NotEmpty(t, events)
	assert.Equal(t, printerr.KindLayout, events[len(events)-1].Kind)
}

func TestPrintWrapsSendErrors(t *testing.T) {
	sendErr := printerr.Wrap(printerr.KindSend, "send", errors.New("pipe"))
	p := NewPrinter(&fakeSender{err: sendErr}, testConfig(), nil, nil)

	err := p.Print(context.Background(), receipt.Document{receipt.Text{Content: "x"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, sendErr)
}

func TestEnqueueRejectsWhenFull(t *testing.T) {
	p := NewPrinter(&fakeSender{}, testConfig(), nil, nil)

	for i := 0; i < defaultQueueSize; i++ {
		id, err := p.Enqueue(receipt.Document{})
		require.NoError(t, err)
		require.NotEmpty(t, id)
	}
	assert.Equal(t, defaultQueueSize, p.QueueSize())

	_, err := p.Enqueue(receipt.Document{})
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestRunDrainsQueue(t *testing.T) {
	sender := &fakeSender{}
	p := NewPrinter(sender, testConfig(), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	for i := 0; i < 3; i++ {
		_, err := p.Enqueue(receipt.Document{receipt.Text{Content: "job"}})
		require.NoError(t, err)
	}
	require.Eventually(t, func() bool { return sender.count() == 3 }, time.Second, 5*time.Millisecond)
}

func TestTestReceiptFitsEveryPaper(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	for _, paper := range []string{"58mm", "72mm", "80mm"} {
		t.Run(paper, func(t *testing.T) {
			cfg := testConfig()
			cfg.PaperSize = paper
			p := NewPrinter(&fakeSender{}, cfg, nil, nil)

			data, err := p.Compile(TestReceipt(p.Profile(), now))
			require.NoError(t, err)
			assert.True(t, bytes.Contains(data, []byte("2026-01-02 03:04:05")))
			assert.True(t, bytes.Contains(data, []byte("12.55")), "subtotal")
			assert.True(t, bytes.Contains(data, []byte("13.55")), "total")
			assert.True(t, bytes.HasSuffix(data, escpos.Cut(false)))
		})
	}
}

func TestPrintThroughConnectionMachine(t *testing.T) {
	drv := driver.NewDryRun()
	m := connection.New(drv, connection.Config{Transport: driver.TransportDryRun, SettleDelay: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	p := NewPrinter(m, testConfig(), nil, nil)
	doc := receipt.Document{receipt.Text{Content: "parked"}}

	err := p.Print(context.Background(), doc)
	require.Error(t, err)
	assert.ErrorIs(t, err, printerr.ErrNotConnected)

	require.NoError(t, m.Select(context.Background(), device.New("Dry", "0416", "5011")))
	require.NoError(t, m.Connect(context.Background()))

	require.Eventually(t, func() bool { return len(drv.Sent()) == 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, bytes.Contains(drv.Sent()[0], []byte("parked\n")))
}
