package status

import (
	"sync"
	"time"

	"github.com/ichi0g0y/thermal-receipt/internal/shared/logger"
	"go.uber.org/zap"
)

const defaultHistorySize = 50

// PrinterStatusChangeCallback is called when printer connection status changes
type PrinterStatusChangeCallback func(connected bool)

// EventCallback is called for every reported event.
type EventCallback func(Event)

// Board はプリンターの状態と最近のイベントを保持する Reporter 実装
type Board struct {
	mu               sync.RWMutex
	printerConnected bool
	state            string
	history          []Event
	historySize      int
	printerCallbacks []PrinterStatusChangeCallback
	eventCallbacks   []EventCallback
}

func NewBoard() *Board {
	return &Board{
		state:       "disconnected",
		historySize: defaultHistorySize,
	}
}

// Report records e, logs it, and runs the registered callbacks.
func (b *Board) Report(e Event) {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	logEvent(e)

	b.mu.Lock()
	previous := b.printerConnected
	if e.Type == EventStateChanged {
		b.state = e.State
		b.printerConnected = e.State == "connected"
	}
	connected := b.printerConnected

	b.history = append(b.history, e)
	if len(b.history) > b.historySize {
		b.history = b.history[len(b.history)-b.historySize:]
	}

	printerCallbacks := make([]PrinterStatusChangeCallback, len(b.printerCallbacks))
	copy(printerCallbacks, b.printerCallbacks)
	eventCallbacks := make([]EventCallback, len(b.eventCallbacks))
	copy(eventCallbacks, b.eventCallbacks)
	b.mu.Unlock()

	for _, callback := range eventCallbacks {
		if callback != nil {
			callback(e)
		}
	}

	// 状態が変更された場合のみ通知
	if previous != connected {
		for _, callback := range printerCallbacks {
			if callback != nil {
				callback(connected)
			}
		}
	}
}

// IsPrinterConnected returns the printer connection status
func (b *Board) IsPrinterConnected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.printerConnected
}

// State returns the last reported connection state name.
func (b *Board) State() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// Recent returns up to limit events, newest last.
func (b *Board) Recent(limit int) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	events := b.history
	if limit > 0 && limit < len(events) {
		events = events[len(events)-limit:]
	}
	out := make([]Event, len(events))
	copy(out, events)
	return out
}

// RegisterPrinterStatusChangeCallback registers a callback for printer status changes
func (b *Board) RegisterPrinterStatusChangeCallback(callback PrinterStatusChangeCallback) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.printerCallbacks = append(b.printerCallbacks, callback)
}

// RegisterEventCallback registers a callback for every event
func (b *Board) RegisterEventCallback(callback EventCallback) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.eventCallbacks = append(b.eventCallbacks, callback)
}

func logEvent(e Event) {
	fields := []zap.Field{zap.String("type", string(e.Type))}
	if e.State != "" {
		fields = append(fields, zap.String("state", e.State))
	}
	if e.Device != nil {
		fields = append(fields, zap.Stringer("device", *e.Device))
	}
	if e.Kind != "" {
		fields = append(fields, zap.String("kind", string(e.Kind)))
	}

	switch e.Type {
	case EventError:
		logger.Warn(e.Message, append(fields, zap.Error(e.Err))...)
	case EventDeviceFound:
		logger.Debug(e.Message, fields...)
	default:
		logger.Info(e.Message, fields...)
	}
}
