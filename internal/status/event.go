package status

import (
	"time"

	"github.com/ichi0g0y/thermal-receipt/internal/device"
	"github.com/ichi0g0y/thermal-receipt/internal/printerr"
)

type EventType string

const (
	EventStateChanged EventType = "state_changed"
	EventInfo         EventType = "info"
	EventError        EventType = "error"
	EventScanStarted  EventType = "scan_started"
	EventDeviceFound  EventType = "device_found"
	EventScanEnded    EventType = "scan_ended"
	EventJobSent      EventType = "job_sent"
	EventJobParked    EventType = "job_parked"
	EventJobResent    EventType = "job_resent"
)

// Event is a notification surfaced to the application: state changes, info
// messages, and non-fatal errors.
type Event struct {
	Type    EventType        `json:"type"`
	Message string           `json:"message,omitempty"`
	State   string           `json:"state,omitempty"`
	Kind    printerr.Kind    `json:"kind,omitempty"`
	Error   string           `json:"error,omitempty"`
	Device  *device.Identity `json:"device,omitempty"`
	At      time.Time        `json:"at"`

	Err error `json:"-"`
}

// Reporter はイベントの通知先
// グローバルなメッセンジャーの代わりにコンポーネントへ注入する
type Reporter interface {
	Report(Event)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(Event)

func (f ReporterFunc) Report(e Event) { f(e) }

// Discard drops every event.
var Discard Reporter = ReporterFunc(func(Event) {})

// Info builds an info event.
func Info(msg string) Event {
	return Event{Type: EventInfo, Message: msg, At: time.Now()}
}

// Failure builds an error event carrying err and its kind.
func Failure(msg string, err error) Event {
	e := Event{Type: EventError, Message: msg, Err: err, Kind: printerr.KindOf(err), At: time.Now()}
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// WithDevice returns a copy of e referencing dev.
func (e Event) WithDevice(dev device.Identity) Event {
	e.Device = &dev
	return e
}

type multi []Reporter

func (m multi) Report(e Event) {
	for _, r := range m {
		r.Report(e)
	}
}

// Multi fans events out to every non-nil reporter in order.
func Multi(reporters ...Reporter) Reporter {
	var m multi
	for _, r := range reporters {
		if r != nil {
			m = append(m, r)
		}
	}
	return m
}
