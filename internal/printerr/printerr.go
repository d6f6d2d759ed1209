// Package printerr defines the error kinds surfaced by the printing core.
package printerr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindDiscovery        Kind = "discovery"
	KindConnect          Kind = "connect"
	KindSend             Kind = "send"
	KindProfile          Kind = "profile"
	KindImage            Kind = "image"
	KindLayout           Kind = "layout"
	KindInvalidOperation Kind = "invalid_operation"
)

var (
	ErrNoDeviceSelected = errors.New("no device selected")
	ErrNotConnected     = errors.New("printer not connected")
	ErrConnectRejected  = errors.New("driver rejected connection")
)

type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		if e.Op != "" {
			return e.Op
		}
		return string(e.Kind)
	}
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Wrap tags err with kind. A nil err still produces an error so callers can
// report failures that have no underlying cause.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		err = errors.New(string(kind) + " error")
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the outermost *Error in err's chain, or "".
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func IsInvalidOperation(err error) bool {
	return IsKind(err, KindInvalidOperation)
}

func IsSend(err error) bool {
	return IsKind(err, KindSend)
}

func IsConnect(err error) bool {
	return IsKind(err, KindConnect)
}

func IsLayout(err error) bool {
	return IsKind(err, KindLayout)
}
