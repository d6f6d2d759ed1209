package driver

import (
	"context"
	"strings"

	"github.com/ichi0g0y/thermal-receipt/internal/device"
)

// TransportKind はプリンターの接続方式を表す
type TransportKind string

const (
	TransportUSB    TransportKind = "usb"
	TransportDryRun TransportKind = "dryrun"
)

// Status is a connection status value as reported by a driver. Drivers may
// report values richer than Connected/Disconnected.
type Status string

const (
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusNone         Status = "none"
)

// Normalize collapses every non-connected value into StatusDisconnected.
func (s Status) Normalize() Status {
	if Status(strings.ToLower(string(s))) == StatusConnected {
		return StatusConnected
	}
	return StatusDisconnected
}

// DiscoveryResult is one item of a discovery feed: a device or a non-fatal error.
type DiscoveryResult struct {
	Device device.Raw
	Err    error
}

// Driver はプリンタードライバーの境界インターフェース
//
// Discover and StatusFeed return channels that the driver closes once ctx is
// cancelled (or earlier, when the feed is finite).
type Driver interface {
	// Discover はデバイス列挙のフィードを返す
	Discover(ctx context.Context, kind TransportKind) (<-chan DiscoveryResult, error)

	// Connect はデバイスに接続する。false はドライバーが接続を拒否したことを示す
	Connect(ctx context.Context, kind TransportKind, dev device.Identity) (bool, error)

	// Disconnect はベストエフォートで切断する
	Disconnect(ctx context.Context, kind TransportKind) error

	// Send は印刷データを送信する
	Send(ctx context.Context, kind TransportKind, data []byte) error

	// StatusFeed はハードウェアの接続状態の通知を返す
	StatusFeed(ctx context.Context, kind TransportKind) (<-chan Status, error)
}
