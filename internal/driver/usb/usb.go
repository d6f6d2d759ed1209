// Package usb implements driver.Driver on top of libusb (github.com/google/gousb).
package usb

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/gousb"
	"github.com/ichi0g0y/thermal-receipt/internal/device"
	"github.com/ichi0g0y/thermal-receipt/internal/driver"
	"github.com/ichi0g0y/thermal-receipt/internal/shared/logger"
	"go.uber.org/zap"
)

const defaultPollInterval = 2 * time.Second

var (
	ErrUnsupportedTransport = errors.New("usb driver only supports the usb transport")
	ErrNoOutEndpoint        = errors.New("no bulk OUT endpoint on printer interface")
)

// Driver はUSB接続のサーマルプリンターを扱う
type Driver struct {
	mu sync.Mutex

	usb  *gousb.Context
	dev  *gousb.Device
	intf *gousb.Interface
	done func()
	out  *gousb.OutEndpoint

	target      device.Identity
	present     bool
	stopMonitor context.CancelFunc

	pollInterval time.Duration
	subs         map[chan driver.Status]struct{}
}

// New は libusb コンテキストを作成する
func New() *Driver {
	return &Driver{
		usb:          gousb.NewContext(),
		pollInterval: defaultPollInterval,
		subs:         make(map[chan driver.Status]struct{}),
	}
}

// Close releases the open device and the libusb context.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopMonitor != nil {
		d.stopMonitor()
		d.stopMonitor = nil
	}
	d.releaseLocked()
	return d.usb.Close()
}

func (d *Driver) Discover(ctx context.Context, kind driver.TransportKind) (<-chan driver.DiscoveryResult, error) {
	if kind != driver.TransportUSB {
		return nil, ErrUnsupportedTransport
	}

	out := make(chan driver.DiscoveryResult)
	go func() {
		defer close(out)

		ticker := time.NewTicker(d.pollInterval)
		defer ticker.Stop()

		for {
			found, err := d.enumerate()
			if err != nil {
				select {
				case out <- driver.DiscoveryResult{Err: err}:
				case <-ctx.Done():
					return
				}
			}
			for _, raw := range found {
				select {
				case out <- driver.DiscoveryResult{Device: raw}:
				case <-ctx.Done():
					return
				}
			}

			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// enumerate lists printer-class devices without opening them.
func (d *Driver) enumerate() ([]device.Raw, error) {
	var found []device.Raw
	devs, err := d.usb.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if !isPrinter(desc) {
			return false
		}
		vid := desc.Vendor.String()
		pid := desc.Product.String()
		found = append(found, device.Raw{VendorID: &vid, ProductID: &pid})
		// 列挙のみ。ここではデバイスを開かない
		return false
	})
	for _, dev := range devs {
		dev.Close()
	}
	if err != nil {
		return found, fmt.Errorf("failed to enumerate USB devices: %w", err)
	}

	for i := range found {
		name := d.describe(*found[i].VendorID, *found[i].ProductID)
		found[i].Name = &name
	}
	return found, nil
}

// describe opens the device briefly to read its manufacturer/product strings.
func (d *Driver) describe(vendorID, productID string) string {
	fallback := fmt.Sprintf("USB: %s:%s", vendorID, productID)

	vid, pid, err := parseIDs(vendorID, productID)
	if err != nil {
		return fallback
	}
	dev, err := d.usb.OpenDeviceWithVIDPID(vid, pid)
	if err != nil || dev == nil {
		return fallback
	}
	defer dev.Close()

	manufacturer, _ := dev.Manufacturer()
	product, _ := dev.Product()
	if manufacturer == "" && product == "" {
		return fallback
	}
	return fmt.Sprintf("%s %s", manufacturer, product)
}

func (d *Driver) Connect(ctx context.Context, kind driver.TransportKind, dev device.Identity) (bool, error) {
	if kind != driver.TransportUSB {
		return false, ErrUnsupportedTransport
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopMonitor != nil {
		d.stopMonitor()
		d.stopMonitor = nil
	}
	d.releaseLocked()

	d.target = dev
	if err := d.openLocked(); err != nil {
		logger.Error("Failed to open USB printer", zap.Stringer("device", dev), zap.Error(err))
		return false, err
	}
	d.present = true

	monitorCtx, cancel := context.WithCancel(context.Background())
	d.stopMonitor = cancel
	go d.monitor(monitorCtx)

	logger.Info("USB printer connected", zap.Stringer("device", dev))
	d.publishLocked(driver.StatusConnected)
	return true, nil
}

func (d *Driver) Disconnect(ctx context.Context, kind driver.TransportKind) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopMonitor != nil {
		d.stopMonitor()
		d.stopMonitor = nil
	}
	d.releaseLocked()
	d.present = false
	d.target = device.Identity{}

	logger.Info("USB printer disconnected")
	d.publishLocked(driver.StatusDisconnected)
	return nil
}

func (d *Driver) Send(ctx context.Context, kind driver.TransportKind, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.out == nil {
		return errors.New("usb printer not open")
	}

	written := 0
	for written < len(data) {
		n, err := d.out.WriteContext(ctx, data[written:])
		written += n
		if err != nil {
			return fmt.Errorf("usb write failed after %d/%d bytes: %w", written, len(data), err)
		}
	}

	logger.Debug("USB print job written", zap.Int("bytes", written))
	return nil
}

func (d *Driver) StatusFeed(ctx context.Context, kind driver.TransportKind) (<-chan driver.Status, error) {
	if kind != driver.TransportUSB {
		return nil, ErrUnsupportedTransport
	}

	ch := make(chan driver.Status, 16)
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

// monitor polls the bus for the connected printer and reports unplug/replug.
func (d *Driver) monitor(ctx context.Context) {
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		d.mu.Lock()
		if ctx.Err() != nil {
			d.mu.Unlock()
			return
		}
		attached := d.attachedLocked()
		switch {
		case d.present && !attached:
			logger.Warn("USB printer detached", zap.Stringer("device", d.target))
			d.releaseLocked()
			d.present = false
			d.publishLocked(driver.StatusDisconnected)
		case !d.present && attached:
			if err := d.openLocked(); err != nil {
				logger.Warn("USB printer re-attached but could not be opened", zap.Error(err))
				break
			}
			logger.Info("USB printer re-attached", zap.Stringer("device", d.target))
			d.present = true
			d.publishLocked(driver.StatusConnected)
		}
		d.mu.Unlock()
	}
}

func (d *Driver) attachedLocked() bool {
	vid, pid, err := parseIDs(d.target.VendorID, d.target.ProductID)
	if err != nil {
		return false
	}
	attached := false
	devs, _ := d.usb.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if desc.Vendor == vid && desc.Product == pid {
			attached = true
		}
		return false
	})
	for _, dev := range devs {
		dev.Close()
	}
	return attached
}

func (d *Driver) openLocked() error {
	vid, pid, err := parseIDs(d.target.VendorID, d.target.ProductID)
	if err != nil {
		return err
	}

	dev, err := d.usb.OpenDeviceWithVIDPID(vid, pid)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", d.target, err)
	}
	if dev == nil {
		return fmt.Errorf("printer %s not found", d.target)
	}
	if err := dev.SetAutoDetach(true); err != nil {
		logger.Debug("Kernel driver auto-detach not supported", zap.Error(err))
	}

	intf, done, err := dev.DefaultInterface()
	if err != nil {
		dev.Close()
		return fmt.Errorf("failed to claim printer interface: %w", err)
	}

	out, err := bulkOut(intf)
	if err != nil {
		done()
		dev.Close()
		return err
	}

	d.dev, d.intf, d.done, d.out = dev, intf, done, out
	return nil
}

func (d *Driver) releaseLocked() {
	if d.done != nil {
		d.done()
	}
	if d.dev != nil {
		d.dev.Close()
	}
	d.dev, d.intf, d.done, d.out = nil, nil, nil, nil
}

func (d *Driver) publishLocked(s driver.Status) {
	for ch := range d.subs {
		select {
		case ch <- s:
		default:
			logger.Warn("USB status subscriber is full, dropping status", zap.String("status", string(s)))
		}
	}
}

func bulkOut(intf *gousb.Interface) (*gousb.OutEndpoint, error) {
	for _, ep := range intf.Setting.Endpoints {
		if ep.Direction == gousb.EndpointDirectionOut && ep.TransferType == gousb.TransferTypeBulk {
			return intf.OutEndpoint(ep.Number)
		}
	}
	return nil, ErrNoOutEndpoint
}

// isPrinter は USB プリンタークラス (0x07) のデバイスかどうか判定する
func isPrinter(desc *gousb.DeviceDesc) bool {
	if desc.Class == gousb.ClassPrinter {
		return true
	}
	for _, cfg := range desc.Configs {
		for _, intf := range cfg.Interfaces {
			for _, alt := range intf.AltSettings {
				if alt.Class == gousb.ClassPrinter {
					return true
				}
			}
		}
	}
	return false
}

func parseIDs(vendorID, productID string) (gousb.ID, gousb.ID, error) {
	vid, err := strconv.ParseUint(vendorID, 16, 16)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid vendor id %q: %w", vendorID, err)
	}
	pid, err := strconv.ParseUint(productID, 16, 16)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid product id %q: %w", productID, err)
	}
	return gousb.ID(vid), gousb.ID(pid), nil
}
