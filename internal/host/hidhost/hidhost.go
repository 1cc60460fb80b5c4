// Package hidhost exposes connected HID gamepads as a vrinput host.
// It periodically re-enumerates the hidapi device list, keeps a fixed
// number of slots, and decodes input reports with a simple generic
// gamepad layout.
package hidhost

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/sstallion/go-hid"
	"go.uber.org/zap"

	"github.com/openmotion/vrio/vrinput"
)

const (
	usagePageGenericDesktop = 0x01
	usageJoystick           = 0x04
	usageGamepad            = 0x05
)

// Address identifies a HID device by vendor, product and interface.
type Address struct {
	VendorID  uint16
	ProductID uint16
	Interface int
}

func (a Address) String() string {
	return fmt.Sprintf("%04x:%04x:%d", a.VendorID, a.ProductID, a.Interface)
}

type options struct {
	pollInterval time.Duration
	slots        int
}

type Option func(*options)

// WithPollInterval sets how often the device list is re-enumerated.
func WithPollInterval(interval time.Duration) Option {
	return func(o *options) { o.pollInterval = interval }
}

// WithSlots sets the number of controller slots the host reports.
func WithSlots(slots int) Option {
	return func(o *options) { o.slots = slots }
}

var defaultOptions = options{
	pollInterval: time.Second,
	slots:        4,
}

// Host enumerates HID gamepads and serves their latest state as
// vrinput device handles. Slots are assigned on connect and freed on
// disconnect, so a reconnected pad may land in a different slot.
type Host struct {
	log     *zap.Logger
	options options
	ready   chan struct{}

	devices *xsync.MapOf[Address, hid.DeviceInfo]

	mu    sync.Mutex
	slots []*openDevice
}

func New(log *zap.Logger, opts ...Option) *Host {
	options := defaultOptions
	for _, opt := range opts {
		opt(&options)
	}
	return &Host{
		log:     log.Named("hidhost"),
		options: options,
		ready:   make(chan struct{}),
		devices: xsync.NewMapOf[Address, hid.DeviceInfo](),
		slots:   make([]*openDevice, options.slots),
	}
}

func (h *Host) Ready() <-chan struct{} {
	return h.ready
}

func (h *Host) Start(ctx context.Context) error {
	hid.Init()
	defer hid.Exit()

	h.log.Info("Starting HID host")
	if err := h.refreshDevices(); err != nil {
		return fmt.Errorf("failed to enumerate HID devices: %w", err)
	}
	close(h.ready)
	h.log.Info("HID host started")

	pollTicker := time.NewTicker(h.options.pollInterval)
	defer pollTicker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return nil
		case <-pollTicker.C:
			if err := h.refreshDevices(); err != nil {
				h.log.Error("failed to refresh HID devices", zap.Error(err))
			}
		}
	}
}

func (h *Host) refreshDevices() error {
	newDevices, err := enumerateGamepads()
	if err != nil {
		return err
	}
	var gone []Address
	h.devices.Range(func(addr Address, info hid.DeviceInfo) bool {
		if _, ok := newDevices[addr]; !ok {
			gone = append(gone, addr)
			h.devices.Delete(addr)
			return true
		}
		delete(newDevices, addr)
		return true
	})
	for _, addr := range gone {
		h.releaseSlot(addr)
	}
	for addr, info := range newDevices {
		h.devices.Store(addr, info)
		if err := h.assignSlot(addr, info); err != nil {
			h.log.Warn("failed to open HID device",
				zap.String("address", addr.String()), zap.Error(err))
		}
	}
	return nil
}

func enumerateGamepads() (map[Address]hid.DeviceInfo, error) {
	devices := make(map[Address]hid.DeviceInfo)
	err := hid.Enumerate(hid.VendorIDAny, hid.ProductIDAny, func(device *hid.DeviceInfo) error {
		if device.UsagePage != usagePageGenericDesktop {
			return nil
		}
		if device.Usage != usageJoystick && device.Usage != usageGamepad {
			return nil
		}
		addr := Address{
			VendorID:  device.VendorID,
			ProductID: device.ProductID,
			Interface: device.InterfaceNbr,
		}
		devices[addr] = *device
		return nil
	})
	if err != nil {
		return nil, err
	}
	return devices, nil
}

func generateName(device hid.DeviceInfo) string {
	var parts []string
	if device.MfrStr != "" {
		parts = append(parts, device.MfrStr)
	}
	if device.ProductStr != "" {
		parts = append(parts, device.ProductStr)
	}
	if len(parts) == 0 {
		return fmt.Sprintf("%04x:%04x", device.VendorID, device.ProductID)
	}
	return strings.Join(parts, " ")
}

func (h *Host) assignSlot(addr Address, info hid.DeviceInfo) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	slot := -1
	for i, dev := range h.slots {
		if dev == nil {
			slot = i
			break
		}
	}
	if slot < 0 {
		return fmt.Errorf("no free slot for device %s", addr)
	}
	dev, err := hid.OpenPath(info.Path)
	if err != nil {
		return err
	}
	if err := dev.SetNonblock(true); err != nil {
		dev.Close()
		return err
	}
	h.slots[slot] = &openDevice{
		addr: addr,
		name: generateName(info),
		dev:  dev,
	}
	h.log.Info("HID device connected",
		zap.String("address", addr.String()),
		zap.String("name", generateName(info)),
		zap.Int("slot", slot))
	return nil
}

func (h *Host) releaseSlot(addr Address) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, dev := range h.slots {
		if dev == nil || dev.addr != addr {
			continue
		}
		dev.dev.Close()
		h.slots[i] = nil
		h.log.Info("HID device disconnected",
			zap.String("address", addr.String()), zap.Int("slot", i))
		return
	}
}

func (h *Host) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, dev := range h.slots {
		if dev == nil {
			continue
		}
		dev.dev.Close()
		h.slots[i] = nil
	}
}

// Devices implements vrinput.Host. Each call drains pending input
// reports and returns the latest decoded state per slot.
func (h *Host) Devices() ([]*vrinput.DeviceHandle, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	handles := make([]*vrinput.DeviceHandle, len(h.slots))
	for i, dev := range h.slots {
		if dev == nil {
			continue
		}
		if err := dev.drain(); err != nil {
			h.log.Debug("HID read failed",
				zap.String("address", dev.addr.String()), zap.Error(err))
			dev.dev.Close()
			h.slots[i] = nil
			h.devices.Delete(dev.addr)
			continue
		}
		handles[i] = dev.handle(i)
	}
	return handles, true
}

type openDevice struct {
	addr Address
	name string
	dev  *hid.Device

	axes    [4]float64
	buttons [16]bool
	seen    bool
}

// drain reads all queued reports, keeping only the newest.
func (d *openDevice) drain() error {
	buf := make([]byte, 64)
	for {
		n, err := d.dev.Read(buf)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		d.decode(buf[:n])
	}
}

// decode applies a generic gamepad report layout. Bytes 1..4 are the
// stick axes as unsigned bytes centered at 0x80, bytes 5..6 a button
// bitmask. Byte 0 carries the report ID and is skipped.
func (d *openDevice) decode(report []byte) {
	if len(report) < 7 {
		return
	}
	for i := 0; i < 4; i++ {
		d.axes[i] = axisValue(report[1+i])
	}
	mask := uint16(report[5]) | uint16(report[6])<<8
	for i := 0; i < 16; i++ {
		d.buttons[i] = mask&(1<<i) != 0
	}
	d.seen = true
}

func axisValue(raw byte) float64 {
	v := (float64(raw) - 0x80) / 127
	if v < -1 {
		v = -1
	}
	if v > 1 {
		v = 1
	}
	return v
}

func (d *openDevice) handle(slot int) *vrinput.DeviceHandle {
	handle := &vrinput.DeviceHandle{
		ID:        d.name,
		Index:     slot,
		Connected: true,
		Axes:      d.axes[:],
	}
	for _, pressed := range d.buttons {
		button := vrinput.RawButton{Pressed: pressed}
		if pressed {
			button.Value = 1
			button.Touched = true
		}
		handle.Buttons = append(handle.Buttons, button)
	}
	return handle
}

var _ vrinput.Host = (*Host)(nil)
