// Package replay implements a vrinput host that plays back a recorded
// sequence of device frames from a YAML file. It drives demos and
// integration tests without any hardware attached.
package replay

import (
	"fmt"
	"os"
	"sync"

	"github.com/goccy/go-yaml"

	"github.com/openmotion/vrio/vrinput"
	"github.com/openmotion/vrio/vrinput/math3"
)

// Button mirrors one raw button state in a recording.
type Button struct {
	Value   float64 `yaml:"value"`
	Touched bool    `yaml:"touched"`
	Pressed bool    `yaml:"pressed"`
}

// Device is one occupied slot within a frame.
type Device struct {
	Slot           int         `yaml:"slot"`
	ID             string      `yaml:"id"`
	Hand           string      `yaml:"hand"`
	Axes           []float64   `yaml:"axes"`
	Buttons        []Button    `yaml:"buttons"`
	HasOrientation bool        `yaml:"hasOrientation"`
	HasPosition    bool        `yaml:"hasPosition"`
	Orientation    *[4]float64 `yaml:"orientation"`
	Position       *[3]float64 `yaml:"position"`
}

// Frame is one tick's worth of device state.
type Frame struct {
	Devices []Device `yaml:"devices"`
}

// Recording is a fixed slot count and an ordered frame sequence.
type Recording struct {
	Slots  int     `yaml:"slots"`
	Frames []Frame `yaml:"frames"`
}

// Load reads a recording from a YAML file.
func Load(path string) (Recording, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Recording{}, fmt.Errorf("failed to read recording: %w", err)
	}
	var rec Recording
	if err := yaml.Unmarshal(b, &rec); err != nil {
		return Recording{}, fmt.Errorf("failed to parse recording: %w", err)
	}
	if rec.Slots <= 0 {
		return Recording{}, fmt.Errorf("recording needs a positive slot count, got %d", rec.Slots)
	}
	return rec, nil
}

type options struct {
	loop bool
}

type Option func(*options)

// WithLoop restarts the recording from the first frame after the last.
func WithLoop() Option {
	return func(o *options) { o.loop = true }
}

// Host replays a recording one frame per Devices call. After the last
// frame it reports empty slots (or restarts, with WithLoop).
type Host struct {
	mu      sync.Mutex
	rec     Recording
	options options
	cursor  int
}

func NewHost(rec Recording, opts ...Option) *Host {
	h := &Host{rec: rec}
	for _, opt := range opts {
		opt(&h.options)
	}
	return h
}

// Devices implements vrinput.Host.
func (h *Host) Devices() ([]*vrinput.DeviceHandle, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	slots := make([]*vrinput.DeviceHandle, h.rec.Slots)
	if h.cursor >= len(h.rec.Frames) {
		if !h.options.loop {
			return slots, true
		}
		h.cursor = 0
	}
	frame := h.rec.Frames[h.cursor]
	h.cursor++
	for _, dev := range frame.Devices {
		if dev.Slot < 0 || dev.Slot >= len(slots) {
			continue
		}
		slots[dev.Slot] = handleFromDevice(dev)
	}
	return slots, true
}

func handleFromDevice(dev Device) *vrinput.DeviceHandle {
	handle := &vrinput.DeviceHandle{
		ID:        dev.ID,
		Index:     dev.Slot,
		Connected: true,
		Hand:      dev.Hand,
		Axes:      dev.Axes,
	}
	for _, b := range dev.Buttons {
		handle.Buttons = append(handle.Buttons, vrinput.RawButton{
			Value:   b.Value,
			Touched: b.Touched,
			Pressed: b.Pressed,
		})
	}
	if dev.HasOrientation || dev.HasPosition {
		pose := &vrinput.RawPose{
			HasOrientation: dev.HasOrientation,
			HasPosition:    dev.HasPosition,
		}
		if dev.Orientation != nil {
			q := math3.Quat{
				X: dev.Orientation[0],
				Y: dev.Orientation[1],
				Z: dev.Orientation[2],
				W: dev.Orientation[3],
			}
			pose.Orientation = &q
		}
		if dev.Position != nil {
			p := math3.Vec3{
				X: dev.Position[0],
				Y: dev.Position[1],
				Z: dev.Position[2],
			}
			pose.Position = &p
		}
		handle.Pose = pose
	}
	return handle
}

// Rewind restarts playback from the first frame.
func (h *Host) Rewind() {
	h.mu.Lock()
	h.cursor = 0
	h.mu.Unlock()
}

// Remaining returns how many frames are left to play.
func (h *Host) Remaining() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cursor >= len(h.rec.Frames) {
		return 0
	}
	return len(h.rec.Frames) - h.cursor
}

var _ vrinput.Host = (*Host)(nil)
