package vrinput

import (
	"time"

	"go.uber.org/zap"

	"github.com/openmotion/vrio/vrinput/math3"
)

// DefaultVibeChannel is the reserved unnamed channel every adapter carries.
const DefaultVibeChannel = ""

type vibeCommand struct {
	at        time.Time
	intensity float64
}

// vibeChannel holds a current intensity and a FIFO queue of scheduled
// intensity commands. Commands are scheduled in non-decreasing time order
// by the builder.
type vibeChannel struct {
	name      string
	intensity float64
	queue     []vibeCommand
}

// VibeBuilder schedules intensity commands on one channel against a virtual
// cursor that starts at selection time. Set appends a command at the
// cursor, Wait advances the cursor without emitting. Calls chain:
//
//	c.SetVibe("alert").Set(0.5).Wait(100*time.Millisecond).Set(0)
type VibeBuilder struct {
	ch     *vibeChannel
	cursor time.Time
}

// Set appends an intensity command at the current cursor time.
func (b *VibeBuilder) Set(intensity float64) *VibeBuilder {
	b.ch.queue = append(b.ch.queue, vibeCommand{at: b.cursor, intensity: intensity})
	return b
}

// Wait advances the cursor by d.
func (b *VibeBuilder) Wait(d time.Duration) *VibeBuilder {
	b.cursor = b.cursor.Add(d)
	return b
}

// SetVibe selects a vibration channel and returns a builder scheduling onto
// it. Selecting a channel that does not exist creates it at intensity 0;
// selecting an existing channel clears its pending commands but keeps the
// in-flight intensity.
func (c *Controller) SetVibe(channel string) *VibeBuilder {
	return &VibeBuilder{ch: c.selectChannel(channel), cursor: c.now()}
}

// Vibe sets an immediate intensity on the reserved unnamed channel.
func (c *Controller) Vibe(intensity float64) *VibeBuilder {
	return c.SetVibe(DefaultVibeChannel).Set(intensity)
}

func (c *Controller) selectChannel(name string) *vibeChannel {
	if ch, ok := c.channels[name]; ok {
		ch.queue = ch.queue[:0]
		return ch
	}
	ch := &vibeChannel{name: name}
	c.channels[name] = ch
	c.channelOrder = append(c.channelOrder, name)
	return ch
}

// RenderVibes services every channel's queue and returns the aggregate
// intensity: elapsed commands are popped in order and applied to the
// channel, then all channel intensities are summed and clamped to [0, 1].
func (c *Controller) RenderVibes() float64 {
	now := c.now()
	total := 0.0
	for _, name := range c.channelOrder {
		ch := c.channels[name]
		for len(ch.queue) > 0 && !ch.queue[0].at.After(now) {
			ch.intensity = ch.queue[0].intensity
			ch.queue = ch.queue[1:]
		}
		total += ch.intensity
	}
	c.vibeTotal = math3.Clamp(total, 0, 1)
	return c.vibeTotal
}

// VibeIntensity returns the aggregate intensity from the last render.
func (c *Controller) VibeIntensity() float64 { return c.vibeTotal }

// ApplyVibes pushes the rendered aggregate intensity to the hardware.
// Actuators auto-decay after their pulse duration, so a steady intensity is
// re-commanded once more than half the duration has elapsed; otherwise a
// pulse is only issued when the intensity actually changed. Devices without
// actuators are silently skipped.
func (c *Controller) ApplyVibes() {
	if len(c.handle.Haptics) == 0 {
		return
	}
	now := c.now()
	changed := c.vibeTotal != c.lastPulse
	stale := c.pulsed && now.Sub(c.lastPulseAt) > c.opts.pulseDuration/2
	if !changed && !stale {
		return
	}
	if err := c.handle.Haptics[0].Pulse(c.vibeTotal, c.opts.pulseDuration); err != nil {
		c.log.Debug("haptic pulse failed", zap.String("device", c.name), zap.Error(err))
	}
	c.pulsed = true
	c.lastPulse = c.vibeTotal
	c.lastPulseAt = now
}
