// Package catalog maps raw device identifier strings to named input schemas.
//
// Host polling APIs report controllers with free-form identifier strings,
// often with vendor-appended suffixes (serial numbers, connection hints).
// The catalog resolves those identifiers to a device style and a schema
// describing the device's named axis pairs and buttons.
package catalog

import (
	"fmt"
	"strings"
)

// Style is the normalized device family resolved from a raw identifier.
type Style string

const (
	StyleDaydream         Style = "daydream"
	StyleVive             Style = "vive"
	StyleOculusTouchLeft  Style = "oculus-touch-left"
	StyleOculusTouchRight Style = "oculus-touch-right"
	StyleOculusGo         Style = "oculus-go"
	StyleGearVR           Style = "gearvr"
	StyleXbox             Style = "xbox"
)

// AxisPair declares a named two-axis input and the raw axis slots it reads.
type AxisPair struct {
	Name string
	X    int
	Y    int
	// Thumbstick marks pairs that double as digital directional inputs.
	// Dead-zone filtering and directional press detection only apply to
	// thumbstick-like pairs.
	Thumbstick bool
}

// Schema describes the named inputs of one device style. Button order is
// positional: Buttons[i] names the raw button at index i.
type Schema struct {
	Style   Style
	Axes    []AxisPair
	Buttons []string
	// Primary names the main-action button. Empty means positional
	// fallback (second button if present, else first).
	Primary string
}

type entry struct {
	match  string
	schema Schema
}

// Catalog is an ordered list of identifier substrings and their schemas.
// It is populated at startup and read-only afterwards.
type Catalog struct {
	entries []entry
	styles  map[Style]Schema
}

func New() *Catalog {
	return &Catalog{styles: make(map[Style]Schema)}
}

// Register appends a schema under a new identifier substring. Entries are
// matched in registration order.
func (c *Catalog) Register(match string, schema Schema) error {
	if match == "" {
		return fmt.Errorf("empty match string")
	}
	for _, e := range c.entries {
		if e.match == match {
			return fmt.Errorf("duplicate match string %q", match)
		}
	}
	c.entries = append(c.entries, entry{match: match, schema: schema})
	if _, ok := c.styles[schema.Style]; !ok {
		c.styles[schema.Style] = schema
	}
	return nil
}

// RegisterAlias maps an additional identifier substring to an already
// registered style, e.g. several XInput identifiers sharing the xbox schema.
func (c *Catalog) RegisterAlias(match string, style Style) error {
	schema, ok := c.styles[style]
	if !ok {
		return fmt.Errorf("unknown style %q", style)
	}
	return c.Register(match, schema)
}

// Registered reports whether a match string is already registered.
func (c *Catalog) Registered(match string) bool {
	for _, e := range c.entries {
		if e.match == match {
			return true
		}
	}
	return false
}

// Resolve returns the schema of the first registered substring contained in
// rawID. Identifier matching is containment, never equality: raw identifiers
// carry vendor suffixes that would defeat exact matching.
func (c *Catalog) Resolve(rawID string) (Schema, bool) {
	for _, e := range c.entries {
		if strings.Contains(rawID, e.match) {
			return e.schema, true
		}
	}
	return Schema{}, false
}

// Styles returns the set of registered styles.
func (c *Catalog) Styles() []Style {
	styles := make([]Style, 0, len(c.styles))
	for s := range c.styles {
		styles = append(styles, s)
	}
	return styles
}

// Default returns the built-in catalog covering the supported VR motion
// controllers and common gamepads.
func Default() *Catalog {
	c := New()
	mustRegister(c, "Daydream Controller", Schema{
		Style:   StyleDaydream,
		Axes:    []AxisPair{{Name: "trackpad", X: 0, Y: 1, Thumbstick: true}},
		Buttons: []string{"trackpad"},
		Primary: "trackpad",
	})
	mustRegister(c, "OpenVR ", Schema{
		Style:   StyleVive,
		Axes:    []AxisPair{{Name: "thumbpad", X: 0, Y: 1, Thumbstick: true}},
		Buttons: []string{"thumbpad", "trigger", "grip", "menu"},
		Primary: "trigger",
	})
	mustRegister(c, "Oculus Touch (Left)", Schema{
		Style:   StyleOculusTouchLeft,
		Axes:    []AxisPair{{Name: "thumbstick", X: 0, Y: 1, Thumbstick: true}},
		Buttons: []string{"thumbstick", "trigger", "grip", "X", "Y"},
		Primary: "trigger",
	})
	mustRegister(c, "Oculus Touch (Right)", Schema{
		Style:   StyleOculusTouchRight,
		Axes:    []AxisPair{{Name: "thumbstick", X: 0, Y: 1, Thumbstick: true}},
		Buttons: []string{"thumbstick", "trigger", "grip", "A", "B"},
		Primary: "trigger",
	})
	mustRegister(c, "Oculus Go Controller", Schema{
		Style:   StyleOculusGo,
		Axes:    []AxisPair{{Name: "touchpad", X: 0, Y: 1, Thumbstick: true}},
		Buttons: []string{"touchpad", "trigger"},
		Primary: "trigger",
	})
	mustRegister(c, "Gear VR Controller", Schema{
		Style:   StyleGearVR,
		Axes:    []AxisPair{{Name: "touchpad", X: 0, Y: 1, Thumbstick: true}},
		Buttons: []string{"touchpad", "trigger"},
		Primary: "trigger",
	})
	mustRegister(c, "Xbox 360 Controller", Schema{
		Style: StyleXbox,
		Axes: []AxisPair{
			{Name: "leftStick", X: 0, Y: 1, Thumbstick: true},
			{Name: "rightStick", X: 2, Y: 3, Thumbstick: true},
		},
		Buttons: []string{"a", "b", "x", "y", "lb", "rb", "select", "start", "l3", "r3", "home"},
		Primary: "a",
	})
	// Several host environments expose XInput pads under different names.
	for _, alias := range []string{"Xbox One Controller", "Xbox Wireless Controller", "XInput", "xinput"} {
		if err := c.RegisterAlias(alias, StyleXbox); err != nil {
			panic(err)
		}
	}
	return c
}

func mustRegister(c *Catalog, match string, schema Schema) {
	if err := c.Register(match, schema); err != nil {
		panic(err)
	}
}
