package agent

// Config points to the data directory and the user-driven configuration
// files. Live reload only applies to the catalog document.
type Config struct {
	// DataDir holds the badger database with the tracked device history.
	DataDir string `json:"dataDir"`
	// CatalogDoc is a markdown document with extra device aliases.
	CatalogDoc string `json:"catalogDoc"`
	// Replay is an optional recording file. When set, the agent plays it
	// back instead of polling HID hardware.
	Replay string `json:"replay"`
	// HubAddr is the WebSocket listen address.
	HubAddr string `json:"hubAddr"`
	// Slots is the number of controller slots the HID host serves.
	Slots int `json:"slots"`
	// Settings is the YAML settings file with the tick interval and
	// haptic presets. Live-reloaded.
	Settings string `json:"settings"`
}

// Settings holds the live-reloadable part of the agent configuration.
type Settings struct {
	// TickIntervalMs is the frame interval of the tracking loop in
	// milliseconds. Applied on startup only.
	TickIntervalMs int `yaml:"tickIntervalMs"`
	// Presets maps preset names to vibration pattern sources, e.g.
	// "set(0.8); wait(120ms); set(0)".
	Presets map[string]string `yaml:"presets"`
}

var defaultSettings = Settings{
	TickIntervalMs: 16,
	Presets: map[string]string{
		"pulse": "set(0.8); wait(120ms); set(0)",
		"buzz":  "set(0.3); wait(400ms); set(0)",
	},
}
