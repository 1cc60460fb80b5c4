package agent

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/dgraph-io/badger"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/openmotion/vrio/internal/configsvc"
	"github.com/openmotion/vrio/internal/host/hidhost"
	"github.com/openmotion/vrio/internal/host/replay"
	"github.com/openmotion/vrio/internal/hub"
	"github.com/openmotion/vrio/internal/tracksvc"
	"github.com/openmotion/vrio/vrinput"
	"github.com/openmotion/vrio/vrinput/catalog"
	"github.com/openmotion/vrio/vrinput/catalog/docparser"
	"github.com/openmotion/vrio/vrinput/vibedsl"
)

type Agent struct {
	config Config
	log    *zap.Logger

	db        *badger.DB
	catalog   *catalog.Catalog
	configSvc *configsvc.Service
	hidHost   *hidhost.Host
	trackSvc  *tracksvc.Service
	hubSvc    *hub.Service

	presets       *xsync.MapOf[string, vibedsl.Pattern]
	catalogReady  chan struct{}
	settingsReady chan struct{}
}

func NewAgent(config Config) (*Agent, error) {
	loggerConfig := zap.NewDevelopmentConfig()
	loggerConfig.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000000000")
	loggerConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	logger, err := loggerConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	dbOptions := badger.DefaultOptions(filepath.Join(config.DataDir, "db"))
	dbOptions.Logger = &badgerLogger{l: logger.Named("badger")}

	db, err := badger.Open(dbOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	configSvc := configsvc.New(logger.Named("config"))
	cat := catalog.Default()

	var (
		host    vrinput.Host
		hidHost *hidhost.Host
	)
	if config.Replay != "" {
		recording, err := replay.Load(config.Replay)
		if err != nil {
			return nil, fmt.Errorf("failed to load recording: %w", err)
		}
		host = replay.NewHost(recording, replay.WithLoop())
	} else {
		hidHost = hidhost.New(logger, hidhost.WithSlots(config.Slots))
		host = hidHost
	}

	trackSvc := tracksvc.New(db, logger.Named("track"), time.Now,
		tracksvc.WithHost(host),
		tracksvc.WithCatalog(cat),
	)
	presets := xsync.NewMapOf[string, vibedsl.Pattern]()
	hubSvc := hub.New(logger, trackSvc,
		hub.WithAddr(config.HubAddr),
		hub.WithPresets(func(name string) (vibedsl.Pattern, bool) {
			return presets.Load(name)
		}),
	)

	return &Agent{
		config:        config,
		log:           logger,
		db:            db,
		catalog:       cat,
		configSvc:     configSvc,
		hidHost:       hidHost,
		trackSvc:      trackSvc,
		hubSvc:        hubSvc,
		presets:       presets,
		catalogReady:  make(chan struct{}),
		settingsReady: make(chan struct{}),
	}, nil
}

func (a *Agent) Close() error {
	return a.db.Close()
}

type badgerLogger struct {
	l *zap.Logger
}

func (l badgerLogger) Errorf(msg string, args ...any) {
	l.l.Error(fmt.Sprintf(msg, args...))
}

func (l badgerLogger) Warningf(msg string, args ...any) {
	l.l.Warn(fmt.Sprintf(msg, args...))
}

func (l badgerLogger) Infof(msg string, args ...any) {
	l.l.Info(fmt.Sprintf(msg, args...))
}

func (l badgerLogger) Debugf(msg string, args ...any) {
	l.l.Debug(fmt.Sprintf(msg, args...))
}

// Run starts the agent and blocks until the context is cancelled.
// The tracking session only starts after the catalog document has been
// applied, so alias resolution never races device connection.
func (a *Agent) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return a.configSvc.Start(groupCtx)
	})
	group.Go(func() error {
		return a.registerCatalogDoc(groupCtx)
	})
	group.Go(func() error {
		return a.registerSettings(groupCtx)
	})
	if a.hidHost != nil {
		group.Go(func() error {
			return a.hidHost.Start(groupCtx)
		})
	}
	group.Go(func() error {
		select {
		case <-groupCtx.Done():
			return nil
		case <-a.catalogReady:
		}
		select {
		case <-groupCtx.Done():
			return nil
		case <-a.settingsReady:
		}
		return a.trackSvc.Start(groupCtx)
	})
	group.Go(func() error {
		return a.hubSvc.Start(groupCtx)
	})

	err := group.Wait()
	if err != nil {
		return fmt.Errorf("agent failed: %w", err)
	}
	return nil
}

const defaultCatalogDoc = `---
title: Device Aliases
---

# Device Aliases

Each row maps a device name substring to a capability style. Aliases are
consulted after the built-in entries, in table order.

| Device      | Style |
| ----------- | ----- |
| Valve Index | Vive  |
`

func (a *Agent) registerCatalogDoc(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return nil
	case <-a.configSvc.Ready():
	}
	parser := docparser.New()
	source, err := a.configSvc.RegisterRaw(a.config.CatalogDoc, []byte(defaultCatalogDoc), func(source []byte, err error) {
		a.onCatalogDocChange(ctx, parser, source, err)
	})
	if err != nil {
		return fmt.Errorf("failed to register catalog doc: %w", err)
	}
	if err := parser.Apply(a.catalog, source); err != nil {
		return fmt.Errorf("failed to apply catalog doc: %w", err)
	}
	close(a.catalogReady)
	return nil
}

func (a *Agent) onCatalogDocChange(ctx context.Context, parser *docparser.DocParser, source []byte, err error) {
	if err != nil {
		a.log.Error("failed to read catalog doc", zap.Error(err))
		return
	}
	// Applied on the tick goroutine so alias updates cannot race
	// device resolution.
	err = a.trackSvc.Do(ctx, func(_ *vrinput.Session) {
		if err := parser.Apply(a.catalog, source); err != nil {
			a.log.Error("failed to apply catalog doc", zap.Error(err))
		}
	})
	if err != nil {
		a.log.Error("failed to schedule catalog update", zap.Error(err))
	}
}

func (a *Agent) registerSettings(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return nil
	case <-a.configSvc.Ready():
	}
	settings, err := configsvc.Register(a.configSvc, a.config.Settings, defaultSettings,
		func(settings Settings, err error) {
			if err != nil {
				a.log.Error("failed to read settings", zap.Error(err))
				return
			}
			a.applyPresets(settings)
		})
	if err != nil {
		return fmt.Errorf("failed to register settings: %w", err)
	}
	// Tick interval changes require a restart; the ticker is created once.
	a.trackSvc.SetTickInterval(time.Duration(settings.TickIntervalMs) * time.Millisecond)
	a.applyPresets(settings)
	close(a.settingsReady)
	return nil
}

func (a *Agent) applyPresets(settings Settings) {
	compiled := compilePresets(a.log, settings.Presets)
	a.presets.Range(func(name string, _ vibedsl.Pattern) bool {
		if _, ok := compiled[name]; !ok {
			a.presets.Delete(name)
		}
		return true
	})
	for name, pattern := range compiled {
		a.presets.Store(name, pattern)
	}
}

// compilePresets parses the configured vibration patterns, skipping
// entries that do not parse so one typo cannot take down the rest.
func compilePresets(log *zap.Logger, sources map[string]string) map[string]vibedsl.Pattern {
	compiled := make(map[string]vibedsl.Pattern, len(sources))
	for name, source := range sources {
		pattern, err := vibedsl.Parse(source)
		if err != nil {
			log.Error("invalid haptic preset",
				zap.String("preset", name), zap.Error(err))
			continue
		}
		compiled[name] = pattern
	}
	return compiled
}

func (a *Agent) Track() *tracksvc.Service {
	return a.trackSvc
}
