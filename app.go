package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/beeep"

	"github.com/matt0x6f/irc-engine/internal/commands"
	"github.com/matt0x6f/irc-engine/internal/config"
	"github.com/matt0x6f/irc-engine/internal/constants"
	"github.com/matt0x6f/irc-engine/internal/events"
	"github.com/matt0x6f/irc-engine/internal/irc"
	"github.com/matt0x6f/irc-engine/internal/logger"
	"github.com/matt0x6f/irc-engine/internal/metrics"
	"github.com/matt0x6f/irc-engine/internal/security"
	"github.com/matt0x6f/irc-engine/internal/storage"
	"github.com/matt0x6f/irc-engine/internal/transport"
)

// AppOptions are the host settings that are not part of the network config
type AppOptions struct {
	DBPath string
	Notify bool
	Raw    bool
	Out    io.Writer
}

// App wires one network's engine to the terminal, the playback store and
// the metrics registry
type App struct {
	cfg      config.Config
	opts     AppOptions
	bus      *events.EventBus
	engine   *irc.Engine
	commands *commands.Interpreter
	storage  *storage.Storage
	metrics  *metrics.Metrics

	registered atomic.Bool

	mu     sync.Mutex
	buffer string
}

// NewApp resolves secrets, opens storage and builds the engine
func NewApp(cfg config.Config, opts AppOptions) (*App, error) {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}

	keychain := security.NewKeychain()
	if err := keychain.Resolve(cfg.Host, &cfg); err != nil {
		logger.Log.Warn().Err(err).Str("network", cfg.Host).Msg("Failed to read secrets from keychain")
	}

	if cfg.ClientCert.Path != "" && len(cfg.ClientCert.Data) == 0 {
		data, err := os.ReadFile(cfg.ClientCert.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to read client certificate: %w", err)
		}
		cfg.ClientCert.Data = data
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	stor, err := storage.NewStorage(opts.DBPath, constants.PlaybackFlushInterval)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	if marks, err := stor.Marks(cfg.Host); err != nil {
		logger.Log.Warn().Err(err).Msg("Failed to read playback marks")
	} else if cfg.Bouncer {
		logger.Log.Info().Int("channels", len(marks)).Str("network", cfg.Host).Msg("Bouncer playback will resume from stored marks")
	}

	app := &App{
		cfg:     cfg,
		opts:    opts,
		bus:     events.NewEventBus(),
		storage: stor,
		metrics: metrics.New(),
	}
	app.engine = irc.New(cfg, app.bus,
		irc.WithMetrics(app.metrics),
		irc.WithPlaybackStore(stor),
	)
	app.commands = commands.New(app.engine)

	app.bus.Subscribe(events.Wildcard, events.SubscriberFunc(app.print))
	app.bus.Subscribe(events.KindChatMessage, events.SubscriberFunc(app.notifyPrivate))
	app.bus.Subscribe(events.KindRegistered, events.SubscriberFunc(func(events.Event) {
		app.registered.Store(true)
	}))

	return app, nil
}

// Run connects and reconnects with backoff until the user quits or ctx ends
func (a *App) Run(ctx context.Context) error {
	delay := constants.ReconnectBaseDelay
	for {
		a.registered.Store(false)
		err := a.engine.Run(ctx)
		if err == nil || ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, transport.ErrPlaintextRefused) || transport.Classify(err) == transport.CertInvalid {
			return err
		}
		if a.registered.Load() {
			delay = constants.ReconnectBaseDelay
		}

		logger.Log.Warn().Err(err).Dur("retry_in", delay).Msg("Connection lost, reconnecting")
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
		delay = min(delay*2, constants.ReconnectMaxDelay)
	}
}

// ReadInput feeds lines from r to the command interpreter. "/switch target"
// changes the buffer that plain text and channel defaults refer to.
func (a *App) ReadInput(ctx context.Context, r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if target, ok := strings.CutPrefix(line, "/switch "); ok {
			a.mu.Lock()
			a.buffer = strings.TrimSpace(target)
			a.mu.Unlock()
			fmt.Fprintf(a.opts.Out, "-!- Now talking in %s\n", target)
			continue
		}

		a.mu.Lock()
		buffer := a.buffer
		a.mu.Unlock()
		if err := a.commands.Execute(buffer, line); err != nil {
			fmt.Fprintf(a.opts.Out, "!!! %v\n", err)
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Log.Error().Err(err).Msg("Failed to read input")
	}
}

// Close flushes playback marks and closes the database
func (a *App) Close() error {
	return a.storage.Close()
}

func (a *App) print(ev events.Event) {
	if _, ok := ev.(events.RawLine); ok && !a.opts.Raw {
		return
	}
	if text := render(ev); text != "" {
		fmt.Fprintln(a.opts.Out, text)
	}
}

// notifyPrivate raises a desktop notification for live private messages
func (a *App) notifyPrivate(ev events.Event) {
	msg, ok := ev.(events.ChatMessage)
	if !ok || !a.opts.Notify || msg.Self || msg.History || a.engine.IsChannel(msg.Target) {
		return
	}
	go func() {
		if err := beeep.Notify("Message from "+msg.From, msg.Text, ""); err != nil {
			logger.Log.Debug().Err(err).Msg("Failed to show notification")
		}
	}()
}
