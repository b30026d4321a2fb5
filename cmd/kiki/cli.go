package main

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/hpungsan/kiki/internal/classifier"
	"github.com/hpungsan/kiki/internal/config"
	"github.com/hpungsan/kiki/internal/errors"
	"github.com/hpungsan/kiki/internal/poller"
	"github.com/hpungsan/kiki/internal/publisher"
	"github.com/hpungsan/kiki/internal/snapshot"
	"github.com/hpungsan/kiki/internal/store"
	"github.com/hpungsan/kiki/internal/web"
)

// stdout is where command results go. Tests swap it for a buffer.
var stdout io.Writer = os.Stdout

// newCLIApp creates the CLI application with all commands.
func newCLIApp(st store.Store, cfg *config.Config) *cli.App {
	app := &cli.App{
		Name:    "kiki",
		Usage:   "Infer and publish an activity status; serve and poll it",
		Version: Version,
		Commands: []*cli.Command{
			watchCmd(st, cfg),
			serveCmd(st, cfg),
			pollCmd(cfg),
			classifyCmd(cfg),
			showCmd(st),
			validateCmd(cfg),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return ossignal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// watchCmd creates the watch command.
func watchCmd(st store.Store, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Classify activity on a tick and publish changes",
		Flags: []cli.Flag{
			&cli.DurationFlag{Name: "interval", Aliases: []string{"i"}, Usage: "Tick interval (overrides tick_interval)"},
			&cli.BoolFlag{Name: "serve", Aliases: []string{"s"}, Usage: "Also serve the status endpoint"},
		},
		Action: func(c *cli.Context) error {
			if d := c.Duration("interval"); d > 0 {
				cfg.TickInterval = config.Duration(d)
			}
			ctx, stop := signalContext()
			defer stop()
			if err := runWatch(ctx, st, cfg, c.Bool("serve")); err != nil {
				return outputError(err)
			}
			return nil
		},
	}
}

// runWatch runs the tick loop and publisher until ctx is done, then drains
// the publisher. With serve set the endpoint runs alongside.
func runWatch(ctx context.Context, st store.Store, cfg *config.Config, serve bool) error {
	hooks, err := publisher.HooksFromConfig(cfg.Hooks)
	if err != nil {
		return errors.NewInvalidConfig("hooks", err.Error())
	}

	pub := publisher.New(st, hooks, publisher.Options{
		RetryInterval: cfg.EffectiveRetryInterval().Std(),
	})
	defer pub.Close()

	w := classifier.NewWatcher(
		classifier.FromConfig(cfg),
		classifier.ReaderFromConfig(cfg),
		pub,
		cfg.TickInterval.Std(),
		classifier.WatcherOptions{},
	)

	if !serve {
		log.Printf("watching %s every %s", config.ExpandHome(cfg.SessionsDir), cfg.TickInterval)
		w.Run(ctx)
		return nil
	}

	// A server that fails to start also ends the watch.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	errCh := make(chan error, 1)
	go func() {
		err := web.Run(ctx, web.NewServer(st, Version, cfg.ServerBind, cfg.ServerPort))
		cancel()
		errCh <- err
	}()
	w.Run(ctx)
	return <-errCh
}

// serveCmd creates the serve command.
func serveCmd(st store.Store, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the current status over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Aliases: []string{"b"}, Usage: "Bind address (overrides server_bind)"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "Port (overrides server_port)"},
		},
		Action: func(c *cli.Context) error {
			bind := cfg.ServerBind
			if b := c.String("bind"); b != "" {
				bind = b
			}
			port := cfg.ServerPort
			if p := c.Int("port"); p != 0 {
				port = p
			}

			ctx, stop := signalContext()
			defer stop()
			return web.Run(ctx, web.NewServer(st, Version, bind, port))
		},
	}
}

// pollCmd creates the poll command.
func pollCmd(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "poll",
		Usage: "Poll the configured sources and print display changes as JSON lines",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "once", Usage: "Run a single tick and exit"},
			&cli.StringFlag{Name: "url", Aliases: []string{"u"}, Usage: "Poll only this URL"},
			&cli.StringFlag{Name: "kind", Aliases: []string{"k"}, Value: config.SourceLocal, Usage: "Source kind for --url: local|staticFallback|remoteMirror"},
			&cli.BoolFlag{Name: "pretty", Usage: "Print colored status lines instead of JSON"},
		},
		Action: func(c *cli.Context) error {
			sources := cfg.Sources
			if u := c.String("url"); u != "" {
				sources = []config.SourceConfig{{Kind: c.String("kind"), URL: u}}
			}
			if len(sources) == 0 {
				return outputError(errors.NewInvalidRequest("no sources configured"))
			}

			opts := poller.Options{
				Interval:  cfg.PollInterval.Std(),
				Freshness: cfg.FreshnessWindow.Std(),
			}
			if c.Bool("once") {
				p := poller.New(poller.SourcesFromConfig(sources), nil, opts)
				display, _ := p.Tick(c.Context)
				if c.Bool("pretty") {
					fmt.Fprintln(stdout, prettyLine(display))
					return nil
				}
				return outputJSON(map[string]any{
					"display":    display,
					"connection": p.Connection(),
				})
			}

			enc := json.NewEncoder(stdout)
			render := func(d poller.Display) { _ = enc.Encode(d) }
			if c.Bool("pretty") {
				render = func(d poller.Display) { fmt.Fprintln(stdout, prettyLine(d)) }
			}
			p := poller.New(poller.SourcesFromConfig(sources), poller.RendererFunc(render), opts)

			ctx, stop := signalContext()
			defer stop()
			p.Run(ctx)
			return nil
		},
	}
}

// classifyCmd creates the classify command.
func classifyCmd(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "classify",
		Usage: "Classify the current signals once without publishing",
		Action: func(c *cli.Context) error {
			now := time.Now()
			reading := classifier.ReaderFromConfig(cfg).Read(now)
			snap := classifier.FromConfig(cfg).Classify(reading, now)

			out := map[string]any{
				"snapshot": snap.ToWire(),
				"workers":  reading.Workers,
			}
			if !reading.LastSignal.IsZero() {
				out["last_signal"] = reading.LastSignal.UTC().Format(snapshot.TimestampLayout)
				out["elapsed_seconds"] = classifier.Elapsed(reading.LastSignal, now).Seconds()
			}
			return outputJSON(out)
		},
	}
}

// showCmd creates the show command.
func showCmd(st store.Store) *cli.Command {
	return &cli.Command{
		Name:  "show",
		Usage: "Print the persisted status",
		Action: func(c *cli.Context) error {
			snap, err := st.Load(c.Context)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(snap.ToWire())
		},
	}
}

// validateCmd creates the validate command.
func validateCmd(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "validate",
		Usage: "Check the configuration and print the effective values",
		Action: func(c *cli.Context) error {
			if err := config.Validate(cfg); err != nil {
				return outputError(err)
			}
			if _, err := publisher.HooksFromConfig(cfg.Hooks); err != nil {
				return outputError(errors.NewInvalidConfig("hooks", err.Error()))
			}
			return outputJSON(cfg)
		},
	}
}

// Helper functions

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	var kErr *errors.KikiError
	if stderrors.As(err, &kErr) {
		return cli.Exit(fmt.Sprintf("[%s] %s", kErr.Code, kErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}
