package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/canvasmod/canvasmod/automod/engine"
	"github.com/canvasmod/canvasmod/automod/imagecache"
	"github.com/canvasmod/canvasmod/automod/tracker"
	"github.com/canvasmod/canvasmod/automod/visual"
	"github.com/canvasmod/canvasmod/util"
	"github.com/canvasmod/canvasmod/util/cliutil"

	"github.com/adrg/xdg"
	"github.com/carlmjohnson/versioninfo"
	_ "github.com/joho/godotenv/autoload"
	cli "github.com/urfave/cli/v2"
	_ "go.uber.org/automaxprocs"
)

func main() {
	if err := run(os.Args); err != nil {
		slog.Error("exiting", "err", err)
		os.Exit(-1)
	}
}

func run(args []string) error {

	app := cli.App{
		Name:    "canvasmod",
		Usage:   "moderation daemon for player-built pixel art",
		Version: versioninfo.Short(),
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "log verbosity level (eg: warn, info, debug)",
			EnvVars: []string{"CANVASMOD_LOG_LEVEL", "LOG_LEVEL"},
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "log output format (text or json)",
			EnvVars: []string{"CANVASMOD_LOG_FMT"},
		},
		&cli.StringFlag{
			Name:    "log-file",
			Usage:   "write logs to this file instead of stdout",
			EnvVars: []string{"CANVASMOD_LOG_FILE"},
		},
	}

	app.Before = func(cctx *cli.Context) error {
		_, _, err := cliutil.SetupSlog(cliutil.LogOptions{
			LogLevel:  cctx.String("log-level"),
			LogFormat: cctx.String("log-format"),
			LogPath:   cctx.String("log-file"),
		})
		return err
	}

	app.Commands = []*cli.Command{
		runCmd,
		replayCmd,
		genEventsCmd,
		fingerprintCmd,
	}

	return app.Run(args)
}

func defaultDatabaseURL() string {
	return "sqlite://" + filepath.Join(xdg.DataHome, "canvasmod", "canvasmod.sqlite")
}

// flags shared by the daemon and the replay tool
var trackerFlags = []cli.Flag{
	&cli.DurationFlag{
		Name:    "debounce",
		Usage:   "how long a group must stay unchanged before it is processed (scans run at this period)",
		Value:   5 * time.Second,
		EnvVars: []string{"CANVASMOD_DEBOUNCE"},
	},
	&cli.IntFlag{
		Name:    "canvas-min-group-size",
		Usage:   "minimum number of canvases in a group",
		Value:   9,
		EnvVars: []string{"CANVASMOD_CANVAS_MIN_GROUP_SIZE"},
	},
	&cli.IntFlag{
		Name:    "display-search-radius",
		Usage:   "radius, in cells, around a new display searched for linked processors",
		Value:   10,
		EnvVars: []string{"CANVASMOD_DISPLAY_SEARCH_RADIUS"},
	},
	&cli.IntFlag{
		Name:    "display-min-instructions",
		Usage:   "processors with fewer draw instructions are ignored",
		Value:   100,
		EnvVars: []string{"CANVASMOD_DISPLAY_MIN_INSTRUCTIONS"},
	},
	&cli.IntFlag{
		Name:    "display-min-processors",
		Usage:   "minimum number of linked processors in a display group",
		Value:   5,
		EnvVars: []string{"CANVASMOD_DISPLAY_MIN_PROCESSORS"},
	},
}

func trackerConfigs(cctx *cli.Context) (tracker.CanvasConfig, tracker.DisplayConfig, error) {
	window := cctx.Duration("debounce")
	if window <= 0 {
		return tracker.CanvasConfig{}, tracker.DisplayConfig{}, fmt.Errorf("debounce must be positive, got %s", window)
	}
	for _, name := range []string{"canvas-min-group-size", "display-search-radius", "display-min-instructions", "display-min-processors"} {
		if cctx.Int(name) < 0 {
			return tracker.CanvasConfig{}, tracker.DisplayConfig{}, fmt.Errorf("%s must not be negative", name)
		}
	}
	canvas := tracker.CanvasConfig{
		Window:           window,
		MinimumGroupSize: cctx.Int("canvas-min-group-size"),
	}
	display := tracker.DisplayConfig{
		Window:                  window,
		SearchRadius:            cctx.Int("display-search-radius"),
		MinimumInstructionCount: cctx.Int("display-min-instructions"),
		MinimumProcessorCount:   cctx.Int("display-min-processors"),
	}
	return canvas, display, nil
}

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "run the moderation daemon",
	Flags: append([]cli.Flag{
		&cli.StringFlag{
			Name:    "bind",
			Usage:   "IP or address, and port, to listen on for HTTP APIs (ingest, health, metrics)",
			Value:   ":3999",
			EnvVars: []string{"CANVASMOD_BIND"},
		},
		&cli.StringFlag{
			Name:    "feed-url",
			Usage:   "websocket host or URL of the block feed to subscribe to (optional)",
			EnvVars: []string{"CANVASMOD_FEED_URL"},
		},
		&cli.StringFlag{
			Name:    "cache",
			Usage:   "dedup cache backend: db, redis, mem or none",
			Value:   "db",
			EnvVars: []string{"CANVASMOD_CACHE"},
		},
		&cli.StringFlag{
			Name:    "database-url",
			Usage:   "database connection string for the dedup cache",
			Value:   defaultDatabaseURL(),
			EnvVars: []string{"CANVASMOD_DATABASE_URL", "DATABASE_URL"},
		},
		&cli.IntFlag{
			Name:    "max-db-connections",
			EnvVars: []string{"CANVASMOD_MAX_DB_CONNECTIONS"},
			Value:   10,
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "redis connection string for the dedup cache",
			EnvVars: []string{"CANVASMOD_REDIS_URL", "REDIS_URL"},
		},
		&cli.Float64Flag{
			Name:    "cache-threshold",
			Usage:   "minimum tile overlap, in percent, for a cached verdict to apply",
			Value:   imagecache.DefaultConfig().Threshold,
			EnvVars: []string{"CANVASMOD_CACHE_THRESHOLD"},
		},
		&cli.DurationFlag{
			Name:    "cache-retention",
			Usage:   "drop cached verdicts not matched for this long",
			Value:   imagecache.DefaultConfig().Retention,
			EnvVars: []string{"CANVASMOD_CACHE_RETENTION"},
		},
		&cli.IntFlag{
			Name:    "cache-max-size",
			Usage:   "maximum number of cached verdicts",
			Value:   imagecache.DefaultConfig().MaxSize,
			EnvVars: []string{"CANVASMOD_CACHE_MAX_SIZE"},
		},
		&cli.DurationFlag{
			Name:    "cache-cleanup-interval",
			Value:   imagecache.DefaultJanitorInterval,
			EnvVars: []string{"CANVASMOD_CACHE_CLEANUP_INTERVAL"},
		},
		&cli.StringFlag{
			Name:    "classifier",
			Usage:   "image classifier: none, debug, sightengine, moderatecontent or hiveai",
			Value:   "none",
			EnvVars: []string{"CANVASMOD_CLASSIFIER"},
		},
		&cli.StringFlag{
			Name:    "fallback-classifier",
			Usage:   "classifier asked when the primary one fails (optional)",
			EnvVars: []string{"CANVASMOD_FALLBACK_CLASSIFIER"},
		},
		&cli.StringFlag{
			Name:    "sightengine-user",
			EnvVars: []string{"CANVASMOD_SIGHTENGINE_USER"},
		},
		&cli.StringFlag{
			Name:    "sightengine-secret",
			EnvVars: []string{"CANVASMOD_SIGHTENGINE_SECRET"},
		},
		&cli.Float64Flag{
			Name:    "sightengine-unsafe-threshold",
			Value:   0.55,
			EnvVars: []string{"CANVASMOD_SIGHTENGINE_UNSAFE_THRESHOLD"},
		},
		&cli.Float64Flag{
			Name:    "sightengine-warning-threshold",
			Value:   0.4,
			EnvVars: []string{"CANVASMOD_SIGHTENGINE_WARNING_THRESHOLD"},
		},
		&cli.StringFlag{
			Name:    "moderatecontent-token",
			EnvVars: []string{"CANVASMOD_MODERATECONTENT_TOKEN"},
		},
		&cli.StringFlag{
			Name:    "hiveai-token",
			EnvVars: []string{"CANVASMOD_HIVEAI_TOKEN", "HIVEAI_API_TOKEN"},
		},
		&cli.StringFlag{
			Name:    "debug-image-dir",
			Usage:   "where the debug classifier writes rendered images",
			Value:   filepath.Join(xdg.DataHome, "canvasmod", "debug"),
			EnvVars: []string{"CANVASMOD_DEBUG_IMAGE_DIR"},
		},
		&cli.IntFlag{
			Name:    "workers",
			Usage:   "number of groups processed concurrently",
			Value:   8,
			EnvVars: []string{"CANVASMOD_WORKERS"},
		},
		&cli.Float64Flag{
			Name:    "classify-rate-limit",
			Usage:   "max classifier requests per second (0 for unlimited)",
			Value:   2,
			EnvVars: []string{"CANVASMOD_CLASSIFY_RATE_LIMIT"},
		},
		&cli.DurationFlag{
			Name:    "classify-timeout",
			Value:   engine.DefaultClassifyTimeout,
			EnvVars: []string{"CANVASMOD_CLASSIFY_TIMEOUT"},
		},
		&cli.DurationFlag{
			Name:    "cache-timeout",
			Value:   engine.DefaultCacheTimeout,
			EnvVars: []string{"CANVASMOD_CACHE_TIMEOUT"},
		},
		&cli.StringFlag{
			Name:    "slack-webhook-url",
			Usage:   "full URL of slack webhook",
			EnvVars: []string{"SLACK_WEBHOOK_URL"},
		},
		&cli.StringFlag{
			Name:    "slack-min-rating",
			Usage:   "lowest rating reported to slack (safe, warning, unsafe)",
			Value:   "unsafe",
			EnvVars: []string{"CANVASMOD_SLACK_MIN_RATING"},
		},
	}, trackerFlags...),
	Action: func(cctx *cli.Context) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		logger := slog.Default().With("system", "canvasmod")

		shutdownOTEL, err := configOTEL(ctx, "canvasmod")
		if err != nil {
			return err
		}
		defer shutdownOTEL()

		canvasConfig, displayConfig, err := trackerConfigs(cctx)
		if err != nil {
			return err
		}

		cache, err := configCache(cctx, logger)
		if err != nil {
			return err
		}

		classifier, err := configClassifier(cctx, cctx.String("classifier"), logger)
		if err != nil {
			return err
		}
		if fb := cctx.String("fallback-classifier"); fb != "" {
			secondary, err := configClassifier(cctx, fb, logger)
			if err != nil {
				return err
			}
			classifier = visual.NewFallbackClassifier(classifier, secondary, logger)
		}

		sink, err := configSink(cctx, logger)
		if err != nil {
			return err
		}

		srv, err := NewServer(Config{
			Logger:            logger,
			Canvas:            canvasConfig,
			Display:           displayConfig,
			Cache:             cache,
			CleanupInterval:   cctx.Duration("cache-cleanup-interval"),
			Classifier:        classifier,
			Sink:              sink,
			Workers:           cctx.Int("workers"),
			ClassifyRateLimit: cctx.Float64("classify-rate-limit"),
			ClassifyTimeout:   cctx.Duration("classify-timeout"),
			CacheTimeout:      cctx.Duration("cache-timeout"),
			FeedURL:           util.FeedURL(cctx.String("feed-url"), "/feed"),
		})
		if err != nil {
			return err
		}

		if err := srv.Run(ctx, cctx.String("bind")); err != nil {
			return fmt.Errorf("failed to run canvasmod service: %w", err)
		}
		return nil
	},
}
