package main

import (
	"fmt"
	"log/slog"

	"github.com/canvasmod/canvasmod/automod/engine"
	"github.com/canvasmod/canvasmod/automod/imagecache"
	"github.com/canvasmod/canvasmod/automod/visual"
	"github.com/canvasmod/canvasmod/util"
	"github.com/canvasmod/canvasmod/util/cliutil"

	cli "github.com/urfave/cli/v2"
)

func configCache(cctx *cli.Context, logger *slog.Logger) (imagecache.ImageCache, error) {
	config := imagecache.Config{
		Threshold: cctx.Float64("cache-threshold"),
		Retention: cctx.Duration("cache-retention"),
		MaxSize:   cctx.Int("cache-max-size"),
	}
	if config.Threshold < 0 || config.Threshold >= 100 {
		return nil, fmt.Errorf("cache-threshold must be in [0, 100), got %v", config.Threshold)
	}
	if config.Retention <= 0 || config.MaxSize <= 0 {
		return nil, fmt.Errorf("cache-retention and cache-max-size must be positive")
	}

	switch backend := cctx.String("cache"); backend {
	case "none":
		logger.Info("dedup cache disabled")
		return nil, nil
	case "mem":
		logger.Info("configuring in-process dedup cache", "max_size", config.MaxSize)
		return imagecache.NewMemImageCache(config), nil
	case "redis":
		if cctx.String("redis-url") == "" {
			return nil, fmt.Errorf("redis cache requires --redis-url")
		}
		logger.Info("configuring redis dedup cache")
		c, err := imagecache.NewRedisImageCache(cctx.String("redis-url"), config)
		if err != nil {
			return nil, fmt.Errorf("initializing redis image cache: %w", err)
		}
		return c, nil
	case "db":
		db, err := cliutil.SetupDatabase(cctx.String("database-url"), cctx.Int("max-db-connections"))
		if err != nil {
			return nil, err
		}
		logger.Info("configuring database dedup cache")
		c, err := imagecache.NewGormImageCache(db, config, logger)
		if err != nil {
			return nil, fmt.Errorf("initializing database image cache: %w", err)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown cache backend: %q", backend)
	}
}

func configClassifier(cctx *cli.Context, name string, logger *slog.Logger) (visual.Classifier, error) {
	switch name {
	case "none":
		logger.Warn("no image classifier configured, every group will be rated safe")
		return visual.NoneClassifier{}, nil
	case "debug":
		logger.Info("configuring debug classifier", "dir", cctx.String("debug-image-dir"))
		return visual.NewDebugClassifier(cctx.String("debug-image-dir")), nil
	case "sightengine":
		if cctx.String("sightengine-user") == "" || cctx.String("sightengine-secret") == "" {
			return nil, fmt.Errorf("sightengine classifier requires --sightengine-user and --sightengine-secret")
		}
		unsafe, warning := cctx.Float64("sightengine-unsafe-threshold"), cctx.Float64("sightengine-warning-threshold")
		if warning > unsafe {
			return nil, fmt.Errorf("sightengine warning threshold (%v) is above unsafe threshold (%v)", warning, unsafe)
		}
		logger.Info("configuring SightEngine image classifier")
		c := visual.NewSightEngineClient(cctx.String("sightengine-user"), cctx.String("sightengine-secret"))
		c.Unsafe = unsafe
		c.Warning = warning
		return c, nil
	case "moderatecontent":
		if cctx.String("moderatecontent-token") == "" {
			return nil, fmt.Errorf("moderatecontent classifier requires --moderatecontent-token")
		}
		logger.Info("configuring ModerateContent image classifier")
		return visual.NewModerateContentClient(cctx.String("moderatecontent-token")), nil
	case "hiveai":
		if cctx.String("hiveai-token") == "" {
			return nil, fmt.Errorf("hiveai classifier requires --hiveai-token")
		}
		logger.Info("configuring Hive AI image classifier")
		return visual.NewHiveAIClient(cctx.String("hiveai-token")), nil
	default:
		return nil, fmt.Errorf("unknown classifier: %q", name)
	}
}

func configSink(cctx *cli.Context, logger *slog.Logger) (engine.Sink, error) {
	sinks := engine.MultiSink{engine.LogSink{Logger: logger.With("system", "events")}}
	if url := cctx.String("slack-webhook-url"); url != "" {
		minRating, err := visual.ParseRating(cctx.String("slack-min-rating"))
		if err != nil {
			return nil, err
		}
		logger.Info("configuring slack notifications", "min_rating", minRating)
		sinks = append(sinks, engine.RatingFilter{
			Min:  minRating,
			Next: &engine.SlackSink{WebhookURL: url, Client: util.RobustHTTPClient()},
		})
	}
	return sinks, nil
}
