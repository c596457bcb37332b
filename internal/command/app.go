package command

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/benbjohnson/clock"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	cache "github.com/mxcd/go-snapcache"
	"github.com/mxcd/go-snapcache/internal/config"
	"github.com/mxcd/go-snapcache/internal/logging"
)

// Env is shared by every subcommand. Config and Logger are filled in by the
// root Before hook.
type Env struct {
	Config *config.Config
	Logger *zap.Logger
	Clock  clock.Clock
}

// InitApp builds the snapcache command tree. Output goes to w.
func InitApp(env *Env, w io.Writer) *cli.Command {
	if env.Clock == nil {
		env.Clock = clock.New()
	}

	app := &cli.Command{
		Name:   "snapcache",
		Usage:  "inspect and maintain cache snapshot directories",
		Writer: w,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "config file (default snapcache.yaml in ., $XDG_CONFIG_HOME, ~/.config/snapcache)",
			},
			&cli.StringFlag{
				Name:    "dir",
				Aliases: []string{"d"},
				Usage:   "snapshot directory",
			},
			&cli.StringFlag{
				Name:  "codec",
				Usage: "snapshot codec (json|msgpack)",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "debug, info, warn or error",
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			cfg, err := config.Load(cmd.String("config"))
			if err != nil {
				return ctx, err
			}
			if cmd.IsSet("dir") {
				cfg.Cache.Dir = cmd.String("dir")
			}
			if cmd.IsSet("codec") {
				cfg.Cache.Codec = cmd.String("codec")
			}
			if cmd.IsSet("log-level") {
				cfg.Log.Level = cmd.String("log-level")
			}

			logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
			if err != nil {
				return ctx, err
			}

			env.Config = cfg
			env.Logger = logger
			return ctx, nil
		},
		After: func(ctx context.Context, cmd *cli.Command) error {
			if env.Logger != nil {
				_ = env.Logger.Sync()
			}
			return nil
		},
	}

	app.Commands = append(app.Commands,
		LatestCommandBuilder(env),
		ListCommandBuilder(env),
		ShowCommandBuilder(env),
		GetCommandBuilder(env),
		SetCommandBuilder(env),
		PruneCommandBuilder(env),
	)

	// Make sure flags are sorted for the --help text.
	for _, c := range app.Commands {
		sort.Slice(c.Flags, func(i, j int) bool {
			return c.Flags[i].Names()[0] < c.Flags[j].Names()[0]
		})
	}

	return app
}

func (e *Env) serializer() (*cache.FileSerializer, error) {
	codec, err := cache.CodecByName(e.Config.Cache.Codec)
	if err != nil {
		return nil, err
	}
	return cache.NewFileSerializer(&cache.FileSerializerOptions{
		Dir:    e.Config.Cache.Dir,
		Codec:  codec,
		Clock:  e.Clock,
		Logger: e.Logger,
	}), nil
}

// openCache restores a cache from the configured directory and waits for the
// restore to finish.
func (e *Env) openCache(ctx context.Context) (*cache.LocalCache[string, any], *cache.FileSerializer, error) {
	serializer, err := e.serializer()
	if err != nil {
		return nil, nil, err
	}

	c := cache.NewLocalCache[string, any](&cache.LocalCacheOptions[string]{
		TTL:        e.Config.Cache.DefaultTTL,
		Size:       e.Config.Cache.Size,
		CacheKey:   &cache.StringCacheKey{},
		Serializer: serializer,
		Clock:      e.Clock,
		Logger:     e.Logger,
	})

	select {
	case <-c.Restored():
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
	return c, serializer, nil
}

func output(cmd *cli.Command) io.Writer {
	return cmd.Root().Writer
}

func formatValue(value any) string {
	if s, ok := value.(string); ok {
		return s
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprint(value)
	}
	return string(data)
}
