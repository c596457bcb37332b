package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v3"

	cache "github.com/mxcd/go-snapcache"
)

var errMissingArgs = errors.New("missing arguments")

func GetCommandBuilder(env *Env) *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "restore the cache and print the value stored under KEY",
		ArgsUsage: "KEY",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return fmt.Errorf("%w: get KEY", errMissingArgs)
			}
			key := cmd.Args().First()

			c, _, err := env.openCache(ctx)
			if err != nil {
				return err
			}
			// restore and Get both write a snapshot
			defer c.Close()

			value, ok := c.Get(key)
			if !ok {
				return fmt.Errorf("key %q not found", key)
			}

			fmt.Fprintln(output(cmd), formatValue(value))
			return nil
		},
	}
}

func SetCommandBuilder(env *Env) *cli.Command {
	return &cli.Command{
		Name:      "set",
		Usage:     "restore the cache, store VALUE under KEY and write a new snapshot",
		ArgsUsage: "KEY VALUE",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "ttl",
				Usage: "time to live, 0 never expires (default from config)",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 2 {
				return fmt.Errorf("%w: set KEY VALUE", errMissingArgs)
			}
			key, value := cmd.Args().Get(0), cmd.Args().Get(1)

			c, serializer, err := env.openCache(ctx)
			if err != nil {
				return err
			}

			if cmd.IsSet("ttl") {
				c.SetWithTTL(key, value, cmd.Duration("ttl"))
			} else {
				c.Set(key, value)
			}
			c.Close()

			name, ok := serializer.FindFileName(ctx, cache.SnapshotPattern(serializer.FileExtension()))
			if !ok {
				return fmt.Errorf("%w in %s", cache.ErrSnapshotNotFound, serializer.Dir())
			}
			fmt.Fprintln(output(cmd), name)
			return nil
		},
	}
}
