package command

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"
	"github.com/urfave/cli/v3"

	cache "github.com/mxcd/go-snapcache"
)

func LatestCommandBuilder(env *Env) *cli.Command {
	return &cli.Command{
		Name:  "latest",
		Usage: "print the name of the most recent snapshot",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			serializer, err := env.serializer()
			if err != nil {
				return err
			}

			name, ok := serializer.FindFileName(ctx, cache.SnapshotPattern(serializer.FileExtension()))
			if !ok {
				return fmt.Errorf("%w in %s", cache.ErrSnapshotNotFound, serializer.Dir())
			}

			fmt.Fprintln(output(cmd), name)
			return nil
		},
	}
}

func ListCommandBuilder(env *Env) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "list snapshots, newest first",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			serializer, err := env.serializer()
			if err != nil {
				return err
			}

			names, err := serializer.ListFileNames(cache.SnapshotPattern(serializer.FileExtension()))
			if err != nil {
				return err
			}
			newestFirst(names)

			now := env.Clock.Now()
			tw := tabwriter.NewWriter(output(cmd), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tSIZE\tAGE")
			for _, name := range names {
				size := "-"
				if info, err := os.Stat(filepath.Join(serializer.Dir(), name)); err == nil {
					size = humanize.Bytes(uint64(info.Size()))
				}
				stamp, _ := cache.SnapshotTimestamp(name)
				fmt.Fprintf(tw, "%s\t%s\t%s\n", name, size, humanize.RelTime(time.UnixMilli(stamp), now, "ago", "from now"))
			}
			return tw.Flush()
		},
	}
}

func ShowCommandBuilder(env *Env) *cli.Command {
	return &cli.Command{
		Name:  "show",
		Usage: "print every entry of the most recent snapshot",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			serializer, err := env.serializer()
			if err != nil {
				return err
			}

			name, entries, err := cache.LatestSnapshot[string, any](ctx, serializer, &cache.StringCacheKey{}, env.Logger)
			if err != nil {
				return err
			}

			w := output(cmd)
			fmt.Fprintf(w, "%s (%s)\n", name, english.Plural(len(entries), "entry", "entries"))

			now := env.Clock.Now()
			tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "KEY\tEXPIRES\tVALUE")
			for _, entry := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", entry.Key, expiryState(entry, now), formatValue(entry.Value))
			}
			return tw.Flush()
		},
	}
}

func expiryState[K comparable, V any](entry *cache.CacheEntry[K, V], now time.Time) string {
	if entry.TTL == cache.Infinite {
		return "never"
	}
	rel := humanize.RelTime(entry.ExpiresAt(), now, "ago", "from now")
	if entry.Expired(now) {
		return "expired " + rel
	}
	return rel
}

// newestFirst sorts snapshot names by their embedded timestamp, descending.
func newestFirst(names []string) {
	sort.SliceStable(names, func(i, j int) bool {
		a, _ := cache.SnapshotTimestamp(names[i])
		b, _ := cache.SnapshotTimestamp(names[j])
		return a > b
	})
}
