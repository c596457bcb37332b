package command

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	cache "github.com/mxcd/go-snapcache"
)

func PruneCommandBuilder(env *Env) *cli.Command {
	return &cli.Command{
		Name:  "prune",
		Usage: "delete all but the newest snapshots",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "keep",
				Usage: "number of snapshots to keep",
				Value: 10,
			},
			&cli.BoolFlag{
				Name:        "dry-run",
				Usage:       "print what would be removed",
				HideDefault: true,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			keep := cmd.Int("keep")
			if keep < 0 {
				return fmt.Errorf("--keep must not be negative, got %d", keep)
			}

			serializer, err := env.serializer()
			if err != nil {
				return err
			}

			names, err := serializer.ListFileNames(cache.SnapshotPattern(serializer.FileExtension()))
			if err != nil {
				return err
			}
			newestFirst(names)

			w := output(cmd)
			if cmd.Bool("dry-run") {
				for _, name := range stale(names, keep) {
					fmt.Fprintln(w, "would remove", name)
				}
				return nil
			}

			removed, err := pruneSnapshots(serializer.Dir(), names, keep, env.Logger)
			for _, name := range removed {
				fmt.Fprintln(w, "removed", name)
			}
			return err
		},
	}
}

// stale returns the names past the first keep of a newest-first list.
func stale(names []string, keep int) []string {
	if len(names) <= keep {
		return nil
	}
	return names[keep:]
}

// pruneSnapshots removes every snapshot in dir past the newest keep. names
// must be sorted newest first. Removal continues past failures.
func pruneSnapshots(dir string, names []string, keep int, logger *zap.Logger) ([]string, error) {
	var (
		removed []string
		errs    error
	)
	for _, name := range stale(names, keep) {
		path := filepath.Join(dir, name)
		if err := os.Remove(path); err != nil {
			logger.Warn("go-snapcache: failed to remove snapshot", zap.String("file", path), zap.Error(err))
			errs = errors.Join(errs, fmt.Errorf("%w: remove %s: %w", cache.ErrIO, path, err))
			continue
		}
		logger.Debug("go-snapcache: removed snapshot", zap.String("file", path))
		removed = append(removed, name)
	}
	return removed, errs
}
