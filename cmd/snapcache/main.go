package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/benbjohnson/clock"

	"github.com/mxcd/go-snapcache/internal/command"
)

func main() {
	os.Exit(realMain())
}

func realMain() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	app := command.InitApp(&command.Env{Clock: clock.New()}, os.Stdout)
	if err := app.Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	return 0
}
