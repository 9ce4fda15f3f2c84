package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cronjure/internal/app"
	"cronjure/pkg/systemd"
)

func main() {
	var (
		cfgPath   string
		noSystemd bool
		stopAfter time.Duration
	)
	flag.StringVar(&cfgPath, "config", "./cronjure.yaml", "path to config (json or yaml)")
	flag.BoolVar(&noSystemd, "no-systemd-jobs", false, "do not register the systemd job kind")
	flag.DurationVar(&stopAfter, "stop-timeout", 30*time.Second, "upper bound for graceful shutdown")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var opts []app.Option
	if noSystemd {
		opts = append(opts, app.WithoutSystemd())
	}
	a, err := app.New(cfgPath, opts...)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
	if err := a.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "fatal start:", err)
		os.Exit(1)
	}
	_, _ = systemd.NotifyReady()

	select {
	case <-ctx.Done():
	case <-a.Done():
	}
	_, _ = systemd.NotifyStopping()

	sctx, scancel := context.WithTimeout(context.Background(), stopAfter)
	defer scancel()
	stopErr := a.Stop(sctx)
	if err := a.Err(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
	if stopErr != nil {
		fmt.Fprintln(os.Stderr, "stop:", stopErr)
		os.Exit(1)
	}
}
