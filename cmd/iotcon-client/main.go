// Command iotcon-client is an interactive shell on the iotcon daemon.
//
// Usage:
//
//	iotcon-client [flags]
//
// Flags:
//
//	-socket string        Daemon socket path
//	-timeout duration     Daemon call timeout
//	-log-level string     Log level: debug, info, warn, error
//	-protocol-log string  Capture IPC traffic to this file
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iotcon/iotcon-go/cmd/iotcon-client/interactive"
	"github.com/iotcon/iotcon-go/pkg/client"
	"github.com/iotcon/iotcon-go/pkg/config"
	"github.com/iotcon/iotcon-go/pkg/log"
)

var (
	socketPath  = flag.String("socket", config.DefaultSocketPath, "Daemon socket path")
	timeout     = flag.Duration("timeout", 10*time.Second, "Daemon call timeout")
	logLevel    = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	protocolLog = flag.String("protocol-log", "", "Capture IPC traffic to this file")
)

func main() {
	flag.Parse()

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		fmt.Fprintf(os.Stderr, "iotcon-client: %v\n", err)
		os.Exit(1)
	}

	if err := run(level); err != nil {
		fmt.Fprintf(os.Stderr, "iotcon-client: %v\n", err)
		os.Exit(1)
	}
}

func run(level slog.Level) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := client.Config{SocketPath: *socketPath, Timeout: *timeout}
	if *protocolLog != "" {
		fl, err := log.NewFileLogger(*protocolLog)
		if err != nil {
			return err
		}
		defer fl.Close()
		cfg.ProtocolLogger = fl
	}

	cfg.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	c, err := client.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", *socketPath, err)
	}
	defer c.Close()

	shell, err := interactive.New(c)
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(shell.Stdout(), &slog.HandlerOptions{Level: level})))

	c.OnConnectionChanged(func(connected bool) {
		if !connected {
			fmt.Fprintln(shell.Stdout(), "Daemon connection lost")
			cancel()
		}
	})

	go shell.Run(ctx, cancel)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case <-ctx.Done():
	}
	return nil
}
