// Command rudp-send is a demo sender over the reliable-messaging socket,
// the idiomatic-Go counterpart of the reference library's user1.c.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	flag "github.com/spf13/pflag"

	"github.com/relaylabs/rudp/internal/cliconfig"
	"github.com/relaylabs/rudp/internal/socket"
	"github.com/relaylabs/rudp/internal/statsview"
)

const defaultDestPort = "9999"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type config struct {
	DestAddr   string
	BindAddr   string
	ConfigPath string
	Verbose    bool
	Stats      bool
}

func getenv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func loadConfig() (config, error) {
	_ = godotenv.Load()

	var cfg config
	flag.StringVar(&cfg.ConfigPath, "config", "", "optional YAML config file overriding the flags below")
	flag.StringVar(&cfg.DestAddr, "dest", getenv("RUDP_DEST", "127.0.0.1:"+defaultDestPort), "destination address (env: RUDP_DEST)")
	flag.StringVar(&cfg.BindAddr, "bind", getenv("RUDP_BIND", "127.0.0.1:0"), "local bind address (env: RUDP_BIND)")
	flag.BoolVar(&cfg.Verbose, "verbose", false, "verbose mode - show debug logs")
	flag.BoolVar(&cfg.Stats, "stats", false, "print table occupancy on exit")
	flag.Parse()

	file, err := cliconfig.Load(cfg.ConfigPath)
	if err != nil {
		return cfg, err
	}
	if file.Dest != "" {
		cfg.DestAddr = file.Dest
	}
	if file.Bind != "" {
		cfg.BindAddr = file.Bind
	}
	if file.Verbose != nil {
		cfg.Verbose = *file.Verbose
	}
	return cfg, nil
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Value = slog.StringValue(a.Value.Time().UTC().Format("15:04:05.000"))
			}
			return a
		},
	}))
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger(cfg.Verbose)

	dest, err := net.ResolveUDPAddr("udp", cfg.DestAddr)
	if err != nil {
		return fmt.Errorf("resolving destination address: %w", err)
	}

	transport, err := net.ListenUDP("udp", mustResolve(cfg.BindAddr))
	if err != nil {
		return fmt.Errorf("binding local socket: %w", err)
	}

	sock, err := socket.Create(socket.SockMRP, socket.Config{
		Transport: socket.NewUDPTransport(transport),
		Logger:    log,
	}, "rudp-send")
	if err != nil {
		return fmt.Errorf("creating socket: %w", err)
	}
	defer sock.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Info("ready to send", "local_addr", transport.LocalAddr(), "dest", dest)
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		sendCtx, sendCancel := context.WithTimeout(ctx, 10*time.Second)
		err := sock.SendTo(sendCtx, dest, []byte(line))
		sendCancel()
		if err != nil {
			log.Error("send failed", "err", err)
			continue
		}
		log.Debug("sent", "bytes", len(line))
	}

	if cfg.Stats {
		statsview.Write(os.Stdout, sock)
	}
	return nil
}

func mustResolve(addr string) *net.UDPAddr {
	resolved, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		panic(err)
	}
	return resolved
}
