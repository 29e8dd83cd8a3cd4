// Command rudp-recv is a demo receiver over the reliable-messaging
// socket, the idiomatic-Go counterpart of the reference library's
// user2.c.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"

	"github.com/relaylabs/rudp/internal/cliconfig"
	"github.com/relaylabs/rudp/internal/socket"
	"github.com/relaylabs/rudp/internal/statsview"
)

const defaultListenPort = "9999"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type config struct {
	ListenAddr  string
	MetricsAddr string
	ConfigPath  string
	Verbose     bool
	Stats       bool
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
	flag.StringVar(&cfg.ListenAddr, "listen", getenv("RUDP_LISTEN", "127.0.0.1:"+defaultListenPort), "listen address (env: RUDP_LISTEN)")
	flag.StringVar(&cfg.MetricsAddr, "metrics-addr", getenv("METRICS_ADDR", ""), "address to serve prometheus metrics on, empty disables (env: METRICS_ADDR)")
	flag.BoolVar(&cfg.Verbose, "verbose", false, "verbose mode - show debug logs")
	flag.BoolVar(&cfg.Stats, "stats", false, "print table occupancy after each received message")
	flag.Parse()

	file, err := cliconfig.Load(cfg.ConfigPath)
	if err != nil {
		return cfg, err
	}
	if file.Listen != "" {
		cfg.ListenAddr = file.Listen
	}
	if file.MetricsAddr != "" {
		cfg.MetricsAddr = file.MetricsAddr
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

	addr, err := net.ResolveUDPAddr("udp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("resolving listen address: %w", err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("listening: %w", err)
	}

	registry := prometheus.NewRegistry()
	if cfg.MetricsAddr != "" {
		go func() {
			log.Info("serving prometheus metrics", "address", cfg.MetricsAddr)
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				log.Error("metrics server stopped", "err", err)
			}
		}()
	}

	sock, err := socket.Create(socket.SockMRP, socket.Config{
		Transport:  socket.NewUDPTransport(conn),
		Logger:     log,
		Registerer: registry,
	}, "rudp-recv")
	if err != nil {
		return fmt.Errorf("creating socket: %w", err)
	}
	defer sock.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Info("ready to receive", "local_addr", conn.LocalAddr())
	for {
		payload, from, err := sock.RecvFrom(ctx)
		if err != nil {
			log.Info("shutting down", "reason", err)
			break
		}
		log.Info("received", "from", from, "bytes", len(payload))
		if cfg.Stats {
			statsview.Write(os.Stdout, sock)
		}
	}
	return nil
}
