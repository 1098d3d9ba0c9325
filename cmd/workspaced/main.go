package main

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"
	"golang.org/x/crypto/bcrypt"

	"workspaced/internal/config"
	"workspaced/internal/httpserver"
	"workspaced/internal/modules"
	"workspaced/internal/script"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "passwd" {
		passwdCmd(os.Args[2:])
		return
	}

	var (
		addr     = flag.String("addr", "0.0.0.0:8040", "listen address")
		cfgPath  = flag.String("config", "", "path to config file (jsonc)")
		root     = flag.String("root", "", "workspace root (alternative to --config)")
		watch    = flag.Bool("watch", true, "reload when the config file changes")
		logLevel = flag.String("log-level", "info", "zerolog level (trace..error)")
	)
	flag.Parse()

	logger := newLogger(*logLevel)

	cfg, err := loadConfig(*cfgPath, *root)
	if err != nil {
		logger.Fatal().Err(err).Msg("load configuration")
	}
	if err := os.MkdirAll(cfg.StateDir, 0o755); err != nil {
		logger.Fatal().Err(err).Msg("create state dir")
	}

	reg := script.NewRegistry()
	if err := modules.Register(reg); err != nil {
		logger.Fatal().Err(err).Msg("register modules")
	}

	srv, err := httpserver.New(httpserver.Options{
		Config:   cfg,
		Registry: reg,
		Logger:   logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("server init")
	}

	if *watch && *cfgPath != "" {
		go watchConfig(logger, *cfgPath, srv)
	}

	logger.Info().Str("addr", *addr).Str("root", cfg.Root).Msg("listening")
	if err := http.ListenAndServe(*addr, withHeaders(srv.Handler())); err != nil {
		logger.Fatal().Err(err).Msg("listen")
	}
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(lvl).
		With().Timestamp().Logger()
}

func loadConfig(cfgPath, root string) (*config.Configuration, error) {
	if cfgPath != "" {
		return config.Load(cfgPath)
	}
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("either --config or --root is required")
	}
	cfg := &config.Configuration{Root: root}
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// watchConfig hot-swaps the configuration when the file changes. A
// failed reload keeps the previous generation serving.
func watchConfig(logger zerolog.Logger, path string, srv *httpserver.Server) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Error().Err(err).Msg("config watcher unavailable")
		return
	}
	defer w.Close()

	// Watch the directory: editors replace files, which drops a watch
	// on the file itself.
	if err := w.Add(filepath.Dir(path)); err != nil {
		logger.Error().Err(err).Msg("config watcher unavailable")
		return
	}
	abs, _ := filepath.Abs(path)
	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			evAbs, _ := filepath.Abs(ev.Name)
			if evAbs != abs || !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) {
				continue
			}
			cfg, err := config.Load(path)
			if err != nil {
				logger.Error().Err(err).Msg("config reload rejected")
				continue
			}
			if err := srv.Reload(cfg); err != nil {
				logger.Error().Err(err).Msg("config reload rejected")
				continue
			}
			logger.Info().Str("path", path).Msg("config reloaded")
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			logger.Warn().Err(err).Msg("config watcher")
		}
	}
}

func passwdCmd(args []string) {
	fs := flag.NewFlagSet("passwd", flag.ExitOnError)
	var (
		password = fs.StringP("password", "p", "", "password to hash (required)")
		cost     = fs.Int("cost", bcrypt.DefaultCost, "bcrypt cost")
	)
	_ = fs.Parse(args)
	if *password == "" {
		fmt.Fprintln(os.Stderr, "usage: workspaced passwd -p <password>")
		os.Exit(2)
	}
	if *cost < bcrypt.MinCost || *cost > bcrypt.MaxCost {
		fmt.Fprintf(os.Stderr, "invalid cost %d (min=%d max=%d)\n", *cost, bcrypt.MinCost, bcrypt.MaxCost)
		os.Exit(2)
	}
	h, err := bcrypt.GenerateFromPassword([]byte(*password), *cost)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bcrypt: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(h))
}

func withHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}
