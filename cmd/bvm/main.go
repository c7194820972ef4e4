package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/liangyou/bvm/internal/activation"
	"github.com/liangyou/bvm/internal/cli"
	"github.com/liangyou/bvm/internal/config"
	"github.com/liangyou/bvm/internal/env"
	"github.com/liangyou/bvm/internal/installation"
	"github.com/liangyou/bvm/internal/logging"
	"github.com/liangyou/bvm/internal/platform"
	"github.com/liangyou/bvm/internal/settings"
	"github.com/liangyou/bvm/internal/storage"
	"github.com/liangyou/bvm/internal/verify"
)

const appVersion = "0.1.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := cli.NewApp(os.Stdout, os.Stdin, bootstrap, appVersion)
	if err := app.Run(ctx, os.Args[1:]); err != nil {
		stop()
		os.Exit(1)
	}
}

// bootstrap 读取配置并装配所有服务，启动时把登记表中的激活记录重新发布到全局设置。
func bootstrap(ctx context.Context, opts cli.Options) (*cli.Services, error) {
	path := opts.ConfigPath
	if path == "" {
		path = config.DefaultPath(os.Getenv)
	}
	file, err := config.LoadOptional(path)
	if err != nil {
		return nil, err
	}
	if opts.Debug {
		file.Logging.Level = "debug"
	}
	logger := logging.Setup(file.Logging, os.Stderr)
	slog.SetDefault(logger)

	cfg := file.Models()
	if err := platform.NewChecker(cfg).Validate(); err != nil {
		return nil, err
	}
	logger.Debug("configuration loaded", "config", path, "root", cfg.RootDir, "backend", cfg.RegistryBackend)

	store, err := settings.Load(cfg.SettingsPath)
	if err != nil {
		return nil, err
	}
	registry, err := storage.Open(cfg)
	if err != nil {
		return nil, err
	}

	ctrlOpts := []activation.Option{
		activation.WithLogger(logger),
		activation.WithProcessLock(platform.NewFileLock(filepath.Join(cfg.RootDir, "activation.lock"))),
	}
	if cfg.ShellExport {
		ctrlOpts = append(ctrlOpts, activation.WithExporter(env.NewManager()))
	}
	ctrl := activation.New(registry, verify.FromConfig(cfg, logger), store, ctrlOpts...)

	active, ok, err := ctrl.Restore(ctx)
	if err != nil {
		registry.Close()
		return nil, fmt.Errorf("restore active installation: %w", err)
	}
	if ok {
		logger.Debug("active installation restored", "path", active.Path, "version", active.BigVersion)
	}

	return &cli.Services{
		Activation: ctrl,
		Registrar:  installation.NewRegistrar(registry, ctrl, cfg.ExecutableNames, logger),
		Lister:     installation.NewLister(registry),
		Remover:    installation.NewRemover(registry),
		Revealer:   platform.NewRevealer(),
		Settings:   store,
		Close: func() error {
			if err := registry.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
				return err
			}
			return nil
		},
	}, nil
}
