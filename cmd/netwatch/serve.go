package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/desertwitch/netwatch/internal/config"
	"github.com/desertwitch/netwatch/internal/devices"
	"github.com/desertwitch/netwatch/internal/icmpping"
	"github.com/desertwitch/netwatch/internal/notify"
	"github.com/desertwitch/netwatch/internal/server"
	"github.com/desertwitch/netwatch/internal/xlog"
)

// newServeCmd returns the "serve" [cobra.Command] pointer for the program.
func newServeCmd(ctx context.Context) *cobra.Command {
	var dataDir string
	var webDir string

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start monitoring configured devices and serve the dashboard",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runServe(ctx, dataDir, webDir)
		},
	}

	serveCmd.Flags().StringVar(&dataDir, "data-dir", "data", "directory holding config.json and devices.json")
	serveCmd.Flags().StringVar(&webDir, "web-dir", "web", "directory of static dashboard assets")

	return serveCmd
}

// runServe boots the log façade, configuration loader, devices registry
// (which loads devices.json, starts monitors, and starts one notifier per
// SMTP recipient), and the HTTP/WS server, then blocks until ctx is done.
func runServe(ctx context.Context, dataDir, webDir string) error {
	logger := log.New(os.Stderr, "", log.LstdFlags)
	logbuf := xlog.New()

	fsys := afero.NewOsFs()

	configPath := filepath.Join(dataDir, "config.json")
	devicesPath := filepath.Join(dataDir, "devices.json")

	conf, err := config.Load(fsys, configPath)
	if err != nil {
		return fmt.Errorf("fatal: %w", err)
	}

	pinger, err := icmpping.NewClient(logger)
	if err != nil {
		return fmt.Errorf("fatal: %w", err)
	}
	defer pinger.Close()

	settings := conf.SettingsSnapshot()
	pingInterval := time.Duration(settings.PingInterval) * time.Second

	registry := devices.New(pinger, logbuf, logger, pingInterval)

	for _, recipient := range conf.Recievers() {
		_, ch := registry.Subscribe()

		n := notify.New(recipient, ch, registry, registry, conf, notify.SMTPMailer{}, logbuf, logger)
		go n.Run(ctx)
	}

	if err := registry.Load(fsys, devicesPath); err != nil {
		return fmt.Errorf("fatal: %w", err)
	}

	logbuf.Note(fmt.Sprintf("loaded %d device(s) from %s", len(registry.Confs()), devicesPath))

	srv := server.New(registry, conf, logbuf, logger, fsys, dataDir, webDir)

	addr := fmt.Sprintf("0.0.0.0:%d", settings.WebPort)
	logbuf.Note("listening on " + addr)

	if err := srv.ListenAndServe(ctx, addr); err != nil {
		return fmt.Errorf("fatal: %w", err)
	}

	return nil
}
