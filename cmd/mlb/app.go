package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/franz/media-librarian/internal/fileops"
	"github.com/franz/media-librarian/internal/report"
	"github.com/franz/media-librarian/internal/store"
	"github.com/franz/media-librarian/internal/util"
)

// app is what every catalog command opens
type app struct {
	store  *store.Store
	events *report.EventLogger
	files  *fileops.Ops
}

func openApp(dbPath string) (*app, error) {
	network := util.IsNetworkPath(filepath.Dir(dbPath))
	util.DebugLog("Opening database: %s", dbPath)
	st, err := store.OpenWithOptions(dbPath, &store.OpenOptions{NetworkOptimized: network})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	retry := util.DefaultRetryConfig()
	if network {
		retry = util.NASRetryConfig()
	}

	return &app{
		store:  st,
		events: openEventLogger(),
		files:  fileops.New(&fileops.Config{TrashCmd: viper.GetString("trash_cmd"), RetryConfig: retry}),
	}, nil
}

// openEventLogger honours --events-dir; without it events are discarded
func openEventLogger() *report.EventLogger {
	dir := viper.GetString("events_dir")
	if dir == "" {
		return report.NullLogger()
	}

	logLevel := report.LevelInfo
	if util.IsQuiet() {
		logLevel = report.LevelWarning
	} else if viper.GetInt("verbose") > 0 {
		logLevel = report.LevelDebug
	}

	logger, err := report.NewEventLogger(dir, logLevel)
	if err != nil {
		util.WarnLog("Failed to create event logger: %v", err)
		return report.NullLogger()
	}
	util.InfoLog("Event log: %s", logger.Path())
	return logger
}

func (a *app) Close() {
	a.events.Close()
	if err := a.store.Close(); err != nil {
		util.ErrorLog("Failed to close database: %v", err)
	}
}
