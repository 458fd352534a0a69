// SPDX-FileCopyrightText: 2026 Ruben-FPV Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"path/filepath"
	"reflect"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// configWatcher re-applies the Logging-configuration block whenever the configuration file changes. Changes of
// other blocks are only reported, they require a restart.
type configWatcher struct {
	filename string
	current  tomlConfig
	watcher  *fsnotify.Watcher
}

// newConfigWatcher watches the configuration file's directory, because editors often replace files.
func newConfigWatcher(filename string, current tomlConfig) (cw *configWatcher, err error) {
	cw = &configWatcher{
		filename: filepath.Clean(filename),
		current:  current,
	}

	if cw.watcher, err = fsnotify.NewWatcher(); err != nil {
		return nil, err
	}
	if err = cw.watcher.Add(filepath.Dir(cw.filename)); err != nil {
		_ = cw.watcher.Close()
		return nil, err
	}

	return
}

// handle events until the context is canceled.
func (cw *configWatcher) handle(ctx context.Context) {
	defer func() { _ = cw.watcher.Close() }()

	for {
		select {
		case <-ctx.Done():
			return

		case e, ok := <-cw.watcher.Events:
			if !ok {
				log.Error("fsnotify's Event channel was closed")
				return
			}

			if filepath.Clean(e.Name) != cw.filename || e.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			cw.reload()

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				log.Error("fsnotify's Errors channel was closed")
				return
			}

			log.WithError(err).Error("fsnotify errored")
		}
	}
}

// reload the configuration file and apply its Logging-configuration block.
func (cw *configWatcher) reload() {
	conf, err := loadConfig(cw.filename)
	if err != nil {
		log.WithError(err).Warn("Reloading configuration errored, keeping the previous one")
		return
	}

	if conf.Logging != cw.current.Logging {
		setupLogging(conf.Logging)
		log.WithField("logging", conf.Logging).Info("Applied changed logging configuration")
	}

	next, prev := conf, cw.current
	next.Logging, prev.Logging = logConf{}, logConf{}
	if !reflect.DeepEqual(next, prev) {
		log.WithField("file", cw.filename).Warn("Configuration changed, restart to apply changes outside of logging")
	}

	cw.current = conf
}
