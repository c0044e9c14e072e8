// File: internal/config/manager.go
package config

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/chainsight-io/signal-engine/pkg/utils"
)

// Manager owns the live configuration snapshot. Reload builds a complete
// new Config and swaps the pointer; readers always see one consistent
// snapshot and a run must call Current exactly once at its start.
type Manager struct {
	path     string
	logger   *logrus.Logger
	current  atomic.Pointer[Config]
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewManager loads the initial configuration and returns a manager for it
func NewManager(configPath string) (*Manager, error) {
	cfg, err := Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeConfiguration, "invalid configuration", err.Error())
	}

	m := &Manager{
		path:     configPath,
		logger:   utils.GetLogger(),
		stopChan: make(chan struct{}),
	}
	m.current.Store(cfg)
	return m, nil
}

// Current returns the configuration snapshot in effect right now
func (m *Manager) Current() *Config {
	return m.current.Load()
}

// Start begins the periodic reload loop
func (m *Manager) Start(ctx context.Context) {
	interval := m.Current().App.ReloadInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stopChan:
				return
			case <-ticker.C:
				m.Reload()
			}
		}
	}()
}

// Stop stops the reload loop
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopChan)
	})
	m.wg.Wait()
}

// Reload rebuilds the snapshot from disk and environment. A failed reload
// keeps the previous snapshot in place and is only logged.
func (m *Manager) Reload() {
	cfg, err := Load(m.path)
	if err != nil {
		m.logger.WithError(err).Warn("Config reload failed, keeping previous snapshot")
		return
	}
	if err := cfg.Validate(); err != nil {
		m.logger.WithError(err).Warn("Config reload produced invalid configuration, keeping previous snapshot")
		return
	}

	m.current.Store(cfg)
	m.logger.Debug("Configuration snapshot reloaded")
}
