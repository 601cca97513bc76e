package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeServer()
	c.normalizePlanner()
	c.normalizeNotifications()
	c.normalizeAssistant()
	c.normalizeHistory()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	return nil
}

func (c *Config) normalizeServer() {
	c.Server.BaseURL = strings.TrimRight(strings.TrimSpace(c.Server.BaseURL), "/")
	if c.Server.BaseURL == "" {
		c.Server.BaseURL = defaultServerBaseURL
	}
	if c.Server.RequestTimeout <= 0 {
		c.Server.RequestTimeout = defaultServerRequestTimeout
	}
	if c.Server.PollInterval <= 0 {
		c.Server.PollInterval = defaultServerPollInterval
	}
}

func (c *Config) normalizePlanner() {
	if strings.TrimSpace(c.Planner.BaseURL) == "" {
		c.Planner.BaseURL = defaultPlannerBaseURL
	}
	if strings.TrimSpace(c.Planner.Model) == "" {
		c.Planner.Model = defaultPlannerModel
	}
	if c.Planner.TimeoutSeconds <= 0 {
		c.Planner.TimeoutSeconds = defaultPlannerTimeoutSeconds
	}
}

func (c *Config) normalizeNotifications() {
	if c.Notifications.ToastTTLSeconds <= 0 {
		c.Notifications.ToastTTLSeconds = defaultToastTTLSeconds
	}
	if c.Notifications.MaxToasts <= 0 {
		c.Notifications.MaxToasts = defaultMaxToasts
	}
	if c.Notifications.MaxRecentErrors <= 0 {
		c.Notifications.MaxRecentErrors = defaultMaxRecentErrors
	}
}

func (c *Config) normalizeAssistant() {
	if c.Assistant.MaxRetries < 0 {
		c.Assistant.MaxRetries = defaultMaxRetries
	}
	if c.Assistant.SuggestionCooldown <= 0 {
		c.Assistant.SuggestionCooldown = defaultSuggestionCooldown
	}
	if c.Assistant.ModelWaitTimeout <= 0 {
		c.Assistant.ModelWaitTimeout = defaultModelWaitTimeout
	}
	if c.Assistant.ModelWaitPollInterval <= 0 {
		c.Assistant.ModelWaitPollInterval = defaultModelWaitPollInterval
	}
	if c.Assistant.CatalogTTLSeconds <= 0 {
		c.Assistant.CatalogTTLSeconds = defaultCatalogTTLSeconds
	}
}

func (c *Config) normalizeHistory() {
	if c.History.StatusCapacity <= 0 {
		c.History.StatusCapacity = defaultStatusCapacity
	}
	if c.History.ContinuationTTLMinutes <= 0 {
		c.History.ContinuationTTLMinutes = defaultContinuationTTLMinutes
	}
	if c.History.ContinuationSweepMinute <= 0 {
		c.History.ContinuationSweepMinute = defaultContinuationSweepMinute
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
