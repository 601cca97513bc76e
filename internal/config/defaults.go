package config

const (
	defaultDataDir                 = "~/.local/share/easel"
	defaultLogDir                  = "~/.local/share/easel/logs"
	defaultAPIBind                 = "127.0.0.1:7811"
	defaultServerBaseURL           = "http://127.0.0.1:8085"
	defaultServerRequestTimeout    = 15
	defaultServerPollInterval      = 2
	defaultPlannerBaseURL          = "https://openrouter.ai/api/v1/chat/completions"
	defaultPlannerModel            = "google/gemini-3-flash-preview"
	defaultPlannerReferer          = "https://github.com/easel-media/easel"
	defaultPlannerTitle            = "Easel Assistant"
	defaultPlannerTimeoutSeconds   = 60
	defaultToastTTLSeconds         = 4
	defaultMaxToasts               = 10
	defaultMaxRecentErrors         = 20
	defaultMaxRetries              = 2
	defaultSuggestionCooldown      = 60
	defaultModelWaitTimeout        = 300
	defaultModelWaitPollInterval   = 1
	defaultCatalogTTLSeconds       = 300
	defaultStatusCapacity          = 200
	defaultContinuationTTLMinutes  = 60
	defaultContinuationSweepMinute = 5
	defaultLogFormat               = "text"
	defaultLogLevel                = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Server: Server{
			BaseURL:        defaultServerBaseURL,
			RequestTimeout: defaultServerRequestTimeout,
			PollInterval:   defaultServerPollInterval,
		},
		Planner: Planner{
			BaseURL:        defaultPlannerBaseURL,
			Model:          defaultPlannerModel,
			Referer:        defaultPlannerReferer,
			Title:          defaultPlannerTitle,
			TimeoutSeconds: defaultPlannerTimeoutSeconds,
		},
		Notifications: Notifications{
			ToastTTLSeconds: defaultToastTTLSeconds,
			MaxToasts:       defaultMaxToasts,
			MaxRecentErrors: defaultMaxRecentErrors,
		},
		Assistant: Assistant{
			MaxRetries:            defaultMaxRetries,
			ProactiveSuggestions:  true,
			SuggestionCooldown:    defaultSuggestionCooldown,
			ModelWaitTimeout:      defaultModelWaitTimeout,
			ModelWaitPollInterval: defaultModelWaitPollInterval,
			CatalogTTLSeconds:     defaultCatalogTTLSeconds,
		},
		History: History{
			StatusCapacity:          defaultStatusCapacity,
			ContinuationTTLMinutes:  defaultContinuationTTLMinutes,
			ContinuationSweepMinute: defaultContinuationSweepMinute,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
