package config

const (
	defaultDataDir                = "~/.local/share/qline"
	defaultAPIBind                = "127.0.0.1:7519"
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
	defaultMaxAttempts            = 2
	defaultStaleEscalationMinutes = 240
	defaultSweepIntervalSeconds   = 300
	defaultNtfyRequestTimeout     = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			APIBind: defaultAPIBind,
		},
		Workflow: Workflow{
			DefaultMaxAttempts:     defaultMaxAttempts,
			StaleEscalationMinutes: defaultStaleEscalationMinutes,
			SweepIntervalSeconds:   defaultSweepIntervalSeconds,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNtfyRequestTimeout,
		},
		Logging: Logging{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
	}
}
