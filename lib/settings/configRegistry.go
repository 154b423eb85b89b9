package settings

import (
	"strings"

	"github.com/spf13/viper"
)

// Config keys as they appear in settings.json and, uppercased with the
// VELLUM_ prefix, in the environment.
const (
	Title    = "title"
	IP       = "ip"
	Port     = "port"
	LogLevel = "logLevel"
	DevMode  = "devMode"

	EnableMetrics = "enableMetrics"

	DBType             = "dbType"
	DBSettingsFilename = "dbSettings.filename"
	DBSettingsHost     = "dbSettings.host"
	DBSettingsPort     = "dbSettings.port"
	DBSettingsDatabase = "dbSettings.database"
	DBSettingsUser     = "dbSettings.user"
	DBSettingsPassword = "dbSettings.password"

	VersioningMaxContentBytes       = "versioning.maxContentBytes"
	VersioningStorageRetryAttempts  = "versioning.storageRetryAttempts"
	VersioningStorageRetryBackoffMs = "versioning.storageRetryBackoffMs"

	CollabSessionIdleTimeoutMs    = "collab.sessionIdleTimeoutMs"
	CollabSessionReaperIntervalMs = "collab.sessionReaperIntervalMs"
	CollabBroadcastBuffer         = "collab.broadcastBuffer"
	CollabRateLimitDuration       = "collab.rateLimitDuration"
	CollabRateLimitPoints         = "collab.rateLimitPoints"
	CollabRateLimitDisabled       = "collab.rateLimitDisabled"
)

type ConfigKey struct {
	Key         string
	Default     any
	Description string
}

const envPrefix = "VELLUM"

func EnvVar(key string) string {
	return envPrefix + "_" + strings.ToUpper(
		strings.ReplaceAll(key, ".", "_"),
	)
}

var Registry = []ConfigKey{
	// ---------------------------------------------------------------------
	// Core
	// ---------------------------------------------------------------------
	{Key: Title, Default: "Vellum", Description: "Application title"},
	{Key: IP, Default: "0.0.0.0", Description: "Bind address"},
	{Key: Port, Default: "8090", Description: "HTTP server port"},
	{Key: LogLevel, Default: "INFO", Description: "Log level"},
	{Key: DevMode, Default: false, Description: "Enable development mode"},
	{Key: EnableMetrics, Default: true, Description: "Expose Prometheus metrics"},

	// ---------------------------------------------------------------------
	// Database
	// ---------------------------------------------------------------------
	{Key: DBType, Default: SQLITE, Description: "Version store backend"},
	{Key: DBSettingsFilename, Default: "var/vellum.db", Description: "SQLite database file"},
	{Key: DBSettingsHost, Default: nil, Description: "Database host"},
	{Key: DBSettingsPort, Default: nil, Description: "Database port"},
	{Key: DBSettingsDatabase, Default: nil, Description: "Database name"},
	{Key: DBSettingsUser, Default: nil, Description: "Database user"},
	{Key: DBSettingsPassword, Default: nil, Description: "Database password"},

	// ---------------------------------------------------------------------
	// Versioning
	// ---------------------------------------------------------------------
	{
		Key:         VersioningMaxContentBytes,
		Default:     2 * 1024 * 1024,
		Description: "Largest accepted content snapshot in bytes",
	},
	{
		Key:         VersioningStorageRetryAttempts,
		Default:     3,
		Description: "Attempts for transient storage failures",
	},
	{
		Key:         VersioningStorageRetryBackoffMs,
		Default:     50,
		Description: "Delay between storage retries",
	},

	// ---------------------------------------------------------------------
	// Collaboration
	// ---------------------------------------------------------------------
	{
		Key:         CollabSessionIdleTimeoutMs,
		Default:     10 * 60 * 1000,
		Description: "Idle time before a session is closed by the reaper",
	},
	{
		Key:         CollabSessionReaperIntervalMs,
		Default:     30 * 1000,
		Description: "How often idle sessions are checked",
	},
	{
		Key:         CollabBroadcastBuffer,
		Default:     64,
		Description: "Buffered changes per session subscriber",
	},
	{
		Key:         CollabRateLimitDuration,
		Default:     1,
		Description: "Rate limit window per author in seconds",
	},
	{
		Key:         CollabRateLimitPoints,
		Default:     20,
		Description: "Changes one author may push per window",
	},
	{
		Key:         CollabRateLimitDisabled,
		Default:     false,
		Description: "Switch the change rate limiter off",
	},
}

func ApplyRegistryDefaults() {
	for _, c := range Registry {
		viper.SetDefault(c.Key, c.Default)
	}
}
