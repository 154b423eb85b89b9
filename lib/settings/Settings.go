package settings

import (
	"time"

	"go.uber.org/zap"
)

type DBSettings struct {
	Filename string
	Host     string
	Port     string
	Database string
	User     string
	Password string
}

// VersioningSettings bounds what the history manager accepts and how hard it
// retries the store.
type VersioningSettings struct {
	MaxContentBytes      int
	StorageRetryAttempts int
	StorageRetryBackoff  time.Duration
}

// ChangeRateLimiting caps how many changes one author may push per window.
// Duration is the window in seconds, Points the number of changes allowed in
// it. Disabled switches the limiter off for load testing.
type ChangeRateLimiting struct {
	Duration int
	Points   int
	Disabled bool
}

// CollabSettings tunes collaborative session lifecycle and delivery.
type CollabSettings struct {
	SessionIdleTimeout    time.Duration
	SessionReaperInterval time.Duration
	BroadcastBuffer       int
	ChangeRateLimiting    ChangeRateLimiting
}

type Settings struct {
	Title   string `json:"title"`
	IP      string `json:"ip"`
	Port    string `json:"port"`
	DevMode bool   `json:"devMode"`

	LogLevel      string `json:"logLevel"`
	EnableMetrics bool   `json:"enableMetrics"`

	DBType     IDBType     `json:"dbType"`
	DBSettings *DBSettings `json:"dbSettings"`

	Versioning VersioningSettings `json:"versioning"`
	Collab     CollabSettings     `json:"collab"`
}

// Displayed is the settings snapshot the rest of the process reads. It starts
// with registry defaults so packages work before InitSettings runs.
var Displayed = defaultSettings()

func defaultSettings() Settings {
	return Settings{
		Title:         "Vellum",
		IP:            "0.0.0.0",
		Port:          "8090",
		LogLevel:      "INFO",
		EnableMetrics: true,
		DBType:        SQLITE,
		DBSettings: &DBSettings{
			Filename: "var/vellum.db",
		},
		Versioning: VersioningSettings{
			MaxContentBytes:      2 * 1024 * 1024,
			StorageRetryAttempts: 3,
			StorageRetryBackoff:  50 * time.Millisecond,
		},
		Collab: CollabSettings{
			SessionIdleTimeout:    10 * time.Minute,
			SessionReaperInterval: 30 * time.Second,
			BroadcastBuffer:       64,
			ChangeRateLimiting: ChangeRateLimiting{
				Duration: 1,
				Points:   20,
			},
		},
	}
}

// InitSettings loads settings.json plus environment overrides into Displayed.
// Missing files are fine; defaults cover every key.
func InitSettings(logger *zap.SugaredLogger) {
	setting, err := ReadConfig()
	if err != nil {
		logger.Errorw("could not read settings, keeping defaults", "error", err)
		return
	}
	Displayed = *setting
}
