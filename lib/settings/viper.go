package settings

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

func ReadConfig() (*Settings, error) {
	viper.SetConfigName("settings")
	viper.SetConfigType("json")

	viper.AddConfigPath(".")
	viper.AutomaticEnv()
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, err
		}
		// No settings.json is fine, the registry covers every key.
	}

	ApplyRegistryDefaults()

	dbTypeToUse, err := ParseDBType(viper.GetString(DBType))
	if err != nil {
		return nil, err
	}

	s := &Settings{
		Title:    viper.GetString(Title),
		IP:       viper.GetString(IP),
		Port:     viper.GetString(Port),
		DevMode:  viper.GetBool(DevMode),
		LogLevel: viper.GetString(LogLevel),

		EnableMetrics: viper.GetBool(EnableMetrics),

		DBType: dbTypeToUse,
		DBSettings: &DBSettings{
			Filename: viper.GetString(DBSettingsFilename),
			Host:     viper.GetString(DBSettingsHost),
			Port:     viper.GetString(DBSettingsPort),
			Database: viper.GetString(DBSettingsDatabase),
			User:     viper.GetString(DBSettingsUser),
			Password: viper.GetString(DBSettingsPassword),
		},

		Versioning: VersioningSettings{
			MaxContentBytes:      viper.GetInt(VersioningMaxContentBytes),
			StorageRetryAttempts: viper.GetInt(VersioningStorageRetryAttempts),
			StorageRetryBackoff:  time.Duration(viper.GetInt(VersioningStorageRetryBackoffMs)) * time.Millisecond,
		},

		Collab: CollabSettings{
			SessionIdleTimeout:    time.Duration(viper.GetInt(CollabSessionIdleTimeoutMs)) * time.Millisecond,
			SessionReaperInterval: time.Duration(viper.GetInt(CollabSessionReaperIntervalMs)) * time.Millisecond,
			BroadcastBuffer:       viper.GetInt(CollabBroadcastBuffer),
			ChangeRateLimiting: ChangeRateLimiting{
				Duration: viper.GetInt(CollabRateLimitDuration),
				Points:   viper.GetInt(CollabRateLimitPoints),
				Disabled: viper.GetBool(CollabRateLimitDisabled),
			},
		},
	}

	return s, nil
}
