package utils

import (
	"errors"
	"strconv"

	"github.com/vellumhq/vellum-go/lib/settings"
	"github.com/vellumhq/vellum-go/lib/store"
	"go.uber.org/zap"
)

// GetStore opens the version store selected by dbType.
func GetStore(retrievedSettings settings.Settings, setupLogger *zap.SugaredLogger) (store.VersionStore, error) {
	if retrievedSettings.DBType == settings.SQLITE {
		setupLogger.Infof("Using SQLite version store at %s", retrievedSettings.DBSettings.Filename)
		return store.NewSQLiteVersionStore(retrievedSettings.DBSettings.Filename, setupLogger)
	} else if retrievedSettings.DBType == settings.MEMORY {
		setupLogger.Info("Using in-memory version store (data will be lost on restart)")
		return store.NewMemoryVersionStore(), nil
	} else if retrievedSettings.DBType == settings.POSTGRES {
		setupLogger.Infof("Using Postgres version store at %s with database %s", retrievedSettings.DBSettings.Host, retrievedSettings.DBSettings.Database)

		port, err := strconv.Atoi(retrievedSettings.DBSettings.Port)
		if err != nil {
			return nil, err
		}

		return store.NewPostgresVersionStore(store.PostgresOptions{
			Username: retrievedSettings.DBSettings.User,
			Password: retrievedSettings.DBSettings.Password,
			Host:     retrievedSettings.DBSettings.Host,
			Database: retrievedSettings.DBSettings.Database,
			Port:     port,
		}, setupLogger)
	}
	return nil, errors.New("unsupported database type")
}
