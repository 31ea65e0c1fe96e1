package backend

import (
	"errors"
	"fmt"

	"ledger/internal/config"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, errors.New("app config is nil")
	}

	backendType := BackendType(appConfig.DataBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.DataBackend)
	}

	return Config{
		Type: backendType,

		SQLiteDBPath:      appConfig.SQLiteDBPath,
		SQLiteBusyTimeout: appConfig.SQLiteBusyTimeout,

		DataDirectory: appConfig.SeedDir,

		Notify:       NotifyType(appConfig.NotifyBackend),
		AMQPURL:      appConfig.AMQPURL,
		AMQPExchange: appConfig.AMQPExchange,
		AMQPQueue:    appConfig.AMQPQueue,
		RedisAddr:    appConfig.RedisAddr,
		RedisChannel: appConfig.RedisChannel,
	}, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}
	if c.Type == SQLiteBackend && c.SQLiteDBPath == "" {
		return errors.New("SQLite database path is required for sqlite backend")
	}

	notifyType := c.Notify
	if notifyType == "" {
		notifyType = NotifyNone
	}
	if !notifyType.IsValid() {
		return fmt.Errorf("invalid notify backend: %s", c.Notify)
	}
	switch notifyType {
	case NotifyAMQP:
		if c.AMQPURL == "" || c.AMQPExchange == "" || c.AMQPQueue == "" {
			return errors.New("AMQP URL, exchange and queue are required for amqp notifications")
		}
	case NotifyRedis:
		if c.RedisAddr == "" || c.RedisChannel == "" {
			return errors.New("Redis address and channel are required for redis notifications")
		}
	}
	return nil
}

// GetBackendTypes returns all valid backend types
func GetBackendTypes() []BackendType {
	return []BackendType{SQLiteBackend, MemoryBackend}
}
