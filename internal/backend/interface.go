// Package backend assembles the store and the change notification pipeline
// selected by configuration.
package backend

import (
	"context"
	"time"

	"ledger/internal/notify"
	"ledger/internal/store"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult holds everything a binary needs to run the ledger.
type BackendResult struct {
	Store store.Store
	// Local delivers changes to in-process subscribers such as the report
	// cache. It always receives every change.
	Local *notify.Local
	// Broker is nil when notifications stay in process.
	Broker notify.Bus
	// Notifier publishes to Local and, when configured, to Broker.
	Notifier store.Notifier
	Cleanup  CleanupFunc
}

// Consumer returns the bus a worker should consume from.
func (r *BackendResult) Consumer() notify.Consumer {
	if r.Broker != nil {
		return r.Broker
	}
	return r.Local
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath      string
	SQLiteBusyTimeout time.Duration

	// Memory backend specific
	DataDirectory string

	// Notifications
	Notify       NotifyType
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
	RedisAddr    string
	RedisChannel string
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}

// NotifyType selects the broker changes are published to.
type NotifyType string

const (
	NotifyNone  NotifyType = "none"
	NotifyAMQP  NotifyType = "amqp"
	NotifyRedis NotifyType = "redis"
)

func (nt NotifyType) IsValid() bool {
	switch nt {
	case NotifyNone, NotifyAMQP, NotifyRedis:
		return true
	default:
		return false
	}
}
