package backend

import (
	"context"
	"errors"
	"fmt"

	"ledger/internal/log"
	"ledger/internal/notify"
	"ledger/internal/storage"
	"ledger/internal/store"
	"ledger/internal/store/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.Default()
	}
	return &DefaultFactory{logger: logger.WithComponent(log.ComponentBackend)}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	st, err := f.createStore(ctx, config)
	if err != nil {
		return nil, err
	}

	local := notify.NewLocal(f.logger)
	broker, err := f.createBroker(ctx, config)
	if err != nil {
		st.Close()
		return nil, err
	}

	result := &BackendResult{Store: st, Local: local, Broker: broker}
	if broker != nil {
		result.Notifier = notify.Multi{local, broker}
	} else {
		result.Notifier = local
	}
	result.Cleanup = func() error {
		var errs []error
		if broker != nil {
			errs = append(errs, broker.Close())
		}
		errs = append(errs, local.Close(), st.Close())
		return errors.Join(errs...)
	}
	return result, nil
}

func (f *DefaultFactory) createStore(ctx context.Context, config Config) (store.Store, error) {
	switch config.Type {
	case SQLiteBackend:
		st, err := storage.Open(ctx, config.SQLiteDBPath, config.SQLiteBusyTimeout, storage.WithLogger(f.logger))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite store: %w", err)
		}
		if config.DataDirectory != "" {
			if err := st.Seed(ctx, store.SeedCategories(config.DataDirectory)); err != nil {
				st.Close()
				return nil, fmt.Errorf("seed categories: %w", err)
			}
		}
		f.logger.InfoContext(ctx, "Initialized SQLite backend", "db_path", config.SQLiteDBPath)
		return st, nil
	case MemoryBackend:
		dataDir := config.DataDirectory
		if dataDir == "" {
			dataDir = "data"
		}
		f.logger.InfoContext(ctx, "Initialized memory backend", "data_directory", dataDir)
		return memory.NewFromFiles(dataDir), nil
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createBroker(ctx context.Context, config Config) (notify.Bus, error) {
	switch config.Notify {
	case NotifyAMQP:
		client, err := notify.NewAMQPClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue, f.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize AMQP client: %w", err)
		}
		f.logger.InfoContext(ctx, "Initialized AMQP notifications",
			"exchange", config.AMQPExchange,
			"queue", config.AMQPQueue)
		return client, nil
	case NotifyRedis:
		n, err := notify.NewRedisNotifier(ctx, config.RedisAddr, config.RedisChannel, f.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Redis notifications: %w", err)
		}
		f.logger.InfoContext(ctx, "Initialized Redis notifications", "channel", config.RedisChannel)
		return n, nil
	default:
		return nil, nil
	}
}
