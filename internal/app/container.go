package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/acme/hotline/internal/config"
	"github.com/acme/hotline/internal/infra/db"
	"github.com/acme/hotline/internal/infra/redis"
	"github.com/acme/hotline/internal/presence"
	"github.com/acme/hotline/internal/presentation"
	"github.com/acme/hotline/internal/queue"
	"github.com/acme/hotline/internal/registry"
	"github.com/acme/hotline/internal/reporting"
	"github.com/acme/hotline/internal/repository"
	pgrepo "github.com/acme/hotline/internal/repository/postgres"
	scyllarepo "github.com/acme/hotline/internal/repository/scylla"
	callsvc "github.com/acme/hotline/internal/service/call"
	historysvc "github.com/acme/hotline/internal/service/history"
	"github.com/acme/hotline/internal/telephony"
	telephonyMock "github.com/acme/hotline/internal/telephony/mock"
	"github.com/acme/hotline/pkg/logger"
)

// Container wires together shared infrastructure dependencies.
// Postgres, Scylla and Redis are nil when their section is not configured.
type Container struct {
	Config *config.Config
	Logger *logger.Logger

	Postgres *db.Postgres
	Scylla   *db.Scylla
	Redis    *redis.Client
	Kafka    *queue.Kafka

	// lazily initialised components
	components struct {
		storesOnce sync.Once
		stores     *stores

		coreOnce   sync.Once
		core       *core
		publishers *publishers
	}
}

type stores struct {
	History repository.HistoryRepository
	Events  repository.EventLog
}

type publishers struct {
	Events *queue.EventPublisher
	SDK    *queue.SDKPublisher
}

type core struct {
	Registry *registry.Registry
	Hub      *presentation.Hub
	Roster   *presentation.Roster
	Presence *presence.Mirror
	Calls    *callsvc.Service
	History  *historysvc.Service
	Pruner   *registry.Pruner
	Dialer   telephony.Dialer

	async    []*registry.AsyncObserver
	provider *telephonyMock.Provider
}

// Build constructs a container for the given configuration path.
func Build(ctx context.Context, configPath string) (*Container, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	lg, err := logger.New(cfg.App.Env, cfg.App.LogLevel)
	if err != nil {
		return nil, err
	}

	container := &Container{Config: cfg, Logger: lg}

	if cfg.HistoryEnabled() {
		pg, err := db.NewPostgres(ctx, cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("bootstrap postgres: %w", err)
		}
		container.Postgres = pg
	}

	if cfg.EventLogEnabled() {
		scylla, err := db.NewScylla(cfg.Scylla)
		if err != nil {
			_ = container.Close(ctx)
			return nil, fmt.Errorf("bootstrap scylla: %w", err)
		}
		container.Scylla = scylla
	}

	if cfg.PresenceEnabled() {
		redisClient, err := redis.NewClient(ctx, cfg.Redis)
		if err != nil {
			_ = container.Close(ctx)
			return nil, fmt.Errorf("bootstrap redis: %w", err)
		}
		container.Redis = redisClient
	}

	kq, err := queue.NewKafka(cfg.Kafka)
	if err != nil {
		_ = container.Close(ctx)
		return nil, fmt.Errorf("bootstrap kafka: %w", err)
	}
	container.Kafka = kq

	lg.Info("container built",
		zap.Bool("history", container.Postgres != nil),
		zap.Bool("event_log", container.Scylla != nil),
		zap.Bool("presence", container.Redis != nil),
		zap.String("sdk_mode", cfg.SDK.Mode),
	)
	return container, nil
}

// Stores exposes the configured persistence; absent stores are nil.
func (c *Container) Stores() *stores {
	c.components.storesOnce.Do(func() {
		s := &stores{}
		if c.Postgres != nil {
			s.History = pgrepo.NewHistoryRepository(c.Postgres.DB())
		}
		if c.Scylla != nil {
			s.Events = scyllarepo.NewEventLog(c.Scylla.Session())
		}
		c.components.stores = s
	})
	return c.components.stores
}

// Core exposes the call registry and everything built around it.
// Observers are registered in a fixed order: hub, reporter, presence.
func (c *Container) Core() *core {
	c.components.coreOnce.Do(func() {
		cfg := c.Config
		lg := c.Logger

		pubs := &publishers{
			Events: queue.NewEventPublisher(c.Kafka, cfg.Kafka.EventTopic),
			SDK:    queue.NewSDKPublisher(c.Kafka, cfg.Kafka.SDKTopic),
		}

		reg := registry.New(registry.WithLogger(lg.Named("registry")))
		k := &core{Registry: reg, Hub: presentation.NewHub()}
		reg.Register(k.Hub)

		reporter := registry.NewAsyncObserver("reporter", reporting.NewReporter(pubs.Events), cfg.Registry.ObserverBuffer, lg)
		reg.Register(reporter)
		k.async = append(k.async, reporter)

		if c.Redis != nil {
			k.Presence = presence.NewMirror(c.Redis.Inner(), cfg.Redis.KeyPrefix, cfg.Redis.PresenceTTL)
			mirror := registry.NewAsyncObserver("presence", k.Presence, cfg.Registry.ObserverBuffer, lg)
			reg.Register(mirror)
			k.async = append(k.async, mirror)
		}

		switch cfg.SDK.Mode {
		case "simulated":
			k.provider = telephonyMock.NewProvider(cfg.SDK, reg, lg.Named("sdk"))
			k.Dialer = k.provider
		default:
			k.Dialer = telephony.NopDialer{}
		}

		st := c.Stores()
		k.Roster = presentation.NewRoster(cfg.Directory.Users, reg)
		k.Calls = callsvc.NewService(reg, k.Dialer, lg.Named("calls"))
		k.History = historysvc.NewService(st.History, st.Events)
		k.Pruner = registry.NewPruner(reg, cfg.Registry.EndedRetention, cfg.Registry.PruneInterval, lg)

		c.components.core = k
		c.components.publishers = pubs
	})
	return c.components.core
}

// Publishers exposes the Kafka writers owned by the core.
func (c *Container) Publishers() *publishers {
	c.Core()
	return c.components.publishers
}

// StartObservers launches the delivery goroutines of the asynchronous observers.
func (c *Container) StartObservers(ctx context.Context) {
	for _, o := range c.Core().async {
		o.Start(ctx)
	}
}

// Close releases all held resources.
func (c *Container) Close(ctx context.Context) error {
	var errs []error
	if k := c.components.core; k != nil {
		if k.provider != nil {
			if err := k.provider.Close(); err != nil {
				errs = append(errs, fmt.Errorf("sdk provider close: %w", err))
			}
		}
		for _, o := range k.async {
			o.Stop()
			if n := o.Dropped(); n > 0 {
				c.Logger.Warn("observer dropped events", zap.Uint64("dropped", n))
			}
		}
	}
	if p := c.components.publishers; p != nil {
		if err := p.Events.Close(); err != nil {
			errs = append(errs, fmt.Errorf("event publisher close: %w", err))
		}
		if err := p.SDK.Close(); err != nil {
			errs = append(errs, fmt.Errorf("sdk publisher close: %w", err))
		}
	}
	if c.Kafka != nil {
		if err := c.Kafka.Close(); err != nil {
			errs = append(errs, fmt.Errorf("kafka close: %w", err))
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
	}
	if c.Scylla != nil {
		if err := c.Scylla.Close(); err != nil {
			errs = append(errs, fmt.Errorf("scylla close: %w", err))
		}
	}
	if c.Postgres != nil {
		if err := c.Postgres.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("postgres close: %w", err))
		}
	}
	if c.Logger != nil {
		c.Logger.Sync()
	}
	return errors.Join(errs...)
}

// EnsureTopics ensures required Kafka topics exist.
func (c *Container) EnsureTopics(ctx context.Context) error {
	topics := []string{c.Config.Kafka.SDKTopic, c.Config.Kafka.EventTopic}
	return c.Kafka.EnsureTopics(ctx, topics, c.Config.Kafka.Partitions, 1)
}

// SDKReader opens a consumer on the SDK topic. Only the newest events matter to a
// freshly started registry, so a new group starts at the tail.
func (c *Container) SDKReader() *kafka.Reader {
	return c.Kafka.NewReader(c.Config.Kafka.SDKTopic, c.Config.Kafka.ConsumerGroupID+"-sdk", kafka.LastOffset)
}

// EventReader opens a consumer on the events topic from the earliest retained event.
func (c *Container) EventReader() *kafka.Reader {
	return c.Kafka.NewReader(c.Config.Kafka.EventTopic, c.Config.Kafka.ConsumerGroupID+"-events", kafka.FirstOffset)
}
