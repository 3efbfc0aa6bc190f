package main

import (
	"context"
	"fmt"

	"QChat/global/config"
	"QChat/logger"
	"QChat/service/chat"
	"QChat/service/dispatcher"
	kafkadist "QChat/service/dispatcher/kafka"
	natsdist "QChat/service/dispatcher/nats"
	"QChat/service/persistence"
	"QChat/service/registry"
	"QChat/tools/ids"
)

func main() {
	cfg := *config.Load()
	serverID := ids.Generate()
	logger.Infof("[main] starting instance %s", serverID)

	engine, err := buildEngine(cfg)
	if err != nil {
		logger.Errorf("[main] persistence engine: %v", err)
		return
	}

	reg, err := buildRegistry(cfg)
	if err != nil {
		logger.Errorf("[main] connection registry: %v", err)
		return
	}

	conns := chat.NewConnManager()
	svc := chat.NewChatService(engine, reg, conns, serverID)

	dist, err := buildDistributor(cfg, serverID, svc)
	if err != nil {
		logger.Errorf("[main] distribution engine: %v", err)
		return
	}
	svc.AttachDistributor(dist)
	defer func() {
		if err := dist.Close(); err != nil {
			logger.Errorf("[main] distributor close: %v", err)
		}
	}()

	server := chat.NewServer(svc)
	if err := server.Run(fmt.Sprintf(":%d", cfg.Port)); err != nil {
		logger.Errorf("[main] server stopped: %v", err)
	}
}

func buildEngine(cfg config.AppConfig) (persistence.Engine, error) {
	switch cfg.Persistence {
	case config.PersistenceLocal:
		return persistence.NewLocalEngine(), nil
	case config.PersistenceRedis:
		return persistence.NewRedisEngine(persistence.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.MessagesDB,
		})
	case config.PersistenceCassandra:
		return persistence.NewCassandraEngine(persistence.CassandraConfig{
			Hosts:    cfg.Cassandra.Hosts,
			Keyspace: cfg.Cassandra.Keyspace,
		})
	case config.PersistenceMongo:
		return persistence.NewMongoEngine(context.Background(), persistence.MongoConfig{
			URI:      cfg.Mongo.URI,
			Database: cfg.Mongo.Database,
		})
	default:
		return nil, fmt.Errorf("unknown persistence backend %q", cfg.Persistence)
	}
}

func buildRegistry(cfg config.AppConfig) (registry.Registry, error) {
	switch cfg.Registry {
	case config.RegistryMemory:
		return registry.NewMemoryRegistry(), nil
	case config.RegistryRedis:
		return registry.NewRedisRegistry(registry.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.ConnectionsDB,
		})
	case config.RegistryPostgres:
		return registry.NewPostgresRegistry(context.Background(), cfg.Postgres.DSN)
	default:
		return nil, fmt.Errorf("unknown registry backend %q", cfg.Registry)
	}
}

func buildDistributor(cfg config.AppConfig, serverID string, relay dispatcher.Relay) (dispatcher.Distributor, error) {
	switch cfg.Distribution {
	case config.DistributionNone:
		return dispatcher.NewNoop(), nil
	case config.DistributionKafka:
		return kafkadist.NewDistributor(kafkadist.Config{
			Brokers:    cfg.Kafka.Brokers,
			InstanceID: serverID,
		}, relay)
	case config.DistributionNats:
		return natsdist.NewDistributor(natsdist.Config{
			URL:  cfg.Nats.URL,
			Name: "qchat-" + serverID,
		}, relay)
	default:
		return nil, fmt.Errorf("unknown distribution backend %q", cfg.Distribution)
	}
}
