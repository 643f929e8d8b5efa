package store

import (
	"context"
	"log"

	"github.com/SrJCBM/BDD-Avanzada/pkg/config"
	"github.com/SrJCBM/BDD-Avanzada/pkg/kv"
	"github.com/pkg/errors"
)

// Open builds the backend selected by cfg.Backend.
//
// Connectivity problems with a network backend are logged and do not fail
// Open; requests then fail one by one when they reach the store. Only errors
// that leave no usable handle (bad file, bad DSN) are returned.
func Open(ctx context.Context, cfg *config.Config) (kv.Store, error) {
	switch cfg.Backend {
	case config.BackendRedis:
		s := NewRedisStore(RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := s.Ping(ctx); err != nil {
			log.Printf("Could not connect to Redis at %s: %v", cfg.RedisAddr, err)
		} else {
			log.Printf("Connected to Redis at %s", cfg.RedisAddr)
		}
		return s, nil

	case config.BackendMemory:
		log.Println("Using in-memory store; data is lost on exit")
		return NewMemStore(), nil

	case config.BackendBolt:
		s, err := NewBoltStore(cfg.BoltPath, 0o600)
		if err != nil {
			return nil, err
		}
		log.Printf("Opened bolt store %s", cfg.BoltPath)
		return s, nil

	case config.BackendPostgres:
		s, err := NewPGStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, errors.Wrap(err, "invalid database url")
		}
		if err := s.Migrate(ctx); err != nil {
			log.Printf("Could not prepare PostgreSQL tables, will retry on first request: %v", err)
		} else {
			log.Println("Connected to PostgreSQL successfully.")
		}
		return s, nil

	case config.BackendRaft:
		s, err := OpenRaftStore(RaftOptions{
			NodeID:    cfg.NodeID,
			BindAddr:  cfg.RaftAddr,
			DataDir:   cfg.RaftData,
			Bootstrap: cfg.RaftLeader,
		})
		if err != nil {
			return nil, err
		}
		log.Printf("Raft node %s listening on %s", cfg.NodeID, cfg.RaftAddr)
		return s, nil
	}

	return nil, errors.Errorf("unknown backend %q", cfg.Backend)
}
