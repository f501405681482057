package main

import (
	"context"
	"sort"
	"time"

	"github.com/exlabs/exchange-engine/internal/infrastructure/postgresql"
	"github.com/exlabs/exchange-engine/migrations"
	"github.com/exlabs/exchange-engine/pkg/config"
	"github.com/exlabs/exchange-engine/pkg/logger"
)

type migrateConfig struct {
	Postgres postgresql.Config `envPrefix:"POSTGRES_"`
}

func main() {
	log, err := logger.NewLogger()
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	cfg := &migrateConfig{}
	config.MustLoad(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	client, err := postgresql.NewClient(ctx, cfg.Postgres)
	if err != nil {
		log.Error(err, logger.Field{Key: "action", Value: "connect_postgres"})
		return
	}
	defer client.Close()

	entries, err := migrations.FS.ReadDir(".")
	if err != nil {
		log.Error(err, logger.Field{Key: "action", Value: "read_migrations"})
		return
	}

	var names []string
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		sql, err := migrations.FS.ReadFile(name)
		if err != nil {
			log.Error(err, logger.Field{Key: "migration", Value: name})
			return
		}
		if _, err := client.Exec(ctx, string(sql)); err != nil {
			log.Error(err, logger.Field{Key: "migration", Value: name})
			return
		}
		log.Info("migration applied", logger.Field{Key: "migration", Value: name})
	}

	log.Info("migrations complete", logger.Field{Key: "database", Value: client.DatabaseName()})
}
