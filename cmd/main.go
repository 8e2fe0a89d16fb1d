// Package ledgerapi provides the API to manage accounts and their running-balance ledgers.
package main

import (
	"github.com/rs/zerolog/log"

	"github.com/go-petr/ledger-api/cmd/httpserver"
	"github.com/go-petr/ledger-api/internal/eventpublisher"
	"github.com/go-petr/ledger-api/internal/ledgerservice"
	"github.com/go-petr/ledger-api/internal/middleware"
	"github.com/go-petr/ledger-api/pkg/configpkg"
	"github.com/go-petr/ledger-api/pkg/dbpkg"

	_ "github.com/lib/pq"
)

func main() {
	config, err := configpkg.Load("./configs")
	if err != nil {
		log.Fatal().Err(err).Msg("cannot load config")
	}

	logger := middleware.CreateLogger(config)

	db, err := dbpkg.Setup(config.DBDriver, config.DBSource)
	if err != nil {
		logger.Fatal().Err(err).Msg("cannot connect to database")
	}

	if config.MigrationsPath != "" {
		if err := dbpkg.Migrate(db, config.MigrationsPath); err != nil {
			logger.Fatal().Err(err).Msg("cannot apply migrations")
		}
	}

	var publisher ledgerservice.Publisher
	if config.KafkaBrokers != "" {
		kafkaPublisher := eventpublisher.NewKafkaPublisher(config.KafkaBrokers)
		defer func() {
			if err := kafkaPublisher.Close(); err != nil {
				logger.Error().Err(err).Msg("cannot close kafka writer")
			}
		}()

		publisher = kafkaPublisher
	}

	server, err := httpserver.New(db, logger, config, publisher)
	if err != nil {
		logger.Fatal().Err(err).Msg("cannot create server")
	}

	logger.Info().Msg("LEDGER API SERVER HAS STARTED")

	err = server.Engine.Run(config.ServerAddress)
	if err != nil {
		logger.Fatal().Err(err).Msg("cannot start server")
	}
}
