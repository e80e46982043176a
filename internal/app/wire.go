//go:build wireinject
// +build wireinject

package app

import (
	"github.com/google/wire"

	"github.com/eslsoft/chordnet/internal/infrastructure/config"
	"github.com/eslsoft/chordnet/internal/infrastructure/metrics"
	"github.com/eslsoft/chordnet/internal/infrastructure/server"
)

var configSet = wire.NewSet(
	config.Load,
)

var repositorySet = wire.NewSet(
	NewProgressRepository,
)

var engineSet = wire.NewSet(
	NewMatcher,
	NewClassifier,
	NewScheduler,
	NewWeighter,
	NewCatalog,
)

var usecaseSet = wire.NewSet(
	metrics.NewRecorder,
	NewEventPublisher,
	NewAttemptObserver,
	NewProgressUsecase,
	NewBackupService,
	NewReportWriter,
)

var serverSet = wire.NewSet(
	server.NewLogger,
	NewReminder,
	NewHTTPHandler,
	server.NewServer,
)

// Initialize builds the application container using Wire.
func Initialize() (*Container, func(), error) {
	wire.Build(
		configSet,
		repositorySet,
		engineSet,
		usecaseSet,
		serverSet,
		wire.Struct(new(Container), "*"),
	)
	return nil, nil, nil
}
