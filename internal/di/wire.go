//go:build wireinject
// +build wireinject

package di

import (
	"OBScan/internal/domain/repository"
	"OBScan/internal/service/binance"
	"OBScan/internal/usecase"
	"OBScan/pkg/config"
	"OBScan/pkg/server"

	"github.com/google/wire"
)

var scanSet = wire.NewSet(
	// Infrastructure clients
	ProvideKafkaProducer,
	ProvideLogger,
	ProvideMetrics,
	ProvideBinanceClient,
	wire.Bind(new(repository.MarketData), new(*binance.Client)),
	ProvideBytesCache,
	ProvideResultCache,
	ProvideClickHouseClient,

	// Repositories
	ProvideDetectionStorage,
	ProvideDetectionPublisher,

	// Detection
	ProvideDetectionProcessor,
	ProvideDetector,
	ProvideScanner,
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		scanSet,

		// Background work
		ProvideScanScheduler,
		ProvideKlineWatcher,
		ProvideKafkaDetectionsHandler,
		ProvideKafkaConsumer,

		// Accounts
		ProvideUserRepository,
		ProvideTokenManager,
		ProvideAccountService,
		ProvideEntitlementPolicy,
		ProvideUserLimiter,
		ProvideHistoryUseCase,

		// HTTP
		ProvideHandlers,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return nil, nil, nil
}

// InitializeScanner builds only what a one-shot scan needs.
func InitializeScanner(cfg *config.Config) (*usecase.Scanner, func(), error) {
	wire.Build(scanSet)
	return nil, nil, nil
}
