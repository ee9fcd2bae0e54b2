//go:build wireinject
// +build wireinject

package main

import (
	"github.com/google/wire"

	"github.com/yanqian/daily-advisor/internal/bootstrap"
	"github.com/yanqian/daily-advisor/internal/domain/advice"
	"github.com/yanqian/daily-advisor/internal/infra/config"
	httpiface "github.com/yanqian/daily-advisor/internal/interface/http"
	"github.com/yanqian/daily-advisor/pkg/logger"
)

var adviceSet = wire.NewSet(
	config.Load,
	logger.New,
	provideLocation,
	provideAdviceConfig,
	provideKVStore,
	provideCacheStore,
	provideSupplementGate,
	provideHealthProvider,
	provideEnvironmentGateway,
	provideAIProvider,
	advice.NewGenerator,
	advice.NewService,
)

func initializeApp() (*bootstrap.App, func(), error) {
	wire.Build(
		adviceSet,
		providePurger,
		httpiface.NewHandler,
		httpiface.NewRouter,
		bootstrap.NewApp,
	)
	return nil, nil, nil
}

func initializeAdviceService() (advice.Service, func(), error) {
	wire.Build(adviceSet)
	return nil, nil, nil
}
