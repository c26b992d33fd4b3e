// main.go
package main

import (
	"log"

	"parking-booking/cmd"
	"parking-booking/internal/data/repository"
	"parking-booking/internal/events"
	"parking-booking/internal/gateway"
	"parking-booking/internal/lifecycle"
	"parking-booking/internal/pricing"
	"parking-booking/internal/usecase"
	"parking-booking/internal/wire"
	"parking-booking/internal/worker"
	"parking-booking/pkg/cache"
	"parking-booking/pkg/database"
	"parking-booking/pkg/mq"
	"parking-booking/pkg/utils"

	"go.uber.org/zap"
)

func main() {
	// Load config
	config, err := utils.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logger, err := utils.InitLogger(config.App)
	if err != nil {
		log.Printf("Failed to init logger: %v. Using standard log.", err)
		logger, _ = zap.NewProduction()
	}
	defer logger.Sync()

	logger.Info("Starting application",
		zap.String("app", config.App.Name),
		zap.String("port", config.App.Port),
		zap.Bool("debug", config.App.Debug),
	)

	// Connect to database
	db, err := database.InitDB(config.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	logger.Info("Database connected successfully")

	deps := usecase.Deps{
		UOW:     repository.NewUnitOfWork(db, logger),
		Repo:    repository.NewRepository(db, logger),
		Machine: lifecycle.NewMachine(config.Booking.CheckInWindow),
		Gateway: gateway.NewStripeGateway(config.Stripe.SecretKey, config.Stripe.WebhookSecret, config.Stripe.SigningSecret, logger),
		Config:  config,
		Log:     logger,
	}

	catalog, err := pricing.ParseCatalog(config.Pricing.DiscountCodes)
	if err != nil {
		logger.Fatal("Invalid discount code catalog", zap.Error(err))
	}
	deps.Pricing = pricing.NewEngine(config.Pricing.TaxRate, config.Pricing.FeeRate, catalog)

	// Cache is optional; the service reads through to postgres without it.
	redisClient, err := cache.NewRedisClient(config.Redis.URL)
	if err != nil {
		logger.Warn("Redis unavailable, running without cache", zap.Error(err))
	} else {
		defer redisClient.Close()
		deps.Cache = cache.NewRedisCache(redisClient, config.Redis.DefaultTTL, logger)
	}

	dispatcher := events.NewDispatcher(logger)
	dispatcher.Register("metrics", events.Count())
	dispatcher.Register("log", events.Log(logger))

	publisher, err := mq.NewPublisher(config.RabbitMQ.URL, config.RabbitMQ.Exchange)
	if err != nil {
		logger.Warn("RabbitMQ unavailable, booking events stay in-process", zap.Error(err))
	} else {
		defer publisher.Close()
		dispatcher.Register("amqp", events.Publish(publisher))
	}
	deps.Events = dispatcher

	// Wire all dependencies
	app := wire.Wiring(deps, config, logger)

	sweeper, err := worker.NewSweeper(app.Service.Reservation, config.Booking.SweepSchedule, config.Booking.OperationTimeout, logger)
	if err != nil {
		logger.Fatal("Invalid sweep schedule", zap.Error(err))
	}
	sweeper.Start()

	// Start server
	logger.Info("Starting HTTP server", zap.String("port", config.App.Port))

	if err := cmd.APIServer(app.Router, config.App.Port, logger, sweeper.Stop); err != nil {
		logger.Error("Server stopped with error", zap.Error(err))
	}
}
