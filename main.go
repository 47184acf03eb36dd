package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	logger "github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"botmanager/src/advisor"
	"botmanager/src/connectors"
	"botmanager/src/controller"
	"botmanager/src/database"
	"botmanager/src/executors"
	"botmanager/src/notify"
	"botmanager/src/repository"
	"botmanager/src/server"
)

var Version string

func SetupLogger() {
	levelStr := strings.ToLower(os.Getenv("LOG_LEVEL"))

	level, err := logger.ParseLevel(levelStr)
	if err != nil {
		level = logger.DebugLevel
	}

	logger.SetLevel(level)
	logger.SetFormatter(&logger.TextFormatter{
		FullTimestamp: true,
	})
}

func main() {
	SetupLogger()
	defer handlePanic()

	app := cli.NewApp()
	app.Name = "Bot Manager CMD"
	app.Usage = "The bot manager command line interface"
	app.Version = Version

	app.Commands = []cli.Command{
		serverCMD,
		schedulerCMD,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	serverCMD = cli.Command{
		Name:        "server",
		Usage:       "run the operator API with the scheduler attached",
		Action:      serverAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Serve the operator API; the scheduler starts alongside it.`,
	}
	schedulerCMD = cli.Command{
		Name:        "scheduler",
		Usage:       "run the background scheduler headless",
		Action:      schedulerAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Run the monitor, reconciler and signal loops without the API.`,
	}
)

// application holds the fully wired object graph.
type application struct {
	orchestrator *executors.Orchestrator
	executor     *controller.SignalExecutor
	positions    *repository.PositionRepository
	orders       *repository.OrderRepository
	signals      *repository.SignalRepository
}

func bootstrap() (*application, error) {
	if err := database.InitMainDB(); err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	positionRepo := repository.NewPositionRepository()
	orderRepo := repository.NewOrderRepository()
	signalRepo := repository.NewSignalRepository()
	userExchangeRepo := repository.NewUserExchangeRepository()
	userRepo := repository.NewUserRepository()
	exceptionRepo := repository.NewExceptionRepository()

	notifier := buildNotifier(userRepo)
	prices := buildPriceSource()

	manager := controller.NewPositionManager(positionRepo)
	executor := controller.NewSignalExecutor(
		signalRepo, orderRepo, userExchangeRepo, manager,
		connectors.DefaultGatewayFactory, notifier)

	advisorConfig := advisor.GetConfig()
	generator := advisor.NewClient(advisorConfig.BaseURL, advisorConfig.APIKey)

	executorConfig := executors.GetConfig()
	cooldown := buildCooldown(executorConfig)

	monitor := executors.NewPositionMonitor(
		positionRepo, orderRepo, userExchangeRepo, manager,
		connectors.DefaultGatewayFactory, prices, notifier)
	reconciler := executors.NewOrderReconciler(
		orderRepo, positionRepo, signalRepo, userExchangeRepo, manager,
		connectors.DefaultGatewayFactory, notifier)
	scheduler := executors.NewSignalScheduler(
		userExchangeRepo, positionRepo, signalRepo, executor,
		generator, cooldown, prices, notifier, executorConfig)

	orchestrator := executors.NewOrchestrator(exceptionRepo)
	orchestrator.Register(monitor, executorConfig.MonitorInterval)
	orchestrator.Register(reconciler, executorConfig.ReconcileInterval)
	orchestrator.Register(scheduler, executorConfig.SignalInterval)

	return &application{
		orchestrator: orchestrator,
		executor:     executor,
		positions:    positionRepo,
		orders:       orderRepo,
		signals:      signalRepo,
	}, nil
}

func buildNotifier(users *repository.UserRepository) notify.Notifier {
	config := notify.GetConfig()
	if config.TelegramToken == "" {
		logger.Warn("TELEGRAM_BOT_TOKEN not set, notifications go to the log only")
		return notify.NewLogNotifier()
	}
	return notify.NewTelegramNotifier(config.TelegramToken, config.TelegramChatID, users)
}

func buildPriceSource() connectors.PriceSource {
	config := connectors.GetConfig()
	rest := connectors.NewIndodaxConnector("", "", config.IndodaxBaseURL)

	if config.TickerWSURL == "" {
		return rest
	}

	stream := connectors.NewTickerStream(config.TickerWSURL, rest)
	go stream.Run(context.Background())
	return stream
}

func buildCooldown(config executors.Config) executors.CooldownTracker {
	if config.RedisAddr == "" {
		return executors.NewMemoryCooldownTracker()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.RedisAddr,
		Password: config.RedisPassword,
	})
	return executors.NewRedisCooldownTracker(client, "", 24*time.Hour)
}

func serverAction(_ *cli.Context) error {
	logger.Info("Starting server CMD")

	app, err := bootstrap()
	if err != nil {
		logger.WithError(err).Fatal("Failed to bootstrap")
	}

	app.orchestrator.Start(context.Background())
	defer app.orchestrator.Stop()

	handler := server.NewHandler(
		app.orchestrator, app.executor,
		app.positions, app.orders, app.signals)

	server.StartServer(server.GetConfig().Port, handler)
	return nil
}

func schedulerAction(_ *cli.Context) error {
	logger.Info("Starting scheduler CMD")

	app, err := bootstrap()
	if err != nil {
		logger.WithError(err).Fatal("Failed to bootstrap")
	}

	app.orchestrator.Start(context.Background())

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	app.orchestrator.Stop()
	return nil
}

func handlePanic() {
	if r := recover(); r != nil {
		logger.WithError(fmt.Errorf("%+v", r)).Error("Application botmanager panic")
	}
	//nolint
	time.Sleep(time.Second * 5)
}
