package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/satchelwallet/satchel/internal/database/postgresql"
	"github.com/satchelwallet/satchel/internal/ledger"
	"github.com/satchelwallet/satchel/internal/mintclient"
	"github.com/satchelwallet/satchel/internal/reserve"
	"github.com/satchelwallet/satchel/internal/routes"
	"github.com/satchelwallet/satchel/internal/sweep"
	"github.com/satchelwallet/satchel/internal/utils"
	"golang.org/x/sync/errgroup"
)

func main() {

	logsdir, err := utils.GetLogsDirectory()
	if err != nil {
		log.Panicln("Could not get Logs directory")
	}

	err = utils.CreateDirectoryAndPath(logsdir, utils.LogFileName)
	if err != nil {
		log.Panicf("utils.CreateDirectoryAndPath(logsdir, utils.LogFileName) %+v", err)
	}

	pathToLogFile := logsdir + "/" + utils.LogFileName

	logFile, err := os.OpenFile(pathToLogFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0764)
	defer logFile.Close()
	if err != nil {
		log.Panicf("os.OpenFile(pathToLogFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0764) %+v", err)
	}

	w := io.MultiWriter(os.Stdout, logFile)

	opts := &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}

	logger := slog.New(slog.NewJSONHandler(w, opts))

	if err := godotenv.Load(".env"); err != nil {
		logger.Warn("no .env file found, using process environment")
	}

	config, err := utils.ConfigFromEnv()
	if err != nil {
		logger.Error(fmt.Sprintf("utils.ConfigFromEnv(): %+v", err))
		log.Panic()
	}

	if config.MODE == "prod" {
		gin.SetMode(gin.ReleaseMode)
		logger.Info("Running in Release mode")
	}

	ctx := context.Background()

	db, err := postgresql.DatabaseSetup(ctx, "migrations")
	defer db.Close()
	if err != nil {
		logger.Error(fmt.Sprintf("Error conecting to db %+v", err))
		log.Panic()
	}

	var client mintclient.MintClient
	switch config.MINT_CLIENT {
	case utils.FAKE_MINT:
		fake, err := mintclient.NewFakeMint()
		if err != nil {
			log.Panicf("mintclient.NewFakeMint(): %+v", err)
		}
		client = fake
		logger.Warn("Running against the in process fake mint")
	default:
		client = mintclient.NewRestClient()
	}

	walletLedger := ledger.NewLedger(db, logger)
	reserveManager := reserve.NewManager(walletLedger, db, client, logger)
	sweeper := sweep.NewSweeper(walletLedger, config.SWEEP_WINDOW, logger)

	// release anything a previous run left locked before serving
	if err := sweeper.Run(ctx); err != nil {
		logger.Error(fmt.Sprintf("startup sweep failed: %+v", err))
		log.Panic()
	}

	r := gin.Default()
	r.Use(gin.LoggerWithWriter(w))
	r.Use(cors.Default())

	routes.V1Routes(r, &routes.Wallet{
		Ledger:  walletLedger,
		Reserve: reserveManager,
		Client:  client,
		DB:      db,
		Logger:  logger,
	})

	logger.Info("wallet starting",
		slog.String("version", utils.AppVersion),
		slog.String("port", config.PORT))

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return sweeper.Start(groupCtx, config.SWEEP_INTERVAL)
	})
	group.Go(func() error {
		return reserveManager.Start(groupCtx, config.REFILL_INTERVAL)
	})
	group.Go(func() error {
		return r.Run(":" + config.PORT)
	})

	if err := group.Wait(); err != nil {
		logger.Error(fmt.Sprintf("shutting down: %+v", err))
		log.Panic()
	}
}
