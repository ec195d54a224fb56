package main

import (
	"fmt"
	"os"

	"github.com/yungbote/biopath-backend/internal/app"
	"github.com/yungbote/biopath-backend/internal/data/db"
	"github.com/yungbote/biopath-backend/internal/data/repos"
	httpserver "github.com/yungbote/biopath-backend/internal/http"
	httpH "github.com/yungbote/biopath-backend/internal/http/handlers"
	"github.com/yungbote/biopath-backend/internal/platform/envutil"
	"github.com/yungbote/biopath-backend/internal/platform/logger"
)

func main() {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	cfg, err := app.Load(os.Getenv("PATHWAY_CONFIG_PATH"))
	if err != nil {
		log.Fatal("Config load failed", "error", err)
	}

	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Fatal("Postgres init failed", "error", err)
	}
	if err := postgresService.AutoMigrateAll(); err != nil {
		log.Fatal("Postgres auto migration failed", "error", err)
	}
	all := repos.NewAll(postgresService.DB(), log)

	server := httpserver.NewServer(httpserver.RouterConfig{
		Log:            log,
		HealthHandler:  httpH.NewHealthHandler(),
		PathwayHandler: httpH.NewPathwayHandler(log, cfg, all),
	})

	addr := envutil.Str("HTTP_ADDR", ":8080")
	log.Info("HTTP server starting", "addr", addr)
	if err := server.Run(addr); err != nil {
		log.Fatal("HTTP server stopped", "error", err)
	}
}
