package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/yungbote/biopath-backend/internal/app"
	datagraph "github.com/yungbote/biopath-backend/internal/data/graph"
	"github.com/yungbote/biopath-backend/internal/data/db"
	"github.com/yungbote/biopath-backend/internal/data/repos"
	"github.com/yungbote/biopath-backend/internal/ingestion"
	pathwaymod "github.com/yungbote/biopath-backend/internal/modules/pathway"
	"github.com/yungbote/biopath-backend/internal/ontology"
	"github.com/yungbote/biopath-backend/internal/platform/gemini"
	"github.com/yungbote/biopath-backend/internal/platform/logger"
	"github.com/yungbote/biopath-backend/internal/platform/neo4jdb"
	"github.com/yungbote/biopath-backend/internal/platform/redisdb"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to the YAML config file")
		importPath = flag.String("import", "", "TSV/CSV interaction file to load before running")
		fromStage  = flag.String("from", "", "first stage to run")
		toStage    = flag.String("to", "", "last stage to run")
		resume     = flag.Bool("resume", false, "reload completed coarse batches from the ledger")
		runOnly    = flag.Bool("import-only", false, "import interactions and exit")
	)
	flag.Parse()

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

	cfg, err := app.Load(*configPath)
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
	thePG := postgresService.DB()
	all := repos.NewAll(thePG, log)

	ctx := context.Background()

	if *importPath != "" {
		importer := ingestion.NewImporter(log, all.Interaction)
		n, err := importer.ImportFile(ctx, *importPath)
		if err != nil {
			log.Fatal("Interaction import failed", "error", err)
		}
		log.Info("Interactions imported", "rows", n)
		if *runOnly {
			return
		}
	}

	ai, err := gemini.NewClient(log)
	if err != nil {
		log.Fatal("Gemini client init failed", "error", err)
	}

	rdb, err := redisdb.NewFromEnv(log)
	if err != nil {
		log.Warn("Redis init failed, ontology cache disabled", "error", err)
	}
	onto := ontology.New(log, rdb)

	neoClient, err := neo4jdb.NewFromEnv(log)
	if err != nil {
		log.Warn("Neo4j init failed, graph mirror disabled", "error", err)
	}
	var mirror *datagraph.PathwayGraph
	if neoClient != nil {
		mirror = datagraph.NewPathwayGraph(neoClient, log)
		defer neoClient.Close(ctx)
	}

	pipeline, err := pathwaymod.NewPipeline(log, cfg, ai, all, onto, mirror)
	if err != nil {
		log.Fatal("Pipeline init failed", "error", err)
	}

	report, err := pipeline.Run(ctx, pathwaymod.RunOptions{
		FromStage: *fromStage,
		ToStage:   *toStage,
		Resume:    *resume,
	})
	if report != nil {
		for _, s := range report.Stages {
			if s.Skipped {
				continue
			}
			log.Info("Stage finished", "stage", s.Stage, "duration", s.Duration.String(), "detail", s.Detail)
		}
		if report.Tree != "" {
			fmt.Println(report.Tree)
		}
	}
	if err != nil {
		log.Fatal("Pipeline run failed", "error", err)
	}
}
