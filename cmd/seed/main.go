package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/Ayash-Bera/querygen/internal/cache"
	"github.com/Ayash-Bera/querygen/internal/config"
	"github.com/Ayash-Bera/querygen/internal/database"
	"github.com/Ayash-Bera/querygen/internal/migration"
	"github.com/Ayash-Bera/querygen/internal/models"
	"github.com/Ayash-Bera/querygen/internal/repository"
	"github.com/Ayash-Bera/querygen/internal/templates"
	"github.com/Ayash-Bera/querygen/pkg/utils"
	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

var (
	dryRun  = flag.Bool("dry-run", false, "List pending migrations and built-in templates without writing")
	verbose = flag.Bool("verbose", false, "Enable verbose logging")
	force   = flag.Bool("force", false, "Upsert every built-in template, overwriting edited rows")
	timeout = flag.Duration("timeout", 2*time.Minute, "Overall timeout")
)

func main() {
	flag.Parse()

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := utils.InitLogger(cfg.LogLevel)
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	}
	logger.Info("Starting schema migration and template seeding...")

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	dbManager, err := database.NewManager(&database.Config{
		DatabaseURL: cfg.Database.URL,
		LogLevel:    logger.GetLevel().String(),
	}, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize database manager")
	}
	defer dbManager.Close()

	runner := migration.NewRunner(dbManager.DB, logger)
	builtins := templates.BuiltinTemplates()

	if *dryRun {
		pending, err := runner.Pending(ctx, migration.Files())
		if err != nil {
			logger.WithError(err).Fatal("Failed to list pending migrations")
		}
		logger.WithField("pending", pending).Info("DRY RUN: Would apply migrations")
		for _, tpl := range builtins {
			logger.WithFields(logrus.Fields{
				"id":       tpl.ID,
				"type":     tpl.Type,
				"priority": tpl.Priority,
				"template": tpl.Template,
			}).Info("DRY RUN: Would seed template")
		}
		return
	}

	applied, err := runner.RunMigrations(ctx, migration.Files())
	if err != nil {
		logger.WithError(err).Fatal("Database migrations failed")
	}
	logger.WithField("applied", applied).Info("Migrations applied")

	repos := repository.NewRepositoryManager(dbManager.DB)

	if *force {
		if err := upsertAll(ctx, repos.Template, builtins, logger); err != nil {
			logger.WithError(err).Fatal("Template upsert finished with errors")
		}
		logger.WithField("templates", len(builtins)).Info("Built-in templates upserted")
		return
	}

	engine := templates.NewEngine(repos.Template, cache.NewMemoryStore(1, time.Minute, nil), logger, templates.Options{})
	seeded, err := engine.EnsureSeeded(ctx)
	if err != nil {
		logger.WithError(err).Fatal("Template seeding failed")
	}
	if seeded == 0 {
		logger.Info("Templates already present, nothing seeded (use -force to overwrite)")
		return
	}
	logger.WithField("templates", seeded).Info("Template seeding completed successfully!")
}

func upsertAll(ctx context.Context, repo models.TemplateRepository, builtins []models.QueryTemplate, logger *logrus.Logger) error {
	var result *multierror.Error
	for i := range builtins {
		tpl := builtins[i]
		if err := repo.Upsert(ctx, &tpl); err != nil {
			result = multierror.Append(result, err)
			logger.WithError(err).WithField("template", tpl.ID).Warn("Failed to upsert template")
			continue
		}
		logger.WithField("template", tpl.ID).Debug("Template upserted")
	}
	return result.ErrorOrNil()
}
