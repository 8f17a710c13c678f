package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"time"

	"redline/internal/auth"
	"redline/internal/config"
	"redline/internal/domain/models/docsystem"
	models "redline/internal/domain/models/suggestion"
	suggestionSvc "redline/internal/domain/services/suggestion"
	"redline/internal/repository/postgres"
	postgresDocsys "redline/internal/repository/postgres/docsystem"
	postgresSuggestion "redline/internal/repository/postgres/suggestion"
	"redline/internal/service/stats"
	serviceSuggestion "redline/internal/service/suggestion"

	"github.com/joho/godotenv"
)

const demoBody = `The Academy's spires pierced the clouds, their crystalline surfaces reflecting the afternoon light in a thousand directions. Aria's breath caught as the carriage rounded the final bend.

Students in elegant robes hurried accross the courtyard, books floating beside them without visible support. This was a world Aria had only read about in dusty library books, and she had alot of questions.`

func main() {
	// Parse command-line flags
	dropTables := flag.Bool("drop-tables", false, "Drop all tables before seeding (fresh start)")
	schemaOnly := flag.Bool("schema-only", false, "Only set up schema, don't seed a demo document")
	tenantID := flag.String("tenant", "demo-tenant", "Tenant that owns the demo document")
	flag.Parse()

	// Load .env file
	_ = godotenv.Load()

	cfg := config.Load()

	// SAFETY: Prevent destructive operations in production
	if cfg.Environment == "prod" && *dropTables {
		log.Fatalf("🚫 BLOCKED: Cannot run --drop-tables in production environment")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	engine, err := config.LoadEngine(cfg.EngineConfigPath)
	if err != nil {
		log.Fatalf("Failed to load engine config: %v", err)
	}

	if *schemaOnly {
		log.Printf("🏗️  Setting up schema only (environment: %s, prefix: %s)", cfg.Environment, cfg.TablePrefix)
	} else {
		log.Printf("🌱 Seeding database (environment: %s, prefix: %s)", cfg.Environment, cfg.TablePrefix)
	}

	ctx := context.Background()
	pool, err := postgres.CreateConnectionPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	tables := postgres.NewTableNames(cfg.TablePrefix)
	txManager := postgres.NewTransactionManager(pool, logger)

	// Drop and recreate in one transaction so a failed run leaves the old schema intact
	err = txManager.ExecTx(ctx, func(ctx context.Context) error {
		db := postgres.GetExecutor(ctx, pool)
		if *dropTables {
			log.Println("🗑️  Dropping all tables...")
			if err := postgres.DropSchema(ctx, db, tables); err != nil {
				return err
			}
		}
		log.Println("📋 Ensuring database schema is up to date...")
		return postgres.EnsureSchema(ctx, db, tables)
	})
	if err != nil {
		log.Fatalf("Failed to set up schema: %v", err)
	}
	log.Println("✅ Schema ready")

	if *schemaOnly {
		return
	}

	repoConfig := &postgres.RepositoryConfig{
		Pool:   pool,
		Tables: tables,
		Logger: logger,
	}
	docRepo := postgresDocsys.NewDocumentRepository(repoConfig)
	suggestionRepo := postgresSuggestion.NewSuggestionRepository(repoConfig)

	service, err := serviceSuggestion.NewSuggestionService(docRepo, suggestionRepo, stats.NewLogSink(logger), engine, logger)
	if err != nil {
		log.Fatalf("Failed to create suggestion service: %v", err)
	}

	doc := &docsystem.Document{
		TenantID: *tenantID,
		Body:     demoBody,
		Version:  docsystem.Version{Major: 1, Minor: 0},
		Status:   docsystem.StatusDraft,
	}
	if err := docRepo.Create(ctx, doc); err != nil {
		log.Fatalf("Failed to create demo document: %v", err)
	}
	log.Printf("📝 Created demo document %s (version %s)", doc.ID, doc.Version)

	created, err := service.CreateBatch(ctx, &suggestionSvc.CreateBatchRequest{
		TenantID:    *tenantID,
		DocumentID:  doc.ID,
		Suggestions: demoCandidates(),
	})
	if err != nil {
		log.Fatalf("Failed to seed suggestions: %v", err)
	}
	log.Printf("✅ Created %d demo suggestions", created)

	if cfg.JWTSecret != "" {
		token, err := auth.IssueToken([]byte(cfg.JWTSecret), *tenantID, "seed-user", "editor", 24*time.Hour)
		if err != nil {
			log.Fatalf("Failed to issue dev token: %v", err)
		}
		log.Printf("🔑 Dev token (24h): %s", token)
	}

	log.Println("🎉 Seeding complete!")
}

// demoCandidates returns a batch that exercises overlaps, a bad hint and a
// candidate whose text is missing from the body.
func demoCandidates() []models.Candidate {
	return []models.Candidate{
		{
			StartOffset:   218,
			TextToReplace: "accross",
			ReplaceWith:   "across",
			Reason:        "Misspelling",
			Priority:      models.PriorityHigh,
			Type:          models.TypeSpelling,
		},
		{
			StartOffset:   200,
			TextToReplace: "hurried accross the courtyard",
			ReplaceWith:   "hurried across the courtyard",
			Reason:        "Misspelling in phrase",
			Priority:      models.PriorityMedium,
			Type:          models.TypeGrammar,
		},
		{
			StartOffset:   -1,
			TextToReplace: "alot",
			ReplaceWith:   "a lot",
			Reason:        "'a lot' is two words",
			Priority:      models.PriorityMedium,
			Type:          models.TypeSpelling,
		},
		{
			StartOffset:   0,
			TextToReplace: "in a thousand directions",
			ReplaceWith:   "in every direction",
			Reason:        "Tighter phrasing",
			Priority:      models.PriorityLow,
			Type:          models.TypeLLM,
		},
		{
			StartOffset:   10,
			TextToReplace: "Headmaster Vale",
			ReplaceWith:   "Headmistress Vale",
			Reason:        "Character was introduced as a woman",
			Priority:      models.PriorityHigh,
			Type:          models.TypeFact,
		},
	}
}
