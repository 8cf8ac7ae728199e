package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/umarallure/AI-Expense-Tracker-sub000/internal/category"
	"github.com/umarallure/AI-Expense-Tracker-sub000/internal/chunk"
	"github.com/umarallure/AI-Expense-Tracker-sub000/internal/classify"
	"github.com/umarallure/AI-Expense-Tracker-sub000/internal/config"
	"github.com/umarallure/AI-Expense-Tracker-sub000/internal/extract"
	"github.com/umarallure/AI-Expense-Tracker-sub000/internal/ledger"
	"github.com/umarallure/AI-Expense-Tracker-sub000/internal/llm"
	"github.com/umarallure/AI-Expense-Tracker-sub000/internal/pipeline"
	"github.com/umarallure/AI-Expense-Tracker-sub000/internal/storage"
	"github.com/umarallure/AI-Expense-Tracker-sub000/internal/store"
	"github.com/umarallure/AI-Expense-Tracker-sub000/internal/txn"
)

func main() {
	cfg := config.Load()
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	useMemory := os.Getenv("USE_MEMORY_STORE") == "true" || cfg.Environment == "local"

	var st store.Store
	var objects storage.ObjectStore

	if useMemory {
		log.Println("Using in-memory store and object storage for local development")
		st = store.NewMemoryStore()
		objects = storage.NewMemoryObjectStore()
	} else {
		pg, err := store.NewPostgresStore(ctx, cfg.DatabaseURL, cfg.DBPoolMin, cfg.DBPoolMax)
		if err != nil {
			log.Fatalf("Failed to connect to Postgres: %v", err)
		}
		defer pg.Close()
		st = pg

		gcs, err := storage.NewGCSStore(ctx)
		if err != nil {
			log.Fatalf("Failed to create GCS client: %v", err)
		}
		objects = gcs
	}

	processor := extract.NewProcessor(
		extract.NewPDFExtractor(),
		extract.NewImageExtractor(cfg.OCRWorkers),
		extract.NewSpreadsheetExtractor(),
	)

	resolver := category.NewResolver(st)
	creator := txn.NewCreator(st, resolver, cfg.ConfidenceThreshold)
	ledgerSvc := ledger.NewService(st)

	client := llm.NewHTTPClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel)
	extractor := llm.NewExtractor(client)

	orchestrator := &pipeline.Orchestrator{
		Store:           st,
		Objects:         objects,
		Bucket:          cfg.StorageBucket,
		Processor:       processor,
		Classifier:      classify.New(),
		Chunker:         chunk.New(cfg.MaxChunkSize, cfg.ChunkOverlap, cfg.MaxTransactionsChunk),
		Resolver:        resolver,
		Extractor:       extractor,
		Creator:         creator,
		Ledger:          ledgerSvc,
		DocumentTimeout: cfg.DocumentTimeout,

		ClassifierConfidenceThreshold: cfg.ClassifierThreshold,
	}

	pool := pipeline.NewPool(orchestrator, cfg.WorkerPoolSize)
	pool.Start(ctx)

	sweeper := pipeline.NewSweeper(st, cfg.StaleProcessingSweep, cfg.StaleProcessingMaxAge)
	go sweeper.Run(ctx)

	log.Printf("%s %s worker started (pool=%d, model=%s)", cfg.AppName, cfg.AppVersion, cfg.WorkerPoolSize, cfg.LLMModel)

	go pollPending(ctx, st, pool)

	<-ctx.Done()
	log.Println("Shutting down, draining worker pool")
	pool.Stop()
}

// pollPending feeds pending documents into the pool. The upload surface
// lives in another service; this worker discovers work through the store.
// The in-flight set keeps a document from being enqueued twice while it sits
// in the queue across polls.
func pollPending(ctx context.Context, st store.Store, pool *pipeline.Pool) {
	inFlight := make(map[string]bool)
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			docs, err := st.ListPendingDocuments(ctx, 100)
			if err != nil {
				log.Printf("[worker] poll failed: %v", err)
				continue
			}
			pending := make(map[string]bool, len(docs))
			for _, doc := range docs {
				pending[doc.ID] = true
				if inFlight[doc.ID] {
					continue
				}
				if pool.Enqueue(ctx, doc.ID) {
					inFlight[doc.ID] = true
				}
			}
			for id := range inFlight {
				if !pending[id] {
					delete(inFlight, id)
				}
			}
		}
	}
}
