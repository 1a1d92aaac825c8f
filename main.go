package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"medichat/bot"
	"medichat/chat"
	"medichat/config"
	"medichat/embeddings"
	"medichat/ingestion"
	"medichat/llm"
	"medichat/session"
	"medichat/vectorstore"
)

func main() {
	logger := log.New(os.Stdout, "", log.LstdFlags)

	cfg := config.Load()
	if cfg.TelegramToken == "" {
		logger.Fatal("TELEGRAM_BOT_TOKEN is required")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	embedder, err := embeddings.NewEmbedder(cfg)
	if err != nil {
		logger.Fatalf("embedder setup: %v", err)
	}

	newStore, err := storeFactory(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("vector backend setup: %v", err)
	}

	sessions := session.NewStore(cfg.HistoryLimit)
	service := chat.NewService(
		sessions,
		embedder,
		func() (llm.Client, error) { return llm.NewClient(cfg) },
		newStore,
		chat.Config{
			Splitter:       ingestion.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap),
			RetrievalLimit: cfg.RetrievalLimit,
			RequestTimeout: cfg.RequestTimeout,
		},
		logger,
	)

	connector, err := bot.New(service, bot.Config{
		Token:       cfg.TelegramToken,
		APIURL:      cfg.TelegramAPIURL,
		PollTimeout: cfg.PollTimeout,
		UploadDir:   cfg.UploadDir,
	}, logger)
	if err != nil {
		logger.Fatalf("connector setup: %v", err)
	}

	logger.Printf("MediChat bot running (embeddings: %s/%s, llm: %s/%s, vectors: %s)",
		cfg.Embeddings.Provider, cfg.Embeddings.Model, cfg.LLM.Provider, cfg.LLM.Model, cfg.VectorBackend)

	if err := connector.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatalf("connector stopped: %v", err)
	}
	logger.Println("shutdown complete")
}

func storeFactory(ctx context.Context, cfg config.Config, logger *log.Logger) (chat.StoreFactory, error) {
	switch cfg.VectorBackend {
	case config.BackendMemory:
		return func(int64) vectorstore.Store {
			return vectorstore.NewMemoryStore()
		}, nil
	case config.BackendPostgres:
		pool, err := vectorstore.NewPostgresPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if err := vectorstore.EnsureSchema(ctx, pool, cfg.Embeddings.Dimension); err != nil {
			return nil, err
		}
		logger.Println("using pgvector backend for session indexes")
		return func(userID int64) vectorstore.Store {
			return vectorstore.NewPostgresStore(pool, sessionKey(userID))
		}, nil
	default:
		return nil, errors.New("unknown vector backend: " + cfg.VectorBackend)
	}
}

func sessionKey(userID int64) string {
	return "user_" + strconv.FormatInt(userID, 10)
}
