package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/everspan/cognita/internal/queue"
	"github.com/everspan/cognita/internal/util"
	aiopenai "github.com/everspan/cognita/pkg/ai/openai"
	"github.com/everspan/cognita/pkg/cognify"
	"github.com/everspan/cognita/pkg/leaselock"
	"github.com/everspan/cognita/pkg/logger"
	"github.com/everspan/cognita/pkg/logger/console"
	"github.com/everspan/cognita/pkg/ratelimit"
	storeneo4j "github.com/everspan/cognita/pkg/store/neo4j"
	storepgvector "github.com/everspan/cognita/pkg/store/pgvector"
	storepgx "github.com/everspan/cognita/pkg/store/pgx"
)

func main() {
	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	debug := util.GetEnvBool("DEBUG", false)
	logger.Init(console.NewConsoleLogger(console.ConsoleLoggerParams{Debug: debug}))

	cfg := cognify.FromEnv()

	aiClient := aiopenai.NewClient(aiopenai.NewClientParams{
		ChatModel:  util.GetEnv("AI_CHAT_MODEL"),
		EmbedModel: util.GetEnv("AI_EMBED_MODEL"),
		Dimensions: util.GetEnvInt("AI_EMBED_DIM", 1536),
		ChatURL:    util.GetEnv("AI_CHAT_URL"),
		ChatKey:    util.GetEnv("AI_CHAT_KEY"),
		EmbedURL:   util.GetEnv("AI_EMBED_URL"),
		EmbedKey:   util.GetEnv("AI_EMBED_KEY"),
	})

	pgConfig, err := pgxpool.ParseConfig(util.GetEnv("DATABASE_URL"))
	if err != nil {
		logger.Fatal("Invalid database URL", "err", err)
	}
	pgConfig.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}
	pgConn, err := pgxpool.NewWithConfig(ctx, pgConfig)
	if err != nil {
		logger.Fatal("Unable to connect to database", "err", err)
	}
	defer pgConn.Close()

	relational := storepgx.NewRelationalStore(pgConn)
	if err := relational.EnsureSchema(ctx); err != nil {
		logger.Fatal("Failed to ensure relational schema", "err", err)
	}

	vector := storepgvector.NewVectorStore(pgConn, aiClient.Dimensions())
	if err := vector.EnsureSchema(ctx); err != nil {
		logger.Fatal("Failed to ensure vector schema", "err", err)
	}

	graphStore, err := storeneo4j.NewGraphStore(ctx, storeneo4j.NewGraphStoreParams{
		URI:      util.GetEnv("NEO4J_URI"),
		User:     util.GetEnvString("NEO4J_USER", "neo4j"),
		Password: util.GetEnv("NEO4J_PASSWORD"),
		Database: util.GetEnv("NEO4J_DATABASE"),
		Timeout:  cfg.DBDeadline,
	})
	if err != nil {
		logger.Fatal("Unable to connect to Neo4j", "err", err)
	}
	defer graphStore.Close(context.Background())
	if err := graphStore.EnsureSchema(ctx); err != nil {
		logger.Fatal("Failed to ensure graph schema", "err", err)
	}

	limiter := ratelimit.NewRegistry(
		util.GetEnvFloat("AI_REQUESTS_PER_SECOND", 10),
		util.GetEnvInt("AI_BURST", 4),
	)

	service := cognify.NewService(cognify.Service{
		Config:     cfg,
		Relational: relational,
		Graph:      graphStore,
		Vector:     vector,
		LLM:        aiClient,
		Embedder:   aiClient,
		Limiter:    limiter,
		Locks:      leaselock.New(pgConn),
	})

	conn := queue.Init()
	defer conn.Close()
	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	defer ch.Close()
	if err := queue.SetupQueues(ch); err != nil {
		logger.Fatal("Failed to set up queues", "err", err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		logger.Fatal("Failed to set QoS", "err", err)
	}

	logger.Info("[Worker] Consuming", "queue", queue.CognifyQueue)
	if err := queue.Consume(ctx, ch, service); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("Consumer stopped", "err", err)
	}
	logger.Info("[Worker] Shut down")
}
