// Command researchserver wires configuration, logging, the outbound
// LLM/vector-store/web-search clients, the Research Graph and UDF Strategy
// Engine, and the Streaming Facade into one HTTP server with graceful
// shutdown, following the start/wait/stop lifecycle of the teacher's
// core/lynx package.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"

	"github.com/tangerg-labs/deepresearch/internal/config"
	"github.com/tangerg-labs/deepresearch/internal/llm"
	"github.com/tangerg-labs/deepresearch/internal/logging"
	"github.com/tangerg-labs/deepresearch/internal/research"
	"github.com/tangerg-labs/deepresearch/internal/retrieval"
	"github.com/tangerg-labs/deepresearch/internal/streaming"
	"github.com/tangerg-labs/deepresearch/internal/tools"
	"github.com/tangerg-labs/deepresearch/internal/udf"
	"github.com/tangerg-labs/deepresearch/internal/websearch"
)

// Version is overridable via -ldflags "-X main.Version=...".
var Version = "dev"

func main() {
	configPath := flag.String("config", "", "path to config.yaml (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}

	logger := logging.Setup(&cfg.Log)
	defer logger.Sync()

	chat := llm.NewOpenAIChat(os.Getenv("OPENAI_API_KEY"))
	embedder := llm.NewOpenAIEmbedding(os.Getenv("OPENAI_API_KEY"))

	var retriever *retrieval.Adapter
	if cfg.VectorStore.Host != "" {
		client, err := qdrant.NewClient(&qdrant.Config{
			Host:   cfg.VectorStore.Host,
			Port:   cfg.VectorStore.Port,
			APIKey: cfg.VectorStore.APIKey,
			UseTLS: cfg.VectorStore.UseTLS,
		})
		if err != nil {
			logger.Fatal("failed to connect to qdrant", zap.Error(err))
		}
		retriever = retrieval.NewAdapter(client, embedder, cfg.Models.EmbeddingModel)
	}

	var searchClient *websearch.Client
	if cfg.WebSearch.Endpoint != "" {
		timeout := time.Duration(cfg.Timeouts.WebSearchSecs) * time.Second
		searchClient = websearch.NewClient(cfg.WebSearch.Endpoint, cfg.WebSearch.APIKey, timeout)
	}

	toolLayer := tools.New(chat, retriever, searchClient, tools.Config{
		ReasoningModel:   cfg.Models.ReasoningModel,
		InstructModel:    cfg.Models.InstructModel,
		EmbeddingModel:   cfg.Models.EmbeddingModel,
		WebTopK:          cfg.Limits.WebTopK,
		RAGTopK:          cfg.Limits.RAGTopK,
		SummaryCharLimit: cfg.Limits.SummaryCharLimit,
	})

	udfEngine := udf.New(chat, cfg.Models.ReasoningModel, toolLayer, cfg.Limits.UDFMaxSteps)

	engine := research.New(chat, cfg.Models.ReasoningModel, cfg.Models.InstructModel, toolLayer, udfEngine, research.Limits{
		ReflectionLimit: cfg.Limits.ReflectionLimit,
		QueriesPerPass:  cfg.Limits.QueriesPerPass,
	})

	facade := &streaming.Facade{
		Build:             engine.Build,
		RequestDeadline:   time.Duration(cfg.Limits.RequestDeadlineSecs) * time.Second,
		KeepaliveInterval: time.Duration(cfg.Limits.KeepaliveIntervalSecs) * time.Second,
		Logger:            logger,
		Version:           Version,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/research/stream", facade.Stream)
	mux.HandleFunc("/research", facade.Research)
	mux.HandleFunc("/health", facade.Health)

	server := &http.Server{Addr: cfg.Server.Addr, Handler: mux}

	logger.Info("research server starting", zap.String("addr", cfg.Server.Addr))
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGHUP, syscall.SIGQUIT, syscall.SIGTERM, syscall.SIGINT)
	<-stop

	logger.Info("research server shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
