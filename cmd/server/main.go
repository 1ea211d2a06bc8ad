package main

import (
	"context"
	"conversation-engine/auth"
	"conversation-engine/contract"
	"conversation-engine/infrastructure/grpc/server"
	"conversation-engine/infrastructure/nats"
	"conversation-engine/infrastructure/redis"
	"conversation-engine/internal"
	"conversation-engine/moderation"
	"conversation-engine/repositories"
	"conversation-engine/runtime"
	"conversation-engine/runtime/workers"
	"conversation-engine/services"
	"conversation-engine/sink"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"google.golang.org/grpc"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, manages the server lifecycle, and centralizes error reporting.
// Returning instead of exiting lets every deferred close run before the process ends.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Storage: BadgerDB for the event log, accounts and read markers, Bluge for search
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	writer, err := bluge.OpenWriter(bluge.DefaultConfig(config.BlugeFilepath))
	if err != nil {
		return fmt.Errorf("search index opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing Bluge index...")
		_ = writer.Close()
	}()

	events := repositories.NewEventLog(db, log)
	accounts := repositories.NewAccountRepository(db)
	markers := repositories.NewReadMarkerRepository(db, log)
	index := repositories.NewSearchIndex(writer, log)

	// 3. Fan-out: live sessions, search index and, optionally, NATS
	registry := runtime.NewRegistry()
	fanout := workers.NewEventFanout(log, registry, config.BufferSize, config.SinkTimeout).
		Add(sink.NewSearchSink(index, log))

	if config.NatsURL != "" {
		client, err := nats.NewClient(nats.Config{
			URL:           config.NatsURL,
			MaxReconnects: config.NatsMaxReconnects,
			ReconnectWait: config.NatsReconnectWait,
		}, log)
		if err != nil {
			return fmt.Errorf("nats connection failed: %w", err)
		}
		defer client.Close()
		fanout.Add(sink.NewNatsSink(client, config.NatsSubjectPrefix, log))
		log.Info("Publishing events to NATS", "url", config.NatsURL, "prefix", config.NatsSubjectPrefix)
	}

	limiter, closeLimiter := typingLimiter(config, log)
	defer closeLimiter()

	// 4. Engine
	engine := runtime.NewEngine(log, events, accounts, markers, limiter, fanout).WithSearchIndex(index)
	if config.CensoredWordsDir != "" {
		moderator, err := newModerator(config, log)
		if err != nil {
			return err
		}
		engine.WithModerator(moderator)
	}

	// 5. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err = engine.Restore(ctx); err != nil {
		return fmt.Errorf("engine failed to restore: %w", err)
	}

	sup := workers.NewSupervisor(log, config.RestartInterval)
	sup.Add(fanout, workers.NewHealthWorker(log, []workers.NamedChannel{fanout.Channel()}, config.MetricInterval))
	supervised := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(supervised)
	}()

	// 6. gRPC Server Setup
	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", address, err)
	}

	interceptor := auth.NewInterceptor(auth.NewTokens(config.JwtSecret, config.AuthTokenDuration))
	s := grpc.NewServer(
		grpc.UnaryInterceptor(interceptor.Unary),
		grpc.StreamInterceptor(interceptor.Stream),
	)
	service := services.NewConversationService(engine, runtime.NewRetransmission(log, engine, events))
	server.RegisterConversationServiceServer(s,
		server.NewConversationServer(log, service, registry, config.ConnectionBufferSize, config.DeliveryTimeout))

	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting gRPC server", "address", address, "at", time.Now().UTC())
		if err := s.Serve(listener); err != nil && err != grpc.ErrServerStopped {
			errChan <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()

	// 7. Wait for Stop or Error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		return err
	}

	// 8. Final Cleanup
	s.GracefulStop()
	sup.Stop()
	<-supervised
	log.Info("Program stopped cleanly", "restarts", sup.Restarts())

	return nil
}

func typingLimiter(config internal.Config, log *slog.Logger) (contract.TypingLimiter, func()) {
	if config.RedisAddr == "" {
		return runtime.NewTypingLimiter(config.TypingCooldown, nil), func() {}
	}
	rdb := redis.NewClient(config.RedisAddr, config.RedisPassword, config.RedisDB)
	log.Info("Sharing typing cooldown through Redis", "address", config.RedisAddr)
	return redis.NewTypingLimiter(rdb, config.TypingCooldown), func() { _ = rdb.Close() }
}

func newModerator(config internal.Config, log *slog.Logger) (contract.Moderator, error) {
	char, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return nil, err
	}
	data, err := moderation.NewCensoredLoader(os.DirFS(config.CensoredWordsDir)).LoadAll(".")
	if err != nil {
		return nil, fmt.Errorf("censored words loading failed: %w", err)
	}
	moderator, err := moderation.NewModerator(data.Words, char, log)
	if err != nil {
		return nil, err
	}
	log.Info("Moderation enabled", "words", len(data.Words), "languages", data.Languages)
	return moderator, nil
}
