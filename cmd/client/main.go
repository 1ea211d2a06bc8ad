package main

import (
	"context"
	"conversation-engine/domain/event"
	"conversation-engine/infrastructure/grpc/client"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/mama165/sdk-go/logs"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Exit codes for the client application.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

// Config defines the client-side environment variables.
type Config struct {
	ServerAddress string `env:"CONVERSATION_SERVER_ADDR,default=localhost:8080"`
	Token         string `env:"CONVERSATION_TOKEN,required=true"`
	LogLevel      string `env:"LOG_LEVEL,required=true"`
}

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v\n", err)
	}
	os.Exit(code)
}

// run follows the live event stream of the token's user until interrupted.
func run() (int, error) {
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := grpc.NewClient(config.ServerAddress, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return exitRuntime, fmt.Errorf("could not connect to server at %s: %w", config.ServerAddress, err)
	}
	defer func() {
		log.Info("Closing connection...")
		_ = conn.Close()
	}()

	events, err := client.NewConversationClient(conn, config.Token).Connect(ctx)
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to open stream: %w", err)
	}
	log.Info("Connected, listening (Ctrl+C to quit)", "address", config.ServerAddress)

	for {
		evt, err := events.Recv()
		if err != nil {
			// Normal exit if the user triggered a shutdown.
			if ctx.Err() != nil {
				log.Info("Stopping client...")
				return exitOK, nil
			}
			return exitRuntime, fmt.Errorf("stream error: %w", err)
		}
		fmt.Println(format(evt))
	}
}

func format(evt event.Event) string {
	at := time.Unix(evt.Timestamp, 0).Format(time.TimeOnly)
	switch p := evt.Payload.(type) {
	case event.MessageSent:
		return fmt.Sprintf("[%s] %s #%d %s: %s", at, evt.ConversationID, evt.Sequence, evt.Actor, p.Text)
	case event.Typing:
		return fmt.Sprintf("[%s] %s %s is typing...", at, evt.ConversationID, evt.Actor)
	case event.Read:
		return fmt.Sprintf("[%s] %s %s read up to #%d", at, evt.ConversationID, evt.Actor, p.Sequence)
	}
	payload, _ := json.Marshal(evt.Payload)
	return fmt.Sprintf("[%s] %s #%d %s %s %s", at, evt.ConversationID, evt.Sequence, evt.Actor, evt.Type, payload)
}
