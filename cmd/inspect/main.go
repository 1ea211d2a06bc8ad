// Command inspect is the operator tool of the conversation engine: it provisions
// accounts, mints bearer tokens and dumps event logs straight from BadgerDB.
//
//	inspect accounts
//	inspect register <user>...
//	inspect delete <user>...
//	inspect token <user>
//	inspect conversations
//	inspect events [-from N] [-to N] <conversation-id>
package main

import (
	"context"
	"conversation-engine/auth"
	"conversation-engine/domain/event"
	"conversation-engine/repositories"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/gookit/color"
	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"
)

const usage = `usage: inspect <command> [arguments]

commands:
  accounts                          list registered accounts
  register <user>...                register accounts
  delete <user>...                  mark accounts as deleted
  token <user>                      mint a bearer token
  conversations                     list conversations and their last sequence
  events [-from N] [-to N] <id>     dump the event log of a conversation`

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, color.Red.Render("Error: "+err.Error()))
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	_ = godotenv.Load()
	config, err := LoadConfig()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	color.Enable = config.Colours
	if len(args) == 0 {
		return fmt.Errorf("missing command\n%s", usage)
	}

	if args[0] == "token" {
		return mintToken(config, args[1:], out)
	}

	readOnly := args[0] == "accounts" || args[0] == "conversations" || args[0] == "events"
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithReadOnly(readOnly).
		WithBypassLockGuard(readOnly).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	ctx := context.Background()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	accounts := repositories.NewAccountRepository(db)
	events := repositories.NewEventLog(db, log)

	switch args[0] {
	case "accounts":
		return listAccounts(ctx, accounts, out)
	case "register":
		return forEachUser(args[1:], out, "registered", func(userID string) error {
			_, err := accounts.Register(ctx, userID)
			return err
		})
	case "delete":
		return forEachUser(args[1:], out, "deleted", func(userID string) error {
			return accounts.MarkDeleted(ctx, userID)
		})
	case "conversations":
		return listConversations(ctx, events, out)
	case "events":
		return dumpEvents(ctx, events, args[1:], out)
	}
	return fmt.Errorf("unknown command %q\n%s", args[0], usage)
}

func newTable(out io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(out)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	return table
}

func mintToken(config Config, args []string, out io.Writer) error {
	if len(args) != 1 {
		return fmt.Errorf("token expects exactly one user")
	}
	if config.JwtSecret == "" {
		return fmt.Errorf("JWT_SECRET is required to mint tokens")
	}
	token, err := auth.NewTokens(config.JwtSecret, config.AuthTokenDuration).Generate(args[0], []string{"user"})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, token)
	return err
}

func forEachUser(userIDs []string, out io.Writer, verb string, fn func(userID string) error) error {
	if len(userIDs) == 0 {
		return fmt.Errorf("at least one user is expected")
	}
	for _, userID := range userIDs {
		if err := fn(userID); err != nil {
			return fmt.Errorf("%s: %w", userID, err)
		}
		fmt.Fprintf(out, "%s %s\n", color.Green.Render(verb), userID)
	}
	return nil
}

func listAccounts(ctx context.Context, accounts *repositories.AccountRepository, out io.Writer) error {
	list, err := accounts.List(ctx)
	if err != nil {
		return err
	}
	table := newTable(out, "User", "Created at", "Status")
	for _, account := range list {
		status := color.Green.Render("active")
		if account.Deleted {
			status = color.Red.Render("deleted")
		}
		table.Append([]string{account.ID, account.CreatedAt.Format(time.RFC3339), status})
	}
	table.Render()
	return nil
}

func listConversations(ctx context.Context, events *repositories.EventLog, out io.Writer) error {
	ids, err := events.Conversations(ctx)
	if err != nil {
		return err
	}
	table := newTable(out, "Conversation", "Created at", "Last sequence")
	for _, id := range ids {
		createdAt, err := events.CreatedAt(ctx, id)
		if err != nil {
			return err
		}
		last, err := events.LastSequence(ctx, id)
		if err != nil {
			return err
		}
		table.Append([]string{id.String(), createdAt.Format(time.RFC3339), strconv.FormatInt(last, 10)})
	}
	table.Render()
	return nil
}

func dumpEvents(ctx context.Context, events *repositories.EventLog, args []string, out io.Writer) error {
	flags := flag.NewFlagSet("events", flag.ContinueOnError)
	from := flags.Int64("from", 1, "first sequence")
	to := flags.Int64("to", 0, "last sequence, 0 for the end of the log")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() != 1 {
		return fmt.Errorf("events expects a conversation id")
	}
	id, err := uuid.Parse(flags.Arg(0))
	if err != nil {
		return fmt.Errorf("invalid conversation id: %w", err)
	}
	if *to == 0 {
		if *to, err = events.LastSequence(ctx, id); err != nil {
			return err
		}
	}

	list, err := events.Range(ctx, id, *from, *to)
	if err != nil {
		return err
	}
	table := newTable(out, "Seq", "Time", "Type", "Actor", "Payload")
	for _, evt := range list {
		table.Append([]string{
			strconv.FormatInt(evt.Sequence, 10),
			time.Unix(evt.Timestamp, 0).UTC().Format("2006-01-02 15:04:05"),
			typeLabel(evt.Type),
			evt.Actor,
			payload(evt),
		})
	}
	table.Render()
	return nil
}

func typeLabel(t event.Type) string {
	if t.Class() == event.MessageClass {
		return color.Cyan.Render(string(t))
	}
	return color.Yellow.Render(string(t))
}

func payload(evt event.Event) string {
	bytes, err := json.Marshal(evt.Payload)
	if err != nil {
		return err.Error()
	}
	return string(bytes)
}
