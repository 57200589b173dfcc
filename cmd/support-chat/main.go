package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"support-chat/contract"
	"support-chat/domain/chat"
	"support-chat/identity"
	"support-chat/internal"
	"support-chat/repositories"
	"support-chat/runtime"
	"support-chat/runtime/workers"
	"support-chat/search"
	"support-chat/services"
	"support-chat/session"
	"support-chat/ui"

	"github.com/Netflix/go-env"
	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
)

// Exit codes to provide meaningful status to the operating system or
// service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

const (
	demoStaffID    = "staff-amina"
	demoCustomerID = "customer-brian"
)

func main() {
	// The main function acts as a thin wrapper.
	// Its only responsibility is to call run() and handle the OS exit code.
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "support-chat terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run initializes all components, manages the process lifecycle, and
// centralizes error reporting, so every defer (database close, index
// flush) executes before the program exits.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()

	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if err := internal.Validate(config); err != nil {
		return exitConfig, fmt.Errorf("config validation: %w", err)
	}
	mask, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return exitConfig, err
	}

	logger := internal.GetLoggerFromString(config.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Storage (BadgerDB) & search index (Bluge)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.ERROR))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	blugeWriter, err := bluge.OpenWriter(bluge.DefaultConfig(config.BlugeFilepath))
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to open bluge writer: %w", err)
	}
	defer func() {
		logger.Info("Closing Bluge...")
		_ = blugeWriter.Close()
	}()

	// 3. Live feed under supervision
	registry := runtime.NewRegistry()
	conversations := repositories.NewConversationRepository(db, logger)
	messages := repositories.NewMessageRepository(db, logger)
	feed := runtime.NewFeed(logger, registry, conversations, messages)

	supervisor := workers.NewSupervisor(logger, config.RestartInterval)
	supervisor.Add(feed)
	go supervisor.Run(ctx)
	defer supervisor.Stop()

	// 4. Services
	moderator, err := services.NewDefaultModerator(logger, mask)
	if err != nil {
		return exitRuntime, fmt.Errorf("moderation init failed: %w", err)
	}
	index := search.NewIndex(blugeWriter, logger)
	service := services.NewChatService(logger, conversations, messages, feed, &moderator, index)

	directory := identity.NewDirectory(db)
	if err := seedDirectory(directory); err != nil {
		return exitRuntime, fmt.Errorf("directory seed failed: %w", err)
	}

	// 5. Demo exchange between one customer and one staff session
	if err := demo(ctx, service, feed, directory); err != nil {
		return exitRuntime, err
	}

	logger.Info("Running, Ctrl-C to stop")
	<-ctx.Done()
	return exitOK, nil
}

func seedDirectory(directory contract.IIdentityDirectory) error {
	if err := directory.Put(demoStaffID, chat.Identity{
		DisplayName: "Amina (support)",
		Role:        chat.RoleStaff,
	}); err != nil {
		return err
	}
	return directory.Put(demoCustomerID, chat.Identity{
		DisplayName: "Brian",
		Role:        chat.RoleCustomer,
	})
}

// demo signs in both parties, lets the customer ask a question and the
// staff member answer it, and leaves both sessions live on screen.
func demo(ctx context.Context, service services.IChatService,
	feed contract.IFeed, directory contract.IIdentityDirectory) error {
	out := os.Stdout
	quiet := internal.GetLoggerFromString("WARN")

	customer := session.NewController(quiet, demoCustomerID, service, feed,
		directory, ui.NewConsoleNotifier(out, true),
		ui.NewConsoleRenderer(out, demoCustomerID))
	staff := session.NewController(quiet, demoStaffID, service, feed,
		directory, ui.NewConsoleNotifier(out, true),
		ui.NewConsoleRenderer(out, demoStaffID))

	if err := customer.Start(ctx); err != nil {
		return err
	}
	if err := staff.Start(ctx); err != nil {
		return err
	}

	if err := customer.StartConversationWith(ctx, demoStaffID); err != nil {
		return err
	}
	customer.TypeInput("Hi! Is the Serengeti tour still available in June?")
	customer.Send(ctx)

	// Let the feed deliver before the reply.
	time.Sleep(300 * time.Millisecond)

	entries := staff.Entries()
	if len(entries) > 0 {
		if err := staff.Open(ctx, entries[0].Conversation.ID); err != nil {
			return err
		}
		staff.TypeInput("Hello Brian, yes it is - June 12 to 19.")
		staff.Send(ctx)
	}
	time.Sleep(300 * time.Millisecond)
	return nil
}
