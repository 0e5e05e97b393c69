package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/conorfennell/mochirev/internal/cache"
	"github.com/conorfennell/mochirev/internal/config"
	"github.com/conorfennell/mochirev/internal/deck"
	"github.com/conorfennell/mochirev/internal/domain"
	"github.com/conorfennell/mochirev/internal/dueset"
	"github.com/conorfennell/mochirev/internal/gradesync"
	"github.com/conorfennell/mochirev/internal/mochi"
	"github.com/conorfennell/mochirev/internal/session"
	"github.com/conorfennell/mochirev/internal/tui"
	"github.com/conorfennell/mochirev/internal/web"
)

const usage = `mochirev - review flashcards from the command line

Usage:
  mochirev <command> [flags]

Commands:
  review       Interactive review of due cards in the terminal
  serve        Browser-based review session
  decks        List all decks
  cards        List cards, optionally filtered by deck
  due          Show cards due for review
  create       Create a new card
  create-deck  Create a new deck
  delete       Delete a card
  search-deck  Search for a deck by name
  refresh      Refresh the local snapshot from the remote service

Run "mochirev <command> --help" for command flags.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	var err error
	switch command {
	case "review":
		err = runReview(args)
	case "serve":
		err = runServe(args)
	case "decks":
		err = runDecks(args)
	case "cards":
		err = runCards(args)
	case "due":
		err = runDue(args)
	case "create":
		err = runCreate(args)
	case "create-deck":
		err = runCreateDeck(args)
	case "delete":
		err = runDelete(args)
	case "search-deck":
		err = runSearchDeck(args)
	case "refresh":
		err = runRefresh(args)
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n%s", command, usage)
		os.Exit(1)
	}

	if err != nil {
		var ambiguous *deck.AmbiguousError
		if errors.As(err, &ambiguous) {
			fmt.Fprintf(os.Stderr, "Multiple decks match %q:\n", ambiguous.Ref)
			for _, d := range ambiguous.Candidates {
				fmt.Fprintf(os.Stderr, "  - %s (ID: %s)\n", d.Name, d.ID)
			}
			os.Exit(1)
		}
		log.Fatalf("Error: %v", err)
	}
}

// newFlags creates a flag set with the options every command shares.
func newFlags(name string) *pflag.FlagSet {
	flags := pflag.NewFlagSet(name, pflag.ExitOnError)
	flags.String("config", "", "Path to a YAML config file")
	flags.String("base-url", "", "Remote card service base URL")
	flags.String("cache-path", "", "Path to the local snapshot database")
	flags.Bool("no-cache", false, "Bypass the local snapshot")
	return flags
}

func loadConfig(flags *pflag.FlagSet, args []string) (config.Config, error) {
	if err := flags.Parse(args); err != nil {
		return config.Config{}, err
	}
	configFile, _ := flags.GetString("config")
	return config.Load(configFile, flags)
}

// snapshotSource adapts the local snapshot to the due-set resolver.
type snapshotSource struct {
	db *cache.DB
}

func (s snapshotSource) ListDueCards(ctx context.Context, deckID string) ([]domain.Card, error) {
	return s.db.ListDueCards(deckID, time.Now())
}

// openSource picks the card source for a session: the local snapshot when
// it exists and is not bypassed, the remote service otherwise. The
// returned closer is nil for the remote path.
func openSource(cfg config.Config, client *mochi.Client) (dueset.Source, func() error) {
	if cfg.NoCache {
		return client, nil
	}
	if _, err := os.Stat(cfg.CachePath); err != nil {
		return client, nil
	}
	db, err := cache.Open(cfg.CachePath)
	if err != nil {
		slog.Warn("failed to open local snapshot, falling back to remote", "path", cfg.CachePath, "error", err)
		return client, nil
	}
	slog.Info("using local snapshot", "path", cfg.CachePath)
	return snapshotSource{db: db}, db.Close
}

// resolveScope turns --deck/--deck-name flags into a due-set scope and a
// label for display.
func resolveScope(ctx context.Context, client *mochi.Client, deckID, deckName string, limit int) (dueset.Scope, string, error) {
	scope := dueset.Scope{DeckID: deckID, Limit: limit}
	label := "All Decks"

	ref := deckID
	if ref == "" {
		ref = deckName
	}
	if ref != "" {
		resolved, err := deck.Resolve(ctx, client, ref)
		if err != nil {
			return dueset.Scope{}, "", err
		}
		scope.DeckID = resolved.ID
		label = resolved.Name
	}
	return scope, label, nil
}

func runReview(args []string) error {
	flags := newFlags("review")
	deckID := flags.StringP("deck", "d", "", "Deck ID to review")
	deckName := flags.StringP("deck-name", "n", "", "Deck name to review")
	limit := flags.IntP("limit", "l", 0, "Maximum number of cards to review")
	countOnly := flags.BoolP("count", "c", false, "Show the due count only")

	cfg, err := loadConfig(flags, args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx := context.Background()
	client := mochi.NewClient(cfg.APIKey, cfg.BaseURL)

	scope, label, err := resolveScope(ctx, client, *deckID, *deckName, *limit)
	if err != nil {
		return err
	}

	source, closeSource := openSource(cfg, client)
	if closeSource != nil {
		defer closeSource()
	}
	resolver := &dueset.Resolver{Source: source}

	if *countOnly {
		n, err := resolver.Count(ctx, scope)
		if err != nil {
			return err
		}
		fmt.Printf("Due cards: %d\n", n)
		return nil
	}

	set, err := resolver.Resolve(ctx, scope)
	if err != nil {
		return err
	}

	queue := gradesync.New(client, gradesync.Options{MaxAttempts: cfg.RetryAttempts})
	sess := session.New(set, queue)
	if err := sess.Start(); err != nil {
		queue.Close()
		if errors.Is(err, session.ErrEmptySession) {
			fmt.Println("No cards due for review!")
			return nil
		}
		return err
	}

	summary, err := tui.Run(sess, label)
	if err != nil {
		queue.Close()
		return err
	}

	drainAndReport(queue, cfg.DrainTimeout, summary)
	return nil
}

func runServe(args []string) error {
	flags := newFlags("serve")
	deckID := flags.StringP("deck", "d", "", "Deck ID to review")
	deckName := flags.StringP("deck-name", "n", "", "Deck name to review")
	limit := flags.IntP("limit", "l", 0, "Maximum number of cards to review")
	port := flags.IntP("port", "p", 0, "Server port")

	cfg, err := loadConfig(flags, args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if *port != 0 {
		cfg.Port = *port
	}

	ctx := context.Background()
	client := mochi.NewClient(cfg.APIKey, cfg.BaseURL)

	scope, label, err := resolveScope(ctx, client, *deckID, *deckName, *limit)
	if err != nil {
		return err
	}

	source, closeSource := openSource(cfg, client)
	if closeSource != nil {
		defer closeSource()
	}
	resolver := &dueset.Resolver{Source: source}

	set, err := resolver.Resolve(ctx, scope)
	if err != nil {
		return err
	}

	queue := gradesync.New(client, gradesync.Options{MaxAttempts: cfg.RetryAttempts})
	sess := session.New(set, queue)
	if err := sess.Start(); err != nil {
		queue.Close()
		if errors.Is(err, session.ErrEmptySession) {
			fmt.Println("No cards due for review!")
			return nil
		}
		return err
	}

	handler, err := web.NewServer(sess, queue, label, cfg.IdleTimeout)
	if err != nil {
		queue.Close()
		return err
	}

	addr := fmt.Sprintf("localhost:%d", cfg.Port)
	server := &http.Server{Addr: addr, Handler: handler}

	errc := make(chan error, 1)
	go func() {
		slog.Info("review server running", "url", "http://"+addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)

	select {
	case <-handler.Done():
	case <-sigc:
		sess.Abort()
	case err := <-errc:
		queue.Close()
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Warn("server shutdown", "error", err)
	}

	drainAndReport(queue, cfg.DrainTimeout, sess.Summary())
	return nil
}

// drainAndReport waits for pending grades to sync, then prints the final
// session report.
func drainAndReport(queue *gradesync.Queue, drainTimeout time.Duration, summary session.Summary) {
	if queue.Pending() > 0 {
		fmt.Printf("Syncing %d pending grade(s)...\n", queue.Pending())
	}
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := queue.Drain(ctx); err != nil {
		slog.Warn("grade sync did not finish before timeout", "pending", queue.Pending())
	}
	queue.Close()

	fmt.Printf("\nReviewed: %d  Good: %d  Again: %d  Skipped: %d\n",
		summary.Presented, summary.Good, summary.Again, summary.Skipped)
	failed := queue.Failed()
	if len(failed) > 0 {
		fmt.Printf("Failed to sync %d grade(s):\n", len(failed))
		for _, f := range failed {
			fmt.Printf("  - card %s (%s): %v\n", f.Event.CardID, f.Event.Outcome, f.Err)
		}
	}
}

func runDecks(args []string) error {
	flags := newFlags("decks")
	cfg, err := loadConfig(flags, args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	client := mochi.NewClient(cfg.APIKey, cfg.BaseURL)
	decks, err := client.ListDecks(context.Background())
	if err != nil {
		return err
	}
	if len(decks) == 0 {
		fmt.Println("No decks found.")
		return nil
	}
	fmt.Printf("Found %d deck(s):\n\n", len(decks))
	for _, d := range decks {
		status := ""
		if d.Archived {
			status = " [archived]"
		}
		fmt.Printf("  - %s%s (ID: %s)\n", d.Name, status, d.ID)
	}
	return nil
}

func runCards(args []string) error {
	flags := newFlags("cards")
	deckID := flags.StringP("deck", "d", "", "Filter by deck ID")
	limit := flags.IntP("limit", "l", 10, "Number of cards to show")

	cfg, err := loadConfig(flags, args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	client := mochi.NewClient(cfg.APIKey, cfg.BaseURL)
	cards, err := client.ListCards(context.Background(), *deckID, *limit)
	if err != nil {
		return err
	}
	if len(cards) == 0 {
		fmt.Println("No cards found.")
		return nil
	}
	fmt.Printf("Found %d card(s):\n\n", len(cards))
	for _, c := range cards {
		fmt.Printf("  - %s\n    ID: %s\n\n", preview(c.Content, 80), c.ID)
	}
	return nil
}

func runDue(args []string) error {
	flags := newFlags("due")
	deckID := flags.StringP("deck", "d", "", "Filter by deck ID")
	dateStr := flags.String("date", "", "Check for a specific date (YYYY-MM-DD)")

	cfg, err := loadConfig(flags, args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	var date time.Time
	if *dateStr != "" {
		date, err = time.Parse("2006-01-02", *dateStr)
		if err != nil {
			return fmt.Errorf("invalid --date %q: expected YYYY-MM-DD", *dateStr)
		}
	}

	client := mochi.NewClient(cfg.APIKey, cfg.BaseURL)
	cards, err := client.ListDueCardsOn(context.Background(), *deckID, date)
	if err != nil {
		return err
	}
	if len(cards) == 0 {
		fmt.Println("No cards due for review!")
		return nil
	}
	fmt.Printf("Cards due: %d\n\n", len(cards))
	for i, c := range cards {
		if i == 10 {
			break
		}
		fmt.Printf("  - %s\n", preview(c.Content, 60))
	}
	return nil
}

func runCreate(args []string) error {
	flags := newFlags("create")
	deckID := flags.StringP("deck", "d", "", "Deck ID")
	deckName := flags.StringP("deck-name", "n", "", "Deck name (searches for a matching deck)")
	cardContent := flags.StringP("content", "c", "", "Card content (front---back markdown)")
	templateID := flags.StringP("template", "t", "", "Template ID")
	reverse := flags.BoolP("reverse", "r", false, "Enable reverse review")

	cfg, err := loadConfig(flags, args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if *cardContent == "" {
		return fmt.Errorf("--content is required")
	}
	if *deckID == "" && *deckName == "" {
		return fmt.Errorf("must specify --deck or --deck-name")
	}

	ctx := context.Background()
	client := mochi.NewClient(cfg.APIKey, cfg.BaseURL)

	target := *deckID
	if target == "" {
		resolved, err := deck.Resolve(ctx, client, *deckName)
		if err != nil {
			return err
		}
		target = resolved.ID
	}

	// Shells swallow newlines; accept the escaped form.
	text := strings.ReplaceAll(*cardContent, `\n`, "\n")
	card, err := client.CreateCard(ctx, target, text, *templateID, *reverse)
	if err != nil {
		return err
	}
	fmt.Printf("Created card successfully!\nID: %s\n", card.ID)
	return nil
}

func runCreateDeck(args []string) error {
	flags := newFlags("create-deck")
	name := flags.StringP("name", "n", "", "Deck name")
	parent := flags.StringP("parent", "p", "", "Parent deck ID")

	cfg, err := loadConfig(flags, args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if *name == "" {
		return fmt.Errorf("--name is required")
	}

	created, err := mochi.NewClient(cfg.APIKey, cfg.BaseURL).CreateDeck(context.Background(), *name, *parent)
	if err != nil {
		return err
	}
	fmt.Printf("Created deck: %s\nID: %s\n", created.Name, created.ID)
	return nil
}

func runDelete(args []string) error {
	flags := newFlags("delete")
	cfg, err := loadConfig(flags, args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if flags.NArg() < 1 {
		return fmt.Errorf("usage: mochirev delete <card-id>")
	}

	cardID := flags.Arg(0)
	if err := mochi.NewClient(cfg.APIKey, cfg.BaseURL).DeleteCard(context.Background(), cardID); err != nil {
		return err
	}
	fmt.Printf("Deleted card: %s\n", cardID)
	return nil
}

func runSearchDeck(args []string) error {
	flags := newFlags("search-deck")
	cfg, err := loadConfig(flags, args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if flags.NArg() < 1 {
		return fmt.Errorf("usage: mochirev search-deck <name>")
	}

	found, err := deck.Resolve(context.Background(), mochi.NewClient(cfg.APIKey, cfg.BaseURL), flags.Arg(0))
	if err != nil {
		return err
	}
	fmt.Printf("Found: %s\nID: %s\n", found.Name, found.ID)
	return nil
}

func runRefresh(args []string) error {
	flags := newFlags("refresh")
	cfg, err := loadConfig(flags, args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx := context.Background()
	client := mochi.NewClient(cfg.APIKey, cfg.BaseURL)

	decks, err := client.ListDecks(ctx)
	if err != nil {
		return err
	}
	cards, err := client.ListCards(ctx, "", 0)
	if err != nil {
		return err
	}

	db, err := cache.Open(cfg.CachePath)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Replace(decks, cards); err != nil {
		return err
	}
	fmt.Printf("Snapshot refreshed: %d deck(s), %d card(s).\n", len(decks), len(cards))
	return nil
}

func preview(text string, max int) string {
	oneLine := strings.ReplaceAll(text, "\n", " ")
	if len(oneLine) > max {
		return oneLine[:max] + "..."
	}
	return oneLine
}
