package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/RichardoC/libelnet-chat/internal/client"
	"github.com/RichardoC/libelnet-chat/internal/db"
	"github.com/RichardoC/libelnet-chat/internal/models"
	"go.uber.org/zap"
)

var (
	serverURL  = flag.String("server", "http://localhost:8100", "relay base URL")
	dbPath     = flag.String("db", "conversations.db", "local conversation store")
	timeout    = flag.Duration("timeout", client.DefaultTimeout, "wait for the relay to start answering")
	retries    = flag.Int("retries", client.DefaultMaxAttempts, "attempts per message")
	retryDelay = flag.Duration("retry-delay", client.DefaultRetryDelay, "delay between attempts")
	verbose    = flag.Bool("v", false, "log retries to stderr")
)

func main() {
	flag.Parse()

	logger := zap.NewNop()
	if *verbose {
		logger, _ = zap.NewDevelopment()
	}
	defer logger.Sync()

	database, err := db.New(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open %s: %v\n", *dbPath, err)
		os.Exit(1)
	}
	defer database.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := client.New(client.Config{
		BaseURL:     *serverURL,
		Timeout:     *timeout,
		MaxAttempts: *retries,
		RetryDelay:  *retryDelay,
	}, logger)

	app := &chatApp{client: c, store: database, reader: bufio.NewReader(os.Stdin)}
	if err := app.run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Goodbye!")
}

type chatApp struct {
	client  *client.Client
	store   *db.Database
	reader  *bufio.Reader
	session *client.Session
	shown   string
}

func (a *chatApp) run(ctx context.Context) error {
	fmt.Println("LibelNet AI support chat")
	fmt.Println("Commands: /new, /list, /open <id>, /delete <id>, /quit")

	if err := a.resumeLatest(ctx); err != nil {
		return err
	}

	for {
		line, err := a.prompt("You: ")
		if err != nil {
			return nil
		}

		switch cmd, arg, _ := strings.Cut(line, " "); cmd {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/new":
			a.open(models.NewConversation(newConversationID(), time.Now()))
		case "/list":
			a.list(ctx)
		case "/open":
			conv, err := a.store.GetConversation(ctx, strings.TrimSpace(arg))
			if err != nil {
				fmt.Printf("Cannot open conversation: %v\n", err)
				continue
			}
			a.open(conv)
		case "/delete":
			a.remove(ctx, strings.TrimSpace(arg))
		default:
			a.send(ctx, line)
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (a *chatApp) prompt(label string) (string, error) {
	fmt.Print(label)
	input, err := a.reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(input), nil
}

// resumeLatest reopens the most recent conversation or starts a new one.
func (a *chatApp) resumeLatest(ctx context.Context) error {
	list, err := a.store.ListConversations(ctx)
	if err != nil {
		return fmt.Errorf("failed to list conversations: %w", err)
	}
	if len(list) == 0 {
		a.open(models.NewConversation(newConversationID(), time.Now()))
		return nil
	}
	conv, err := a.store.GetConversation(ctx, list[0].ID)
	if err != nil {
		return fmt.Errorf("failed to load conversation %s: %w", list[0].ID, err)
	}
	a.open(conv)
	return nil
}

func (a *chatApp) open(conv *models.Conversation) {
	a.session = a.client.NewSession(conv, a.store, a.onUpdate)
	fmt.Printf("\n=== %s (%s) ===\n", conv.Title, conv.ID)
	for _, msg := range conv.Messages {
		fmt.Printf("%s: %s\n", speaker(msg.Role), msg.Content)
	}
}

func (a *chatApp) list(ctx context.Context) {
	list, err := a.store.ListConversations(ctx)
	if err != nil {
		fmt.Printf("Failed to list conversations: %v\n", err)
		return
	}
	current := a.session.Conversation().ID
	for _, conv := range list {
		marker := " "
		if conv.ID == current {
			marker = "*"
		}
		fmt.Printf("%s %s  %s  %s\n", marker, conv.ID, conv.Date.Local().Format("2006-01-02 15:04"), conv.Title)
	}
}

func (a *chatApp) remove(ctx context.Context, id string) {
	if err := a.store.DeleteConversation(ctx, id); err != nil {
		fmt.Printf("Cannot delete conversation: %v\n", err)
		return
	}
	fmt.Printf("Deleted %s\n", id)
	if id == a.session.Conversation().ID {
		if err := a.resumeLatest(ctx); err != nil {
			fmt.Printf("Error: %v\n", err)
		}
	}
}

func (a *chatApp) send(ctx context.Context, line string) {
	a.shown = ""
	fmt.Print("LibelNet AI: ")
	_, err := a.session.Send(ctx, line)
	fmt.Println()
	if err != nil && !errors.Is(err, client.ErrRetriesExhausted) {
		fmt.Printf("Error: %v\n", err)
	}
}

// onUpdate prints the part of the reply not yet on screen. A reply that no
// longer extends what is shown (a retry or the apology) restarts the line.
func (a *chatApp) onUpdate(msg models.Message) {
	if !strings.HasPrefix(msg.Content, a.shown) {
		if msg.Content == client.Apology {
			fmt.Print("\n")
		} else {
			fmt.Print("\n(retrying) ")
		}
		a.shown = ""
	}
	fmt.Print(msg.Content[len(a.shown):])
	a.shown = msg.Content
}

func speaker(role models.Role) string {
	if role == models.RoleUser {
		return "You"
	}
	return "LibelNet AI"
}

func newConversationID() string {
	return strconv.FormatInt(time.Now().UnixMilli(), 10)
}
