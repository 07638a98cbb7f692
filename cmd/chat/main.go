// streamchat - terminal chat client against a streamchat-compatible server.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/ashureev/streamchat/internal/config"
	"github.com/ashureev/streamchat/internal/domain"
	"github.com/ashureev/streamchat/internal/session"
	"github.com/joho/godotenv"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	sess := session.New(session.Options{
		UserID:    cfg.UserID,
		ServerURL: cfg.ServerURL,
	})
	defer sess.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := sess.Connect(ctx); err != nil {
		slog.Error("Failed to connect", "error", err, "server", cfg.ServerURL)
		os.Exit(1)
	}

	fmt.Printf("Connected to %s as user %d\n", cfg.ServerURL, cfg.UserID)
	fmt.Println("Commands: /new [message], /join <id>, /chats, /delete <id...>, /quit")

	go printLoop(ctx, sess)

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" {
			return
		}
		if err := handleLine(ctx, sess, line); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func handleLine(ctx context.Context, sess *session.Session, line string) error {
	switch {
	case strings.HasPrefix(line, "/new"):
		return sess.CreateChat(strings.TrimSpace(strings.TrimPrefix(line, "/new")))

	case strings.HasPrefix(line, "/join "):
		id, err := strconv.ParseInt(strings.TrimSpace(strings.TrimPrefix(line, "/join ")), 10, 64)
		if err != nil {
			return fmt.Errorf("invalid chat id: %w", err)
		}
		if err := sess.JoinChat(ctx, id); err != nil {
			return err
		}
		return sess.LoadChat(ctx, id)

	case line == "/chats":
		chats, err := sess.ChatList(ctx)
		if err != nil {
			return err
		}
		for _, c := range chats {
			fmt.Printf("  %d  %s\n", c.ID, c.Title)
		}
		return nil

	case strings.HasPrefix(line, "/delete "):
		var ids []int64
		for _, field := range strings.Fields(strings.TrimPrefix(line, "/delete ")) {
			id, err := strconv.ParseInt(field, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid chat id %q: %w", field, err)
			}
			ids = append(ids, id)
		}
		return sess.DeleteChats(ctx, ids)

	default:
		return sess.SendMessage(line)
	}
}

// printLoop renders new transcript entries as they appear. An entry
// still streaming prints whatever text it has accumulated so far.
func printLoop(ctx context.Context, sess *session.Session) {
	ticker := time.NewTicker(300 * time.Millisecond)
	defer ticker.Stop()

	printed := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		entries := sess.Transcript().Entries()
		if printed > len(entries) {
			printed = 0 // transcript was replaced or cleared
		}
		for _, e := range entries[printed:] {
			printEntry(e)
		}
		printed = len(entries)
	}
}

func printEntry(e domain.Message) {
	prefix := "you"
	if e.IsAI {
		prefix = "ai"
	}
	if e.IsError {
		prefix = "err"
	}
	fmt.Printf("[%s] %s\n", prefix, e.Content)
}
