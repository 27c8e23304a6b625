// Command notewatch opens a note on the relay, prints what other editors are
// typing and sends every stdin line as the note's new content.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"collabnotes-server/internal/logging"
	"collabnotes-server/pkg/notesync"

	"golang.org/x/sync/errgroup"
)

func main() {
	addr := flag.String("addr", "ws://localhost:8080/ws", "relay websocket URL")
	noteID := flag.String("note", "", "note id to open")
	level := flag.String("log-level", "warn", "log level")
	flag.Parse()

	if *noteID == "" {
		fmt.Fprintln(os.Stderr, "usage: notewatch -note <id> [-addr ws://host:port/ws]")
		os.Exit(2)
	}

	logger := logging.New(os.Stderr, *level, "text")
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := notesync.New(*addr, notesync.WithLogger(logger))
	if err := client.Open(*noteID); err != nil {
		slog.Error("failed to open note", "noteId", *noteID, "error", err)
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return client.Run(gctx)
	})

	g.Go(func() error {
		for u := range client.Updates() {
			fmt.Printf("[%s is being edited] %s\n", u.NoteID, u.Content)
		}
		return nil
	})

	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			if err := client.Emit(scanner.Text()); err != nil {
				slog.Warn("update not sent", "error", err)
			}
		}
		client.Close()
	}()

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("notewatch stopped", "error", err)
		os.Exit(1)
	}
}
