package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"objrelay/internal/config"
	"objrelay/internal/objstore"
	"objrelay/internal/relay"

	"github.com/chzyer/readline"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.ValidateController(); err != nil {
		log.Fatalf("config: %v", err)
	}

	store, err := objstore.New(storeConfig(cfg))
	if err != nil {
		log.Fatalf("oss: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ctrl := relay.NewController(store, relay.Options{
		Channels:      cfg.ChannelCount,
		TTL:           cfg.CapabilityTTL(),
		RefreshMargin: cfg.RefreshMargin(),
		Interval:      cfg.PollInterval(),
		OnSession: func(sessionID string) {
			log.Printf("session %s established", sessionID)
		},
		OnResult: func(r relay.Result) {
			log.Printf("message from %s\n%s", r.SessionID, r.Output)
		},
	})

	log.Printf("resetting sessions and initializing %d channels", cfg.ChannelCount)
	if err := ctrl.Reset(ctx); err != nil {
		// Partial failures heal on the next rotation.
		log.Printf("reset: %v", err)
	}
	log.Printf("channels initialized")

	g, ctx := errgroup.WithContext(ctx)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g.Go(func() error {
		return ctrl.Run(ctx)
	})
	g.Go(func() error {
		// Leaving the prompt shuts the poll loop down within one tick.
		defer cancel()
		return prompt(ctx, ctrl)
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("controller: %v", err)
	}
	log.Printf("exiting")
}

func storeConfig(cfg config.Config) objstore.Config {
	return objstore.Config{
		Provider:        cfg.OSSProvider,
		Endpoint:        cfg.OSSEndpoint,
		Bucket:          cfg.OSSBucket,
		BasePrefix:      cfg.OSSBasePrefix,
		AccessKeyID:     cfg.OSSAccessKeyID,
		AccessKeySecret: cfg.OSSAccessKeySecret,
		LocalDir:        cfg.OSSLocalDir,
		LocalGatewayURL: cfg.LocalGatewayURL,
		LocalSigningKey: cfg.LocalSigningKey,
	}
}

// prompt reads one command per line and broadcasts it to every session.
func prompt(ctx context.Context, ctrl *relay.Controller) error {
	homeDir, _ := os.UserHomeDir()
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "command> ",
		HistoryFile:     filepath.Join(homeDir, ".objrelay-history"),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		UniqueEditLine:  true,

		Stdin:  readline.NewCancelableStdin(os.Stdin),
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize readline: %w", err)
	}
	defer rl.Close()
	log.SetOutput(rl.Stderr())

	go func() {
		<-ctx.Done()
		_ = rl.Close()
	}()

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if len(line) == 0 {
				return nil
			}
			continue
		}
		if errors.Is(err, io.EOF) || ctx.Err() != nil {
			return nil
		}
		if err != nil {
			return err
		}

		command := strings.TrimSpace(line)
		if command == "" {
			continue
		}
		if command == "exit" || command == "quit" {
			return nil
		}

		n, err := ctrl.SendCommand(ctx, command)
		if err != nil {
			log.Printf("send command: %v", err)
		}
		log.Printf("command sent to %d sessions", n)
	}
}
