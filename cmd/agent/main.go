package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"objrelay/internal/capability"
	"objrelay/internal/config"
	"objrelay/internal/relay"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	var (
		publicBaseURL = flag.String("public-base-url", cfg.PublicBaseURL, "Base URL public objects are read from (RELAY_PUBLIC_BASE_URL)")
		channels      = flag.Int("channels", cfg.ChannelCount, "Number of rendezvous channels the controller publishes")
		shell         = flag.String("shell", "", "Run commands through this shell with -c instead of splitting on whitespace")
	)
	flag.Parse()

	cfg.PublicBaseURL = *publicBaseURL
	if err := cfg.ValidateAgent(); err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	agent := relay.NewAgent(capability.NewClient(cfg.HTTPTimeout()), relay.AgentOptions{
		PublicBaseURL: cfg.PublicBaseURL,
		Channels:      *channels,
		Interval:      cfg.PollInterval(),
		GrantTimeout:  cfg.GrantTimeout(),
		Executor:      relay.CommandExecutor{Shell: *shell},
	})
	if err := agent.Run(ctx); err != nil {
		log.Fatalf("agent: %v", err)
	}
	log.Printf("agent stopping")
}
