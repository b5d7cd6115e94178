// Command objgateway serves a local object directory over HTTP with the
// access rules of a hosted bucket, for running the relay without a cloud
// account.
package main

import (
	"context"
	"crypto/ed25519"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"objrelay/internal/config"
	"objrelay/internal/gateway"
	"objrelay/internal/objstore"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.ValidateGateway(); err != nil {
		log.Fatalf("config: %v", err)
	}

	pub, err := verifyKey(cfg)
	if err != nil {
		log.Fatalf("verify key: %v", err)
	}

	// Full keys: the controller applies any base prefix before signing.
	store := objstore.NewLocalStore(cfg.OSSLocalDir, "", objstore.Signer{})

	srv := &http.Server{
		Addr: cfg.GatewayAddr,
		Handler: gateway.NewRouter(gateway.Deps{
			Store:    store,
			Verifier: objstore.Verifier{Key: pub},
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("gateway listening on %s (dir=%s)", cfg.GatewayAddr, cfg.OSSLocalDir)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func verifyKey(cfg config.Config) (ed25519.PublicKey, error) {
	if cfg.LocalVerifyKey != "" {
		return objstore.ParsePublicKey(cfg.LocalVerifyKey)
	}
	priv, err := objstore.ParsePrivateKey(cfg.LocalSigningKey)
	if err != nil {
		return nil, err
	}
	return priv.Public().(ed25519.PublicKey), nil
}
