package gateway

import (
	"context"
	"log"

	"github.com/go-chi/chi/v5/middleware"
)

func logError(ctx context.Context, msg string, err error) {
	if err == nil {
		return
	}
	if reqID := middleware.GetReqID(ctx); reqID != "" {
		log.Printf("gateway: %s (req_id=%s): %v", msg, reqID, err)
		return
	}
	log.Printf("gateway: %s: %v", msg, err)
}

func logMsg(ctx context.Context, msg string) {
	if reqID := middleware.GetReqID(ctx); reqID != "" {
		log.Printf("gateway: %s (req_id=%s)", msg, reqID)
		return
	}
	log.Printf("gateway: %s", msg)
}
