package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/aussiebroadwan/gatehouse/pkg/authsdk"
	"github.com/aussiebroadwan/gatehouse/pkg/httpx"
	"github.com/aussiebroadwan/gatehouse/pkg/slogx"
)

// writeError renders err as the JSON error envelope. Anything that is not
// an *authsdk.Error is reported as Internal and its cause is only logged.
// An internal failure caused by the request deadline is reported as a
// timeout.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	e := authsdk.As(err)
	if e.Kind == authsdk.KindInternal && errors.Is(err, context.DeadlineExceeded) {
		e = authsdk.Timeout()
	}

	if e.Fatal() {
		log.Error("request failed", slog.String("code", e.Code), slog.Any("error", err))
	} else {
		log.Info("request rejected", slog.String("code", e.Code), slog.String("message", e.Message))
	}

	e.WriteError(w, slogx.RequestID(ctx))
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	httpx.WriteJSON(w, status, authsdk.MessageResponse{Message: msg})
}

// NotFoundHandler answers every unmatched route.
func NotFoundHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, authsdk.NotFound("Endpoint not found", authsdk.WithDetails(map[string]any{
			"method": r.Method,
			"url":    r.URL.Path,
		})))
	}
}
