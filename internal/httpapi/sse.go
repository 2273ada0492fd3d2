package httpapi

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tamzrod/ncm-linkd/internal/logstream"
)

const (
	sseConnected = ": ncmlinkd log stream connected\n\n"
	sseKeepalive = ": keepalive\n\n"
)

// handleLogs streams new log lines as Server-Sent Events until the client
// goes away. Each stream holds one logstream reader slot.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}

	id, err := s.logs.AllocReader()
	if err != nil {
		if errors.Is(err, logstream.ErrNoReaderSlot) {
			http.Error(w, fmt.Sprintf("Too many log clients (max %d)", s.logs.MaxReaders()), http.StatusServiceUnavailable)
			return
		}
		http.Error(w, "log stream busy", http.StatusServiceUnavailable)
		return
	}
	defer s.logs.FreeReader(id)

	streamID := uuid.NewString()
	log := s.log.With(zap.String("stream", streamID))

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("X-Stream-Id", streamID)
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	flush := func() {
		if flusher != nil {
			flusher.Flush()
		}
	}

	if _, err := io.WriteString(w, sseConnected); err != nil {
		return
	}
	flush()
	log.Info("log stream opened", zap.Int("reader", int(id)))
	defer log.Info("log stream closed")

	ctx := r.Context()
	ticker := s.clock.Ticker(s.opts.SSEPoll)
	defer ticker.Stop()

	idle := 0
	for {
		sent := 0
		for {
			line, ok := s.logs.Next(id)
			if !ok {
				break
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", line); err != nil {
				return
			}
			sent++
		}

		if sent > 0 {
			idle = 0
			flush()
		} else if idle++; idle >= s.opts.KeepalivePolls {
			if _, err := io.WriteString(w, sseKeepalive); err != nil {
				return
			}
			idle = 0
			flush()
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
