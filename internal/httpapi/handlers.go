package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/tamzrod/ncm-linkd/internal/link"
)

const noLogs = "(no logs in buffer)\n"

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	writeText(w, "text/plain; charset=utf-8", s.events.RenderText(EventsLimit))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	writeText(w, "application/json", s.events.RenderStatusJSON())
}

func (s *Server) handleLogsAll(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	body := s.logs.Dump(LogDumpLimit)
	if body == "" {
		body = noLogs
	}
	writeText(w, "text/plain; charset=utf-8", body)
}

// linkView is the JSON shape of /link. Timestamps are milliseconds since
// the server started and are omitted when unset.
type linkView struct {
	State      string `json:"state"`
	Mounted    bool   `json:"mounted"`
	LinkUp     bool   `json:"link_up"`
	Suspended  bool   `json:"suspended"`
	StackReady bool   `json:"stack_ready"`
	Recovering bool   `json:"recovering"`

	MountedAtMs     *int64 `json:"mounted_at_ms,omitempty"`
	LastRxAtMs      *int64 `json:"last_rx_at_ms,omitempty"`
	LastAttemptAtMs *int64 `json:"last_attempt_at_ms,omitempty"`

	RecoveryAttempts int   `json:"recovery_attempts"`
	BackoffMs        int64 `json:"backoff_ms"`
	Exhausted        bool  `json:"exhausted"`
	FirstRx          bool  `json:"first_rx"`
	FirstTx          bool  `json:"first_tx"`

	Counters counterView `json:"counters"`
}

type counterView struct {
	RxFrames   uint64 `json:"rx_frames"`
	RxBytes    uint64 `json:"rx_bytes"`
	TxFrames   uint64 `json:"tx_frames"`
	TxBytes    uint64 `json:"tx_bytes"`
	TxFailures uint64 `json:"tx_failures"`
}

func (s *Server) viewOf(ls link.Snapshot) linkView {
	return linkView{
		State:            ls.State.String(),
		Mounted:          ls.Mounted,
		LinkUp:           ls.LinkUp,
		Suspended:        ls.Suspended,
		StackReady:       ls.StackReady,
		Recovering:       ls.Recovering,
		MountedAtMs:      s.sinceStart(ls.MountedAt),
		LastRxAtMs:       s.sinceStart(ls.LastRxAt),
		LastAttemptAtMs:  s.sinceStart(ls.LastAttemptAt),
		RecoveryAttempts: ls.RecoveryAttempts,
		BackoffMs:        ls.Backoff.Milliseconds(),
		Exhausted:        ls.Exhausted,
		FirstRx:          ls.FirstRxSeen,
		FirstTx:          ls.FirstTxSeen,
		Counters: counterView{
			RxFrames:   ls.Counters.RxFrames,
			RxBytes:    ls.Counters.RxBytes,
			TxFrames:   ls.Counters.TxFrames,
			TxBytes:    ls.Counters.TxBytes,
			TxFailures: ls.Counters.TxFailures,
		},
	}
}

func (s *Server) sinceStart(t time.Time) *int64 {
	if t.IsZero() {
		return nil
	}
	ms := t.Sub(s.start).Milliseconds()
	return &ms
}

func (s *Server) handleLink(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.viewOf(s.link.Snapshot())); err != nil {
		s.log.Debug("link response write failed", zap.Error(err))
	}
}

func allowGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func writeText(w http.ResponseWriter, contentType, body string) {
	w.Header().Set("Content-Type", contentType)
	_, _ = io.WriteString(w, body)
}
