// Package server exposes the push webhook and status endpoints.
package server

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/slipway-sh/slipway/internal/config"
	"github.com/slipway-sh/slipway/internal/logging"
	"github.com/slipway-sh/slipway/internal/metrics"
	"github.com/slipway-sh/slipway/internal/state"
)

const maxPayloadBytes = 1 << 20

// Deployer triggers deployments; satisfied by pipeline.Runner.
type Deployer interface {
	Trigger(ctx context.Context, revision string)
	Busy() bool
}

// Server handles push webhooks and reports deployment status.
type Server struct {
	cfg      *config.Config
	deployer Deployer
	httpSrv  *http.Server
}

func New(cfg *config.Config, deployer Deployer) *Server {
	s := &Server{cfg: cfg, deployer: deployer}
	s.httpSrv = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the HTTP handler; split out for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/hooks/push", s.handlePush)
	mux.HandleFunc("/status", s.handleStatus)
	return mux
}

// Start blocks serving HTTP until Shutdown is called.
func (s *Server) Start() error {
	logging.Get().Info().Str("addr", s.cfg.ListenAddr).Msg("webhook listener starting")
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

// pushEvent is the subset of the forge's push payload the server reads.
type pushEvent struct {
	After string `json:"after"`
	Ref   string `json:"ref"`
}

func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	if s.cfg.WebhookSecret != "" {
		if !verifySignature(body, r.Header.Get("X-Hub-Signature-256"), s.cfg.WebhookSecret) {
			logging.Get().Warn().Str("remote", r.RemoteAddr).Msg("webhook signature verification failed")
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}
	}

	var ev pushEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	if s.cfg.Branch != "" && ev.Ref != "" && ev.Ref != "refs/heads/"+s.cfg.Branch {
		logging.Get().Info().Str("ref", ev.Ref).Msg("ignoring push for non-deployment branch")
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored", "ref": ev.Ref})
		return
	}

	logging.Get().Info().Str("revision", ev.After).Str("ref", ev.Ref).Msg("push event accepted")
	s.deployer.Trigger(context.Background(), ev.After)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "revision": ev.After})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	resp := struct {
		Busy       bool                  `json:"busy"`
		LastDeploy *state.DeployRecord   `json:"last_deploy,omitempty"`
		Stats      metrics.StatsSnapshot `json:"stats"`
	}{Busy: s.deployer.Busy(), Stats: metrics.GetSnapshot()}

	if rec, ok, err := state.Last(); err != nil {
		logging.Get().Warn().Err(err).Msg("failed to read deploy history")
	} else if ok {
		resp.LastDeploy = &rec
	}
	writeJSON(w, http.StatusOK, resp)
}

// verifySignature checks a GitHub-style sha256 HMAC header against the body.
func verifySignature(body []byte, header, secret string) bool {
	sig, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(sig))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Get().Warn().Err(err).Msg("failed to encode response")
	}
}
