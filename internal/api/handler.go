package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/RichardoC/libelnet-chat/internal/config"
	"github.com/RichardoC/libelnet-chat/internal/llm"
	"github.com/RichardoC/libelnet-chat/internal/metrics"
	"github.com/RichardoC/libelnet-chat/internal/models"
	"github.com/RichardoC/libelnet-chat/internal/ratelimit"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ChatService is the provider side of the relay.
type ChatService interface {
	Stream(ctx context.Context, msgs []models.WireMessage, onFragment func(string) error) error
	Probe(ctx context.Context) (llm.ProbeResult, error)
	Model() string
}

type Handler struct {
	cfg     config.Config
	llm     ChatService
	limiter *ratelimit.Bucket
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

func NewHandler(cfg config.Config, chat ChatService, limiter *ratelimit.Bucket, m *metrics.Metrics, logger *zap.Logger) *Handler {
	return &Handler{
		cfg:     cfg,
		llm:     chat,
		limiter: limiter,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

// HandleChat validates the conversation, takes one rate-limit token and
// relays the provider's reply fragment by fragment.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()
	w.Header().Set("X-Request-Id", requestID)
	logger := h.logger.With(zap.String("requestId", requestID))

	if h.cfg.OpenAI.APIKey == "" {
		h.writeError(w, logger, requestID, &Error{Kind: KindConfig, Message: "OpenAI API key is not configured"})
		return
	}

	msgs, err := decodeChatRequest(http.MaxBytesReader(w, r.Body, h.cfg.Security.MaxRequestBytes))
	if err != nil {
		h.writeError(w, logger, requestID, err)
		return
	}

	remaining := h.limiter.TryRemove(1)
	h.metrics.TokensRemaining.Set(float64(max(remaining, 0)))
	h.setRateLimitHeaders(w, remaining)
	if remaining < 0 {
		h.metrics.RateLimitedTotal.Inc()
		h.writeError(w, logger, requestID, rateLimitError())
		return
	}

	h.metrics.StreamsInFlight.Inc()
	defer h.metrics.StreamsInFlight.Dec()

	start := h.now()
	sw := newStreamWriter(w, h.metrics.FragmentsTotal.Inc)
	err = h.llm.Stream(r.Context(), msgs, sw.write)
	if err != nil {
		if errors.Is(err, context.Canceled) && r.Context().Err() != nil {
			logger.Info("Client went away during completion",
				zap.Int("fragments", sw.fragments),
				zap.Duration("duration", h.now().Sub(start)))
			return
		}
		if !sw.started {
			h.metrics.UpstreamErrors.WithLabelValues("before_stream").Inc()
			h.writeError(w, logger, requestID, upstreamError(err))
			return
		}
		// Headers are gone; tearing the connection down is the only way to
		// tell the client the body is incomplete.
		h.metrics.UpstreamErrors.WithLabelValues("mid_stream").Inc()
		logger.Error("Completion stream interrupted",
			zap.Error(err),
			zap.Int("fragments", sw.fragments))
		panic(http.ErrAbortHandler)
	}
	if !sw.started {
		sw.start()
	}

	logger.Info("Completion relayed",
		zap.Int("messages", len(msgs)),
		zap.Int("fragments", sw.fragments),
		zap.Duration("duration", h.now().Sub(start)))
}

type configCheckResponse struct {
	Environment environmentInfo `json:"environment"`
	Config      configInfo      `json:"config"`
	Timestamp   string          `json:"timestamp"`
}

type environmentInfo struct {
	AppEnv       string `json:"appEnv"`
	IsProduction bool   `json:"isProduction"`
}

type configInfo struct {
	HasAPIKey    bool   `json:"hasApiKey"`
	APIKeyLength int    `json:"apiKeyLength"`
	HasOrgID     bool   `json:"hasOrgId"`
	Model        string `json:"model"`
}

// ConfigCheck reports whether the provider configuration is present. It
// never reveals the values themselves.
func (h *Handler) ConfigCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, configCheckResponse{
		Environment: environmentInfo{
			AppEnv:       h.cfg.Env,
			IsProduction: h.cfg.IsProduction(),
		},
		Config: configInfo{
			HasAPIKey:    h.cfg.OpenAI.APIKey != "",
			APIKeyLength: len(h.cfg.OpenAI.APIKey),
			HasOrgID:     h.cfg.OpenAI.OrgID != "",
			Model:        h.llm.Model(),
		},
		Timestamp: h.timestamp(),
	})
}

type probeConfig struct {
	APIKeyConfigured bool   `json:"apiKeyConfigured"`
	OrgIDConfigured  bool   `json:"orgIdConfigured"`
	Environment      string `json:"environment"`
}

type probeResponse struct {
	Status   string           `json:"status"`
	Message  string           `json:"message,omitempty"`
	Error    string           `json:"error,omitempty"`
	Config   *probeConfig     `json:"config,omitempty"`
	Response *llm.ProbeResult `json:"response,omitempty"`
	Details  *probeDetails    `json:"details,omitempty"`
}

type probeDetails struct {
	Message string      `json:"message,omitempty"`
	Config  probeConfig `json:"config"`
}

// TestConnection makes one non-streaming call to the provider and reports
// the outcome. It is meant for manual troubleshooting.
func (h *Handler) TestConnection(w http.ResponseWriter, r *http.Request) {
	pc := probeConfig{
		APIKeyConfigured: h.cfg.OpenAI.APIKey != "",
		OrgIDConfigured:  h.cfg.OpenAI.OrgID != "",
		Environment:      h.cfg.Env,
	}

	res, err := h.llm.Probe(r.Context())
	if err != nil {
		h.logger.Error("OpenAI API test failed", zap.Error(err))
		resp := probeResponse{
			Status:  "error",
			Error:   "OpenAI API connection failed",
			Details: &probeDetails{Config: pc},
		}
		if !h.cfg.IsProduction() {
			resp.Error = err.Error()
			resp.Details.Message = err.Error()
		}
		writeJSON(w, http.StatusInternalServerError, resp)
		return
	}

	writeJSON(w, http.StatusOK, probeResponse{
		Status:   "success",
		Message:  "OpenAI API connection successful",
		Config:   &pc,
		Response: &res,
	})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) setRateLimitHeaders(w http.ResponseWriter, remaining int) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(h.limiter.Capacity()))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(max(remaining, 0)))
	if remaining < 0 {
		retryAfter := int(math.Ceil(h.limiter.ResetIn().Seconds()))
		w.Header().Set("Retry-After", strconv.Itoa(max(retryAfter, 1)))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, logger *zap.Logger, requestID string, err error) {
	status, msg := errorResponse(err, h.cfg.IsProduction())
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed", zap.Int("status", status), zap.Error(err))
	} else {
		logger.Warn("Request rejected", zap.Int("status", status), zap.Error(err))
	}
	writeJSON(w, status, ErrorResponse{
		Error:     msg,
		Timestamp: h.timestamp(),
		RequestID: requestID,
	})
}

func (h *Handler) timestamp() string {
	return h.now().UTC().Format(time.RFC3339)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// streamWriter writes each fragment through to the client as soon as it
// arrives. Headers go out with the first fragment so that a provider that
// fails up front can still be answered with a JSON error.
type streamWriter struct {
	w          http.ResponseWriter
	rc         *http.ResponseController
	onFragment func()
	started    bool
	fragments  int
}

func newStreamWriter(w http.ResponseWriter, onFragment func()) *streamWriter {
	return &streamWriter{w: w, rc: http.NewResponseController(w), onFragment: onFragment}
}

func (s *streamWriter) start() {
	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream; charset=utf-8")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	s.w.WriteHeader(http.StatusOK)
	s.started = true
}

func (s *streamWriter) write(fragment string) error {
	if !s.started {
		s.start()
	}
	if _, err := io.WriteString(s.w, fragment); err != nil {
		return err
	}
	s.fragments++
	s.onFragment()
	if err := s.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	return nil
}
