package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"golang.org/x/sync/errgroup"

	"github.com/angeloszaimis/ai-gateway/internal/gateway"
	"github.com/angeloszaimis/ai-gateway/internal/metrics"
	"github.com/angeloszaimis/ai-gateway/internal/prompt"
	"github.com/angeloszaimis/ai-gateway/internal/provider"
	"github.com/angeloszaimis/ai-gateway/pkg/circuitbreaker"
)

// MaxBodyBytes caps inbound request bodies.
const MaxBodyBytes = 64 << 10

const (
	maxPromptRunes       = 8000
	maxContextRunes      = 2000
	maxErrorMessageRunes = 4000
	maxStackTraceRunes   = 16000
)

// Messages shown to clients. Internal failure reasons are only logged.
const (
	msgUnavailable   = "AI service is temporarily unavailable, please try again later"
	msgUpstreamError = "AI service failed to process the request"
	msgInvalidBody   = "Request body must be a JSON object"
	msgInvalidInput  = "Invalid request"
	msgBodyTooLarge  = "Request body is too large"
)

var errAnalysisFailed = errors.New("analysis failed")

// Gateway is the part of gateway.Service the endpoints depend on.
type Gateway interface {
	Generate(ctx context.Context, userQuery, contextDescription string, cfg *provider.CallConfig) gateway.Result
	AnalyzeError(ctx context.Context, errorMessage, stackTrace string, kind prompt.AnalysisKind) gateway.Result
}

// AIHandler serves the AI proxy endpoints. Every call to the gateway is
// guarded by the breaker registered under service.
type AIHandler struct {
	gateway   Gateway
	registry  *circuitbreaker.Registry
	service   string
	logger    *slog.Logger
	collector *metrics.Collector
}

// NewAIHandler builds the handler. collector may be nil.
func NewAIHandler(
	gw Gateway,
	registry *circuitbreaker.Registry,
	service string,
	logger *slog.Logger,
	collector *metrics.Collector,
) *AIHandler {
	return &AIHandler{
		gateway:   gw,
		registry:  registry,
		service:   service,
		logger:    logger,
		collector: collector,
	}
}

type generateRequest struct {
	Prompt             string               `json:"prompt"`
	ContextDescription string               `json:"contextDescription"`
	Config             *provider.CallConfig `json:"config,omitempty"`
}

func (g generateRequest) Validate() error {
	return validation.ValidateStruct(&g,
		validation.Field(&g.Prompt, notBlank, validation.RuneLength(0, maxPromptRunes)),
		validation.Field(&g.ContextDescription, notBlank, validation.RuneLength(0, maxContextRunes)),
		validation.Field(&g.Config),
	)
}

type generateResponse struct {
	Text string `json:"text"`
}

type analyzeRequest struct {
	ErrorMessage string `json:"errorMessage"`
	StackTrace   string `json:"stackTrace,omitempty"`
}

func (a analyzeRequest) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.ErrorMessage, notBlank, validation.RuneLength(0, maxErrorMessageRunes)),
		validation.Field(&a.StackTrace, validation.RuneLength(0, maxStackTraceRunes)),
	)
}

type analyzeResponse struct {
	Solution string `json:"solution"`
	Location string `json:"location"`
}

type errorResponse struct {
	Message string            `json:"message"`
	Errors  validation.Errors `json:"errors,omitempty"`
}

var notBlank = validation.By(func(value interface{}) error {
	s, _ := value.(string)
	if strings.TrimSpace(s) == "" {
		return validation.NewError("validation_required", "cannot be blank")
	}
	return nil
})

// Generate handles POST /api/ai/generate.
func (h *AIHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if !h.decode(w, r, &req) {
		return
	}

	if !h.admit(r, "generate") {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Message: msgUnavailable})
		return
	}

	start := time.Now()
	result := h.gateway.Generate(detach(r.Context()), req.Prompt, req.ContextDescription, req.Config)

	if !result.OK {
		h.failed(r, "generate", start, result.Reason)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Message: msgUpstreamError})
		return
	}

	h.succeeded(r, "generate", start, result.Text)
	writeJSON(w, http.StatusOK, generateResponse{Text: result.Text})
}

// AnalyzeError handles POST /api/ai/analyze-error. Both analyses run
// concurrently; if one fails the other is cancelled and the request fails.
func (h *AIHandler) AnalyzeError(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if !h.decode(w, r, &req) {
		return
	}

	if !h.admit(r, "analyze_error") {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Message: msgUnavailable})
		return
	}

	start := time.Now()
	var resp analyzeResponse

	g, ctx := errgroup.WithContext(detach(r.Context()))
	analyze := func(kind prompt.AnalysisKind, out *string) func() error {
		return func() error {
			result := h.gateway.AnalyzeError(ctx, req.ErrorMessage, req.StackTrace, kind)
			if !result.OK {
				return fmt.Errorf("%s %w: %s", kind, errAnalysisFailed, result.Reason)
			}
			*out = result.Text
			return nil
		}
	}
	g.Go(analyze(prompt.Solution, &resp.Solution))
	g.Go(analyze(prompt.Location, &resp.Location))

	if err := g.Wait(); err != nil {
		h.failed(r, "analyze_error", start, err.Error())
		writeJSON(w, http.StatusInternalServerError, errorResponse{Message: msgUpstreamError})
		return
	}

	h.succeeded(r, "analyze_error", start, resp.Solution)
	writeJSON(w, http.StatusOK, resp)
}

// Breakers handles GET /api/ai/breakers.
func (h *AIHandler) Breakers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"breakers": h.registry.Stats()})
}

// decode reads and validates a JSON body. It writes the error response
// itself and reports whether the handler should continue.
func (h *AIHandler) decode(w http.ResponseWriter, r *http.Request, dst validation.Validatable) bool {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Message: msgBodyTooLarge})
			return false
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: msgInvalidBody})
		return false
	}

	if err := dst.Validate(); err != nil {
		var fields validation.Errors
		if !errors.As(err, &fields) {
			h.logger.Error("Request validation failed unexpectedly", slog.String("error", err.Error()))
			writeJSON(w, http.StatusBadRequest, errorResponse{Message: msgInvalidInput})
			return false
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: msgInvalidInput, Errors: fields})
		return false
	}

	return true
}

func (h *AIHandler) admit(r *http.Request, operation string) bool {
	if h.registry.AllowRequest(h.service) {
		return true
	}

	h.logger.Warn("AI call rejected, circuit open",
		slog.String("service", h.service),
		slog.String("operation", operation),
		slog.String("path", r.URL.Path))
	h.collector.Emit(metrics.MetricEvent{
		Type:      metrics.EventCircuitRejected,
		Service:   h.service,
		Operation: operation,
	})
	return false
}

func (h *AIHandler) failed(r *http.Request, operation string, start time.Time, reason string) {
	h.registry.RecordFailure(h.service)

	duration := time.Since(start)
	h.logger.Error("AI upstream call failed",
		slog.String("service", h.service),
		slog.String("operation", operation),
		slog.String("path", r.URL.Path),
		slog.Duration("duration", duration),
		slog.String("reason", reason))
	h.collector.Emit(metrics.MetricEvent{
		Type:      metrics.EventCallFailed,
		Service:   h.service,
		Operation: operation,
		Duration:  duration,
	})
}

func (h *AIHandler) succeeded(r *http.Request, operation string, start time.Time, text string) {
	h.registry.RecordSuccess(h.service)

	h.collector.Emit(metrics.MetricEvent{
		Type:      metrics.EventCallSucceeded,
		Service:   h.service,
		Operation: operation,
		Duration:  time.Since(start),
	})

	if prompt.IsPolicyRejection(text) {
		h.logger.Info("AI call returned policy rejection",
			slog.String("service", h.service),
			slog.String("operation", operation),
			slog.String("path", r.URL.Path))
		h.collector.Emit(metrics.MetricEvent{
			Type:      metrics.EventPolicyRejected,
			Service:   h.service,
			Operation: operation,
		})
	}
}

// detach keeps request values such as the trace span but drops client
// cancellation, so a caller hanging up is not counted as an upstream
// failure. The gateway timeout still bounds the call.
func detach(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
