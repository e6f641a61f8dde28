package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/angeloszaimis/ai-gateway/internal/prompt"
	"github.com/angeloszaimis/ai-gateway/internal/provider"
)

// DefaultTimeout bounds a single outbound model call.
const DefaultTimeout = 10 * time.Second

var tracer = otel.Tracer("github.com/angeloszaimis/ai-gateway/internal/gateway")

// Result is the outcome of one model call: Ok with the raw model text, or
// Failed with an internal reason that must not be shown to clients.
type Result struct {
	Text   string
	Reason string
	OK     bool
}

func Ok(text string) Result {
	return Result{Text: text, OK: true}
}

func Failed(reason string) Result {
	return Result{Reason: reason}
}

// Service is the single choke point for calls to the external model. It
// neither retries nor consults a circuit breaker; callers decide whether a
// call may be made and how to react to a Failed result.
type Service struct {
	completer provider.Completer
	logger    *slog.Logger
	timeout   time.Duration
}

func NewService(completer provider.Completer, logger *slog.Logger, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Service{
		completer: completer,
		logger:    logger,
		timeout:   timeout,
	}
}

// Generate wraps userQuery in the secure prompt envelope and calls the model.
// cfg is forwarded untouched.
func (s *Service) Generate(ctx context.Context, userQuery, contextDescription string, cfg *provider.CallConfig) Result {
	return s.call(ctx, "generate", prompt.Build(userQuery, contextDescription), cfg)
}

// AnalyzeError asks the model for a diagnostic of the given kind.
func (s *Service) AnalyzeError(ctx context.Context, errorMessage, stackTrace string, kind prompt.AnalysisKind) Result {
	return s.call(ctx, "analyze_"+kind.String(), prompt.BuildDiagnostic(errorMessage, stackTrace, kind), nil)
}

func (s *Service) call(ctx context.Context, operation, text string, cfg *provider.CallConfig) (result Result) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ctx, span := tracer.Start(ctx, "gateway."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("ai.provider", s.completer.Name()),
			attribute.String("ai.operation", operation),
			attribute.Int("ai.prompt_length", len(text)),
		),
	)
	defer span.End()

	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			result = Failed(fmt.Sprintf("provider panic: %v", r))
		}

		if !result.OK {
			span.SetStatus(codes.Error, result.Reason)
			s.logger.Debug("Model call failed",
				slog.String("operation", operation),
				slog.String("provider", s.completer.Name()),
				slog.Duration("duration", time.Since(start)),
				slog.String("reason", result.Reason))
			return
		}

		span.SetAttributes(attribute.Int("ai.response_length", len(result.Text)))
		s.logger.Debug("Model call succeeded",
			slog.String("operation", operation),
			slog.String("provider", s.completer.Name()),
			slog.Duration("duration", time.Since(start)))
	}()

	out, err := s.completer.Complete(ctx, text, cfg)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return Failed(fmt.Sprintf("timed out after %s: %v", s.timeout, err))
		}
		return Failed(err.Error())
	}

	if out == "" {
		return Failed(provider.ErrEmptyResponse.Error())
	}

	return Ok(out)
}
