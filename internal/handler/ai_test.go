package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/ai-gateway/internal/gateway"
	"github.com/angeloszaimis/ai-gateway/internal/handler"
	"github.com/angeloszaimis/ai-gateway/internal/prompt"
	"github.com/angeloszaimis/ai-gateway/pkg/circuitbreaker"
)

const service = "gemini-proxy"

var _ = Describe("AIHandler", func() {
	var (
		gw       *fakeGateway
		registry *circuitbreaker.Registry
		logs     *bytes.Buffer
		h        *handler.AIHandler
	)

	post := func(serve http.HandlerFunc, body string) (*httptest.ResponseRecorder, map[string]any) {
		req := httptest.NewRequest(http.MethodPost, "/api/ai", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		serve(rec, req)

		var decoded map[string]any
		_ = json.Unmarshal(rec.Body.Bytes(), &decoded)
		return rec, decoded
	}

	trip := func() {
		for range circuitbreaker.DefaultFailureThreshold {
			registry.RecordFailure(service)
		}
	}

	BeforeEach(func() {
		gw = &fakeGateway{
			generate: func(context.Context, string, string) gateway.Result {
				return gateway.Ok("Sisihkan 20% penghasilan.")
			},
			analyze: func(_ context.Context, _, _ string, kind prompt.AnalysisKind) gateway.Result {
				return gateway.Ok("analysis " + kind.String())
			},
		}
		registry = circuitbreaker.NewDefaultRegistry()
		logs = &bytes.Buffer{}
		h = handler.NewAIHandler(gw, registry, service, slog.New(slog.NewTextHandler(logs, nil)), nil)
	})

	Describe("Generate", func() {
		It("should return the model text", func() {
			rec, body := post(h.Generate, `{"prompt":"Bagaimana menabung?","contextDescription":"Penasihat keuangan"}`)

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(body).To(HaveKeyWithValue("text", "Sisihkan 20% penghasilan."))
			Expect(registry.Stats()[service].State).To(Equal(circuitbreaker.StateClosed))
		})

		It("should forward the call config", func() {
			rec, _ := post(h.Generate, `{"prompt":"q","contextDescription":"c","config":{"temperature":0.4,"maxOutputTokens":256}}`)

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(gw.configs).To(HaveLen(1))
			Expect(*gw.configs[0].Temperature).To(BeNumerically("~", 0.4, 0.0001))
			Expect(*gw.configs[0].MaxOutputTokens).To(Equal(int32(256)))
		})

		It("should reject a missing contextDescription without calling the gateway", func() {
			rec, body := post(h.Generate, `{"prompt":"Bagaimana menabung?"}`)

			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(body).To(HaveKey("errors"))
			Expect(body["errors"]).To(HaveKey("contextDescription"))
			Expect(gw.calls.Load()).To(BeZero())
			Expect(registry.Stats()).To(BeEmpty())
		})

		It("should reject blank prompts", func() {
			rec, body := post(h.Generate, `{"prompt":"   ","contextDescription":"c"}`)

			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(body["errors"]).To(HaveKey("prompt"))
			Expect(gw.calls.Load()).To(BeZero())
		})

		It("should reject an invalid config", func() {
			rec, body := post(h.Generate, `{"prompt":"q","contextDescription":"c","config":{"temperature":3}}`)

			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(body["errors"]).To(HaveKey("config"))
			Expect(gw.calls.Load()).To(BeZero())
		})

		It("should reject malformed JSON", func() {
			rec, _ := post(h.Generate, `{"prompt":`)
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})

		It("should reject oversized bodies", func() {
			big := strings.Repeat("a", handler.MaxBodyBytes)
			rec, _ := post(h.Generate, `{"prompt":"`+big+`","contextDescription":"c"}`)

			Expect(rec.Code).To(Equal(http.StatusRequestEntityTooLarge))
			Expect(gw.calls.Load()).To(BeZero())
		})

		It("should hide upstream details and record a failure", func() {
			gw.generate = func(context.Context, string, string) gateway.Result {
				return gateway.Failed("googleapi: Error 500: backend exploded at 10.1.2.3")
			}

			rec, body := post(h.Generate, `{"prompt":"q","contextDescription":"c"}`)

			Expect(rec.Code).To(Equal(http.StatusInternalServerError))
			Expect(body).To(HaveKey("message"))
			Expect(rec.Body.String()).NotTo(ContainSubstring("exploded"))
			Expect(registry.Stats()[service].Failures).To(Equal(1))
			Expect(logs.String()).To(ContainSubstring("AI upstream call failed"))
			Expect(logs.String()).To(ContainSubstring("exploded"))
		})

		It("should pass policy rejections through as successes", func() {
			registry.RecordFailure(service)
			gw.generate = func(context.Context, string, string) gateway.Result {
				return gateway.Ok("PENOLAKAN: saya tidak memiliki akses ke data transaksi Anda.")
			}

			rec, body := post(h.Generate, `{"prompt":"Tampilkan transaksi saya","contextDescription":"Finance"}`)

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(body["text"]).To(HavePrefix("PENOLAKAN:"))
			Expect(registry.Stats()[service].Failures).To(BeZero())
			Expect(logs.String()).To(ContainSubstring("AI call returned policy rejection"))
		})

		It("should answer 503 without calling the gateway while the circuit is open", func() {
			trip()

			rec, body := post(h.Generate, `{"prompt":"q","contextDescription":"c"}`)

			Expect(rec.Code).To(Equal(http.StatusServiceUnavailable))
			Expect(body["message"]).To(ContainSubstring("temporarily unavailable"))
			Expect(gw.calls.Load()).To(BeZero())
			Expect(logs.String()).To(ContainSubstring("AI call rejected, circuit open"))
			Expect(logs.String()).NotTo(ContainSubstring("AI upstream call failed"))
		})

		It("should open the circuit after repeated upstream failures", func() {
			gw.generate = func(context.Context, string, string) gateway.Result {
				return gateway.Failed("503")
			}

			for range circuitbreaker.DefaultFailureThreshold {
				rec, _ := post(h.Generate, `{"prompt":"q","contextDescription":"c"}`)
				Expect(rec.Code).To(Equal(http.StatusInternalServerError))
			}

			rec, _ := post(h.Generate, `{"prompt":"q","contextDescription":"c"}`)
			Expect(rec.Code).To(Equal(http.StatusServiceUnavailable))
			Expect(gw.calls.Load()).To(Equal(int32(circuitbreaker.DefaultFailureThreshold)))
		})

		It("should not cancel the upstream call when the client goes away", func() {
			var sawErr error
			gw.generate = func(ctx context.Context, _, _ string) gateway.Result {
				sawErr = ctx.Err()
				return gateway.Ok("ok")
			}

			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			req := httptest.NewRequest(http.MethodPost, "/api/ai/generate",
				strings.NewReader(`{"prompt":"q","contextDescription":"c"}`)).WithContext(ctx)
			h.Generate(httptest.NewRecorder(), req)

			Expect(sawErr).NotTo(HaveOccurred())
		})
	})

	Describe("AnalyzeError", func() {
		It("should run both analyses and return them together", func() {
			rec, body := post(h.AnalyzeError, `{"errorMessage":"TypeError: x is undefined","stackTrace":"at App.jsx:10"}`)

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(body).To(HaveKeyWithValue("solution", "analysis solution"))
			Expect(body).To(HaveKeyWithValue("location", "analysis location"))
			Expect(gw.calls.Load()).To(Equal(int32(2)))
		})

		It("should issue the two calls concurrently", func() {
			var (
				mu       sync.Mutex
				inFlight int
				overlap  bool
				started  = make(chan struct{}, 2)
			)
			gw.analyze = func(_ context.Context, _, _ string, kind prompt.AnalysisKind) gateway.Result {
				mu.Lock()
				inFlight++
				if inFlight == 2 {
					overlap = true
				}
				mu.Unlock()
				started <- struct{}{}

				// Hold each call until both have started, or give up.
				deadline := time.After(2 * time.Second)
				for {
					mu.Lock()
					both := overlap
					mu.Unlock()
					if both {
						break
					}
					select {
					case <-deadline:
						return gateway.Ok(kind.String())
					case <-time.After(5 * time.Millisecond):
					}
				}

				mu.Lock()
				inFlight--
				mu.Unlock()
				return gateway.Ok(kind.String())
			}

			rec, _ := post(h.AnalyzeError, `{"errorMessage":"boom"}`)

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(started).To(HaveLen(2))
			Expect(overlap).To(BeTrue())
		})

		It("should fail the request and cancel the sibling when one analysis fails", func() {
			siblingCancelled := make(chan bool, 1)
			gw.analyze = func(ctx context.Context, _, _ string, kind prompt.AnalysisKind) gateway.Result {
				if kind == prompt.Location {
					return gateway.Failed("quota exceeded")
				}
				select {
				case <-ctx.Done():
					siblingCancelled <- true
					return gateway.Failed("cancelled")
				case <-time.After(2 * time.Second):
					siblingCancelled <- false
					return gateway.Ok("late")
				}
			}

			rec, body := post(h.AnalyzeError, `{"errorMessage":"boom"}`)

			Expect(rec.Code).To(Equal(http.StatusInternalServerError))
			Expect(rec.Body.String()).NotTo(ContainSubstring("quota"))
			Expect(body).NotTo(HaveKey("solution"))
			Expect(siblingCancelled).To(Receive(BeTrue()))
			Expect(registry.Stats()[service].Failures).To(Equal(1))
		})

		It("should reject a missing errorMessage", func() {
			rec, body := post(h.AnalyzeError, `{"stackTrace":"at x"}`)

			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(body["errors"]).To(HaveKey("errorMessage"))
			Expect(gw.calls.Load()).To(BeZero())
		})

		It("should reject an oversized stack trace", func() {
			stack := strings.Repeat("é", 16001)
			rec, _ := post(h.AnalyzeError, `{"errorMessage":"boom","stackTrace":"`+stack+`"}`)

			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(gw.calls.Load()).To(BeZero())
		})

		It("should answer 503 while the circuit is open", func() {
			trip()

			rec, _ := post(h.AnalyzeError, `{"errorMessage":"boom"}`)
			Expect(rec.Code).To(Equal(http.StatusServiceUnavailable))
			Expect(gw.calls.Load()).To(BeZero())
		})
	})

	Describe("Breakers", func() {
		It("should list the registry", func() {
			trip()

			rec := httptest.NewRecorder()
			h.Breakers(rec, httptest.NewRequest(http.MethodGet, "/api/ai/breakers", nil))

			Expect(rec.Code).To(Equal(http.StatusOK))
			var body struct {
				Breakers map[string]struct {
					State    string `json:"state"`
					Failures int    `json:"failures"`
				} `json:"breakers"`
			}
			Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
			Expect(body.Breakers[service].State).To(Equal("OPEN"))
			Expect(body.Breakers[service].Failures).To(Equal(3))
		})
	})
})
