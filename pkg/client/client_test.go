package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/ai-gateway/pkg/circuitbreaker"
	"github.com/angeloszaimis/ai-gateway/pkg/client"
)

var _ = Describe("Client", func() {
	var (
		server   *httptest.Server
		hits     atomic.Int32
		respond  func(w http.ResponseWriter, r *http.Request)
		lastReq  atomic.Value
		now      time.Time
		registry *circuitbreaker.Registry
		c        *client.Client
	)

	BeforeEach(func() {
		hits.Store(0)
		respond = func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"text":"Sisihkan 20% penghasilan."}`))
		}
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			lastReq.Store(r.Clone(context.Background()))
			respond(w, r)
		}))

		now = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
		registry = circuitbreaker.NewDefaultRegistry(circuitbreaker.WithClock(func() time.Time { return now }))

		var err error
		c, err = client.New(server.URL+"/", client.WithAPIKey("secret"), client.WithRegistry(registry))
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		server.Close()
	})

	statusHandler := func(status int) func(http.ResponseWriter, *http.Request) {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			w.Write([]byte(`{"message":"nope"}`))
		}
	}

	Describe("New", func() {
		It("should reject invalid base URLs", func() {
			for _, raw := range []string{"", "not a url", "ftp://example.com"} {
				_, err := client.New(raw)
				Expect(err).To(HaveOccurred(), raw)
			}
		})

		It("should create its own registry by default", func() {
			other, err := client.New(server.URL)
			Expect(err).NotTo(HaveOccurred())
			Expect(other.Registry()).NotTo(BeIdenticalTo(registry))
		})
	})

	Describe("Generate", func() {
		It("should post the request with auth and a request id", func() {
			temperature := float32(0.3)
			answer, err := c.Generate(context.Background(), "Bagaimana menabung?", "Penasihat keuangan", &client.CallConfig{Temperature: &temperature})

			Expect(err).NotTo(HaveOccurred())
			Expect(answer.Text).To(Equal("Sisihkan 20% penghasilan."))
			Expect(answer.PolicyRejection).To(BeFalse())

			req := lastReq.Load().(*http.Request)
			Expect(req.Method).To(Equal(http.MethodPost))
			Expect(req.URL.Path).To(Equal("/api/ai/generate"))
			Expect(req.Header.Get("Authorization")).To(Equal("Bearer secret"))
			_, err = uuid.Parse(req.Header.Get("X-Request-Id"))
			Expect(err).NotTo(HaveOccurred())
		})

		It("should send the documented body", func() {
			var body map[string]any
			respond = func(w http.ResponseWriter, r *http.Request) {
				Expect(json.NewDecoder(r.Body).Decode(&body)).To(Succeed())
				w.Write([]byte(`{"text":"ok"}`))
			}

			_, err := c.Generate(context.Background(), "q", "ctx", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(body).To(Equal(map[string]any{"prompt": "q", "contextDescription": "ctx"}))
		})

		It("should mark policy rejections without recording a failure", func() {
			registry.RecordFailure(client.DefaultServiceName)
			respond = func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"text":"PENOLAKAN: saya tidak memiliki akses ke data transaksi."}`))
			}

			answer, err := c.Generate(context.Background(), "Tampilkan transaksi saya", "Finance", nil)

			Expect(err).NotTo(HaveOccurred())
			Expect(answer.PolicyRejection).To(BeTrue())
			Expect(registry.Stats()[client.DefaultServiceName].Failures).To(BeZero())
		})

		It("should short-circuit without network I/O once the circuit is open", func() {
			respond = statusHandler(http.StatusInternalServerError)

			for range circuitbreaker.DefaultFailureThreshold {
				_, err := c.Generate(context.Background(), "q", "c", nil)
				var se *client.StatusError
				Expect(errors.As(err, &se)).To(BeTrue())
				Expect(se.StatusCode).To(Equal(http.StatusInternalServerError))
				Expect(se.Message).To(Equal("nope"))
			}

			_, err := c.Generate(context.Background(), "q", "c", nil)
			Expect(err).To(MatchError(client.ErrCircuitOpen))
			Expect(client.IsUnavailable(err)).To(BeTrue())
			Expect(hits.Load()).To(Equal(int32(circuitbreaker.DefaultFailureThreshold)))
		})

		It("should probe once after the cooldown and close on success", func() {
			respond = statusHandler(http.StatusBadGateway)
			for range circuitbreaker.DefaultFailureThreshold {
				c.Generate(context.Background(), "q", "c", nil)
			}

			now = now.Add(31 * time.Second)
			respond = func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"text":"back"}`))
			}

			answer, err := c.Generate(context.Background(), "q", "c", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(answer.Text).To(Equal("back"))
			Expect(registry.Stats()[client.DefaultServiceName].State).To(Equal(circuitbreaker.StateClosed))
		})

		DescribeTable("breaker classification of answers",
			func(status int, countsAsFailure bool) {
				respond = statusHandler(status)

				_, err := c.Generate(context.Background(), "q", "c", nil)
				Expect(err).To(HaveOccurred())

				failures := registry.Stats()[client.DefaultServiceName].Failures
				if countsAsFailure {
					Expect(failures).To(Equal(1))
				} else {
					Expect(failures).To(BeZero())
				}
			},
			Entry("500", http.StatusInternalServerError, true),
			Entry("503", http.StatusServiceUnavailable, true),
			Entry("429", http.StatusTooManyRequests, true),
			Entry("400", http.StatusBadRequest, false),
			Entry("401", http.StatusUnauthorized, false),
			Entry("403", http.StatusForbidden, false),
		)

		It("should count malformed success bodies as failures", func() {
			respond = func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`<html>`))
			}

			_, err := c.Generate(context.Background(), "q", "c", nil)
			Expect(err).To(HaveOccurred())
			Expect(registry.Stats()[client.DefaultServiceName].Failures).To(Equal(1))
		})

		It("should count transport errors as failures", func() {
			server.Close()

			_, err := c.Generate(context.Background(), "q", "c", nil)
			Expect(err).To(HaveOccurred())
			Expect(registry.Stats()[client.DefaultServiceName].Failures).To(Equal(1))
		})

		It("should count timeouts as failures", func() {
			block := make(chan struct{})
			DeferCleanup(func() { close(block) })
			respond = func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-block:
				case <-r.Context().Done():
				}
			}

			slow, err := client.New(server.URL, client.WithRegistry(registry), client.WithTimeout(50*time.Millisecond))
			Expect(err).NotTo(HaveOccurred())

			_, err = slow.Generate(context.Background(), "q", "c", nil)
			Expect(err).To(MatchError(context.DeadlineExceeded))
			Expect(registry.Stats()[client.DefaultServiceName].Failures).To(Equal(1))
		})

		It("should not report calls the caller cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			_, err := c.Generate(ctx, "q", "c", nil)
			Expect(err).To(MatchError(context.Canceled))
			Expect(registry.Stats()[client.DefaultServiceName].Failures).To(BeZero())
		})
	})

	Describe("AnalyzeError", func() {
		It("should return both analyses", func() {
			var body map[string]any
			respond = func(w http.ResponseWriter, r *http.Request) {
				Expect(r.URL.Path).To(Equal("/api/ai/analyze-error"))
				Expect(json.NewDecoder(r.Body).Decode(&body)).To(Succeed())
				w.Write([]byte(`{"solution":"check x","location":"App.jsx:10"}`))
			}

			analysis, err := c.AnalyzeError(context.Background(), "TypeError", "")
			Expect(err).NotTo(HaveOccurred())
			Expect(analysis).To(Equal(client.Analysis{Solution: "check x", Location: "App.jsx:10"}))
			Expect(body).To(Equal(map[string]any{"errorMessage": "TypeError"}))
		})

		It("should share the breaker with Generate", func() {
			for range circuitbreaker.DefaultFailureThreshold {
				registry.RecordFailure(client.DefaultServiceName)
			}

			_, err := c.AnalyzeError(context.Background(), "TypeError", "at x")
			Expect(err).To(MatchError(client.ErrCircuitOpen))
			Expect(hits.Load()).To(BeZero())
		})
	})

	Describe("IsUnavailable", func() {
		It("should recognise 503 answers", func() {
			Expect(client.IsUnavailable(&client.StatusError{StatusCode: http.StatusServiceUnavailable})).To(BeTrue())
			Expect(client.IsUnavailable(&client.StatusError{StatusCode: http.StatusInternalServerError})).To(BeFalse())
			Expect(client.IsUnavailable(errors.New("other"))).To(BeFalse())
		})
	})
})
