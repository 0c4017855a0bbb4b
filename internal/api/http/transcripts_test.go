package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gofiber/fiber/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	httptransport "github.com/carrydesk/carry-desk/internal/api/http"
	"github.com/carrydesk/carry-desk/internal/api/http/handlers"
	"github.com/carrydesk/carry-desk/internal/auth"
	"github.com/carrydesk/carry-desk/internal/clock"
	"github.com/carrydesk/carry-desk/internal/config"
	"github.com/carrydesk/carry-desk/internal/domain"
	"github.com/carrydesk/carry-desk/internal/persistence"
	"github.com/carrydesk/carry-desk/internal/repository/memory"
	"github.com/carrydesk/carry-desk/internal/service"
	"github.com/carrydesk/carry-desk/internal/transcript"
)

type downPinger struct{}

func (downPinger) Ping(context.Context) error { return errors.New("connection refused") }

var _ = Describe("Transcript API", func() {
	var (
		app    *fiber.App
		repo   *memory.TranscriptRepository
		clk    *clock.FakeClock
		tokens *auth.TokenManager
		writer string
	)

	now := time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC)

	BeforeEach(func() {
		repo = memory.NewTranscriptRepository()
		clk = clock.Fake(now)
		tokens = auth.NewTokenManager("test-secret", time.Hour)
		var err error
		writer, _, err = tokens.GenerateToken("carry-desk-bot", auth.ScopeTranscriptsWrite)
		Expect(err).NotTo(HaveOccurred())

		app = fiber.New()
		httptransport.RegisterMiddlewares(app, nil, nil, 0)
		httptransport.RegisterRoutes(app, httptransport.RouteConfig{
			Health: handlers.NewHealthHandler(repo, nil),
			Transcripts: handlers.NewTranscriptsHandler(service.NewTranscriptService(service.TranscriptDependencies{
				Repo:  repo,
				Clock: clk,
			})),
			AuthMiddleware: auth.NewAuthMiddleware(tokens),
		})
	})

	do := func(method, path string, body any, token string) (int, map[string]any) {
		var reader io.Reader
		if body != nil {
			raw, err := json.Marshal(body)
			Expect(err).NotTo(HaveOccurred())
			reader = bytes.NewReader(raw)
		}
		req, err := http.NewRequest(method, path, reader)
		Expect(err).NotTo(HaveOccurred())
		req.Header.Set("Content-Type", "application/json")
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := app.Test(req, -1)
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		var out map[string]any
		Expect(json.NewDecoder(resp.Body).Decode(&out)).To(Succeed())
		return resp.StatusCode, out
	}

	payload := func(ticket, user, category string, closedAt time.Time) map[string]any {
		return map[string]any{
			"ticket_number": ticket,
			"user_id":       user,
			"category":      category,
			"closed_at":     closedAt,
			"messages": []map[string]string{
				{"author": "customer", "content": "hi", "timestamp": "2025-06-01 17:00:00"},
			},
		}
	}

	save := func(ticket, user, category string, closedAt time.Time) {
		status, body := do(http.MethodPost, "/api/transcripts", payload(ticket, user, category, closedAt), writer)
		Expect(status).To(Equal(http.StatusCreated), fmt.Sprint(body))
	}

	Describe("POST /api/transcripts", func() {
		It("stores the transcript and applies defaults", func() {
			status, body := do(http.MethodPost, "/api/transcripts", payload("1", "u1", "Dungeon Carry", now), writer)

			Expect(status).To(Equal(http.StatusCreated))
			Expect(body).To(HaveKeyWithValue("success", true))
			Expect(body).To(HaveKeyWithValue("message", "Transcript saved successfully"))
			Expect(body["transcript_id"]).NotTo(BeEmpty())

			stored, err := repo.Get(context.Background(), "1", "u1")
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Status).To(Equal("Closed"))
			Expect(stored.ClosedBy).To(Equal("Unknown"))
			Expect(stored.ClosingReason).To(Equal("No reason provided"))
			Expect(stored.ClaimedBy).To(Equal(domain.Unclaimed))
			Expect(stored.SavedAt).To(Equal(now))
		})

		It("requires a bearer token", func() {
			status, _ := do(http.MethodPost, "/api/transcripts", payload("1", "u1", "Dungeon Carry", now), "")
			Expect(status).To(Equal(http.StatusUnauthorized))
		})

		It("requires the write scope", func() {
			reader, _, err := tokens.GenerateToken("dashboard")
			Expect(err).NotTo(HaveOccurred())
			status, _ := do(http.MethodPost, "/api/transcripts", payload("1", "u1", "Dungeon Carry", now), reader)
			Expect(status).To(Equal(http.StatusForbidden))
		})

		DescribeTable("rejects payloads missing a required field",
			func(field string) {
				body := payload("1", "u1", "Dungeon Carry", now)
				delete(body, field)
				status, resp := do(http.MethodPost, "/api/transcripts", body, writer)

				Expect(status).To(Equal(http.StatusBadRequest))
				errBody := resp["error"].(map[string]any)
				Expect(errBody["code"]).To(Equal("VALIDATION_FAILED"))
				Expect(errBody["details"]).To(HaveKeyWithValue("field", field))
			},
			Entry("ticket number", "ticket_number"),
			Entry("user", "user_id"),
			Entry("category", "category"),
			Entry("messages", "messages"),
		)

		It("accepts an empty message list", func() {
			body := payload("1", "u1", "Dungeon Carry", now)
			body["messages"] = []any{}
			status, _ := do(http.MethodPost, "/api/transcripts", body, writer)
			Expect(status).To(Equal(http.StatusCreated))
		})
	})

	Describe("queries", func() {
		BeforeEach(func() {
			save("1", "u1", "Dungeon Carry", now.Add(-48*time.Hour))
			save("2", "u1", "Slayer Carry", now.Add(-time.Hour))
			save("3", "u2", "Dungeon Carry", now.Add(-40*24*time.Hour))
		})

		It("lists a user's transcripts newest closed first", func() {
			status, body := do(http.MethodGet, "/api/transcripts/u1", nil, "")

			Expect(status).To(Equal(http.StatusOK))
			Expect(body["count"]).To(BeNumerically("==", 2))
			list := body["transcripts"].([]any)
			Expect(list[0].(map[string]any)["ticket_number"]).To(Equal("2"))
			Expect(list[0].(map[string]any)).NotTo(HaveKey("messages"))
		})

		It("returns one transcript only to its owner", func() {
			status, body := do(http.MethodGet, "/api/transcript/1/u1", nil, "")
			Expect(status).To(Equal(http.StatusOK))
			Expect(body["transcript"].(map[string]any)["messages"]).To(HaveLen(1))

			status, _ = do(http.MethodGet, "/api/transcript/1/u2", nil, "")
			Expect(status).To(Equal(http.StatusNotFound))
		})

		It("searches without shadowing the user route", func() {
			status, body := do(http.MethodGet, "/api/transcripts/search?category=Dungeon%20Carry", nil, "")

			Expect(status).To(Equal(http.StatusOK))
			Expect(body["count"]).To(BeNumerically("==", 2))
		})

		It("reports user stats", func() {
			status, body := do(http.MethodGet, "/api/users/u1/stats", nil, "")

			Expect(status).To(Equal(http.StatusOK))
			stats := body["stats"].(map[string]any)
			Expect(stats["total_tickets"]).To(BeNumerically("==", 2))
			Expect(stats["transcript_count"]).To(BeNumerically("==", 2))
			Expect(stats["last_ticket_date"]).NotTo(BeNil())
		})

		It("reports unknown users with zero counts", func() {
			_, body := do(http.MethodGet, "/api/users/nobody/stats", nil, "")
			stats := body["stats"].(map[string]any)
			Expect(stats["total_tickets"]).To(BeNumerically("==", 0))
			Expect(stats["last_ticket_date"]).To(BeNil())
		})

		It("aggregates store stats with a 30 day activity window", func() {
			status, body := do(http.MethodGet, "/api/transcripts/stats", nil, "")

			Expect(status).To(Equal(http.StatusOK))
			stats := body["stats"].(map[string]any)
			Expect(stats["total_transcripts"]).To(BeNumerically("==", 3))
			Expect(stats["total_users"]).To(BeNumerically("==", 2))
			Expect(stats["recent_activity"]).To(BeNumerically("==", 2))
			first := stats["categories"].([]any)[0].(map[string]any)
			Expect(first).To(HaveKeyWithValue("_id", "Dungeon Carry"))
			Expect(first["count"]).To(BeNumerically("==", 2))
		})
	})

	Describe("health", func() {
		It("reports a connected database", func() {
			status, body := do(http.MethodGet, "/health", nil, "")
			Expect(status).To(Equal(http.StatusOK))
			Expect(body).To(HaveKeyWithValue("database", "connected"))
		})

		It("fails when the database is down", func() {
			app = fiber.New()
			httptransport.RegisterMiddlewares(app, nil, nil, 0)
			httptransport.RegisterProbes(app, handlers.NewHealthHandler(downPinger{}, nil), nil)

			status, body := do(http.MethodGet, "/health", nil, "")
			Expect(status).To(Equal(http.StatusInternalServerError))
			Expect(body).To(HaveKeyWithValue("status", "unhealthy"))
		})

		It("reports a disabled database when none is configured", func() {
			app = fiber.New()
			httptransport.RegisterMiddlewares(app, nil, nil, 0)
			httptransport.RegisterProbes(app, handlers.NewHealthHandler(nil, nil), nil)

			status, body := do(http.MethodGet, "/health", nil, "")
			Expect(status).To(Equal(http.StatusOK))
			Expect(body).To(HaveKeyWithValue("status", "healthy"))
			Expect(body).To(HaveKeyWithValue("database", "disabled"))
		})
	})

	It("answers unknown routes with a JSON 404", func() {
		status, body := do(http.MethodGet, "/api/nothing/here/at/all", nil, "")
		Expect(status).To(Equal(http.StatusNotFound))
		Expect(body["error"].(map[string]any)["code"]).To(Equal("NOT_FOUND"))
		Expect(body).To(HaveKeyWithValue("success", false))
		Expect(body["request_id"]).NotTo(BeEmpty())
	})

	It("accepts transcripts delivered by the sink", func() {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).NotTo(HaveOccurred())
		go func() { _ = app.Listener(ln) }()
		DeferCleanup(func() { _ = app.Shutdown() })

		fallback := persistence.NewJSONTable(filepath.Join(GinkgoT().TempDir(), "fallback.json"))
		sink := transcript.NewSink(
			config.SinkConfig{BaseURL: "http://" + ln.Addr().String(), Timeout: 5 * time.Second},
			auth.NewServiceTokenSource(tokens, "carry-desk-bot", auth.ScopeTranscriptsWrite),
			fallback, nil, nil)

		outcome := sink.Store(context.Background(), domain.Transcript{
			TicketNumber: "9",
			UserID:       "u9",
			Category:     "Slayer Carry",
			Status:       "Closed",
			CreatedAt:    now.Add(-time.Hour),
			ClosedAt:     now,
			ClosedBy:     "staff",
			Messages:     []domain.TranscriptMessage{{Author: "u9", Content: "ty", Timestamp: "2025-06-01 17:59:00"}},
		})
		Expect(outcome).To(Equal(transcript.OutcomeStored))

		stored, err := repo.Get(context.Background(), "9", "u9")
		Expect(err).NotTo(HaveOccurred())
		Expect(stored.ClosedBy).To(Equal("staff"))
		keys, err := fallback.Keys()
		Expect(err).NotTo(HaveOccurred())
		Expect(keys).To(BeEmpty())
	})
})
