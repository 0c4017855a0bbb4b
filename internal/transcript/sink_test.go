package transcript_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/carrydesk/carry-desk/internal/config"
	"github.com/carrydesk/carry-desk/internal/domain"
	"github.com/carrydesk/carry-desk/internal/persistence"
	"github.com/carrydesk/carry-desk/internal/transcript"
)

type staticToken string

func (t staticToken) Token() (string, error) { return string(t), nil }

var _ = Describe("Sink", func() {
	var (
		fallback *persistence.JSONTable
		doc      domain.Transcript
	)

	BeforeEach(func() {
		fallback = persistence.NewJSONTable(filepath.Join(GinkgoT().TempDir(), "web_transcripts.json"))
		doc = domain.Transcript{
			TicketNumber: "7",
			UserID:       "u1",
			Category:     "Dungeon Carry",
			Status:       "Closed",
			ClosedAt:     time.Now().UTC(),
			Messages:     []domain.TranscriptMessage{{Author: "u1", Content: "hi", Timestamp: "2024-01-01 10:00:00"}},
		}
	})

	newSink := func(url string) *transcript.Sink {
		return transcript.NewSink(config.SinkConfig{BaseURL: url, Timeout: 2 * time.Second},
			staticToken("tok"), fallback, nil, nil)
	}

	It("reports stored on 201 and sends the bearer token", func() {
		var auth, path atomic.Value
		var received domain.Transcript
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path.Store(r.URL.Path)
			auth.Store(r.Header.Get("Authorization"))
			if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			w.WriteHeader(http.StatusCreated)
		}))
		defer server.Close()

		Expect(newSink(server.URL).Store(context.Background(), doc)).To(Equal(transcript.OutcomeStored))
		Expect(path.Load()).To(Equal("/api/transcripts"))
		Expect(auth.Load()).To(Equal("Bearer tok"))
		Expect(received.TicketNumber).To(Equal("7"))
		Expect(received.Messages).To(HaveLen(1))

		keys, err := fallback.Keys()
		Expect(err).NotTo(HaveOccurred())
		Expect(keys).To(BeEmpty())
	})

	It("falls back on a non-201 reply", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		Expect(newSink(server.URL).Store(context.Background(), doc)).To(Equal(transcript.OutcomeDegraded))

		docs, err := fallback.Get("7")
		Expect(err).NotTo(HaveOccurred())
		Expect(docs).To(HaveLen(1))
		var stored domain.Transcript
		Expect(json.Unmarshal(docs[0], &stored)).To(Succeed())
		Expect(stored.UserID).To(Equal("u1"))
		Expect(stored.SavedAt.IsZero()).To(BeFalse())
	})

	It("falls back when the api is unreachable and appends repeated payloads", func() {
		server := httptest.NewServer(http.NotFoundHandler())
		url := server.URL
		server.Close()

		sink := newSink(url)
		Expect(sink.Store(context.Background(), doc)).To(Equal(transcript.OutcomeDegraded))
		Expect(sink.Store(context.Background(), doc)).To(Equal(transcript.OutcomeDegraded))

		docs, err := fallback.Get("7")
		Expect(err).NotTo(HaveOccurred())
		Expect(docs).To(HaveLen(2))
	})

	It("degrades without calling out when the context is done", func() {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusCreated)
		}))
		defer server.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		Expect(newSink(server.URL).Store(ctx, doc)).To(Equal(transcript.OutcomeDegraded))
		Expect(calls.Load()).To(BeZero())
	})
})
