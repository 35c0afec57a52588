package backend_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/mailroom/pkg/backend"
)

const exampleStream = "event: sources\ndata: {\"sources\":[{\"message_id\":\"m1\",\"subject\":\"Q4\"}]}\n\n" +
	"event: token\ndata: {\"token\":\"Hi\"}\n\n" +
	"event: token\ndata: {\"token\":\" there\"}\n\n" +
	"event: done\ndata: {}\n\n"

// drain collects every event until the stream ends.
func drain(s *backend.Stream) []backend.Event {
	var events []backend.Event
	for {
		ev, ok := s.Next()
		if !ok {
			return events
		}
		events = append(events, ev)
	}
}

func writeSSE(w http.ResponseWriter, frames ...string) {
	w.Header().Set("Content-Type", "text/event-stream")
	for _, f := range frames {
		fmt.Fprint(w, f)
		w.(http.Flusher).Flush()
	}
}

var _ = Describe("Stream", func() {
	var (
		mux      *http.ServeMux
		server   *httptest.Server
		client   *backend.Client
		ctx      context.Context
		requests atomic.Int32
		release  chan struct{}
	)

	BeforeEach(func() {
		requests.Store(0)
		release = make(chan struct{})
		mux = http.NewServeMux()
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requests.Add(1)
			mux.ServeHTTP(w, r)
		}))
		client = backend.NewClient(server.URL)
		ctx = context.Background()
	})

	AfterEach(func() {
		close(release)
		server.Close()
	})

	// block holds a handler open until the client goes away or the test ends.
	block := func(r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}

	It("rejects an empty question", func() {
		_, err := client.StreamChat(ctx, backend.ChatRequest{Question: ""})
		Expect(err).To(MatchError(backend.ErrEmptyQuestion))
	})

	It("does not connect until the first Next", func() {
		mux.HandleFunc("POST /chat/stream", func(w http.ResponseWriter, _ *http.Request) {
			writeSSE(w, exampleStream)
		})

		s, err := client.StreamChat(ctx, backend.ChatRequest{Question: "hi"})
		Expect(err).NotTo(HaveOccurred())
		defer s.Close()
		Expect(requests.Load()).To(BeZero())

		_, ok := s.Next()
		Expect(ok).To(BeTrue())
		Expect(requests.Load()).To(Equal(int32(1)))
	})

	It("sends the question with the event-stream headers", func() {
		var (
			body   map[string]any
			accept string
		)
		mux.HandleFunc("POST /chat/stream", func(w http.ResponseWriter, r *http.Request) {
			accept = r.Header.Get("Accept")
			Expect(r.Header.Get("Content-Type")).To(Equal("application/json"))
			Expect(json.NewDecoder(r.Body).Decode(&body)).To(Succeed())
			writeSSE(w, exampleStream)
		})

		topK := 4
		s, err := client.StreamChat(ctx, backend.ChatRequest{Question: "hi", TopK: &topK})
		Expect(err).NotTo(HaveOccurred())
		defer s.Close()
		drain(s)

		Expect(accept).To(Equal("text/event-stream"))
		Expect(body).To(HaveKeyWithValue("question", "hi"))
		Expect(body).To(HaveKeyWithValue("top_k", BeNumerically("==", 4)))
		Expect(body).NotTo(HaveKey("temperature"))
		Expect(body).NotTo(HaveKey("max_tokens"))
	})

	It("yields sources, tokens and done in order", func() {
		mux.HandleFunc("POST /chat/stream", func(w http.ResponseWriter, _ *http.Request) {
			writeSSE(w, exampleStream)
		})

		s, err := client.StreamChat(ctx, backend.ChatRequest{Question: "hi"})
		Expect(err).NotTo(HaveOccurred())
		defer s.Close()

		events := drain(s)
		Expect(events).To(HaveLen(4))
		Expect(events[0].Kind).To(Equal(backend.EventSources))
		Expect(events[0].Sources).To(HaveLen(1))
		Expect(events[0].Sources[0].Subject).To(Equal("Q4"))
		Expect(events[1].Token).To(Equal("Hi"))
		Expect(events[2].Token).To(Equal(" there"))
		Expect(events[3].Kind).To(Equal(backend.EventDone))
	})

	It("decodes frames split across many writes", func() {
		mux.HandleFunc("POST /chat/stream", func(w http.ResponseWriter, _ *http.Request) {
			var frames []string
			for i := 0; i < len(exampleStream); i += 7 {
				frames = append(frames, exampleStream[i:min(i+7, len(exampleStream))])
			}
			writeSSE(w, frames...)
		})

		s, err := client.StreamChat(ctx, backend.ChatRequest{Question: "hi"})
		Expect(err).NotTo(HaveOccurred())
		defer s.Close()

		var content string
		for _, ev := range drain(s) {
			content += ev.Token
		}
		Expect(content).To(Equal("Hi there"))
	})

	It("drops malformed and unnamed frames and keeps going", func() {
		mux.HandleFunc("POST /chat/stream", func(w http.ResponseWriter, _ *http.Request) {
			writeSSE(w,
				"event: token\ndata: {\"token\":\"A\"}\n\n",
				"event: token\ndata: {not json\n\n",
				"data: {\"token\":\"unnamed\"}\n\n",
				"event: heartbeat\ndata: {}\n\n",
				"event: token\ndata: {\"token\":\"B\"}\n\n",
				"event: done\ndata: {}\n\n",
			)
		})

		s, err := client.StreamChat(ctx, backend.ChatRequest{Question: "hi"})
		Expect(err).NotTo(HaveOccurred())
		defer s.Close()

		events := drain(s)
		Expect(events).To(HaveLen(3))
		Expect(events[0].Token).To(Equal("A"))
		Expect(events[1].Token).To(Equal("B"))
		Expect(events[2].Kind).To(Equal(backend.EventDone))
	})

	It("stops reading after done", func() {
		mux.HandleFunc("POST /chat/stream", func(w http.ResponseWriter, _ *http.Request) {
			writeSSE(w,
				"event: done\ndata: {}\n\n",
				"event: token\ndata: {\"token\":\"late\"}\n\n",
			)
		})

		s, err := client.StreamChat(ctx, backend.ChatRequest{Question: "hi"})
		Expect(err).NotTo(HaveOccurred())
		defer s.Close()

		events := drain(s)
		Expect(events).To(HaveLen(1))
		Expect(events[0].Kind).To(Equal(backend.EventDone))
	})

	It("passes a backend error event through as terminal", func() {
		mux.HandleFunc("POST /chat/stream", func(w http.ResponseWriter, _ *http.Request) {
			writeSSE(w, "event: error\ndata: {\"error\":\"model unavailable\"}\n\n")
		})

		s, err := client.StreamChat(ctx, backend.ChatRequest{Question: "hi"})
		Expect(err).NotTo(HaveOccurred())
		defer s.Close()

		events := drain(s)
		Expect(events).To(HaveLen(1))
		Expect(events[0].Kind).To(Equal(backend.EventError))
		Expect(events[0].Message).To(Equal("model unavailable"))
		Expect(events[0].Err).To(BeNil())
	})

	It("turns a non-2xx response into exactly one error event", func() {
		mux.HandleFunc("POST /chat/stream", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"detail":"index not ready"}`))
		})

		s, err := client.StreamChat(ctx, backend.ChatRequest{Question: "hi"})
		Expect(err).NotTo(HaveOccurred())
		defer s.Close()

		events := drain(s)
		Expect(events).To(HaveLen(1))
		Expect(events[0].Kind).To(Equal(backend.EventError))
		Expect(events[0].Message).To(Equal("index not ready"))

		var se *backend.StatusError
		Expect(errors.As(events[0].Err, &se)).To(BeTrue())
		Expect(se.Code).To(Equal(http.StatusServiceUnavailable))
	})

	It("reports EOF before done as a transport error", func() {
		mux.HandleFunc("POST /chat/stream", func(w http.ResponseWriter, _ *http.Request) {
			writeSSE(w, "event: token\ndata: {\"token\":\"Hi\"}\n\n")
		})

		s, err := client.StreamChat(ctx, backend.ChatRequest{Question: "hi"})
		Expect(err).NotTo(HaveOccurred())
		defer s.Close()

		events := drain(s)
		Expect(events).To(HaveLen(2))
		Expect(events[0].Token).To(Equal("Hi"))
		Expect(events[1].Kind).To(Equal(backend.EventError))
		Expect(events[1].Err).To(MatchError(backend.ErrUnexpectedEOF))
	})

	It("reports a connection failure as one error event", func() {
		c := backend.NewClient("http://127.0.0.1:1")
		s, err := c.StreamChat(ctx, backend.ChatRequest{Question: "hi"})
		Expect(err).NotTo(HaveOccurred())
		defer s.Close()

		events := drain(s)
		Expect(events).To(HaveLen(1))
		Expect(events[0].Kind).To(Equal(backend.EventError))
		Expect(events[0].Err).To(HaveOccurred())
	})

	It("fails with ErrStreamIdle when no bytes arrive", func() {
		mux.HandleFunc("POST /chat/stream", func(w http.ResponseWriter, r *http.Request) {
			writeSSE(w, "event: token\ndata: {\"token\":\"Hi\"}\n\n")
			block(r)
		})

		c := backend.NewClient(server.URL, backend.WithIdleTimeout(100*time.Millisecond))
		s, err := c.StreamChat(ctx, backend.ChatRequest{Question: "hi"})
		Expect(err).NotTo(HaveOccurred())
		defer s.Close()

		ev, ok := s.Next()
		Expect(ok).To(BeTrue())
		Expect(ev.Token).To(Equal("Hi"))

		ev, ok = s.Next()
		Expect(ok).To(BeTrue())
		Expect(ev.Kind).To(Equal(backend.EventError))
		Expect(ev.Err).To(MatchError(backend.ErrStreamIdle))

		_, ok = s.Next()
		Expect(ok).To(BeFalse())
	})

	It("ignores the request timeout of the JSON endpoints", func() {
		mux.HandleFunc("POST /chat/stream", func(w http.ResponseWriter, _ *http.Request) {
			writeSSE(w, "event: token\ndata: {\"token\":\"slow\"}\n\n")
			time.Sleep(150 * time.Millisecond)
			writeSSE(w, "event: done\ndata: {}\n\n")
		})

		c := backend.NewClient(server.URL, backend.WithTimeout(50*time.Millisecond))
		s, err := c.StreamChat(ctx, backend.ChatRequest{Question: "hi"})
		Expect(err).NotTo(HaveOccurred())
		defer s.Close()

		events := drain(s)
		Expect(events).To(HaveLen(2))
		Expect(events[1].Kind).To(Equal(backend.EventDone))
	})

	Describe("Close", func() {
		It("yields nothing after Close", func() {
			mux.HandleFunc("POST /chat/stream", func(w http.ResponseWriter, r *http.Request) {
				writeSSE(w, "event: token\ndata: {\"token\":\"Hi\"}\n\n")
				block(r)
			})

			s, err := client.StreamChat(ctx, backend.ChatRequest{Question: "hi"})
			Expect(err).NotTo(HaveOccurred())

			_, ok := s.Next()
			Expect(ok).To(BeTrue())

			Expect(s.Close()).To(Succeed())
			Expect(s.Close()).To(Succeed())

			_, ok = s.Next()
			Expect(ok).To(BeFalse())
		})

		It("never connects when closed before the first Next", func() {
			s, err := client.StreamChat(ctx, backend.ChatRequest{Question: "hi"})
			Expect(err).NotTo(HaveOccurred())
			Expect(s.Close()).To(Succeed())

			_, ok := s.Next()
			Expect(ok).To(BeFalse())
			Expect(requests.Load()).To(BeZero())
		})

		It("unblocks a pending Next without an error event", func() {
			mux.HandleFunc("POST /chat/stream", func(w http.ResponseWriter, r *http.Request) {
				writeSSE(w, "event: token\ndata: {\"token\":\"Hi\"}\n\n")
				block(r)
			})

			s, err := client.StreamChat(ctx, backend.ChatRequest{Question: "hi"})
			Expect(err).NotTo(HaveOccurred())

			_, ok := s.Next()
			Expect(ok).To(BeTrue())

			done := make(chan bool)
			go func() {
				_, ok := s.Next()
				done <- ok
			}()

			time.Sleep(50 * time.Millisecond)
			Expect(s.Close()).To(Succeed())
			Eventually(done).Should(Receive(BeFalse()))
		})
	})

	It("mirrors the raw bytes to the tee", func() {
		mux.HandleFunc("POST /chat/stream", func(w http.ResponseWriter, _ *http.Request) {
			writeSSE(w, exampleStream)
		})

		var raw bytes.Buffer
		s, err := client.StreamChat(ctx, backend.ChatRequest{Question: "hi"}, backend.WithRawTee(&raw))
		Expect(err).NotTo(HaveOccurred())
		defer s.Close()
		drain(s)

		Expect(raw.String()).To(Equal(exampleStream))
	})
})
