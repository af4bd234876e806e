package embeddings_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/swarm/pkg/embeddings"
	"github.com/papercomputeco/swarm/pkg/vector"
)

var _ = Describe("PostJSON", func() {
	var (
		server  *httptest.Server
		handler http.HandlerFunc
	)

	BeforeEach(func() {
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handler(w, r)
		}))
	})

	AfterEach(func() {
		server.Close()
	})

	It("sends JSON with the extra headers and decodes the reply", func() {
		var contentType, auth string
		handler = func(w http.ResponseWriter, r *http.Request) {
			contentType = r.Header.Get("Content-Type")
			auth = r.Header.Get("Authorization")
			_, _ = w.Write([]byte(`{"vector":[0.5]}`))
		}

		var out struct {
			Vector []float32 `json:"vector"`
		}
		err := embeddings.PostJSON(context.Background(), embeddings.NewHTTPClient(0), server.URL,
			http.Header{"Authorization": {"Bearer k"}}, map[string]string{"input": "x"}, &out)
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Vector).To(Equal([]float32{0.5}))
		Expect(contentType).To(Equal("application/json"))
		Expect(auth).To(Equal("Bearer k"))
	})

	It("wraps a failed status with a capped body", func() {
		handler = func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(strings.Repeat("x", 10000)))
		}

		err := embeddings.PostJSON(context.Background(), embeddings.NewHTTPClient(0), server.URL, nil, struct{}{}, &struct{}{})
		Expect(err).To(MatchError(vector.ErrEmbedding))
		Expect(err.Error()).To(ContainSubstring("503"))
		Expect(len(err.Error())).To(BeNumerically("<", 5000))
	})

	It("wraps undecodable replies", func() {
		handler = func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`not json`))
		}

		err := embeddings.PostJSON(context.Background(), embeddings.NewHTTPClient(0), server.URL, nil, struct{}{}, &struct{}{})
		Expect(err).To(MatchError(vector.ErrEmbedding))
		Expect(err.Error()).To(ContainSubstring("decoding response"))
	})

	It("gives up after the client timeout", func() {
		release := make(chan struct{})
		defer close(release)
		handler = func(_ http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}

		err := embeddings.PostJSON(context.Background(), embeddings.NewHTTPClient(50*time.Millisecond), server.URL, nil, struct{}{}, &struct{}{})
		Expect(err).To(MatchError(vector.ErrEmbedding))
	})
})

var _ = Describe("NewHTTPClient", func() {
	It("falls back to the default timeout", func() {
		Expect(embeddings.NewHTTPClient(0).Timeout).To(Equal(embeddings.DefaultTimeout))
		Expect(embeddings.NewHTTPClient(time.Second).Timeout).To(Equal(time.Second))
	})
})
