package openai_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/swarm/pkg/embeddings/openai"
	"github.com/papercomputeco/swarm/pkg/vector"
)

var _ = Describe("Embedder", func() {
	var (
		server   *httptest.Server
		lastPath string
		lastAuth string
		lastBody map[string]string
		status   int
	)

	BeforeEach(func() {
		status = http.StatusOK
		lastBody = nil
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			lastPath = r.URL.Path
			lastAuth = r.Header.Get("Authorization")
			_ = json.NewDecoder(r.Body).Decode(&lastBody)
			if status != http.StatusOK {
				w.WriteHeader(status)
				_, _ = w.Write([]byte(`{"error":"nope"}`))
				return
			}
			_, _ = w.Write([]byte(`{"data":[{"embedding":[0.5,0.25,-1]}]}`))
		}))
	})

	AfterEach(func() {
		server.Close()
	})

	It("requires an API key", func() {
		_, err := openai.NewEmbedder(openai.EmbedderConfig{BaseURL: server.URL})
		Expect(err).To(HaveOccurred())
	})

	It("appends /embeddings to a base URL and sends the bearer key", func() {
		e, err := openai.NewEmbedder(openai.EmbedderConfig{BaseURL: server.URL + "/v1", APIKey: "k-1"})
		Expect(err).NotTo(HaveOccurred())

		emb, err := e.Embed(context.Background(), "hello")
		Expect(err).NotTo(HaveOccurred())
		Expect(emb).To(Equal([]float32{0.5, 0.25, -1}))
		Expect(lastPath).To(Equal("/v1/embeddings"))
		Expect(lastAuth).To(Equal("Bearer k-1"))
		Expect(lastBody).To(HaveKeyWithValue("model", openai.DefaultEmbeddingModel))
		Expect(lastBody).To(HaveKeyWithValue("input", "hello"))
	})

	It("keeps a full embeddings endpoint as is", func() {
		e, err := openai.NewEmbedder(openai.EmbedderConfig{BaseURL: server.URL + "/v1/embeddings", APIKey: "k", Model: "m"})
		Expect(err).NotTo(HaveOccurred())

		_, err = e.Embed(context.Background(), "x")
		Expect(err).NotTo(HaveOccurred())
		Expect(lastPath).To(Equal("/v1/embeddings"))
		Expect(lastBody).To(HaveKeyWithValue("model", "m"))
	})

	It("wraps non-200 responses in ErrEmbedding", func() {
		status = http.StatusUnauthorized
		e, err := openai.NewEmbedder(openai.EmbedderConfig{BaseURL: server.URL, APIKey: "k"})
		Expect(err).NotTo(HaveOccurred())

		_, err = e.Embed(context.Background(), "x")
		Expect(err).To(MatchError(vector.ErrEmbedding))
		Expect(err.Error()).To(ContainSubstring("401"))
	})
})
