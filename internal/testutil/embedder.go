package testutil

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
)

// embeddingDim matches the vector(768) column in the documents table.
const embeddingDim = 768

// FakeEmbedder is a deterministic offline embedder. Identical text always
// maps to the same unit vector, so upsert-then-search round trips work
// without a live embedding API. It carries no semantic similarity.
type FakeEmbedder struct{}

// NewFakeEmbedder returns an embedder usable wherever ai.Embedder is expected.
func NewFakeEmbedder() *FakeEmbedder {
	return &FakeEmbedder{}
}

// Name implements ai.Embedder.
func (*FakeEmbedder) Name() string { return "testutil/fake-embedder" }

// Register implements ai.Embedder. The fake needs no registry entry.
func (*FakeEmbedder) Register(api.Registry) {}

// Embed implements ai.Embedder with one vector per input document.
func (*FakeEmbedder) Embed(_ context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	resp := &ai.EmbedResponse{}
	for _, doc := range req.Input {
		resp.Embeddings = append(resp.Embeddings, &ai.Embedding{
			Embedding: hashVector(textOf(doc)),
		})
	}
	return resp, nil
}

func textOf(doc *ai.Document) string {
	var s string
	for _, part := range doc.Content {
		s += part.Text
	}
	return s
}

// hashVector expands a sha256 digest into a unit vector of embeddingDim
// components.
func hashVector(text string) []float32 {
	seed := sha256.Sum256([]byte(text))

	vec := make([]float32, embeddingDim)
	var norm float64
	for i := range vec {
		var block [40]byte
		copy(block[:32], seed[:])
		binary.LittleEndian.PutUint64(block[32:], uint64(i))
		h := sha256.Sum256(block[:])

		v := float32(binary.LittleEndian.Uint32(h[:4]))/float32(math.MaxUint32) - 0.5
		vec[i] = v
		norm += float64(v) * float64(v)
	}

	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}
