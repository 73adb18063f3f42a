package serialization

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seehiong/micronaut-optimizer/internal/core/graph"
	"github.com/seehiong/micronaut-optimizer/internal/core/value"
)

func sampleGraph(t *testing.T) *graph.Graph {
	t.Helper()
	g := graph.New()
	in := graph.NewNode("n0", "Text Input")
	in.TriggerAction = graph.TriggerSubmit
	in.OutputTypes = []string{"string"}
	in.OutputData = value.Text("60")

	agg := graph.NewNode("n1", "TSP Input")
	agg.TriggerAction = graph.TriggerAuto
	agg.TransformType = graph.TransformJSONAggregator
	agg.InputTypes = []string{"distanceMatrixConstraint", "solveTimeConstraint"}
	agg.SetInput(1, value.MustFromAny(map[string]any{"solveTime": 60.0, "nested": []any{true, nil, "x"}}))

	require.NoError(t, g.AddNode(in))
	require.NoError(t, g.AddNode(agg))
	require.NoError(t, g.AddEdge(graph.NewEdge("n0-o0", "n1-i1")))
	return g
}

func asJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

func TestSerializer_GraphSurvivesEveryPipeline(t *testing.T) {
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)

	tests := []struct {
		name   string
		config Config
		want   string
	}{
		{"json", Config{Codec: NewJSONCodec()}, "json+none"},
		{"msgpack gzip", Config{Codec: NewMsgPackCodec(), Compression: CompressionGzip}, "msgpack+gzip"},
		{"msgpack zstd", Config{Codec: NewMsgPackCodec(), Compression: CompressionZstd}, "msgpack+zstd"},
		{"encrypted", Config{Codec: NewMsgPackCodec(), Compression: CompressionZstd, EncryptKey: key}, "msgpack+zstd+aes"},
	}

	original := sampleGraph(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewSerializer(tt.config)
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.Name())

			data, err := s.Serialize(original)
			require.NoError(t, err)

			var decoded graph.Graph
			require.NoError(t, s.Deserialize(data, &decoded))
			assert.JSONEq(t, asJSON(t, original), asJSON(t, &decoded))

			_, unset := decoded.FindNode("n1").Input(0)
			assert.False(t, unset, "unset slot stays unset")
		})
	}
}

func TestSerializer_EncryptionHidesPlaintext(t *testing.T) {
	key := make([]byte, 16)
	_, err := rand.Read(key)
	require.NoError(t, err)

	s, err := NewSerializer(Config{Codec: NewJSONCodec(), EncryptKey: key})
	require.NoError(t, err)

	data, err := s.Serialize(sampleGraph(t))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "Text Input")
}

func TestSerializer_Errors(t *testing.T) {
	t.Run("bad key size", func(t *testing.T) {
		_, err := NewSerializer(Config{EncryptKey: []byte("short")})
		assert.ErrorIs(t, err, ErrInvalidKey)
	})

	t.Run("unknown compression", func(t *testing.T) {
		_, err := NewSerializer(Config{Compression: "lz4"})
		assert.ErrorIs(t, err, ErrUnknownCompression)
	})

	t.Run("corrupted ciphertext", func(t *testing.T) {
		key := make([]byte, 32)
		_, _ = rand.Read(key)
		s, err := NewSerializer(Config{EncryptKey: key})
		require.NoError(t, err)

		var out graph.Graph
		err = s.Deserialize([]byte("tiny"), &out)
		assert.ErrorIs(t, err, ErrCiphertextTooShort)
		assert.Contains(t, err.Error(), "decryption failed")
	})

	t.Run("corrupted zstd", func(t *testing.T) {
		var out graph.Graph
		err := DefaultSerializer().Deserialize([]byte("not zstd"), &out)
		assert.Contains(t, err.Error(), "decompression failed")
	})
}

func TestLookups(t *testing.T) {
	c, err := CodecByName("json")
	require.NoError(t, err)
	assert.Equal(t, "json", c.Name())

	c, err = CodecByName("")
	require.NoError(t, err)
	assert.Equal(t, "msgpack", c.Name())

	_, err = CodecByName("xml")
	assert.ErrorIs(t, err, ErrUnknownCodec)

	ct, err := ParseCompression("")
	require.NoError(t, err)
	assert.Equal(t, CompressionNone, ct)
}

func BenchmarkSerializer_Default(b *testing.B) {
	g := graph.New()
	for i := 0; i < 100; i++ {
		n := graph.NewNode(fmt.Sprintf("n%d", i), "Text Input")
		n.OutputData = value.Matrix([][]float64{{0, 1, 2}, {1, 0, 3}, {2, 3, 0}})
		_ = g.AddNode(n)
	}
	s := DefaultSerializer()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		data, _ := s.Serialize(g)
		var out graph.Graph
		_ = s.Deserialize(data, &out)
	}
}
