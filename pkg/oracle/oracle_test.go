package oracle

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/upchain/pkg/config"
)

type gradeResult struct {
	Grade     int    `json:"grade" jsonschema:"required,minimum=1,maximum=5"`
	Rationale string `json:"rationale,omitempty"`
}

// fakeProvider answers from a user-supplied function.
type fakeProvider struct {
	invoke func(Request) ([]byte, error)
	calls  atomic.Int32
}

func (f *fakeProvider) Invoke(_ context.Context, req Request) ([]byte, error) {
	f.calls.Add(1)
	return f.invoke(req)
}

func (f *fakeProvider) Name() string { return "fake" }
func (f *fakeProvider) Close() error { return nil }

func TestAskDecodesResult(t *testing.T) {
	p := &fakeProvider{invoke: func(req Request) ([]byte, error) {
		assert.NotNil(t, req.Schema, "Ask should derive the schema from the target type")
		return []byte(`{"grade": 2, "rationale": "close match"}`), nil
	}}

	result, err := Ask[gradeResult](context.Background(), p, Request{Task: "grade it"})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Grade)
}

func TestAskSchemaMismatch(t *testing.T) {
	p := &fakeProvider{invoke: func(Request) ([]byte, error) {
		return []byte(`not json at all`), nil
	}}

	_, err := Ask[gradeResult](context.Background(), p, Request{Task: "grade it"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSchemaMismatch)

	var oracleErr *Error
	require.ErrorAs(t, err, &oracleErr)
	assert.Equal(t, "fake", oracleErr.Provider)
}

func TestSamplesDropsFailures(t *testing.T) {
	var n atomic.Int32
	p := &fakeProvider{invoke: func(Request) ([]byte, error) {
		if n.Add(1) == 2 {
			return nil, NewError("fake", "invoke", "transient", nil)
		}
		return []byte(`{"grade": 3}`), nil
	}}

	results, err := Samples[gradeResult](context.Background(), p, Request{Task: "grade"}, 3, 1)
	require.NoError(t, err)
	assert.Len(t, results, 2, "failed sample is dropped, not fatal")
}

func TestSamplesAllFailed(t *testing.T) {
	p := &fakeProvider{invoke: func(Request) ([]byte, error) {
		return nil, fmt.Errorf("boom")
	}}

	_, err := Samples[gradeResult](context.Background(), p, Request{Task: "grade"}, 3, 2)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAllSamplesFailed)
	assert.Equal(t, int32(3), p.calls.Load())
}

func TestSamplesBoundsConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	p := &fakeProvider{invoke: func(Request) ([]byte, error) {
		cur := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			old := peak.Load()
			if cur <= old || peak.CompareAndSwap(old, cur) {
				break
			}
		}
		return []byte(`{"grade": 1}`), nil
	}}

	results, err := Samples[gradeResult](context.Background(), p, Request{Task: "grade"}, 7, 2)
	require.NoError(t, err)
	assert.Len(t, results, 7)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestSchemaFor(t *testing.T) {
	schema, err := SchemaFor[gradeResult]()
	require.NoError(t, err)

	assert.Equal(t, "object", schema["type"])
	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "grade")
	assert.Contains(t, props, "rationale")
}

func TestSerializeContextDeterministic(t *testing.T) {
	req := Request{Context: map[string]string{
		"process":  "steel rolling",
		"axis":     "spatial",
		"location": "DE",
	}}

	first := SerializeContext(req, nil, 0)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, SerializeContext(req, nil, 0))
	}
	assert.Equal(t, "axis: spatial\nlocation: DE\nprocess: steel rolling\n", first)
}

func TestOpenAIProviderInvoke(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"choices":[{"message":{"content":"{\"grade\":4}"},"finish_reason":"stop"}]}`)
	}))
	defer server.Close()

	cfg := &config.OracleConfig{Type: "openai", Host: server.URL, APIKey: "test-key"}
	cfg.SetDefaults()

	p, err := NewOpenAIProvider(cfg)
	require.NoError(t, err)

	result, err := Ask[gradeResult](context.Background(), p, Request{Task: "grade"})
	require.NoError(t, err)
	assert.Equal(t, 4, result.Grade)
}

func TestGeminiProviderInvoke(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, ":generateContent")
		fmt.Fprint(w, `{"candidates":[{"content":{"parts":[{"text":"{\"grade\":1}"}]},"finishReason":"STOP"}]}`)
	}))
	defer server.Close()

	cfg := &config.OracleConfig{Type: "gemini", Host: server.URL, APIKey: "test-key"}
	cfg.SetDefaults()

	p, err := NewGeminiProvider(cfg)
	require.NoError(t, err)

	result, err := Ask[gradeResult](context.Background(), p, Request{Task: "grade"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Grade)
}

func TestRegistryUnknownType(t *testing.T) {
	_, err := New(&config.OracleConfig{Type: "crystal-ball", APIKey: "k"})
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrAllSamplesFailed))
}
