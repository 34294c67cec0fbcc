package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/sjson"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"ai_blog_generator/client"
	"ai_blog_generator/generator"
)

// fakeLLM hands out whatever body open returns and counts calls.
type fakeLLM struct {
	configured bool
	open       func() (io.ReadCloser, error)
	calls      atomic.Int32
}

func (f *fakeLLM) Configured() bool { return f.configured }

func (f *fakeLLM) Stream(ctx context.Context, prompt string) (io.ReadCloser, error) {
	f.calls.Add(1)
	return f.open()
}

// trackedBody records when the relay releases the upstream body.
type trackedBody struct {
	*io.PipeReader
	once   sync.Once
	closed chan struct{}
}

func (b *trackedBody) Close() error {
	b.once.Do(func() { close(b.closed) })
	return b.PipeReader.Close()
}

func frame(t *testing.T, content string) string {
	t.Helper()
	js, err := sjson.Set(`{"object":"chat.completion.chunk"}`, "choices.0.delta.content", content)
	require.NoError(t, err)
	return "data: " + js + "\n\n"
}

func newTestServer(t *testing.T, llm generator.LLMClient) *httptest.Server {
	t.Helper()
	agent, err := generator.NewAgent(llm)
	require.NoError(t, err)
	s, err := New(agent, zap.NewNop())
	require.NoError(t, err)
	return httptest.NewServer(s.Routes())
}

func postGenerate(t *testing.T, ctx context.Context, c *http.Client, url, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url+"/api/generate", strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeError(t *testing.T, resp *http.Response) string {
	t.Helper()
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	var e map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&e))
	require.Contains(t, e, "error")
	return e["error"]
}

// readExactly blocks until want has arrived, so it only passes when the
// relay flushes fragments as they come.
func readExactly(t *testing.T, r io.Reader, want string) {
	t.Helper()
	buf := make([]byte, len(want))
	_, err := io.ReadFull(r, buf)
	require.NoError(t, err)
	assert.Equal(t, want, string(buf))
}

func TestGenerate_NotConfiguredMakesNoUpstreamCall(t *testing.T) {
	var hits atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	llm, err := generator.NewOpenAILLMFromConfig(&generator.LLMSettings{
		BaseURL:    upstream.URL + "/v1/",
		HTTPClient: upstream.Client(),
	})
	require.NoError(t, err)
	srv := newTestServer(t, llm)
	defer srv.Close()

	for _, body := range []string{
		`{}`,
		`{"title":"Go","keywords":["a","b"],"perspective":"teacher"}`,
		`{"perspective":"pirate"}`,
	} {
		resp := postGenerate(t, context.Background(), srv.Client(), srv.URL, body)
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode, body)
		assert.Equal(t, msgNotConfigured, decodeError(t, resp))
		resp.Body.Close()
	}

	resp := postGenerate(t, context.Background(), srv.Client(), srv.URL, `not json`)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.NotEmpty(t, decodeError(t, resp))
	resp.Body.Close()

	assert.Zero(t, hits.Load())
}

func TestGenerate_RelaysUpstreamStream(t *testing.T) {
	var gotAuth string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, frame(t, "### Hello"))
		_, _ = io.WriteString(w, "data: {not json}\n\n")
		_, _ = io.WriteString(w, ": keep-alive\n\n")
		_, _ = io.WriteString(w, `data: {"choices":[{"delta":{"role":"assistant"}}]}`+"\n\n")
		_, _ = io.WriteString(w, frame(t, " **world**"))
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer upstream.Close()

	llm, err := generator.NewOpenAILLMFromConfig(&generator.LLMSettings{
		APIKey:     "sk-test",
		BaseURL:    upstream.URL + "/v1/",
		HTTPClient: upstream.Client(),
	})
	require.NoError(t, err)
	srv := newTestServer(t, llm)
	defer srv.Close()

	resp := postGenerate(t, context.Background(), srv.Client(), srv.URL, `{"title":"Go","perspective":"student"}`)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/plain; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.NotEmpty(t, resp.Header.Get(requestIDHeader))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "### Hello **world**", string(body))
	assert.Equal(t, "Bearer sk-test", gotAuth)
}

func TestGenerate_UpstreamRefused(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"bad key sk-secret"}}`)
	}))
	defer upstream.Close()

	llm, err := generator.NewOpenAILLMFromConfig(&generator.LLMSettings{
		APIKey:     "sk-secret",
		BaseURL:    upstream.URL + "/v1/",
		HTTPClient: upstream.Client(),
	})
	require.NoError(t, err)
	srv := newTestServer(t, llm)
	defer srv.Close()

	resp := postGenerate(t, context.Background(), srv.Client(), srv.URL, `{"title":"Go"}`)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, msgGenerationFailed, decodeError(t, resp))
}

func TestGenerate_UnknownPerspective(t *testing.T) {
	llm := &fakeLLM{configured: true, open: func() (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader("")), nil
	}}
	srv := newTestServer(t, llm)
	defer srv.Close()

	resp := postGenerate(t, context.Background(), srv.Client(), srv.URL, `{"title":"Go","perspective":"pirate"}`)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, msgGenerationFailed, decodeError(t, resp))
	assert.Zero(t, llm.calls.Load())
}

func TestGenerate_FlushesEachFragment(t *testing.T) {
	pr, pw := io.Pipe()
	llm := &fakeLLM{configured: true, open: func() (io.ReadCloser, error) { return pr, nil }}
	srv := newTestServer(t, llm)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp := postGenerate(t, ctx, srv.Client(), srv.URL, `{"title":"Go"}`)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// split a frame across two writes
	f := frame(t, "Hello")
	_, err := pw.Write([]byte(f[:9]))
	require.NoError(t, err)
	_, err = pw.Write([]byte(f[9:]))
	require.NoError(t, err)
	readExactly(t, resp.Body, "Hello")

	_, err = pw.Write([]byte(frame(t, ", world") + "data: [DONE]\n\n"))
	require.NoError(t, err)
	readExactly(t, resp.Body, ", world")

	require.NoError(t, pw.Close())
	rest, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Empty(t, rest)
}

func TestGenerate_UpstreamFailsMidStream(t *testing.T) {
	pr, pw := io.Pipe()
	llm := &fakeLLM{configured: true, open: func() (io.ReadCloser, error) { return pr, nil }}
	srv := newTestServer(t, llm)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp := postGenerate(t, ctx, srv.Client(), srv.URL, `{"title":"Go"}`)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	_, err := pw.Write([]byte(frame(t, "partial")))
	require.NoError(t, err)
	readExactly(t, resp.Body, "partial")

	pw.CloseWithError(errors.New("connection reset by upstream"))
	_, err = io.ReadAll(resp.Body)
	assert.Error(t, err, "client must not see a clean end of stream")
}

func TestGenerate_ClientDisconnectReleasesUpstream(t *testing.T) {
	leaks := goleak.IgnoreCurrent()
	defer goleak.VerifyNone(t, leaks)

	pr, pw := io.Pipe()
	body := &trackedBody{PipeReader: pr, closed: make(chan struct{})}
	llm := &fakeLLM{configured: true, open: func() (io.ReadCloser, error) { return body, nil }}
	srv := newTestServer(t, llm)
	defer srv.Close()

	tr := &http.Transport{}
	defer tr.CloseIdleConnections()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	resp := postGenerate(t, ctx, &http.Client{Transport: tr}, srv.URL, `{"title":"Go"}`)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	_, err := pw.Write([]byte(frame(t, "Hello")))
	require.NoError(t, err)
	readExactly(t, resp.Body, "Hello")

	cancel()

	select {
	case <-body.closed:
	case <-time.After(5 * time.Second):
		t.Fatal("upstream body was not closed after the client went away")
	}
	_, err = pw.Write([]byte(frame(t, "late")))
	assert.ErrorIs(t, err, io.ErrClosedPipe)
}

func TestGenerate_WithClient(t *testing.T) {
	srv := newTestServer(t, generator.MockLLM{})
	defer srv.Close()

	c := client.New(srv.URL, client.WithHTTPClient(srv.Client()))
	var updates int
	err := c.Generate(context.Background(), generator.GenerationRequest{
		Title:    "Streaming in Go",
		Keywords: []string{"http", "flush"},
	}, func(string) { updates++ })

	require.NoError(t, err)
	assert.Positive(t, updates)
	assert.Equal(t, client.Idle, c.State())
	assert.NotEmpty(t, c.Content())
	assert.NotContains(t, c.Content(), "###")
	assert.NotContains(t, c.Content(), "**")
	assert.Contains(t, c.Raw(), "Streaming in Go")
}

func TestPerspectives(t *testing.T) {
	srv := newTestServer(t, generator.MockLLM{})
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/api/perspectives")
	require.NoError(t, err)
	defer resp.Body.Close()

	var got []perspectiveResp
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Len(t, got, len(generator.Perspectives))
	assert.Equal(t, perspectiveResp{ID: "software-engineer", Label: "Software Engineer"}, got[0])
	assert.Equal(t, "casual-blogger", got[len(got)-1].ID)
}

func TestRoutes_Misc(t *testing.T) {
	srv := newTestServer(t, generator.MockLLM{})
	defer srv.Close()
	hc := srv.Client()

	resp, err := hc.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set(requestIDHeader, "abc-123")
	resp, err = hc.Do(req)
	require.NoError(t, err)
	assert.Equal(t, "abc-123", resp.Header.Get(requestIDHeader))
	resp.Body.Close()

	resp, err = hc.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	metrics, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(metrics), "blog_generator_http_requests_total")

	for _, path := range []string{"/", "/some/client/route"} {
		resp, err = hc.Get(srv.URL + path)
		require.NoError(t, err)
		page, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.Contains(t, string(page), "AI Blog Generator", path)
	}

	resp, err = hc.Get(srv.URL + "/api/generate")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	resp, err = hc.Post(srv.URL+"/healthz", "application/json", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	resp.Body.Close()
}

func TestRecoverMiddleware(t *testing.T) {
	h := recoverMiddleware(zap.NewNop(), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())

	abort := recoverMiddleware(zap.NewNop(), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))
	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		abort.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestNew_RequiresAgent(t *testing.T) {
	_, err := New(nil, nil)
	assert.Error(t, err)
}

func TestRun_StopsOnCancel(t *testing.T) {
	agent, err := generator.NewAgent(generator.MockLLM{})
	require.NoError(t, err)
	s, err := New(agent, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRun_ListenError(t *testing.T) {
	agent, err := generator.NewAgent(generator.MockLLM{})
	require.NoError(t, err)
	s, err := New(agent, zap.NewNop())
	require.NoError(t, err)

	assert.Error(t, s.Run(context.Background(), "127.0.0.1:-1"))
}
