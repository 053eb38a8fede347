package codegen

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cairnlabs/cairn/pkg/types"
)

type cannedLLM struct {
	response string
	err      error
	prompt   string
}

func (c *cannedLLM) Complete(_ context.Context, prompt string) (string, error) {
	c.prompt = prompt
	return c.response, c.err
}

func TestClientComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		w.Write([]byte(`{"response":"print('hi')"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "qwen2.5-coder:7b", 5*time.Second)
	out, err := c.Complete(context.Background(), "do something")
	require.NoError(t, err)
	assert.Equal(t, "print('hi')", out)
}

func TestClientCompleteServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "m", 5*time.Second)
	_, err := c.Complete(context.Background(), "p")
	assert.ErrorIs(t, err, types.ErrLLMUnavailable)
}

func TestClientCompleteUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	c := NewClient(srv.URL, "m", time.Second)
	_, err := c.Complete(context.Background(), "p")
	assert.ErrorIs(t, err, types.ErrLLMUnavailable)
}

func TestClientCompleteRetriesTransportError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			// Kill the connection mid-request so the client sees a
			// transport error, not an HTTP status
			conn, _, err := w.(http.Hijacker).Hijack()
			require.NoError(t, err)
			conn.Close()
			return
		}
		w.Write([]byte(`{"response":"second try"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "m", 5*time.Second)
	out, err := c.Complete(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, "second try", out)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestClientCompleteDoesNotRetryServerError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "bad model", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "m", 5*time.Second)
	_, err := c.Complete(context.Background(), "p")
	assert.ErrorIs(t, err, types.ErrLLMUnavailable)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGenerateScript(t *testing.T) {
	llm := &cannedLLM{response: "```lua\nwrite_file(\"a\", \"b\")\nsubmit_result(\"done\", {\"a\"})\n```"}
	g := NewScriptGenerator(llm)

	script, err := g.GenerateScript(context.Background(), "edit a")
	require.NoError(t, err)
	assert.Equal(t, "write_file(\"a\", \"b\")\nsubmit_result(\"done\", {\"a\"})", script)

	// The prompt embeds the task and the sandbox contract
	assert.Contains(t, llm.prompt, "edit a")
	assert.Contains(t, llm.prompt, "submit_result")
	assert.Contains(t, llm.prompt, "read_file")
}

func TestGenerateScriptTransportFailure(t *testing.T) {
	llm := &cannedLLM{err: types.ErrLLMUnavailable}
	g := NewScriptGenerator(llm)

	_, err := g.GenerateScript(context.Background(), "t")
	assert.ErrorIs(t, err, types.ErrGeneration)
}

func TestGenerateScriptEmptyResponse(t *testing.T) {
	llm := &cannedLLM{response: "```\n```"}
	g := NewScriptGenerator(llm)

	_, err := g.GenerateScript(context.Background(), "t")
	assert.ErrorIs(t, err, types.ErrGeneration)
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no fences", "print('x')", "print('x')"},
		{"plain fence", "```\nprint('x')\n```", "print('x')"},
		{"lua fence", "```lua\nprint('x')\n```", "print('x')"},
		{"surrounding whitespace", "  \n```lua\nprint('x')\n```\n ", "print('x')"},
		{"fence only", "```", ""},
		{"unterminated fence", "```lua\nprint('x')", "print('x')"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripFences(tt.in))
		})
	}
}
