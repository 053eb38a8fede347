package codegen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cairnlabs/cairn/pkg/log"
	"github.com/cairnlabs/cairn/pkg/metrics"
	"github.com/cairnlabs/cairn/pkg/types"
)

// LLM is a completion backend. The production implementation talks to
// an Ollama-compatible endpoint; tests substitute a canned one.
type LLM interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Generator produces sandbox scripts from natural-language tasks
type Generator interface {
	GenerateScript(ctx context.Context, task string) (string, error)
}

// Client talks to an Ollama-compatible /api/generate endpoint.
type Client struct {
	endpoint string
	model    string
	httpc    *http.Client
}

// NewClient creates an LLM client. Endpoint is the server base URL
// (e.g. http://localhost:11434).
func NewClient(endpoint, model string, timeout time.Duration) *Client {
	return &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		model:    model,
		httpc:    &http.Client{Timeout: timeout},
	}
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// Complete sends one non-streaming completion request, retrying once
// on a transport failure. Transport and HTTP-level failures surface as
// ErrLLMUnavailable.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	timer := metrics.NewTimer()

	body, err := json.Marshal(generateRequest{
		Model:  c.model,
		Prompt: prompt,
		Stream: false,
	})
	if err != nil {
		return "", err
	}

	text, transient, err := c.generate(ctx, body)
	if err != nil && transient && ctx.Err() == nil {
		log.Logger.Warn().
			Str("component", "codegen").
			Err(err).
			Msg("llm request failed, retrying once")
		text, _, err = c.generate(ctx, body)
	}
	if err != nil {
		metrics.LLMRequestsTotal.WithLabelValues("error").Inc()
		metrics.SetUnhealthy("llm", err.Error())
		return "", err
	}

	metrics.LLMRequestsTotal.WithLabelValues("ok").Inc()
	metrics.SetHealthy("llm")
	timer.ObserveDuration(metrics.LLMRequestDuration)
	return text, nil
}

// generate performs a single request. transient reports whether the
// failure happened below HTTP (worth one retry) rather than as a server
// response.
func (c *Client) generate(ctx context.Context, body []byte) (text string, transient bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", types.ErrLLMUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", true, fmt.Errorf("%w: %v", types.ErrLLMUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", false, fmt.Errorf("%w: %s returned %d: %s",
			types.ErrLLMUnavailable, c.endpoint, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", false, fmt.Errorf("%w: malformed response: %v", types.ErrLLMUnavailable, err)
	}
	return out.Response, false, nil
}

// promptTemplate is the fixed generation prompt. It enumerates the
// only callable functions and the forbidden constructs so the model
// has the full sandbox contract in one place.
const promptTemplate = `You are a coding agent working inside a sandboxed Lua interpreter.
Write a Lua script that accomplishes this task:

%s

The only functions available beyond the Lua basics are:

  read_file(path)                 -> file contents as a string
  write_file(path, content)       -> true
  list_dir(path)                  -> array of entry names
  file_exists(path)               -> boolean
  search_files(pattern)           -> array of matching paths ("*.go" matches in every directory)
  search_content(pattern, path)   -> array of {file, line, text} matches; path defaults to "."
  ask_llm(prompt, context)        -> LLM response as a string
  submit_result(summary, changed_files) -> true
  log(message)                    -> true

Rules:
- Paths are relative to the workspace root. Never use ".." or absolute paths.
- Do not use require, io.*, os.*, load, loadstring, dofile, loadfile, debug.* or package.*.
- The script must end by calling submit_result with a one-line summary and the
  array of file paths it changed.
- Respond with only the Lua script. No explanations, no markdown.`

// BuildPrompt renders the generation prompt for one task.
func BuildPrompt(task string) string {
	return fmt.Sprintf(promptTemplate, task)
}

// StripFences removes a surrounding markdown code fence, with or
// without a language tag. Models add them despite instructions.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[idx+1:]
	} else {
		return ""
	}
	if end := strings.LastIndex(s, "```"); end >= 0 {
		s = s[:end]
	}
	return strings.TrimSpace(s)
}

// ScriptGenerator generates scripts through an LLM backend.
type ScriptGenerator struct {
	llm LLM
}

// NewScriptGenerator creates a generator over the given backend
func NewScriptGenerator(llm LLM) *ScriptGenerator {
	return &ScriptGenerator{llm: llm}
}

// GenerateScript produces a Lua script for the task. Transport
// failures and empty responses surface as ErrGeneration.
func (g *ScriptGenerator) GenerateScript(ctx context.Context, task string) (string, error) {
	resp, err := g.llm.Complete(ctx, BuildPrompt(task))
	if err != nil {
		return "", fmt.Errorf("%w: %v", types.ErrGeneration, err)
	}

	script := StripFences(resp)
	if script == "" {
		return "", fmt.Errorf("%w: model returned an empty script", types.ErrGeneration)
	}
	return script, nil
}
