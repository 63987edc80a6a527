package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/openai/openai-go/option"
)

// fakeOpenAI serves the subset of the chat completions API the provider uses.
type fakeOpenAI struct {
	models     []string
	reply      string
	chunks     []string
	status     int
	lastBody   map[string]any
	lastAuth   string
	modelCalls int
}

func (f *fakeOpenAI) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		f.modelCalls++
		f.lastAuth = r.Header.Get("Authorization")
		if f.status != 0 {
			w.WriteHeader(f.status)
			io.WriteString(w, `{"error":{"message":"denied","type":"invalid_request_error"}}`)
			return
		}
		data := make([]map[string]any, 0, len(f.models))
		for _, id := range f.models {
			data = append(data, map[string]any{"id": id, "object": "model", "created": 0, "owned_by": "test"})
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data})
	})
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		f.lastAuth = r.Header.Get("Authorization")
		f.lastBody = nil
		if err := json.NewDecoder(r.Body).Decode(&f.lastBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if f.status != 0 {
			w.WriteHeader(f.status)
			io.WriteString(w, `{"error":{"message":"denied","type":"invalid_request_error"}}`)
			return
		}
		if stream, _ := f.lastBody["stream"].(bool); stream {
			w.Header().Set("Content-Type", "text/event-stream")
			for _, c := range f.chunks {
				chunk := map[string]any{
					"id": "c1", "object": "chat.completion.chunk", "created": 0, "model": "m",
					"choices": []map[string]any{{"index": 0, "delta": map[string]any{"content": c}}},
				}
				b, _ := json.Marshal(chunk)
				fmt.Fprintf(w, "data: %s\n\n", b)
			}
			io.WriteString(w, "data: [DONE]\n\n")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id": "r1", "object": "chat.completion", "created": 0, "model": "m",
			"choices": []map[string]any{{
				"index": 0, "finish_reason": "stop",
				"message": map[string]any{"role": "assistant", "content": f.reply},
			}},
		})
	})
	return mux
}

func newOpenAITestServer(t *testing.T, f *fakeOpenAI) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIProbeAndListModels(t *testing.T) {
	f := &fakeOpenAI{models: []string{"whisper-1", "gpt-4o", "o3-mini", "dall-e-3", "gpt-4o-mini"}}
	srv := newOpenAITestServer(t, f)
	p := NewOpenAIProvider(option.WithBaseURL(srv.URL+"/v1/"), option.WithMaxRetries(0))
	ctx := context.Background()

	if err := p.Probe(ctx, "sk-test"); err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if f.lastAuth != "Bearer sk-test" {
		t.Errorf("Authorization = %q", f.lastAuth)
	}

	models, err := p.ListModels(ctx, "sk-test")
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	want := []string{"gpt-4o", "gpt-4o-mini", "o3-mini"}
	if strings.Join(models, ",") != strings.Join(want, ",") {
		t.Errorf("models = %v, want %v", models, want)
	}
}

func TestOpenAIProbeFailures(t *testing.T) {
	t.Run("unauthorized", func(t *testing.T) {
		f := &fakeOpenAI{status: http.StatusUnauthorized}
		srv := newOpenAITestServer(t, f)
		a := NewAdapter(NewOpenAIProvider(option.WithBaseURL(srv.URL+"/v1/"), option.WithMaxRetries(0)), discardLogger())
		if a.Probe(context.Background(), "bad") {
			t.Error("Probe succeeded with a rejected key")
		}
	})

	t.Run("empty listing", func(t *testing.T) {
		f := &fakeOpenAI{}
		srv := newOpenAITestServer(t, f)
		p := NewOpenAIProvider(option.WithBaseURL(srv.URL+"/v1/"))
		if err := p.Probe(context.Background(), "sk"); err == nil {
			t.Error("Probe succeeded with no models")
		}
	})
}

func TestOpenAIChat(t *testing.T) {
	f := &fakeOpenAI{reply: "Hi there"}
	srv := newOpenAITestServer(t, f)
	p := NewOpenAIProvider(option.WithBaseURL(srv.URL + "/v1/"))

	reply, err := p.Chat(context.Background(), "gpt-4o", []Message{
		{Role: RoleSystem, Content: "be brief"},
		{Role: RoleUser, Content: "hello"},
	}, "sk")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if reply != "Hi there" {
		t.Errorf("reply = %q", reply)
	}

	if f.lastBody["model"] != "gpt-4o" {
		t.Errorf("model = %v", f.lastBody["model"])
	}
	if f.lastBody["max_tokens"] != float64(1024) || f.lastBody["temperature"] != 0.7 {
		t.Errorf("max_tokens=%v temperature=%v", f.lastBody["max_tokens"], f.lastBody["temperature"])
	}
	msgs, _ := f.lastBody["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("messages = %v", f.lastBody["messages"])
	}
	first, _ := msgs[0].(map[string]any)
	if first["role"] != "system" {
		t.Errorf("first role = %v", first["role"])
	}
}

func TestOpenAIChatErrorMapping(t *testing.T) {
	tests := []struct {
		status int
		want   string
	}{
		{status: http.StatusUnauthorized, want: "authentication with OpenAI failed"},
		{status: http.StatusForbidden, want: "authentication with OpenAI failed"},
		{status: http.StatusTooManyRequests, want: "rate limit exceeded"},
		{status: http.StatusBadRequest, want: "status 400"},
	}
	for _, tc := range tests {
		t.Run(fmt.Sprint(tc.status), func(t *testing.T) {
			f := &fakeOpenAI{status: tc.status}
			srv := newOpenAITestServer(t, f)
			a := NewAdapter(NewOpenAIProvider(option.WithBaseURL(srv.URL+"/v1/"), option.WithMaxRetries(0)), discardLogger())

			reply := a.Chat(context.Background(), "gpt-4o", []Message{{Role: RoleUser, Content: "hi"}}, "sk")
			if !IsErrorText(reply) || !strings.Contains(reply, tc.want) {
				t.Errorf("reply = %q, want it to mention %q", reply, tc.want)
			}
		})
	}
}

func TestOpenAIStream(t *testing.T) {
	f := &fakeOpenAI{chunks: []string{"Hel", "lo", " world"}}
	srv := newOpenAITestServer(t, f)
	p := NewOpenAIProvider(option.WithBaseURL(srv.URL + "/v1/"))

	s, err := p.Stream(context.Background(), "gpt-4o", []Message{{Role: RoleUser, Content: "hi"}}, "sk")
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	text, errText := Collect(s)
	if errText != "" {
		t.Fatalf("stream error: %s", errText)
	}
	if text != "Hello world" {
		t.Errorf("text = %q", text)
	}
}

func TestCompatProvidersUseTheirEndpoints(t *testing.T) {
	tests := []struct {
		p    *OpenAICompatProvider
		name string
		base string
	}{
		{p: NewMistralProvider(), name: "Mistral", base: "https://api.mistral.ai/v1/"},
		{p: NewDeepseekProvider(), name: "Deepseek", base: "https://api.deepseek.com/"},
		{p: NewOpenAIProvider(), name: "OpenAI", base: "https://api.openai.com/v1/"},
	}
	for _, tc := range tests {
		if tc.p.Name() != tc.name || tc.p.baseURL != tc.base {
			t.Errorf("%s: name=%q base=%q", tc.name, tc.p.Name(), tc.p.baseURL)
		}
	}
	if NewOpenAICompatProvider("X", "http://h/v1").baseURL != "http://h/v1/" {
		t.Error("base URL not normalized with a trailing slash")
	}
}

func TestOllamaUsesPortCredential(t *testing.T) {
	f := &fakeOpenAI{models: []string{"llama3.2", "mistral"}, reply: "local reply"}
	srv := newOpenAITestServer(t, f)
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatal(err)
	}

	p := NewOllamaProviderWithHost(u.Hostname())
	ctx := context.Background()

	if err := p.Probe(ctx, u.Port()); err != nil {
		t.Fatalf("Probe: %v", err)
	}
	models, err := p.ListModels(ctx, u.Port())
	if err != nil || len(models) != 2 {
		t.Fatalf("ListModels = %v, %v", models, err)
	}
	reply, err := p.Chat(ctx, "llama3.2", []Message{{Role: RoleUser, Content: "hi"}}, u.Port())
	if err != nil || reply != "local reply" {
		t.Fatalf("Chat = %q, %v", reply, err)
	}

	for _, bad := range []string{"abc", "0", "70000"} {
		if err := p.Probe(ctx, bad); err == nil || !strings.Contains(err.Error(), "invalid Ollama port") {
			t.Errorf("port %q: err = %v", bad, err)
		}
	}
}
