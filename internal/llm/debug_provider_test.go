package llm

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestDebugProviderModels(t *testing.T) {
	models, err := NewDebugProvider().ListModels(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"burst", "fast", "normal", "realtime", "slow"}
	if strings.Join(models, ",") != strings.Join(want, ",") {
		t.Errorf("models = %v, want %v", models, want)
	}
}

func TestDebugProviderStream(t *testing.T) {
	p := NewDebugProvider()
	msgs := []Message{{Role: RoleUser, Content: "ping"}}

	stream, err := p.Stream(context.Background(), "fast", msgs, "")
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	defer stream.Close()

	var b strings.Builder
	chunks := 0
	for {
		frag, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Recv() error = %v", err)
		}
		if len(frag.Text) > debugPresets["fast"].ChunkSize {
			t.Errorf("chunk of %d bytes exceeds preset", len(frag.Text))
		}
		b.WriteString(frag.Text)
		chunks++
	}

	want, _ := p.Chat(context.Background(), "fast", msgs, "")
	if b.String() != want {
		t.Error("streamed text differs from blocking reply")
	}
	if !strings.HasPrefix(want, "> ping\n\n") {
		t.Errorf("reply does not quote the prompt: %q", want[:20])
	}
	if chunks < 2 {
		t.Errorf("chunks = %d, want several", chunks)
	}
}

func TestDebugProviderCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	stream, err := NewDebugProvider().Stream(ctx, "slow", nil, "")
	if err != nil {
		t.Fatal(err)
	}
	defer stream.Close()

	if _, err := stream.Recv(); err != nil {
		t.Fatalf("first Recv() error = %v", err)
	}
	cancel()
	for {
		_, err := stream.Recv()
		if err == nil {
			continue
		}
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
		break
	}
}

func TestDebugProviderUnknownModel(t *testing.T) {
	a := NewAdapter(NewDebugProvider(), discardLogger())
	got := a.Chat(context.Background(), "turbo", []Message{{Role: RoleUser, Content: "hi"}}, "")
	if !IsErrorText(got) || !strings.Contains(got, `unknown model "turbo"`) {
		t.Errorf("Chat = %q", got)
	}
}
