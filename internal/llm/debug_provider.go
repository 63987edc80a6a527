package llm

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// debugPreset defines streaming rate configuration.
type debugPreset struct {
	ChunkSize int
	Delay     time.Duration
}

// debugPresets maps model names to their streaming configurations.
var debugPresets = map[string]debugPreset{
	"fast":     {ChunkSize: 50, Delay: 5 * time.Millisecond},
	"normal":   {ChunkSize: 20, Delay: 20 * time.Millisecond},
	"slow":     {ChunkSize: 10, Delay: 50 * time.Millisecond},
	"realtime": {ChunkSize: 5, Delay: 30 * time.Millisecond},
	"burst":    {ChunkSize: 200, Delay: 100 * time.Millisecond},
}

// debugSample exercises prose wrapping and fenced code highlighting.
const debugSample = `This reply comes from the **Debug** backend. Nothing left this machine.

Replies are paced by the model you picked, so the streaming indicator,
cancellation and fragment batching can be watched without an API key.

` + "```go" + `
func fanOut(ctx context.Context, jobs []Job) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, j := range jobs {
		g.Go(func() error { return j.Run(ctx) })
	}
	return g.Wait()
}
` + "```" + `

` + "```python" + `
async def drain(stream):
    async for chunk in stream:
        print(chunk, end="")
` + "```" + `

- Press esc while this streams to cancel it.
- Type /retry to ask again.
`

// DebugProvider is a local backend that replies with canned markdown at a
// configurable pace. It needs no credential and never touches the network.
type DebugProvider struct{}

// NewDebugProvider creates the debug backend.
func NewDebugProvider() *DebugProvider {
	return &DebugProvider{}
}

func (d *DebugProvider) Name() string {
	return "Debug"
}

func (d *DebugProvider) Probe(ctx context.Context, credential string) error {
	return ctx.Err()
}

// ListModels returns the pacing presets; each one is a model.
func (d *DebugProvider) ListModels(ctx context.Context, credential string) ([]string, error) {
	models := make([]string, 0, len(debugPresets))
	for name := range debugPresets {
		models = append(models, name)
	}
	sort.Strings(models)
	return models, nil
}

func (d *DebugProvider) preset(model string) (debugPreset, error) {
	p, ok := debugPresets[strings.TrimSpace(model)]
	if !ok {
		return debugPreset{}, fmt.Errorf("debug: unknown model %q", model)
	}
	return p, nil
}

func debugReply(messages []Message) string {
	var b strings.Builder
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			fmt.Fprintf(&b, "> %s\n\n", strings.ReplaceAll(messages[i].Content, "\n", "\n> "))
			break
		}
	}
	b.WriteString(debugSample)
	return b.String()
}

func (d *DebugProvider) Chat(ctx context.Context, model string, messages []Message, credential string) (string, error) {
	if _, err := d.preset(model); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return debugReply(messages), nil
}

func (d *DebugProvider) Stream(ctx context.Context, model string, messages []Message, credential string) (Stream, error) {
	preset, err := d.preset(model)
	if err != nil {
		return nil, err
	}
	text := debugReply(messages)

	return newFragmentStream(ctx, func(ctx context.Context, ch chan<- Fragment) error {
		for len(text) > 0 {
			end := min(preset.ChunkSize, len(text))
			chunk := text[:end]
			text = text[end:]

			select {
			case <-ctx.Done():
				return ctx.Err()
			case ch <- Fragment{Text: chunk}:
			}

			if preset.Delay > 0 && len(text) > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(preset.Delay):
				}
			}
		}
		return nil
	}), nil
}
