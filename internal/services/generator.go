package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	assistantName   = "LeeAI"
	replyMarker     = assistantName + ":"
	maxPromptTokens = 512
)

// SpecialTokens are the tokenizer's control token ids, resolved once when
// the backend is loaded. A negative id means the tokenizer has none.
type SpecialTokens struct {
	BOS int
	EOS int
	Pad int
}

// Has reports whether id is one of the special tokens.
func (s SpecialTokens) Has(id int) bool {
	return id >= 0 && (id == s.BOS || id == s.EOS || id == s.Pad)
}

// GenerationParams are the fixed sampling settings for every reply.
type GenerationParams struct {
	DoSample          bool
	Temperature       float32
	TopK              int
	TopP              float32
	RepetitionPenalty float32
	MaxInputTokens    int
	MaxNewTokens      int
	EOSTokenID        int
	PadTokenID        int
}

// DefaultGenerationParams returns the sampling settings used for chat replies.
func DefaultGenerationParams(maxNewTokens int, special SpecialTokens) GenerationParams {
	return GenerationParams{
		DoSample:          true,
		Temperature:       0.1,
		TopK:              40,
		TopP:              0.80,
		RepetitionPenalty: 2.0,
		MaxInputTokens:    maxPromptTokens,
		MaxNewTokens:      maxNewTokens,
		EOSTokenID:        special.EOS,
		PadTokenID:        special.Pad,
	}
}

// Backend is a tokenizer plus causal language model.
type Backend interface {
	Name() string
	// Load checks the model is reachable and resolves its special tokens.
	Load(ctx context.Context) (SpecialTokens, error)
	Tokenize(ctx context.Context, text string) ([]int, error)
	// Generate returns the full sequence: the input tokens followed by the
	// continuation.
	Generate(ctx context.Context, tokens []int, params GenerationParams) ([]int, error)
	Decode(ctx context.Context, tokens []int, skipSpecial bool) (string, error)
}

type GeneratorConfig struct {
	MaxNewTokens int
	Concurrency  int
	Timeout      time.Duration
	QueueTimeout time.Duration
}

// Generator turns a user message into a model reply.
type Generator struct {
	backend      Backend
	params       GenerationParams
	timeout      time.Duration
	queueTimeout time.Duration
	rateChan     chan struct{} // Token bucket
}

// NewGenerator loads the backend and builds a generator around it. It fails
// when the backend cannot be reached, so the caller can refuse to start.
func NewGenerator(ctx context.Context, backend Backend, cfg GeneratorConfig) (*Generator, error) {
	special, err := backend.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s backend: %w", backend.Name(), err)
	}

	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	rateChan := make(chan struct{}, cfg.Concurrency)
	for i := 0; i < cfg.Concurrency; i++ {
		rateChan <- struct{}{}
	}

	return &Generator{
		backend:      backend,
		params:       DefaultGenerationParams(cfg.MaxNewTokens, special),
		timeout:      cfg.Timeout,
		queueTimeout: cfg.QueueTimeout,
		rateChan:     rateChan,
	}, nil
}

func (g *Generator) BackendName() string { return g.backend.Name() }

// Params returns the sampling settings in use.
func (g *Generator) Params() GenerationParams { return g.params }

// FormatPrompt wraps a message in the conversation template.
func FormatPrompt(message string) string {
	return fmt.Sprintf("User: %s\n%s", message, replyMarker)
}

// ExtractReply keeps only what follows the last reply marker.
func ExtractReply(decoded string) string {
	if i := strings.LastIndex(decoded, replyMarker); i >= 0 {
		decoded = decoded[i+len(replyMarker):]
	}
	return strings.TrimSpace(decoded)
}

// Generate produces the assistant's reply to message.
func (g *Generator) Generate(ctx context.Context, message string) (string, error) {
	if err := g.acquireRate(ctx); err != nil {
		return "", err
	}
	defer g.releaseRate()

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	tokens, err := g.backend.Tokenize(ctx, FormatPrompt(message))
	if err != nil {
		return "", generationError("tokenize", err)
	}
	if len(tokens) > g.params.MaxInputTokens {
		tokens = tokens[:g.params.MaxInputTokens]
	}

	output, err := g.backend.Generate(ctx, tokens, g.params)
	if err != nil {
		return "", generationError("generate", err)
	}

	text, err := g.backend.Decode(ctx, output, true)
	if err != nil {
		return "", generationError("decode", err)
	}

	return ExtractReply(text), nil
}

// acquireRate blocks until a generation slot is available
func (g *Generator) acquireRate(ctx context.Context) error {
	var wait <-chan time.Time
	if g.queueTimeout > 0 {
		timer := time.NewTimer(g.queueTimeout)
		defer timer.Stop()
		wait = timer.C
	}

	select {
	case <-g.rateChan:
		return nil
	case <-ctx.Done():
		return &BusyError{Message: fmt.Sprintf("gave up waiting for a generation slot: %v", ctx.Err())}
	case <-wait:
		return &BusyError{Message: "timeout waiting for a generation slot"}
	}
}

func (g *Generator) releaseRate() {
	g.rateChan <- struct{}{}
}

func generationError(stage string, err error) error {
	return &GenerationError{
		Stage:   stage,
		Timeout: errors.Is(err, context.DeadlineExceeded),
		Err:     err,
	}
}
