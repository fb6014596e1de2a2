package services

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiBackend generates replies with the Gemini API. The API exposes no
// vocabulary, so token ids are Unicode code points: truncation and special
// token handling work on characters.
type GeminiBackend struct {
	apiKey    string
	modelName string
	client    *genai.Client
}

func NewGeminiBackend(apiKey, modelName string) *GeminiBackend {
	return &GeminiBackend{apiKey: apiKey, modelName: modelName}
}

func (b *GeminiBackend) Name() string { return "gemini" }

// Load creates the client and makes one CountTokens call so a bad key or
// model name stops the server at startup instead of on the first request.
func (b *GeminiBackend) Load(ctx context.Context) (SpecialTokens, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(b.apiKey))
	if err != nil {
		return SpecialTokens{}, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	if _, err := client.GenerativeModel(b.modelName).CountTokens(ctx, genai.Text("ping")); err != nil {
		client.Close()
		return SpecialTokens{}, fmt.Errorf("Gemini model %s unavailable: %w", b.modelName, err)
	}

	b.client = client
	return SpecialTokens{BOS: -1, EOS: -1, Pad: -1}, nil
}

func (b *GeminiBackend) Close() {
	if b.client != nil {
		b.client.Close()
	}
}

func (b *GeminiBackend) Tokenize(_ context.Context, text string) ([]int, error) {
	return runesToTokens([]rune(text)), nil
}

func (b *GeminiBackend) Generate(ctx context.Context, tokens []int, params GenerationParams) ([]int, error) {
	if b.client == nil {
		return nil, fmt.Errorf("gemini backend not loaded")
	}

	// A fresh model handle per call: the setters mutate it.
	model := b.client.GenerativeModel(b.modelName)
	if params.DoSample {
		model.SetTemperature(params.Temperature)
		model.SetTopK(int32(params.TopK))
		model.SetTopP(params.TopP)
	} else {
		model.SetTemperature(0)
	}
	if params.MaxNewTokens > 0 {
		model.SetMaxOutputTokens(int32(params.MaxNewTokens))
	}

	resp, err := model.GenerateContent(ctx, genai.Text(tokensToString(tokens)))
	if err != nil {
		return nil, fmt.Errorf("Gemini API error: %w", err)
	}

	for i, cand := range resp.Candidates {
		if cand.FinishReason != genai.FinishReasonStop && cand.FinishReason != genai.FinishReasonMaxTokens {
			log.Printf("WARNING: Gemini candidate %d stopped due to %s", i, cand.FinishReason)
		}
	}

	text := extractText(resp)
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("Gemini returned an empty response")
	}

	full := make([]int, 0, len(tokens)+len(text))
	full = append(full, tokens...)
	return append(full, runesToTokens([]rune(" "+text))...), nil
}

func (b *GeminiBackend) Decode(_ context.Context, tokens []int, skipSpecial bool) (string, error) {
	// Code points have no special tokens to skip.
	return tokensToString(tokens), nil
}

func runesToTokens(runes []rune) []int {
	tokens := make([]int, len(runes))
	for i, r := range runes {
		tokens[i] = int(r)
	}
	return tokens
}

func tokensToString(tokens []int) string {
	var sb strings.Builder
	for _, t := range tokens {
		sb.WriteRune(rune(t))
	}
	return sb.String()
}

func extractText(resp *genai.GenerateContentResponse) string {
	var text strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content != nil {
			for _, part := range cand.Content.Parts {
				if t, ok := part.(genai.Text); ok {
					text.WriteString(string(t))
				}
			}
		}
	}
	return text.String()
}
