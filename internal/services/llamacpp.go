package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// LlamaCppConfig configures the client of a llama.cpp compatible inference
// server.
type LlamaCppConfig struct {
	BaseURL  string // e.g. http://127.0.0.1:8080
	Model    string // informational, the server decides which weights it serves
	BOSToken string // e.g. "<s>", empty when the model has none
	EOSToken string // e.g. "</s>"
	Timeout  time.Duration
}

// LlamaCppBackend talks to the /tokenize, /completion and /detokenize
// endpoints of a llama.cpp server.
type LlamaCppBackend struct {
	cfg     LlamaCppConfig
	client  *http.Client
	special SpecialTokens
}

func NewLlamaCppBackend(cfg LlamaCppConfig) *LlamaCppBackend {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &LlamaCppBackend{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		special: SpecialTokens{BOS: -1, EOS: -1, Pad: -1},
	}
}

func (b *LlamaCppBackend) Name() string { return "llamacpp" }

type llamaTokenizeRequest struct {
	Content      string `json:"content"`
	AddSpecial   bool   `json:"add_special"`
	ParseSpecial bool   `json:"parse_special"`
}

type llamaTokenizeResponse struct {
	Tokens []int `json:"tokens"`
}

type llamaDetokenizeRequest struct {
	Tokens []int `json:"tokens"`
}

type llamaDetokenizeResponse struct {
	Content string `json:"content"`
}

type llamaCompletionRequest struct {
	Prompt        []int   `json:"prompt"`
	NPredict      int     `json:"n_predict"`
	Temperature   float32 `json:"temperature"`
	TopK          int     `json:"top_k"`
	TopP          float32 `json:"top_p"`
	RepeatPenalty float32 `json:"repeat_penalty"`
	IgnoreEOS     bool    `json:"ignore_eos"`
	CachePrompt   bool    `json:"cache_prompt"`
	ReturnTokens  bool    `json:"return_tokens"`
	Stream        bool    `json:"stream"`
}

type llamaCompletionResponse struct {
	Content string `json:"content"`
	Tokens  []int  `json:"tokens"`
	Stop    bool   `json:"stop"`
}

// Load requires the server to already report healthy. The special token ids
// are looked up by tokenizing their text.
func (b *LlamaCppBackend) Load(ctx context.Context) (SpecialTokens, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.cfg.BaseURL+"/health", nil)
	if err != nil {
		return SpecialTokens{}, fmt.Errorf("failed to create health request: %w", err)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return SpecialTokens{}, fmt.Errorf("llama server unreachable: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return SpecialTokens{}, fmt.Errorf("llama server not ready: status %d", resp.StatusCode)
	}

	special := SpecialTokens{BOS: -1, EOS: -1, Pad: -1}
	if special.EOS, err = b.specialTokenID(ctx, b.cfg.EOSToken); err != nil {
		return SpecialTokens{}, err
	}
	if b.cfg.BOSToken != "" {
		if special.BOS, err = b.specialTokenID(ctx, b.cfg.BOSToken); err != nil {
			return SpecialTokens{}, err
		}
	}
	// No dedicated padding token: pad with EOS.
	special.Pad = special.EOS

	b.special = special
	return special, nil
}

func (b *LlamaCppBackend) specialTokenID(ctx context.Context, text string) (int, error) {
	if text == "" {
		return -1, fmt.Errorf("special token text is empty")
	}
	var out llamaTokenizeResponse
	err := b.postJSON(ctx, "/tokenize", llamaTokenizeRequest{Content: text, ParseSpecial: true}, &out)
	if err != nil {
		return -1, err
	}
	if len(out.Tokens) != 1 {
		return -1, fmt.Errorf("special token %q is not in the vocabulary (got %d tokens)", text, len(out.Tokens))
	}
	return out.Tokens[0], nil
}

func (b *LlamaCppBackend) Tokenize(ctx context.Context, text string) ([]int, error) {
	var out llamaTokenizeResponse
	if err := b.postJSON(ctx, "/tokenize", llamaTokenizeRequest{Content: text, AddSpecial: true}, &out); err != nil {
		return nil, err
	}
	return out.Tokens, nil
}

func (b *LlamaCppBackend) Generate(ctx context.Context, tokens []int, params GenerationParams) ([]int, error) {
	temperature := params.Temperature
	if !params.DoSample {
		temperature = 0
	}
	body := llamaCompletionRequest{
		Prompt:        tokens,
		NPredict:      params.MaxNewTokens,
		Temperature:   temperature,
		TopK:          params.TopK,
		TopP:          params.TopP,
		RepeatPenalty: params.RepetitionPenalty,
		ReturnTokens:  true,
	}

	var out llamaCompletionResponse
	if err := b.postJSON(ctx, "/completion", body, &out); err != nil {
		return nil, err
	}

	full := make([]int, 0, len(tokens)+len(out.Tokens))
	full = append(full, tokens...)
	for _, id := range out.Tokens {
		if id == params.EOSTokenID {
			break
		}
		full = append(full, id)
	}
	return full, nil
}

func (b *LlamaCppBackend) Decode(ctx context.Context, tokens []int, skipSpecial bool) (string, error) {
	if skipSpecial {
		kept := make([]int, 0, len(tokens))
		for _, id := range tokens {
			if !b.special.Has(id) {
				kept = append(kept, id)
			}
		}
		tokens = kept
	}

	var out llamaDetokenizeResponse
	if err := b.postJSON(ctx, "/detokenize", llamaDetokenizeRequest{Tokens: tokens}, &out); err != nil {
		return "", err
	}
	return out.Content, nil
}

func (b *LlamaCppBackend) postJSON(ctx context.Context, path string, in, out interface{}) error {
	jsonBody, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.cfg.BaseURL+path, bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("llama server %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("llama server %s returned %d: %s", path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}
