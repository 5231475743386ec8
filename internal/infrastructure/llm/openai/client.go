package openai

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	sdk "github.com/sashabaranov/go-openai"

	"github.com/kirillkom/docs-analyst/internal/infrastructure/resilience"
)

const (
	DefaultGenModel   = "gpt-4o-mini"
	DefaultEmbedModel = "text-embedding-3-small"

	// embedBatchLimit caps inputs per embeddings request.
	embedBatchLimit = 100
)

type Client struct {
	api        *sdk.Client
	genModel   string
	embedModel string
	executor   *resilience.Executor
}

func New(apiKey, baseURL, genModel, embedModel string, executor *resilience.Executor) *Client {
	cfg := sdk.DefaultConfig(apiKey)
	if strings.TrimSpace(baseURL) != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	cfg.HTTPClient = &http.Client{Timeout: 120 * time.Second}
	if genModel == "" {
		genModel = DefaultGenModel
	}
	if embedModel == "" {
		embedModel = DefaultEmbedModel
	}
	if executor == nil {
		executor = resilience.NewExecutor(resilience.DefaultConfig())
	}
	return &Client{
		api:        sdk.NewClientWithConfig(cfg),
		genModel:   genModel,
		embedModel: embedModel,
		executor:   executor,
	}
}

type Generator struct {
	client *Client
}

func NewGenerator(client *Client) *Generator {
	return &Generator{client: client}
}

func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	req := sdk.ChatCompletionRequest{
		Model: g.client.genModel,
		Messages: []sdk.ChatCompletionMessage{
			{Role: sdk.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0.2,
	}

	var content string
	err := g.client.executor.Execute(ctx, "openai.generate", func(ctx context.Context) error {
		resp, err := g.client.api.CreateChatCompletion(ctx, req)
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("openai generate: empty choices")
		}
		content = resp.Choices[0].Message.Content
		return nil
	}, classifyOpenAIError)
	if err != nil {
		return "", wrapUnavailable("openai generate", err)
	}
	return strings.TrimSpace(content), nil
}

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) Identity() string {
	return "openai:" + e.client.embedModel
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += embedBatchLimit {
		end := start + embedBatchLimit
		if end > len(texts) {
			end = len(texts)
		}
		vectors, err := e.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vectors...)
	}
	return out, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return vectors[0], nil
}

func (e *Embedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	req := sdk.EmbeddingRequest{
		Input: texts,
		Model: sdk.EmbeddingModel(e.client.embedModel),
	}

	var data []sdk.Embedding
	err := e.client.executor.Execute(ctx, "openai.embed", func(ctx context.Context) error {
		resp, err := e.client.api.CreateEmbeddings(ctx, req)
		if err != nil {
			return err
		}
		data = resp.Data
		return nil
	}, classifyOpenAIError)
	if err != nil {
		return nil, wrapUnavailable("openai embed", err)
	}
	if len(data) != len(texts) {
		return nil, fmt.Errorf("openai embed returned %d vectors for %d inputs", len(data), len(texts))
	}

	sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })
	out := make([][]float32, len(data))
	for i, d := range data {
		out[i] = d.Embedding
	}
	return out, nil
}
