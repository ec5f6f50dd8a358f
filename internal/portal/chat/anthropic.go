package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/moussadar/moussadar/internal/config"
	"github.com/moussadar/moussadar/internal/portal/schema"
)

const systemPrompt = `You are the assistant of Moussadar, a public services portal.
Answer questions about administrative procedures and official documents
briefly and concretely, in at most four sentences. If you do not know, say
so and suggest contacting the relevant service.`

// AnthropicGenerator answers generic messages with a Claude model.
type AnthropicGenerator struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropicGenerator builds a generator from cfg. Extra options are
// passed to the SDK client (base URL, HTTP client, retries).
func NewAnthropicGenerator(cfg config.AnthropicConfig, opts ...option.RequestOption) *AnthropicGenerator {
	opts = append([]option.RequestOption{option.WithAPIKey(cfg.APIKey)}, opts...)
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 512
	}
	return &AnthropicGenerator{
		client:    anthropic.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: maxTokens,
	}
}

// Generate implements Generator.
func (g *AnthropicGenerator) Generate(ctx context.Context, message string, lang schema.Lang) (string, error) {
	language := "French"
	if lang == schema.LangAR {
		language = "Arabic"
	}

	msg, err := g.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(g.model),
		MaxTokens: g.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt + "\nAlways reply in " + language + "."},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(message)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to call model: %w", err)
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("model returned no text")
	}
	return b.String(), nil
}
