package provider

import (
	"context"
	"os"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

/*
AnthropicProvider is a provider for the Anthropic API.
*/
type AnthropicProvider struct {
	client    *anthropic.Client
	model     string
	maxTokens int64
}

type AnthropicProviderOption func(*AnthropicProvider)

func NewAnthropicProvider(options ...AnthropicProviderOption) *AnthropicProvider {
	prvdr := &AnthropicProvider{
		model:     "claude-3-5-haiku-latest",
		maxTokens: 1024,
	}

	for _, option := range options {
		option(prvdr)
	}

	if prvdr.client == nil {
		WithAnthropicClient()(prvdr)
	}

	return prvdr
}

func (prvdr *AnthropicProvider) Complete(
	ctx context.Context, req Request,
) (Response, error) {
	llmResponse, err := prvdr.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(prvdr.model),
		MaxTokens: prvdr.maxTokens,
		System: []anthropic.TextBlockParam{{
			Text: req.Instructions,
		}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Input)),
		},
	})
	if err != nil {
		return Response{}, err
	}

	var text string
	for _, block := range llmResponse.Content {
		if contentBlock, ok := block.AsAny().(anthropic.TextBlock); ok {
			text += contentBlock.Text
		}
	}

	return Response{Text: text}, nil
}

func WithAnthropicClient() AnthropicProviderOption {
	return func(prvdr *AnthropicProvider) {
		client := anthropic.NewClient(
			option.WithAPIKey(os.Getenv("ANTHROPIC_API_KEY")),
		)

		prvdr.client = &client
	}
}

func WithAnthropicModel(model string) AnthropicProviderOption {
	return func(prvdr *AnthropicProvider) {
		prvdr.model = model
	}
}
