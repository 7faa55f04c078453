package provider

import (
	"context"
	"fmt"
	"os"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

/*
OpenAIProvider is a provider for the OpenAI API.
*/
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

type OpenAIProviderOption func(*OpenAIProvider)

func NewOpenAIProvider(options ...OpenAIProviderOption) *OpenAIProvider {
	prvdr := &OpenAIProvider{
		model: "gpt-4o-mini",
	}

	for _, option := range options {
		option(prvdr)
	}

	if prvdr.client == nil {
		WithOpenAIClient()(prvdr)
	}

	return prvdr
}

func (prvdr *OpenAIProvider) Complete(
	ctx context.Context, req Request,
) (Response, error) {
	completion, err := prvdr.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(prvdr.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.Instructions),
			openai.UserMessage(req.Input),
		},
	})
	if err != nil {
		return Response{}, err
	}

	if len(completion.Choices) == 0 {
		return Response{}, fmt.Errorf("OpenAI completion returned no choices")
	}

	return Response{Text: completion.Choices[0].Message.Content}, nil
}

func WithOpenAIClient() OpenAIProviderOption {
	return func(prvdr *OpenAIProvider) {
		client := openai.NewClient(
			option.WithAPIKey(os.Getenv("OPENAI_API_KEY")),
		)

		prvdr.client = &client
	}
}

func WithOpenAIModel(model string) OpenAIProviderOption {
	return func(prvdr *OpenAIProvider) {
		prvdr.model = model
	}
}
