package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"voicebot-platform/internal/config"
	"voicebot-platform/internal/tools"
)

// endCallMarker is the token the system prompt asks the model to append
// when the conversation is finished. Stripped before speaking.
const endCallMarker = "<end_call>"

// OpenAIGenerator implements Generator on the OpenAI Chat Completions API.
// Any OpenAI-compatible backend works via LLM_BASE_URL.
type OpenAIGenerator struct {
	client openai.Client
	model  string
}

func NewOpenAIGenerator(cfg config.LLMConfig) *OpenAIGenerator {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAIGenerator{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
	}
}

func (g *OpenAIGenerator) Generate(ctx context.Context, msgs []Message, defs []tools.Definition) (Output, error) {
	params := openai.ChatCompletionNewParams{
		Model:    g.model,
		Messages: buildMessages(msgs),
	}
	if len(defs) > 0 {
		params.Tools = buildTools(defs)
	}

	resp, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return Output{}, fmt.Errorf("llm: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Output{}, fmt.Errorf("llm: empty completion")
	}
	choice := resp.Choices[0]

	if len(choice.Message.ToolCalls) > 0 {
		tc := choice.Message.ToolCalls[0]
		return Output{
			ToolCall: &ToolCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: json.RawMessage(tc.Function.Arguments),
			},
		}, nil
	}

	text := choice.Message.Content
	out := Output{Text: text}
	if strings.Contains(text, endCallMarker) {
		out.Text = strings.TrimSpace(strings.ReplaceAll(text, endCallMarker, ""))
		out.EndCall = true
	}
	return out, nil
}

func buildMessages(msgs []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case "system":
			out = append(out, openai.SystemMessage(m.Content))
		case "user":
			out = append(out, openai.UserMessage(m.Content))
		case "assistant":
			if m.ToolCall == nil {
				out = append(out, openai.AssistantMessage(m.Content))
				continue
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{
				OfAssistant: &openai.ChatCompletionAssistantMessageParam{
					Role: "assistant",
					ToolCalls: []openai.ChatCompletionMessageToolCallParam{{
						ID:   m.ToolCall.ID,
						Type: "function",
						Function: openai.ChatCompletionMessageToolCallFunctionParam{
							Name:      m.ToolCall.Name,
							Arguments: string(m.ToolCall.Arguments),
						},
					}},
				},
			})
		case "tool":
			out = append(out, openai.ToolMessage(m.Content, m.ToolCallID))
		default:
			if m.Content != "" {
				out = append(out, openai.UserMessage(m.Content))
			}
		}
	}
	return out
}

func buildTools(defs []tools.Definition) []openai.ChatCompletionToolParam {
	out := make([]openai.ChatCompletionToolParam, len(defs))
	for i, d := range defs {
		var params openai.FunctionParameters
		_ = json.Unmarshal(d.Schema, &params)
		out[i] = openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        d.Name,
				Description: openai.String(d.Description),
				Parameters:  params,
			},
		}
	}
	return out
}
