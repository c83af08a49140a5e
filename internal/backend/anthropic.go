package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/aws/aws-sdk-go-v2/config"

	"github.com/clearlane/claimflow/pkg/models"
)

// ProviderAnthropic is the provider name the Anthropic backend registers under.
const ProviderAnthropic = "anthropic"

// AnthropicConfig contains configuration for creating an AnthropicBackend.
type AnthropicConfig struct {
	// Model is the Claude model to use.
	Model anthropic.Model
	// APIKey is the Anthropic API key. If empty, uses ANTHROPIC_API_KEY env var.
	APIKey string
	// UseAWSBedrock indicates whether to use AWS Bedrock instead of the direct API.
	UseAWSBedrock bool
	// AWSRegion is the AWS region for Bedrock (e.g., "us-west-2").
	AWSRegion string
	// AWSProfile is the optional AWS profile name to use.
	AWSProfile string
	// CallTimeout bounds each individual provider call.
	CallTimeout time.Duration
	// PaceInterval is the minimum spacing between consecutive calls.
	PaceInterval time.Duration
	// MaxTokens caps the response size per call.
	MaxTokens int64
}

// AnthropicBackend drives agent reasoning through the Anthropic Messages API.
// It is stateless apart from the shared pacer and safe for concurrent use.
type AnthropicBackend struct {
	inner       anthropic.Client
	model       anthropic.Model
	pacer       *Pacer
	callTimeout time.Duration
	maxTokens   int64
}

// Compile-time verification that AnthropicBackend implements Backend.
var _ Backend = (*AnthropicBackend)(nil)

// NewAnthropicBackend creates a backend for the Anthropic API, or for Claude
// on AWS Bedrock when configured.
func NewAnthropicBackend(cfg AnthropicConfig) (*AnthropicBackend, error) {
	var opts []option.RequestOption

	if cfg.UseAWSBedrock {
		ctx := context.Background()

		var loadOpts []func(*config.LoadOptions) error
		if cfg.AWSRegion != "" {
			loadOpts = append(loadOpts, config.WithRegion(cfg.AWSRegion))
		}
		if cfg.AWSProfile != "" {
			loadOpts = append(loadOpts, config.WithSharedConfigProfile(cfg.AWSProfile))
		}

		opts = append(opts, bedrock.WithLoadDefaultConfig(ctx, loadOpts...))
	} else {
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable is not set")
		}
		opts = append(opts, option.WithAPIKey(apiKey))
	}

	model := cfg.Model
	if model == "" {
		model = anthropic.ModelClaudeSonnet4_20250514
	}
	if cfg.UseAWSBedrock {
		model = translateModelForBedrock(model)
	}

	callTimeout := cfg.CallTimeout
	if callTimeout == 0 {
		callTimeout = 60 * time.Second
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1024
	}

	return &AnthropicBackend{
		inner:       anthropic.NewClient(opts...),
		model:       model,
		pacer:       NewPacer(cfg.PaceInterval),
		callTimeout: callTimeout,
		maxTokens:   maxTokens,
	}, nil
}

// translateModelForBedrock converts standard Anthropic model names to Bedrock
// inference profile format (cross-region us. prefix).
func translateModelForBedrock(model anthropic.Model) anthropic.Model {
	bedrockModels := map[anthropic.Model]string{
		anthropic.ModelClaudeSonnet4_20250514:   "us.anthropic.claude-sonnet-4-20250514-v1:0",
		anthropic.ModelClaudeSonnet4_5_20250929: "us.anthropic.claude-sonnet-4-5-20250929-v1:0",
		anthropic.ModelClaudeHaiku4_5_20251001:  "us.anthropic.claude-haiku-4-5-20251001-v1:0",
		anthropic.ModelClaudeOpus4_1_20250805:   "us.anthropic.claude-opus-4-1-20250805-v1:0",
		anthropic.ModelClaude3_7Sonnet20250219:  "us.anthropic.claude-3-7-sonnet-20250219-v1:0",
		anthropic.ModelClaude3_5Haiku20241022:   "us.anthropic.claude-3-5-haiku-20241022-v1:0",
	}

	if bedrockModel, ok := bedrockModels[model]; ok {
		return anthropic.Model(bedrockModel)
	}
	return model
}

// Model returns the configured model name.
func (b *AnthropicBackend) Model() anthropic.Model {
	return b.model
}

// RunStep advances the agent by one reasoning step: one paced Messages call
// that yields either a tool request or the final verdict.
func (b *AnthropicBackend) RunStep(ctx context.Context, spec models.AgentSpec, conv *Conversation) (StepResult, error) {
	if err := b.pacer.Wait(ctx); err != nil {
		return StepResult{}, fmt.Errorf("%w: pacing interrupted: %v", ErrProviderTimeout, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, b.callTimeout)
	defer cancel()

	resp, err := b.inner.Messages.New(callCtx, anthropic.MessageNewParams{
		Model:     b.model,
		MaxTokens: b.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: spec.Role},
		},
		Messages: buildMessages(conv),
		Tools:    toolParams(spec.Tools),
	})
	if err != nil {
		if callCtx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
			return StepResult{}, fmt.Errorf("%w: %v", ErrProviderTimeout, err)
		}
		return StepResult{}, fmt.Errorf("%w: %v", ErrProviderError, err)
	}

	var textOutput string
	for _, block := range resp.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			textOutput += variant.Text

		case anthropic.ToolUseBlock:
			// One tool call per step: the conversation records exactly
			// the blocks that will be echoed back to the provider.
			args := map[string]any{}
			if len(variant.Input) > 0 {
				if err := json.Unmarshal(variant.Input, &args); err != nil {
					return StepResult{}, fmt.Errorf("%w: tool arguments: %v", ErrProviderError, err)
				}
			}
			call := models.ToolCall{Name: variant.Name, Arguments: args}
			conv.AddAssistantText(textOutput)
			conv.AddToolCall(variant.ID, call)
			return StepResult{Kind: StepToolCall, ToolCall: &call, CallID: variant.ID}, nil
		}
	}

	if resp.StopReason != anthropic.StopReasonEndTurn {
		return StepResult{}, fmt.Errorf("%w: unexpected stop reason %q", ErrProviderError, resp.StopReason)
	}

	verdict, err := ParseVerdict(textOutput)
	if err != nil {
		return StepResult{}, err
	}
	conv.AddAssistantText(textOutput)
	return StepResult{Kind: StepFinalVerdict, Verdict: verdict}, nil
}

// buildMessages converts the neutral conversation into Anthropic message
// params, regrouping flat turns into alternating user/assistant messages.
func buildMessages(conv *Conversation) []anthropic.MessageParam {
	var messages []anthropic.MessageParam
	var assistantBlocks []anthropic.ContentBlockParamUnion
	var resultBlocks []anthropic.ContentBlockParamUnion

	flushAssistant := func() {
		if len(assistantBlocks) > 0 {
			messages = append(messages, anthropic.NewAssistantMessage(assistantBlocks...))
			assistantBlocks = nil
		}
	}
	flushResults := func() {
		if len(resultBlocks) > 0 {
			messages = append(messages, anthropic.NewUserMessage(resultBlocks...))
			resultBlocks = nil
		}
	}

	for _, turn := range conv.Turns() {
		switch turn.Kind {
		case TurnUserText:
			flushAssistant()
			flushResults()
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(turn.Text)))

		case TurnAssistantText:
			flushResults()
			assistantBlocks = append(assistantBlocks, anthropic.NewTextBlock(turn.Text))

		case TurnToolCall:
			flushResults()
			input, _ := json.Marshal(turn.Call.Arguments)
			assistantBlocks = append(assistantBlocks,
				anthropic.NewToolUseBlock(turn.CallID, input, turn.Call.Name))

		case TurnToolResult:
			flushAssistant()
			content := turn.Result.Content
			if turn.Result.IsError() {
				content = turn.Result.Err
			}
			resultBlocks = append(resultBlocks,
				anthropic.NewToolResultBlock(turn.CallID, content, turn.Result.IsError()))
		}
	}
	flushAssistant()
	flushResults()

	return messages
}

// toolParams converts tool descriptors into Anthropic tool schemas.
func toolParams(descs []models.ToolDescriptor) []anthropic.ToolUnionParam {
	params := make([]anthropic.ToolUnionParam, 0, len(descs))
	for _, d := range descs {
		properties := map[string]interface{}{}
		var required []string
		for _, arg := range d.Args {
			properties[arg.Name] = map[string]interface{}{
				"type":        arg.Type,
				"description": arg.Description,
			}
			if arg.Required {
				required = append(required, arg.Name)
			}
		}

		params = append(params, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        d.Name,
				Description: anthropic.String(d.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: properties,
					Required:   required,
				},
			},
		})
	}
	return params
}
