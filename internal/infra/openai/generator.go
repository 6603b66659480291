package openai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/hondana-dev/hondana/internal/core/answer"
	"github.com/hondana-dev/hondana/internal/core/capability"
)

const (
	// DefaultGenerationModel はデフォルトで使用するOpenAIモデル
	DefaultGenerationModel = "gpt-4o-mini"

	// DefaultGenerationTimeout はAPI呼び出しのデフォルトタイムアウト
	DefaultGenerationTimeout = 60 * time.Second

	// DefaultTemperature はデフォルトの生成温度
	DefaultTemperature = 0.2

	// maxRetries はレート制限エラー時の最大リトライ回数
	maxRetries = 3

	// baseBackoff はExponential Backoffの基底時間
	baseBackoff = 2 * time.Second

	// maxBackoff はExponential Backoffの最大待機時間
	maxBackoff = 32 * time.Second
)

// Generator は OpenAI Chat Completions を使用した回答生成クライアント
type Generator struct {
	client      openai.Client
	model       string
	temperature float64
	maxTokens   int
	timeout     time.Duration
}

type generatorOptions struct {
	model       string
	temperature float64
	maxTokens   int
	timeout     time.Duration
}

// GeneratorOption は Generator のオプション設定
type GeneratorOption func(*generatorOptions)

// WithGenerationModel はモデル名を上書きする
func WithGenerationModel(model string) GeneratorOption {
	return func(o *generatorOptions) {
		o.model = model
	}
}

// WithTemperature は生成温度を上書きする
func WithTemperature(temperature float64) GeneratorOption {
	return func(o *generatorOptions) {
		o.temperature = temperature
	}
}

// WithMaxTokens は生成トークン数の上限を設定する
func WithMaxTokens(maxTokens int) GeneratorOption {
	return func(o *generatorOptions) {
		o.maxTokens = maxTokens
	}
}

// WithGenerationTimeout はAPI呼び出しのタイムアウトを上書きする
func WithGenerationTimeout(timeout time.Duration) GeneratorOption {
	return func(o *generatorOptions) {
		o.timeout = timeout
	}
}

// NewGenerator は新しい Generator を作成する
func NewGenerator(apiKey string, opts ...GeneratorOption) *Generator {
	options := generatorOptions{
		model:       DefaultGenerationModel,
		temperature: DefaultTemperature,
		timeout:     DefaultGenerationTimeout,
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &Generator{
		client: openai.NewClient(
			option.WithAPIKey(apiKey),
		),
		model:       options.model,
		temperature: options.temperature,
		maxTokens:   options.maxTokens,
		timeout:     options.timeout,
	}
}

// Generate はプロンプトに対する生成テキストを返す
// レート制限エラーのみExponential Backoffで既定回数まで再試行し、
// それ以外の障害・タイムアウトは ErrGenerationUnavailable として伝播する
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * baseBackoff
			if backoff > maxBackoff {
				backoff = maxBackoff
			}

			select {
			case <-ctx.Done():
				return "", fmt.Errorf("%w: %v", capability.ErrGenerationUnavailable, ctx.Err())
			case <-time.After(backoff):
			}
		}

		params := openai.ChatCompletionNewParams{
			Model: shared.ChatModel(g.model),
			Messages: []openai.ChatCompletionMessageParamUnion{
				openai.UserMessage(prompt),
			},
			Temperature: openai.Float(g.temperature),
		}
		if g.maxTokens > 0 {
			params.MaxTokens = openai.Int(int64(g.maxTokens))
		}

		completion, err := g.client.Chat.Completions.New(ctx, params)
		if err != nil {
			lastErr = err

			if isRateLimitError(err) {
				continue
			}

			return "", fmt.Errorf("%w: openai chat completion: %v", capability.ErrGenerationUnavailable, err)
		}

		if len(completion.Choices) == 0 {
			return "", fmt.Errorf("%w: no completion choices returned", capability.ErrGenerationUnavailable)
		}

		return completion.Choices[0].Message.Content, nil
	}

	return "", fmt.Errorf("%w: max retries exceeded: %v", capability.ErrGenerationUnavailable, lastErr)
}

// ModelName はモデル名を返す
func (g *Generator) ModelName() string {
	return g.model
}

func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}

	return false
}

// インターフェース実装の確認
var _ answer.Generator = (*Generator)(nil)
