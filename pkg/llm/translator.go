package llm

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/clearquote-engine/pkg/apperrors"
	"github.com/ekaya-inc/clearquote-engine/pkg/jsonutil"
	"github.com/ekaya-inc/clearquote-engine/pkg/logging"
	"github.com/ekaya-inc/clearquote-engine/pkg/prompts"
	"github.com/ekaya-inc/clearquote-engine/pkg/retry"
)

// DefaultClarification is asked when the model wants clarification but
// does not say about what.
const DefaultClarification = "Please clarify."

// Translation is the model's answer to one question. SQL is untrusted until
// the guardrail accepts it.
type Translation struct {
	NeedsClarification    bool              `json:"needs_clarification"`
	ClarificationQuestion string            `json:"clarification_question"`
	SQL                   string            `json:"sql"`
	Params                map[string]any    `json:"params"`
	Assumptions           []string          `json:"assumptions"`
	NormalizedTerms       map[string]string `json:"normalized_terms"`
}

// rawTranslation tolerates nulls and loosely typed scalars the model emits.
type rawTranslation struct {
	NeedsClarification    json.RawMessage `json:"needs_clarification"`
	ClarificationQuestion json.RawMessage `json:"clarification_question"`
	SQL                   json.RawMessage `json:"sql"`
	Params                map[string]any  `json:"params"`
	Assumptions           json.RawMessage `json:"assumptions"`
	NormalizedTerms       json.RawMessage `json:"normalized_terms"`
}

// TranslatorConfig tunes a Translator.
type TranslatorConfig struct {
	Temperature    float64
	Retry          *retry.Config
	CircuitBreaker CircuitBreakerConfig
}

// Translator turns natural-language questions into candidate SQL.
type Translator struct {
	client      LLMClient
	tables      []prompts.TableContext
	temperature float64
	retryCfg    *retry.Config
	breaker     *CircuitBreaker
	logger      *zap.Logger
}

// NewTranslator creates a translator that describes tables to the model.
func NewTranslator(client LLMClient, tables []prompts.TableContext, cfg TranslatorConfig, logger *zap.Logger) *Translator {
	if logger == nil {
		logger = zap.NewNop()
	}
	retryCfg := cfg.Retry
	if retryCfg == nil {
		retryCfg = retry.DefaultConfig()
	}
	breakerCfg := cfg.CircuitBreaker
	if breakerCfg.Threshold == 0 && breakerCfg.ResetAfter == 0 {
		breakerCfg = DefaultCircuitBreakerConfig()
	}

	t := &Translator{
		client:      client,
		tables:      tables,
		temperature: cfg.Temperature,
		breaker:     NewCircuitBreaker(breakerCfg),
		logger:      logger.Named("translator"),
	}

	rc := *retryCfg
	rc.OnRetry = func(attempt int, err error) {
		t.logger.Warn("Translator call failed, retrying",
			zap.Int("attempt", attempt),
			zap.String("error", logging.SanitizeError(err)))
	}
	t.retryCfg = &rc
	return t
}

// Translate asks the model for SQL answering question, with today as the
// reference date for relative periods.
func (t *Translator) Translate(ctx context.Context, question string, today time.Time) (*Translation, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, apperrors.ErrEmptyQuestion
	}

	if err := t.breaker.Allow(); err != nil {
		return nil, NewError(ErrorTypeEndpoint, err.Error(), false, nil)
	}

	prompt := prompts.BuildNL2SQLPrompt(question, t.tables, today)
	system := prompts.NL2SQLSystemMessage()

	start := time.Now()
	result, err := retry.DoWithResult(ctx, t.retryCfg, func() (*GenerateResponseResult, error) {
		return t.client.GenerateResponse(ctx, prompt, system, t.temperature)
	})
	if err != nil {
		// A caller giving up says nothing about the endpoint's health.
		if ctx.Err() == nil {
			t.breaker.RecordFailure()
		}
		return nil, ClassifyError(err)
	}
	t.breaker.RecordSuccess()

	t.logger.Debug("Translator responded",
		zap.String("model", t.client.GetModel()),
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("prompt_tokens", result.PromptTokens),
		zap.Int("completion_tokens", result.CompletionTokens))

	return parseTranslation(result.Content)
}

// CircuitState exposes the breaker state for health reporting.
func (t *Translator) CircuitState() CircuitState {
	return t.breaker.State()
}

// Model returns the model name in use.
func (t *Translator) Model() string {
	return t.client.GetModel()
}

func parseTranslation(content string) (*Translation, error) {
	raw, err := ParseJSONResponse[rawTranslation](content)
	if err != nil {
		return nil, NewError(ErrorTypeResponse, "translator returned invalid JSON", false, err)
	}

	tr := &Translation{
		NeedsClarification:    jsonutil.FlexibleBoolValue(raw.NeedsClarification),
		ClarificationQuestion: strings.TrimSpace(jsonutil.FlexibleStringValue(raw.ClarificationQuestion)),
		SQL:                   strings.TrimSpace(jsonutil.FlexibleStringValue(raw.SQL)),
		Params:                raw.Params,
		Assumptions:           jsonutil.FlexibleStringSlice(raw.Assumptions),
		NormalizedTerms:       jsonutil.FlexibleStringMap(raw.NormalizedTerms),
	}
	if tr.Params == nil {
		tr.Params = map[string]any{}
	}

	if tr.NeedsClarification {
		if tr.ClarificationQuestion == "" {
			tr.ClarificationQuestion = DefaultClarification
		}
		tr.SQL = ""
		return tr, nil
	}
	if tr.SQL == "" {
		return nil, NewError(ErrorTypeResponse, "translator returned no SQL", false, apperrors.ErrNoSQL)
	}
	return tr, nil
}
