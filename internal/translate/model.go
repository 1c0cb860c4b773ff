package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/datasage-io/datasage/internal/errs"
	"github.com/datasage-io/datasage/internal/logger"
	"github.com/datasage-io/datasage/internal/profile"
)

// ModelConfig configures the model-assisted translation path.
type ModelConfig struct {
	BaseURL        string
	Name           string
	APIKey         string
	Timeout        time.Duration
	RetryTransient bool
}

// ModelTranslator asks a chat-completion endpoint to write the SQL. The
// endpoint is any OpenAI-compatible API. Every failure mode (missing key,
// network error, non-200 status, unparseable reply, empty completion)
// surfaces as a translation-unavailable error so the caller can decide
// whether to fall back to the rule path.
type ModelTranslator struct {
	cfg      ModelConfig
	relation string
	client   *http.Client
	log      *logger.Logger
}

// NewModelTranslator builds a model translator for the given relation name.
func NewModelTranslator(cfg ModelConfig, relation string, log *logger.Logger) *ModelTranslator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if log == nil {
		log = logger.New(nil)
	}
	return &ModelTranslator{
		cfg:      cfg,
		relation: relation,
		client:   &http.Client{Timeout: cfg.Timeout},
		log:      log,
	}
}

// Available reports whether the model path is usable at all.
func (m *ModelTranslator) Available() bool {
	return m.cfg.APIKey != ""
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Translate prompts the model with the schema and question and returns the
// completion as candidate SQL. The result is untrusted text: it must pass
// the safety validator before anything executes it.
func (m *ModelTranslator) Translate(ctx context.Context, question string, schema *profile.Schema) (Result, error) {
	if strings.TrimSpace(question) == "" {
		return Result{}, errs.New(errs.ErrKindEmptyQuestion, "question text is empty")
	}
	if !m.Available() {
		return Result{}, errs.New(errs.ErrKindTranslationUnavailable, "model translation is not configured")
	}

	body, err := json.Marshal(chatRequest{
		Model: m.cfg.Name,
		Messages: []chatMessage{
			{Role: "system", Content: m.systemPrompt(schema)},
			{Role: "user", Content: question},
		},
		Temperature: 0,
	})
	if err != nil {
		return Result{}, errs.Wrap(errs.ErrKindTranslationUnavailable, "encode model request", err)
	}

	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	resp, err := m.post(ctx, body)
	if err != nil {
		return Result{}, err
	}

	sql := stripFences(resp)
	if sql == "" {
		return Result{}, errs.New(errs.ErrKindTranslationUnavailable, "model returned an empty completion")
	}

	return Result{SQL: sql, Origin: OriginModel}, nil
}

// post sends the completion request, retrying once on transient failures
// (network errors and 5xx) when configured to.
func (m *ModelTranslator) post(ctx context.Context, body []byte) (string, error) {
	attempts := 1
	if m.cfg.RetryTransient {
		attempts = 2
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		text, retryable, err := m.postOnce(ctx, body)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !retryable || ctx.Err() != nil || attempt == attempts {
			break
		}
		m.log.With().Int("attempt", attempt).Err(err).Logger().Warn("model request failed, retrying")
	}
	return "", lastErr
}

func (m *ModelTranslator) postOnce(ctx context.Context, body []byte) (text string, retryable bool, err error) {
	url := strings.TrimRight(m.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", false, errs.Wrap(errs.ErrKindTranslationUnavailable, "build model request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.cfg.APIKey)

	resp, err := m.client.Do(req)
	if err != nil {
		return "", true, errs.Wrap(errs.ErrKindTranslationUnavailable, "model request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", true, errs.Wrap(errs.ErrKindTranslationUnavailable, "read model response", err)
	}

	if resp.StatusCode != http.StatusOK {
		retryable = resp.StatusCode >= 500
		return "", retryable, errs.New(errs.ErrKindTranslationUnavailable,
			fmt.Sprintf("model endpoint returned status %d", resp.StatusCode))
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", false, errs.Wrap(errs.ErrKindTranslationUnavailable, "decode model response", err)
	}
	if len(parsed.Choices) == 0 {
		return "", false, errs.New(errs.ErrKindTranslationUnavailable, "model response has no choices")
	}
	return parsed.Choices[0].Message.Content, false, nil
}

// systemPrompt describes the relation to the model: one table, its columns
// with inferred types and a few sampled values, and the output contract.
func (m *ModelTranslator) systemPrompt(schema *profile.Schema) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You translate analytics questions into a single SQLite SELECT statement.\n")
	fmt.Fprintf(&sb, "The only table is %q with these columns:\n", m.relation)
	for _, col := range schema.Columns {
		fmt.Fprintf(&sb, "- %s (%s, %s)", col.Name, col.Declared, col.Semantic)
		if len(col.SampleValues) > 0 {
			fmt.Fprintf(&sb, " e.g. %s", strings.Join(col.SampleValues, ", "))
		}
		sb.WriteString("\n")
	}
	sb.WriteString("Rules: read-only SELECT only, no other statements, always include a LIMIT. ")
	sb.WriteString("Reply with the SQL text alone, no explanation.")
	return sb.String()
}

// stripFences removes a markdown code fence wrapping, with or without a
// language tag, and trims whitespace.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.Index(s, "\n"); i >= 0 && !strings.ContainsAny(s[:i], " \t") {
		// First fence line is a bare language tag such as "sql".
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
