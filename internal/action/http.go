package action

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/shaiso/conveyor/internal/domain"
)

const defaultHTTPTimeout = 30 * time.Second

// HTTPExecutor — executor для action типа "http-request".
//
// Перед отправкой в JSON-тело подставляются значения из
// task.Parameters по ключам из Injections. Классификация ответа:
// 206 — retry, остальные 2xx — completed, всё прочее — failed.
// Транспортная ошибка возвращается как error.
type HTTPExecutor struct {
	client *http.Client
}

// NewHTTPExecutor создаёт новый HTTPExecutor.
func NewHTTPExecutor() *HTTPExecutor {
	return &HTTPExecutor{client: &http.Client{}}
}

// Execute выполняет HTTP-запрос.
func (e *HTTPExecutor) Execute(ctx context.Context, task *domain.ScheduledTask, act *domain.Action) (*Result, error) {
	cfg := act.HTTPRequest
	if cfg == nil {
		return nil, fmt.Errorf("%w: http-request", ErrMissingPayload)
	}

	body, err := prepareBody(cfg, task.Parameters)
	if err != nil {
		return nil, err
	}

	timeout := defaultHTTPTimeout
	if cfg.TimeoutSec > 0 {
		timeout = time.Duration(cfg.TimeoutSec) * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	target := cfg.URL
	var bodyReader io.Reader
	if body != "" {
		if cfg.Method == http.MethodGet {
			target = target + "?" + body
		} else {
			bodyReader = strings.NewReader(body)
		}
	}

	req, err := http.NewRequestWithContext(ctx, cfg.Method, target, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrHTTPRequest, err)
	}
	for key, value := range cfg.Headers {
		req.Header.Set(key, value)
	}
	if req.Header.Get("Content-Type") == "" && cfg.Mimetype != "" {
		req.Header.Set("Content-Type", cfg.Mimetype)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHTTPRequest, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrHTTPRequest, err)
	}

	var outcome domain.Outcome
	switch {
	case resp.StatusCode == http.StatusPartialContent:
		outcome = domain.OutcomeRetry
	case resp.StatusCode >= 200 && resp.StatusCode <= 299:
		outcome = domain.OutcomeCompleted
	default:
		outcome = domain.OutcomeFailed
	}

	return &Result{Outcome: outcome, Result: dumpResponse(resp, respBody)}, nil
}

// prepareBody подставляет параметры задачи в JSON-тело.
// Для остальных mimetype тело уходит как есть.
func prepareBody(cfg *domain.HTTPRequestAction, parameters map[string]any) (string, error) {
	if cfg.Mimetype != "application/json" {
		return cfg.Data, nil
	}
	if len(cfg.Injections) == 0 || len(parameters) == 0 {
		return cfg.Data, nil
	}

	body := make(map[string]any)
	if cfg.Data != "" {
		if err := json.Unmarshal([]byte(cfg.Data), &body); err != nil {
			return "", fmt.Errorf("unmarshal action data: %w", err)
		}
	}
	for _, key := range cfg.Injections {
		if value, ok := parameters[key]; ok {
			body[key] = value
		}
	}

	prepared, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal action data: %w", err)
	}
	return string(prepared), nil
}

// dumpResponse формирует диагностический дамп ответа.
func dumpResponse(resp *http.Response, body []byte) string {
	lines := []string{fmt.Sprintf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode))}

	keys := make([]string, 0, len(resp.Header))
	for key := range resp.Header {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		lines = append(lines, fmt.Sprintf("%s: %s", key, resp.Header.Get(key)))
	}

	if len(body) > 0 {
		lines = append(lines, "", string(body))
	}
	return strings.Join(lines, "\n")
}
