package endpoint

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/shaiso/conveyor/internal/domain"
)

const defaultTimeout = 30 * time.Second

// Client — HTTP-клиент для callback-обменов с executor'ами и queues.
type Client struct {
	http *http.Client
}

// NewClient создаёт новый Client.
func NewClient() *Client {
	return &Client{http: &http.Client{}}
}

// Response — ответ callback-цели.
type Response struct {
	// StatusCode — HTTP-код ответа.
	StatusCode int

	// Headers — заголовки ответа.
	Headers map[string]string

	// Body — сырое тело ответа.
	Body []byte
}

// Unserialize разбирает тело ответа как JSON-объект.
func (r *Response) Unserialize() (map[string]any, error) {
	if len(r.Body) == 0 {
		return nil, nil
	}
	var payload map[string]any
	if err := json.Unmarshal(r.Body, &payload); err != nil {
		return nil, fmt.Errorf("unserialize response: %w", err)
	}
	return payload, nil
}

// Dump возвращает диагностический дамп ответа: статус, заголовки, тело.
func (r *Response) Dump() string {
	lines := []string{fmt.Sprintf("%d %s", r.StatusCode, http.StatusText(r.StatusCode))}

	keys := make([]string, 0, len(r.Headers))
	for key := range r.Headers {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		lines = append(lines, fmt.Sprintf("%s: %s", key, r.Headers[key]))
	}

	if len(r.Body) > 0 {
		lines = append(lines, "", string(r.Body))
	}
	return strings.Join(lines, "\n")
}

// Request отправляет payload на endpoint и классифицирует ответ.
//
// Info endpoint'а добавляется в payload под ключом "info". Для GET
// payload уходит в query string, иначе сериализуется в тело согласно
// mimetype. Ответ 2xx — OutcomeCompleted, всё остальное — OutcomeFailed;
// транспортные ошибки возвращаются как error.
func (c *Client) Request(ctx context.Context, ep *domain.Endpoint, payload map[string]any) (domain.Outcome, *Response, error) {
	if ep.Info != nil {
		merged := make(map[string]any, len(payload)+1)
		for k, v := range payload {
			merged[k] = v
		}
		merged["info"] = ep.Info
		payload = merged
	}

	method := ep.Method
	if method == "" {
		method = http.MethodPost
	}
	mimetype := ep.Mimetype
	if mimetype == "" {
		mimetype = "application/json"
	}

	timeout := defaultTimeout
	if ep.TimeoutSec > 0 {
		timeout = time.Duration(ep.TimeoutSec) * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	target := ep.URL
	var bodyReader io.Reader
	if len(payload) > 0 {
		if method == http.MethodGet {
			query, err := encodeQuery(payload)
			if err != nil {
				return "", nil, err
			}
			target = target + "?" + query
		} else {
			body, err := json.Marshal(payload)
			if err != nil {
				return "", nil, fmt.Errorf("marshal payload: %w", err)
			}
			bodyReader = bytes.NewReader(body)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
	if err != nil {
		return "", nil, fmt.Errorf("create request: %w", err)
	}
	for key, value := range ep.Headers {
		req.Header.Set(key, value)
	}
	if bodyReader != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", mimetype)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("endpoint request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil, fmt.Errorf("read response: %w", err)
	}

	headers := make(map[string]string, len(resp.Header))
	for key := range resp.Header {
		headers[key] = resp.Header.Get(key)
	}
	response := &Response{
		StatusCode: resp.StatusCode,
		Headers:    headers,
		Body:       respBody,
	}

	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		return domain.OutcomeCompleted, response, nil
	}
	return domain.OutcomeFailed, response, nil
}

// encodeQuery кодирует payload в query string; вложенные значения
// сериализуются в JSON.
func encodeQuery(payload map[string]any) (string, error) {
	values := url.Values{}
	for key, value := range payload {
		switch v := value.(type) {
		case string:
			values.Set(key, v)
		default:
			encoded, err := json.Marshal(v)
			if err != nil {
				return "", fmt.Errorf("encode query value %q: %w", key, err)
			}
			values.Set(key, string(encoded))
		}
	}
	return values.Encode(), nil
}
