package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// --- Response types (дублируются из api, CLI не импортирует internal/api) ---

// TaskResponse — scheduled задача из API.
type TaskResponse struct {
	ID         string         `json:"id"`
	Tag        string         `json:"tag"`
	Status     string         `json:"status"`
	Occurrence string         `json:"occurrence"`
	ParentID   string         `json:"parent_id,omitempty"`
	RetryLimit int            `json:"retry_limit"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Created    string         `json:"created"`
}

// ExecutionResponse — попытка выполнения задачи из API.
type ExecutionResponse struct {
	ID        string `json:"id"`
	TaskID    string `json:"task_id"`
	Attempt   int    `json:"attempt"`
	Status    string `json:"status"`
	Started   string `json:"started,omitempty"`
	Completed string `json:"completed,omitempty"`
	Result    string `json:"result,omitempty"`
}

// RecurringTaskResponse — recurring задача из API.
type RecurringTaskResponse struct {
	ID         string `json:"id"`
	Tag        string `json:"tag"`
	Status     string `json:"status"`
	ScheduleID string `json:"schedule_id"`
	Created    string `json:"created"`
}

// ScheduleResponse — расписание из API.
type ScheduleResponse struct {
	ID      string         `json:"id"`
	Name    string         `json:"name"`
	Type    string         `json:"type"`
	Fixed   map[string]any `json:"fixed,omitempty"`
	Weekly  map[string]any `json:"weekly,omitempty"`
	Monthly map[string]any `json:"monthly,omitempty"`
	Logical map[string]any `json:"logical,omitempty"`
}

// SubscriptionResponse — подписка из API.
type SubscriptionResponse struct {
	ID              string            `json:"id"`
	Tag             string            `json:"tag"`
	Topic           string            `json:"topic"`
	Aspects         map[string]string `json:"aspects,omitempty"`
	ActivationLimit *int              `json:"activation_limit,omitempty"`
	Activations     int               `json:"activations"`
	Created         string            `json:"created"`
}

// EventResponse — событие из API.
type EventResponse struct {
	ID         string            `json:"id"`
	Topic      string            `json:"topic"`
	Aspects    map[string]string `json:"aspects,omitempty"`
	Status     string            `json:"status"`
	Occurrence string            `json:"occurrence"`
}

// ProcessResponse — процесс из API.
type ProcessResponse struct {
	ID       string         `json:"id"`
	QueueID  string         `json:"queue_id"`
	Tag      string         `json:"tag"`
	Status   string         `json:"status"`
	Input    map[string]any `json:"input,omitempty"`
	Output   map[string]any `json:"output,omitempty"`
	Progress map[string]any `json:"progress,omitempty"`
	Started  string         `json:"started,omitempty"`
	Ended    string         `json:"ended,omitempty"`
}

// ProcessTaskResponse — фазовая задача процесса из API.
type ProcessTaskResponse struct {
	ID        string `json:"id"`
	ProcessID string `json:"process_id"`
	TaskID    string `json:"task_id"`
	Phase     string `json:"phase"`
}

// --- Request types ---

// CreateTaskRequest — создание одноразовой задачи.
type CreateTaskRequest struct {
	Tag             string         `json:"tag"`
	RetryLimit      *int           `json:"retry_limit,omitempty"`
	RetryTimeoutSec *int           `json:"retry_timeout_sec,omitempty"`
	RetryBackoff    *float64       `json:"retry_backoff,omitempty"`
	Action          map[string]any `json:"action"`
	Occurrence      string         `json:"occurrence,omitempty"`
	Parameters      map[string]any `json:"parameters,omitempty"`
}

// CreateRecurringTaskRequest — создание recurring задачи.
type CreateRecurringTaskRequest struct {
	Tag        string         `json:"tag"`
	RetryLimit *int           `json:"retry_limit,omitempty"`
	Action     map[string]any `json:"action"`
	ScheduleID string         `json:"schedule_id"`
}

// CreateSubscriptionRequest — создание подписки.
type CreateSubscriptionRequest struct {
	Tag             string            `json:"tag"`
	Action          map[string]any    `json:"action"`
	Topic           string            `json:"topic"`
	Aspects         map[string]string `json:"aspects,omitempty"`
	ActivationLimit *int              `json:"activation_limit,omitempty"`
	TimeoutSec      *int              `json:"timeout_sec,omitempty"`
}

// PublishEventRequest — публикация события.
type PublishEventRequest struct {
	Topic   string            `json:"topic"`
	Aspects map[string]string `json:"aspects,omitempty"`
}

// CreateProcessRequest — запуск процесса.
type CreateProcessRequest struct {
	QueueID    string         `json:"queue_id"`
	Tag        string         `json:"tag"`
	TimeoutMin *int           `json:"timeout_min,omitempty"`
	Input      map[string]any `json:"input,omitempty"`
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для Conveyor API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Tasks ---

// ListTasks возвращает задачи с фильтрацией по статусу.
func (c *Client) ListTasks(status string, limit int) ([]TaskResponse, error) {
	params := url.Values{}
	if status != "" {
		params.Set("status", status)
	}
	if limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", limit))
	}

	var tasks []TaskResponse
	err := c.list("/api/v1/tasks", params, &tasks)
	return tasks, err
}

// CreateTask создаёт одноразовую задачу.
func (c *Client) CreateTask(req CreateTaskRequest) (*TaskResponse, error) {
	var task TaskResponse
	err := c.post("/api/v1/tasks", req, &task)
	return &task, err
}

// GetTask возвращает задачу по ID.
func (c *Client) GetTask(id string) (*TaskResponse, error) {
	var task TaskResponse
	err := c.get("/api/v1/tasks/"+id, &task)
	return &task, err
}

// AbortTask прерывает задачу.
func (c *Client) AbortTask(id string) error {
	return c.post("/api/v1/tasks/"+id+"/abort", nil, nil)
}

// ListTaskExecutions возвращает журнал попыток задачи.
func (c *Client) ListTaskExecutions(id string) ([]ExecutionResponse, error) {
	var executions []ExecutionResponse
	err := c.list("/api/v1/tasks/"+id+"/executions", nil, &executions)
	return executions, err
}

// MoveTask переносит pending задачу на другое время.
func (c *Client) MoveTask(id, occurrence string) error {
	body := map[string]string{"occurrence": occurrence}
	return c.put("/api/v1/tasks/"+id+"/occurrence", body, nil)
}

// --- Recurring tasks ---

// ListRecurringTasks возвращает recurring задачи.
func (c *Client) ListRecurringTasks() ([]RecurringTaskResponse, error) {
	var tasks []RecurringTaskResponse
	err := c.list("/api/v1/recurring-tasks", nil, &tasks)
	return tasks, err
}

// CreateRecurringTask создаёт recurring задачу.
func (c *Client) CreateRecurringTask(req CreateRecurringTaskRequest) (*RecurringTaskResponse, error) {
	var task RecurringTaskResponse
	err := c.post("/api/v1/recurring-tasks", req, &task)
	return &task, err
}

// GetRecurringTask возвращает recurring задачу по ID.
func (c *Client) GetRecurringTask(id string) (*RecurringTaskResponse, error) {
	var task RecurringTaskResponse
	err := c.get("/api/v1/recurring-tasks/"+id, &task)
	return &task, err
}

// SetRecurringTaskStatus активирует или деактивирует recurring задачу.
func (c *Client) SetRecurringTaskStatus(id, status string) error {
	body := map[string]string{"status": status}
	return c.put("/api/v1/recurring-tasks/"+id+"/status", body, nil)
}

// --- Schedules ---

// ListSchedules возвращает расписания.
func (c *Client) ListSchedules() ([]ScheduleResponse, error) {
	var schedules []ScheduleResponse
	err := c.list("/api/v1/schedules", nil, &schedules)
	return schedules, err
}

// CreateSchedule создаёт расписание из произвольного JSON-описания.
func (c *Client) CreateSchedule(body json.RawMessage) (*ScheduleResponse, error) {
	var schedule ScheduleResponse
	err := c.post("/api/v1/schedules", body, &schedule)
	return &schedule, err
}

// GetSchedule возвращает расписание по ID.
func (c *Client) GetSchedule(id string) (*ScheduleResponse, error) {
	var schedule ScheduleResponse
	err := c.get("/api/v1/schedules/"+id, &schedule)
	return &schedule, err
}

// DeleteSchedule удаляет расписание.
func (c *Client) DeleteSchedule(id string) error {
	return c.delete("/api/v1/schedules/" + id)
}

// --- Events and subscriptions ---

// ListEvents возвращает события.
func (c *Client) ListEvents(topic string, limit int) ([]EventResponse, error) {
	params := url.Values{}
	if topic != "" {
		params.Set("topic", topic)
	}
	if limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", limit))
	}

	var events []EventResponse
	err := c.list("/api/v1/events", params, &events)
	return events, err
}

// PublishEvent публикует событие.
func (c *Client) PublishEvent(req PublishEventRequest) (*EventResponse, error) {
	var event EventResponse
	err := c.post("/api/v1/events", req, &event)
	return &event, err
}

// ListSubscriptions возвращает подписки.
func (c *Client) ListSubscriptions(topic string) ([]SubscriptionResponse, error) {
	params := url.Values{}
	if topic != "" {
		params.Set("topic", topic)
	}

	var subscriptions []SubscriptionResponse
	err := c.list("/api/v1/subscriptions", params, &subscriptions)
	return subscriptions, err
}

// CreateSubscription создаёт подписку.
func (c *Client) CreateSubscription(req CreateSubscriptionRequest) (*SubscriptionResponse, error) {
	var subscription SubscriptionResponse
	err := c.post("/api/v1/subscriptions", req, &subscription)
	return &subscription, err
}

// DeleteSubscription удаляет подписку.
func (c *Client) DeleteSubscription(id string) error {
	return c.delete("/api/v1/subscriptions/" + id)
}

// --- Processes ---

// ListProcesses возвращает процессы.
func (c *Client) ListProcesses(queueID, status string) ([]ProcessResponse, error) {
	params := url.Values{}
	if queueID != "" {
		params.Set("queue_id", queueID)
	}
	if status != "" {
		params.Set("status", status)
	}

	var processes []ProcessResponse
	err := c.list("/api/v1/processes", params, &processes)
	return processes, err
}

// CreateProcess запускает процесс.
func (c *Client) CreateProcess(req CreateProcessRequest) (*ProcessResponse, error) {
	var process ProcessResponse
	err := c.post("/api/v1/processes", req, &process)
	return &process, err
}

// GetProcess возвращает процесс по ID.
func (c *Client) GetProcess(id string) (*ProcessResponse, error) {
	var process ProcessResponse
	err := c.get("/api/v1/processes/"+id, &process)
	return &process, err
}

// AbortProcess запрашивает прерывание процесса.
func (c *Client) AbortProcess(id string) error {
	return c.post("/api/v1/processes/"+id+"/abort", nil, nil)
}

// ListProcessTasks возвращает фазовые задачи процесса.
func (c *Client) ListProcessTasks(id string) ([]ProcessTaskResponse, error) {
	var tasks []ProcessTaskResponse
	err := c.list("/api/v1/processes/"+id+"/tasks", nil, &tasks)
	return tasks, err
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) put(path string, body any, result any) error {
	return c.doData(http.MethodPut, path, body, result)
}

func (c *Client) delete(path string) error {
	resp, err := c.do(http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return c.checkError(resp)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}
