package cli

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// PipelineResponse — pipeline из API.
type PipelineResponse struct {
	ID         string `json:"id"`
	Name       string `json:"name,omitempty"`
	State      string `json:"state"`
	NodeCount  int    `json:"node_count"`
	Error      string `json:"error,omitempty"`
	CreatedAt  string `json:"created_at"`
	StartedAt  string `json:"started_at,omitempty"`
	FinishedAt string `json:"finished_at,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`
}

// TaskResponse — экземпляр задачи из API.
type TaskResponse struct {
	ID         string         `json:"id"`
	NodeID     string         `json:"node_id"`
	Kind       string         `json:"kind"`
	State      string         `json:"state"`
	Attempt    int            `json:"attempt"`
	Inputs     map[string]any `json:"inputs,omitempty"`
	Outputs    map[string]any `json:"outputs,omitempty"`
	Error      *TaskError     `json:"error,omitempty"`
	CreatedAt  string         `json:"created_at"`
	StartedAt  string         `json:"started_at,omitempty"`
	FinishedAt string         `json:"finished_at,omitempty"`
}

// TaskError — запись об ошибке задачи из API.
type TaskError struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Hint     string `json:"hint,omitempty"`
}

// EventResponse — событие потока pipeline из API.
type EventResponse struct {
	Sequence  uint64         `json:"sequence"`
	Kind      string         `json:"kind"`
	NodeID    string         `json:"node_id,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt string         `json:"created_at"`
}

// DefinitionResponse — вид задачи из каталога.
type DefinitionResponse struct {
	Kind        string `json:"kind"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category"`
	Idempotent  bool   `json:"idempotent,omitempty"`
	TimeoutSec  int    `json:"timeout_sec,omitempty"`
}

// ScheduleResponse — расписание из API.
type ScheduleResponse struct {
	ID             string `json:"id"`
	Name           string `json:"name,omitempty"`
	CronExpr       string `json:"cron_expr,omitempty"`
	IntervalSec    int    `json:"interval_sec,omitempty"`
	Timezone       string `json:"timezone"`
	Enabled        bool   `json:"enabled"`
	NodeCount      int    `json:"node_count"`
	NextDueAt      string `json:"next_due_at,omitempty"`
	LastRunAt      string `json:"last_run_at,omitempty"`
	LastPipelineID string `json:"last_pipeline_id,omitempty"`
	CreatedAt      string `json:"created_at"`
}

// NoteResponse — заметка об исправлении из API.
type NoteResponse struct {
	Kind        string `json:"kind"`
	Category    string `json:"category"`
	Note        string `json:"note"`
	Occurrences int    `json:"occurrences,omitempty"`
	CreatedAt   string `json:"created_at"`
}

// SubmitTaskResult — результат подачи standalone задачи.
type SubmitTaskResult struct {
	Pipeline PipelineResponse `json:"pipeline"`
	TaskID   string           `json:"task_id"`
}

// --- Request types ---

// NodeRequest — узел графа в запросе на подачу.
type NodeRequest struct {
	NodeID        string            `json:"node_id"`
	Kind          string            `json:"kind"`
	Inputs        map[string]any    `json:"inputs,omitempty"`
	InputMappings map[string]string `json:"input_mappings,omitempty"`
	DependsOn     []string          `json:"depends_on,omitempty"`
}

// SubmitPipelineRequest — подача pipeline.
type SubmitPipelineRequest struct {
	Name         string         `json:"name,omitempty"`
	Nodes        []NodeRequest  `json:"nodes"`
	GlobalInputs map[string]any `json:"global_inputs,omitempty"`
}

// SubmitTaskRequest — подача standalone задачи.
type SubmitTaskRequest struct {
	Kind   string         `json:"kind"`
	Inputs map[string]any `json:"inputs,omitempty"`
}

// CreateScheduleRequest — создание расписания.
type CreateScheduleRequest struct {
	Name         string         `json:"name,omitempty"`
	Nodes        []NodeRequest  `json:"nodes"`
	GlobalInputs map[string]any `json:"global_inputs,omitempty"`
	CronExpr     string         `json:"cron_expr,omitempty"`
	IntervalSec  int            `json:"interval_sec,omitempty"`
	Timezone     string         `json:"timezone,omitempty"`
}

// AddNoteRequest — добавление заметки об исправлении.
type AddNoteRequest struct {
	Kind     string `json:"kind"`
	Category string `json:"category"`
	Note     string `json:"note"`
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

// Client — HTTP-клиент для Forge API.
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

// --- Pipelines ---

// SubmitPipeline подаёт pipeline на выполнение.
func (c *Client) SubmitPipeline(req SubmitPipelineRequest) (*PipelineResponse, error) {
	var p PipelineResponse
	err := c.post("/api/v1/pipelines", req, &p)
	return &p, err
}

// ListPipelines возвращает pipelines в заданном состоянии.
func (c *Client) ListPipelines(state string, limit int) ([]PipelineResponse, error) {
	params := url.Values{}
	params.Set("state", state)
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var pipelines []PipelineResponse
	err := c.list("/api/v1/pipelines", params, &pipelines)
	return pipelines, err
}

// GetPipeline возвращает pipeline по ID.
func (c *Client) GetPipeline(id string) (*PipelineResponse, error) {
	var p PipelineResponse
	err := c.get("/api/v1/pipelines/"+id, &p)
	return &p, err
}

// CancelPipeline запрашивает отмену pipeline.
func (c *Client) CancelPipeline(id string) (*PipelineResponse, error) {
	var p PipelineResponse
	err := c.post("/api/v1/pipelines/"+id+"/cancel", nil, &p)
	return &p, err
}

// ListPipelineTasks возвращает задачи pipeline.
func (c *Client) ListPipelineTasks(id string) ([]TaskResponse, error) {
	var tasks []TaskResponse
	err := c.list("/api/v1/pipelines/"+id+"/tasks", nil, &tasks)
	return tasks, err
}

// ListEvents возвращает события pipeline с sequence > fromSequence.
func (c *Client) ListEvents(id string, fromSequence uint64) ([]EventResponse, error) {
	params := url.Values{}
	if fromSequence > 0 {
		params.Set("from_sequence", strconv.FormatUint(fromSequence, 10))
	}

	var events []EventResponse
	err := c.list("/api/v1/pipelines/"+id+"/events", params, &events)
	return events, err
}

// StreamEvents подключается к SSE-стриму событий pipeline и вызывает
// fn для каждого события. Возвращается, когда стрим закрыт сервером
// (терминальное событие) или fn вернула ошибку.
func (c *Client) StreamEvents(id string, fromSequence uint64, fn func(EventResponse) error) error {
	path := "/api/v1/pipelines/" + id + "/events/stream"
	if fromSequence > 0 {
		path += "?from_sequence=" + strconv.FormatUint(fromSequence, 10)
	}

	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	// SSE-стрим живёт дольше обычного запроса
	streamClient := &http.Client{}
	resp, err := streamClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev EventResponse
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			return fmt.Errorf("failed to decode event: %w", err)
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// --- Tasks ---

// SubmitTask подаёт standalone задачу.
func (c *Client) SubmitTask(req SubmitTaskRequest) (*SubmitTaskResult, error) {
	var result SubmitTaskResult
	err := c.post("/api/v1/tasks", req, &result)
	return &result, err
}

// GetTask возвращает экземпляр задачи по ID.
func (c *Client) GetTask(id string) (*TaskResponse, error) {
	var task TaskResponse
	err := c.get("/api/v1/tasks/"+id, &task)
	return &task, err
}

// --- Catalog ---

// ListCatalog возвращает виды задач. Если category не пустая — фильтрует.
func (c *Client) ListCatalog(category string) ([]DefinitionResponse, error) {
	params := url.Values{}
	if category != "" {
		params.Set("category", category)
	}

	var defs []DefinitionResponse
	err := c.list("/api/v1/catalog", params, &defs)
	return defs, err
}

// GetDefinition возвращает вид задачи по имени.
func (c *Client) GetDefinition(kind string) (*DefinitionResponse, error) {
	var def DefinitionResponse
	err := c.get("/api/v1/catalog/"+kind, &def)
	return &def, err
}

// --- Schedules ---

// ListSchedules возвращает все расписания.
func (c *Client) ListSchedules() ([]ScheduleResponse, error) {
	var schedules []ScheduleResponse
	err := c.list("/api/v1/schedules", nil, &schedules)
	return schedules, err
}

// CreateSchedule создаёт расписание.
func (c *Client) CreateSchedule(req CreateScheduleRequest) (*ScheduleResponse, error) {
	var schedule ScheduleResponse
	err := c.post("/api/v1/schedules", req, &schedule)
	return &schedule, err
}

// GetSchedule возвращает расписание по ID.
func (c *Client) GetSchedule(id string) (*ScheduleResponse, error) {
	var schedule ScheduleResponse
	err := c.get("/api/v1/schedules/"+id, &schedule)
	return &schedule, err
}

// EnableSchedule включает расписание.
func (c *Client) EnableSchedule(id string) (*ScheduleResponse, error) {
	var schedule ScheduleResponse
	body := map[string]bool{"enabled": true}
	err := c.put("/api/v1/schedules/"+id+"/enabled", body, &schedule)
	return &schedule, err
}

// DisableSchedule выключает расписание.
func (c *Client) DisableSchedule(id string) (*ScheduleResponse, error) {
	var schedule ScheduleResponse
	body := map[string]bool{"enabled": false}
	err := c.put("/api/v1/schedules/"+id+"/enabled", body, &schedule)
	return &schedule, err
}

// --- Learning ---

// AddNote добавляет заметку об исправлении для сигнатуры отказа.
func (c *Client) AddNote(req AddNoteRequest) error {
	return c.post("/api/v1/learning/notes", req, nil)
}

// ListNotes возвращает историю заметок сигнатуры.
func (c *Client) ListNotes(kind, category string) ([]NoteResponse, error) {
	params := url.Values{}
	params.Set("kind", kind)
	params.Set("category", category)

	var notes []NoteResponse
	err := c.list("/api/v1/learning/notes", params, &notes)
	return notes, err
}

// GetHint возвращает актуальную подсказку для сигнатуры.
func (c *Client) GetHint(kind, category string) (string, error) {
	var result map[string]string
	if err := c.get("/api/v1/learning/hint?kind="+url.QueryEscape(kind)+"&category="+url.QueryEscape(category), &result); err != nil {
		return "", err
	}
	return result["hint"], nil
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

	// 204 No Content
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
