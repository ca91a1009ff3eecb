package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// PipelineResponse — pipeline из API.
type PipelineResponse struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	IsActive    bool            `json:"is_active"`
	Graph       json.RawMessage `json:"graph,omitempty"`
	NodeCount   int             `json:"node_count"`
	CreatedAt   string          `json:"created_at"`
	UpdatedAt   string          `json:"updated_at"`
}

// CompileResponse — результат компиляции.
type CompileResponse struct {
	Backend  string   `json:"backend"`
	Filename string   `json:"filename,omitempty"`
	Text     string   `json:"text"`
	Skipped  []string `json:"skipped,omitempty"`
}

// NodeResult — результат узла в записи прогона.
type NodeResult struct {
	Status   string `json:"status"`
	Output   any    `json:"output,omitempty"`
	Error    string `json:"error,omitempty"`
	Attempts int    `json:"attempts,omitempty"`
}

// ExecutionResponse — запись прогона из API.
type ExecutionResponse struct {
	ID         string                `json:"id"`
	PipelineID string                `json:"pipeline_id,omitempty"`
	Timestamp  string                `json:"timestamp"`
	Status     string                `json:"status"`
	TotalNodes int                   `json:"total_nodes"`
	Executed   int                   `json:"executed,omitempty"`
	Details    map[string]NodeResult `json:"details,omitempty"`
	Order      []string              `json:"order,omitempty"`
	Error      string                `json:"error,omitempty"`
	Trigger    string                `json:"trigger,omitempty"`
	DurationMs int64                 `json:"duration_ms"`
}

// RunAcceptedResponse — ответ на асинхронный запуск.
type RunAcceptedResponse struct {
	RequestID  string `json:"request_id"`
	PipelineID string `json:"pipeline_id"`
}

// ScheduleResponse — schedule из API.
type ScheduleResponse struct {
	ID            string `json:"id"`
	PipelineID    string `json:"pipeline_id"`
	NodeID        string `json:"node_id,omitempty"`
	Name          string `json:"name"`
	CronExpr      string `json:"cron_expr,omitempty"`
	IntervalSec   int    `json:"interval_sec,omitempty"`
	Timezone      string `json:"timezone"`
	Enabled       bool   `json:"enabled"`
	NextDueAt     string `json:"next_due_at,omitempty"`
	LastRunAt     string `json:"last_run_at,omitempty"`
	LastRequestID string `json:"last_request_id,omitempty"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

// --- Request types ---

// CreatePipelineRequest — создание pipeline.
type CreatePipelineRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Graph       json.RawMessage `json:"graph,omitempty"`
	IsActive    *bool           `json:"is_active,omitempty"`
}

// RunPipelineRequest — запуск pipeline.
type RunPipelineRequest struct {
	Trigger        string `json:"trigger,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// CreateScheduleRequest — создание schedule.
type CreateScheduleRequest struct {
	Name        string `json:"name"`
	CronExpr    string `json:"cron_expr,omitempty"`
	IntervalSec int    `json:"interval_sec,omitempty"`
	Timezone    string `json:"timezone,omitempty"`
	Enabled     bool   `json:"enabled"`
}

// UpdateScheduleRequest — обновление schedule.
type UpdateScheduleRequest struct {
	Name        *string `json:"name,omitempty"`
	CronExpr    *string `json:"cron_expr,omitempty"`
	IntervalSec *int    `json:"interval_sec,omitempty"`
	Timezone    *string `json:"timezone,omitempty"`
}

// ListExecutionsOpts — параметры фильтрации прогонов.
type ListExecutionsOpts struct {
	PipelineID string
	Status     string
	Limit      int
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
			// Синхронный прогон может быть долгим
			Timeout: 5 * time.Minute,
		},
	}
}

// --- Pipelines ---

// ListPipelines возвращает все pipelines.
func (c *Client) ListPipelines() ([]PipelineResponse, error) {
	var pipelines []PipelineResponse
	err := c.list("/api/v1/pipelines", nil, &pipelines)
	return pipelines, err
}

// CreatePipeline создаёт новый pipeline.
func (c *Client) CreatePipeline(req CreatePipelineRequest) (*PipelineResponse, error) {
	var p PipelineResponse
	err := c.post("/api/v1/pipelines", req, &p)
	return &p, err
}

// GetPipeline возвращает pipeline по ID.
func (c *Client) GetPipeline(id string) (*PipelineResponse, error) {
	var p PipelineResponse
	err := c.get("/api/v1/pipelines/"+id, &p)
	return &p, err
}

// DeletePipeline удаляет pipeline.
func (c *Client) DeletePipeline(id string) error {
	return c.delete("/api/v1/pipelines/" + id)
}

// CompilePipeline компилирует сохранённый pipeline.
func (c *Client) CompilePipeline(id, backend string) (*CompileResponse, error) {
	params := url.Values{}
	if backend != "" {
		params.Set("backend", backend)
	}

	var res CompileResponse
	err := c.get("/api/v1/pipelines/"+id+"/compile?"+params.Encode(), &res)
	return &res, err
}

// RunPipeline синхронно запускает pipeline и возвращает запись прогона.
func (c *Client) RunPipeline(id string, req RunPipelineRequest) (*ExecutionResponse, error) {
	var rec ExecutionResponse
	err := c.post("/api/v1/pipelines/"+id+"/runs", req, &rec)
	return &rec, err
}

// StartPipeline ставит прогон в очередь и сразу возвращается.
func (c *Client) StartPipeline(id string, req RunPipelineRequest) (*RunAcceptedResponse, error) {
	var accepted RunAcceptedResponse
	err := c.post("/api/v1/pipelines/"+id+"/runs?async=true", req, &accepted)
	return &accepted, err
}

// --- Executions ---

// ListExecutions возвращает прогоны с фильтрацией.
func (c *Client) ListExecutions(opts ListExecutionsOpts) ([]ExecutionResponse, error) {
	params := url.Values{}
	if opts.PipelineID != "" {
		params.Set("pipeline_id", opts.PipelineID)
	}
	if opts.Status != "" {
		params.Set("status", opts.Status)
	}
	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}

	var records []ExecutionResponse
	err := c.list("/api/v1/executions", params, &records)
	return records, err
}

// GetExecution возвращает запись прогона по ID.
func (c *Client) GetExecution(id string) (*ExecutionResponse, error) {
	var rec ExecutionResponse
	err := c.get("/api/v1/executions/"+id, &rec)
	return &rec, err
}

// --- Schedules ---

// ListSchedules возвращает schedules. Если pipelineID не пустой — фильтрует.
func (c *Client) ListSchedules(pipelineID string) ([]ScheduleResponse, error) {
	params := url.Values{}
	if pipelineID != "" {
		params.Set("pipeline_id", pipelineID)
	}

	var schedules []ScheduleResponse
	err := c.list("/api/v1/schedules", params, &schedules)
	return schedules, err
}

// CreateSchedule создаёт schedule для pipeline.
func (c *Client) CreateSchedule(pipelineID string, req CreateScheduleRequest) (*ScheduleResponse, error) {
	var schedule ScheduleResponse
	err := c.post("/api/v1/pipelines/"+pipelineID+"/schedules", req, &schedule)
	return &schedule, err
}

// GetSchedule возвращает schedule по ID.
func (c *Client) GetSchedule(id string) (*ScheduleResponse, error) {
	var schedule ScheduleResponse
	err := c.get("/api/v1/schedules/"+id, &schedule)
	return &schedule, err
}

// UpdateSchedule обновляет schedule.
func (c *Client) UpdateSchedule(id string, req UpdateScheduleRequest) (*ScheduleResponse, error) {
	var schedule ScheduleResponse
	err := c.put("/api/v1/schedules/"+id, req, &schedule)
	return &schedule, err
}

// DeleteSchedule удаляет schedule.
func (c *Client) DeleteSchedule(id string) error {
	return c.delete("/api/v1/schedules/" + id)
}

// SetScheduleEnabled включает или выключает schedule.
func (c *Client) SetScheduleEnabled(id string, enabled bool) (*ScheduleResponse, error) {
	var schedule ScheduleResponse
	body := map[string]bool{"enabled": enabled}
	err := c.put("/api/v1/schedules/"+id+"/enabled", body, &schedule)
	return &schedule, err
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
