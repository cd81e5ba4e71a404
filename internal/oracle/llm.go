package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"text/template"
	"time"

	"github.com/shaiso/Factoria/internal/domain"
)

// Default configuration values.
const (
	defaultBaseURL     = "http://localhost:1234/v1"
	defaultModel       = "gpt-4.1-mini"
	defaultTimeout     = 60 * time.Second
	defaultTemperature = 0.2
	defaultMaxFailures = 3
	defaultCooldown    = 30 * time.Second
)

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature float32   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message      message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
}

// LLMConfig — конфигурация LLM-оракула.
type LLMConfig struct {
	// BaseURL — адрес OpenAI-совместимого API (default: http://localhost:1234/v1).
	BaseURL string

	// Model — имя модели (default: gpt-4.1-mini).
	Model string

	// APIKey — Bearer-токен, если нужен.
	APIKey string

	// Timeout — таймаут HTTP-запроса (default: 60s).
	Timeout time.Duration

	// Temperature (default: 0.2).
	Temperature float32

	// MaxTokens — лимит ответа (0 — по умолчанию сервера).
	MaxTokens int

	// MaxFailures — сбоев подряд до паузы (default: 3).
	MaxFailures int

	// Cooldown — длительность паузы (default: 30s).
	Cooldown time.Duration

	// HTTPClient — для тестов.
	HTTPClient *http.Client

	// Logger
	Logger *slog.Logger
}

// LLM — оракул на основе chat-completions API.
//
// Строит промпт из контекста линии, отправляет его модели и извлекает
// команды из ответа через ParseProposals.
type LLM struct {
	endpoint    string
	model       string
	apiKey      string
	temperature float32
	maxTokens   int
	http        *http.Client
	guard       *Guard
	logger      *slog.Logger
}

// NewLLM создаёт новый LLM-оракул.
func NewLLM(cfg LLMConfig) *LLM {
	baseURL := normalizeBaseURL(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	model := cfg.Model
	if model == "" {
		model = defaultModel
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	temperature := cfg.Temperature
	if temperature <= 0 {
		temperature = defaultTemperature
	}

	maxFailures := cfg.MaxFailures
	if maxFailures <= 0 {
		maxFailures = defaultMaxFailures
	}

	cooldown := cfg.Cooldown
	if cooldown <= 0 {
		cooldown = defaultCooldown
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   5 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:          10,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
			},
		}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &LLM{
		endpoint:    baseURL + "/chat/completions",
		model:       model,
		apiKey:      cfg.APIKey,
		temperature: temperature,
		maxTokens:   cfg.MaxTokens,
		http:        client,
		guard:       NewGuard(maxFailures, cooldown),
		logger:      logger,
	}
}

// Guard возвращает защиту от серии сбоев.
func (l *LLM) Guard() *Guard {
	return l.guard
}

// Propose реализует Oracle.
func (l *LLM) Propose(ctx context.Context, c Context) ([]domain.Command, error) {
	if !l.guard.Allow() {
		return nil, fmt.Errorf("%w: paused until %s", ErrOracleUnavailable,
			l.guard.DisabledUntil().Format(time.RFC3339))
	}

	system, err := systemPrompt(c)
	if err != nil {
		return nil, fmt.Errorf("build system prompt: %w", err)
	}
	user, err := userPrompt(c)
	if err != nil {
		return nil, fmt.Errorf("build user prompt: %w", err)
	}

	content, err := l.chat(ctx, []message{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	})
	if err != nil {
		l.guard.RecordFailure()
		return nil, err
	}

	cmds, err := ParseProposals(content)
	if err != nil {
		l.guard.RecordFailure()
		return nil, err
	}

	l.guard.RecordSuccess()
	l.logger.Debug("llm proposals parsed",
		"line_id", c.LineID,
		"mode", c.Mode,
		"commands", len(cmds),
	)
	return cmds, nil
}

func (l *LLM) chat(ctx context.Context, messages []message) (string, error) {
	payload, err := json.Marshal(chatRequest{
		Model:       l.model,
		Messages:    messages,
		Temperature: l.temperature,
		MaxTokens:   l.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if l.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+l.apiKey)
	}

	resp, err := l.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("llm request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("llm request failed: status %s", resp.Status)
	}

	var decoded chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return "", fmt.Errorf("llm response missing choices")
	}

	content := decoded.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("llm response empty")
	}
	return content, nil
}

func normalizeBaseURL(baseURL string) string {
	trimmed := strings.TrimSpace(baseURL)
	if trimmed == "" {
		return trimmed
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	trimmed = strings.TrimRight(trimmed, "/")
	if strings.HasSuffix(trimmed, "/v1") {
		return trimmed
	}
	return trimmed + "/v1"
}

// --- Промпты ---

var systemTemplate = template.Must(template.New("system").Parse(`You are the Line Commander for production line {{.LineID}} in an automated factory.

MISSION:
- Coordinate AGV operations ({{.Vehicles}}) to maximize order completion and throughput
- React to factory events and keep production flowing

FACTORY LAYOUT:
P0: RawMaterial -> P1: StationA -> P2: Conveyor_AB -> P3: StationB -> P4: Conveyor_BC -> P5: StationC -> P6: Conveyor_CQ -> P7/P8: QualityCheck -> P9: Warehouse

PRODUCT FLOW:
- Stations and conveyors move products automatically.
- AGVs are needed for RawMaterial (P0) -> StationA (P1) and QualityCheck output (P8) -> Warehouse (P9).
- Class C (P3) products need a second pass: after the first pass they wait in the Conveyor_CQ upper buffer at P6 and must be carried back to StationB (P3).
{{- if .SecondPassVehicle}}
- Only {{.SecondPassVehicle}} can access the Conveyor_CQ upper buffer.
{{- end}}

PRIORITIES:
1. CRITICAL: AGV battery below 20%, blocked equipment
2. HIGH: raw materials waiting, finished products in QualityCheck output, second-pass products
3. MEDIUM: preventive charging below 40%
4. LOW: positioning

COMMANDS:
- move: target_point in P0..P9
- load: product_id of the product to pick up
- unload: unload at the current point
- charge: target_level between 0 and 100 (default 80)

At most one command per AGV.{{if .MaxCommands}} At most {{.MaxCommands}} commands in total.{{end}}

RESPONSE FORMAT: a JSON array only:
[{"action": "move|load|unload|charge", "target": "AGV_1", "params": {"target_point": "P1", "product_id": "prod_...", "target_level": 80}, "priority": "high", "reasoning": "..."}]
`))

type systemData struct {
	LineID            string
	Vehicles          string
	SecondPassVehicle string
	MaxCommands       int
}

func systemPrompt(c Context) (string, error) {
	var buf bytes.Buffer
	err := systemTemplate.Execute(&buf, systemData{
		LineID:            c.LineID,
		Vehicles:          strings.Join(c.Vehicles, ", "),
		SecondPassVehicle: c.SecondPassVehicle,
		MaxCommands:       c.MaxCommands,
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

func userPrompt(c Context) (string, error) {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return "", err
	}

	var b strings.Builder
	if c.Mode == ModeReactive && c.Trigger != nil {
		b.WriteString("REACTIVE FACTORY EVENT:\n")
		b.Write(data)
		fmt.Fprintf(&b, "\n\nURGENT TASK: a %s severity %s event occurred on %s.\n",
			c.Trigger.Severity, c.Trigger.Kind, c.Trigger.DeviceID)
		b.WriteString("Address this event while keeping production flowing.\n")
	} else {
		b.WriteString("FACTORY OPERATION CONTEXT:\n")
		b.Write(data)
		b.WriteString("\n\nTASK: analyze the factory state and generate AGV commands for planned operations.\n")
	}
	b.WriteString("Respond with a JSON array of commands only.\n")
	return b.String(), nil
}
