package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/klokku/fintrack/pkg/budget"
	"github.com/klokku/fintrack/pkg/category"
	"github.com/klokku/fintrack/pkg/expense"
	"github.com/klokku/fintrack/pkg/user"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	dateLayout   = "2006-01-02"
	userIdHeader = "X-User-Id"
)

type ClientConfig struct {
	BaseURL string
	Timeout time.Duration
	// OAuth2 client credentials; the client is unauthenticated when ClientId is empty.
	ClientId     string
	ClientSecret string
	TokenURL     string
}

// ClientImpl talks to the remote ledger service over HTTP/JSON.
type ClientImpl struct {
	baseURL string
	client  *http.Client
}

var _ Gateway = (*ClientImpl)(nil)

func NewClient(cfg ClientConfig) *ClientImpl {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	httpClient := &http.Client{Timeout: timeout}
	if cfg.ClientId != "" {
		log.Debugf("gateway client uses OAuth2 client credentials against %s", cfg.TokenURL)
		credentials := clientcredentials.Config{
			ClientID:     cfg.ClientId,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
		}
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)
		httpClient = credentials.Client(ctx)
		httpClient.Timeout = timeout
	}
	return NewClientWithHTTP(cfg.BaseURL, httpClient)
}

func NewClientWithHTTP(baseURL string, httpClient *http.Client) *ClientImpl {
	return &ClientImpl{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  httpClient,
	}
}

type expenseDTO struct {
	ID          int64    `json:"id,omitempty"`
	Amount      float64  `json:"amount"`
	Category    string   `json:"category"`
	Description *string  `json:"description"`
	StoreName   *string  `json:"store_name"`
	CreatedAt   wireTime `json:"created_at,omitempty"`
}

type budgetDTO struct {
	LimitAmount float64 `json:"limit_amount"`
	Period      string  `json:"period"`
}

type categoryDTO struct {
	ID    int64  `json:"id,omitempty"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

type receiptDTO struct {
	Text        string          `json:"text"`
	Amount      json.RawMessage `json:"amount"`
	StoreName   string          `json:"store_name"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
}

type importDTO struct {
	Message       string `json:"message"`
	ImportedCount int    `json:"imported_count"`
	Count         int    `json:"count"`
}

func (c *ClientImpl) ListExpenses(ctx context.Context, query expense.Query) ([]expense.Expense, error) {
	limit := query.Limit
	if limit <= 0 {
		limit = expense.DefaultPageSize
	}
	params := url.Values{}
	params.Set("skip", strconv.Itoa(query.Offset))
	params.Set("limit", strconv.Itoa(limit))
	if query.Start != nil {
		params.Set("start_date", query.Start.Format(dateLayout))
	}
	if query.End != nil {
		params.Set("end_date", query.End.Format(dateLayout))
	}

	var dtos []expenseDTO
	if err := c.doJSON(ctx, "list expenses", http.MethodGet, "/expenses/?"+params.Encode(), nil, &dtos); err != nil {
		return nil, err
	}
	expenses := make([]expense.Expense, 0, len(dtos))
	for _, dto := range dtos {
		expenses = append(expenses, dtoToExpense(dto))
	}
	return expenses, nil
}

func (c *ClientImpl) CreateExpense(ctx context.Context, fields expense.Fields) (expense.Expense, error) {
	var created expenseDTO
	if err := c.doJSON(ctx, "create expense", http.MethodPost, "/expenses/", fieldsToDTO(fields), &created); err != nil {
		return expense.Expense{}, err
	}
	return dtoToExpense(created), nil
}

func (c *ClientImpl) UpdateExpense(ctx context.Context, id int64, fields expense.Fields) (expense.Expense, error) {
	var updated expenseDTO
	path := "/expenses/" + strconv.FormatInt(id, 10)
	if err := c.doJSON(ctx, "update expense", http.MethodPut, path, fieldsToDTO(fields), &updated); err != nil {
		return expense.Expense{}, err
	}
	return dtoToExpense(updated), nil
}

func (c *ClientImpl) DeleteExpense(ctx context.Context, id int64) error {
	path := "/expenses/" + strconv.FormatInt(id, 10)
	return c.doJSON(ctx, "delete expense", http.MethodDelete, path, nil, nil)
}

func (c *ClientImpl) ImportExpenses(ctx context.Context, file []byte) (ImportResult, error) {
	var dto importDTO
	if err := c.doMultipart(ctx, "import expenses", "/expenses/import", "expenses.csv", file, &dto); err != nil {
		return ImportResult{}, err
	}
	count := dto.ImportedCount
	if count == 0 {
		count = dto.Count
	}
	return ImportResult{Message: dto.Message, ImportedCount: count}, nil
}

func (c *ClientImpl) GetBudget(ctx context.Context) (budget.Budget, error) {
	var dto budgetDTO
	if err := c.doJSON(ctx, "get budget", http.MethodGet, "/budget/", nil, &dto); err != nil {
		return budget.Budget{}, err
	}
	return dtoToBudget(dto), nil
}

func (c *ClientImpl) SetBudget(ctx context.Context, b budget.Budget) (budget.Budget, error) {
	b = b.Normalize()
	request := budgetDTO{LimitAmount: b.LimitAmount.InexactFloat64(), Period: string(b.Period)}
	var dto budgetDTO
	if err := c.doJSON(ctx, "set budget", http.MethodPost, "/budget/", request, &dto); err != nil {
		return budget.Budget{}, err
	}
	return dtoToBudget(dto), nil
}

func (c *ClientImpl) ListCategories(ctx context.Context) ([]category.Category, error) {
	var dtos []categoryDTO
	if err := c.doJSON(ctx, "list categories", http.MethodGet, "/categories/", nil, &dtos); err != nil {
		return nil, err
	}
	categories := make([]category.Category, 0, len(dtos))
	for _, dto := range dtos {
		categories = append(categories, category.Category{ID: dto.ID, Name: dto.Name, Color: category.Color(dto.Color)}.Normalize())
	}
	return categories, nil
}

func (c *ClientImpl) CreateCategory(ctx context.Context, cat category.Category) (category.Category, error) {
	cat = cat.Normalize()
	var dto categoryDTO
	request := categoryDTO{Name: cat.Name, Color: string(cat.Color)}
	if err := c.doJSON(ctx, "create category", http.MethodPost, "/categories/", request, &dto); err != nil {
		return category.Category{}, err
	}
	return category.Category{ID: dto.ID, Name: dto.Name, Color: category.Color(dto.Color)}.Normalize(), nil
}

func (c *ClientImpl) DeleteCategory(ctx context.Context, id int64) error {
	path := "/categories/" + strconv.FormatInt(id, 10)
	return c.doJSON(ctx, "delete category", http.MethodDelete, path, nil, nil)
}

func (c *ClientImpl) ExtractReceipt(ctx context.Context, image []byte, filename string) (ReceiptFields, error) {
	if filename == "" {
		filename = "receipt.png"
	}
	var dto receiptDTO
	if err := c.doMultipart(ctx, "extract receipt", "/upload-receipt/", filename, image, &dto); err != nil {
		return ReceiptFields{}, err
	}
	return ReceiptFields{
		Text:        dto.Text,
		Amount:      rawAmount(dto.Amount),
		StoreName:   dto.StoreName,
		Category:    dto.Category,
		Description: dto.Description,
	}, nil
}

func (c *ClientImpl) ChatQuery(ctx context.Context, message string) (ChatReply, error) {
	var reply struct {
		Response string `json:"response"`
	}
	request := struct {
		Message string `json:"message"`
	}{message}
	if err := c.doJSON(ctx, "chat query", http.MethodPost, "/api/chat", request, &reply); err != nil {
		return ChatReply{}, err
	}
	return ChatReply{Response: reply.Response}, nil
}

func (c *ClientImpl) doJSON(ctx context.Context, op, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: could not encode request: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		log.Errorf("Failed to create request: %v", err)
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, op, out)
}

func (c *ClientImpl) doMultipart(ctx context.Context, op, path, filename string, content []byte, out any) error {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return fmt.Errorf("%s: could not create form file: %w", op, err)
	}
	if _, err := part.Write(content); err != nil {
		return fmt.Errorf("%s: could not write form file: %w", op, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("%s: could not close form: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		log.Errorf("Failed to create request: %v", err)
		return err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return c.do(req, op, out)
}

func (c *ClientImpl) do(req *http.Request, op string, out any) error {
	req.Header.Set("Accept", "application/json")
	if uid, err := user.CurrentUid(req.Context()); err == nil {
		req.Header.Set(userIdHeader, uid)
	}

	log.Debugf("gateway %s: %s %s", op, req.Method, req.URL.Path)
	resp, err := c.client.Do(req)
	if err != nil {
		log.Errorf("Failed to execute request: %v", err)
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		err := &StatusError{Op: op, Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		log.Error(err)
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		log.Errorf("Failed to decode response: %v", err)
		return fmt.Errorf("%s: could not decode response: %w", op, err)
	}
	return nil
}

func fieldsToDTO(fields expense.Fields) expenseDTO {
	return expenseDTO{
		Amount:      fields.Amount.InexactFloat64(),
		Category:    fields.Category,
		Description: optional(fields.Description),
		StoreName:   optional(fields.StoreName),
	}
}

func dtoToExpense(dto expenseDTO) expense.Expense {
	return expense.Expense{
		ID:          dto.ID,
		Amount:      decimal.NewFromFloat(dto.Amount),
		Category:    dto.Category,
		Description: deref(dto.Description),
		StoreName:   deref(dto.StoreName),
		CreatedAt:   dto.CreatedAt.Time,
	}
}

func dtoToBudget(dto budgetDTO) budget.Budget {
	return budget.Budget{
		LimitAmount: decimal.NewFromFloat(dto.LimitAmount),
		Period:      budget.Period(dto.Period),
	}.Normalize()
}

// rawAmount returns the amount as text: numbers verbatim, strings unquoted, null as "".
func rawAmount(raw json.RawMessage) string {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return trimmed
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// wireTime accepts RFC 3339 timestamps as well as naive ISO timestamps, which
// the remote emits for rows stored without a zone. Naive values are read as UTC.
type wireTime struct {
	time.Time
}

var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

func (t *wireTime) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		t.Time = time.Time{}
		return nil
	}
	if parsed, err := time.Parse(time.RFC3339Nano, s); err == nil {
		t.Time = parsed
		return nil
	}
	for _, layout := range naiveLayouts {
		if parsed, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("unsupported timestamp %q", s)
}

func (t wireTime) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time)
}
