package http

import (
	"bytes"
	"context"
	"encoding/json"
	nethttp "net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"taskify/internal/config"
	"taskify/internal/domain"
	"taskify/internal/repository"
	"taskify/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type apiEnv struct {
	t      *testing.T
	router *gin.Engine
	store  *repository.MemoryStore
	token  string
	user   *domain.User
	client *domain.Client
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	service.InitJWT("api-test-secret", time.Hour)

	ctx := context.Background()
	store := repository.NewMemoryStore()
	user := &domain.User{Name: "Ann", Email: "ann@example.com"}
	if err := store.CreateUser(ctx, user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	client := &domain.Client{Name: "Acme", TIN: "T1", Email: "a@acme.test", IsActive: true}
	if err := store.CreateClient(ctx, client); err != nil {
		t.Fatalf("create client: %v", err)
	}
	token, err := service.GenerateJWT(user.ID)
	if err != nil {
		t.Fatalf("token: %v", err)
	}

	cfg := &config.Config{
		APIRateLimit:    1000,
		APIRateWindow:   time.Minute,
		WriteRateLimit:  1000,
		WriteRateWindow: time.Minute,
	}
	return &apiEnv{
		t:      t,
		router: NewRouter(store, cfg, "test"),
		store:  store,
		token:  token,
		user:   user,
		client: client,
	}
}

func (e *apiEnv) do(method, path string, body any) (int, map[string]any) {
	e.t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		if err := json.NewEncoder(&buf).Encode(b); err != nil {
			e.t.Fatalf("encode: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if e.token != "" {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
			e.t.Fatalf("%s %s: decode %q: %v", method, path, w.Body.String(), err)
		}
	}
	return w.Code, out
}

func (e *apiEnv) task(status domain.TaskStatus, amount string) int64 {
	e.t.Helper()
	t := &domain.Task{
		Title:        "work",
		Priority:     domain.TaskPriorityLow,
		StartingDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		DueDate:      time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC),
		Status:       status,
		UserID:       e.user.ID,
		ClientID:     e.client.ID,
	}
	if amount != "" {
		a := decimal.RequireFromString(amount)
		t.Amount = &a
	}
	if err := e.store.CreateTask(context.Background(), t); err != nil {
		e.t.Fatalf("create task: %v", err)
	}
	return t.ID
}

func data(body map[string]any) map[string]any {
	d, _ := body["data"].(map[string]any)
	return d
}

func TestCreateInvoiceEndpoint(t *testing.T) {
	e := newAPIEnv(t)
	id := e.task(domain.TaskStatusCompleted, "100")

	code, body := e.do(nethttp.MethodPost, "/api/v1/invoices", map[string]any{
		"task_ids": []int64{id},
		"date":     "2024-02-01",
		"tax_rate": 23,
		"status":   "paid",
	})
	if code != nethttp.StatusCreated {
		t.Fatalf("status = %d, body = %v", code, body)
	}
	inv := data(body)
	if inv["status"] != "draft" {
		t.Fatalf("status = %v, want draft", inv["status"])
	}
	if inv["subtotal"] != "100.00" || inv["tax_amount"] != "23.00" || inv["total_after_tax"] != "77.00" {
		t.Fatalf("totals = %v/%v/%v", inv["subtotal"], inv["tax_amount"], inv["total_after_tax"])
	}
	if inv["date"] != "2024-02-01" {
		t.Fatalf("date = %v", inv["date"])
	}
}

func TestCreateInvoiceEndpoint_Errors(t *testing.T) {
	e := newAPIEnv(t)
	pending := e.task(domain.TaskStatusPending, "1")

	tests := []struct {
		name string
		body any
		want int
	}{
		{"ineligible task", map[string]any{"task_ids": []int64{pending}, "date": "2024-02-01"}, nethttp.StatusUnprocessableEntity},
		{"empty task set", map[string]any{"task_ids": []int64{}, "date": "2024-02-01"}, nethttp.StatusUnprocessableEntity},
		{"missing date", map[string]any{"task_ids": []int64{pending}}, nethttp.StatusUnprocessableEntity},
		{"bad date", map[string]any{"task_ids": []int64{pending}, "date": "01/02/2024"}, nethttp.StatusBadRequest},
		{"malformed json", `{"task_ids": [`, nethttp.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := e.do(nethttp.MethodPost, "/api/v1/invoices", tt.body)
			if code != tt.want {
				t.Fatalf("status = %d, want %d, body = %v", code, tt.want, body)
			}
			if body["success"] != false {
				t.Fatalf("success flag = %v", body["success"])
			}
		})
	}

	_, body := e.do(nethttp.MethodPost, "/api/v1/invoices", map[string]any{"task_ids": []int64{pending}, "date": "2024-02-01"})
	problems, _ := body["errors"].([]any)
	if len(problems) != 1 || problems[0].(map[string]any)["code"] != "not_completed" {
		t.Fatalf("errors = %v", body["errors"])
	}
}

func TestPatchTaskInvoiceNullDeletesInvoice(t *testing.T) {
	e := newAPIEnv(t)
	id := e.task(domain.TaskStatusCompleted, "10")
	_, body := e.do(nethttp.MethodPost, "/api/v1/invoices", map[string]any{"task_ids": []int64{id}, "date": "2024-02-01"})
	invID := int64(data(body)["id"].(float64))

	code, body := e.do(nethttp.MethodPatch, "/api/v1/tasks/"+strconv.FormatInt(id, 10), `{"invoice_id": null}`)
	if code != nethttp.StatusOK {
		t.Fatalf("patch status = %d, body = %v", code, body)
	}
	if data(body)["invoice_id"] != nil {
		t.Fatalf("task still linked: %v", data(body)["invoice_id"])
	}
	if inv, _ := body["released_invoice"].(map[string]any); inv["deleted"] != true {
		t.Fatalf("released invoice outcome = %v", body["released_invoice"])
	}
	if _, ok := body["invoice"]; ok {
		t.Fatalf("unexpected joined invoice: %v", body["invoice"])
	}

	code, _ = e.do(nethttp.MethodGet, "/api/v1/invoices/"+strconv.FormatInt(invID, 10), nil)
	if code != nethttp.StatusNotFound {
		t.Fatalf("invoice lookup = %d, want 404", code)
	}
}

func TestPatchTaskMoveReportsBothInvoices(t *testing.T) {
	e := newAPIEnv(t)
	a := e.task(domain.TaskStatusCompleted, "10")
	b := e.task(domain.TaskStatusCompleted, "5")
	_, body := e.do(nethttp.MethodPost, "/api/v1/invoices", map[string]any{"task_ids": []int64{a}, "date": "2024-02-01"})
	source := data(body)["id"].(float64)
	_, body = e.do(nethttp.MethodPost, "/api/v1/invoices", map[string]any{"task_ids": []int64{b}, "date": "2024-02-01"})
	target := data(body)["id"].(float64)

	code, body := e.do(nethttp.MethodPatch, "/api/v1/tasks/"+strconv.FormatInt(a, 10), map[string]any{"invoice_id": target})
	if code != nethttp.StatusOK {
		t.Fatalf("patch status = %d, body = %v", code, body)
	}

	released, _ := body["released_invoice"].(map[string]any)
	if released["id"] != source || released["deleted"] != true {
		t.Fatalf("released_invoice = %v", body["released_invoice"])
	}
	joined, _ := body["invoice"].(map[string]any)
	if joined["id"] != target || joined["deleted"] != false {
		t.Fatalf("invoice = %v", body["invoice"])
	}
	if totals, _ := joined["totals"].(map[string]any); totals["subtotal"] != "15.00" {
		t.Fatalf("joined totals = %v", joined["totals"])
	}
}

func TestUpdateInvoiceEndpoint(t *testing.T) {
	e := newAPIEnv(t)
	a := e.task(domain.TaskStatusCompleted, "50")
	b := e.task(domain.TaskStatusCompleted, "50")
	_, body := e.do(nethttp.MethodPost, "/api/v1/invoices", map[string]any{
		"task_ids": []int64{a}, "date": "2024-02-01", "due_date": "2024-02-15", "description": "Jan",
	})
	path := "/api/v1/invoices/" + strconv.FormatInt(int64(data(body)["id"].(float64)), 10)

	code, body := e.do(nethttp.MethodPut, path, map[string]any{
		"task_ids":    []int64{a, b},
		"tax_rate":    "10",
		"status":      "sent",
		"due_date":    nil,
		"description": nil,
	})
	if code != nethttp.StatusOK {
		t.Fatalf("status = %d, body = %v", code, body)
	}
	inv := data(body)
	if inv["total_after_tax"] != "90.00" || inv["status"] != "sent" {
		t.Fatalf("invoice = %v", inv)
	}
	if inv["due_date"] != nil || inv["description"] != nil {
		t.Fatalf("nullable fields not cleared: %v / %v", inv["due_date"], inv["description"])
	}

	code, body = e.do(nethttp.MethodPut, path, map[string]any{"status": "archived"})
	if code != nethttp.StatusUnprocessableEntity {
		t.Fatalf("bad status = %d, body = %v", code, body)
	}

	code, body = e.do(nethttp.MethodGet, path+"/totals", nil)
	if code != nethttp.StatusOK || data(body)["subtotal"] != "100.00" {
		t.Fatalf("totals = %d %v", code, body)
	}
}

func TestRemoveInvoiceTaskEndpoint(t *testing.T) {
	e := newAPIEnv(t)
	a := e.task(domain.TaskStatusCompleted, "1")
	b := e.task(domain.TaskStatusCompleted, "2")
	_, body := e.do(nethttp.MethodPost, "/api/v1/invoices", map[string]any{"task_ids": []int64{a, b}, "date": "2024-02-01"})
	path := "/api/v1/invoices/" + strconv.FormatInt(int64(data(body)["id"].(float64)), 10) + "/tasks/"

	code, body := e.do(nethttp.MethodDelete, path+strconv.FormatInt(a, 10), nil)
	if code != nethttp.StatusOK || body["deleted"] == true {
		t.Fatalf("first removal = %d %v", code, body)
	}
	code, body = e.do(nethttp.MethodDelete, path+strconv.FormatInt(a, 10), nil)
	if code != nethttp.StatusUnprocessableEntity {
		t.Fatalf("repeat removal = %d %v", code, body)
	}
	code, body = e.do(nethttp.MethodDelete, path+strconv.FormatInt(b, 10), nil)
	if code != nethttp.StatusOK || body["deleted"] != true {
		t.Fatalf("last removal = %d %v", code, body)
	}
}

func TestArchiveEndpoint(t *testing.T) {
	e := newAPIEnv(t)
	id := e.task(domain.TaskStatusPending, "")
	path := "/api/v1/tasks/" + strconv.FormatInt(id, 10) + "/archive"

	code, body := e.do(nethttp.MethodPatch, path, map[string]any{"is_hidden": true})
	if code != nethttp.StatusOK {
		t.Fatalf("archive = %d %v", code, body)
	}
	task := data(body)
	if task["is_hidden"] != true || task["archived_by"] != float64(e.user.ID) || task["archived_at"] == nil {
		t.Fatalf("archived task = %v", task)
	}

	code, body = e.do(nethttp.MethodGet, "/api/v1/tasks?view=archived", nil)
	if list, _ := body["data"].([]any); code != nethttp.StatusOK || len(list) != 1 {
		t.Fatalf("archived view = %d %v", code, body)
	}

	code, body = e.do(nethttp.MethodPatch, path, map[string]any{"is_hidden": false})
	task = data(body)
	if code != nethttp.StatusOK || task["is_hidden"] != false || task["archived_by"] != nil || task["archived_at"] != nil {
		t.Fatalf("unarchive = %d %v", code, task)
	}

	code, _ = e.do(nethttp.MethodPatch, path, map[string]any{})
	if code != nethttp.StatusUnprocessableEntity {
		t.Fatalf("missing is_hidden = %d", code)
	}
}

func TestTaskAndClientEndpoints(t *testing.T) {
	e := newAPIEnv(t)

	code, body := e.do(nethttp.MethodPost, "/api/v1/clients", map[string]any{"name": "Beta", "tin": "T1", "email": "b@beta.test"})
	if code != nethttp.StatusUnprocessableEntity {
		t.Fatalf("duplicate tin = %d %v", code, body)
	}
	problems, _ := body["errors"].([]any)
	if len(problems) != 1 || problems[0].(map[string]any)["code"] != "taken" {
		t.Fatalf("errors = %v", body["errors"])
	}

	code, body = e.do(nethttp.MethodPost, "/api/v1/tasks", map[string]any{
		"title":         "Design",
		"starting_date": "2024-03-01",
		"due_date":      "2024-03-04",
		"amount":        "120.5",
		"client_id":     e.client.ID,
	})
	if code != nethttp.StatusCreated {
		t.Fatalf("create task = %d %v", code, body)
	}
	task := data(body)
	if task["amount"] != "120.50" || task["status"] != "pending" || task["due_date"] != "2024-03-04" {
		t.Fatalf("task = %v", task)
	}

	code, body = e.do(nethttp.MethodPost, "/api/v1/tasks", map[string]any{
		"title": "x", "starting_date": "2024-03-01", "due_date": "2024-03-04", "client_id": e.client.ID, "priority": "urgent",
	})
	if code != nethttp.StatusUnprocessableEntity {
		t.Fatalf("bad priority = %d %v", code, body)
	}

	code, body = e.do(nethttp.MethodGet, "/api/v1/tasks?from=2024-03-03&to=2024-03-10", nil)
	if list, _ := body["data"].([]any); code != nethttp.StatusOK || len(list) != 1 {
		t.Fatalf("calendar window = %d %v", code, body)
	}
	code, _ = e.do(nethttp.MethodGet, "/api/v1/tasks?from=yesterday", nil)
	if code != nethttp.StatusUnprocessableEntity {
		t.Fatalf("bad from = %d", code)
	}

	code, _ = e.do(nethttp.MethodGet, "/api/v1/tasks/abc", nil)
	if code != nethttp.StatusBadRequest {
		t.Fatalf("non-numeric id = %d", code)
	}
}

func TestAuthRequired(t *testing.T) {
	e := newAPIEnv(t)
	e.token = ""

	code, body := e.do(nethttp.MethodGet, "/api/v1/invoices", nil)
	if code != nethttp.StatusUnauthorized || body["success"] != false {
		t.Fatalf("status = %d %v", code, body)
	}

	code, _ = e.do(nethttp.MethodGet, "/healthz", nil)
	if code != nethttp.StatusOK {
		t.Fatalf("healthz = %d", code)
	}
}

func TestDashboardAndActivity(t *testing.T) {
	e := newAPIEnv(t)
	id := e.task(domain.TaskStatusCompleted, "10")
	e.do(nethttp.MethodPost, "/api/v1/invoices", map[string]any{"task_ids": []int64{id}, "date": "2024-02-01"})

	code, body := e.do(nethttp.MethodGet, "/api/v1/dashboard", nil)
	if code != nethttp.StatusOK {
		t.Fatalf("dashboard = %d %v", code, body)
	}
	invoices, _ := data(body)["invoices"].(map[string]any)
	draft, _ := invoices["draft"].(map[string]any)
	if draft["count"] != float64(1) || draft["total"] != "10.00" {
		t.Fatalf("draft bucket = %v", draft)
	}

	code, body = e.do(nethttp.MethodGet, "/api/v1/activity?limit=5", nil)
	list, _ := body["data"].([]any)
	if code != nethttp.StatusOK || len(list) != 1 {
		t.Fatalf("activity = %d %v", code, body)
	}
	if entry := list[0].(map[string]any); entry["action"] != domain.AuditActionInvoiceCreate {
		t.Fatalf("activity entry = %v", entry)
	}

	code, body = e.do(nethttp.MethodGet, "/api/v1/me", nil)
	if code != nethttp.StatusOK || data(body)["email"] != "ann@example.com" {
		t.Fatalf("me = %d %v", code, body)
	}
}
