package leads

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/wolfman30/school-whatsapp-hub/pkg/logging"
)

func newTestRouter(repo Repository) http.Handler {
	h := NewHandler(repo, logging.Default())
	r := chi.NewRouter()
	r.Get("/admin/leads", h.ListLeads)
	r.Get("/admin/leads/{leadID}", h.GetLead)
	r.Patch("/admin/leads/{leadID}", h.UpdateLead)
	return r
}

func TestListLeads(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()
	if _, err := repo.GetOrCreateByPhone(ctx, "5521987654321", "Maria", ""); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := repo.GetOrCreateByPhone(ctx, "5511999990000", "João", ""); err != nil {
		t.Fatalf("seed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/admin/leads?q=maria&limit=10", nil)
	w := httptest.NewRecorder()
	newTestRouter(repo).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	var resp ListLeadsResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Count != 1 || resp.Leads[0].Name != "Maria" {
		t.Fatalf("unexpected leads %+v", resp.Leads)
	}
	if resp.Limit != 10 {
		t.Fatalf("expected limit 10, got %d", resp.Limit)
	}
}

func TestGetLeadNotFound(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/admin/leads/missing", nil)
	w := httptest.NewRecorder()
	newTestRouter(NewInMemoryRepository()).ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, w.Code)
	}
}

func TestUpdateLead(t *testing.T) {
	repo := NewInMemoryRepository()
	lead, err := repo.GetOrCreateByPhone(context.Background(), "5521987654321", "", "")
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	body := strings.NewReader(`{"name":"  Ana Souza ","notes":"mãe do aluno do 3º ano"}`)
	req := httptest.NewRequest(http.MethodPatch, "/admin/leads/"+lead.ID, body)
	w := httptest.NewRecorder()
	newTestRouter(repo).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}
	var updated Lead
	if err := json.NewDecoder(w.Body).Decode(&updated); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if updated.Name != "Ana Souza" {
		t.Fatalf("expected trimmed name, got %q", updated.Name)
	}
	if updated.Notes != "mãe do aluno do 3º ano" {
		t.Fatalf("unexpected notes %q", updated.Notes)
	}
}

func TestUpdateLeadRejectsEmptyBody(t *testing.T) {
	repo := NewInMemoryRepository()
	lead, _ := repo.GetOrCreateByPhone(context.Background(), "5521987654321", "", "")

	req := httptest.NewRequest(http.MethodPatch, "/admin/leads/"+lead.ID, strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	newTestRouter(repo).ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
}

func TestUpdateLeadInvalidJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPatch, "/admin/leads/x", strings.NewReader(`{`))
	w := httptest.NewRecorder()
	newTestRouter(NewInMemoryRepository()).ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
}
