package rotation

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func newTriggerFixture(repo *fakeRepo) *TriggerHandler {
	s := NewScheduler(repo, clockwork.NewFakeClockAt(time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)), testDefaults())
	return NewTriggerHandler(s, "topsecret")
}

func TestTrigger_MissingCredential_NoSideEffects(t *testing.T) {
	repo := &fakeRepo{items: itemPool(3)}
	h := newTriggerFixture(repo)

	req := httptest.NewRequest(http.MethodPost, "/internal/rotation/run", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if len(repo.created) != 0 {
		t.Error("unauthorized trigger must not create anything")
	}
}

func TestTrigger_WrongCredential_Rejected(t *testing.T) {
	repo := &fakeRepo{items: itemPool(3)}
	h := newTriggerFixture(repo)

	req := httptest.NewRequest(http.MethodPost, "/internal/rotation/run", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if len(repo.created) != 0 {
		t.Error("bad credential must not create anything")
	}
}

func TestTrigger_ValidCredential_RunsRotation(t *testing.T) {
	repo := &fakeRepo{items: itemPool(3), expired: 1}
	h := newTriggerFixture(repo)

	req := httptest.NewRequest(http.MethodPost, "/internal/rotation/run", nil)
	req.Header.Set("Authorization", "Bearer topsecret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var result Result
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if !result.Created || result.Closed != 1 || result.AuctionID == "" {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestTrigger_EmptyPool_StillOK(t *testing.T) {
	repo := &fakeRepo{}
	h := newTriggerFixture(repo)

	req := httptest.NewRequest(http.MethodPost, "/internal/rotation/run", nil)
	req.Header.Set("Authorization", "Bearer topsecret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for no-op run, got %d", rec.Code)
	}
	var result Result
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if result.Created {
		t.Error("expected created=false for empty pool")
	}
}

func TestTrigger_GetRejected(t *testing.T) {
	h := newTriggerFixture(&fakeRepo{})

	req := httptest.NewRequest(http.MethodGet, "/internal/rotation/run", nil)
	req.Header.Set("Authorization", "Bearer topsecret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}
