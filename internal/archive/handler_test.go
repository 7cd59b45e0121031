package archive

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/wichananm65/heladeria-backend/internal/order"
)

func setupApp(t *testing.T) (*fiber.App, *env) {
	t.Helper()
	e := newEnv(t)
	svc := order.NewService(e.store, nil, nil)
	auto := NewAutoArchiver(e.archiver, svc, time.Hour, time.Hour)
	a := fiber.New(fiber.Config{Immutable: true})
	NewHandler(e.archiver, auto).RegisterProtectedRoutes(a)
	order.NewHandler(svc).RegisterProtectedRoutes(a)
	return a, e
}

func post(t *testing.T, a *fiber.App, path string) (int, map[string]interface{}) {
	t.Helper()
	res, err := a.Test(httptest.NewRequest("POST", path, nil), -1)
	if err != nil {
		t.Fatal(err)
	}
	out := map[string]interface{}{}
	json.NewDecoder(res.Body).Decode(&out)
	return res.StatusCode, out
}

func TestArchiveHandler_StatusCodes(t *testing.T) {
	a, e := setupApp(t)
	pending := completed("pending", item("1/4", "vanilla"))
	pending.Status = order.StatusPending
	e.put(t, fl("vanilla", 2000), fl("low", 10),
		completed("ok", item("1/4", "vanilla")),
		completed("short", item("1/4", "low")),
		completed("weird", item("helado sorpresa", "vanilla")),
		completed("ghost", item("1/4", "nope")),
		pending,
	)

	tests := []struct {
		id     string
		status int
		code   string
	}{
		{"ok", fiber.StatusOK, ""},
		{"ok", fiber.StatusOK, ""},
		{"missing", fiber.StatusNotFound, "ORDER_NOT_FOUND"},
		{"short", fiber.StatusConflict, "INSUFFICIENT_STOCK"},
		{"ghost", fiber.StatusConflict, "FLAVOR_NOT_FOUND"},
		{"weird", fiber.StatusUnprocessableEntity, "UNKNOWN_WEIGHT"},
		{"pending", fiber.StatusUnprocessableEntity, "ORDER_NOT_COMPLETED"},
	}
	for _, tt := range tests {
		status, out := post(t, a, "/api/v1/admin/orders/"+tt.id+"/archive")
		if status != tt.status {
			t.Errorf("%s: expected %d got %d (%v)", tt.id, tt.status, status, out)
		}
		if tt.code != "" && out["code"] != tt.code {
			t.Errorf("%s: expected code %s got %v", tt.id, tt.code, out["code"])
		}
	}

	if got := e.weightOf(t, "vanilla"); got != 1750 {
		t.Errorf("expected one deduction, vanilla is %v", got)
	}

	status, out := post(t, a, "/api/v1/admin/orders/pending/archive/override")
	if status != fiber.StatusUnprocessableEntity {
		t.Errorf("expected 422 for override of pending order, got %d (%v)", status, out)
	}
}

func TestArchiveHandler_ArchiveThenReadBack(t *testing.T) {
	a, e := setupApp(t)
	e.put(t, fl("vanilla", 2000), completed("o1", item("1/4", "vanilla")))

	status, out := post(t, a, "/api/v1/admin/orders/o1/archive")
	if status != fiber.StatusOK {
		t.Fatalf("expected 200 got %d (%v)", status, out)
	}
	if out["alreadyArchived"] != false {
		t.Errorf("first archive should deduct, got %v", out)
	}
	if deductions, _ := out["deductions"].([]interface{}); len(deductions) != 1 {
		t.Errorf("expected one deduction, got %v", out["deductions"])
	}

	res, err := a.Test(httptest.NewRequest("GET", "/api/v1/admin/orders/o1", nil), -1)
	if err != nil {
		t.Fatal(err)
	}
	if res.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200 reading the order, got %d", res.StatusCode)
	}
	stored := map[string]interface{}{}
	json.NewDecoder(res.Body).Decode(&stored)
	if stored["archived"] != true || stored["archivedAt"] == nil {
		t.Errorf("order should read back archived, got %v", stored)
	}

	status, out = post(t, a, "/api/v1/admin/orders/o1/archive")
	if status != fiber.StatusOK || out["alreadyArchived"] != true {
		t.Errorf("second archive should be a no-op, got %d (%v)", status, out)
	}
	if got := e.weightOf(t, "vanilla"); got != 1750 {
		t.Errorf("expected a single deduction, vanilla is %v", got)
	}
}

func TestAutoArchiveRunHandler(t *testing.T) {
	a, e := setupApp(t)
	old := time.Now().UTC().Add(-3 * time.Hour)
	recent := time.Now().UTC()
	due := completed("due", item("1/4", "vanilla"))
	due.CompletedAt = &old
	fresh := completed("fresh", item("1/4", "vanilla"))
	fresh.CompletedAt = &recent
	e.put(t, fl("vanilla", 2000), due, fresh)

	status, out := post(t, a, "/api/v1/admin/auto-archive/run")
	if status != fiber.StatusOK {
		t.Fatalf("expected 200 got %d", status)
	}
	archived := out["archived"].([]interface{})
	if len(archived) != 1 || archived[0] != "due" {
		t.Fatalf("unexpected report %v", out)
	}
	if e.order(t, "fresh").Archived {
		t.Error("recently completed order should not be archived yet")
	}
}
