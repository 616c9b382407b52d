/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the ledger with realistic
	data for demos. Each scenario funds wallets, creates courses and
	performs purchases through the regular ledger operations, so seeded
	state always satisfies the same rules as live traffic.

AVAILABLE SCENARIOS:

	marketplace: One instructor, one buyer, one bystander
	catalog:     Several instructors, one retired course
	empty:       Clean ledger

HOW SCENARIOS WORK:
 1. Reset the store (clear all data, course ids restart at 1)
 2. Fund wallets
 3. Create courses as their instructors
 4. Optionally purchase and deactivate

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "marketplace"}

NOTE:

	Scenarios reset the store. The route is only mounted when scenarios are
	enabled in config.

SEE ALSO:
  - handlers.go: Handler
  - server.go: Route registration
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/warp/course-ledger/ledger"
	"go.uber.org/zap"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

// Demo accounts shared by the scenarios.
const (
	DemoInstructor = ledger.Identity("0xA11CE")
	DemoStudent    = ledger.Identity("0xB0B")
	DemoBystander  = ledger.Identity("0xCA401")
	DemoCoauthor   = ledger.Identity("0xDA4E")
)

var scenarios = []ScenarioDTO{
	{
		ID:          "marketplace",
		Name:        "Marketplace",
		Description: "Alice teaches one course, Bob bought it, Carol did not",
		Accounts: map[string]string{
			"instructor": string(DemoInstructor),
			"student":    string(DemoStudent),
			"bystander":  string(DemoBystander),
		},
	},
	{
		ID:          "catalog",
		Name:        "Catalog",
		Description: "Two instructors, four courses, one of them retired",
		Accounts: map[string]string{
			"instructor": string(DemoInstructor),
			"coauthor":   string(DemoCoauthor),
			"student":    string(DemoStudent),
		},
	},
	{
		ID:          "empty",
		Name:        "Empty",
		Description: "No courses, no balances",
	},
}

var errUnknownScenario = errors.New("unknown scenario")

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the ledger and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !decodeBody(w, r, &req) {
		return
	}

	err := h.loadScenario(r.Context(), req.ScenarioID)
	switch {
	case errors.Is(err, errUnknownScenario):
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	case err != nil:
		h.Logger.Error("scenario load failed", zap.String("scenario", req.ScenarioID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", nil)
		return
	}

	h.audit(r, "scenario loaded", zap.String("scenario", req.ScenarioID))
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

func (h *Handler) loadScenario(ctx context.Context, id string) error {
	var load func(context.Context) error
	switch id {
	case "marketplace":
		load = h.loadMarketplaceScenario
	case "catalog":
		load = h.loadCatalogScenario
	case "empty":
		load = func(context.Context) error { return nil }
	default:
		return fmt.Errorf("%w: %q", errUnknownScenario, id)
	}
	if h.Resetter == nil {
		return errors.New("store does not support reset")
	}

	// Loads are serialized so two callers cannot interleave seed data.
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.Resetter.Reset(ctx); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	h.currentScenario = ""
	if err := load(ctx); err != nil {
		return err
	}
	h.currentScenario = id
	return nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadMarketplaceScenario(ctx context.Context) error {
	if err := h.fund(ctx, map[ledger.Identity]string{
		DemoStudent:   "25",
		DemoBystander: "5",
	}); err != nil {
		return err
	}

	id, err := h.Ledger.CreateCourse(ctx, DemoInstructor, ledger.CourseInput{
		Title:             "Intro to Go",
		Description:       "Types, interfaces and goroutines in six live sessions",
		Price:             ledger.NewAmount(10),
		ProtectedResource: "https://meet.example.com/intro-to-go",
	})
	if err != nil {
		return fmt.Errorf("create course: %w", err)
	}

	if _, err := h.Ledger.PurchaseCourse(ctx, DemoStudent, id, ledger.NewAmount(10)); err != nil {
		return fmt.Errorf("purchase: %w", err)
	}
	return nil
}

func (h *Handler) loadCatalogScenario(ctx context.Context) error {
	if err := h.fund(ctx, map[ledger.Identity]string{
		DemoStudent: "100",
	}); err != nil {
		return err
	}

	courses := []struct {
		instructor ledger.Identity
		in         ledger.CourseInput
		buy        bool
		retire     bool
	}{
		{DemoInstructor, ledger.CourseInput{
			Title: "Concurrency Patterns", Description: "Pipelines, fan-out and cancellation",
			Price: ledger.MustParseAmount("12.5"), ProtectedResource: "https://meet.example.com/concurrency",
		}, true, false},
		{DemoInstructor, ledger.CourseInput{
			Title: "SQL for Ledgers", Description: "Transactions and isolation levels",
			Price: ledger.NewAmount(20), ProtectedResource: "https://meet.example.com/sql-ledgers",
		}, false, false},
		{DemoCoauthor, ledger.CourseInput{
			Title: "Fixed-Point Money", Description: "Why balances are never floats",
			Price: ledger.MustParseAmount("0.000000000000000001"), ProtectedResource: "https://meet.example.com/fixed-point",
		}, true, false},
		{DemoCoauthor, ledger.CourseInput{
			Title: "Legacy Deployments", Description: "Retired in favor of newer material",
			Price: ledger.NewAmount(5), ProtectedResource: "https://meet.example.com/legacy",
		}, true, true},
	}

	for _, c := range courses {
		id, err := h.Ledger.CreateCourse(ctx, c.instructor, c.in)
		if err != nil {
			return fmt.Errorf("create %q: %w", c.in.Title, err)
		}
		if c.buy {
			if _, err := h.Ledger.PurchaseCourse(ctx, DemoStudent, id, c.in.Price); err != nil {
				return fmt.Errorf("purchase %q: %w", c.in.Title, err)
			}
		}
		if c.retire {
			if err := h.Ledger.DeactivateCourse(ctx, c.instructor, id); err != nil {
				return fmt.Errorf("deactivate %q: %w", c.in.Title, err)
			}
		}
	}
	return nil
}

func (h *Handler) fund(ctx context.Context, balances map[ledger.Identity]string) error {
	for account, amount := range balances {
		amt, err := ledger.ParseAmount(amount)
		if err != nil {
			return err
		}
		if _, err := h.Ledger.Deposit(ctx, account, amt); err != nil {
			return fmt.Errorf("fund %s: %w", account, err)
		}
	}
	return nil
}
