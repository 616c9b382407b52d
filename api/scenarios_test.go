package api

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/course-ledger/ledger"
	"github.com/warp/course-ledger/ledger/store"
)

func TestListScenarios(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(http.MethodGet, "/api/scenarios", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]ScenarioDTO](t, rec)
	ids := make([]string, len(list))
	for i, s := range list {
		ids[i] = s.ID
	}
	assert.ElementsMatch(t, []string{"marketplace", "catalog", "empty"}, ids)
}

func TestLoadScenario_Marketplace(t *testing.T) {
	e := newTestEnv(t)
	e.createCourse(carol, "99")

	rec := e.do(http.MethodPost, "/api/scenarios/load", "", LoadScenarioRequest{ScenarioID: "marketplace"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// The reset dropped carol's course and restarted ids
	list := decode[CourseListResponse](t, e.do(http.MethodGet, "/api/courses", "", nil))
	assert.Equal(t, []ledger.CourseID{1}, list.CourseIDs)

	assert.Equal(t, http.StatusOK, e.do(http.MethodGet, path(1, "/resource"), string(DemoStudent), nil).Code)
	assert.Equal(t, http.StatusForbidden, e.do(http.MethodGet, path(1, "/resource"), string(DemoBystander), nil).Code)

	student := decode[BalanceDTO](t, e.do(http.MethodGet, "/api/accounts/"+string(DemoStudent)+"/balance", "", nil))
	instructor := decode[BalanceDTO](t, e.do(http.MethodGet, "/api/accounts/"+string(DemoInstructor)+"/balance", "", nil))
	assert.Equal(t, "15", student.Balance.String())
	assert.Equal(t, "10", instructor.Balance.String())

	current := decode[ScenarioDTO](t, e.do(http.MethodGet, "/api/scenarios/current", "", nil))
	assert.Equal(t, "marketplace", current.ID)
}

func TestLoadScenario_Catalog(t *testing.T) {
	e := newTestEnv(t)

	require.Equal(t, http.StatusOK, e.do(http.MethodPost, "/api/scenarios/load", "", LoadScenarioRequest{ScenarioID: "catalog"}).Code)

	list := decode[CourseListResponse](t, e.do(http.MethodGet, "/api/courses", "", nil))
	assert.Equal(t, []ledger.CourseID{1, 2, 3}, list.CourseIDs)

	bought := decode[AccountCoursesDTO](t, e.do(http.MethodGet, "/api/accounts/"+string(DemoStudent)+"/courses", "", nil))
	assert.Equal(t, []ledger.CourseID{1, 3, 4}, bought.CourseIDs)

	// Retired course stays readable for its buyer
	assert.Equal(t, http.StatusOK, e.do(http.MethodGet, path(4, "/resource"), string(DemoStudent), nil).Code)
}

func TestLoadScenario_Empty(t *testing.T) {
	e := newTestEnv(t)
	e.createCourse(alice, "1")

	require.Equal(t, http.StatusOK, e.do(http.MethodPost, "/api/scenarios/load", "", LoadScenarioRequest{ScenarioID: "empty"}).Code)

	list := decode[CourseListResponse](t, e.do(http.MethodGet, "/api/courses", "", nil))
	assert.Empty(t, list.CourseIDs)
}

func TestLoadScenario_Unknown(t *testing.T) {
	e := newTestEnv(t)
	id := e.createCourse(alice, "1")

	rec := e.do(http.MethodPost, "/api/scenarios/load", "", LoadScenarioRequest{ScenarioID: "nope"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	// Unknown ids do not reset anything
	assert.Equal(t, http.StatusOK, e.do(http.MethodGet, path(id, ""), "", nil).Code)
}

type failingResetter struct{}

func (failingResetter) Reset(context.Context) error { return errors.New("disk full") }

func TestLoadScenario_ResetFailure(t *testing.T) {
	h := NewHandler(Deps{Ledger: ledger.New(store.NewMemory()), Resetter: failingResetter{}})

	err := h.loadScenario(context.Background(), "marketplace")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestLoadScenario_NoResetter(t *testing.T) {
	h := NewHandler(Deps{Ledger: ledger.New(store.NewMemory())})

	assert.Error(t, h.loadScenario(context.Background(), "empty"))
}

func TestScenarioRoutesDisabled(t *testing.T) {
	h := NewHandler(Deps{Ledger: ledger.New(store.NewMemory())})
	router := NewRouter(h, RouterConfig{})
	e := &testEnv{t: t, handler: h, router: router}

	assert.Equal(t, http.StatusNotFound, e.do(http.MethodGet, "/api/scenarios", "", nil).Code)
}
