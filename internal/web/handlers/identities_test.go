package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	embeddingmock "github.com/kozaktomas/facegate/internal/embedding/mock"
	"github.com/kozaktomas/facegate/internal/service"
	"github.com/kozaktomas/facegate/internal/store"
	storemock "github.com/kozaktomas/facegate/internal/store/mock"
)

func seededIdentityStore() *storemock.MockIdentityStore {
	st := storemock.NewMockIdentityStore()
	st.AddIdentity(store.Identity{
		EmployeeID:   "emp-0042",
		Name:         "Jan Novák",
		Embedding:    testEmbedding(0),
		Dim:          testDim,
		Model:        "sface",
		Metric:       "cosine",
		Quality:      0.97,
		EnrollmentID: "enr-1",
		EnrolledAt:   time.Now().UTC(),
	})
	st.AddIdentity(store.Identity{
		EmployeeID:   "emp-0043",
		Name:         "Eva Svobodová",
		Embedding:    testEmbedding(1),
		Dim:          testDim,
		Model:        "sface",
		Metric:       "cosine",
		Quality:      0.91,
		EnrollmentID: "enr-2",
		EnrolledAt:   time.Now().UTC(),
	})
	return st
}

func newIdentitiesTestHandler(st *storemock.MockIdentityStore) *IdentitiesHandler {
	extractor := embeddingmock.NewMockExtractor(testExtractResult(0))
	return NewIdentitiesHandler(newTestService(extractor, st, nil))
}

func TestIdentitiesHandler_List(t *testing.T) {
	handler := newIdentitiesTestHandler(seededIdentityStore())

	req := httptest.NewRequest("GET", "/api/faces/identities", nil)
	recorder := httptest.NewRecorder()
	handler.List(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)

	var response listIdentitiesResponse
	parseJSONResponse(t, recorder, &response)

	if response.Count != 2 || len(response.Identities) != 2 {
		t.Fatalf("expected 2 identities, got count=%d len=%d", response.Count, len(response.Identities))
	}
	if response.Identities[0].EmployeeID != "emp-0042" {
		t.Errorf("expected listing ordered by employee id, got %q first", response.Identities[0].EmployeeID)
	}
}

func TestIdentitiesHandler_List_NeverExposesEmbeddings(t *testing.T) {
	handler := newIdentitiesTestHandler(seededIdentityStore())

	req := httptest.NewRequest("GET", "/api/faces/identities", nil)
	recorder := httptest.NewRecorder()
	handler.List(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)

	if strings.Contains(recorder.Body.String(), "embedding") {
		t.Error("identity responses must not contain embedding data")
	}
}

func TestIdentitiesHandler_List_Query(t *testing.T) {
	handler := newIdentitiesTestHandler(seededIdentityStore())

	// Diacritic-insensitive: "svobodova" matches "Eva Svobodová".
	req := httptest.NewRequest("GET", "/api/faces/identities?q=svobodova", nil)
	recorder := httptest.NewRecorder()
	handler.List(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)

	var response listIdentitiesResponse
	parseJSONResponse(t, recorder, &response)

	if response.Count != 1 {
		t.Fatalf("expected 1 match, got %d", response.Count)
	}
	if response.Identities[0].EmployeeID != "emp-0043" {
		t.Errorf("expected emp-0043, got %q", response.Identities[0].EmployeeID)
	}
}

func TestIdentitiesHandler_Get(t *testing.T) {
	handler := newIdentitiesTestHandler(seededIdentityStore())

	req := httptest.NewRequest("GET", "/api/faces/identities/emp-0042", nil)
	req = requestWithChiParams(req, map[string]string{"userId": "emp-0042"})

	recorder := httptest.NewRecorder()
	handler.Get(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)

	var response getIdentityResponse
	parseJSONResponse(t, recorder, &response)

	if response.Identity.EmployeeID != "emp-0042" {
		t.Errorf("expected emp-0042, got %q", response.Identity.EmployeeID)
	}
	if response.Identity.Name != "Jan Novák" {
		t.Errorf("expected name, got %q", response.Identity.Name)
	}
	if response.Identity.EnrollmentID != "enr-1" {
		t.Errorf("expected enrollment id, got %q", response.Identity.EnrollmentID)
	}
	if strings.Contains(recorder.Body.String(), "embedding") {
		t.Error("identity responses must not contain embedding data")
	}
}

func TestIdentitiesHandler_Get_NotFound(t *testing.T) {
	handler := newIdentitiesTestHandler(seededIdentityStore())

	req := httptest.NewRequest("GET", "/api/faces/identities/emp-ghost", nil)
	req = requestWithChiParams(req, map[string]string{"userId": "emp-ghost"})

	recorder := httptest.NewRecorder()
	handler.Get(recorder, req)

	assertStatusCode(t, recorder, http.StatusNotFound)
	assertErrorCode(t, recorder, service.CodeNotFound)
}

func TestIdentitiesHandler_Delete(t *testing.T) {
	st := seededIdentityStore()
	handler := newIdentitiesTestHandler(st)

	req := httptest.NewRequest("DELETE", "/api/faces/identities/emp-0042", nil)
	req = requestWithChiParams(req, map[string]string{"userId": "emp-0042"})

	recorder := httptest.NewRecorder()
	handler.Delete(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)

	if len(st.DeleteCalls) != 1 || st.DeleteCalls[0] != "emp-0042" {
		t.Errorf("expected a delete call for emp-0042, got %v", st.DeleteCalls)
	}

	// The identity is gone afterwards.
	req = httptest.NewRequest("GET", "/api/faces/identities/emp-0042", nil)
	req = requestWithChiParams(req, map[string]string{"userId": "emp-0042"})
	recorder = httptest.NewRecorder()
	handler.Get(recorder, req)

	assertStatusCode(t, recorder, http.StatusNotFound)
}

func TestIdentitiesHandler_Delete_NotFound(t *testing.T) {
	handler := newIdentitiesTestHandler(seededIdentityStore())

	req := httptest.NewRequest("DELETE", "/api/faces/identities/emp-ghost", nil)
	req = requestWithChiParams(req, map[string]string{"userId": "emp-ghost"})

	recorder := httptest.NewRecorder()
	handler.Delete(recorder, req)

	assertStatusCode(t, recorder, http.StatusNotFound)
	assertErrorCode(t, recorder, service.CodeNotFound)
}
