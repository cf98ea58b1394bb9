package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kozaktomas/facegate/internal/embedding"
	embeddingmock "github.com/kozaktomas/facegate/internal/embedding/mock"
	"github.com/kozaktomas/facegate/internal/logger"
	"github.com/kozaktomas/facegate/internal/match"
	"github.com/kozaktomas/facegate/internal/service"
	"github.com/kozaktomas/facegate/internal/store"
	storemock "github.com/kozaktomas/facegate/internal/store/mock"
)

func TestFacesHandler_Enroll_Success(t *testing.T) {
	extractor := embeddingmock.NewMockExtractor(testExtractResult(0))
	st := storemock.NewMockIdentityStore()
	handler := newFacesTestHandler(extractor, st)

	req := uploadRequest(t, "/api/faces/enroll/emp-0042", "face", []byte("photo-bytes"),
		map[string]string{"name": "Jan Novák"})
	req = requestWithChiParams(req, map[string]string{"userId": "emp-0042"})

	recorder := httptest.NewRecorder()
	handler.Enroll(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)
	assertContentType(t, recorder, "application/json")

	var response enrollResponse
	parseJSONResponse(t, recorder, &response)

	if !response.Success {
		t.Error("expected success=true")
	}
	if response.Message != "face enrolled successfully" {
		t.Errorf("unexpected message %q", response.Message)
	}
	if response.EnrollmentID == "" {
		t.Error("expected a non-empty enrollment_id")
	}
	if response.Quality != 0.97 {
		t.Errorf("expected quality 0.97, got %f", response.Quality)
	}

	if len(st.PutCalls) != 1 {
		t.Fatalf("expected 1 put call, got %d", len(st.PutCalls))
	}
	if st.PutCalls[0].Name != "Jan Novák" {
		t.Errorf("expected the name form field to be stored, got %q", st.PutCalls[0].Name)
	}
}

func TestFacesHandler_Enroll_FallbackFileField(t *testing.T) {
	extractor := embeddingmock.NewMockExtractor(testExtractResult(0))
	handler := newFacesTestHandler(extractor, storemock.NewMockIdentityStore())

	// Clients using the field name "image" instead of "face" still work.
	req := uploadRequest(t, "/api/faces/enroll/emp-0042", "image", []byte("photo-bytes"), nil)
	req = requestWithChiParams(req, map[string]string{"userId": "emp-0042"})

	recorder := httptest.NewRecorder()
	handler.Enroll(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)
}

func TestFacesHandler_Enroll_NoFile(t *testing.T) {
	extractor := embeddingmock.NewMockExtractor(testExtractResult(0))
	handler := newFacesTestHandler(extractor, storemock.NewMockIdentityStore())

	req := uploadRequest(t, "/api/faces/enroll/emp-0042", "", nil,
		map[string]string{"name": "Jan Novák"})
	req = requestWithChiParams(req, map[string]string{"userId": "emp-0042"})

	recorder := httptest.NewRecorder()
	handler.Enroll(recorder, req)

	assertStatusCode(t, recorder, http.StatusBadRequest)
	assertErrorCode(t, recorder, service.CodeInvalidRequest)
}

func TestFacesHandler_Enroll_NotMultipart(t *testing.T) {
	extractor := embeddingmock.NewMockExtractor(testExtractResult(0))
	handler := newFacesTestHandler(extractor, storemock.NewMockIdentityStore())

	req := httptest.NewRequest("POST", "/api/faces/enroll/emp-0042", nil)
	req.Header.Set("Content-Type", "application/json")
	req = requestWithChiParams(req, map[string]string{"userId": "emp-0042"})

	recorder := httptest.NewRecorder()
	handler.Enroll(recorder, req)

	assertStatusCode(t, recorder, http.StatusBadRequest)
	assertErrorCode(t, recorder, service.CodeInvalidRequest)
}

func TestFacesHandler_Enroll_NoFaceDetected(t *testing.T) {
	extractor := embeddingmock.NewMockExtractor(nil)
	extractor.ExtractError = embedding.ErrNoFaceDetected
	handler := newFacesTestHandler(extractor, storemock.NewMockIdentityStore())

	req := uploadRequest(t, "/api/faces/enroll/emp-0042", "face", []byte("landscape"), nil)
	req = requestWithChiParams(req, map[string]string{"userId": "emp-0042"})

	recorder := httptest.NewRecorder()
	handler.Enroll(recorder, req)

	assertStatusCode(t, recorder, http.StatusBadRequest)
	assertErrorCode(t, recorder, service.CodeNoFaceDetected)
}

func TestFacesHandler_Enroll_PayloadTooLarge(t *testing.T) {
	extractor := embeddingmock.NewMockExtractor(testExtractResult(0))
	st := storemock.NewMockIdentityStore()
	handler := NewFacesHandler(newTestService(extractor, st, nil), 1024, logger.New(io.Discard, "error"))

	req := uploadRequest(t, "/api/faces/enroll/emp-0042", "face", make([]byte, 4096), nil)
	req = requestWithChiParams(req, map[string]string{"userId": "emp-0042"})

	recorder := httptest.NewRecorder()
	handler.Enroll(recorder, req)

	assertStatusCode(t, recorder, http.StatusRequestEntityTooLarge)
	assertErrorCode(t, recorder, codePayloadTooLarge)
}

func TestFacesHandler_Verify_Accept(t *testing.T) {
	extractor := embeddingmock.NewMockExtractor(testExtractResult(0))
	st := storemock.NewMockIdentityStore()
	st.AddIdentity(store.Identity{
		EmployeeID: "emp-0042",
		Embedding:  testEmbedding(0),
		Dim:        testDim,
		Model:      "sface",
		Metric:     "cosine",
	})
	handler := newFacesTestHandler(extractor, st)

	req := uploadRequest(t, "/api/faces/verify/emp-0042", "face", []byte("gate-capture"), nil)
	req = requestWithChiParams(req, map[string]string{"userId": "emp-0042"})

	recorder := httptest.NewRecorder()
	handler.Verify(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)

	var response verifyResponse
	parseJSONResponse(t, recorder, &response)

	if !response.Success {
		t.Error("expected success=true")
	}
	if !response.Matched {
		t.Error("expected matched=true for the same embedding")
	}
	if response.Distance > 1e-6 {
		t.Errorf("expected near-zero distance, got %f", response.Distance)
	}
	if response.Threshold != 0.55 {
		t.Errorf("expected threshold 0.55, got %f", response.Threshold)
	}
}

func TestFacesHandler_Verify_Reject(t *testing.T) {
	extractor := embeddingmock.NewMockExtractor(testExtractResult(3))
	st := storemock.NewMockIdentityStore()
	st.AddIdentity(store.Identity{
		EmployeeID: "emp-0042",
		Embedding:  testEmbedding(0),
		Dim:        testDim,
		Model:      "sface",
		Metric:     "cosine",
	})
	handler := newFacesTestHandler(extractor, st)

	req := uploadRequest(t, "/api/faces/verify/emp-0042", "face", []byte("someone-else"), nil)
	req = requestWithChiParams(req, map[string]string{"userId": "emp-0042"})

	recorder := httptest.NewRecorder()
	handler.Verify(recorder, req)

	// A rejected face is still a successful verification request.
	assertStatusCode(t, recorder, http.StatusOK)

	var response verifyResponse
	parseJSONResponse(t, recorder, &response)

	if !response.Success {
		t.Error("expected success=true")
	}
	if response.Matched {
		t.Error("expected matched=false for a different face")
	}
}

func TestFacesHandler_Verify_NotEnrolled(t *testing.T) {
	extractor := embeddingmock.NewMockExtractor(testExtractResult(0))
	handler := newFacesTestHandler(extractor, storemock.NewMockIdentityStore())

	req := uploadRequest(t, "/api/faces/verify/emp-ghost", "face", []byte("gate-capture"), nil)
	req = requestWithChiParams(req, map[string]string{"userId": "emp-ghost"})

	recorder := httptest.NewRecorder()
	handler.Verify(recorder, req)

	assertStatusCode(t, recorder, http.StatusNotFound)
	assertErrorCode(t, recorder, service.CodeNotEnrolled)
}

func TestFacesHandler_Verify_ExtractorUnavailable(t *testing.T) {
	extractor := embeddingmock.NewMockExtractor(nil)
	extractor.ExtractError = fmt.Errorf("posting image: %w", embedding.ErrUnavailable)
	st := storemock.NewMockIdentityStore()
	st.AddIdentity(store.Identity{
		EmployeeID: "emp-0042",
		Embedding:  testEmbedding(0),
		Dim:        testDim,
		Metric:     "cosine",
	})
	handler := newFacesTestHandler(extractor, st)

	req := uploadRequest(t, "/api/faces/verify/emp-0042", "face", []byte("gate-capture"), nil)
	req = requestWithChiParams(req, map[string]string{"userId": "emp-0042"})

	recorder := httptest.NewRecorder()
	handler.Verify(recorder, req)

	assertStatusCode(t, recorder, http.StatusBadGateway)
	assertErrorCode(t, recorder, service.CodeUnavailable)
}

func TestFacesHandler_Verify_Timeout(t *testing.T) {
	extractor := embeddingmock.NewMockExtractor(testExtractResult(0))
	extractor.Delay = 200 * time.Millisecond

	st := storemock.NewMockIdentityStore()
	st.AddIdentity(store.Identity{
		EmployeeID: "emp-0042",
		Embedding:  testEmbedding(0),
		Dim:        testDim,
		Metric:     "cosine",
	})

	svc := service.New(service.Config{
		Extractor: extractor,
		Store:     st,
		Logger:    logger.New(io.Discard, "error"),
		Metric:    match.Cosine,
		Threshold: 0.55,
		Timeout:   20 * time.Millisecond,
	})
	handler := NewFacesHandler(svc, testMaxUpload, logger.New(io.Discard, "error"))

	req := uploadRequest(t, "/api/faces/verify/emp-0042", "face", []byte("gate-capture"), nil)
	req = requestWithChiParams(req, map[string]string{"userId": "emp-0042"})

	recorder := httptest.NewRecorder()
	handler.Verify(recorder, req)

	assertStatusCode(t, recorder, http.StatusGatewayTimeout)
	assertErrorCode(t, recorder, service.CodeTimeout)
}

func TestFacesHandler_Compare(t *testing.T) {
	extractor := embeddingmock.NewMockExtractor(testExtractResult(0))
	st := storemock.NewMockIdentityStore()
	handler := newFacesTestHandler(extractor, st)

	reference, err := json.Marshal(testEmbedding(0))
	if err != nil {
		t.Fatalf("marshaling reference: %v", err)
	}

	req := uploadRequest(t, "/api/faces/compare", "face", []byte("live-capture"),
		map[string]string{"embedding": string(reference)})

	recorder := httptest.NewRecorder()
	handler.Compare(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)

	var response verifyResponse
	parseJSONResponse(t, recorder, &response)

	if !response.Matched {
		t.Error("expected matched=true for identical embeddings")
	}
	if len(st.PutCalls) != 0 {
		t.Errorf("expected compare to be stateless, got %d put calls", len(st.PutCalls))
	}
}

func TestFacesHandler_Compare_HistoricalFieldName(t *testing.T) {
	extractor := embeddingmock.NewMockExtractor(testExtractResult(0))
	handler := newFacesTestHandler(extractor, storemock.NewMockIdentityStore())

	reference, err := json.Marshal(testEmbedding(0))
	if err != nil {
		t.Fatalf("marshaling reference: %v", err)
	}

	req := uploadRequest(t, "/api/faces/compare", "face", []byte("live-capture"),
		map[string]string{"stored_embedding": string(reference)})

	recorder := httptest.NewRecorder()
	handler.Compare(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)
}

func TestFacesHandler_Compare_MissingEmbedding(t *testing.T) {
	extractor := embeddingmock.NewMockExtractor(testExtractResult(0))
	handler := newFacesTestHandler(extractor, storemock.NewMockIdentityStore())

	req := uploadRequest(t, "/api/faces/compare", "face", []byte("live-capture"), nil)

	recorder := httptest.NewRecorder()
	handler.Compare(recorder, req)

	assertStatusCode(t, recorder, http.StatusBadRequest)
	assertErrorCode(t, recorder, service.CodeInvalidRequest)
}

func TestFacesHandler_Compare_MalformedEmbedding(t *testing.T) {
	extractor := embeddingmock.NewMockExtractor(testExtractResult(0))
	handler := newFacesTestHandler(extractor, storemock.NewMockIdentityStore())

	req := uploadRequest(t, "/api/faces/compare", "face", []byte("live-capture"),
		map[string]string{"embedding": "not-json"})

	recorder := httptest.NewRecorder()
	handler.Compare(recorder, req)

	assertStatusCode(t, recorder, http.StatusBadRequest)
	assertErrorCode(t, recorder, service.CodeInvalidRequest)
}

func TestFacesHandler_Identify(t *testing.T) {
	extractor := embeddingmock.NewMockExtractor(nil)
	imageA := []byte("photo-a")
	imageB := []byte("photo-b")
	extractor.SetResultFor(imageA, testExtractResult(0))
	extractor.SetResultFor(imageB, testExtractResult(1))

	probeImage := []byte("gate-capture")
	probe := testEmbedding(1)
	probe[0] = 0.3
	extractor.SetResultFor(probeImage, &embedding.Result{
		Embedding: probe,
		Dim:       testDim,
		Model:     "sface",
		DetScore:  0.9,
		FaceCount: 1,
	})

	st := storemock.NewMockIdentityStore()
	idx := store.NewIndex()
	svc := newTestService(extractor, st, idx)
	handler := NewFacesHandler(svc, testMaxUpload, logger.New(io.Discard, "error"))

	for _, e := range []struct {
		id    string
		image []byte
	}{
		{"emp-a", imageA},
		{"emp-b", imageB},
	} {
		if _, err := svc.Enroll(context.Background(), e.id, "", e.image); err != nil {
			t.Fatalf("enrolling %s: %v", e.id, err)
		}
	}

	req := uploadRequest(t, "/api/faces/identify", "face", probeImage,
		map[string]string{"k": "5"})

	recorder := httptest.NewRecorder()
	handler.Identify(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)

	var response identifyResponse
	parseJSONResponse(t, recorder, &response)

	if len(response.Candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(response.Candidates))
	}
	if response.Candidates[0].EmployeeID != "emp-b" {
		t.Errorf("expected emp-b first, got %q", response.Candidates[0].EmployeeID)
	}
}

func TestFacesHandler_Identify_InvalidK(t *testing.T) {
	extractor := embeddingmock.NewMockExtractor(testExtractResult(0))
	st := storemock.NewMockIdentityStore()
	idx := store.NewIndex()
	svc := newTestService(extractor, st, idx)
	handler := NewFacesHandler(svc, testMaxUpload, logger.New(io.Discard, "error"))

	req := uploadRequest(t, "/api/faces/identify", "face", []byte("gate-capture"),
		map[string]string{"k": "banana"})

	recorder := httptest.NewRecorder()
	handler.Identify(recorder, req)

	assertStatusCode(t, recorder, http.StatusBadRequest)
	assertErrorCode(t, recorder, service.CodeInvalidRequest)
}

func TestFacesHandler_Identify_EmptyResult(t *testing.T) {
	extractor := embeddingmock.NewMockExtractor(testExtractResult(0))
	st := storemock.NewMockIdentityStore()
	idx := store.NewIndex()
	svc := newTestService(extractor, st, idx)
	handler := NewFacesHandler(svc, testMaxUpload, logger.New(io.Discard, "error"))

	req := uploadRequest(t, "/api/faces/identify", "face", []byte("gate-capture"), nil)

	recorder := httptest.NewRecorder()
	handler.Identify(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)

	// The candidates key must be an empty array, not null.
	var raw map[string]json.RawMessage
	parseJSONResponse(t, recorder, &raw)
	if string(raw["candidates"]) != "[]" {
		t.Errorf("expected candidates to be [], got %s", raw["candidates"])
	}
}
