package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/facegate/internal/embedding"
	embeddingmock "github.com/kozaktomas/facegate/internal/embedding/mock"
	"github.com/kozaktomas/facegate/internal/logger"
	"github.com/kozaktomas/facegate/internal/match"
	"github.com/kozaktomas/facegate/internal/service"
	"github.com/kozaktomas/facegate/internal/store"
	storemock "github.com/kozaktomas/facegate/internal/store/mock"
)

const (
	testDim       = 8
	testMaxUpload = 20 << 20
)

// testEmbedding returns a unit vector on one axis.
func testEmbedding(axis int) []float32 {
	v := make([]float32, testDim)
	v[axis] = 1
	return v
}

func testExtractResult(axis int) *embedding.Result {
	return &embedding.Result{
		Embedding: testEmbedding(axis),
		Dim:       testDim,
		Model:     "sface",
		DetScore:  0.97,
		FaceCount: 1,
	}
}

// newTestService wires a real service over the mock extractor and store.
func newTestService(extractor embedding.Extractor, st store.IdentityWriter, idx *store.Index) *service.Service {
	return service.New(service.Config{
		Extractor: extractor,
		Store:     st,
		Index:     idx,
		Logger:    logger.New(io.Discard, "error"),
		Metric:    match.Cosine,
		Threshold: 0.55,
	})
}

// newFacesTestHandler builds a FacesHandler with fresh mocks.
func newFacesTestHandler(extractor *embeddingmock.MockExtractor, st *storemock.MockIdentityStore) *FacesHandler {
	return NewFacesHandler(newTestService(extractor, st, nil), testMaxUpload, logger.New(io.Discard, "error"))
}

// uploadRequest builds a multipart request with an optional image file part
// plus extra form fields.
func uploadRequest(t *testing.T, path, fileField string, image []byte, fields map[string]string) *http.Request {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	if fileField != "" {
		part, err := mw.CreateFormFile(fileField, "face.jpg")
		if err != nil {
			t.Fatalf("creating form file: %v", err)
		}
		if _, err := part.Write(image); err != nil {
			t.Fatalf("writing form file: %v", err)
		}
	}
	for key, value := range fields {
		if err := mw.WriteField(key, value); err != nil {
			t.Fatalf("writing form field %s: %v", key, err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("closing multipart writer: %v", err)
	}

	req := httptest.NewRequest("POST", path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

// requestWithChiParams attaches chi URL parameters to a request.
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseJSONResponse parses a JSON response body into the target type.
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code.
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertContentType checks if the response has the expected content type.
func assertContentType(t *testing.T, recorder *httptest.ResponseRecorder, expected string) {
	t.Helper()
	ct := recorder.Header().Get("Content-Type")
	if ct != expected {
		t.Errorf("expected Content-Type '%s', got '%s'", expected, ct)
	}
}

// assertErrorCode checks the error envelope's machine code.
func assertErrorCode(t *testing.T, recorder *httptest.ResponseRecorder, expectedCode string) {
	t.Helper()

	var result errorResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result.Success {
		t.Error("expected success=false on an error response")
	}
	if result.Error != expectedCode {
		t.Errorf("expected error '%s', got '%s'", expectedCode, result.Error)
	}
	if result.Message == "" {
		t.Error("expected a human-readable message alongside the code")
	}
}
