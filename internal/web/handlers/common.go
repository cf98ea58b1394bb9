// Package handlers implements the HTTP endpoints of the face service.
// Handlers translate the wire protocol (multipart uploads, JSON envelopes,
// status codes) and delegate every decision to the service layer.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/kozaktomas/facegate/internal/service"
)

// HTTP-layer error codes for conditions that never reach the service.
const (
	codePayloadTooLarge = "payload_too_large"
)

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// respondError sends the error envelope: a stable machine code plus a
// human-readable message.
func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Success: false, Error: code, Message: message})
}

// statusForCode maps service error codes to HTTP status codes.
func statusForCode(code string) int {
	switch code {
	case service.CodeImageDecode,
		service.CodeNoFaceDetected,
		service.CodeAmbiguousFaces,
		service.CodeLowQuality,
		service.CodeInvalidRequest:
		return http.StatusBadRequest
	case service.CodeNotEnrolled, service.CodeNotFound:
		return http.StatusNotFound
	case service.CodeTimeout:
		return http.StatusGatewayTimeout
	case service.CodeUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondServiceError translates a service error into the wire envelope.
func respondServiceError(w http.ResponseWriter, err error) {
	var svcErr *service.Error
	if errors.As(err, &svcErr) {
		respondError(w, statusForCode(svcErr.Code), svcErr.Code, svcErr.Message)
		return
	}
	respondError(w, http.StatusInternalServerError, service.CodeInternal, "internal error")
}

// readFaceUpload extracts the uploaded image from a multipart request. The
// canonical file field is "face"; any other single file part is accepted as
// a fallback. Writes the error response itself and returns ok=false when the
// request cannot be used.
func readFaceUpload(w http.ResponseWriter, r *http.Request, maxBytes int64) ([]byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	if err := r.ParseMultipartForm(maxBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respondError(w, http.StatusRequestEntityTooLarge, codePayloadTooLarge,
				"uploaded image exceeds the size limit")
			return nil, false
		}
		respondError(w, http.StatusBadRequest, service.CodeInvalidRequest,
			"expected a multipart upload with an image file")
		return nil, false
	}

	fileHeader := pickFile(r.MultipartForm, "face", "image")
	if fileHeader == nil {
		respondError(w, http.StatusBadRequest, service.CodeInvalidRequest,
			"no image file provided")
		return nil, false
	}

	file, err := fileHeader.Open()
	if err != nil {
		respondError(w, http.StatusBadRequest, service.CodeInvalidRequest,
			"cannot read uploaded file")
		return nil, false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, service.CodeInvalidRequest,
			"cannot read uploaded file")
		return nil, false
	}
	return data, true
}

// pickFile returns the first file under one of the preferred field names,
// falling back to any file part in the form.
func pickFile(form *multipart.Form, preferred ...string) *multipart.FileHeader {
	for _, field := range preferred {
		if files := form.File[field]; len(files) > 0 {
			return files[0]
		}
	}
	for _, files := range form.File {
		if len(files) > 0 {
			return files[0]
		}
	}
	return nil
}
