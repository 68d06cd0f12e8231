package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/brightpearl/brightpearl/internal/model"
)

// TestWriteErrorResponse_WritesUnifiedFormat は統一エラーフォーマットでレスポンスが書き込まれることを検証する。
func TestWriteErrorResponse_WritesUnifiedFormat(t *testing.T) {
	w := httptest.NewRecorder()

	WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError("Invalid platform"))

	resp := w.Result()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want %q", ct, "application/json")
	}

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	if body["success"] != false {
		t.Errorf("success = %v, want false", body["success"])
	}
	if body["error"] != "Invalid platform" {
		t.Errorf("error = %v", body["error"])
	}
	if body["code"] != model.ErrCodeValidation {
		t.Errorf("code = %v", body["code"])
	}
	ts, _ := body["timestamp"].(string)
	if _, err := time.Parse(time.RFC3339, ts); err != nil {
		t.Errorf("timestamp %q is not RFC 3339: %v", ts, err)
	}
	if _, ok := body["retryAfter"]; ok {
		t.Error("retryAfter should be omitted for non rate-limit errors")
	}
	if _, ok := body["current_status"]; ok {
		t.Error("current_status should be omitted for non conflict errors")
	}
}

func TestWriteErrorResponse_RateLimitSetsRetryAfter(t *testing.T) {
	w := httptest.NewRecorder()

	WriteErrorResponse(w, http.StatusTooManyRequests, model.NewRateLimitError(120))

	resp := w.Result()
	if got := resp.Header.Get("Retry-After"); got != "120" {
		t.Errorf("Retry-After = %q, want %q", got, "120")
	}
	var body ErrorResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	if body.RetryAfter != 120 {
		t.Errorf("retryAfter = %d, want 120", body.RetryAfter)
	}
}

func TestWriteErrorResponse_ConflictIncludesCurrentStatus(t *testing.T) {
	w := httptest.NewRecorder()

	WriteErrorResponse(w, http.StatusBadRequest, model.NewConflictError(model.StatusApproved))

	var body ErrorResponseBody
	if err := json.NewDecoder(w.Result().Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	if body.CurrentStatus != "approved" {
		t.Errorf("current_status = %q, want approved", body.CurrentStatus)
	}
}

func TestWriteInternalServerError_IsGeneric(t *testing.T) {
	w := httptest.NewRecorder()

	WriteInternalServerError(w)

	var body ErrorResponseBody
	if err := json.NewDecoder(w.Result().Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d", w.Code)
	}
	if body.Error != model.InternalErrorMessage || body.Code != model.ErrCodeInternal {
		t.Errorf("body = %+v", body)
	}
}
