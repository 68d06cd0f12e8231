package moderation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/brightpearl/brightpearl/internal/model"
	"github.com/brightpearl/brightpearl/internal/security"
)

// --- モック ---

type mockReportRepo struct {
	findByIDFn       func(ctx context.Context, id int64) (*model.Report, error)
	updateStatusFn   func(ctx context.Context, id int64, status model.ReportStatus, now time.Time) (*model.Report, error)
	updateActivityFn func(ctx context.Context, id int64, status model.ActivityStatus, now time.Time) (*model.Report, model.ActivityStatus, error)
	listByStatusFn   func(ctx context.Context, status model.ReportStatus, limit, offset int) ([]*model.Report, int, error)
	statsFn          func(ctx context.Context, since time.Time) (*model.ModerationStats, error)
}

func (m *mockReportRepo) IncrementByNormalizedLink(ctx context.Context, normalized string, now time.Time) (*model.Report, error) {
	return nil, nil
}
func (m *mockReportRepo) Create(ctx context.Context, r *model.Report) error {
	return nil
}
func (m *mockReportRepo) FindByID(ctx context.Context, id int64) (*model.Report, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}
func (m *mockReportRepo) UpdateStatusIfPending(ctx context.Context, id int64, status model.ReportStatus, now time.Time) (*model.Report, error) {
	if m.updateStatusFn != nil {
		return m.updateStatusFn(ctx, id, status, now)
	}
	return nil, nil
}
func (m *mockReportRepo) UpdateActivityStatus(ctx context.Context, id int64, status model.ActivityStatus, now time.Time) (*model.Report, model.ActivityStatus, error) {
	if m.updateActivityFn != nil {
		return m.updateActivityFn(ctx, id, status, now)
	}
	return nil, "", nil
}
func (m *mockReportRepo) ListApproved(ctx context.Context, f model.PublicFilter, limit, offset int) ([]*model.Report, int, error) {
	return nil, 0, nil
}
func (m *mockReportRepo) ListByStatus(ctx context.Context, status model.ReportStatus, limit, offset int) ([]*model.Report, int, error) {
	if m.listByStatusFn != nil {
		return m.listByStatusFn(ctx, status, limit, offset)
	}
	return nil, 0, nil
}
func (m *mockReportRepo) Stats(ctx context.Context, since time.Time) (*model.ModerationStats, error) {
	if m.statsFn != nil {
		return m.statsFn(ctx, since)
	}
	return &model.ModerationStats{}, nil
}

type mockActionRepo struct {
	created  []*model.ModeratorActionLog
	createFn func(ctx context.Context, a *model.ModeratorActionLog) error
}

func (m *mockActionRepo) Create(ctx context.Context, a *model.ModeratorActionLog) error {
	if m.createFn != nil {
		return m.createFn(ctx, a)
	}
	m.created = append(m.created, a)
	return nil
}

type mockInvalidator struct {
	clears int
}

func (m *mockInvalidator) Clear() { m.clears++ }

type mockMetrics struct {
	actions       []string
	auditFailures int
}

func (m *mockMetrics) RecordSubmission(bool)                                {}
func (m *mockMetrics) RecordRateLimited(string)                             {}
func (m *mockMetrics) RecordModerationAction(action string)                 { m.actions = append(m.actions, action) }
func (m *mockMetrics) RecordAuditLogFailure()                               { m.auditFailures++ }
func (m *mockMetrics) RecordHTTPRequest(string, string, int, time.Duration) {}

// --- ヘルパー ---

var testModerator = model.Moderator{ID: "mod-1", Email: "mod@example.com", IsModerator: true}

type testDeps struct {
	reports     *mockReportRepo
	actions     *mockActionRepo
	invalidator *mockInvalidator
	metrics     *mockMetrics
	logs        *bytes.Buffer
	captured    []error
}

func newTestService(t *testing.T) (*Service, *testDeps) {
	t.Helper()
	deps := &testDeps{
		reports:     &mockReportRepo{},
		actions:     &mockActionRepo{},
		invalidator: &mockInvalidator{},
		metrics:     &mockMetrics{},
		logs:        &bytes.Buffer{},
	}
	log := slog.New(slog.NewJSONHandler(deps.logs, nil))
	svc := NewService(deps.reports, deps.actions, security.NewDescriptionSanitizer(), deps.invalidator, deps.metrics, log, time.Second)
	svc.captureError = func(err error) { deps.captured = append(deps.captured, err) }
	svc.now = func() time.Time { return time.Date(2026, 3, 10, 15, 30, 0, 0, time.UTC) }
	return svc, deps
}

func logEntries(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var entries []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("invalid JSON log line %q: %v", line, err)
		}
		entries = append(entries, entry)
	}
	return entries
}

func apiErrorCode(t *testing.T, err error) *model.APIError {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError, got %T: %v", err, err)
	}
	return apiErr
}

// --- ApplyModeration ---

func TestApplyModeration_ApprovesPending(t *testing.T) {
	svc, deps := newTestService(t)
	deps.reports.updateStatusFn = func(ctx context.Context, id int64, status model.ReportStatus, now time.Time) (*model.Report, error) {
		return &model.Report{ID: id, Status: status, UpdatedAt: now}, nil
	}

	got, err := svc.ApplyModeration(context.Background(), 7, model.StatusApproved, testModerator)
	if err != nil {
		t.Fatalf("ApplyModeration failed: %v", err)
	}
	if got.Status != model.StatusApproved {
		t.Errorf("Status = %q, want approved", got.Status)
	}

	if len(deps.actions.created) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(deps.actions.created))
	}
	entry := deps.actions.created[0]
	if entry.ReportID != 7 || entry.ModeratorID != "mod-1" || entry.Action != model.ActionApprove {
		t.Errorf("audit entry = %+v", entry)
	}
	if deps.invalidator.clears != 1 {
		t.Errorf("cache clears = %d, want 1", deps.invalidator.clears)
	}
	if len(deps.metrics.actions) != 1 || deps.metrics.actions[0] != "approve" {
		t.Errorf("metrics actions = %v", deps.metrics.actions)
	}
}

func TestApplyModeration_RejectRecordsRejectAction(t *testing.T) {
	svc, deps := newTestService(t)
	deps.reports.updateStatusFn = func(ctx context.Context, id int64, status model.ReportStatus, now time.Time) (*model.Report, error) {
		return &model.Report{ID: id, Status: status}, nil
	}

	if _, err := svc.ApplyModeration(context.Background(), 3, model.StatusRejected, testModerator); err != nil {
		t.Fatalf("ApplyModeration failed: %v", err)
	}
	if deps.actions.created[0].Action != model.ActionReject {
		t.Errorf("Action = %q, want reject", deps.actions.created[0].Action)
	}
}

func TestApplyModeration_InvalidDecision(t *testing.T) {
	for _, decision := range []model.ReportStatus{model.StatusPending, "deleted", ""} {
		t.Run(string(decision), func(t *testing.T) {
			svc, deps := newTestService(t)
			called := false
			deps.reports.updateStatusFn = func(context.Context, int64, model.ReportStatus, time.Time) (*model.Report, error) {
				called = true
				return nil, nil
			}

			_, err := svc.ApplyModeration(context.Background(), 1, decision, testModerator)
			if apiErr := apiErrorCode(t, err); apiErr.Code != model.ErrCodeValidation {
				t.Errorf("Code = %q, want %q", apiErr.Code, model.ErrCodeValidation)
			}
			if called {
				t.Error("store should not be touched for an invalid decision")
			}
		})
	}
}

func TestApplyModeration_AlreadyDecidedIsConflict(t *testing.T) {
	for _, current := range []model.ReportStatus{model.StatusApproved, model.StatusRejected} {
		t.Run(string(current), func(t *testing.T) {
			svc, deps := newTestService(t)
			deps.reports.findByIDFn = func(ctx context.Context, id int64) (*model.Report, error) {
				return &model.Report{ID: id, Status: current}, nil
			}

			_, err := svc.ApplyModeration(context.Background(), 5, model.StatusApproved, testModerator)
			apiErr := apiErrorCode(t, err)
			if apiErr.Code != model.ErrCodeConflict {
				t.Errorf("Code = %q, want %q", apiErr.Code, model.ErrCodeConflict)
			}
			if apiErr.CurrentStatus != string(current) {
				t.Errorf("CurrentStatus = %q, want %q", apiErr.CurrentStatus, current)
			}
			if !strings.Contains(apiErr.Message, string(current)) {
				t.Errorf("Message %q should name the current status", apiErr.Message)
			}
			if len(deps.actions.created) != 0 {
				t.Error("no audit entry should be written on conflict")
			}
		})
	}
}

func TestApplyModeration_UnknownReportIsNotFound(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.ApplyModeration(context.Background(), 999, model.StatusApproved, testModerator)
	if apiErr := apiErrorCode(t, err); apiErr.Code != model.ErrCodeNotFound {
		t.Errorf("Code = %q, want %q", apiErr.Code, model.ErrCodeNotFound)
	}
}

func TestApplyModeration_StoreErrorIsInternal(t *testing.T) {
	svc, deps := newTestService(t)
	deps.reports.updateStatusFn = func(context.Context, int64, model.ReportStatus, time.Time) (*model.Report, error) {
		return nil, errors.New("connection reset")
	}

	_, err := svc.ApplyModeration(context.Background(), 1, model.StatusApproved, testModerator)
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		t.Errorf("store failure should not be an APIError: %v", apiErr)
	}
}

func TestApplyModeration_AuditFailureStillSucceeds(t *testing.T) {
	svc, deps := newTestService(t)
	deps.reports.updateStatusFn = func(ctx context.Context, id int64, status model.ReportStatus, now time.Time) (*model.Report, error) {
		return &model.Report{ID: id, Status: status}, nil
	}
	attempts := 0
	deps.actions.createFn = func(context.Context, *model.ModeratorActionLog) error {
		attempts++
		return errors.New("insert failed")
	}

	got, err := svc.ApplyModeration(context.Background(), 8, model.StatusApproved, testModerator)
	if err != nil {
		t.Fatalf("audit failure must not fail the moderation: %v", err)
	}
	if got.Status != model.StatusApproved {
		t.Errorf("Status = %q", got.Status)
	}
	if attempts != 1 {
		t.Errorf("audit attempts = %d, want 1", attempts)
	}
	if deps.metrics.auditFailures != 1 {
		t.Errorf("auditFailures = %d, want 1", deps.metrics.auditFailures)
	}
	if len(deps.captured) != 1 {
		t.Errorf("captured errors = %d, want 1", len(deps.captured))
	}

	var found bool
	for _, e := range logEntries(t, deps.logs) {
		if e["msg"] == "audit_log_failed" {
			found = true
			if e["level"] != "ERROR" {
				t.Errorf("level = %v, want ERROR", e["level"])
			}
			if e["report_id"] != float64(8) {
				t.Errorf("report_id = %v, want 8", e["report_id"])
			}
		}
	}
	if !found {
		t.Error("audit_log_failed was not logged")
	}
}

func TestApplyModeration_AuditRunsAfterRequestCancel(t *testing.T) {
	svc, deps := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	deps.reports.updateStatusFn = func(_ context.Context, id int64, status model.ReportStatus, _ time.Time) (*model.Report, error) {
		cancel()
		return &model.Report{ID: id, Status: status}, nil
	}
	deps.actions.createFn = func(ctx context.Context, a *model.ModeratorActionLog) error {
		return ctx.Err()
	}

	if _, err := svc.ApplyModeration(ctx, 1, model.StatusRejected, testModerator); err != nil {
		t.Fatalf("ApplyModeration failed: %v", err)
	}
	if deps.metrics.auditFailures != 0 {
		t.Error("audit context should not inherit the request cancellation")
	}
}

// --- SetActivityStatus ---

func TestSetActivityStatus_ReturnsPrevious(t *testing.T) {
	svc, deps := newTestService(t)
	deps.reports.updateActivityFn = func(ctx context.Context, id int64, status model.ActivityStatus, now time.Time) (*model.Report, model.ActivityStatus, error) {
		return &model.Report{ID: id, Status: model.StatusRejected, ActivityStatus: status}, model.ActivityActive, nil
	}

	got, previous, err := svc.SetActivityStatus(context.Background(), 4, model.ActivityDeleted, testModerator)
	if err != nil {
		t.Fatalf("SetActivityStatus failed: %v", err)
	}
	if got.ActivityStatus != model.ActivityDeleted {
		t.Errorf("ActivityStatus = %q, want deleted", got.ActivityStatus)
	}
	if previous != model.ActivityActive {
		t.Errorf("previous = %q, want active", previous)
	}
	if len(deps.actions.created) != 1 || deps.actions.created[0].Action != model.ActionUpdateStatus {
		t.Errorf("audit entries = %+v", deps.actions.created)
	}
}

func TestSetActivityStatus_InvalidValue(t *testing.T) {
	svc, _ := newTestService(t)

	_, _, err := svc.SetActivityStatus(context.Background(), 4, "removed", testModerator)
	if apiErr := apiErrorCode(t, err); apiErr.Message != InvalidActivityMessage {
		t.Errorf("Message = %q", apiErr.Message)
	}
}

func TestSetActivityStatus_NotFound(t *testing.T) {
	svc, deps := newTestService(t)

	_, _, err := svc.SetActivityStatus(context.Background(), 404, model.ActivityActive, testModerator)
	if apiErr := apiErrorCode(t, err); apiErr.Code != model.ErrCodeNotFound {
		t.Errorf("Code = %q", apiErr.Code)
	}
	if len(deps.actions.created) != 0 {
		t.Error("no audit entry should be written for a missing report")
	}
}

// --- ListPending / Stats ---

func TestListPending_SanitizesDescription(t *testing.T) {
	svc, deps := newTestService(t)
	desc := `<script>alert(1)</script>hello <b>world</b>`
	deps.reports.listByStatusFn = func(ctx context.Context, status model.ReportStatus, limit, offset int) ([]*model.Report, int, error) {
		if status != model.StatusPending {
			t.Errorf("status = %q, want pending", status)
		}
		if limit != 10 || offset != 10 {
			t.Errorf("limit/offset = %d/%d, want 10/10", limit, offset)
		}
		return []*model.Report{{ID: 1, Description: &desc, SubmitterIPHash: "secret", ReportCount: 3}}, 11, nil
	}

	page, err := svc.ListPending(context.Background(), "2", "10")
	if err != nil {
		t.Fatalf("ListPending failed: %v", err)
	}
	if page.Total != 11 || page.TotalPages != 2 {
		t.Errorf("Total/TotalPages = %d/%d, want 11/2", page.Total, page.TotalPages)
	}
	if len(page.Items) != 1 {
		t.Fatalf("items = %d, want 1", len(page.Items))
	}
	got := page.Items[0].Description
	if got == nil || strings.Contains(*got, "<") {
		t.Errorf("Description not sanitized: %v", got)
	}
	if page.Items[0].ReportCount != 3 {
		t.Errorf("ReportCount = %d, want 3", page.Items[0].ReportCount)
	}
}

func TestListPending_InvalidPagination(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.ListPending(context.Background(), "0", "")
	if apiErr := apiErrorCode(t, err); apiErr.Code != model.ErrCodeValidation {
		t.Errorf("Code = %q", apiErr.Code)
	}
}

func TestStats_SinceUTCMidnight(t *testing.T) {
	svc, deps := newTestService(t)
	var gotSince time.Time
	deps.reports.statsFn = func(ctx context.Context, since time.Time) (*model.ModerationStats, error) {
		gotSince = since
		return &model.ModerationStats{Total: 9}, nil
	}

	stats, err := svc.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Total != 9 {
		t.Errorf("Total = %d", stats.Total)
	}
	want := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	if !gotSince.Equal(want) {
		t.Errorf("since = %v, want %v", gotSince, want)
	}
}

func TestApplyModeration_SanitizesReturnedDescription(t *testing.T) {
	svc, deps := newTestService(t)
	desc := `<img src=x onerror=alert(1)>look`
	deps.reports.updateStatusFn = func(ctx context.Context, id int64, status model.ReportStatus, now time.Time) (*model.Report, error) {
		return &model.Report{ID: id, Status: status, Description: &desc}, nil
	}

	got, err := svc.ApplyModeration(context.Background(), 2, model.StatusApproved, testModerator)
	if err != nil {
		t.Fatalf("ApplyModeration failed: %v", err)
	}
	if got.Description == nil || *got.Description != "look" {
		t.Errorf("Description = %v, want sanitized text", got.Description)
	}
}
