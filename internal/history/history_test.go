package history_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/raysh454/secscan/internal/history"
	"github.com/raysh454/secscan/internal/model"
	"github.com/raysh454/secscan/internal/testutil"
)

func openTestStore(t *testing.T) *history.Store {
	t.Helper()
	st, err := history.Open(filepath.Join(t.TempDir(), "history.db"), &testutil.DummyLogger{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func sampleResult(scanID string) model.RunResult {
	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	outcomes := []model.ScannerOutcome{
		{Scanner: model.Semgrep, ExitSucceeded: true, OutputArtifactExists: true, OutputArtifactPath: "/r/semgrep-" + scanID + ".json", StartedAt: started, Duration: 1500 * time.Millisecond},
		{Scanner: model.CodeQL, Language: "java", ExitSucceeded: false, ExitCode: 1, OutputArtifactExists: true,
			OutputArtifactPath: "/r/codeql-java-" + scanID + ".sarif", Reason: model.ReasonToolReportedFindings,
			Warnings: []string{"build (maven) failed"}, StartedAt: started},
		model.FailedOutcome(model.Trivy, "", model.ReasonRuntimeUnavailable, "docker not installed"),
	}
	r := model.NewRunResult(scanID, "/src/app", outcomes)
	r.StartedAt = started
	r.EndedAt = started.Add(time.Minute)
	return r
}

// ─── lifecycle ─────────────────────────────────────────────────────────

func TestStore_BeginFinishGet(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	err := st.Begin(ctx, history.Scan{ID: "s1", Target: "/src/app", ResultsDir: "/r", RetentionDays: 7})
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	got, err := st.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != history.StatusRunning || got.RetentionDays != 7 || !got.EndedAt.IsZero() {
		t.Errorf("running scan = %+v", got)
	}

	if err := st.Finish(ctx, sampleResult("s1"), "", "deadbeef", 12); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	got, err = st.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != string(model.RunCompleted) || got.ExitCode != 0 || !got.AnyArtifact || !got.AggregateExitFlag {
		t.Errorf("finished scan = %+v", got)
	}
	if got.SummaryBlob != "deadbeef" || got.TotalFindings != 12 || got.EndedAt.IsZero() {
		t.Errorf("finished scan = %+v", got)
	}
}

func TestStore_BeginRejectsDuplicateID(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	if ok, err := st.Exists(ctx, "dup"); err != nil || ok {
		t.Fatalf("Exists before Begin = %v, %v", ok, err)
	}
	if err := st.Begin(ctx, history.Scan{ID: "dup", Target: "/a", ResultsDir: "/r"}); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if ok, err := st.Exists(ctx, "dup"); err != nil || !ok {
		t.Fatalf("Exists after Begin = %v, %v", ok, err)
	}

	err := st.Begin(ctx, history.Scan{ID: "dup", Target: "/b", ResultsDir: "/r2"})
	if !errors.Is(err, history.ErrScanExists) {
		t.Fatalf("second Begin err = %v, want ErrScanExists", err)
	}
	got, err := st.Get(ctx, "dup")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Target != "/a" {
		t.Errorf("first record overwritten: %+v", got)
	}
}

func TestStore_OutcomesRoundTrip(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()
	_ = st.Begin(ctx, history.Scan{ID: "s2", Target: "/src/app", ResultsDir: "/r"})
	if err := st.Finish(ctx, sampleResult("s2"), "", "", 0); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	outs, err := st.Outcomes(ctx, "s2")
	if err != nil {
		t.Fatalf("Outcomes: %v", err)
	}
	if len(outs) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(outs))
	}
	if outs[0].Scanner != model.Semgrep || outs[0].Status() != model.StatusCompleted || outs[0].Duration != 1500*time.Millisecond {
		t.Errorf("semgrep = %+v", outs[0])
	}
	if outs[1].Name() != "codeql:java" || outs[1].Status() != model.StatusCompletedWithWarnings || len(outs[1].Warnings) != 1 {
		t.Errorf("codeql = %+v", outs[1])
	}
	if outs[2].Status() != model.StatusFailedNoOutput || outs[2].Reason != model.ReasonRuntimeUnavailable {
		t.Errorf("trivy = %+v", outs[2])
	}
}

func TestStore_FinishUnknownScan(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	err := st.Finish(context.Background(), sampleResult("ghost"), "", "", 0)
	if !errors.Is(err, history.ErrScanNotFound) {
		t.Fatalf("expected ErrScanNotFound, got %v", err)
	}
}

func TestStore_StatusOverride(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()
	_ = st.Begin(ctx, history.Scan{ID: "s3", Target: "/t", ResultsDir: "/r"})
	_ = st.Finish(ctx, sampleResult("s3"), history.StatusCanceled, "", 0)

	got, _ := st.Get(ctx, "s3")
	if got.Status != history.StatusCanceled {
		t.Errorf("status = %s", got.Status)
	}
}

// ─── listing and retention ─────────────────────────────────────────────

func TestStore_ListNewestFirst(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"old", "mid", "new"} {
		_ = st.Begin(ctx, history.Scan{ID: id, Target: "/t", ResultsDir: "/r", StartedAt: base.Add(time.Duration(i) * time.Hour)})
	}

	all, err := st.List(ctx, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 || all[0].ID != "new" || all[2].ID != "old" {
		t.Errorf("list = %+v", all)
	}
	two, _ := st.List(ctx, 2)
	if len(two) != 2 {
		t.Errorf("limit ignored: %d", len(two))
	}
}

func TestStore_ExpiredAndDelete(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	_ = st.Begin(ctx, history.Scan{ID: "stale", Target: "/t", ResultsDir: "/r", RetentionDays: 30, StartedAt: now.AddDate(0, 0, -31)})
	_ = st.Finish(ctx, sampleResult("stale"), "", "", 0)
	_ = st.Begin(ctx, history.Scan{ID: "fresh", Target: "/t", ResultsDir: "/r", RetentionDays: 30, StartedAt: now.AddDate(0, 0, -1)})
	_ = st.Finish(ctx, sampleResult("fresh"), "", "", 0)
	_ = st.Begin(ctx, history.Scan{ID: "running", Target: "/t", ResultsDir: "/r", RetentionDays: 1, StartedAt: now.AddDate(0, 0, -90)})
	_ = st.Begin(ctx, history.Scan{ID: "forever", Target: "/t", ResultsDir: "/r", RetentionDays: 0, StartedAt: now.AddDate(-5, 0, 0)})
	_ = st.Finish(ctx, sampleResult("forever"), "", "", 0)

	expired, err := st.Expired(ctx, now)
	if err != nil {
		t.Fatalf("Expired: %v", err)
	}
	if len(expired) != 1 || expired[0].ID != "stale" {
		t.Fatalf("expired = %+v", expired)
	}

	if err := st.Delete(ctx, "stale"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := st.Get(ctx, "stale"); !errors.Is(err, history.ErrScanNotFound) {
		t.Errorf("expected ErrScanNotFound after delete, got %v", err)
	}
	if outs, _ := st.Outcomes(ctx, "stale"); len(outs) != 0 {
		t.Errorf("outcomes left behind: %d", len(outs))
	}
	if err := st.Delete(ctx, "stale"); !errors.Is(err, history.ErrScanNotFound) {
		t.Errorf("second delete = %v", err)
	}
}

func TestScan_ExpiresAt(t *testing.T) {
	t.Parallel()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if got := (history.Scan{StartedAt: start, RetentionDays: 2}).ExpiresAt(); !got.Equal(start.Add(48 * time.Hour)) {
		t.Errorf("expires = %v", got)
	}
	if !(history.Scan{StartedAt: start}).ExpiresAt().IsZero() {
		t.Error("zero retention should never expire")
	}
}
