package httpapi_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"iter"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmora/runctl"
	"github.com/dmora/runctl/engine/cli"
	"github.com/dmora/runctl/engine/cli/codex"
	"github.com/dmora/runctl/index"
	"github.com/dmora/runctl/internal/httpapi"
	"github.com/dmora/runctl/workspace"
)

type fakeSource struct {
	records []index.Record
	err     error
}

func (f *fakeSource) Snapshot(context.Context) (*index.Snapshot, error) {
	if f.err != nil {
		return nil, f.err
	}
	return index.Build(f.records), nil
}

func (f *fakeSource) Events(r io.Reader, family runctl.Family) (iter.Seq2[runctl.Event, error], error) {
	if family != runctl.FamilyThreaded {
		return nil, runctl.ErrUnavailable
	}
	return cli.Stream(r, codex.New(), 0), nil
}

const (
	runA = "20260101T000000.000000000Z-1-aaaaaaaa"
	runB = "20260101T000001.000000000Z-1-bbbbbbbb"
)

func fixture(t *testing.T) *fakeSource {
	t.Helper()
	layout := workspace.Layout{Root: t.TempDir()}
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	rec := func(id string, status runctl.Status, session string, at time.Duration) index.Record {
		return index.Record{
			RunID:     id,
			Timestamp: base.Add(at),
			Status:    status,
			Model:     "gpt-5",
			Family:    runctl.FamilyThreaded,
			Session:   session,
			RunDir:    layout.Run(id).Path,
			Turn:      1,
			StartedAt: base,
		}
	}
	done := rec(runA, runctl.StatusCompleted, "s1", 2*time.Second)
	done.Answer = "hello back"

	rdA, err := layout.CreateRun(runA)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(rdA.Output(), []byte(
		`{"type":"thread.started","thread_id":"t-1"}`+"\n"+
			"garbage\n"+
			`{"type":"item.completed","item":{"id":"i1","type":"agent_message","text":"hello back"}}`+"\n"+
			`{"type":"turn.completed"}`+"\n"), 0o644))
	require.NoError(t, os.WriteFile(rdA.Report(), []byte("# Report\n\nAll good.\n"), 0o644))
	_, err = layout.CreateRun(runB)
	require.NoError(t, err)

	return &fakeSource{records: []index.Record{
		rec(runA, runctl.StatusRunning, "s1", 0),
		done,
		rec(runB, runctl.StatusRunning, "s2", time.Second),
		rec(runB, runctl.StatusFailed, "s2", 3*time.Second),
	}}
}

func get(t *testing.T, src httpapi.Source, target string) *httptest.ResponseRecorder {
	t.Helper()
	e := httpapi.NewServer(src, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	rec := get(t, &fakeSource{}, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestListRuns(t *testing.T) {
	src := fixture(t)

	rec := get(t, src, "/runs")
	require.Equal(t, http.StatusOK, rec.Code)
	all := decode[[]index.Summary](t, rec)
	require.Len(t, all, 2)
	assert.Equal(t, runA, all[0].RunID)
	assert.Equal(t, "hello back", all[0].Answer)

	failed := decode[[]index.Summary](t, get(t, src, "/runs?failed=true"))
	require.Len(t, failed, 1)
	assert.Equal(t, runB, failed[0].RunID)

	s1 := decode[[]index.Summary](t, get(t, src, "/runs?session=s1"))
	require.Len(t, s1, 1)
	assert.Equal(t, runA, s1[0].RunID)

	none := get(t, src, "/runs?session=nope")
	assert.Equal(t, http.StatusOK, none.Code)
	assert.JSONEq(t, `[]`, none.Body.String())

	assert.Equal(t, http.StatusBadRequest, get(t, src, "/runs?failed=maybe").Code)

	threaded := decode[[]index.Summary](t, get(t, src, "/runs?family=threaded-resumable"))
	assert.Len(t, threaded, 2)
	assert.JSONEq(t, `[]`, get(t, src, "/runs?family=session-conversational").Body.String())
	assert.Equal(t, http.StatusBadRequest, get(t, src, "/runs?family=threaded").Code)
}

func TestShowRun(t *testing.T) {
	src := fixture(t)

	rec := get(t, src, "/runs/@latest")
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decode[httpapi.RunDetail](t, rec)
	assert.Equal(t, runB, detail.RunID)
	assert.Equal(t, runctl.StatusFailed, detail.Status)
	assert.Len(t, detail.Records, 2)

	detail = decode[httpapi.RunDetail](t, get(t, src, "/runs/"+runA[:20]))
	assert.Equal(t, runA, detail.RunID)
	require.Len(t, detail.Artifacts, 4)
	byName := map[string]workspace.Artifact{}
	for _, a := range detail.Artifacts {
		byName[a.Name] = a
	}
	assert.True(t, byName[workspace.OutputFile].Exists)
	assert.True(t, byName[workspace.ReportFile].Exists)
	assert.False(t, byName[workspace.InputFile].Exists)

	assert.Equal(t, http.StatusNotFound, get(t, src, "/runs/unknown").Code)
	assert.Equal(t, http.StatusNotFound, get(t, src, "/runs/2026").Code, "ambiguous prefix")
}

func TestRunOutput(t *testing.T) {
	src := fixture(t)

	rec := get(t, src, "/runs/"+runA+"/output")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[httpapi.OutputBody](t, rec)
	assert.Equal(t, runA, body.RunID)
	assert.Equal(t, 1, body.ParseErrors)
	require.NotEmpty(t, body.Events)
	assert.Equal(t, runctl.EventInit, body.Events[0].Type)

	body = decode[httpapi.OutputBody](t, get(t, src, "/runs/"+runA+"/output?type=text"))
	require.Len(t, body.Events, 1)
	assert.Equal(t, "hello back", body.Events[0].Content)

	assert.Equal(t, http.StatusBadRequest, get(t, src, "/runs/"+runA+"/output?type=bogus").Code)
	assert.Equal(t, http.StatusNotFound, get(t, src, "/runs/"+runB+"/output").Code)
}

func TestRunReport(t *testing.T) {
	src := fixture(t)

	rec := get(t, src, "/runs/"+runA+"/report")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/markdown")
	assert.Equal(t, "# Report\n\nAll good.\n", rec.Body.String())

	assert.Equal(t, http.StatusNotFound, get(t, src, "/runs/"+runB+"/report").Code)
}

func TestRunReport_RetryUsesSourceReport(t *testing.T) {
	src := fixture(t)
	const runC = "20260101T000005.000000000Z-1-cccccccc"
	retry := src.records[1]
	retry.RunID = runC
	retry.RunDir = filepath.Join(filepath.Dir(retry.RunDir), runC)
	retry.Retries = runA
	src.records = append(src.records, retry)

	rec := get(t, src, "/runs/"+runC+"/report")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "# Report\n\nAll good.\n", rec.Body.String())

	detail := decode[httpapi.RunDetail](t, get(t, src, "/runs/"+runC))
	assert.Equal(t, filepath.Join(filepath.Dir(retry.RunDir), runA, workspace.ReportFile), detail.ReportPath)
}

func TestStats(t *testing.T) {
	src := fixture(t)

	var body struct {
		Sessions []index.SessionStats `json:"sessions"`
	}
	rec := get(t, src, "/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Sessions, 2)
	assert.Equal(t, "s1", body.Sessions[0].Session)
	assert.Equal(t, 1, body.Sessions[0].ByStatus[runctl.StatusCompleted])

	rec = get(t, src, "/stats?session=s2")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Sessions, 1)
	assert.Equal(t, 1, body.Sessions[0].ByStatus[runctl.StatusFailed])
}

func TestIndexFailure(t *testing.T) {
	src := &fakeSource{err: errors.New("disk gone")}
	assert.Equal(t, http.StatusInternalServerError, get(t, src, "/runs").Code)
	assert.Equal(t, http.StatusInternalServerError, get(t, src, "/runs/@latest").Code)
}

func TestReadOnly(t *testing.T) {
	src := fixture(t)
	e := httpapi.NewServer(src, nil)
	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodDelete} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(method, "/runs", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, method)
	}
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- httpapi.Serve(ctx, httpapi.NewServer(&fakeSource{}, nil), ln) }()

	url := "http://" + ln.Addr().String() + "/health"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

