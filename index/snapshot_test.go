package index

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmora/runctl"
)

var t0 = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func at(sec int) time.Time { return t0.Add(time.Duration(sec) * time.Second) }

func withSession(r Record, session string) Record {
	r.Session = session
	return r
}

func finished(r Record, status runctl.Status, sec int) Record {
	return r.Finalize(status, at(sec))
}

// fixture: a completed, b failed, c errored, d dangling, a continued in place.
func fixture() []Record {
	a := withSession(rec("20260501T120000.000000000Z-1-aaaaaaaa", runctl.StatusRunning, at(0)), "s1")
	b := withSession(rec("20260501T120001.000000000Z-1-bbbbbbbb", runctl.StatusRunning, at(1)), "s1")
	c := withSession(rec("20260501T120002.000000000Z-2-cccccccc", runctl.StatusRunning, at(2)), "s2")
	c.Family = runctl.FamilySession
	d := withSession(rec("20260501T120003.000000000Z-3-dddddddd", runctl.StatusRunning, at(3)), "s2")

	aDone := finished(a, runctl.StatusCompleted, 10)
	aDone.Handle = "thread-base"

	a2 := a
	a2.Turn = 2
	a2.Timestamp = at(20)
	a2.StartedAt = at(20)
	a2.Continues = a.RunID
	a2.Mode = runctl.ModeInPlace
	a2Done := finished(a2, runctl.StatusCompleted, 25)

	return []Record{
		a, b, c, d,
		aDone,
		finished(b, runctl.StatusFailed, 12),
		finished(c, runctl.StatusError, 14),
		a2, a2Done,
	}
}

func TestBuild_GroupsByRun(t *testing.T) {
	s := Build(fixture())
	runs := s.Runs()
	require.Len(t, runs, 4)

	statuses := map[string]runctl.Status{}
	for _, r := range runs {
		statuses[r.ID[len(r.ID)-8:]] = r.Status
	}
	assert.Equal(t, map[string]runctl.Status{
		"aaaaaaaa": runctl.StatusCompleted,
		"bbbbbbbb": runctl.StatusFailed,
		"cccccccc": runctl.StatusError,
		"dddddddd": runctl.StatusRunning,
	}, statuses)

	a := runs[0]
	assert.Len(t, a.Records, 4)
	assert.Equal(t, 2, a.Turns())
	assert.Equal(t, "thread-base", a.Handle(), "handle carried across turns")
	assert.Equal(t, runctl.ModeInPlace, a.Final.Mode)
	assert.False(t, a.Pending)

	d := runs[3]
	assert.True(t, d.Pending)
	assert.False(t, d.HasFinal)
}

func TestSnapshot_PendingContinuationKeepsLastStatus(t *testing.T) {
	recs := fixture()
	recs = recs[:len(recs)-1] // turn 2 still running
	s := Build(recs)
	a, ok := s.Show(recs[0].RunID)
	require.True(t, ok)
	assert.Equal(t, runctl.StatusCompleted, a.Status)
	assert.True(t, a.Pending)
}

func TestSnapshot_List(t *testing.T) {
	s := Build(fixture())

	assert.Len(t, s.List(Filter{}), 4)

	failed := s.List(Filter{Failed: true})
	require.Len(t, failed, 2)
	assert.Equal(t, runctl.StatusFailed, failed[0].Status)
	assert.Equal(t, runctl.StatusError, failed[1].Status)

	s2 := s.List(Filter{Session: "s2"})
	require.Len(t, s2, 2)
	assert.Empty(t, s.List(Filter{Session: "nope"}))
	assert.Len(t, s.List(Filter{Session: "s2", Failed: true}), 1)

	sess := s.List(Filter{Family: runctl.FamilySession})
	require.Len(t, sess, 1)
	assert.Equal(t, "20260501T120002.000000000Z-2-cccccccc", sess[0].ID)
	assert.Len(t, s.List(Filter{Family: runctl.FamilyThreaded}), 3)
}

func TestSnapshot_ReportPathFollowsRetries(t *testing.T) {
	a := rec("20260501T120000.000000000Z-1-aaaaaaaa", runctl.StatusCompleted, at(0))
	a.RunDir = "/ws/runs/agent-runs/a"
	b := rec("20260501T120001.000000000Z-1-bbbbbbbb", runctl.StatusCompleted, at(1))
	b.RunDir = "/ws/runs/agent-runs/b"
	b.Retries = a.RunID
	c := rec("20260501T120002.000000000Z-1-cccccccc", runctl.StatusCompleted, at(2))
	c.RunDir = "/ws/runs/agent-runs/c"
	c.Retries = b.RunID
	orphan := rec("20260501T120003.000000000Z-1-dddddddd", runctl.StatusCompleted, at(3))
	orphan.RunDir = "/ws/runs/agent-runs/d"
	orphan.Retries = "gone"
	s := Build([]Record{a, b, c, orphan})

	for _, id := range []string{a.RunID, b.RunID, c.RunID} {
		run, ok := s.Show(id)
		require.True(t, ok)
		assert.Equal(t, "/ws/runs/agent-runs/a/report.md", s.ReportPath(run), id)
	}
	run, _ := s.Show(orphan.RunID)
	assert.Equal(t, "/ws/runs/agent-runs/d/report.md", s.ReportPath(run))
}

func TestSummary_StartedAtFallsBackToRunID(t *testing.T) {
	r := rec("20260501T120005.000000000Z-1-eeeeeeee", runctl.StatusRunning, at(5))
	r.StartedAt = time.Time{}
	s := Build([]Record{r})
	run, ok := s.Show(r.RunID)
	require.True(t, ok)
	assert.True(t, run.Summary().StartedAt.Equal(at(5)))
}

func TestSnapshot_Resolve(t *testing.T) {
	s := Build(fixture())

	tests := []struct {
		ref  string
		want string
	}{
		{RefLatest, "aaaaaaaa"},
		{RefLast, "aaaaaaaa"},
		{RefLatestFailed, "bbbbbbbb"},
		{RefFailed, "bbbbbbbb"},
		{"20260501T120002.000000000Z-2-cccccccc", "cccccccc"},
		{"20260501T120003", "dddddddd"},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			r, err := s.Resolve(tt.ref)
			require.NoError(t, err)
			assert.Equal(t, tt.want, r.ID[len(r.ID)-8:])
		})
	}

	for _, ref := range []string{"2026", "nope"} {
		_, err := s.Resolve(ref)
		require.ErrorIs(t, err, runctl.ErrNotFound, ref)
	}
	_, err := s.Resolve("")
	require.ErrorIs(t, err, runctl.ErrUsage)

	_, err = Build(nil).Resolve(RefLatest)
	require.ErrorIs(t, err, runctl.ErrNotFound)
	assert.Contains(t, err.Error(), RefLatest)
}

func TestSnapshot_ResolveIgnoresRunningRecords(t *testing.T) {
	recs := fixture()
	late := rec("20260501T130000.000000000Z-9-eeeeeeee", runctl.StatusRunning, at(3600))
	s := Build(append(recs, late))
	r, err := s.Resolve(RefLatest)
	require.NoError(t, err)
	assert.NotEqual(t, late.RunID, r.ID)
}

func TestSnapshot_ResolveTieBreaksByRunID(t *testing.T) {
	x := rec("20260501T120000.000000000Z-1-xxxxxxxx", runctl.StatusFailed, at(50))
	y := rec("20260501T120000.000000000Z-1-yyyyyyyy", runctl.StatusFailed, at(50))
	for _, order := range [][]Record{{x, y}, {y, x}} {
		s := Build(order)
		r, err := s.Resolve(RefLatestFailed)
		require.NoError(t, err)
		assert.Equal(t, y.RunID, r.ID)
	}
}

func TestSnapshot_Stats(t *testing.T) {
	s := Build(fixture())
	stats := s.Stats("")
	require.Len(t, stats, 2)

	s1 := stats[0]
	assert.Equal(t, "s1", s1.Session)
	assert.Equal(t, 2, s1.Runs)
	assert.Equal(t, 1, s1.ByStatus[runctl.StatusCompleted])
	assert.Equal(t, 1, s1.ByStatus[runctl.StatusFailed])
	assert.Equal(t, 2, s1.ByFamily[runctl.FamilyThreaded])
	assert.Equal(t, 3, s1.Finalized)
	assert.Equal(t, (10+5+11)*time.Second, s1.TotalDuration)
	assert.Equal(t, s1.TotalDuration/3, s1.MeanDuration)
	assert.Zero(t, s1.Dangling)

	s2 := stats[1]
	assert.Equal(t, 2, s2.Runs)
	assert.Equal(t, 1, s2.Dangling)
	assert.Equal(t, 1, s2.ByStatus[runctl.StatusRunning])
	assert.Equal(t, 1, s2.ByFamily[runctl.FamilySession])

	only := s.Stats("s2")
	require.Len(t, only, 1)
	assert.Equal(t, "s2", only[0].Session)

	empty := s.Stats("unknown")
	require.Len(t, empty, 1)
	assert.Zero(t, empty[0].Runs)
	assert.Zero(t, empty[0].MeanDuration)
}

func TestSnapshot_MarkStale(t *testing.T) {
	recs := fixture()
	for i := range recs {
		recs[i].Host = "h1"
		recs[i].EnginePID = 100
	}
	s := Build(recs)

	s.MarkStale("h1", func(int) bool { return false })
	for _, r := range s.Runs() {
		assert.Equal(t, r.Pending, r.Stale, r.ID)
	}
	assert.Equal(t, 1, s.Stats("s2")[0].Stale)

	s.MarkStale("h1", func(int) bool { return true })
	for _, r := range s.Runs() {
		assert.False(t, r.Stale)
	}

	s.MarkStale("other-host", func(int) bool { return false })
	for _, r := range s.Runs() {
		assert.False(t, r.Stale, "records from another host are never judged")
	}
}

func TestLoad_StaleDetection(t *testing.T) {
	host, err := os.Hostname()
	require.NoError(t, err)

	l, err := OpenFile(filepath.Join(t.TempDir(), "runs.jsonl"))
	require.NoError(t, err)
	defer l.Close()

	live := rec("live", runctl.StatusRunning, at(0))
	live.Host, live.EnginePID = host, os.Getpid()
	dead := rec("dead", runctl.StatusRunning, at(1))
	dead.Host, dead.EnginePID = host, 2147483646
	for _, r := range []Record{live, dead} {
		require.NoError(t, l.Append(context.Background(), r))
	}

	s, err := Load(context.Background(), l)
	require.NoError(t, err)
	lr, _ := s.Show("live")
	dr, _ := s.Show("dead")
	assert.False(t, lr.Stale)
	assert.True(t, dr.Stale)
	assert.True(t, lr.Pending && dr.Pending)
}
