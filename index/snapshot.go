package index

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/dmora/runctl"
	"github.com/dmora/runctl/workspace"
)

// Symbolic run references accepted by Snapshot.Resolve.
const (
	RefLatest       = "@latest"
	RefLast         = "@last"
	RefLatestFailed = "@latest-failed"
	RefFailed       = "@failed"
)

// Run is the reduction of every record sharing one run id.
type Run struct {
	ID string

	// Records holds the run's records in index order.
	Records []Record

	// Final is the latest terminal record. Zero when HasFinal is false.
	Final    Record
	HasFinal bool

	// Status is Final.Status, or StatusRunning when no turn has finished.
	Status runctl.Status

	// Pending is set when the last record is a running record: a turn is in
	// flight, or its engine died before finalizing it.
	Pending bool

	// Stale is set when Pending and the recording engine process is known
	// to be gone.
	Stale bool
}

// First returns the run's first record.
func (r *Run) First() Record { return r.Records[0] }

// Last returns the run's last record.
func (r *Run) Last() Record { return r.Records[len(r.Records)-1] }

// Session is the session the run was launched in.
func (r *Run) Session() string { return r.First().Session }

// Handle returns the most recent correlation handle recorded for the run.
func (r *Run) Handle() string {
	for i := len(r.Records) - 1; i >= 0; i-- {
		if h := r.Records[i].Handle; h != "" {
			return h
		}
	}
	return ""
}

// Turns returns the highest turn recorded.
func (r *Run) Turns() int {
	n := 0
	for _, rec := range r.Records {
		n = max(n, rec.Turn)
	}
	return n
}

// Snapshot is a read-only reduction of the index at one point in time.
type Snapshot struct {
	// Records holds every decodable record in index order.
	Records []Record

	// Malformed counts entries that could not be decoded.
	Malformed int

	runs []*Run
	byID map[string]*Run
}

// Load scans l and reduces it. Malformed entries are counted and skipped.
// Running records left by a dead engine on this host are marked stale.
func Load(ctx context.Context, l Log) (*Snapshot, error) {
	var (
		records   []Record
		malformed int
	)
	for rec, err := range l.Scan(ctx) {
		if errors.Is(err, ErrMalformed) {
			malformed++
			continue
		}
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	s := Build(records)
	s.Malformed = malformed
	host, _ := os.Hostname()
	s.MarkStale(host, processAlive)
	return s, nil
}

// Build reduces records, given in index order.
func Build(records []Record) *Snapshot {
	s := &Snapshot{Records: records, byID: make(map[string]*Run)}
	for _, rec := range records {
		r, ok := s.byID[rec.RunID]
		if !ok {
			r = &Run{ID: rec.RunID}
			s.byID[rec.RunID] = r
			s.runs = append(s.runs, r)
		}
		r.Records = append(r.Records, rec)
		if rec.Terminal() {
			r.Final = rec
			r.HasFinal = true
		}
	}
	for _, r := range s.runs {
		r.Pending = !r.Last().Terminal()
		r.Status = runctl.StatusRunning
		if r.HasFinal {
			r.Status = r.Final.Status
		}
	}
	sort.SliceStable(s.runs, func(i, j int) bool { return s.runs[i].ID < s.runs[j].ID })
	return s
}

// MarkStale flags pending runs whose last record was written on host by a
// process that alive reports gone. Records from other hosts are left alone.
func (s *Snapshot) MarkStale(host string, alive func(pid int) bool) {
	for _, r := range s.runs {
		last := r.Last()
		r.Stale = r.Pending && host != "" && last.Host == host && !alive(last.EnginePID)
	}
}

// Runs returns every run ordered by run id, which is start order.
func (s *Snapshot) Runs() []*Run {
	return append([]*Run(nil), s.runs...)
}

// Filter selects runs for List.
type Filter struct {
	// Session keeps runs launched in this session. Empty keeps all.
	Session string

	// Failed keeps runs whose status is failed or error.
	Failed bool

	// Family keeps runs launched on this backend family. Empty keeps all.
	Family runctl.Family
}

// List returns the runs matching f in start order.
func (s *Snapshot) List(f Filter) []*Run {
	var out []*Run
	for _, r := range s.runs {
		if f.Session != "" && r.Session() != f.Session {
			continue
		}
		if f.Family != "" && r.First().Family != f.Family {
			continue
		}
		if f.Failed && r.Status != runctl.StatusFailed && r.Status != runctl.StatusError {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Show returns the run with exactly this id.
func (s *Snapshot) Show(id string) (*Run, bool) {
	r, ok := s.byID[id]
	return r, ok
}

// ReportPath returns where r's report is written. A retry replays its
// source's input byte for byte, report directive included, so a retried run
// reports into the first run of its retry chain.
func (s *Snapshot) ReportPath(r *Run) string {
	seen := map[string]bool{r.ID: true}
	for {
		src, ok := s.byID[r.First().Retries]
		if !ok || seen[src.ID] {
			break
		}
		seen[src.ID] = true
		r = src
	}
	return workspace.RunDir{Path: r.First().RunDir}.Report()
}

// Resolve maps a run reference to a run. Accepted forms: @latest (@last),
// @latest-failed (@failed), an exact run id, or a unique run id prefix.
//
// @latest picks the run of the terminal record with the highest timestamp;
// @latest-failed considers only failed terminal records. Ties go to the
// lexically greater run id.
func (s *Snapshot) Resolve(ref string) (*Run, error) {
	switch ref {
	case "":
		return nil, fmt.Errorf("%w: empty run reference", runctl.ErrUsage)
	case RefLatest, RefLast:
		return s.latest(ref, func(Record) bool { return true })
	case RefLatestFailed, RefFailed:
		return s.latest(ref, func(rec Record) bool { return rec.Status == runctl.StatusFailed })
	}
	if r, ok := s.byID[ref]; ok {
		return r, nil
	}
	var matches []*Run
	for _, r := range s.runs {
		if strings.HasPrefix(r.ID, ref) {
			matches = append(matches, r)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return nil, fmt.Errorf("%w: run %q: accepted: %s, %s, a run id or unique prefix",
			runctl.ErrNotFound, ref, RefLatest, RefLatestFailed)
	default:
		return nil, fmt.Errorf("%w: run prefix %q is ambiguous (%d matches)",
			runctl.ErrNotFound, ref, len(matches))
	}
}

func (s *Snapshot) latest(ref string, keep func(Record) bool) (*Run, error) {
	var best *Record
	for i := range s.Records {
		rec := &s.Records[i]
		if !rec.Terminal() || !keep(*rec) {
			continue
		}
		if best == nil || rec.Timestamp.After(best.Timestamp) ||
			(rec.Timestamp.Equal(best.Timestamp) && rec.RunID > best.RunID) {
			best = rec
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w: %s: no matching finalized run", runctl.ErrNotFound, ref)
	}
	return s.byID[best.RunID], nil
}

// SessionStats aggregates the runs of one session.
type SessionStats struct {
	Session string `json:"session"`
	Runs    int    `json:"runs"`

	// ByStatus counts runs by their current status.
	ByStatus map[runctl.Status]int `json:"by_status"`

	// ByFamily counts runs by backend family.
	ByFamily map[runctl.Family]int `json:"by_family"`

	// Dangling counts runs whose last record is a running record; Stale
	// counts the subset known to be abandoned.
	Dangling int `json:"dangling"`
	Stale    int `json:"stale"`

	// Finalized counts terminal records; durations cover those records.
	Finalized     int           `json:"finalized"`
	TotalDuration time.Duration `json:"total_duration_ns"`
	MeanDuration  time.Duration `json:"mean_duration_ns"`
}

// Stats aggregates runs per session, sorted by session name. A non-empty
// session restricts the result to that session, returned even when it has
// no runs.
func (s *Snapshot) Stats(session string) []SessionStats {
	bySession := make(map[string]*SessionStats)
	get := func(name string) *SessionStats {
		st, ok := bySession[name]
		if !ok {
			st = &SessionStats{
				Session:  name,
				ByStatus: make(map[runctl.Status]int),
				ByFamily: make(map[runctl.Family]int),
			}
			bySession[name] = st
		}
		return st
	}
	if session != "" {
		get(session)
	}

	for _, r := range s.runs {
		name := r.Session()
		if session != "" && name != session {
			continue
		}
		st := get(name)
		st.Runs++
		st.ByStatus[r.Status]++
		st.ByFamily[r.First().Family]++
		if r.Pending {
			st.Dangling++
		}
		if r.Stale {
			st.Stale++
		}
		for _, rec := range r.Records {
			if rec.Terminal() {
				st.Finalized++
				st.TotalDuration += rec.Duration()
			}
		}
	}

	out := make([]SessionStats, 0, len(bySession))
	for _, st := range bySession {
		if st.Finalized > 0 {
			st.MeanDuration = st.TotalDuration / time.Duration(st.Finalized)
		}
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Session < out[j].Session })
	return out
}
