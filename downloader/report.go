package downloader

import (
	"sync"
	"time"

	"github.com/habforecast/eo-fetcher/common"
)

// TransferMode of an attempted transfer
type TransferMode string

const (
	TransferFull   TransferMode = "full"
	TransferResume TransferMode = "resume"
)

// Attempt is an entry of the transfer log
type Attempt struct {
	URL    string        `json:"url"`
	File   string        `json:"file"`
	Mode   TransferMode  `json:"mode"`
	Tries  int           `json:"tries"`
	Status common.Status `json:"status"`
	Error  string        `json:"error,omitempty"`
}

// Report of a batch. It is safe to read it while the batch is running.
type Report struct {
	mu        sync.Mutex
	runID     string
	dataset   common.Dataset
	policy    Policy
	started   time.Time
	finished  time.Time
	results   []common.Result
	attempted []Attempt
}

// ReportSnapshot is a copy of the report at a given time
type ReportSnapshot struct {
	RunID     string          `json:"run_id"`
	Dataset   common.Dataset  `json:"dataset"`
	Policy    Policy          `json:"policy"`
	Started   time.Time       `json:"started"`
	Finished  *time.Time      `json:"finished,omitempty"`
	Counts    map[string]int  `json:"counts"`
	Results   []common.Result `json:"results"`
	Attempted []Attempt       `json:"attempted"`
}

func newReport(runID string, dataset common.Dataset, policy Policy) *Report {
	return &Report{runID: runID, dataset: dataset, policy: policy, started: time.Now()}
}

func (r *Report) add(res common.Result, attempt *Attempt) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
	if attempt != nil {
		r.attempted = append(r.attempted, *attempt)
	}
}

func (r *Report) finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = time.Now()
}

// RunID returns the identifier of the batch
func (r *Report) RunID() string {
	return r.runID
}

// Attempted returns the transfer log
func (r *Report) Attempted() []Attempt {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Attempt(nil), r.attempted...)
}

// Results returns the outcome of every processed target
func (r *Report) Results() []common.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]common.Result(nil), r.results...)
}

// Count returns the number of targets with the given status
func (r *Report) Count(status common.Status) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, res := range r.results {
		if res.Status == status {
			n++
		}
	}
	return n
}

// Snapshot returns a copy of the report
func (r *Report) Snapshot() ReportSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := ReportSnapshot{
		RunID:     r.runID,
		Dataset:   r.dataset,
		Policy:    r.policy,
		Started:   r.started,
		Counts:    map[string]int{},
		Results:   append([]common.Result{}, r.results...),
		Attempted: append([]Attempt{}, r.attempted...),
	}
	if !r.finished.IsZero() {
		finished := r.finished
		s.Finished = &finished
	}
	for _, res := range r.results {
		s.Counts[res.Status.String()]++
	}
	return s
}
