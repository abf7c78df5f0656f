package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/newthinker/marketlens/internal/api/job"
	"github.com/newthinker/marketlens/internal/api/response"
	"github.com/newthinker/marketlens/internal/core"
)

// JobTypeConsensus labels consensus ranking jobs.
const JobTypeConsensus = "consensus"

// DefaultConsensusTimeout bounds one background ranking.
const DefaultConsensusTimeout = 5 * time.Minute

// Consensus ranks symbols by cross-provider agreement.
type Consensus interface {
	Consensus(ctx context.Context, symbols []string, limit int) ([]core.ConsensusStock, error)
}

// ConsensusRecorder receives consensus timings and job gauges.
type ConsensusRecorder interface {
	RecordConsensus(seconds float64)
	SetJobsActive(jobType string, n int)
}

// ConsensusHandler serves synchronous rankings and background ranking jobs.
type ConsensusHandler struct {
	consensus Consensus
	jobs      *job.Store
	recorder  ConsensusRecorder
	logger    *zap.Logger
	timeout   time.Duration
}

// NewConsensusHandler creates a new consensus handler. recorder may be nil.
func NewConsensusHandler(c Consensus, jobs *job.Store, recorder ConsensusRecorder, logger *zap.Logger) *ConsensusHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConsensusHandler{
		consensus: c,
		jobs:      jobs,
		recorder:  recorder,
		logger:    logger,
		timeout:   DefaultConsensusTimeout,
	}
}

// SetTimeout changes the deadline of background jobs.
func (h *ConsensusHandler) SetTimeout(d time.Duration) {
	if d > 0 {
		h.timeout = d
	}
}

// consensusParams reads limit and a comma separated symbols override.
func consensusParams(r *http.Request) ([]string, int) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))

	var symbols []string
	for _, s := range strings.Split(q.Get("symbols"), ",") {
		if s = strings.TrimSpace(s); s != "" {
			symbols = append(symbols, s)
		}
	}
	return symbols, limit
}

// Rank handles GET /api/v1/consensus.
func (h *ConsensusHandler) Rank(w http.ResponseWriter, r *http.Request) {
	symbols, limit := consensusParams(r)

	start := time.Now()
	stocks, err := h.consensus.Consensus(r.Context(), symbols, limit)
	if err != nil {
		response.Fail(w, err)
		return
	}
	h.observe(time.Since(start))

	response.JSON(w, http.StatusOK, map[string]any{
		"stocks": stocks,
		"count":  len(stocks),
	})
}

// Submit handles POST /api/v1/consensus/jobs. The ranking runs in the
// background; poll GET /api/v1/jobs/{id} for the result.
func (h *ConsensusHandler) Submit(w http.ResponseWriter, r *http.Request) {
	symbols, limit := consensusParams(r)

	j, err := h.jobs.Create(JobTypeConsensus)
	if err != nil {
		response.Fail(w, err)
		return
	}
	h.reportActive()

	go h.run(j.ID, symbols, limit)

	response.JSON(w, http.StatusAccepted, map[string]any{
		"job_id": j.ID,
		"status": j.Status,
	})
}

func (h *ConsensusHandler) run(id string, symbols []string, limit int) {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()
	defer h.reportActive()

	_ = h.jobs.Update(id, func(j *job.Job) {
		j.Status = job.StatusRunning
		j.Progress = 10
	})

	start := time.Now()
	stocks, err := h.consensus.Consensus(ctx, symbols, limit)
	if err != nil {
		h.logger.Warn("consensus job failed", zap.String("job_id", id), zap.Error(err))
		_ = h.jobs.Update(id, func(j *job.Job) {
			j.Status = job.StatusFailed
			j.Error = job.FailureFrom(err)
		})
		return
	}
	h.observe(time.Since(start))

	_ = h.jobs.Update(id, func(j *job.Job) {
		j.Status = job.StatusComplete
		j.Progress = 100
		j.Result = stocks
	})
	h.logger.Info("consensus job complete",
		zap.String("job_id", id),
		zap.Int("stocks", len(stocks)),
		zap.Duration("duration", time.Since(start)))
}

// GetJob handles GET /api/v1/jobs/{id}.
func (h *ConsensusHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	j, err := h.jobs.Get(r.PathValue("id"))
	if err != nil {
		response.Fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, j)
}

// ListJobs handles GET /api/v1/jobs[?type=].
func (h *ConsensusHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs := h.jobs.List(r.URL.Query().Get("type"))
	response.JSON(w, http.StatusOK, map[string]any{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

func (h *ConsensusHandler) observe(d time.Duration) {
	if h.recorder != nil {
		h.recorder.RecordConsensus(d.Seconds())
	}
}

func (h *ConsensusHandler) reportActive() {
	if h.recorder != nil {
		h.recorder.SetJobsActive(JobTypeConsensus, h.jobs.Active(JobTypeConsensus))
	}
}
