package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"barsim/internal/batch"
	"barsim/internal/domain"
	"barsim/internal/exits"
	"barsim/internal/perf"
)

// BacktestRequest is the POST /api/v1/backtest body.
type BacktestRequest struct {
	Tickers     []string `json:"tickers" binding:"required"`
	Templates   []string `json:"templates"` // empty means all registered
	Timeframe   string   `json:"timeframe"`
	Start       string   `json:"start" binding:"required"` // YYYY-MM-DD
	End         string   `json:"end"`                      // YYYY-MM-DD, empty means end of data
	Detector    string   `json:"detector"`                 // "orb" (default) or "gap-reclaim"
	InitialCash float64  `json:"initial_cash"`
}

// UnitResult is the per-unit slice of a BacktestResponse.
type UnitResult struct {
	Ticker     string         `json:"ticker"`
	Template   string         `json:"template"`
	Trades     []domain.Trade `json:"trades"`
	Rejections int            `json:"rejections"`
	Summary    perf.Summary   `json:"summary"`
	Error      string         `json:"error,omitempty"`
}

// BacktestResponse is the full output of one backtest request.
type BacktestResponse struct {
	RunID     string                   `json:"run_id"`
	Units     []UnitResult             `json:"units"`
	Standings []batch.TemplateStanding `json:"standings"`
	Batches   int                      `json:"batches"`
	Failed    int                      `json:"failed"`
}

func (s *Server) handleListTemplates(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"templates": s.registry.List()})
}

func (s *Server) handleBacktest(c *gin.Context) {
	var req BacktestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	start, err := time.Parse("2006-01-02", req.Start)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "start must be YYYY-MM-DD"})
		return
	}
	var end time.Time
	if req.End != "" {
		end, err = time.Parse("2006-01-02", req.End)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "end must be YYYY-MM-DD"})
			return
		}
		end = end.Add(24*time.Hour - time.Nanosecond)
	}

	templates, err := s.selectTemplates(req.Templates)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	timeframe := domain.Timeframe(req.Timeframe)
	if req.Timeframe == "" {
		timeframe = domain.Timeframe1Min
	}
	detector := req.Detector
	if detector == "" {
		detector = "orb"
	}
	initialCash := req.InitialCash
	if initialCash <= 0 {
		initialCash = s.opts.InitialCash
	}

	jobs, err := batch.BuildJobs(c.Request.Context(), s.bars, nil, batch.JobSpec{
		Tickers:        req.Tickers,
		Templates:      templates,
		Timeframe:      timeframe,
		Start:          start,
		End:            end,
		InitialCash:    initialCash,
		EntryDelayBars: s.opts.EntryDelay,
		Detector:       detector,
		Limits:         s.opts.Limits,
		Calendar:       s.calendar,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(jobs) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no bar data for requested tickers"})
		return
	}

	orch := batch.New(batch.Options{BatchSize: s.opts.BatchSize}, s.log)
	report := orch.Run(c.Request.Context(), jobs)

	runID := uuid.NewString()
	resp := BacktestResponse{
		RunID:     runID,
		Standings: report.ByTemplate(),
		Batches:   report.Batches,
		Failed:    report.Failed,
	}
	for _, res := range report.Results {
		u := UnitResult{
			Ticker:     res.Ticker,
			Template:   res.Template,
			Trades:     res.Trades,
			Rejections: len(res.Rejections),
			Summary:    res.Summary,
		}
		if res.Err != nil {
			u.Error = res.Err.Error()
		}
		resp.Units = append(resp.Units, u)

		if s.results != nil && res.Err == nil {
			if err := s.results.SaveRun(c.Request.Context(), runID+"/"+res.Ticker+"/"+res.Template,
				res.Trades, res.Rejections, res.Summary); err != nil {
				s.log.Error("persisting run", "run", runID, "err", err)
			}
		}
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleListRuns(c *gin.Context) {
	if s.results == nil {
		c.JSON(http.StatusOK, gin.H{"runs": []string{}})
		return
	}
	runs, err := s.results.ListRuns(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if runs == nil {
		runs = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (s *Server) handleRunTrades(c *gin.Context) {
	if s.results == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "result store not configured"})
		return
	}
	trades, err := s.results.ListTrades(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if trades == nil {
		trades = []domain.Trade{}
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades})
}

func (s *Server) handleRunSummary(c *gin.Context) {
	if s.results == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "result store not configured"})
		return
	}
	summary, err := s.results.GetSummary(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, summary)
}

// selectTemplates resolves the requested template names against the registry;
// an empty request selects every registered template.
func (s *Server) selectTemplates(names []string) ([]exits.Strategy, error) {
	if len(names) == 0 {
		names = s.registry.List()
	}
	templates := make([]exits.Strategy, 0, len(names))
	for _, name := range names {
		tpl, ok := s.registry.Get(name)
		if !ok {
			return nil, fmt.Errorf("%w: unknown template %q", domain.ErrConfig, name)
		}
		templates = append(templates, tpl)
	}
	return templates, nil
}
