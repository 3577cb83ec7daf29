package harvest

import (
	"fmt"
	"math"
	"time"

	"github.com/sells-group/pharmacy-harvester/internal/dedupe"
	"github.com/sells-group/pharmacy-harvester/internal/model"
	"github.com/sells-group/pharmacy-harvester/internal/reconcile"
)

// NoResultsWarning is set on a result whose fetch found nothing.
const NoResultsWarning = "No online pharmacy data found"

// SearchStats summarizes the quality of the fetched entities.
type SearchStats struct {
	TotalFound            int `json:"totalFound"`
	HighQuality           int `json:"highQuality"`
	MediumQuality         int `json:"mediumQuality"`
	LowQuality            int `json:"lowQuality"`
	RequiresReview        int `json:"requiresReview"`
	AvgReliability        int `json:"avgReliability"`
	ProcessingTimeSeconds int `json:"processingTimeSeconds"`
	TotalProcessed        int `json:"totalProcessed"`
	AccuracyRate          int `json:"accuracyRate"`
}

func searchStats(ents []model.Entity, elapsed time.Duration) SearchStats {
	st := SearchStats{
		TotalFound:            len(ents),
		ProcessingTimeSeconds: seconds(elapsed),
	}
	sum := 0
	for _, e := range ents {
		score := e.Reliability
		sum += score
		switch {
		case score >= 80:
			st.HighQuality++
		case score >= 60:
			st.MediumQuality++
		default:
			st.LowQuality++
		}
		if score < 70 {
			st.RequiresReview++
		}
	}
	if len(ents) > 0 {
		st.AvgReliability = round(float64(sum) / float64(len(ents)))
	}
	return st
}

// Coverage compares persisted counts before and after the run.
type Coverage struct {
	Before                int    `json:"before"`
	After                 int    `json:"after"`
	Improvement           string `json:"improvement"`
	OnlineDiscovered      int    `json:"onlineDiscovered"`
	SuccessfullyProcessed int    `json:"successfullyProcessed"`
	ProcessingSuccess     string `json:"processingSuccess"`
	ErrorRate             string `json:"errorRate"`
}

// Quality summarizes the reconciled actions.
type Quality struct {
	HighQuality    int `json:"highQuality"`
	MediumQuality  int `json:"mediumQuality"`
	RequiresReview int `json:"requiresReview"`
	WithExternalID int `json:"withGoogleId"`
	AvgReliability int `json:"avgReliability"`
}

// Result is the outcome of one sync. It is returned for partial failures too.
type Result struct {
	RunID           string             `json:"runId,omitempty"`
	CitySlug        string             `json:"citySlug"`
	CityName        string             `json:"cityName"`
	Success         bool               `json:"success"`
	State           State              `json:"state"`
	Warning         string             `json:"warning,omitempty"`
	Message         string             `json:"message"`
	Error           string             `json:"error,omitempty"`
	SyncDuration    int                `json:"syncDuration"`
	Timestamp       time.Time          `json:"timestamp"`
	Processed       int                `json:"processed"`
	Created         int                `json:"created"`
	Updated         int                `json:"updated"`
	Skipped         int                `json:"skipped"`
	Errors          int                `json:"errors"`
	ExistingCount   int                `json:"existingCount"`
	OnlineCount     int                `json:"onlineCount"`
	TimedOut        bool               `json:"timedOut"`
	Coverage        *Coverage          `json:"coverage,omitempty"`
	Quality         *Quality           `json:"quality,omitempty"`
	Pharmacies      []reconcile.Action `json:"pharmacies"`
	SearchStats     SearchStats        `json:"searchStats"`
	Dedupe          dedupe.Stats       `json:"dedupe"`
	States          []State            `json:"states"`
	Stages          []StageStat        `json:"stages"`
	Recommendations []string           `json:"recommendations"`
}

func failed(slug string, start, end time.Time, err error) *Result {
	return &Result{
		CitySlug:     slug,
		State:        StateFailed,
		States:       []State{StateIdle, StateFailed},
		Message:      "Pharmacy sync failed",
		Error:        err.Error(),
		SyncDuration: seconds(end.Sub(start)),
		Timestamp:    end.UTC(),
		Pharmacies:   []reconcile.Action{},
	}
}

func (r *Result) noResults() {
	r.Warning = NoResultsWarning
	r.Message = fmt.Sprintf("No online pharmacies found for %s", r.CityName)
	r.Recommendations = reconcile.NoResultsRecommendations()
}

func (r *Result) applyReport(rep reconcile.Report, after int) {
	r.Created, r.Updated, r.Errors = rep.Created, rep.Updated, rep.Errors
	r.Processed = rep.Processed()
	r.Pharmacies = rep.Actions

	improvement := "New data"
	if r.ExistingCount > 0 {
		improvement = pct(after-r.ExistingCount, r.ExistingCount)
	}
	r.Coverage = &Coverage{
		Before:                r.ExistingCount,
		After:                 after,
		Improvement:           improvement,
		OnlineDiscovered:      r.OnlineCount,
		SuccessfullyProcessed: r.Processed,
		ProcessingSuccess:     pct(r.Processed, r.OnlineCount),
		ErrorRate:             pct(r.Errors, r.OnlineCount),
	}

	q := &Quality{}
	sum, n := 0, 0
	for _, a := range rep.Actions {
		if a.Action == reconcile.ActionError {
			continue
		}
		n++
		sum += a.Reliability
		switch {
		case a.Reliability >= 70:
			q.HighQuality++
		case a.Reliability >= 50:
			q.MediumQuality++
		}
		if a.RequiresReview {
			q.RequiresReview++
		}
		if a.ExternalID != "" {
			q.WithExternalID++
		}
	}
	if n > 0 {
		q.AvgReliability = round(float64(sum) / float64(n))
	}
	r.Quality = q

	r.SearchStats.TotalProcessed = r.Processed
	if r.OnlineCount > 0 {
		r.SearchStats.AccuracyRate = round(float64(r.Processed) / float64(r.OnlineCount) * 100)
	}
	r.Message = fmt.Sprintf("Successfully synced %d pharmacies for %s", r.Processed, r.CityName)
	r.Recommendations = reconcile.Recommendations(r.Created, r.Updated, r.Errors, r.OnlineCount)
}

func (r *Result) finish(start, end time.Time) {
	r.SyncDuration = seconds(end.Sub(start))
	r.Timestamp = end.UTC()
	r.SearchStats.ProcessingTimeSeconds = r.SyncDuration
}

func pct(n, total int) string {
	if total == 0 {
		return "0%"
	}
	return fmt.Sprintf("%d%%", round(float64(n)/float64(total)*100))
}

func round(f float64) int {
	return int(math.Round(f))
}

func seconds(d time.Duration) int {
	return round(d.Seconds())
}
