package project

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mayowa2133/hookforge/internal/timeline"
)

var (
	gatewayResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hookforge_gateway_results_total",
		Help: "Preview and apply gateway outcomes by result",
	}, []string{"mode", "result"})

	validationIssues = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hookforge_validation_issues_total",
		Help: "Validation issues reported by the gateway by code",
	}, []string{"code"})

	batchOperations = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "hookforge_batch_operations",
		Help:    "Number of operations per submitted batch",
		Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500},
	})

	commitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hookforge_commits_total",
		Help: "Timeline commits by result",
	}, []string{"result"})

	undoTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hookforge_undo_total",
		Help: "Undo attempts by result",
	}, []string{"result"})

	undoPruned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hookforge_undo_tokens_pruned_total",
		Help: "Undo tokens removed by the janitor",
	})
)

func observeGateway(mode string, res timeline.Result) {
	switch {
	case res.Valid:
		gatewayResults.WithLabelValues(mode, "valid").Inc()
	case len(res.Issues) == 1 && res.Issues[0].Code == timeline.IssueApplyFailed:
		gatewayResults.WithLabelValues(mode, "apply_failed").Inc()
	default:
		gatewayResults.WithLabelValues(mode, "invalid").Inc()
	}
	for _, issue := range res.Issues {
		validationIssues.WithLabelValues(issue.Code).Inc()
	}
}
