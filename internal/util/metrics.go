package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ImagesDiscoveredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inventory_images_discovered_total",
		Help: "Total number of new image files added to the ledger",
	})

	ImagesAnalyzedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inventory_images_analyzed_total",
		Help: "Total number of images sent through AI analysis",
	})

	AnalysisErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_analysis_errors_total",
		Help: "Total number of failed or malformed analysis calls",
	}, []string{"reason"})

	AnalysisLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "inventory_analysis_latency_seconds",
		Help:    "Latency of single-image analysis calls",
		Buckets: prometheus.DefBuckets,
	})

	RecordsMergedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inventory_records_merged_total",
		Help: "Total number of records written by the merge engine",
	})

	RecordsSplitTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inventory_records_split_total",
		Help: "Total number of extra records appended for multi-object photos",
	})

	RecordsValidatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inventory_records_validated_total",
		Help: "Total number of records validated by a reviewer",
	})

	RecordsDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inventory_records_deleted_total",
		Help: "Total number of records deleted during review",
	})

	RetakesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inventory_retakes_total",
		Help: "Total number of images quarantined for re-shooting",
	})

	LowConfidenceTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_low_confidence_total",
		Help: "Total number of results below the reliability threshold",
	}, []string{"action"})

	LedgerSaveFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inventory_ledger_save_failures_total",
		Help: "Total number of failed ledger saves",
	})
)
