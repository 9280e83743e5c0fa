// Package metrics holds the worker's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	TasksProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promed_tasks_processed_total",
			Help: "Outbound tasks written back, by terminal status",
		},
		[]string{"status"},
	)
	ClaimConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "promed_task_claim_conflicts_total",
			Help: "Claims lost to another worker or to a deleted task",
		},
	)
	TasksRequeued = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "promed_tasks_requeued_total",
			Help: "Stale PROCESSING tasks moved back to PENDING",
		},
	)
	LinkBackFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "promed_link_back_failures_total",
			Help: "Delivered tasks whose transcript entry could not be updated",
		},
	)
	InboundEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promed_inbound_events_total",
			Help: "Inbound chat events, by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)
	RemindersSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promed_reminders_total",
			Help: "Injection reminders attempted, by result",
		},
		[]string{"result"},
	)
	TasksCleaned = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "promed_tasks_cleaned_total",
			Help: "Terminal tasks removed by housekeeping",
		},
	)
)

func init() {
	prometheus.MustRegister(
		TasksProcessed,
		ClaimConflicts,
		TasksRequeued,
		LinkBackFailures,
		InboundEvents,
		RemindersSent,
		TasksCleaned,
	)
}
