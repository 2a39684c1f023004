package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Processor metrics

	// MessagesProcessed tracks handler invocations by dispatcher and result
	MessagesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "eventcore",
			Subsystem: "processor",
			Name:      "messages_processed_total",
			Help:      "Total messages run through processor handlers",
		},
		[]string{"dispatcher", "result"}, // result: handled, unhandled, panic
	)

	// MailboxRejections tracks posts rejected because the mailbox was full
	MailboxRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "eventcore",
			Subsystem: "processor",
			Name:      "mailbox_rejections_total",
			Help:      "Total posts rejected by full mailboxes",
		},
		[]string{"dispatcher"},
	)

	// ProcessorsRegistered tracks the number of registered processors
	ProcessorsRegistered = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "eventcore",
			Subsystem: "processor",
			Name:      "registered",
			Help:      "Number of processors currently registered",
		},
	)

	// Dispatcher metrics

	// DispatcherQueueDepth tracks runnable processors queued per dispatcher
	DispatcherQueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "eventcore",
			Subsystem: "dispatcher",
			Name:      "queue_depth",
			Help:      "Number of runnable processors in the dispatcher queue",
		},
		[]string{"dispatcher"},
	)

	// Worker metrics

	// WorkerBackoffSleeps tracks backoff sleeps after failed lock cycles
	WorkerBackoffSleeps = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "eventcore",
			Subsystem: "worker",
			Name:      "backoff_sleeps_total",
			Help:      "Total backoff sleeps after full round-robin lock failures",
		},
	)

	// Scheduler metrics

	// SchedulerOutcomes tracks schedule completions by result
	SchedulerOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "eventcore",
			Subsystem: "scheduler",
			Name:      "outcomes_total",
			Help:      "Total schedule outcomes by result",
		},
		[]string{"result"}, // posted, cancelled, failed_unregistered, failed_queue_full
	)

	// SchedulerPending tracks armed one-shot schedules
	SchedulerPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "eventcore",
			Subsystem: "scheduler",
			Name:      "pending",
			Help:      "Number of armed one-shot schedules",
		},
	)

	// CronFirings tracks recurring schedule firings by result
	CronFirings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "eventcore",
			Subsystem: "scheduler",
			Name:      "cron_firings_total",
			Help:      "Total recurring schedule firings by result",
		},
		[]string{"result"},
	)

	// Subscriptions metrics

	// BroadcastDeliveries tracks successful broadcast fan-out posts
	BroadcastDeliveries = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "eventcore",
			Subsystem: "subscriptions",
			Name:      "broadcast_deliveries_total",
			Help:      "Total broadcast payloads posted to subscribers",
		},
	)

	// BroadcastNotDelivered tracks broadcast posts rejected by full mailboxes
	BroadcastNotDelivered = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "eventcore",
			Subsystem: "subscriptions",
			Name:      "broadcast_not_delivered_total",
			Help:      "Total broadcast payloads that could not be delivered",
		},
	)

	// Engine metrics

	// StopMessageLoss tracks messages abandoned when a stop deadline expired
	StopMessageLoss = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "eventcore",
			Subsystem: "engine",
			Name:      "stop_message_loss_total",
			Help:      "Total messages abandoned because a stop deadline expired",
		},
	)

	// WorkersRunning tracks live worker goroutines
	WorkersRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "eventcore",
			Subsystem: "engine",
			Name:      "workers_running",
			Help:      "Number of live worker goroutines",
		},
	)
)
