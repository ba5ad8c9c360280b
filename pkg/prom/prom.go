package prom

import (
	"sync"

	xhttp "github.com/nimasrn/finance-ledger/pkg/http"
	"github.com/nimasrn/finance-ledger/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

const (
	SystemLedger    = "ledger"
	SystemReminder  = "reminder"
	SystemAssistant = "assistant"
)

const (
	MetricLedgerRecalculations         = "recalculations_total"
	MetricLedgerBalanceUpdates         = "balance_updates_total"
	MetricLedgerRecalculationDuration  = "recalculation_duration_seconds"
	MetricLedgerInconsistentReferences = "inconsistent_references_total"
	MetricLedgerImportedRows           = "imported_rows_total"
	MetricReminderDeliveries           = "deliveries_total"
	MetricReminderRunDuration          = "run_duration_seconds"
	MetricReminderJobs                 = "jobs_total"
	MetricReminderQueueMessages        = "queue_messages"
	MetricAssistantCommands            = "commands_total"
)

var lockCreateMetricLock = &sync.Mutex{}
var namespace = "none"

var MetricSystemEnabled = false

var MetricCollectionCounterVec = make(map[string]*prometheus.CounterVec)
var MetricCollectionGaugeVec = make(map[string]*prometheus.GaugeVec)
var MetricCollectionHistogramVec = make(map[string]*prometheus.HistogramVec)

var defaultLabels prometheus.Labels

func Create(host string, env string, nameSpace string) error {
	defaultLabels = make(prometheus.Labels)
	defaultLabels["env"] = env
	defaultLabels["instance"] = host
	namespace = nameSpace
	MetricSystemEnabled = true

	var err error
	hasError := func(e error) {
		if err == nil && e != nil {
			err = e
		}
	}

	hasError(createCounterVec(SystemLedger, MetricLedgerRecalculations, []string{"op", "result"}))
	hasError(createCounterVec(SystemLedger, MetricLedgerBalanceUpdates, []string{"op"}))
	hasError(createHistogramVec(SystemLedger, MetricLedgerRecalculationDuration, []string{"op"}))
	hasError(createCounterVec(SystemLedger, MetricLedgerInconsistentReferences, []string{"policy"}))
	hasError(createCounterVec(SystemLedger, MetricLedgerImportedRows, []string{"source"}))

	hasError(createCounterVec(SystemReminder, MetricReminderDeliveries, []string{"channel", "status"}))
	hasError(createHistogramVec(SystemReminder, MetricReminderRunDuration, []string{"forced"}))
	hasError(createCounterVec(SystemReminder, MetricReminderJobs, []string{"result"}))
	hasError(createGaugeVec(SystemReminder, MetricReminderQueueMessages, []string{"state"}))

	hasError(createCounterVec(SystemAssistant, MetricAssistantCommands, []string{"kind"}))

	return err
}

func ListenAndServer(port string, url string) {
	hh := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
	s := xhttp.CreateServer()
	s.GET(url, hh)
	logger.Info("[metrics-server] listening...", "url", url)
	if err := s.ListenAndServe(port); err != nil {
		logger.Panic("[metrics-server] http listen error", "error", err)
	}
}

func createCounterVec(subsystem, name string, labels []string) error {
	lockCreateMetricLock.Lock()
	defer lockCreateMetricLock.Unlock()
	MetricCollectionCounterVec[subsystem+name] = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   namespace,
		Subsystem:   subsystem,
		Name:        name,
		Help:        "",
		ConstLabels: defaultLabels,
	}, labels)
	return prometheus.Register(MetricCollectionCounterVec[subsystem+name])
}

func createHistogramVec(subsystem, name string, labels []string) error {
	lockCreateMetricLock.Lock()
	defer lockCreateMetricLock.Unlock()
	MetricCollectionHistogramVec[subsystem+name] = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   namespace,
		Subsystem:   subsystem,
		Name:        name,
		Help:        "",
		ConstLabels: defaultLabels,
	}, labels)
	return prometheus.Register(MetricCollectionHistogramVec[subsystem+name])
}

func createGaugeVec(subsystem, name string, labels []string) error {
	lockCreateMetricLock.Lock()
	defer lockCreateMetricLock.Unlock()

	MetricCollectionGaugeVec[subsystem+name] = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   namespace,
		Subsystem:   subsystem,
		Name:        name,
		Help:        "",
		ConstLabels: defaultLabels,
	}, labels)
	return prometheus.Register(MetricCollectionGaugeVec[subsystem+name])
}

func SetGaugeVec(subsystem, name string, num float64, labelValues ...string) {
	if !MetricSystemEnabled {
		return
	}
	if v, ok := MetricCollectionGaugeVec[subsystem+name]; ok {
		v.WithLabelValues(labelValues...).Set(num)
		return
	}
	logger.Warn("[metrics-server] gauge not found", "subsystem", subsystem, "name", name)
}

func AddCounterVec(subsystem, name string, num float64, labelValues ...string) {
	if !MetricSystemEnabled {
		return
	}
	if v, ok := MetricCollectionCounterVec[subsystem+name]; ok {
		v.WithLabelValues(labelValues...).Add(num)
		return
	}
	logger.Warn("[metrics-server] counter vec not found", "subsystem", subsystem, "name", name)
}

func IncCounterVec(subsystem, name string, labelValues ...string) {
	AddCounterVec(subsystem, name, 1, labelValues...)
}

func AddHistogramVec(subsystem, name string, number float64, labelValues ...string) {
	if !MetricSystemEnabled {
		return
	}
	if v, ok := MetricCollectionHistogramVec[subsystem+name]; ok {
		v.WithLabelValues(labelValues...).Observe(number)
		return
	}
	logger.Warn("[metrics-server] histogram vec not found", "subsystem", subsystem, "name", name)
}

func IncReminderDelivery(channel, status string) {
	IncCounterVec(SystemReminder, MetricReminderDeliveries, channel, status)
}

func IncAssistantCommand(kind string) {
	IncCounterVec(SystemAssistant, MetricAssistantCommands, kind)
}
