package core

import "context"

const (
	MetricDispatchTotal      = "turns.dispatch.total"
	MetricDispatchDuration   = "turns.dispatch.duration_ms"
	MetricHandlerFailures    = "turns.handler.failures"
	MetricDeliveryDuplicates = "turns.delivery.duplicates"
	MetricOutboundTotal      = "turns.outbound.total"
	MetricInstallTotal       = "turns.install.total"
	MetricWebhookTotal       = "turns.webhook.total"
	MetricStepFailures       = "turns.workflow_step.failures"
	MetricJobEvents          = "turns.job.events"
	MetricJobDuration        = "turns.job.duration_ms"
)

type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string) {}

func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

func cloneTags(tags map[string]string) map[string]string {
	if len(tags) == 0 {
		return map[string]string{}
	}
	copied := make(map[string]string, len(tags))
	for key, value := range tags {
		copied[key] = value
	}
	return copied
}

var _ MetricsRecorder = NopMetricsRecorder{}
