// Package observe emits operational metrics for the notification engine to
// CloudWatch. Metric emission is best-effort: a metrics failure is logged
// and never propagated into the delivery or evaluation path.
package observe

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"duewatch/internal/types"
)

// Metric and dimension names.
const (
	MetricDeliveryAttempt = "NotificationDeliveryAttempt"
	MetricEvaluatorFault  = "AlertEvaluatorFault"
	MetricQueueDepth      = "NotificationQueueDepth"

	DimChannel = "Channel"
	DimResult  = "Result"
	DimStatus  = "Status"
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for
// testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// Metrics publishes engine metrics to a CloudWatch namespace.
//
// Metrics emitted:
//   - NotificationDeliveryAttempt: Dims {Channel, Result} on every outcome
//   - AlertEvaluatorFault: no dims, on every degraded evaluator cycle
//   - NotificationQueueDepth: Dims {Status}, gauge snapshots
type Metrics struct {
	client    CloudWatchClient
	namespace string
	logger    types.Logger
}

// NewMetrics creates a Metrics publisher for the given namespace.
func NewMetrics(client CloudWatchClient, namespace string, logger types.Logger) *Metrics {
	return &Metrics{client: client, namespace: namespace, logger: logger}
}

// RecordDelivery emits a delivery attempt with Channel and Result dimensions.
func (m *Metrics) RecordDelivery(ctx context.Context, channel types.ChannelType, result string) {
	m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(MetricDeliveryAttempt),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: []cwtypes.Dimension{
			{Name: aws.String(DimChannel), Value: aws.String(string(channel))},
			{Name: aws.String(DimResult), Value: aws.String(result)},
		},
	})
}

// RecordEvaluatorFault emits a count metric for a degraded evaluator cycle,
// where the evaluator could not inspect the queue and returned no alerts.
func (m *Metrics) RecordEvaluatorFault(ctx context.Context) {
	m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(MetricEvaluatorFault),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
	})
}

// RecordQueueDepth emits a gauge of how many entries currently sit in the
// given status.
func (m *Metrics) RecordQueueDepth(ctx context.Context, status types.QueueStatus, count int) {
	m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(MetricQueueDepth),
		Value:      aws.Float64(float64(count)),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: []cwtypes.Dimension{
			{Name: aws.String(DimStatus), Value: aws.String(string(status))},
		},
	})
}

func (m *Metrics) put(ctx context.Context, datum cwtypes.MetricDatum) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{datum},
	}
	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Error("failed to publish metric",
			"metric", aws.ToString(datum.MetricName), "error", err.Error())
	}
}

// NopMetrics discards all metrics. Used when CloudWatch is not configured,
// typically in local development.
type NopMetrics struct{}

func (NopMetrics) RecordDelivery(ctx context.Context, channel types.ChannelType, result string) {}
func (NopMetrics) RecordEvaluatorFault(ctx context.Context)                                    {}
func (NopMetrics) RecordQueueDepth(ctx context.Context, status types.QueueStatus, count int)   {}
