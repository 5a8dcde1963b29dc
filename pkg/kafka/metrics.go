package kafka

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	producerMsgsTotal     *prometheus.CounterVec
	producerBytesTotal    *prometheus.CounterVec
	producerLatencyHist   *prometheus.HistogramVec
	consumerMsgsTotal     *prometheus.CounterVec
	consumerQueueDepth    *prometheus.GaugeVec
	consumerHandleLatency *prometheus.HistogramVec

	metricsOnce sync.Once
)

func initMetricsOnce() {
	metricsOnce.Do(func() {
		producerMsgsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "candlesense_kafka_producer_messages_total", Help: "Total messages published to Kafka"},
			[]string{"topic", "result"},
		)
		producerBytesTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "candlesense_kafka_producer_bytes_total", Help: "Total payload bytes published"},
			[]string{"topic"},
		)
		producerLatencyHist = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Name: "candlesense_kafka_producer_publish_seconds", Help: "Publish latency", Buckets: prometheus.DefBuckets},
			[]string{"topic"},
		)
		consumerMsgsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "candlesense_kafka_consumer_messages_total", Help: "Messages handled per topic and result"},
			[]string{"topic", "result"},
		)
		consumerQueueDepth = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "candlesense_kafka_consumer_queue_depth", Help: "Number of messages waiting in consumer queue"},
			[]string{"topic"},
		)
		consumerHandleLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Name: "candlesense_kafka_consumer_handle_seconds", Help: "Handling time per message"},
			[]string{"topic"},
		)
		for _, c := range []prometheus.Collector{
			producerMsgsTotal, producerBytesTotal, producerLatencyHist,
			consumerMsgsTotal, consumerQueueDepth, consumerHandleLatency,
		} {
			// AlreadyRegistered errors are ignored
			_ = prometheus.DefaultRegisterer.Register(c)
		}
	})
}
