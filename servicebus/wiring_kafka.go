//go:build franz

package servicebus

import (
	"go.uber.org/zap"

	"github.com/next-trace/scg-future-publish/adapters/kafka"
	"github.com/next-trace/scg-future-publish/config"
	cbus "github.com/next-trace/scg-future-publish/contract/bus"
	"github.com/next-trace/scg-future-publish/conventions"
	"github.com/next-trace/scg-future-publish/serializer"
)

func init() {
	requestTransports[config.TransportKafka] = newKafkaRequests
}

func newKafkaRequests(
	cfg config.Config,
	logger *zap.Logger,
	tns serializer.TypeNameSerializer,
	conv *conventions.Conventions,
) (cbus.Publisher, func(), error) {
	return kafka.NewWithKgo(
		kafka.Config{
			Brokers:    cfg.Kafka.Brokers,
			ClientID:   cfg.Kafka.ClientID,
			Idempotent: cfg.Kafka.Idempotent,
		},
		logger,
		kafka.WithTypeNames(tns),
		kafka.WithConventions(conv),
	)
}
