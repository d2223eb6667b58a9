package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/byronwade/thorbis.com-sub010/internal/infra/config"
)

// RevocationListener subscribes a consumer group to the session revocation
// topic and feeds each message to the RevocationConsumer, so forced logout
// propagates to every replica.
type RevocationListener struct {
	group   sarama.ConsumerGroup
	handler *RevocationConsumer
	topic   string
	logger  *zap.Logger
}

// NewRevocationListener initializes the consumer group for revocation events.
func NewRevocationListener(cfg config.KafkaSettings, handler *RevocationConsumer, logger *zap.Logger) (*RevocationListener, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_5_0_0
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	saramaConfig.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.ConsumerGroup, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer group: %w", err)
	}

	topic := "session.revoked"
	if cfg.TopicPrefix != "" {
		topic = fmt.Sprintf("%s.%s", cfg.TopicPrefix, topic)
	}

	logger.Info("Kafka revocation listener initialized",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("group", cfg.ConsumerGroup),
		zap.String("topic", topic),
	)

	return &RevocationListener{
		group:   group,
		handler: handler,
		topic:   topic,
		logger:  logger,
	}, nil
}

// Run consumes revocation events until the context is cancelled. Consume
// returns on every rebalance, so it is called in a loop.
func (l *RevocationListener) Run(ctx context.Context) error {
	claims := &revocationClaims{handler: l.handler, logger: l.logger}
	for {
		if err := l.group.Consume(ctx, []string{l.topic}, claims); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			l.logger.Error("revocation consume failed", zap.Error(err))
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// Close shuts the consumer group down.
func (l *RevocationListener) Close() error {
	return l.group.Close()
}

type revocationClaims struct {
	handler *RevocationConsumer
	logger  *zap.Logger
}

func (c *revocationClaims) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (c *revocationClaims) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (c *revocationClaims) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		if err := c.handler.HandleMessage(session.Context(), msg); err != nil {
			// Replays are idempotent; mark the offset and move on rather
			// than wedging the partition on a poison message.
			c.logger.Warn("revocation message handling failed",
				zap.String("topic", msg.Topic),
				zap.Int64("offset", msg.Offset),
				zap.Error(err),
			)
		}
		session.MarkMessage(msg, "")
	}
	return nil
}
