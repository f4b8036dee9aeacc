package outbox

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pavlovicisidora/sep/internal/bank/repository/outbox_repo"
	"github.com/pavlovicisidora/sep/internal/infra/kafka"
)

// Processor drains pending outbox rows to Kafka. Rows are written in the same
// database transaction as the state change they describe, so a crash between
// commit and publish only delays the event, never loses it.
type Processor struct {
	outboxRepo   outbox_repo.OutboxRepository
	producer     kafka.Producer
	pollInterval time.Duration
	pollTimeout  time.Duration
	logger       *zap.Logger
	stopOnce     sync.Once
	stopped      chan struct{}
}

func NewProcessor(
	outboxRepo outbox_repo.OutboxRepository,
	producer kafka.Producer,
	pollInterval time.Duration,
	pollTimeout time.Duration,
	logger *zap.Logger,
) *Processor {
	return &Processor{
		outboxRepo:   outboxRepo,
		producer:     producer,
		pollInterval: pollInterval,
		pollTimeout:  pollTimeout,
		logger:       logger,
		stopped:      make(chan struct{}),
	}
}

func (p *Processor) Start(ctx context.Context) {
	p.logger.Info("Starting outbox processor...")
	go func() {
		ticker := time.NewTicker(p.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				p.logger.Info("Outbox processor stopped: context cancelled.")
				return
			case <-p.stopped:
				p.logger.Info("Outbox processor stopped.")
				return
			case <-ticker.C:
				p.processOutboxMessages(ctx)
			}
		}
	}()
}

func (p *Processor) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopped)
	})
}

func (p *Processor) processOutboxMessages(ctx context.Context) {
	queryCtx, cancel := context.WithTimeout(ctx, p.pollTimeout)
	defer cancel()

	messages, err := p.outboxRepo.GetPendingMessages(queryCtx)
	if err != nil {
		if err == sql.ErrNoRows {
			return
		}
		p.logger.Error("Failed to get pending outbox messages", zap.Error(err))
		return
	}
	if len(messages) == 0 {
		return
	}

	p.logger.Info("Found pending outbox messages", zap.Int("count", len(messages)))

	var sent, failed []string
	for _, msg := range messages {
		if err := p.producer.Produce(ctx, msg.Topic, msg.Key, msg.Payload); err != nil {
			p.logger.Error("Failed to send outbox message to Kafka",
				zap.String("message_id", msg.ID),
				zap.String("topic", msg.Topic),
				zap.Error(err))
			failed = append(failed, msg.ID)
			continue
		}
		sent = append(sent, msg.ID)
	}

	if err := p.outboxRepo.MarkMessagesAsSent(ctx, sent); err != nil {
		p.logger.Error("Failed to mark outbox messages as sent", zap.Error(err))
	}
	if err := p.outboxRepo.MarkMessagesAsFailed(ctx, failed); err != nil {
		p.logger.Error("Failed to mark outbox messages as failed", zap.Error(err))
	}
}
