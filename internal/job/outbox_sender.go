package job

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"carbonledger/internal/config"
	"carbonledger/internal/logging"
	"carbonledger/internal/model"
	"carbonledger/internal/repository"

	"gorm.io/gorm"
)

// Publisher delivers one message to the broker.
type Publisher interface {
	Send(topic, key, value string) (partition int32, offset int64, err error)
}

// OutboxSender relays PENDING ledger events to Kafka in creation order.
type OutboxSender struct {
	outboxRepo *repository.OutboxRepository
	publisher  Publisher
	maxRetry   int
	interval   time.Duration
	batchSize  int
	logger     *slog.Logger
	stopCh     chan struct{}

	mu      sync.Mutex
	stopped bool
	running sync.WaitGroup
}

func NewOutboxSender(db *gorm.DB, publisher Publisher, cfg *config.Config, logger *slog.Logger) *OutboxSender {
	return &OutboxSender{
		outboxRepo: repository.NewOutboxRepository(db),
		publisher:  publisher,
		maxRetry:   cfg.Business.MaxRetryCount,
		interval:   100 * time.Millisecond,
		batchSize:  100,
		logger:     logging.Component(logger, "outbox"),
		stopCh:     make(chan struct{}),
	}
}

// Start blocks, relaying one batch per tick until ctx is done or Stop is
// called. It returns immediately once the sender has been stopped.
func (s *OutboxSender) Start(ctx context.Context) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.running.Add(1)
	s.mu.Unlock()
	defer s.running.Done()

	s.logger.Info("outbox relay started", slog.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("outbox relay stopped", slog.String("reason", "context done"))
			return
		case <-s.stopCh:
			s.logger.Info("outbox relay stopped")
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.logger.Error("load pending messages", slog.Any("error", err))
			}
		}
	}
}

// Stop ends the relay loop and waits for an in-flight batch to finish, so
// the publisher can be closed right after. Safe to call more than once.
func (s *OutboxSender) Stop() {
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		close(s.stopCh)
	}
	s.mu.Unlock()
	s.running.Wait()
}

// RunOnce relays one batch and returns how many messages were delivered.
func (s *OutboxSender) RunOnce(ctx context.Context) (int, error) {
	messages, err := s.outboxRepo.ListByStatus(ctx, model.OutboxStatusPending, s.batchSize)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, msg := range messages {
		if s.send(ctx, msg) {
			sent++
		}
	}
	return sent, nil
}

func (s *OutboxSender) send(ctx context.Context, msg *model.OutboxMessage) bool {
	attrs := []any{
		slog.Int64("id", msg.ID),
		slog.String("topic", msg.Topic),
		slog.String("key", msg.MessageKey),
		slog.String("event", msg.EventType),
	}

	partition, offset, err := s.publisher.Send(msg.Topic, msg.MessageKey, msg.Payload)
	if err == nil {
		if err := s.outboxRepo.MarkSent(ctx, msg.ID); err != nil {
			// delivered but not marked: the next tick sends it again, consumers dedupe on key
			s.logger.Error("mark message sent", append(attrs, slog.Any("error", err))...)
			return true
		}
		s.logger.Debug("message relayed", append(attrs, slog.Int("partition", int(partition)), slog.Int64("offset", offset))...)
		return true
	}

	s.logger.Warn("relay message", append(attrs, slog.Int("retry_count", msg.RetryCount), slog.Any("error", err))...)

	parked, recErr := s.outboxRepo.RecordFailure(ctx, msg, s.maxRetry)
	if recErr != nil {
		s.logger.Error("record relay failure", append(attrs, slog.Any("error", recErr))...)
		return false
	}
	if parked {
		s.logger.Error("message exceeded max retries, marked FAILED", attrs...)
	}
	return false
}
