package idgen

import (
	"fmt"
	"sync"
	"time"
)

// 64-bit layout: sign | 41 bits ms since epoch | 10 bits worker | 12 bits sequence.
const (
	epoch          = int64(1704067200000) // 2024-01-01 00:00:00 UTC
	workerIDBits   = 10
	sequenceBits   = 12
	maxWorkerID    = -1 ^ (-1 << workerIDBits)
	maxSequence    = -1 ^ (-1 << sequenceBits)
	workerIDShift  = sequenceBits
	timestampShift = sequenceBits + workerIDBits
)

const (
	PrefixPurchase = "PUR"
	PrefixTopup    = "TOP"
)

type Snowflake struct {
	mu        sync.Mutex
	timestamp int64
	workerID  int64
	sequence  int64
}

func NewSnowflake(workerID int64) (*Snowflake, error) {
	if workerID < 0 || workerID > maxWorkerID {
		return nil, fmt.Errorf("worker id must be within 0-%d, got %d", maxWorkerID, workerID)
	}
	return &Snowflake{workerID: workerID}, nil
}

var (
	defaultMu        sync.Mutex
	defaultGenerator *Snowflake
)

// Init replaces the process-wide generator.
func Init(workerID int64) error {
	g, err := NewSnowflake(workerID)
	if err != nil {
		return err
	}
	defaultMu.Lock()
	defaultGenerator = g
	defaultMu.Unlock()
	return nil
}

func generator() *Snowflake {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultGenerator == nil {
		defaultGenerator = &Snowflake{workerID: 1}
	}
	return defaultGenerator
}

func NextID() int64 {
	return generator().Generate()
}

func (s *Snowflake) Generate() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UnixMilli()
	if now == s.timestamp {
		s.sequence = (s.sequence + 1) & maxSequence
		if s.sequence == 0 {
			// sequence exhausted, spin to the next millisecond
			for now <= s.timestamp {
				now = time.Now().UnixMilli()
			}
		}
	} else {
		s.sequence = 0
	}
	s.timestamp = now

	return ((now - epoch) << timestampShift) |
		(s.workerID << workerIDShift) |
		s.sequence
}

// BusinessNo formats prefix + yyyyMMddHHmmss + last 8 digits of a snowflake id,
// e.g. PUR2026011514305212345678.
func BusinessNo(prefix string) string {
	id := NextID()
	return fmt.Sprintf("%s%s%08d", prefix, time.Now().Format("20060102150405"), id%100000000)
}

func GeneratePurchaseNo() string {
	return BusinessNo(PrefixPurchase)
}

func GenerateTopupNo() string {
	return BusinessNo(PrefixTopup)
}
