package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"splitescrow/core/types"
	"splitescrow/native/escrow"
)

const (
	defaultQueueSize = 1024
	defaultLimit     = 100
	maxLimit         = 1000
)

// ErrClosed is returned once the indexer stopped accepting events.
var ErrClosed = errors.New("indexer: closed")

// EventRecord is the archived form of a committed event.
type EventRecord struct {
	Seq        uint64            `gorm:"primaryKey;autoIncrement"`
	EventID    uuid.UUID         `gorm:"type:uuid;uniqueIndex"`
	Type       string            `gorm:"size:64;index"`
	EscrowID   *uint64           `gorm:"index"`
	Attributes map[string]string `gorm:"serializer:json"`
	RecordedAt time.Time         `gorm:"index"`
}

// TableName pins the table name independently of the struct name.
func (EventRecord) TableName() string { return "escrow_events" }

// Event converts the record back to its payload form.
func (r EventRecord) Event() *types.Event {
	attrs := make(map[string]string, len(r.Attributes))
	for k, v := range r.Attributes {
		attrs[k] = v
	}
	return &types.Event{Type: r.Type, Attributes: attrs}
}

// Indexer archives committed events and answers history queries. Publish
// never blocks the caller: events are queued and written by a single worker.
type Indexer struct {
	db     *gorm.DB
	logger *slog.Logger
	nowFn  func() time.Time

	queue   chan *types.Event
	pending sync.WaitGroup
	done    chan struct{}

	mu     sync.RWMutex
	closed bool
}

// Dialector picks the gorm driver for dsn. postgres:// and postgresql:// URLs
// select PostgreSQL; anything else is handed to SQLite.
func Dialector(dsn string) (gorm.Dialector, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return nil, fmt.Errorf("indexer: dsn required")
	}
	lower := strings.ToLower(trimmed)
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return postgres.Open(trimmed), nil
	}
	return sqlite.Open(trimmed), nil
}

// Open connects to dsn and migrates the schema.
func Open(dsn string, log *slog.Logger) (*Indexer, error) {
	dialector, err := Dialector(dsn)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("indexer: open database: %w", err)
	}
	return New(db, log)
}

// New wraps an open gorm handle.
func New(db *gorm.DB, log *slog.Logger) (*Indexer, error) {
	if db == nil {
		return nil, fmt.Errorf("indexer: database required")
	}
	if log == nil {
		log = slog.Default()
	}
	if err := db.AutoMigrate(&EventRecord{}); err != nil {
		return nil, fmt.Errorf("indexer: migrate: %w", err)
	}
	idx := &Indexer{
		db:     db,
		logger: log.With(slog.String("component", "indexer")),
		nowFn:  time.Now,
		queue:  make(chan *types.Event, defaultQueueSize),
		done:   make(chan struct{}),
	}
	go idx.run()
	return idx, nil
}

// Publish implements events.Sink. Events arriving while the queue is full
// are dropped and logged.
func (i *Indexer) Publish(evt *types.Event) {
	if i == nil || evt == nil {
		return
	}
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.closed {
		return
	}
	i.pending.Add(1)
	select {
	case i.queue <- evt.Clone():
	default:
		i.pending.Done()
		i.logger.Warn("event queue full, dropping event", slog.String("type", evt.Type))
	}
}

func (i *Indexer) run() {
	defer close(i.done)
	for evt := range i.queue {
		if err := i.Record(context.Background(), evt); err != nil {
			i.logger.Error("archive event failed", slog.String("type", evt.Type), slog.String("error", err.Error()))
		}
		i.pending.Done()
	}
}

// Record writes evt synchronously.
func (i *Indexer) Record(ctx context.Context, evt *types.Event) error {
	if evt == nil {
		return nil
	}
	rec := EventRecord{
		EventID:    uuid.New(),
		Type:       evt.Type,
		Attributes: evt.Clone().Attributes,
		RecordedAt: i.nowFn().UTC(),
	}
	if raw, ok := evt.Attributes[escrow.AttrEscrowID]; ok {
		if id, err := strconv.ParseUint(raw, 10, 64); err == nil {
			rec.EscrowID = &id
		}
	}
	return i.db.WithContext(ctx).Create(&rec).Error
}

// Flush waits until every queued event has been written.
func (i *Indexer) Flush() {
	if i == nil {
		return
	}
	i.pending.Wait()
}

// Query filters archived events. Zero fields match everything.
type Query struct {
	EscrowID *uint64
	Type     string
	AfterSeq uint64
	Limit    int
}

// Find returns archived events in commit order.
func (i *Indexer) Find(ctx context.Context, q Query) ([]EventRecord, error) {
	if i == nil || i.db == nil {
		return nil, ErrClosed
	}
	limit := q.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	tx := i.db.WithContext(ctx).Model(&EventRecord{}).Where("seq > ?", q.AfterSeq)
	if q.EscrowID != nil {
		tx = tx.Where("escrow_id = ?", *q.EscrowID)
	}
	if t := strings.TrimSpace(q.Type); t != "" {
		tx = tx.Where("type = ?", t)
	}
	var out []EventRecord
	if err := tx.Order("seq ASC").Limit(limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("indexer: query events: %w", err)
	}
	return out, nil
}

// EscrowHistory returns every archived event of one escrow.
func (i *Indexer) EscrowHistory(ctx context.Context, id uint64) ([]EventRecord, error) {
	return i.Find(ctx, Query{EscrowID: &id, Limit: maxLimit})
}

// Close drains the queue and releases the database handle.
func (i *Indexer) Close() error {
	if i == nil {
		return nil
	}
	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return nil
	}
	i.closed = true
	close(i.queue)
	i.mu.Unlock()
	<-i.done

	sqlDB, err := i.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
