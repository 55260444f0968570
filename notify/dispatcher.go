package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/challengeplans/server/cache"
	"github.com/challengeplans/server/model"
)

// Event holds one notification to be written.
type Event struct {
	UserID     int64
	Title      string
	Message    string
	Type       string
	EntityKind string
	EntityID   int64
}

// Channel returns the pub/sub channel carrying a user's live notifications.
func Channel(userID int64) string {
	return fmt.Sprintf("notify:%d", userID)
}

// Dispatcher writes notification rows asynchronously in batches and
// publishes each written row to the user's pub/sub channel. Losing a
// notification on overload never affects the transaction that produced it.
type Dispatcher struct {
	db      *gorm.DB
	pubsub  cache.PubSub
	ch      chan *model.Notification
	flushCh chan chan struct{}
	stopCh  chan struct{}
	wg      sync.WaitGroup
	logger  *zap.Logger
}

// New creates a Dispatcher and starts its background worker.
// pubsub may be nil when live push is not wanted.
func New(db *gorm.DB, pubsub cache.PubSub, buf int, logger *zap.Logger) *Dispatcher {
	if buf <= 0 {
		buf = 1024
	}
	d := &Dispatcher{
		db:      db,
		pubsub:  pubsub,
		ch:      make(chan *model.Notification, buf),
		flushCh: make(chan chan struct{}),
		stopCh:  make(chan struct{}),
		logger:  logger,
	}
	d.wg.Add(1)
	go d.worker()
	return d
}

// Notify enqueues a notification for async DB write.
func (d *Dispatcher) Notify(ev Event) {
	record := &model.Notification{
		UserID:  ev.UserID,
		Title:   ev.Title,
		Message: ev.Message,
		Type:    ev.Type,
	}
	if ev.EntityKind != "" {
		entityJSON, _ := json.Marshal(map[string]interface{}{
			"kind": ev.EntityKind,
			"id":   ev.EntityID,
		})
		record.Entity = datatypes.JSON(entityJSON)
	}
	select {
	case d.ch <- record:
	default:
		d.logger.Warn("notification channel full, dropping entry",
			zap.Int64("user_id", ev.UserID),
			zap.String("type", ev.Type))
	}
}

// Flush blocks until every notification enqueued before the call has been
// written. Intended for tests and shutdown paths.
func (d *Dispatcher) Flush() {
	done := make(chan struct{})
	select {
	case d.flushCh <- done:
		<-done
	case <-d.stopCh:
	}
}

// Stop flushes remaining entries and shuts down the worker.
// It blocks until the worker goroutine has finished.
func (d *Dispatcher) Stop(_ context.Context) {
	select {
	case <-d.stopCh:
	default:
		close(d.stopCh)
	}
	d.wg.Wait()
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	batch := make([]*model.Notification, 0, 100)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := d.db.Create(&batch).Error; err != nil {
			d.logger.Error("notification batch write failed", zap.Error(err))
			batch = batch[:0]
			return
		}
		d.publish(batch)
		batch = batch[:0]
	}

	drain := func() {
		for {
			select {
			case record := <-d.ch:
				batch = append(batch, record)
			default:
				flush()
				return
			}
		}
	}

	for {
		select {
		case record := <-d.ch:
			batch = append(batch, record)
			if len(batch) >= 100 {
				flush()
			}
		case <-ticker.C:
			flush()
		case done := <-d.flushCh:
			drain()
			close(done)
		case <-d.stopCh:
			drain()
			return
		}
	}
}

func (d *Dispatcher) publish(batch []*model.Notification) {
	if d.pubsub == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for _, n := range batch {
		payload, err := json.Marshal(n)
		if err != nil {
			continue
		}
		if err := d.pubsub.Publish(ctx, Channel(n.UserID), string(payload)); err != nil {
			d.logger.Warn("notification publish failed",
				zap.Int64("user_id", n.UserID), zap.Error(err))
		}
	}
}
