package replication

import (
	"context"
	"sync"
	"time"

	"github.com/mevsgame/fitgd-sub006/model"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Writer persists committed commands to the database asynchronously in
// batches. The in-memory log is the source of truth during the session; the
// persisted rows exist so the next session load can replay history.
type Writer struct {
	db     *gorm.DB
	ch     chan *model.Command
	stopCh chan struct{}
	wg     sync.WaitGroup
	logger *zap.Logger
}

// NewWriter creates a Writer and starts its background worker.
func NewWriter(db *gorm.DB, logger *zap.Logger) *Writer {
	w := &Writer{
		db:     db,
		ch:     make(chan *model.Command, 1024),
		stopCh: make(chan struct{}),
		logger: logger,
	}
	w.wg.Add(1)
	go w.worker()
	return w
}

// Enqueue schedules commands for an async DB write.
func (w *Writer) Enqueue(cmds ...Command) {
	for i := range cmds {
		cmd := cmds[i]
		row := &model.Command{
			CommandID: cmd.CommandID,
			Category:  string(cmd.Category),
			Type:      string(cmd.Type),
			Payload:   datatypes.JSON(cmd.Payload),
			Timestamp: cmd.Timestamp,
		}
		select {
		case w.ch <- row:
		default:
			w.logger.Warn("command writer channel full, dropping row",
				zap.String("command_id", cmd.CommandID))
		}
	}
}

// Stop flushes remaining rows and shuts the worker down. It blocks until the
// worker goroutine has finished.
func (w *Writer) Stop(_ context.Context) {
	select {
	case <-w.stopCh:
	default:
		close(w.stopCh)
	}
	w.wg.Wait()
}

func (w *Writer) worker() {
	defer w.wg.Done()
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	batch := make([]*model.Command, 0, 100)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := w.db.Create(&batch).Error; err != nil {
			w.logger.Error("command batch write failed", zap.Error(err))
		}
		batch = batch[:0]
	}

	for {
		select {
		case row := <-w.ch:
			batch = append(batch, row)
			if len(batch) >= 100 {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-w.stopCh:
			for {
				select {
				case row := <-w.ch:
					batch = append(batch, row)
				default:
					flush()
					return
				}
			}
		}
	}
}

// LoadHistory reads the persisted command history ordered by timestamp and
// converts it back into replication commands grouped per category.
func LoadHistory(db *gorm.DB) (Delta, error) {
	var rows []model.Command
	if err := db.Order("timestamp asc, id asc").Find(&rows).Error; err != nil {
		return Delta{}, err
	}
	var d Delta
	for _, row := range rows {
		cmd := Command{
			CommandID: row.CommandID,
			Category:  Category(row.Category),
			Type:      Type(row.Type),
			Payload:   []byte(row.Payload),
			Timestamp: row.Timestamp,
		}
		if b := d.bucket(cmd.Category); b != nil {
			*b = append(*b, cmd)
		}
	}
	return d, nil
}
