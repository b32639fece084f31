package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/common/hlog"

	"l2book/biz/dal/pg"
	"l2book/biz/model"
)

// PlacementAudit persists every accepted placement to postgres. Rows are
// buffered and written as a single multi-VALUES insert when the batch fills
// or on the ticker.
type PlacementAudit struct {
	rows chan model.Placement
}

// NewPlacementAudit returns nil when postgres is not configured.
func NewPlacementAudit() *PlacementAudit {
	if pg.GetPool() == nil {
		return nil
	}
	a := &PlacementAudit{rows: make(chan model.Placement, 1024)}
	go a.batchWriter()
	return a
}

// Record enqueues a placement for the batch writer. Never blocks the caller.
func (a *PlacementAudit) Record(p model.Placement) {
	select {
	case a.rows <- p:
	default:
		hlog.Warnf("[PlacementAudit] row queue full, dropping order %d", p.OrderID)
	}
}

func (a *PlacementAudit) batchWriter() {
	batch := make([]model.Placement, 0, 100)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case row := <-a.rows:
			batch = append(batch, row)
			if len(batch) >= 100 {
				a.flush(&batch)
			}
		case <-ticker.C:
			if len(batch) > 0 {
				a.flush(&batch)
			}
		}
	}
}

func (a *PlacementAudit) flush(batch *[]model.Placement) {
	rows := *batch
	if len(rows) == 0 {
		return
	}
	query := "INSERT INTO placements (order_id, client_id, side, price, quantity, created_at) VALUES "
	args := make([]interface{}, 0, len(rows)*6)
	valueStrings := make([]string, 0, len(rows))
	for i, row := range rows {
		valueStrings = append(valueStrings,
			fmt.Sprintf("($%d,$%d,$%d,$%d,$%d,$%d)", i*6+1, i*6+2, i*6+3, i*6+4, i*6+5, i*6+6))
		args = append(args, row.OrderID, row.ClientID, row.Side, row.Price, row.Quantity, time.Now().UnixMilli())
	}
	query += strings.Join(valueStrings, ",")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := pg.GetPool().Exec(ctx, query, args...); err != nil {
		hlog.Errorf("[PlacementAudit] batch insert failed, %d row(s): %v", len(rows), err)
	}
	*batch = (*batch)[:0]
}
