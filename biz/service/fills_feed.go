package service

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/cloudwego/hertz/pkg/common/hlog"

	kafkadal "l2book/biz/dal/kafka"
	"l2book/biz/model"
)

// ConsumeFills tails the external matcher's fills topic and feeds each fill
// into the manager's inbox. Bad payloads are logged and skipped; the book
// must never stall on a malformed feed record.
func ConsumeFills(ctx context.Context, mgr *BookManager) {
	if !kafkadal.Enabled() {
		hlog.Info("kafka not configured, fills feed disabled")
		return
	}
	reader := kafkadal.NewFillsReader()
	defer func() { _ = reader.Close() }()

	hlog.Infof("[FillsFeed] consuming %s", reader.Config().Topic)
	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			hlog.Errorf("[FillsFeed] read failed: %v", err)
			continue
		}
		var fill model.Fill
		if err := json.Unmarshal(msg.Value, &fill); err != nil {
			hlog.Errorf("[FillsFeed] malformed fill at offset %d: %v", msg.Offset, err)
			continue
		}
		if fill.Quantity == 0 {
			hlog.Warnf("[FillsFeed] zero-quantity fill for order %d, skipped", fill.RestingOrderID)
			continue
		}
		mgr.ApplyFill(fill.RestingOrderID, fill.Quantity)
	}
}
