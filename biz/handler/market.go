package handler

import (
	"context"
	"strconv"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"l2book/biz/dal/pg"
	"l2book/biz/model"
	"l2book/biz/service"
	"l2book/biz/util"
)

// MarketHandler is the REST query surface. Book reads are serialized through
// the manager's inbox, so they observe the same order as the websocket and
// TCP traffic; the audit endpoints read postgres.
type MarketHandler struct {
	mgr *service.BookManager
}

func NewMarketHandler(mgr *service.BookManager) *MarketHandler {
	return &MarketHandler{mgr: mgr}
}

// GetDepth returns the full level-2 snapshot, best-first on both sides.
func (h *MarketHandler) GetDepth(c context.Context, ctx *app.RequestContext) {
	snap, err := h.mgr.Snapshot(c)
	if err != nil {
		ctx.JSON(consts.StatusServiceUnavailable, map[string]interface{}{"error": err.Error()})
		return
	}
	ctx.JSON(consts.StatusOK, map[string]interface{}{
		"bids":      snap.Bids,
		"asks":      snap.Asks,
		"bid_depth": len(snap.Bids),
		"ask_depth": len(snap.Asks),
	})
}

// GetTopOfBook returns the best price on one side.
func (h *MarketHandler) GetTopOfBook(c context.Context, ctx *app.RequestContext) {
	side, err := util.ParseSide(string(ctx.Query("side")))
	if err != nil {
		ctx.JSON(consts.StatusBadRequest, map[string]interface{}{"error": err.Error()})
		return
	}
	snap, err := h.mgr.Snapshot(c)
	if err != nil {
		ctx.JSON(consts.StatusServiceUnavailable, map[string]interface{}{"error": err.Error()})
		return
	}
	levels := snap.Bids
	if side == model.Ask {
		levels = snap.Asks
	}
	if len(levels) == 0 {
		ctx.JSON(consts.StatusNotFound, map[string]interface{}{"error": "book side is empty"})
		return
	}
	ctx.JSON(consts.StatusOK, map[string]interface{}{
		"side":  side.String(),
		"price": levels[0].Price,
	})
}

// GetSizeForPriceLevel returns the aggregate quantity at a price.
func (h *MarketHandler) GetSizeForPriceLevel(c context.Context, ctx *app.RequestContext) {
	side, err := util.ParseSide(string(ctx.Query("side")))
	if err != nil {
		ctx.JSON(consts.StatusBadRequest, map[string]interface{}{"error": err.Error()})
		return
	}
	price, err := util.ParsePrice(string(ctx.Query("price")))
	if err != nil {
		ctx.JSON(consts.StatusBadRequest, map[string]interface{}{"error": err.Error()})
		return
	}
	snap, err := h.mgr.Snapshot(c)
	if err != nil {
		ctx.JSON(consts.StatusServiceUnavailable, map[string]interface{}{"error": err.Error()})
		return
	}
	levels := snap.Bids
	if side == model.Ask {
		levels = snap.Asks
	}
	for _, lvl := range levels {
		if lvl.Price.Equal(price) {
			ctx.JSON(consts.StatusOK, map[string]interface{}{
				"side":     side.String(),
				"price":    lvl.Price,
				"quantity": lvl.Quantity,
			})
			return
		}
	}
	ctx.JSON(consts.StatusNotFound, map[string]interface{}{"error": "no such price level"})
}

// ListPlacements returns the audit trail from postgres.
func (h *MarketHandler) ListPlacements(c context.Context, ctx *app.RequestContext) {
	if pg.GormDB == nil {
		ctx.JSON(consts.StatusServiceUnavailable, map[string]interface{}{"error": "placement audit not configured"})
		return
	}
	limit := 100
	if limitStr := string(ctx.Query("limit")); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}
	placements, err := pg.ListPlacements(string(ctx.Query("client_id")), string(ctx.Query("side")), limit)
	if err != nil {
		ctx.JSON(consts.StatusInternalServerError, map[string]interface{}{"error": err.Error()})
		return
	}
	ctx.JSON(consts.StatusOK, map[string]interface{}{
		"placements": placements,
		"limit":      limit,
	})
}
