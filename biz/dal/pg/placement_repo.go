package pg

import (
	"l2book/biz/model"
)

// ListPlacements returns the audit trail, newest first, optionally filtered
// by client and side.
func ListPlacements(clientID, side string, limit int) ([]model.Placement, error) {
	var placements []model.Placement
	db := GormDB.Model(&model.Placement{})
	if clientID != "" {
		db = db.Where("client_id = ?", clientID)
	}
	if side != "" {
		db = db.Where("side = ?", side)
	}
	if limit <= 0 {
		limit = 100
	}
	err := db.Order("created_at desc").Limit(limit).Find(&placements).Error
	return placements, err
}

// GetPlacement returns a single audited placement by order id.
func GetPlacement(orderID uint64) (*model.Placement, error) {
	var placement model.Placement
	err := GormDB.Where("order_id = ?", orderID).First(&placement).Error
	return &placement, err
}
