// Package entity 定义领域实体
package entity

import "time"

// TokenLedgerEntry 用量流水
// ChargeID 即主键，同一 ChargeID 的重复扣费会被短路
type TokenLedgerEntry struct {
	ChargeID         string    `json:"charge_id" gorm:"type:varchar(128);primaryKey"`
	UserID           string    `json:"user_id" gorm:"type:uuid;index;not null"`
	TokensCharged    int64     `json:"tokens_charged" gorm:"not null"`
	FromSubscription int64     `json:"from_subscription" gorm:"not null;default:0"`
	FromPayg         int64     `json:"from_payg" gorm:"not null;default:0"`
	Reason           string    `json:"reason" gorm:"type:varchar(64);not null"`
	CreatedAt        time.Time `json:"created_at" gorm:"autoCreateTime"`
}

func (TokenLedgerEntry) TableName() string {
	return "token_ledger_entries"
}
