package store

import (
	"fmt"
	"time"
)

// TradeRecord is one filled (or partially filled) order, the "trade
// records" ledger named in spec §6.2. Field set mirrors the spec's named
// columns directly: time, action, price, qty, side, pnl, fee, gross_pnl,
// unrealized_pnl, equity.
type TradeRecord struct {
	ID            uint      `gorm:"primaryKey"`
	Time          time.Time `gorm:"index;not null"`
	Symbol        string    `gorm:"index;not null"`
	Action        string    `gorm:"not null"` // entry / take_profit / auto_reduce / risk_flatten
	Price         float64
	Qty           float64
	Side          string // long / short
	PnL           float64
	Fee           float64
	GrossPnL      float64
	UnrealizedPnL float64
	Equity        float64
}

func (TradeRecord) TableName() string {
	return "trade_records"
}

// EquityPoint is one point on the account equity curve (spec §6.2: "time,
// price, equity, realized, unrealized").
type EquityPoint struct {
	ID         uint      `gorm:"primaryKey"`
	Time       time.Time `gorm:"index;not null"`
	Price      float64
	Equity     float64
	Realized   float64
	Unrealized float64
}

func (EquityPoint) TableName() string {
	return "equity_points"
}

// RotationRecord is one executed symbol swap, the optional rotation
// history named in spec §6.2.
type RotationRecord struct {
	ID          uint      `gorm:"primaryKey"`
	Time        time.Time `gorm:"index;not null"`
	FromSymbol  string    `gorm:"not null"`
	ToSymbol    string    `gorm:"not null"`
	FromScore   float64
	ToScore     float64
	Reason      string
}

func (RotationRecord) TableName() string {
	return "rotation_records"
}

// AppendTrade inserts a trade record. Time defaults to now if unset.
func (s *Store) AppendTrade(r *TradeRecord) error {
	if r.Time.IsZero() {
		r.Time = time.Now().UTC()
	}
	if err := s.db.Create(r).Error; err != nil {
		return fmt.Errorf("append trade record: %w", err)
	}
	return nil
}

// RecentTrades returns the latest limit trade records for symbol, oldest
// first (suitable for replay/plotting).
func (s *Store) RecentTrades(symbol string, limit int) ([]TradeRecord, error) {
	var records []TradeRecord
	err := s.db.Where("symbol = ?", symbol).Order("time DESC").Limit(limit).Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("query trade records: %w", err)
	}
	reverse(records)
	return records, nil
}

// AppendEquityPoint inserts one equity-curve sample.
func (s *Store) AppendEquityPoint(p *EquityPoint) error {
	if p.Time.IsZero() {
		p.Time = time.Now().UTC()
	}
	if err := s.db.Create(p).Error; err != nil {
		return fmt.Errorf("append equity point: %w", err)
	}
	return nil
}

// EquityCurve returns the latest limit equity points, oldest first.
func (s *Store) EquityCurve(limit int) ([]EquityPoint, error) {
	var points []EquityPoint
	err := s.db.Order("time DESC").Limit(limit).Find(&points).Error
	if err != nil {
		return nil, fmt.Errorf("query equity points: %w", err)
	}
	reverse(points)
	return points, nil
}

// EquityCurveRange returns equity points within [start, end], ascending.
func (s *Store) EquityCurveRange(start, end time.Time) ([]EquityPoint, error) {
	var points []EquityPoint
	err := s.db.Where("time >= ? AND time <= ?", start, end).Order("time ASC").Find(&points).Error
	if err != nil {
		return nil, fmt.Errorf("query equity points: %w", err)
	}
	return points, nil
}

// AppendRotation inserts one rotation-history record.
func (s *Store) AppendRotation(r *RotationRecord) error {
	if r.Time.IsZero() {
		r.Time = time.Now().UTC()
	}
	if err := s.db.Create(r).Error; err != nil {
		return fmt.Errorf("append rotation record: %w", err)
	}
	return nil
}

// RotationHistory returns the latest limit rotation records, newest first.
func (s *Store) RotationHistory(limit int) ([]RotationRecord, error) {
	var records []RotationRecord
	err := s.db.Order("time DESC").Limit(limit).Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("query rotation records: %w", err)
	}
	return records, nil
}

func reverse[T any](s []T) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
