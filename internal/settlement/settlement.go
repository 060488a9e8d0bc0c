// Package settlement aggregates merchant transactions into periodic
// payable summaries.
package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"time"

	"github.com/mps-suite/mps-engine/internal/bizerr"
	"github.com/mps-suite/mps-engine/internal/models"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Service builds and stores merchant settlements.
type Service struct {
	conn *gorm.DB
}

// NewService constructs a Service.
func NewService(conn *gorm.DB) *Service {
	return &Service{conn: conn}
}

// Summary is the per-type breakdown of a settlement period. Net is
// payment volume minus refund volume, in the currency's major unit.
type Summary struct {
	MerchantID    uint64    `json:"merchant_id"`
	PeriodStart   time.Time `json:"period_start"`
	PeriodEnd     time.Time `json:"period_end"`
	PaymentCount  int64     `json:"payment_count"`
	PaymentAmount float64   `json:"payment_amount"`
	RefundCount   int64     `json:"refund_count"`
	RefundAmount  float64   `json:"refund_amount"`
	Net           float64   `json:"net"`
}

// Summarize aggregates the merchant's completed activity inside
// [periodStart, periodEnd). Refunded payments still count as payment
// volume; the matching refund rows carry the reversal.
func (s *Service) Summarize(ctx context.Context, merchantID uint64, periodStart, periodEnd time.Time) (*Summary, error) {
	if errMerchant := s.checkMerchant(ctx, merchantID); errMerchant != nil {
		return nil, errMerchant
	}

	type bucket struct {
		TxType models.TxType
		Count  int64
		Amount float64
	}
	var buckets []bucket
	if errScan := s.conn.WithContext(ctx).
		Model(&models.Transaction{}).
		Select("tx_type, COUNT(*) AS count, COALESCE(SUM(final_amount), 0) AS amount").
		Where("merchant_id = ? AND status IN ? AND created_at >= ? AND created_at < ?",
			merchantID,
			[]models.TxStatus{models.TxStatusCompleted, models.TxStatusRefunded},
			periodStart, periodEnd).
		Group("tx_type").
		Scan(&buckets).Error; errScan != nil {
		return nil, errScan
	}

	summary := &Summary{MerchantID: merchantID, PeriodStart: periodStart, PeriodEnd: periodEnd}
	for _, b := range buckets {
		switch b.TxType {
		case models.TxTypePayment:
			summary.PaymentCount = b.Count
			summary.PaymentAmount = b.Amount
		case models.TxTypeRefund:
			summary.RefundCount = b.Count
			summary.RefundAmount = b.Amount
		}
	}
	summary.Net = math.Floor((summary.PaymentAmount-summary.RefundAmount)*100+0.5) / 100
	return summary, nil
}

// Create persists a settlement record for the period with the summary
// breakdown stored as its payload.
func (s *Service) Create(ctx context.Context, merchantID uint64, mode models.SettlementMode, periodStart, periodEnd time.Time) (*models.Settlement, error) {
	summary, errSummarize := s.Summarize(ctx, merchantID, periodStart, periodEnd)
	if errSummarize != nil {
		return nil, errSummarize
	}

	payload, errMarshal := json.Marshal(summary)
	if errMarshal != nil {
		return nil, errMarshal
	}

	record := models.Settlement{
		MerchantID:   merchantID,
		Mode:         mode,
		Status:       models.SettlementStatusPending,
		PeriodStart:  periodStart,
		PeriodEnd:    periodEnd,
		TotalAmount:  summary.Net,
		TotalTxCount: summary.PaymentCount + summary.RefundCount,
		Payload:      datatypes.JSON(payload),
	}
	if errCreate := s.conn.WithContext(ctx).Create(&record).Error; errCreate != nil {
		return nil, errCreate
	}
	log.Infof("settlement %d created for merchant %d (%s..%s net=%.2f)",
		record.ID, merchantID, periodStart.Format(time.RFC3339), periodEnd.Format(time.RFC3339), summary.Net)
	return &record, nil
}

// MarkSettled transitions a pending settlement to settled.
func (s *Service) MarkSettled(ctx context.Context, settlementID uint64) error {
	result := s.conn.WithContext(ctx).
		Model(&models.Settlement{}).
		Where("id = ? AND status = ?", settlementID, models.SettlementStatusPending).
		Update("status", models.SettlementStatusSettled)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return bizerr.E(bizerr.CodeTxNotFound)
	}
	return nil
}

// List returns the merchant's settlements, newest first.
func (s *Service) List(ctx context.Context, merchantID uint64, page, limit int) ([]models.Settlement, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	if limit > 200 {
		limit = 200
	}

	query := s.conn.WithContext(ctx).
		Model(&models.Settlement{}).
		Where("merchant_id = ?", merchantID)

	var total int64
	if errCount := query.Session(&gorm.Session{}).Count(&total).Error; errCount != nil {
		return nil, 0, errCount
	}

	var rows []models.Settlement
	if errFind := query.Session(&gorm.Session{}).
		Order("period_end DESC, id DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&rows).Error; errFind != nil {
		return nil, 0, errFind
	}
	return rows, total, nil
}

func (s *Service) checkMerchant(ctx context.Context, merchantID uint64) error {
	var merchant models.Merchant
	if errFind := s.conn.WithContext(ctx).
		Where("id = ? AND active = ?", merchantID, true).
		First(&merchant).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return bizerr.E(bizerr.CodeMerchantNotFoundOrInactive)
		}
		return errFind
	}
	return nil
}
