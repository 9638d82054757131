// internal/services/admin_service.go
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/javajoker/coopfund-backend/internal/models"
	"github.com/javajoker/coopfund-backend/internal/utils"
)

// AdminService answers read-only questions about the whole pool.
type AdminService struct {
	db         *gorm.DB
	identities IdentityRegistry
	custodian  CapitalCustodian
}

type AdminDashboardStats struct {
	GrantsByStatus      map[string]int64 `json:"grants_by_status"`
	LoansByStatus       map[string]int64 `json:"loans_by_status"`
	ProofsByStatus      map[string]int64 `json:"proofs_by_status"`
	GrantCommitted      int64            `json:"grant_committed"`
	GrantDisbursed      int64            `json:"grant_disbursed"`
	RevenueShared       int64            `json:"revenue_shared"`
	LoanPrincipal       int64            `json:"loan_principal"`
	LoanRepaid          int64            `json:"loan_repaid"`
	EscrowRemaining     int64            `json:"escrow_remaining"`
	MilestonesCompleted int64            `json:"milestones_completed"`
	ActiveCircuits      int64            `json:"active_circuits"`
	TreasuryBalance     *int64           `json:"treasury_balance,omitempty"`
	GeneratedAt         time.Time        `json:"generated_at"`
}

type AuditLogFilter struct {
	utils.PaginationParams
	Action       string `json:"action,omitempty"`
	ResourceType string `json:"resource_type,omitempty"`
}

func NewAdminService(db *gorm.DB, identities IdentityRegistry, custodian CapitalCustodian) *AdminService {
	return &AdminService{
		db:         db,
		identities: identities,
		custodian:  custodian,
	}
}

// Dashboard Statistics
func (s *AdminService) GetDashboardStats(ctx context.Context, actor string) (*AdminDashboardStats, error) {
	if err := authorize(ctx, s.identities, actor, models.CapabilitySystemAdmin); err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)
	stats := &AdminDashboardStats{GeneratedAt: time.Now().UTC()}

	var err error
	if stats.GrantsByStatus, err = countByStatus(db, &models.Grant{}); err != nil {
		return nil, err
	}
	if stats.LoansByStatus, err = countByStatus(db, &models.Loan{}); err != nil {
		return nil, err
	}
	if stats.ProofsByStatus, err = countByStatus(db, &models.Proof{}); err != nil {
		return nil, err
	}

	sums := []struct {
		model  interface{}
		column string
		into   *int64
	}{
		{&models.Grant{}, "amount", &stats.GrantCommitted},
		{&models.Grant{}, "disbursed_amount", &stats.GrantDisbursed},
		{&models.Grant{}, "total_revenue_shared", &stats.RevenueShared},
		{&models.Loan{}, "principal", &stats.LoanPrincipal},
		{&models.Loan{}, "repaid_amount", &stats.LoanRepaid},
		{&models.DisbursementSchedule{}, "remaining_escrow", &stats.EscrowRemaining},
	}
	for _, sum := range sums {
		if err := db.Model(sum.model).Select("COALESCE(SUM(" + sum.column + "), 0)").Scan(sum.into).Error; err != nil {
			return nil, fmt.Errorf("failed to sum %s: %w", sum.column, err)
		}
	}

	db.Model(&models.Milestone{}).Where("is_completed = ?", true).Count(&stats.MilestonesCompleted)
	db.Model(&models.CircuitDescriptor{}).Where("is_active = ?", true).Count(&stats.ActiveCircuits)

	balance, err := s.custodian.Balance(ctx)
	if err != nil {
		logrus.WithError(err).Warn("Custodian balance unavailable")
	} else {
		stats.TreasuryBalance = &balance
	}

	return stats, nil
}

func countByStatus(db *gorm.DB, model interface{}) (map[string]int64, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	if err := db.Model(model).Select("status, COUNT(*) AS count").Group("status").Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to count by status: %w", err)
	}

	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.Status] = row.Count
	}
	return out, nil
}

// Settings Management
func (s *AdminService) GetSettings(ctx context.Context, actor string) (map[string]models.AdminSettings, error) {
	if err := authorize(ctx, s.identities, actor, models.CapabilitySystemAdmin); err != nil {
		return nil, err
	}

	var settings []models.AdminSettings
	if err := s.db.WithContext(ctx).Find(&settings).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch settings: %w", err)
	}

	settingsMap := make(map[string]models.AdminSettings)
	for _, setting := range settings {
		key := fmt.Sprintf("%s.%s", setting.Category, setting.Key)
		settingsMap[key] = setting
	}
	return settingsMap, nil
}

func (s *AdminService) GetAuditLogs(ctx context.Context, actor string, filter AuditLogFilter) ([]models.AuditLog, int64, error) {
	if err := authorize(ctx, s.identities, actor, models.CapabilitySystemAdmin); err != nil {
		return nil, 0, err
	}

	query := s.db.WithContext(ctx).Model(&models.AuditLog{})
	if filter.Owner != "" {
		query = query.Where("identity = ?", filter.Owner)
	}
	if filter.Action != "" {
		query = query.Where("action = ?", filter.Action)
	}
	if filter.ResourceType != "" {
		query = query.Where("resource_type = ?", filter.ResourceType)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count audit logs: %w", err)
	}

	var logs []models.AuditLog
	query = utils.ApplySort(query, filter.PaginationParams, []string{"created_at", "action", "status_code"})
	if err := utils.ApplyPagination(query, filter.PaginationParams).Find(&logs).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list audit logs: %w", err)
	}
	return logs, total, nil
}
