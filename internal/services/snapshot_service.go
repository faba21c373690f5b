// internal/services/snapshot_service.go
package services

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/netwarden/backend/internal/models"
)

// SnapshotService materializes the current view of a network. The same
// snapshot feeds the websocket hello frame and the HTTP status pull, so a
// client that reconnects and one that polls always see the same shape.
type SnapshotService struct {
	db             *gorm.DB
	intruderWindow time.Duration
}

// NetworkSnapshot is the full state a subscriber receives on connect.
type NetworkSnapshot struct {
	NetworkID       uuid.UUID            `json:"network_id"`
	GeneratedAt     time.Time            `json:"generated_at"`
	Members         []models.User        `json:"members"`
	OnlineDevices   []models.Device      `json:"online_devices"`
	PendingRequests []models.JoinRequest `json:"pending_requests"`
	RecentIntruders []models.IntruderLog `json:"recent_intruders"`
}

func NewSnapshotService(db *gorm.DB, intruderWindow time.Duration) *SnapshotService {
	if intruderWindow <= 0 {
		intruderWindow = 10 * time.Minute
	}
	return &SnapshotService{db: db, intruderWindow: intruderWindow}
}

// BuildNetworkSnapshot assembles the view: active members, their online
// unblocked devices, undecided requests, and fresh detections inside the
// intruder window. All reads run in one transaction so a concurrent commit
// is either fully visible or not at all.
func (s *SnapshotService) BuildNetworkSnapshot(networkID uuid.UUID) (*NetworkSnapshot, error) {
	snapshot := &NetworkSnapshot{
		NetworkID:       networkID,
		GeneratedAt:     time.Now().UTC(),
		Members:         []models.User{},
		OnlineDevices:   []models.Device{},
		PendingRequests: []models.JoinRequest{},
		RecentIntruders: []models.IntruderLog{},
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var memberIDs []uuid.UUID
		if err := tx.Model(&models.NetworkMembership{}).
			Where("network_id = ? AND active = ?", networkID, true).
			Pluck("user_id", &memberIDs).Error; err != nil {
			return fmt.Errorf("failed to load memberships: %w", err)
		}

		if len(memberIDs) > 0 {
			if err := tx.Where("id IN ?", memberIDs).
				Order("full_name ASC").
				Find(&snapshot.Members).Error; err != nil {
				return fmt.Errorf("failed to load members: %w", err)
			}

			if err := tx.Where("user_id IN ? AND status = ? AND is_blocked = ?",
				memberIDs, models.DeviceOnline, false).
				Order("last_seen DESC").
				Find(&snapshot.OnlineDevices).Error; err != nil {
				return fmt.Errorf("failed to load devices: %w", err)
			}
		}

		if err := tx.Where("network_id = ? AND status IN ?", networkID,
			[]models.JoinRequestStatus{models.JoinRequestPending, models.JoinRequestRecommended}).
			Preload("User").Preload("Device").
			Order("created_at ASC").
			Find(&snapshot.PendingRequests).Error; err != nil {
			return fmt.Errorf("failed to load pending requests: %w", err)
		}

		since := time.Now().Add(-s.intruderWindow)
		if err := tx.Where("network_id = ? AND status = ? AND created_at > ?",
			networkID, models.IntruderDetected, since).
			Order("created_at DESC").
			Find(&snapshot.RecentIntruders).Error; err != nil {
			return fmt.Errorf("failed to load recent intruders: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return snapshot, nil
}

// CompanySnapshot summarizes all of a company's networks for the company
// scope hello frame.
type CompanySnapshot struct {
	CompanyID   uuid.UUID        `json:"company_id"`
	GeneratedAt time.Time        `json:"generated_at"`
	Networks    []NetworkSummary `json:"networks"`
}

type NetworkSummary struct {
	NetworkID       uuid.UUID `json:"network_id"`
	Name            string    `json:"name"`
	MemberCount     int64     `json:"member_count"`
	OnlineDevices   int64     `json:"online_devices"`
	PendingRequests int64     `json:"pending_requests"`
	FreshIntruders  int64     `json:"fresh_intruders"`
}

func (s *SnapshotService) BuildCompanySnapshot(companyID uuid.UUID) (*CompanySnapshot, error) {
	snapshot := &CompanySnapshot{
		CompanyID:   companyID,
		GeneratedAt: time.Now().UTC(),
		Networks:    []NetworkSummary{},
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var networks []models.Network
		if err := tx.Where("company_id = ?", companyID).Order("name ASC").Find(&networks).Error; err != nil {
			return fmt.Errorf("failed to load networks: %w", err)
		}

		since := time.Now().Add(-s.intruderWindow)
		for _, network := range networks {
			summary := NetworkSummary{NetworkID: network.ID, Name: network.Name}

			if err := tx.Model(&models.NetworkMembership{}).
				Where("network_id = ? AND active = ?", network.ID, true).
				Count(&summary.MemberCount).Error; err != nil {
				return fmt.Errorf("failed to count members: %w", err)
			}

			if err := tx.Model(&models.Device{}).
				Joins("JOIN network_memberships ON network_memberships.user_id = devices.user_id").
				Where("network_memberships.network_id = ? AND network_memberships.active = ?", network.ID, true).
				Where("devices.status = ? AND devices.is_blocked = ?", models.DeviceOnline, false).
				Where("devices.deleted_at IS NULL").
				Count(&summary.OnlineDevices).Error; err != nil {
				return fmt.Errorf("failed to count devices: %w", err)
			}

			if err := tx.Model(&models.JoinRequest{}).
				Where("network_id = ? AND status IN ?", network.ID,
					[]models.JoinRequestStatus{models.JoinRequestPending, models.JoinRequestRecommended}).
				Count(&summary.PendingRequests).Error; err != nil {
				return fmt.Errorf("failed to count requests: %w", err)
			}

			if err := tx.Model(&models.IntruderLog{}).
				Where("network_id = ? AND status = ? AND created_at > ?", network.ID, models.IntruderDetected, since).
				Count(&summary.FreshIntruders).Error; err != nil {
				return fmt.Errorf("failed to count intruders: %w", err)
			}

			snapshot.Networks = append(snapshot.Networks, summary)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return snapshot, nil
}
