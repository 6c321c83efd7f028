package model

import "time"

// Spot statuses form a closed set; sensor payloads carrying anything else
// are rejected at the decoder.
const (
	StatusAvailable   = "Available"
	StatusOccupied    = "Occupied"
	StatusReserved    = "Reserved"
	StatusMaintenance = "Maintenance"
)

// AllStatuses lists every valid spot status. Cache warm-up and the status
// bucket layout iterate over this.
var AllStatuses = []string{StatusAvailable, StatusOccupied, StatusReserved, StatusMaintenance}

// ValidStatus reports whether s is a member of the status enumeration.
func ValidStatus(s string) bool {
	for _, v := range AllStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// ParkingSpot represents a single parking space.
type ParkingSpot struct {
	ID          int      `gorm:"primaryKey" json:"id"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
	Location    string   `gorm:"size:100;not null" json:"location"`
	City        string   `gorm:"size:50" json:"city"`
	Area        string   `gorm:"size:50" json:"area"`
	Status      string   `gorm:"size:20;not null;default:Available" json:"status"`
	LastUpdated time.Time `json:"last_updated"`

	// Associations
	PaidInfo *PaidParking `gorm:"foreignKey:SpotID" json:"paid_info,omitempty"`
}

// PaidParking holds pricing for paid spots. One-to-one with ParkingSpot.
type PaidParking struct {
	SpotID       int     `gorm:"primaryKey" json:"spot_id"`
	PricePerHour float64 `gorm:"type:numeric(8,2);not null" json:"price_per_hour"`
}

// PricePerHour returns the hourly price if the spot is paid, nil otherwise.
func (s *ParkingSpot) PricePerHour() *float64 {
	if s.PaidInfo == nil {
		return nil
	}
	return &s.PaidInfo.PricePerHour
}
