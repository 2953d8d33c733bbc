package models

import (
	"time"

	"gorm.io/datatypes"
)

// User is one chat participant, keyed by the messaging channel's stable id.
type User struct {
	ID        string    `gorm:"type:varchar(64);primaryKey" json:"id"`
	Name      string    `gorm:"type:varchar(128)" json:"name"`
	LastSeen  time.Time `gorm:"index" json:"last_seen"`
	TurnCount int       `gorm:"not null;default:0" json:"turn_count"`
}

func (User) TableName() string { return "users" }

// Category names. The set is fixed and seeded at migration time.
const (
	CategoryRestaurantInfo = "restaurant_info"
	CategoryFoodInfo       = "food_info"
	CategoryReservation    = "reservation"
	CategoryService        = "service"
	CategoryOthers         = "others"
)

type Category struct {
	ID          uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string `gorm:"type:varchar(32);uniqueIndex;not null" json:"name"`
	Description string `gorm:"type:varchar(128)" json:"description"`
}

func (Category) TableName() string { return "message_categories" }

// DefaultCategories is the seed set written by store.Migrate.
var DefaultCategories = []Category{
	{Name: CategoryRestaurantInfo, Description: "餐廳資料詢問"},
	{Name: CategoryFoodInfo, Description: "食物資料詢問"},
	{Name: CategoryReservation, Description: "訂位相關"},
	{Name: CategoryService, Description: "其他服務"},
	{Name: CategoryOthers, Description: "其他查詢"},
}

// IsCategory reports whether name is one of the fixed categories.
func IsCategory(name string) bool {
	for _, c := range DefaultCategories {
		if c.Name == name {
			return true
		}
	}
	return false
}

// Turn is one logged exchange. Rows are append-only.
type Turn struct {
	ID         uint64         `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID     string         `gorm:"type:varchar(64);not null;index:idx_turn_user_created,priority:1" json:"user_id"`
	UserName   string         `gorm:"type:varchar(128)" json:"user_name"`
	Message    string         `gorm:"type:text" json:"message"`
	Response   string         `gorm:"type:text" json:"response"`
	CategoryID *uint          `gorm:"index" json:"category_id"`
	Category   *Category      `gorm:"foreignKey:CategoryID" json:"category,omitempty"`
	Context    string         `gorm:"type:text" json:"context"`
	Metadata   datatypes.JSON `json:"metadata"`
	CreatedAt  time.Time      `gorm:"index:idx_turn_user_created,priority:2" json:"created_at"`

	User *User `gorm:"foreignKey:UserID" json:"-"`
}

func (Turn) TableName() string { return "chat_history" }

type ReservationStatus string

const (
	ReservationPending   ReservationStatus = "PENDING_CONFIRMATION"
	ReservationConfirmed ReservationStatus = "CONFIRMED"
	ReservationCancelled ReservationStatus = "CANCELLED"
)

func (s ReservationStatus) Valid() bool {
	switch s {
	case ReservationPending, ReservationConfirmed, ReservationCancelled:
		return true
	}
	return false
}

// Reservation dates are stored as "2006-01-02" and times as "15:04".
type Reservation struct {
	ID              uint64            `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID          string            `gorm:"type:varchar(64);not null;index" json:"user_id"`
	UserName        string            `gorm:"type:varchar(128)" json:"user_name"`
	Date            string            `gorm:"column:reservation_date;type:varchar(10);not null;index:idx_res_date_time,priority:1" json:"reservation_date"`
	Time            string            `gorm:"column:reservation_time;type:varchar(5);not null;index:idx_res_date_time,priority:2" json:"reservation_time"`
	PartySize       int               `gorm:"column:number_of_people;not null" json:"number_of_people"`
	SpecialRequests *string           `gorm:"type:text" json:"special_requests"`
	Status          ReservationStatus `gorm:"type:varchar(32);not null;default:PENDING_CONFIRMATION;index" json:"status"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`

	User *User `gorm:"foreignKey:UserID" json:"-"`
}

func (Reservation) TableName() string { return "table_reservations" }

type SupportStatus string

const (
	SupportPending  SupportStatus = "PENDING"
	SupportResolved SupportStatus = "RESOLVED"
)

// Support request types written by the escalation manager.
const (
	SupportPartySize  = "reservation_party_size"
	SupportCapacity   = "reservation_capacity"
	SupportExtraction = "reservation_extraction"
)

type SupportRequest struct {
	ID         uint64        `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID     string        `gorm:"type:varchar(64);not null;index" json:"user_id"`
	UserName   string        `gorm:"type:varchar(128)" json:"user_name"`
	Type       string        `gorm:"column:request_type;type:varchar(64);not null;index" json:"request_type"`
	Message    string        `gorm:"type:text;not null" json:"message"`
	Status     SupportStatus `gorm:"type:varchar(16);not null;default:PENDING;index" json:"status"`
	CreatedAt  time.Time     `json:"created_at"`
	ResolvedAt *time.Time    `json:"resolved_at"`
	ResolvedBy string        `gorm:"type:varchar(128)" json:"resolved_by"`
	Notes      string        `gorm:"type:text" json:"notes"`

	User *User `gorm:"foreignKey:UserID" json:"-"`
}

func (SupportRequest) TableName() string { return "human_support_requests" }

// ReservationDraft holds the fields gathered so far in a user's reservation
// dialogue. There is at most one draft per user.
type ReservationDraft struct {
	UserID          string    `gorm:"type:varchar(64);primaryKey" json:"user_id"`
	Date            string    `gorm:"type:varchar(10)" json:"reservation_date,omitempty"`
	Time            string    `gorm:"type:varchar(5)" json:"reservation_time,omitempty"`
	PartySize       int       `json:"number_of_people,omitempty"`
	SpecialRequests *string   `gorm:"type:text" json:"special_requests,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (ReservationDraft) TableName() string { return "reservation_drafts" }

// Complete reports whether date, time and party size are all known.
func (d *ReservationDraft) Complete() bool {
	return d != nil && d.Date != "" && d.Time != "" && d.PartySize > 0
}
