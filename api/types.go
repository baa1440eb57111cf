package api

import "time"

type Profile struct {
	ID                   int       `json:"id"`
	Username             string    `json:"username"`
	Email                string    `json:"email"`
	FirstName            string    `json:"first_name"`
	LastName             string    `json:"last_name"`
	Bio                  string    `json:"bio"`
	City                 string    `json:"city"`
	Country              string    `json:"country"`
	Role                 string    `json:"role"`
	DateJoined           time.Time `json:"date_joined"`
	NotificationsEnabled bool      `json:"notifications_enabled"`
}

// ProfileUpdate is a partial update; nil fields are left unchanged.
type ProfileUpdate struct {
	FirstName            *string `json:"first_name,omitempty"`
	LastName             *string `json:"last_name,omitempty"`
	Bio                  *string `json:"bio,omitempty"`
	City                 *string `json:"city,omitempty"`
	Country              *string `json:"country,omitempty"`
	NotificationsEnabled *bool   `json:"notifications_enabled,omitempty"`
}

// Subcategory is a kind of waste. ScorePerUnit is the backend's decimal string.
type Subcategory struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	Category     int    `json:"category"`
	Description  string `json:"description"`
	ScorePerUnit string `json:"score_per_unit"`
	Unit         string `json:"unit"`
	IsActive     bool   `json:"is_active"`
}

type GoalTemplate struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	CategoryName string `json:"category_name"`
	Target       int    `json:"target"`
	Timeframe    string `json:"timeframe"`
}

type Goal struct {
	ID         int         `json:"id"`
	Category   Subcategory `json:"category"`
	Timeframe  string      `json:"timeframe"`
	Target     int         `json:"target"`
	Progress   int         `json:"progress"`
	IsComplete bool        `json:"is_complete"`
	CreatedAt  time.Time   `json:"created_at"`
	StartDate  string      `json:"start_date"`
	Status     string      `json:"status"`
}

// NewGoal creates a goal for a subcategory. Timeframe is daily, weekly or monthly.
type NewGoal struct {
	Category  int    `json:"category"`
	Timeframe string `json:"timeframe"`
	Target    int    `json:"target"`
}

type WasteLog struct {
	ID               int       `json:"id"`
	SubCategoryName  string    `json:"sub_category_name"`
	Quantity         string    `json:"quantity"`
	Unit             string    `json:"unit"`
	DateLogged       time.Time `json:"date_logged"`
	DisposalDate     string    `json:"disposal_date"`
	DisposalLocation string    `json:"disposal_location"`
	Score            float64   `json:"score"`
	SubCategory      int       `json:"sub_category"`
}

// NewWasteLog records a disposal. Quantity is a decimal string such as "2.5";
// DisposalDate is YYYY-MM-DD and defaults to today on the backend.
type NewWasteLog struct {
	SubCategory      int    `json:"sub_category"`
	Quantity         string `json:"quantity"`
	DisposalDate     string `json:"disposal_date,omitempty"`
	DisposalLocation string `json:"disposal_location,omitempty"`
}
