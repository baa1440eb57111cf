package devserver

import (
	"fmt"
	"strconv"
	"sync"
	"time"
)

// Subcategory is a kind of waste with its score per unit. ScorePerUnit is a
// decimal string, as the production API renders decimals.
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

var defaultSubcategories = []Subcategory{
	{ID: 1, Name: "Plastic bottles", Category: 1, Description: "PET drink bottles", ScorePerUnit: "2.00", Unit: "item", IsActive: true},
	{ID: 2, Name: "Glass jars", Category: 1, Description: "Rinsed glass containers", ScorePerUnit: "1.50", Unit: "item", IsActive: true},
	{ID: 3, Name: "Cardboard", Category: 1, Description: "Flattened boxes", ScorePerUnit: "0.50", Unit: "kg", IsActive: true},
	{ID: 4, Name: "Food scraps", Category: 2, Description: "Kitchen compost", ScorePerUnit: "1.00", Unit: "kg", IsActive: true},
	{ID: 5, Name: "Batteries", Category: 3, Description: "Household batteries", ScorePerUnit: "5.00", Unit: "item", IsActive: true},
}

var defaultTemplates = []GoalTemplate{
	{ID: 1, Name: "Bottle collector", Description: "Recycle plastic bottles", CategoryName: "Recycling", Target: 20, Timeframe: "weekly"},
	{ID: 2, Name: "Glass week", Description: "Return glass jars", CategoryName: "Recycling", Target: 10, Timeframe: "weekly"},
	{ID: 3, Name: "Compost habit", Description: "Compost food scraps", CategoryName: "Composting", Target: 15, Timeframe: "monthly"},
	{ID: 4, Name: "Box breaker", Description: "Recycle cardboard", CategoryName: "Recycling", Target: 5, Timeframe: "monthly"},
	{ID: 5, Name: "Battery drop", Description: "Dispose of batteries safely", CategoryName: "Hazardous", Target: 4, Timeframe: "monthly"},
}

// catalog holds the shared reference data plus each user's goals and logs.
type catalog struct {
	mu            sync.RWMutex
	subcategories []Subcategory
	templates     []GoalTemplate
	goals         map[int][]Goal
	logs          map[int][]WasteLog
	nextGoalID    int
	nextLogID     int
}

func newCatalog() *catalog {
	return &catalog{
		subcategories: append([]Subcategory{}, defaultSubcategories...),
		templates:     append([]GoalTemplate{}, defaultTemplates...),
		goals:         make(map[int][]Goal),
		logs:          make(map[int][]WasteLog),
		nextGoalID:    1,
		nextLogID:     1,
	}
}

func (c *catalog) subcategory(id int) (Subcategory, bool) {
	for _, s := range c.subcategories {
		if s.ID == id {
			return s, true
		}
	}
	return Subcategory{}, false
}

func (c *catalog) listSubcategories() []Subcategory {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Subcategory{}, c.subcategories...)
}

func (c *catalog) listTemplates() []GoalTemplate {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]GoalTemplate{}, c.templates...)
}

func (c *catalog) listGoals(userID int) []Goal {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Goal{}, c.goals[userID]...)
}

func (c *catalog) listLogs(userID int) []WasteLog {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]WasteLog{}, c.logs[userID]...)
}

// addGoal creates a goal for a subcategory. The field error map is non-nil when
// the input is rejected.
func (c *catalog) addGoal(userID, subcategoryID int, timeframe string, target int) (Goal, map[string][]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sub, ok := c.subcategory(subcategoryID)
	if !ok {
		return Goal{}, map[string][]string{"category": {fmt.Sprintf("Invalid pk \"%d\" - object does not exist.", subcategoryID)}}
	}
	switch timeframe {
	case "daily", "weekly", "monthly":
	default:
		return Goal{}, map[string][]string{"timeframe": {fmt.Sprintf("\"%s\" is not a valid choice.", timeframe)}}
	}
	if target <= 0 {
		return Goal{}, map[string][]string{"target": {"Ensure this value is greater than or equal to 1."}}
	}

	now := time.Now().UTC()
	g := Goal{
		ID:        c.nextGoalID,
		Category:  sub,
		Timeframe: timeframe,
		Target:    target,
		CreatedAt: now,
		StartDate: now.Format(time.DateOnly),
		Status:    "in_progress",
	}
	c.nextGoalID++
	c.goals[userID] = append(c.goals[userID], g)
	return g, nil
}

// addLog records a disposal and credits matching goals. Score is quantity times
// the subcategory's score per unit.
func (c *catalog) addLog(userID, subcategoryID int, quantity float64, disposalDate, location string) (WasteLog, map[string][]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sub, ok := c.subcategory(subcategoryID)
	if !ok {
		return WasteLog{}, map[string][]string{"sub_category": {fmt.Sprintf("Invalid pk \"%d\" - object does not exist.", subcategoryID)}}
	}
	if quantity <= 0 {
		return WasteLog{}, map[string][]string{"quantity": {"Ensure this value is greater than 0."}}
	}
	if disposalDate == "" {
		disposalDate = time.Now().UTC().Format(time.DateOnly)
	} else if _, err := time.Parse(time.DateOnly, disposalDate); err != nil {
		return WasteLog{}, map[string][]string{"disposal_date": {"Date has wrong format. Use one of these formats instead: YYYY-MM-DD."}}
	}

	perUnit, _ := strconv.ParseFloat(sub.ScorePerUnit, 64)
	l := WasteLog{
		ID:               c.nextLogID,
		SubCategoryName:  sub.Name,
		Quantity:         strconv.FormatFloat(quantity, 'f', 2, 64),
		Unit:             sub.Unit,
		DateLogged:       time.Now().UTC(),
		DisposalDate:     disposalDate,
		DisposalLocation: location,
		Score:            quantity * perUnit,
		SubCategory:      sub.ID,
	}
	c.nextLogID++
	c.logs[userID] = append(c.logs[userID], l)

	goals := c.goals[userID]
	for i := range goals {
		if goals[i].Category.ID != sub.ID || goals[i].IsComplete {
			continue
		}
		goals[i].Progress += int(quantity)
		if goals[i].Progress >= goals[i].Target {
			goals[i].IsComplete = true
			goals[i].Status = "completed"
		}
	}
	return l, nil
}
