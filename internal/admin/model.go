package admin

import (
	"time"

	"github.com/google/uuid"
)

// Stats is the dashboard headline.
type Stats struct {
	TotalUsers        int `json:"totalUsers"`
	TotalIssues       int `json:"totalIssues"`
	PendingModeration int `json:"pendingModeration"`
	ResolvedThisMonth int `json:"resolvedThisMonth"`
	ActiveCategories  int `json:"activeCategories"`
	ActiveCities      int `json:"activeCities"`
}

// DayCount is one grouped row from the issues table.
type DayCount struct {
	Day      time.Time
	Reported int
	Resolved int
}

// TrendPoint is one day of the trend series.
type TrendPoint struct {
	Date     string `json:"date"`
	Reported int    `json:"reported"`
	Resolved int    `json:"resolved"`
}

const (
	trendDays     = 7
	activityLimit = 10
	usersLimit    = 50
	dayLayout     = "2006-01-02"
)

type UpdateUserInput struct {
	IsSuspended    *bool      `json:"isSuspended"`
	AssignedCityID *uuid.UUID `json:"assignedCityId"`
	ClearCity      bool       `json:"clearAssignedCity"`
}
