package taxonomy

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("taxonomy: not found")

type State struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Code      string    `json:"code"`
	CreatedAt time.Time `json:"createdAt"`
}

type City struct {
	ID             uuid.UUID  `json:"id"`
	Name           string     `json:"name"`
	StateID        uuid.UUID  `json:"stateId"`
	StateName      string     `json:"stateName"`
	IsActive       bool       `json:"isActive"`
	PilotStartDate *time.Time `json:"pilotStartDate"`
	CreatedAt      time.Time  `json:"createdAt"`
}

type Ward struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Number    string    `json:"number"`
	CityID    uuid.UUID `json:"cityId"`
	CreatedAt time.Time `json:"createdAt"`
}

type Department struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Code      string    `json:"code"`
	CityID    uuid.UUID `json:"cityId"`
	CreatedAt time.Time `json:"createdAt"`
}

type Category struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Description string    `json:"description"`
	Icon        string    `json:"icon"`
	SortOrder   int       `json:"sortOrder"`
	IsActive    bool      `json:"isActive"`
	CreatedAt   time.Time `json:"createdAt"`
}
