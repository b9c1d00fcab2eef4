package dto

import "github.com/lineup-tv/lineup-api/internal/models"

// ProfileRequest carries profile create/update payloads. Structural checks
// run through the validator; block geometry and rule semantics are checked
// by the profile itself.
type ProfileRequest struct {
	Name       string             `json:"name" validate:"required"`
	Blocks     []models.TimeBlock `json:"blocks" validate:"required,min=1"`
	Weights    models.WeightMap   `json:"weights"`
	Rules      models.RuleSet     `json:"rules"`
	Iterations int                `json:"iterations" validate:"omitempty,min=1,max=10000"`
	AllowReuse bool               `json:"allowReuse"`
}

// ProfileQuery filters profile listings.
type ProfileQuery struct {
	Search   string `form:"search" json:"search"`
	Page     int    `form:"page" json:"page"`
	PageSize int    `form:"pageSize" json:"pageSize"`
}
