package dto

// MediaItemRequest carries a single library item create/update payload.
type MediaItemRequest struct {
	ID              string   `json:"id"`
	Title           string   `json:"title" validate:"required"`
	Type            string   `json:"type" validate:"required,oneof=movie episode"`
	DurationSeconds int      `json:"durationSeconds" validate:"required,min=1"`
	Genres          []string `json:"genres"`
	AgeRating       string   `json:"ageRating"`
	Rating          float64  `json:"rating" validate:"omitempty,min=0,max=10"`
	Keywords        []string `json:"keywords"`
	Studio          string   `json:"studio"`
	CollectionID    string   `json:"collectionId"`
	CollectionIndex int      `json:"collectionIndex" validate:"omitempty,min=0"`
	Blockbuster     bool     `json:"blockbuster"`
	Filler          bool     `json:"filler"`
}

// ImportLibraryRequest bulk-loads or refreshes library items.
type ImportLibraryRequest struct {
	Items []MediaItemRequest `json:"items" validate:"required,min=1,dive"`
}

// ImportLibraryResponse summarises a bulk import.
type ImportLibraryResponse struct {
	Imported int `json:"imported"`
}

// MediaQuery filters library listings.
type MediaQuery struct {
	Type      string `form:"type" json:"type"`
	Genre     string `form:"genre" json:"genre"`
	Studio    string `form:"studio" json:"studio"`
	Search    string `form:"search" json:"search"`
	Filler    *bool  `form:"filler" json:"filler,omitempty"`
	Page      int    `form:"page" json:"page"`
	PageSize  int    `form:"pageSize" json:"pageSize"`
	SortBy    string `form:"sortBy" json:"sortBy"`
	SortOrder string `form:"sortOrder" json:"sortOrder"`
}
