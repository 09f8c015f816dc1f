package models

const (
	DefaultPageLimit = 10
	MaxPageLimit     = 100
)

type PageRequest struct {
	Page  int
	Limit int
}

// Normalize clamps the request into a valid range.
func (p PageRequest) Normalize() PageRequest {
	if p.Page < 1 {
		p.Page = 1
	}

	switch {
	case p.Limit < 1:
		p.Limit = DefaultPageLimit
	case p.Limit > MaxPageLimit:
		p.Limit = MaxPageLimit
	}

	return p
}

func (p PageRequest) Offset() int {
	return (p.Page - 1) * p.Limit
}

type Page[T any] struct {
	Items []T `json:"items"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
}
