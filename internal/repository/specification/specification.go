package specification

import "gorm.io/gorm"

// Specification is a composable query fragment. Repositories fold a list of
// these over the base query, so callers describe what they want without
// touching gorm directly.
type Specification interface {
	Apply(db *gorm.DB) *gorm.DB
}
