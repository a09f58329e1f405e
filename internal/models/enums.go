package models

import (
	"encoding/json"
	"sort"
	"strings"
)

// Category is a MyPlate nutrition group
type Category string

const (
	CategoryFruits     Category = "Fruits"
	CategoryVegetables Category = "Vegetables"
	CategoryDairy      Category = "Dairy"
	CategoryProteins   Category = "Proteins"
	CategoryGrains     Category = "Grains"
	CategoryOther      Category = "Other"
)

// Categories lists every category in display order
var Categories = []Category{
	CategoryFruits,
	CategoryVegetables,
	CategoryDairy,
	CategoryProteins,
	CategoryGrains,
	CategoryOther,
}

func (c Category) IsValid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Tag is a dietary indicator or an allergen
type Tag string

// Dietary indicators
const (
	DietVegan      Tag = "vegan"
	DietVegetarian Tag = "vegetarian"
	DietGlutenFree Tag = "gluten-free"
	DietLowSodium  Tag = "low-sodium"
	DietSugarFree  Tag = "sugar-free"
	DietDairyFree  Tag = "dairy-free"
)

// Allergens
const (
	AllergenMilk      Tag = "milk"
	AllergenEggs      Tag = "eggs"
	AllergenFish      Tag = "fish"
	AllergenShellfish Tag = "shellfish"
	AllergenTreeNuts  Tag = "tree nuts"
	AllergenPeanuts   Tag = "peanuts"
	AllergenGluten    Tag = "gluten"
	AllergenSoybeans  Tag = "soybeans"
)

// TagKind separates the tag vocabularies in storage
type TagKind string

const (
	TagKindDietary  TagKind = "dietary"
	TagKindAllergen TagKind = "allergen"

	// TagKindEligibility holds program names such as "SNAP" or "WIC"; any
	// non-blank tag is accepted
	TagKindEligibility TagKind = "eligibility"
)

var vocabulary = map[TagKind]map[Tag]struct{}{
	TagKindDietary: {
		DietVegan: {}, DietVegetarian: {}, DietGlutenFree: {},
		DietLowSodium: {}, DietSugarFree: {}, DietDairyFree: {},
	},
	TagKindAllergen: {
		AllergenMilk: {}, AllergenEggs: {}, AllergenFish: {}, AllergenShellfish: {},
		AllergenTreeNuts: {}, AllergenPeanuts: {}, AllergenGluten: {}, AllergenSoybeans: {},
	},
}

// Known reports whether tag belongs to the vocabulary of kind
func (k TagKind) Known(tag Tag) bool {
	known, closed := vocabulary[k]
	if !closed {
		return strings.TrimSpace(string(tag)) != ""
	}
	_, ok := known[tag]
	return ok
}

// TagSet is an unordered set of tags; it serializes as a sorted JSON array
type TagSet map[Tag]struct{}

func NewTagSet(tags ...Tag) TagSet {
	set := make(TagSet, len(tags))
	for _, tag := range tags {
		set[tag] = struct{}{}
	}
	return set
}

func (s TagSet) Has(tag Tag) bool {
	_, ok := s[tag]
	return ok
}

// HasAll reports whether every tag is present
func (s TagSet) HasAll(tags ...Tag) bool {
	for _, tag := range tags {
		if !s.Has(tag) {
			return false
		}
	}
	return true
}

// Intersects reports whether the sets share at least one tag
func (s TagSet) Intersects(other TagSet) bool {
	for tag := range other {
		if s.Has(tag) {
			return true
		}
	}
	return false
}

// Sorted returns the tags in lexical order
func (s TagSet) Sorted() []Tag {
	tags := make([]Tag, 0, len(s))
	for tag := range s {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	return tags
}

// Unknown returns the tags that are not part of kind's vocabulary
func (s TagSet) Unknown(kind TagKind) []Tag {
	var unknown []Tag
	for _, tag := range s.Sorted() {
		if !kind.Known(tag) {
			unknown = append(unknown, tag)
		}
	}
	return unknown
}

func (s TagSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

func (s *TagSet) UnmarshalJSON(data []byte) error {
	var tags []Tag
	if err := json.Unmarshal(data, &tags); err != nil {
		return err
	}
	*s = NewTagSet(tags...)
	return nil
}

// FulfillmentMethod is how a client receives an order
type FulfillmentMethod string

const (
	FulfillmentPickup         FulfillmentMethod = "Pickup"
	FulfillmentCurbside       FulfillmentMethod = "Curbside"
	FulfillmentDelivery       FulfillmentMethod = "Delivery"
	FulfillmentInPersonPickup FulfillmentMethod = "In-Person Pickup"
	FulfillmentSatellite      FulfillmentMethod = "Satellite"
)

func (m FulfillmentMethod) IsValid() bool {
	switch m {
	case FulfillmentPickup, FulfillmentCurbside, FulfillmentDelivery,
		FulfillmentInPersonPickup, FulfillmentSatellite:
		return true
	}
	return false
}

// OrderStatus is the order state machine position
type OrderStatus string

// Order statuses
const (
	OrderStatusPending   OrderStatus = "Pending"
	OrderStatusReady     OrderStatus = "Ready"
	OrderStatusCompleted OrderStatus = "Completed"
	OrderStatusCancelled OrderStatus = "Cancelled"
)

var transitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending: {OrderStatusReady, OrderStatusCancelled},
	OrderStatusReady:   {OrderStatusCompleted, OrderStatusCancelled},
}

func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusPending, OrderStatusReady, OrderStatusCompleted, OrderStatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no transition leaves s
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

// CanTransition reports whether s may move to next
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
