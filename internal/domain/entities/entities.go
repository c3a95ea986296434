package entities

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Common errors
var (
	ErrShelfNotFound     = errors.New("shelf not found")
	ErrProductNotFound   = errors.New("product not found")
	ErrDuplicateShelf    = errors.New("shelf with this ID already exists")
	ErrDuplicateProduct  = errors.New("product with this ID already exists")
	ErrValidation        = errors.New("validation failed")
	ErrPersistence       = errors.New("failed to persist document")
	ErrDocumentCorrupt   = errors.New("stored document is corrupt")
	ErrSeedInvalid       = errors.New("invalid seed catalog")
	ErrFeedNotConfigured = errors.New("media feed not configured")
	ErrBackupNotFound    = errors.New("backup not found")
)

// CardType selects the product card layout used by the storefront.
type CardType string

const (
	CardTypeHCard CardType = "hcard"
	CardTypeCCard CardType = "ccard"
)

// DefaultCardType and DefaultCardSize are applied by NormalizeProduct when
// neither the payload nor the stored record carries a value.
const (
	DefaultCardType CardType = CardTypeHCard
	DefaultCardSize CardSize = "40"
)

// IsValid reports whether the card type is one the storefront can render.
func (t CardType) IsValid() bool {
	switch t {
	case CardTypeHCard, CardTypeCCard:
		return true
	}
	return false
}

// CardSize is stored as a string ("40", "50", "60") but clients and seed
// files frequently send it as a number.
type CardSize string

// UnmarshalJSON accepts both string and numeric forms. A numeric zero is
// treated as absent.
func (s *CardSize) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		*s = ""
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = CardSize(str)
		return nil
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("cardSize must be a string or number: %w", err)
	}
	if n == 0 {
		*s = ""
		return nil
	}
	*s = CardSize(strconv.FormatFloat(n, 'f', -1, 64))
	return nil
}

// UnmarshalYAML mirrors UnmarshalJSON for seed files.
func (s *CardSize) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("cardSize must be a scalar, got kind %d", value.Kind)
	}
	switch value.ShortTag() {
	case "!!null":
		*s = ""
		return nil
	case "!!int", "!!float":
		n, err := strconv.ParseFloat(value.Value, 64)
		if err != nil {
			return fmt.Errorf("cardSize: %w", err)
		}
		if n == 0 {
			*s = ""
			return nil
		}
		*s = CardSize(strconv.FormatFloat(n, 'f', -1, 64))
		return nil
	}
	*s = CardSize(value.Value)
	return nil
}

var shelfIDPattern = regexp.MustCompile(`^[a-z0-9-]+$`)

// ValidShelfID reports whether id is a lowercase slug.
func ValidShelfID(id string) bool {
	return shelfIDPattern.MatchString(id)
}

// Document is the whole persisted catalog.
type Document struct {
	Shelves []Shelf `json:"shelves" yaml:"shelves"`
}

// Shelf is a named category holding an ordered list of products.
type Shelf struct {
	ID             string    `json:"id" yaml:"id"`
	Title          string    `json:"title" yaml:"title"`
	SecondaryTitle *string   `json:"secondaryTitle,omitempty" yaml:"secondaryTitle,omitempty"`
	Items          []Product `json:"items" yaml:"items"`

	Extra map[string]json.RawMessage `json:"-" yaml:"-"`
}

// Product is a single catalog card. Optional fields are pointers so that a
// partial update can tell "absent" apart from "set to empty". Keys the model
// does not know are kept in Extra.
type Product struct {
	ID                  string   `json:"id" yaml:"id" validate:"required"`
	Title               string   `json:"title" yaml:"title" validate:"required"`
	Type                CardType `json:"type,omitempty" yaml:"type,omitempty"`
	CardSize            CardSize `json:"cardSize,omitempty" yaml:"cardSize,omitempty"`
	Eyebrow             *string  `json:"eyebrow,omitempty" yaml:"eyebrow,omitempty"`
	Image               *string  `json:"image,omitempty" yaml:"image,omitempty"`
	ImageAlt            *string  `json:"imageAlt,omitempty" yaml:"imageAlt,omitempty"`
	Details             *string  `json:"details,omitempty" yaml:"details,omitempty"`
	Tag                 *string  `json:"tag,omitempty" yaml:"tag,omitempty"`
	PartNumber          *string  `json:"partNumber,omitempty" yaml:"partNumber,omitempty"`
	PrimaryButtonText   *string  `json:"primaryButtonText,omitempty" yaml:"primaryButtonText,omitempty"`
	PrimaryButtonLink   *string  `json:"primaryButtonLink,omitempty" yaml:"primaryButtonLink,omitempty"`
	SecondaryButtonText *string  `json:"secondaryButtonText,omitempty" yaml:"secondaryButtonText,omitempty"`
	SecondaryButtonLink *string  `json:"secondaryButtonLink,omitempty" yaml:"secondaryButtonLink,omitempty"`
	Colors              []string `json:"colors,omitempty" yaml:"colors,omitempty"`

	Extra map[string]json.RawMessage `json:"-" yaml:"-"`
}

// Business logic methods for Document

// FindShelf returns the index of the shelf with the given id, or -1.
func (d *Document) FindShelf(id string) int {
	for i := range d.Shelves {
		if d.Shelves[i].ID == id {
			return i
		}
	}
	return -1
}

// ProductCount returns the number of products across all shelves.
func (d *Document) ProductCount() int {
	total := 0
	for _, shelf := range d.Shelves {
		total += len(shelf.Items)
	}
	return total
}

// EnsureSequences replaces nil shelf and item slices with empty ones so the
// serialized form never contains null where an array is expected.
func (d *Document) EnsureSequences() {
	if d.Shelves == nil {
		d.Shelves = []Shelf{}
	}
	for i := range d.Shelves {
		if d.Shelves[i].Items == nil {
			d.Shelves[i].Items = []Product{}
		}
	}
}

// Validate checks the uniqueness invariants of the whole document.
func (d *Document) Validate() error {
	seen := make(map[string]struct{}, len(d.Shelves))
	for i := range d.Shelves {
		shelf := &d.Shelves[i]
		if shelf.ID == "" || shelf.Title == "" {
			return fmt.Errorf("%w: shelf %d: ID and title are required", ErrValidation, i)
		}
		if _, dup := seen[shelf.ID]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateShelf, shelf.ID)
		}
		seen[shelf.ID] = struct{}{}
		if err := shelf.ValidateItems(); err != nil {
			return err
		}
	}
	return nil
}

// Business logic methods for Shelf

// FindProduct returns the index of the product with the given id, or -1.
func (s *Shelf) FindProduct(id string) int {
	for i := range s.Items {
		if s.Items[i].ID == id {
			return i
		}
	}
	return -1
}

// ValidateItems checks that every item has an id and title, a renderable
// card type, and that product ids are unique within the shelf.
func (s *Shelf) ValidateItems() error {
	seen := make(map[string]struct{}, len(s.Items))
	for i := range s.Items {
		item := &s.Items[i]
		if item.ID == "" || item.Title == "" {
			return fmt.Errorf("%w: shelf %s item %d: ID and title are required", ErrValidation, s.ID, i)
		}
		if !item.Type.IsValid() {
			return fmt.Errorf("%w: product %s: unknown type %q", ErrValidation, item.ID, item.Type)
		}
		if _, dup := seen[item.ID]; dup {
			return fmt.Errorf("%w: %s in shelf %s", ErrDuplicateProduct, item.ID, s.ID)
		}
		seen[item.ID] = struct{}{}
	}
	return nil
}
