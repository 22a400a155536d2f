package category

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

type Color string

const (
	Blue   Color = "blue"
	Green  Color = "green"
	Red    Color = "red"
	Yellow Color = "yellow"
	Purple Color = "purple"
	Indigo Color = "indigo"
	Pink   Color = "pink"
	Gray   Color = "gray"

	DefaultColor = Blue
)

// Palette lists the colors a category may use, in display order.
var Palette = []Color{Blue, Green, Red, Yellow, Purple, Indigo, Pink, Gray}

// Defaults are seeded for a user who has no categories yet.
var Defaults = []string{"Food", "Transport", "Utilities", "Entertainment", "Health", "Shopping", "Housing", "Education"}

var (
	ErrCategoryNotFound = errors.New("category not found")
	ErrDuplicateName    = errors.New("category name already exists")
	ErrEmptyName        = errors.New("category name must not be empty")
	ErrInvalidColor     = errors.New("unknown category color")
)

// Category is a named, colored tag. Expenses reference categories by Name only;
// removing a category leaves expenses pointing at the old name.
type Category struct {
	ID    int64
	Name  string
	Color Color
}

func (c Color) Valid() bool {
	return slices.Contains(Palette, c)
}

// Normalize trims the name and applies the default color.
func (c Category) Normalize() Category {
	c.Name = strings.TrimSpace(c.Name)
	if c.Color == "" {
		c.Color = DefaultColor
	}
	return c
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyName
	}
	if c.Color != "" && !c.Color.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidColor, c.Color)
	}
	return nil
}

// Names returns the category names in order.
func Names(categories []Category) []string {
	names := make([]string, 0, len(categories))
	for _, c := range categories {
		names = append(names, c.Name)
	}
	return names
}
