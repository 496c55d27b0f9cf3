package query

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Reserved control keys. Everything else in the params is an equality filter.
const (
	KeySearchTerm = "searchTerm"
	KeySort       = "sort"
	KeyLimit      = "limit"
	KeyPage       = "page"
	KeyFields     = "fields"
	KeyMinPrice   = "minPrice"
	KeyMaxPrice   = "maxPrice"
)

var reserved = map[string]struct{}{
	KeySearchTerm: {}, KeySort: {}, KeyLimit: {}, KeyPage: {},
	KeyFields: {}, KeyMinPrice: {}, KeyMaxPrice: {},
}

const (
	DefaultPage  = 1
	DefaultLimit = 10
)

type Kind int

const (
	Text Kind = iota
	UUID
	Number
	Integer
	Bool
	Time
)

// Field exposes a column under its API name.
type Field struct {
	Name   string
	Column string
	Kind   Kind
}

// Resource describes a listable table.
type Resource struct {
	Table      string
	Fields     []Field
	Key        string
	Created    string
	Hidden     string
	Price      string
	Searchable []string
	Enums      map[string][]string

	// Relations are keys rendered next to the columns but loaded separately,
	// such as an order's line items.
	Relations []string
}

// Field returns the field registered under name.
func (r *Resource) Field(name string) (Field, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

func (f Field) searchExpr() string {
	if f.Kind == Text {
		return f.Column
	}
	return f.Column + "::text"
}

// convert parses a raw parameter into the Go value bound for the column.
func (f Field) convert(raw string) (any, error) {
	switch f.Kind {
	case UUID:
		return uuid.Parse(raw)
	case Number:
		return decimal.NewFromString(raw)
	case Integer:
		return strconv.Atoi(raw)
	case Bool:
		return strconv.ParseBool(raw)
	case Time:
		return time.Parse(time.RFC3339, raw)
	case Text:
		return raw, nil
	}
	return nil, fmt.Errorf("unsupported kind %d", f.Kind)
}
