package common

import (
	"fmt"
	"regexp"
	"slices"
)

// Collection describes a named set of records and the fields it can be
// looked up by besides its id.
type Collection struct {
	Name    string
	Indexes []string
}

// HasIndex reports whether field is a declared index of c.
func (c Collection) HasIndex(field string) bool {
	return slices.Contains(c.Indexes, field)
}

// HospitalCollections is the catalogue served by the dashboard.
var HospitalCollections = []Collection{
	{Name: "patients", Indexes: []string{"status", "ward"}},
	{Name: "doctors", Indexes: []string{"department", "status"}},
	{Name: "appointments", Indexes: []string{"patientId", "doctorId", "date", "status"}},
	{Name: "assessments", Indexes: []string{"patientId", "doctorId"}},
	{Name: "medications", Indexes: []string{"patientId", "status"}},
	{Name: "lab_tests", Indexes: []string{"patientId", "status"}},
	{Name: "invoices", Indexes: []string{"patientId", "status"}},
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdentifier reports whether s can be used as a collection name or an
// index field. Index fields end up inside generated SQL, so nothing else is
// accepted.
func ValidIdentifier(s string) bool {
	return identRe.MatchString(s)
}

// Catalogue is a lookup table over a list of collections.
type Catalogue struct {
	list   []Collection
	byName map[string]Collection
}

// NewCatalogue validates the collection list and indexes it by name.
func NewCatalogue(list []Collection) (*Catalogue, error) {
	c := &Catalogue{byName: make(map[string]Collection, len(list))}
	for _, col := range list {
		if !ValidIdentifier(col.Name) {
			return nil, fmt.Errorf("invalid collection name %q", col.Name)
		}
		if _, dup := c.byName[col.Name]; dup {
			return nil, fmt.Errorf("duplicate collection %q", col.Name)
		}
		for _, idx := range col.Indexes {
			if !ValidIdentifier(idx) {
				return nil, fmt.Errorf("invalid index %q on collection %q", idx, col.Name)
			}
		}
		c.byName[col.Name] = col
		c.list = append(c.list, col)
	}
	return c, nil
}

// Lookup returns the named collection or ErrUnknownCollection.
func (c *Catalogue) Lookup(name string) (Collection, error) {
	col, ok := c.byName[name]
	if !ok {
		return Collection{}, fmt.Errorf("%w: %q", ErrUnknownCollection, name)
	}
	return col, nil
}

// Names lists collection names in catalogue order.
func (c *Catalogue) Names() []string {
	out := make([]string, 0, len(c.list))
	for _, col := range c.list {
		out = append(out, col.Name)
	}
	return out
}

// All returns the collections in catalogue order.
func (c *Catalogue) All() []Collection {
	return slices.Clone(c.list)
}
