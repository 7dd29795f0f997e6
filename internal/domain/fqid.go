// Package domain holds the identifier patterns shared by the whole
// pipeline: collection names, fully qualified ids and fields, and the
// filter tree the datastore understands.
package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Collection is a lowercase snake-case collection name, e.g. "meeting_user".
type Collection string

var collectionPattern = regexp.MustCompile(`^[a-z][a-z_]*$`)

// Valid reports whether the collection name is well formed.
func (c Collection) Valid() bool {
	return collectionPattern.MatchString(string(c))
}

func (c Collection) String() string { return string(c) }

// FQID identifies one model instance: collection plus a positive id.
type FQID struct {
	Collection Collection
	ID         int
}

// String renders the wire form "collection/id".
func (f FQID) String() string {
	return string(f.Collection) + "/" + strconv.Itoa(f.ID)
}

// Field returns the fully qualified field for one of this model's fields.
func (f FQID) Field(name string) FQField {
	return FQField{Collection: f.Collection, ID: f.ID, Field: name}
}

// Valid reports whether collection and id are both well formed.
func (f FQID) Valid() bool {
	return f.Collection.Valid() && f.ID >= 1
}

// MarshalJSON renders the FQID as its wire string.
func (f FQID) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(f.String())), nil
}

// ParseFQID parses "collection/id". The id must be >= 1.
func ParseFQID(s string) (FQID, error) {
	idx := strings.IndexByte(s, '/')
	if idx < 0 {
		return FQID{}, fmt.Errorf("invalid fqid %q", s)
	}
	id, err := strconv.Atoi(s[idx+1:])
	if err != nil || id < 1 {
		return FQID{}, fmt.Errorf("invalid fqid %q: bad id", s)
	}
	fqid := FQID{Collection: Collection(s[:idx]), ID: id}
	if !fqid.Collection.Valid() {
		return FQID{}, fmt.Errorf("invalid fqid %q: bad collection", s)
	}
	return fqid, nil
}

// MustFQID is ParseFQID for literals; it panics on malformed input.
func MustFQID(s string) FQID {
	fqid, err := ParseFQID(s)
	if err != nil {
		panic(err)
	}
	return fqid
}

// FQField identifies one field of one model instance. It is the unit of
// optimistic locking.
type FQField struct {
	Collection Collection
	ID         int
	Field      string
}

// String renders the wire form "collection/id/field".
func (f FQField) String() string {
	return string(f.Collection) + "/" + strconv.Itoa(f.ID) + "/" + f.Field
}

// FQID returns the model part of the fully qualified field.
func (f FQField) FQID() FQID {
	return FQID{Collection: f.Collection, ID: f.ID}
}

// ParseFQField parses "collection/id/field".
func ParseFQField(s string) (FQField, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 3 {
		return FQField{}, fmt.Errorf("invalid fqfield %q", s)
	}
	id, err := strconv.Atoi(parts[1])
	if err != nil || id < 1 {
		return FQField{}, fmt.Errorf("invalid fqfield %q: bad id", s)
	}
	f := FQField{Collection: Collection(parts[0]), ID: id, Field: parts[2]}
	if !f.Collection.Valid() || f.Field == "" {
		return FQField{}, fmt.Errorf("invalid fqfield %q", s)
	}
	return f, nil
}
