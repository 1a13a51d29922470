package model

import "encoding/json"

// Reference identifies a location in the data hierarchy. The three concrete
// kinds are DatabaseRef, CollectionRef and DocumentRef. References are
// immutable value objects; equality is structural on the name chain.
type Reference interface {
	// Path returns the slash-delimited wire form of the reference.
	Path() string

	isReference()
}

// DatabaseRef addresses a whole database.
type DatabaseRef struct {
	Name string `json:"name"`
}

func (d DatabaseRef) Path() string { return d.Name }

func (d DatabaseRef) Equal(other DatabaseRef) bool { return d.Name == other.Name }

func (DatabaseRef) isReference() {}

// MarshalJSON encodes the reference as its wire path.
func (d DatabaseRef) MarshalJSON() ([]byte, error) { return json.Marshal(d.Path()) }

// CollectionRef addresses a named collection inside a database, optionally
// narrowed by a query descriptor. The query never participates in equality.
type CollectionRef struct {
	Database DatabaseRef
	Name     string
	Query    Query
	Joins    []Join
}

// Join links a document field to another collection for adapter-side joins.
type Join struct {
	Field      string
	Collection CollectionRef
}

func (c CollectionRef) Path() string { return c.Database.Name + "/" + c.Name }

// Doc composes the DocumentRef for id inside this collection.
func (c CollectionRef) Doc(id string) DocumentRef {
	return DocumentRef{Collection: c, ID: id}
}

func (c CollectionRef) Equal(other CollectionRef) bool {
	return c.Database.Equal(other.Database) && c.Name == other.Name
}

func (CollectionRef) isReference() {}

func (c CollectionRef) MarshalJSON() ([]byte, error) { return json.Marshal(c.Path()) }

// DocumentRef addresses a single document. It always carries its owning
// CollectionRef, which in turn carries its owning DatabaseRef.
type DocumentRef struct {
	Collection CollectionRef
	ID         string
}

func (d DocumentRef) Path() string { return d.Collection.Path() + "/" + d.ID }

func (d DocumentRef) Equal(other DocumentRef) bool {
	return d.Collection.Equal(other.Collection) && d.ID == other.ID
}

func (DocumentRef) isReference() {}

func (d DocumentRef) MarshalJSON() ([]byte, error) { return json.Marshal(d.Path()) }
