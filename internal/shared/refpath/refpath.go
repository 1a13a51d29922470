// Package refpath deserializes slash-delimited wire references into the
// reference model: "db" addresses a database, "db/collection" a collection
// and "db/collection/docId" a document.
package refpath

import (
	"regexp"
	"strings"

	"docstore-gateway/internal/gateway/domain/model"
	"docstore-gateway/internal/shared/errors"
)

var validIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// IsValidID checks whether a path segment is a usable identifier.
func IsValidID(id string) bool {
	return id != "" && len(id) <= 1500 && validIDPattern.MatchString(id)
}

// Parse resolves a wire path into whichever reference kind its depth implies.
func Parse(path string) (model.Reference, error) {
	segs, err := split(path)
	if err != nil {
		return nil, err
	}

	switch len(segs) {
	case 1:
		return model.DatabaseRef{Name: segs[0]}, nil
	case 2:
		return model.CollectionRef{Database: model.DatabaseRef{Name: segs[0]}, Name: segs[1]}, nil
	case 3:
		collection := model.CollectionRef{Database: model.DatabaseRef{Name: segs[0]}, Name: segs[1]}
		return collection.Doc(segs[2]), nil
	default:
		return nil, errors.NewInvalidReference(path)
	}
}

// ParseDatabase resolves a wire path that must address a database.
func ParseDatabase(path string) (model.DatabaseRef, error) {
	ref, err := Parse(path)
	if err != nil {
		return model.DatabaseRef{}, err
	}
	db, ok := ref.(model.DatabaseRef)
	if !ok {
		return model.DatabaseRef{}, errors.NewInvalidReference(path).WithDetail("expected", "database")
	}
	return db, nil
}

// ParseCollection resolves a wire path that must address a collection.
func ParseCollection(path string) (model.CollectionRef, error) {
	ref, err := Parse(path)
	if err != nil {
		return model.CollectionRef{}, err
	}
	collection, ok := ref.(model.CollectionRef)
	if !ok {
		return model.CollectionRef{}, errors.NewInvalidReference(path).WithDetail("expected", "collection")
	}
	return collection, nil
}

// ParseDocument resolves a wire path that must address a document.
func ParseDocument(path string) (model.DocumentRef, error) {
	ref, err := Parse(path)
	if err != nil {
		return model.DocumentRef{}, err
	}
	doc, ok := ref.(model.DocumentRef)
	if !ok {
		return model.DocumentRef{}, errors.NewInvalidReference(path).WithDetail("expected", "document")
	}
	return doc, nil
}

func split(path string) ([]string, error) {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil, errors.NewInvalidReference(path)
	}

	segs := strings.Split(trimmed, "/")
	for _, seg := range segs {
		if !IsValidID(seg) {
			return nil, errors.NewInvalidReference(path).WithDetail("segment", seg)
		}
	}
	return segs, nil
}
