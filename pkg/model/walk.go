package model

import "errors"

// SkipChildren can be returned by a WalkFunc to skip the children of the
// visited element.
var SkipChildren = errors.New("skip children")

// WalkFunc is called for every element visited by Walk.
type WalkFunc func(e Element) error

// Walk visits root and its descendants depth first, parents before children.
// Bands, groups, crosstabs and nested sub-reports are all visited.
func Walk(root Element, fn WalkFunc) error {
	err := fn(root)
	if errors.Is(err, SkipChildren) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, c := range root.children() {
		if err := Walk(c, fn); err != nil {
			return err
		}
	}
	return nil
}

// FindByName returns the first element called name.
func FindByName(root Element, name string) Element {
	return find(root, func(e Element) bool { return e.Name() == name })
}

// FindByID returns the element with the given id.
func FindByID(root Element, id string) Element {
	return find(root, func(e Element) bool { return e.ID() == id })
}

var errFound = errors.New("found")

func find(root Element, match func(Element) bool) Element {
	var found Element
	Walk(root, func(e Element) error {
		if match(e) {
			found = e
			return errFound
		}
		return nil
	})
	return found
}

// FindAll returns the elements of type T in root, in walk order. Elements
// inside nested sub-reports are not included, but the sub-reports themselves
// are.
func FindAll[T Element](root Element) []T {
	var out []T
	Walk(root, func(e Element) error {
		if t, ok := e.(T); ok {
			out = append(out, t)
		}
		if _, ok := e.(Report); ok && !same(e, root) {
			return SkipChildren
		}
		return nil
	})
	return out
}
