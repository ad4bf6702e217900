// Package propertypath reads and writes dot-separated locations inside nested
// map[string]any structures such as decoded frontmatter.
package propertypath

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/starford/fmschema/internal/apperr"
)

// ArraySuffix marks a segment whose value is an array of items.
const ArraySuffix = "[]"

// Get returns the value stored at path inside obj.
//
// Intermediate segments must resolve to objects; a numeric segment indexes
// into an array. A missing segment yields apperr.ErrPropertyNotFound and a
// scalar in the middle of the path yields apperr.ErrTypeMismatch.
func Get(obj map[string]any, path string) (any, error) {
	if path == "" {
		return nil, fmt.Errorf("propertypath: get: %w", apperr.ErrEmptyInput)
	}
	segments := strings.Split(path, ".")

	var current any = obj
	for i, seg := range segments {
		switch node := current.(type) {
		case map[string]any:
			v, ok := node[seg]
			if !ok {
				return nil, fmt.Errorf("propertypath: %q at %q: %w", path, seg, apperr.ErrPropertyNotFound)
			}
			current = v
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil {
				return nil, fmt.Errorf("propertypath: %q: segment %q indexes an array: %w", path, seg, apperr.ErrTypeMismatch)
			}
			if idx < 0 || idx >= len(node) {
				return nil, fmt.Errorf("propertypath: %q: index %d out of range: %w", path, idx, apperr.ErrPropertyNotFound)
			}
			current = node[idx]
		default:
			return nil, fmt.Errorf("propertypath: %q: %q is not an object: %w",
				path, strings.Join(segments[:i], "."), apperr.ErrTypeMismatch)
		}
	}
	return current, nil
}

// Set assigns value at path, creating intermediate objects as needed and
// replacing any non-object intermediate with an empty object. obj is mutated
// in place, so callers must own it (see frontmatter.Builder).
func Set(obj map[string]any, path string, value any) error {
	if path == "" {
		return fmt.Errorf("propertypath: set: %w", apperr.ErrEmptyInput)
	}
	if obj == nil {
		return fmt.Errorf("propertypath: set %q on nil object: %w", path, apperr.ErrPropertyNotFound)
	}
	segments := strings.Split(path, ".")

	current := obj
	for _, seg := range segments[:len(segments)-1] {
		next, ok := current[seg].(map[string]any)
		if !ok {
			next = make(map[string]any)
			current[seg] = next
		}
		current = next
	}
	current[segments[len(segments)-1]] = value
	return nil
}

// Has reports whether Get would succeed. It never fails.
func Has(obj map[string]any, path string) bool {
	_, err := Get(obj, path)
	return err == nil
}

// Validate checks directive path syntax: non-empty, no leading or trailing
// dot, no empty segment, no whitespace, and array notation only on the final
// segment.
func Validate(path string) error {
	if path == "" {
		return fmt.Errorf("propertypath: %w", apperr.ErrEmptyInput)
	}
	if strings.HasPrefix(path, ".") || strings.HasSuffix(path, ".") {
		return fmt.Errorf("propertypath: %q starts or ends with '.': %w", path, apperr.ErrInvalidFormat)
	}
	if strings.Contains(path, "..") {
		return fmt.Errorf("propertypath: %q contains '..': %w", path, apperr.ErrInvalidFormat)
	}
	if strings.IndexFunc(path, unicode.IsSpace) >= 0 {
		return fmt.Errorf("propertypath: %q contains whitespace: %w", path, apperr.ErrInvalidFormat)
	}
	segments := strings.Split(path, ".")
	for i, seg := range segments {
		if !strings.ContainsAny(seg, "[]") {
			continue
		}
		last := i == len(segments)-1
		if !last || !strings.HasSuffix(seg, ArraySuffix) || strings.Count(seg, "[") != 1 || strings.Count(seg, "]") != 1 {
			return fmt.Errorf("propertypath: %q: array notation only allowed as final segment: %w", path, apperr.ErrInvalidFormat)
		}
		if seg == ArraySuffix {
			return fmt.Errorf("propertypath: %q: array notation needs a name: %w", path, apperr.ErrInvalidFormat)
		}
	}
	return nil
}

// SplitArrayNotation splits "prefix[].property" into its two halves.
// ok is false when path does not use array notation.
func SplitArrayNotation(path string) (prefix, property string, ok bool) {
	idx := strings.Index(path, ArraySuffix+".")
	if idx <= 0 {
		return "", "", false
	}
	prefix = path[:idx]
	property = path[idx+len(ArraySuffix)+1:]
	if property == "" {
		return "", "", false
	}
	return prefix, property, true
}

// TrimArraySuffix drops a trailing "[]" from path.
func TrimArraySuffix(path string) string {
	return strings.TrimSuffix(path, ArraySuffix)
}
