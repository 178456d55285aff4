package gen

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var ErrKeyNotFound = errors.New("key not found")
var ErrKeyAmbiguous = errors.New("key is ambiguous")

// LookupKey resolves 'want' against a set of keys.
// An exact match always wins. Otherwise 'want' must be a substring of exactly one key.
func LookupKey(keys []string, want string) (string, error) {
	for _, k := range keys {
		if k == want {
			return k, nil
		}
	}
	matches := []string{}
	for _, k := range keys {
		if strings.Contains(k, want) {
			matches = append(matches, k)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: '%v' is not one of %v", ErrKeyNotFound, want, strings.Join(keys, ", "))
	case 1:
		return matches[0], nil
	default:
		sort.Strings(matches)
		return "", fmt.Errorf("%w: '%v' matches %v", ErrKeyAmbiguous, want, strings.Join(matches, ", "))
	}
}
