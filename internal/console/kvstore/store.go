package kvstore

import (
	"context"
	"errors"
	"reflect"
	"strings"
)

// ErrNotFound is returned by Get for a key without value.
var ErrNotFound = errors.New("key not found")

// Store is a hierarchical string keyed, string valued persistence service.
// Keys have the form /<user>/<component>/<id>, see Path.
type Store interface {
	// Get returns the value stored under key or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)
	// Query returns all entries whose key starts with prefix.
	Query(ctx context.Context, prefix string) (map[string]string, error)
	// Put stores value under key, replacing any previous value.
	Put(ctx context.Context, key, value string) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Close releases the backend.
	Close() error
}

// Path builds the key of a component's data for user. Without id the
// result ends with a slash and can serve as a query prefix.
func Path(user, component string, id ...string) string {
	var sb strings.Builder
	sb.WriteString("/")
	sb.WriteString(user)
	sb.WriteString("/")
	sb.WriteString(component)
	sb.WriteString("/")
	if len(id) > 0 {
		sb.WriteString(strings.Join(id, "/"))
	}
	return sb.String()
}

// ComponentName returns the fully qualified type name of v, the package
// path with slashes replaced by dots followed by the type name.
func ComponentName(v any) string {
	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return strings.ReplaceAll(t.PkgPath(), "/", ".") + "." + t.Name()
}
