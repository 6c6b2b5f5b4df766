package element

import "github.com/oklog/ulid/v2"

// NewID returns a fresh logical identifier for an element or animation.
// ULIDs sort by creation time, which keeps freshly added elements stable in
// id-ordered listings and debuggable in store dumps.
func NewID() string {
	return ulid.Make().String()
}
