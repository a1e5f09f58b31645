package core

import "context"

// DisplayNameKey holds the last display name used to join.
const DisplayNameKey = "display_name"

// NameStore remembers small user preferences across launches.
type NameStore interface {
	Read(ctx context.Context, key string) (string, bool, error)
	Write(ctx context.Context, key, value string) error
}
