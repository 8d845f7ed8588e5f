// Package idgen provides pluggable ID generation for vitrine.
//
// Constructors that mint identifiers (ledger runs, preview request IDs)
// accept a Generator, making the ID strategy a startup-time decision
// rather than a compile-time one.
package idgen

import (
	"crypto/rand"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

// NanoID returns a Generator of short base-36 IDs, for spots where a
// UUID is too verbose: request IDs in log lines, collision suffixes.
func NanoID(length int) Generator {
	const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	return func() string {
		id := make([]byte, length)
		if _, err := rand.Read(id); err != nil {
			panic("idgen: crypto/rand: " + err.Error())
		}
		for i, c := range id {
			id[i] = alphabet[int(c)%len(alphabet)]
		}
		return string(id)
	}
}

// UUIDv7 returns a Generator of RFC 9562 UUID v7 strings. Time-sortable,
// which keeps ledger runs naturally ordered by creation.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Prefixed prepends a fixed type tag to every ID from gen, as in
// Prefixed("run_", UUIDv7()).
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}
