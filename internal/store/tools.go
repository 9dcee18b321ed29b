//go:build tools

// This file pins github.com/pressly/goose/v3 as a direct dependency even
// though the code that uses it lives behind the goose.Provider API
// constructed in store.go.
package store

import _ "github.com/pressly/goose/v3"
