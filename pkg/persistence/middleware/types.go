// Package middleware wraps a ConversationStore with cross-cutting behavior
// such as at-rest encryption and PII masking.
package middleware

import "github.com/aretw0/arbor/pkg/ports"

// Middleware allows wrapping a ConversationStore to add behavior.
type Middleware func(ports.ConversationStore) ports.ConversationStore

// Chain applies middlewares to a store in order; the first middleware in the
// list becomes the outermost wrapper.
func Chain(store ports.ConversationStore, mws ...Middleware) ports.ConversationStore {
	for i := len(mws) - 1; i >= 0; i-- {
		store = mws[i](store)
	}
	return store
}
