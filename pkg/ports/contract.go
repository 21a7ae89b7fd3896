package ports

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/arbor/pkg/domain"
)

// RunConversationStoreContract verifies that a store complies with the
// ConversationStore semantics. Adapter test suites call this against their
// own backend setup.
func RunConversationStoreContract(t *testing.T, store ConversationStore) {
	ctx := context.Background()
	sessionID := "contract-test-session-" + time.Now().Format("20060102150405")

	t.Run("Save and Load", func(t *testing.T) {
		messages := []domain.Message{
			domain.NewMessage(domain.RoleUser, "hello"),
			domain.NewMessage(domain.RoleAssistant, "hi, how can I help?"),
		}

		err := store.Save(ctx, sessionID, messages)
		require.NoError(t, err, "Save should not return error")

		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err, "Load should not return error")
		require.Len(t, loaded, 2)
		assert.Equal(t, domain.RoleUser, loaded[0].Role)
		assert.Equal(t, "hello", loaded[0].Content)
		assert.Equal(t, "hi, how can I help?", loaded[1].Content)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Isolation", func(t *testing.T) {
		messages := []domain.Message{domain.NewMessage(domain.RoleUser, "original")}
		require.NoError(t, store.Save(ctx, sessionID, messages))

		// Mutating the saved slice must not leak into the store.
		messages[0].Content = "mutated"

		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, "original", loaded[0].Content)
	})

	t.Run("List", func(t *testing.T) {
		ids, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, ids, sessionID)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, sessionID))

		_, err := store.Load(ctx, sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})
}
