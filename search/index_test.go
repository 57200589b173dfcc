package search

import (
	"log/slog"
	"testing"

	"support-chat/domain/chat"

	"github.com/blugelabs/bluge"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	writer, err := bluge.OpenWriter(bluge.InMemoryOnlyConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = writer.Close() })
	return NewIndex(writer, slog.Default()).(*Index)
}

func indexedMessage(t *testing.T, index *Index, conversationID uuid.UUID, sender, content string) chat.Message {
	t.Helper()
	msg := chat.Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		SenderID:       sender,
		Content:        content,
	}
	require.NoError(t, index.Index(msg))
	return msg
}

func TestSearch_Finds_Matching_Messages(t *testing.T) {
	req := require.New(t)
	index := newTestIndex(t)
	conv := uuid.New()

	hit := indexedMessage(t, index, conv, "customer-1", "is the safari refund processed yet?")
	indexedMessage(t, index, conv, "staff-1", "your booking is confirmed")

	ids, err := index.Search(conv, "refund")
	req.NoError(err)
	req.Equal([]uuid.UUID{hit.ID}, ids)
}

func TestSearch_Is_Scoped_To_One_Conversation(t *testing.T) {
	req := require.New(t)
	index := newTestIndex(t)
	mine := uuid.New()
	other := uuid.New()

	wanted := indexedMessage(t, index, mine, "customer-1", "refund please")
	indexedMessage(t, index, other, "customer-2", "refund please")

	ids, err := index.Search(mine, "refund")
	req.NoError(err)
	req.Equal([]uuid.UUID{wanted.ID}, ids)
}

func TestSearch_No_Match_Returns_Empty(t *testing.T) {
	req := require.New(t)
	index := newTestIndex(t)
	conv := uuid.New()
	indexedMessage(t, index, conv, "customer-1", "hello there")

	ids, err := index.Search(conv, "refund")
	req.NoError(err)
	req.Empty(ids)
}

func TestIndex_Update_Replaces_Document(t *testing.T) {
	req := require.New(t)
	index := newTestIndex(t)
	conv := uuid.New()

	msg := indexedMessage(t, index, conv, "customer-1", "refund please")

	// Re-indexing the same id with masked content drops the old terms
	msg.Content = "****** please"
	req.NoError(index.Index(msg))

	ids, err := index.Search(conv, "refund")
	req.NoError(err)
	req.Empty(ids)
}
