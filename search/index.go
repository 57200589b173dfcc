// Package search maintains a full-text index over message content so
// support staff can find past exchanges. The index is fed on append and is
// strictly derived data: losing it never loses a message.
package search

import (
	"context"
	"log/slog"

	"support-chat/contract"
	"support-chat/domain/chat"

	"github.com/blugelabs/bluge"
	"github.com/google/uuid"
)

const maxHits = 100

type Index struct {
	writer *bluge.Writer
	log    *slog.Logger
}

func NewIndex(writer *bluge.Writer, log *slog.Logger) contract.ISearchIndex {
	return &Index{writer: writer, log: log}
}

// Index upserts one message document. The conversation id is a stored
// keyword field so queries can be scoped to a single thread.
func (i *Index) Index(msg chat.Message) error {
	doc := bluge.NewDocument(msg.ID.String()).
		AddField(bluge.NewTextField("content", msg.Content)).
		AddField(bluge.NewKeywordField("conversation_id", msg.ConversationID.String())).
		AddField(bluge.NewKeywordField("sender_id", msg.SenderID))
	return i.writer.Update(doc.ID(), doc)
}

// Search returns the ids of messages in the conversation matching the
// query, best hits first.
func (i *Index) Search(conversationID uuid.UUID, query string) ([]uuid.UUID, error) {
	reader, err := i.writer.Reader()
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := reader.Close(); err != nil {
			i.log.Warn("closing index reader", "error", err)
		}
	}()

	q := bluge.NewBooleanQuery().
		AddMust(bluge.NewMatchQuery(query).SetField("content")).
		AddMust(bluge.NewTermQuery(conversationID.String()).SetField("conversation_id"))

	it, err := reader.Search(context.Background(), bluge.NewTopNSearch(maxHits, q))
	if err != nil {
		return nil, err
	}

	var ids []uuid.UUID
	for {
		match, err := it.Next()
		if err != nil {
			return nil, err
		}
		if match == nil {
			break
		}
		err = match.VisitStoredFields(func(field string, value []byte) bool {
			if field == "_id" {
				if id, parseErr := uuid.ParseBytes(value); parseErr == nil {
					ids = append(ids, id)
				}
			}
			return true
		})
		if err != nil {
			return nil, err
		}
	}
	return ids, nil
}
