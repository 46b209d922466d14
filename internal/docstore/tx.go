package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

type docKey struct {
	collection string
	id         string
}

type pendingWrite struct {
	data   []byte
	delete bool
}

// Tx is the read/write handle passed to a transaction function. Writes are buffered and
// only applied if every read is still current at commit. A Tx is not safe for concurrent use.
type Tx struct {
	store  *Store
	reads  map[docKey]int64
	lists  map[string]map[string]int64
	writes map[docKey]pendingWrite
	order  []docKey
}

func newTx(s *Store) *Tx {
	return &Tx{
		store:  s,
		reads:  make(map[docKey]int64),
		lists:  make(map[string]map[string]int64),
		writes: make(map[docKey]pendingWrite),
	}
}

// Get reads a document, seeing this transaction's own buffered writes.
func (tx *Tx) Get(ctx context.Context, collection, id string) (Document, error) {
	key := docKey{collection: collection, id: id}
	if w, ok := tx.writes[key]; ok {
		if w.delete {
			return Document{}, ErrNotFound
		}
		return Document{Collection: collection, ID: id, Data: w.data}, nil
	}

	doc, err := getDocument(ctx, tx.store.db, collection, id)
	switch {
	case err == nil:
		tx.remember(key, doc.Version)
	case errors.Is(err, ErrNotFound):
		tx.remember(key, 0)
	}
	return doc, err
}

func (tx *Tx) remember(key docKey, version int64) {
	if _, seen := tx.reads[key]; !seen {
		tx.reads[key] = version
	}
}

// List reads every document of a collection. The commit fails if any document is added to,
// removed from or changed in the collection before this transaction commits.
func (tx *Tx) List(ctx context.Context, collection string) ([]Document, error) {
	docs, err := listDocuments(ctx, tx.store.db, collection)
	if err != nil {
		return nil, err
	}

	if _, seen := tx.lists[collection]; !seen {
		versions := make(map[string]int64, len(docs))
		for _, doc := range docs {
			versions[doc.ID] = doc.Version
		}
		tx.lists[collection] = versions
	}

	out := make([]Document, 0, len(docs))
	listed := make(map[string]bool, len(docs))
	for _, doc := range docs {
		listed[doc.ID] = true
		w, ok := tx.writes[docKey{collection: collection, id: doc.ID}]
		switch {
		case !ok:
			out = append(out, doc)
		case w.delete:
		default:
			doc.Data = w.data
			out = append(out, doc)
		}
	}
	for _, key := range tx.order {
		if key.collection != collection || listed[key.id] || tx.writes[key].delete {
			continue
		}
		out = append(out, Document{Collection: collection, ID: key.id, Data: tx.writes[key].data})
	}
	return out, nil
}

// Set buffers a create-or-replace of a document.
func (tx *Tx) Set(collection, id string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode document %s/%s: %w", collection, id, err)
	}
	tx.buffer(docKey{collection: collection, id: id}, pendingWrite{data: raw})
	return nil
}

// Merge overwrites the given top-level fields of an existing document, keeping the rest.
func (tx *Tx) Merge(ctx context.Context, collection, id string, fields map[string]any) error {
	doc, err := tx.Get(ctx, collection, id)
	if err != nil {
		return err
	}

	object := make(map[string]json.RawMessage)
	if err := json.Unmarshal(doc.Data, &object); err != nil {
		return fmt.Errorf("decode %s/%s for merge: %w", collection, id, err)
	}
	for name, value := range fields {
		raw, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("encode field %s of %s/%s: %w", name, collection, id, err)
		}
		object[name] = raw
	}
	return tx.Set(collection, id, object)
}

// Delete buffers removal of a document.
func (tx *Tx) Delete(collection, id string) {
	tx.buffer(docKey{collection: collection, id: id}, pendingWrite{delete: true})
}

func (tx *Tx) buffer(key docKey, w pendingWrite) {
	if _, exists := tx.writes[key]; !exists {
		tx.order = append(tx.order, key)
	}
	tx.writes[key] = w
}
