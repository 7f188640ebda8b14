package repository

import (
	"context"
	"fmt"
	"sync"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"petadopt/internal/domain/repository"
	"petadopt/pkg/errors"
	"petadopt/pkg/logger"
)

type firestoreDocumentStore struct {
	client *firestore.Client
}

func NewFirestoreDocumentStore(client *firestore.Client) repository.DocumentStore {
	return &firestoreDocumentStore{
		client: client,
	}
}

func (r *firestoreDocumentStore) Get(ctx context.Context, collection, id string) (*repository.Document, error) {
	doc, err := r.client.Collection(collection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("Document", err)
		}
		return nil, errors.Store("Failed to get document", err)
	}

	return &repository.Document{
		ID:         doc.Ref.ID,
		Collection: collection,
		Data:       doc.Data(),
	}, nil
}

func (r *firestoreDocumentStore) Create(ctx context.Context, collection, id string, data map[string]interface{}) error {
	_, err := r.client.Collection(collection).Doc(id).Create(ctx, data)
	if err != nil {
		// A concurrent creator got there first; both wrote the same static fields.
		if status.Code(err) == codes.AlreadyExists {
			return nil
		}
		return errors.Store("Failed to create document", err)
	}

	return nil
}

func (r *firestoreDocumentStore) Query(ctx context.Context, q repository.Query) ([]*repository.Document, error) {
	iter := r.buildQuery(q).Documents(ctx)
	defer iter.Stop()

	var docs []*repository.Document
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			logger.Error("Firestore error while querying %s: %v", q.Collection, err)
			return nil, errors.Store("Failed to query documents", err)
		}
		docs = append(docs, toDocument(q.Collection, doc))
	}

	return docs, nil
}

func (r *firestoreDocumentStore) Subscribe(ctx context.Context, q repository.Query, onChange repository.SnapshotFunc, onError func(error)) repository.Subscription {
	ctx, cancel := context.WithCancel(ctx)
	iter := r.buildQuery(q).Snapshots(ctx)
	sub := &firestoreSubscription{cancel: cancel}

	go func() {
		defer iter.Stop()
		for {
			snap, err := iter.Next()
			if err != nil {
				if ctx.Err() != nil || status.Code(err) == codes.Canceled || err == iterator.Done {
					return
				}
				// The SDK iterator is unusable after an error; report and stop reading.
				onError(errors.Listener("Live query failed", err))
				return
			}

			docs, err := snap.Documents.GetAll()
			if err != nil {
				onError(errors.Listener("Failed to read live query snapshot", err))
				continue
			}

			out := make([]*repository.Document, 0, len(docs))
			for _, doc := range docs {
				out = append(out, toDocument(q.Collection, doc))
			}
			onChange(out)
		}
	}()

	return sub
}

func (r *firestoreDocumentStore) BatchWrite(ctx context.Context, writes []repository.Write) error {
	if len(writes) == 0 {
		return nil
	}

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		for _, w := range writes {
			ref := r.client.Collection(w.Collection).Doc(w.DocID)
			switch w.Kind {
			case repository.WriteCreate:
				if err := tx.Create(ref, w.Data); err != nil {
					return err
				}
			case repository.WriteUpdate:
				if err := tx.Update(ref, toFirestoreUpdates(w.Updates)); err != nil {
					return err
				}
			default:
				return fmt.Errorf("unknown write kind %d for %s/%s", w.Kind, w.Collection, w.DocID)
			}
		}
		return nil
	})
	if err != nil {
		return errors.Store("Failed to commit batch", err)
	}

	return nil
}

func (r *firestoreDocumentStore) NewDocumentID(collection string) string {
	return r.client.Collection(collection).NewDoc().ID
}

func (r *firestoreDocumentStore) ServerTimestamp() interface{} {
	return firestore.ServerTimestamp
}

func (r *firestoreDocumentStore) Increment(n int64) interface{} {
	return firestore.Increment(n)
}

func (r *firestoreDocumentStore) buildQuery(q repository.Query) firestore.Query {
	query := r.client.Collection(q.Collection).Query
	for _, f := range q.Filters {
		query = query.Where(f.Field, f.Op, f.Value)
	}
	if q.OrderBy != nil {
		dir := firestore.Asc
		if q.OrderBy.Direction == repository.Desc {
			dir = firestore.Desc
		}
		query = query.OrderBy(q.OrderBy.Field, dir)
	}
	return query
}

func toFirestoreUpdates(updates []repository.Update) []firestore.Update {
	out := make([]firestore.Update, 0, len(updates))
	for _, u := range updates {
		out = append(out, firestore.Update{
			FieldPath: firestore.FieldPath(u.Path),
			Value:     u.Value,
		})
	}
	return out
}

func toDocument(collection string, doc *firestore.DocumentSnapshot) *repository.Document {
	return &repository.Document{
		ID:         doc.Ref.ID,
		Collection: collection,
		Data:       doc.Data(),
	}
}

type firestoreSubscription struct {
	cancel context.CancelFunc
	once   sync.Once
}

// Unsubscribe cancels the listener context; the reader goroutine stops the
// snapshot iterator on its way out.
func (s *firestoreSubscription) Unsubscribe() {
	s.once.Do(s.cancel)
}
