package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
)

// Collection gives typed access to the documents of one Firestore collection. The name may be
// a slash separated path to a subcollection. T must be decodable by DocumentSnapshot.DataTo.
type Collection[T any] struct {
	provider *Provider
	name     string
}

// NewCollection binds a typed accessor to the named collection.
func NewCollection[T any](provider *Provider, name string) *Collection[T] {
	return &Collection[T]{provider: provider, name: strings.TrimSpace(name)}
}

// Set overwrites the document id with value.
func (c *Collection[T]) Set(ctx context.Context, id string, value T) error {
	doc, err := c.doc(ctx, id)
	if err != nil {
		return err
	}
	if _, err := doc.Set(ctx, value); err != nil {
		return WrapError(c.op("set"), err)
	}
	return nil
}

// Get loads and decodes document id. A missing document yields an *Error with IsNotFound.
func (c *Collection[T]) Get(ctx context.Context, id string) (T, error) {
	var target T
	doc, err := c.doc(ctx, id)
	if err != nil {
		return target, err
	}
	snapshot, err := doc.Get(ctx)
	if err != nil {
		return target, WrapError(c.op("get"), err)
	}
	if err := snapshot.DataTo(&target); err != nil {
		return target, fmt.Errorf("firestore: decode %s/%s: %w", c.name, id, err)
	}
	return target, nil
}

// Delete removes document id. Deleting a missing document succeeds.
func (c *Collection[T]) Delete(ctx context.Context, id string) error {
	doc, err := c.doc(ctx, id)
	if err != nil {
		return err
	}
	if _, err := doc.Delete(ctx); err != nil {
		return WrapError(c.op("delete"), err)
	}
	return nil
}

// List decodes every document in the collection.
func (c *Collection[T]) List(ctx context.Context) ([]T, error) {
	coll, err := c.ref(ctx)
	if err != nil {
		return nil, err
	}
	iter := coll.Documents(ctx)
	defer iter.Stop()

	var out []T
	for {
		snapshot, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, WrapError(c.op("list"), err)
		}
		var target T
		if err := snapshot.DataTo(&target); err != nil {
			return nil, fmt.Errorf("firestore: decode %s/%s: %w", c.name, snapshot.Ref.ID, err)
		}
		out = append(out, target)
	}
	return out, nil
}

func (c *Collection[T]) ref(ctx context.Context) (*firestore.CollectionRef, error) {
	if c == nil || c.provider == nil {
		return nil, errors.New("firestore: provider is nil")
	}
	if c.name == "" {
		return nil, errors.New("firestore: collection name is required")
	}
	client, err := c.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	coll := client.Collection(c.name)
	if coll == nil {
		return nil, fmt.Errorf("firestore: invalid collection path %q", c.name)
	}
	return coll, nil
}

func (c *Collection[T]) doc(ctx context.Context, id string) (*firestore.DocumentRef, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errors.New("firestore: document id is required")
	}
	coll, err := c.ref(ctx)
	if err != nil {
		return nil, err
	}
	return coll.Doc(id), nil
}

func (c *Collection[T]) op(action string) string {
	return c.name + "." + action
}
