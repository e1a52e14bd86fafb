// Package weaviate implements [vectorstore.Store] against a remote Weaviate
// instance (spec.md §4.B "remote index speaking a typed REST API").
package weaviate

import (
	"context"
	"fmt"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	wvtgrpc "github.com/weaviate/weaviate/entities/models"

	"github.com/docleaai/doclea/pkg/vectorstore"
)

const (
	fieldOwnerKind = "ownerKind"
	fieldOwnerID   = "ownerID"
)

// Store is the remote Weaviate backend. One class holds every vector kind
// (memory/chunk/entity/report), distinguished by the ownerKind property,
// matching the single-index-plus-filter shape of the embedded backend.
type Store struct {
	client     *weaviate.Client
	class      string
	dimensions int
}

var _ vectorstore.Store = (*Store)(nil)

// Open connects to a running Weaviate instance and creates the target class
// if it does not exist. The dimensionality of an existing class is not
// checked; Upsert and Search reject embeddings whose length is not dimensions.
func Open(ctx context.Context, scheme, host, class string, dimensions int) (*Store, error) {
	client := weaviate.New(weaviate.Config{Scheme: scheme, Host: host})

	exists, err := client.Schema().ClassExistenceChecker().WithClassName(class).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("vectorstore/weaviate: check class: %w", err)
	}
	if !exists {
		classObj := &wvtgrpc.Class{
			Class:      class,
			Vectorizer: "none", // embeddings are supplied by pkg/embedding, not computed by Weaviate
			Properties: []*wvtgrpc.Property{
				{Name: fieldOwnerKind, DataType: []string{"text"}},
				{Name: fieldOwnerID, DataType: []string{"text"}},
			},
		}
		if err := client.Schema().ClassCreator().WithClass(classObj).Do(ctx); err != nil {
			return nil, fmt.Errorf("vectorstore/weaviate: create class: %w", err)
		}
	}

	return &Store{client: client, class: class, dimensions: dimensions}, nil
}

func (s *Store) Info(context.Context) (vectorstore.Info, error) {
	return vectorstore.Info{Backend: "weaviate", Dimensions: s.dimensions}, nil
}

func (s *Store) Upsert(ctx context.Context, rec vectorstore.Record) error {
	if len(rec.Embedding) != s.dimensions {
		return fmt.Errorf("vectorstore/weaviate: embedding has %d dims, want %d", len(rec.Embedding), s.dimensions)
	}

	props := map[string]any{
		fieldOwnerKind: string(rec.OwnerKind),
		fieldOwnerID:   rec.OwnerID,
	}

	_, err := s.client.Data().Creator().
		WithClassName(s.class).
		WithID(rec.ID).
		WithProperties(props).
		WithVector(rec.Embedding).
		Do(ctx)
	if err != nil {
		// Weaviate's creator fails on an existing id; fall back to an
		// update so re-embedding rebinds the vector in place.
		_, uerr := s.client.Data().Updater().
			WithClassName(s.class).
			WithID(rec.ID).
			WithProperties(props).
			WithVector(rec.Embedding).
			Do(ctx)
		if uerr != nil {
			return fmt.Errorf("vectorstore/weaviate: upsert: create: %w; update: %v", err, uerr)
		}
	}
	return nil
}

func (s *Store) Search(ctx context.Context, embedding []float32, topK int, filter vectorstore.SearchFilter) ([]vectorstore.SearchResult, error) {
	if len(embedding) != s.dimensions {
		return nil, fmt.Errorf("vectorstore/weaviate: query embedding has %d dims, want %d", len(embedding), s.dimensions)
	}

	nearVector := s.client.GraphQL().NearVectorArgBuilder().WithVector(embedding)

	builder := s.client.GraphQL().Get().
		WithClassName(s.class).
		WithNearVector(nearVector).
		WithLimit(topK).
		WithFields(
			graphql.Field{Name: fieldOwnerKind},
			graphql.Field{Name: fieldOwnerID},
			graphql.Field{Name: "_additional", Fields: []graphql.Field{
				{Name: "id"}, {Name: "certainty"},
			}},
		)

	if len(filter.OwnerKinds) > 0 {
		vals := make([]string, len(filter.OwnerKinds))
		for i, k := range filter.OwnerKinds {
			vals[i] = string(k)
		}
		builder = builder.WithWhere(filters.Where().
			WithPath([]string{fieldOwnerKind}).
			WithOperator(filters.ContainsAny).
			WithValueText(vals...))
	}

	resp, err := builder.Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("vectorstore/weaviate: search: %w", err)
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("vectorstore/weaviate: search: %v", resp.Errors)
	}

	return parseSearchResponse(resp.Data, s.class)
}

func (s *Store) DeleteByOwner(ctx context.Context, ownerKind vectorstore.OwnerKind, ownerID string) error {
	where := filters.Where().
		WithPath([]string{fieldOwnerKind}).WithOperator(filters.Equal).WithValueText(string(ownerKind))
	whereID := filters.Where().
		WithPath([]string{fieldOwnerID}).WithOperator(filters.Equal).WithValueText(ownerID)
	combined := filters.Where().WithOperator(filters.And).WithOperands([]*filters.WhereBuilder{where, whereID})

	_, err := s.client.Batch().ObjectsBatchDeleter().
		WithClassName(s.class).
		WithWhere(combined).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("vectorstore/weaviate: delete by owner: %w", err)
	}
	return nil
}
