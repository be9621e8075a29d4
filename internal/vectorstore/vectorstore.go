// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
//
// Package vectorstore wraps Qdrant as the embedding index behind
// ChunkPipeline and Retriever. It exposes ensure_table/add_vectors/
// search exactly as spec.md §4.2 names them, translated into Go method
// names.
package vectorstore

import (
	"context"
	"errors"
	"fmt"

	qdrant "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"

	"github.com/huozhong-in/knowledge-focus/internal/logger"
)

const maxPreviewLen = 500

// Record is one embedded child chunk as persisted in the vector index.
type Record struct {
	VectorID               string // UUID string, the join key to metastore.ChildChunk
	Vector                 []float32
	ParentChunkID          int64
	DocumentID             int64
	RetrievalContentPreview string // truncated to 500 chars
}

// Hit is a single search result: a Record plus its distance from the query.
type Hit struct {
	Record   Record
	Distance float32 // non-negative, lower = closer
}

// Store describes the behavior ChunkPipeline and Retriever need from a
// vector backend. It is implemented by *QdrantStore and *MockStore so
// tests never need a live Qdrant instance.
type Store interface {
	EnsureTable(ctx context.Context, dim int) error
	AddVectors(ctx context.Context, records []Record) error
	Search(ctx context.Context, query []float32, topK int, documentIDs []int64) ([]Hit, error)
	DeleteByDocumentID(ctx context.Context, documentID int64) error
}

// QdrantStore is a thin wrapper around the Qdrant gRPC service clients.
type QdrantStore struct {
	collectionsSvc qdrant.CollectionsClient
	pointsSvc      qdrant.PointsClient
	collection     string
	dimension      int
}

// NewQdrantStore constructs a Store backed by an already-dialed gRPC
// connection and ensures the collection exists at the given dimension.
func NewQdrantStore(ctx context.Context, conn *grpc.ClientConn, collection string, dim int) (*QdrantStore, error) {
	if conn == nil {
		return nil, errors.New("gRPC connection is required")
	}
	if collection == "" {
		collection = "knowledge_focus"
	}

	s := &QdrantStore{
		collectionsSvc: qdrant.NewCollectionsClient(conn),
		pointsSvc:      qdrant.NewPointsClient(conn),
		collection:     collection,
	}

	if err := s.EnsureTable(ctx, dim); err != nil {
		return nil, fmt.Errorf("ensure initial collection: %w", err)
	}
	return s, nil
}

// EnsureTable creates the collection if it does not exist. If it
// exists with a different dimension, it is dropped and recreated
// rather than mutated in place, so mixed-dimension records can never
// coexist in one collection.
func (s *QdrantStore) EnsureTable(ctx context.Context, dim int) error {
	collections, err := s.collectionsSvc.List(ctx, &qdrant.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("list collections: %w", err)
	}

	exists := false
	for _, c := range collections.Collections {
		if c.Name == s.collection {
			exists = true
			break
		}
	}

	if exists {
		info, err := s.collectionsSvc.Get(ctx, &qdrant.GetCollectionInfoRequest{CollectionName: s.collection})
		if err != nil {
			return fmt.Errorf("get collection info: %w", err)
		}
		currentDim := extractDimension(info)
		if currentDim == dim {
			s.dimension = dim
			return nil
		}
		logger.Printf("vectorstore: collection %s dimension changed %d -> %d, recreating", s.collection, currentDim, dim)
		if _, err := s.collectionsSvc.Delete(ctx, &qdrant.DeleteCollection{CollectionName: s.collection}); err != nil {
			return fmt.Errorf("drop collection for dimension change: %w", err)
		}
	}

	if _, err := s.collectionsSvc.Create(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: &qdrant.VectorsConfig{
			Config: &qdrant.VectorsConfig_Params{
				Params: &qdrant.VectorParams{
					Size:     uint64(dim),
					Distance: qdrant.Distance_Cosine,
				},
			},
		},
	}); err != nil {
		return fmt.Errorf("create collection: %w", err)
	}

	s.dimension = dim
	return nil
}

func extractDimension(info *qdrant.GetCollectionInfoResponse) int {
	if info == nil || info.Result == nil || info.Result.Config == nil {
		return 0
	}
	params := info.Result.Config.Params
	if params == nil || params.VectorsConfig == nil {
		return 0
	}
	if single := params.VectorsConfig.GetParams(); single != nil {
		return int(single.Size)
	}
	return 0
}

// AddVectors upserts a batch of Records as Qdrant points, each keyed by
// its VectorID and carrying document_id/parent_chunk_id/content preview
// as payload so Search can filter and Retriever can hydrate without a
// second round trip.
func (s *QdrantStore) AddVectors(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, 0, len(records))
	for _, r := range records {
		if len(r.Vector) == 0 {
			return fmt.Errorf("record %s: empty vector", r.VectorID)
		}
		preview := r.RetrievalContentPreview
		if len(preview) > maxPreviewLen {
			preview = preview[:maxPreviewLen]
		}

		payload := map[string]*qdrant.Value{
			"document_id":      {Kind: &qdrant.Value_IntegerValue{IntegerValue: r.DocumentID}},
			"parent_chunk_id":  {Kind: &qdrant.Value_IntegerValue{IntegerValue: r.ParentChunkID}},
			"content_preview":  {Kind: &qdrant.Value_StringValue{StringValue: preview}},
		}

		points = append(points, &qdrant.PointStruct{
			Id: &qdrant.PointId{PointIdOptions: &qdrant.PointId_Uuid{Uuid: r.VectorID}},
			Vectors: &qdrant.Vectors{
				VectorsOptions: &qdrant.Vectors_Vector{Vector: &qdrant.Vector{Data: r.Vector}},
			},
			Payload: payload,
		})
	}

	if _, err := s.pointsSvc.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points:         points,
	}); err != nil {
		return fmt.Errorf("upsert %d points: %w", len(points), err)
	}
	return nil
}

// Search embeds the filter-before-topK requirement: when documentIDs
// is non-empty, a match-any Filter over the document_id payload field
// is attached to the SearchPoints request itself, so Qdrant applies it
// during the ANN search rather than after.
func (s *QdrantStore) Search(ctx context.Context, query []float32, topK int, documentIDs []int64) ([]Hit, error) {
	if len(query) == 0 {
		return nil, errors.New("query vector cannot be empty")
	}
	if topK <= 0 {
		topK = 10
	}

	req := &qdrant.SearchPoints{
		CollectionName: s.collection,
		Vector:         query,
		Limit:          uint64(topK),
		WithPayload:    &qdrant.WithPayloadSelector{SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true}},
		WithVectors:    &qdrant.WithVectorsSelector{SelectorOptions: &qdrant.WithVectorsSelector_Enable{Enable: false}},
	}

	if len(documentIDs) > 0 {
		should := make([]*qdrant.Condition, 0, len(documentIDs))
		for _, id := range documentIDs {
			should = append(should, &qdrant.Condition{
				ConditionOneOf: &qdrant.Condition_Field{
					Field: &qdrant.FieldCondition{
						Key:   "document_id",
						Match: &qdrant.Match{MatchValue: &qdrant.Match_Integer{Integer: id}},
					},
				},
			})
		}
		req.Filter = &qdrant.Filter{Should: should}
	}

	result, err := s.pointsSvc.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	hits := make([]Hit, 0, len(result.Result))
	for _, sp := range result.Result {
		var vectorID string
		if sp.Id != nil {
			vectorID = sp.Id.GetUuid()
		}

		var documentID, parentChunkID int64
		var preview string
		if sp.Payload != nil {
			if v, ok := sp.Payload["document_id"]; ok {
				documentID = v.GetIntegerValue()
			}
			if v, ok := sp.Payload["parent_chunk_id"]; ok {
				parentChunkID = v.GetIntegerValue()
			}
			if v, ok := sp.Payload["content_preview"]; ok {
				preview = v.GetStringValue()
			}
		}

		hits = append(hits, Hit{
			Record: Record{
				VectorID:                vectorID,
				ParentChunkID:           parentChunkID,
				DocumentID:              documentID,
				RetrievalContentPreview: preview,
			},
			// The collection uses Distance_Cosine, so Qdrant's Score is
			// already a similarity in [-1,1]; translate to a non-negative
			// distance so Retriever's distance/2 mapping (SPEC_FULL.md
			// §4.2/§4.7) stays backend-agnostic regardless of which
			// vector store is configured.
			Distance: 1 - sp.Score,
		})
	}
	return hits, nil
}

// DeleteByDocumentID removes every point belonging to a document. No
// vector is ever updated in place; callers delete then re-insert.
func (s *QdrantStore) DeleteByDocumentID(ctx context.Context, documentID int64) error {
	_, err := s.pointsSvc.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
				Filter: &qdrant.Filter{
					Must: []*qdrant.Condition{{
						ConditionOneOf: &qdrant.Condition_Field{
							Field: &qdrant.FieldCondition{
								Key:   "document_id",
								Match: &qdrant.Match{MatchValue: &qdrant.Match_Integer{Integer: documentID}},
							},
						},
					}},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("delete by document_id %d: %w", documentID, err)
	}
	return nil
}
