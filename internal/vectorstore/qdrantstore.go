// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"
	qdrant "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"

	"github.com/northbound/wikify/internal/wikierr"
)

// QdrantStore is the alternate VectorStore backend for repositories that
// outgrow the JSON file store, satisfying the same interface over a
// Qdrant collection named after the repo id.
type QdrantStore struct {
	conn             *grpc.ClientConn
	collections      qdrant.CollectionsClient
	points           qdrant.PointsClient
	collectionName   string
	dim              int
}

// NewQdrantStore connects collectionName on conn, creating it with cosine
// distance if it doesn't exist yet.
func NewQdrantStore(ctx context.Context, conn *grpc.ClientConn, collectionName string, dim int) (*QdrantStore, error) {
	s := &QdrantStore{
		conn:           conn,
		collections:    qdrant.NewCollectionsClient(conn),
		points:         qdrant.NewPointsClient(conn),
		collectionName: collectionName,
		dim:            dim,
	}
	if err := s.ensureCollection(ctx, dim); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *QdrantStore) ensureCollection(ctx context.Context, dim int) error {
	list, err := s.collections.List(ctx, &qdrant.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("list qdrant collections: %w", err)
	}
	for _, c := range list.Collections {
		if c.Name == s.collectionName {
			return nil
		}
	}

	_, err = s.collections.Create(ctx, &qdrant.CreateCollection{
		CollectionName: s.collectionName,
		VectorsConfig: &qdrant.VectorsConfig{
			Config: &qdrant.VectorsConfig_Params{
				Params: &qdrant.VectorParams{
					Size:     uint64(dim),
					Distance: qdrant.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("create qdrant collection: %w", err)
	}
	return nil
}

// Delete drops the collection entirely. Idempotent: deleting an already
// absent collection is not an error.
func (s *QdrantStore) Delete(ctx context.Context) error {
	_, err := s.collections.Delete(ctx, &qdrant.DeleteCollection{CollectionName: s.collectionName})
	if err != nil {
		return fmt.Errorf("delete qdrant collection %s: %w", s.collectionName, err)
	}
	return nil
}

func (s *QdrantStore) Add(ctx context.Context, chunks []EmbeddedChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, 0, len(chunks))
	for _, c := range chunks {
		if len(c.Vector) != s.dim {
			return wikierr.Validation("vector_dimension", len(c.Vector), "dimension to match collection")
		}

		payload := map[string]*qdrant.Value{
			"content":     {Kind: &qdrant.Value_StringValue{StringValue: c.Text}},
			"document_id": {Kind: &qdrant.Value_StringValue{StringValue: c.DocumentID}},
			"chunk_index": {Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(c.ChunkIndex)}},
			"chunk_id":    {Kind: &qdrant.Value_StringValue{StringValue: c.ID}},
		}
		if meta, err := json.Marshal(c.Metadata); err == nil {
			payload["metadata"] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: string(meta)}}
		}

		pointID := pointUUIDFor(c.ID)
		points = append(points, &qdrant.PointStruct{
			Id:      &qdrant.PointId{PointIdOptions: &qdrant.PointId_Uuid{Uuid: pointID}},
			Vectors: &qdrant.Vectors{VectorsOptions: &qdrant.Vectors_Vector{Vector: &qdrant.Vector{Data: c.Vector}}},
			Payload: payload,
		})
	}

	_, err := s.points.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collectionName,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant upsert: %w", err)
	}
	return nil
}

func (s *QdrantStore) Search(ctx context.Context, queryVec []float32, topK int, threshold float32) ([]Match, error) {
	if len(queryVec) != s.dim {
		return nil, wikierr.Validation("query_vector_dimension", len(queryVec), "dimension to match collection")
	}

	limit := uint64(topK)
	if limit == 0 {
		limit = 10
	}

	resp, err := s.points.Search(ctx, &qdrant.SearchPoints{
		CollectionName: s.collectionName,
		Vector:         queryVec,
		Limit:          limit,
		ScoreThreshold: &threshold,
		WithPayload:    &qdrant.WithPayloadSelector{SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant search: %w", err)
	}

	matches := make([]Match, 0, len(resp.Result))
	for _, p := range resp.Result {
		chunkID := p.Payload["chunk_id"].GetStringValue()
		if chunkID == "" {
			continue
		}
		matches = append(matches, Match{ChunkID: chunkID, Score: p.Score})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ChunkID < matches[j].ChunkID
	})
	return matches, nil
}

// Get fetches one point by its derived UUID and rebuilds the chunk from
// the payload. The manager's source store calls it once per retrieved
// chunk id on every query. A failed lookup is reported as ok=false with
// a nil error.
func (s *QdrantStore) Get(ctx context.Context, id string) (EmbeddedChunk, bool, error) {
	resp, err := s.points.Get(ctx, &qdrant.GetPoints{
		CollectionName: s.collectionName,
		Ids:            []*qdrant.PointId{{PointIdOptions: &qdrant.PointId_Uuid{Uuid: pointUUIDFor(id)}}},
		WithPayload:    &qdrant.WithPayloadSelector{SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true}},
		WithVectors:    &qdrant.WithVectorsSelector{SelectorOptions: &qdrant.WithVectorsSelector_Enable{Enable: true}},
	})
	if err != nil || len(resp.Result) == 0 {
		return EmbeddedChunk{}, false, nil
	}

	p := resp.Result[0]
	chunk := EmbeddedChunk{
		ID:         id,
		Text:       p.Payload["content"].GetStringValue(),
		DocumentID: p.Payload["document_id"].GetStringValue(),
		ChunkIndex: int(p.Payload["chunk_index"].GetIntegerValue()),
	}
	if metaJSON := p.Payload["metadata"].GetStringValue(); metaJSON != "" {
		_ = json.Unmarshal([]byte(metaJSON), &chunk.Metadata)
	}
	if v := p.Vectors.GetVector(); v != nil {
		chunk.Vector = v.Data
	}
	return chunk, true, nil
}

func (s *QdrantStore) Len(ctx context.Context) (int, error) {
	info, err := s.collections.Get(ctx, &qdrant.GetCollectionInfoRequest{CollectionName: s.collectionName})
	if err != nil {
		return 0, fmt.Errorf("qdrant collection info: %w", err)
	}
	return int(info.Result.GetPointsCount()), nil
}

func (s *QdrantStore) Dimension(ctx context.Context) (int, error) {
	return s.dim, nil
}

func (s *QdrantStore) Close() error {
	return s.conn.Close()
}

// pointUUIDFor derives a deterministic point UUID from a chunk id so
// re-indexing the same chunk id upserts in place rather than duplicating.
func pointUUIDFor(chunkID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(chunkID)).String()
}
