package retrieval

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

const (
	payloadRecordID = "record_id"
	payloadText     = "text"
)

// qdrantAPI is the subset of *qdrant.Client used by QdrantIndex.
type qdrantAPI interface {
	CollectionExists(ctx context.Context, collectionName string) (bool, error)
	CreateCollection(ctx context.Context, request *qdrant.CreateCollection) error
	DeleteCollection(ctx context.Context, collectionName string) error
	Upsert(ctx context.Context, request *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	Count(ctx context.Context, request *qdrant.CountPoints) (uint64, error)
	Close() error
}

// QdrantConfig holds connection parameters for a Qdrant server.
type QdrantConfig struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
}

// QdrantIndex is an Index backed by a remote Qdrant collection. The
// collection is created with cosine distance on first upsert.
type QdrantIndex struct {
	client     qdrantAPI
	collection string
	embedder   *Embedder

	mu      sync.Mutex
	ensured bool
}

// NewQdrantIndex connects to Qdrant over gRPC.
func NewQdrantIndex(cfg QdrantConfig, embedder *Embedder) (*QdrantIndex, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to qdrant at %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	return newQdrantIndex(client, cfg.Collection, embedder), nil
}

func newQdrantIndex(client qdrantAPI, collection string, embedder *Embedder) *QdrantIndex {
	return &QdrantIndex{client: client, collection: collection, embedder: embedder}
}

// pointID maps an arbitrary record ID to the UUID Qdrant requires.
func pointID(recordID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("twind:"+recordID)).String()
}

func (q *QdrantIndex) ensureCollection(ctx context.Context, dim int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ensured {
		return nil
	}

	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("checking collection %s: %w", q.collection, err)
	}
	if !exists {
		err := q.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: q.collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dim),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return fmt.Errorf("creating collection %s: %w", q.collection, err)
		}
	}
	q.ensured = true
	return nil
}

func (q *QdrantIndex) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := validateRecords(records); err != nil {
		return err
	}

	texts := make([]string, len(records))
	for i, r := range records {
		texts[i] = r.Text
	}
	vecs, err := q.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return err
	}
	if err := q.ensureCollection(ctx, len(vecs[0])); err != nil {
		return err
	}

	points := make([]*qdrant.PointStruct, len(records))
	for i, r := range records {
		payload := make(map[string]*qdrant.Value, len(r.Metadata)+2)
		for k, v := range r.Metadata {
			payload[k] = stringValue(v)
		}
		payload[payloadRecordID] = stringValue(r.ID)
		payload[payloadText] = stringValue(r.Text)

		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(pointID(r.ID)),
			Vectors: qdrant.NewVectors(vecs[i]...),
			Payload: payload,
		}
	}

	_, err = q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("upserting points to collection %s: %w", q.collection, err)
	}
	return nil
}

func (q *QdrantIndex) Query(ctx context.Context, text string, topK int, filter Filter) ([]Match, error) {
	if topK <= 0 {
		return []Match{}, nil
	}
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return nil, fmt.Errorf("checking collection %s: %w", q.collection, err)
	}
	if !exists {
		return []Match{}, nil
	}

	vec, err := q.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	points, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQuery(vec...),
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
		Filter:         toQdrantFilter(filter),
	})
	if err != nil {
		return nil, fmt.Errorf("searching collection %s: %w", q.collection, err)
	}

	matches := make([]Match, 0, len(points))
	for _, p := range points {
		meta := make(map[string]string, len(p.Payload))
		var id string
		for k, v := range p.Payload {
			s, ok := v.Kind.(*qdrant.Value_StringValue)
			if !ok {
				continue
			}
			switch k {
			case payloadRecordID:
				id = s.StringValue
			case payloadText:
			default:
				meta[k] = s.StringValue
			}
		}
		matches = append(matches, Match{ID: id, Score: clampScore(p.Score), Metadata: meta})
	}
	return matches, nil
}

func (q *QdrantIndex) Reset(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("checking collection %s: %w", q.collection, err)
	}
	if exists {
		if err := q.client.DeleteCollection(ctx, q.collection); err != nil {
			return fmt.Errorf("deleting collection %s: %w", q.collection, err)
		}
	}
	q.ensured = false
	return nil
}

func (q *QdrantIndex) Count(ctx context.Context) (int, error) {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return 0, fmt.Errorf("checking collection %s: %w", q.collection, err)
	}
	if !exists {
		return 0, nil
	}
	n, err := q.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: q.collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("counting collection %s: %w", q.collection, err)
	}
	return int(n), nil
}

// Close releases the gRPC connection.
func (q *QdrantIndex) Close() error {
	return q.client.Close()
}

func stringValue(s string) *qdrant.Value {
	return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: s}}
}

func toQdrantFilter(f Filter) *qdrant.Filter {
	if len(f) == 0 {
		return nil
	}
	conds := make([]*qdrant.Condition, 0, len(f))
	for k, v := range f {
		conds = append(conds, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key: k,
					Match: &qdrant.Match{
						MatchValue: &qdrant.Match_Keyword{Keyword: v},
					},
				},
			},
		})
	}
	return &qdrant.Filter{Must: conds}
}
