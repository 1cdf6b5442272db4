package vectorstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lumenpipe/lumen/engine/embedding"
	"github.com/lumenpipe/lumen/engine/pipelineerr"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const contentKey = "__content"

// QdrantStore is the remote backend, a thin wrapper over Qdrant's gRPC API
// generalized to the store's arbitrary map[string]any metadata, rather than
// the fixed doc_id/source/content payload shape of a single-domain index.
type QdrantStore struct {
	mu          sync.Mutex
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	provider    embedding.Provider
	collection  string
	dimension   int
}

// NewQdrantStore dials addr and prepares ops against collection. The
// collection is created lazily on the first Add, sized to whatever the
// configured provider's first embedding produces.
func NewQdrantStore(addr, collection string, provider embedding.Provider) (*QdrantStore, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, pipelineerr.Wrap(pipelineerr.KindStorageIO, fmt.Sprintf("dial qdrant %s", addr), err)
	}
	return &QdrantStore{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		provider:    provider,
		collection:  collection,
	}, nil
}

func (s *QdrantStore) Close() error { return s.conn.Close() }

func (s *QdrantStore) ensureCollection(ctx context.Context, dims int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimension != 0 {
		if s.dimension != dims {
			return pipelineerr.New(pipelineerr.KindDimensionMismatch,
				fmt.Sprintf("collection locked to dimension %d, got %d", s.dimension, dims))
		}
		return nil
	}

	list, err := s.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return pipelineerr.Wrap(pipelineerr.KindStorageIO, "list collections", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == s.collection {
			info, err := s.collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: s.collection})
			if err == nil {
				if size := vectorSize(info); size != 0 {
					if int(size) != dims {
						return pipelineerr.New(pipelineerr.KindDimensionMismatch,
							fmt.Sprintf("collection locked to dimension %d, got %d", size, dims))
					}
					s.dimension = int(size)
				}
			}
			if s.dimension == 0 {
				s.dimension = dims
			}
			return nil
		}
	}

	_, err = s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{Size: uint64(dims), Distance: pb.Distance_Cosine},
			},
		},
	})
	if err != nil {
		return pipelineerr.Wrap(pipelineerr.KindStorageIO, fmt.Sprintf("create collection %s", s.collection), err)
	}
	s.dimension = dims
	return nil
}

func vectorSize(info *pb.GetCollectionInfoResponse) uint64 {
	params, ok := info.GetResult().GetConfig().GetParams().GetVectorsConfig().GetConfig().(*pb.VectorsConfig_Params)
	if !ok {
		return 0
	}
	return params.Params.GetSize()
}

func (s *QdrantStore) Add(ctx context.Context, content string, metadata map[string]any, id string) (Document, error) {
	if content == "" {
		return Document{}, pipelineerr.New(pipelineerr.KindInvalidInput, "content must not be empty")
	}
	if id == "" {
		id = uuid.NewString()
	}

	vec, modelName, err := embedding.EmbedOne(ctx, s.provider, content)
	if err != nil {
		return Document{}, err
	}
	if err := s.ensureCollection(ctx, len(vec)); err != nil {
		return Document{}, err
	}

	fullMetadata := withSystemFields(metadata, content, modelName, time.Now())
	payload := toPayload(fullMetadata)
	payload[contentKey] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: content}}

	wait := true
	_, err = s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points: []*pb.PointStruct{{
			Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: id}},
			Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: vec}}},
			Payload: payload,
		}},
	})
	if err != nil {
		return Document{}, pipelineerr.Wrap(pipelineerr.KindStorageIO, "upsert point", err)
	}

	return Document{ID: id, Content: content, Metadata: fullMetadata, Embedding: vec}, nil
}

func (s *QdrantStore) Query(ctx context.Context, queryText string, k int, filter map[string]any) ([]SearchResult, error) {
	if k <= 0 {
		return []SearchResult{}, nil
	}
	vec, _, err := embedding.EmbedOne(ctx, s.provider, queryText)
	if err != nil {
		return nil, err
	}

	req := &pb.SearchPoints{
		CollectionName: s.collection,
		Vector:         vec,
		Limit:          uint64(k),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
		WithVectors:    &pb.WithVectorsSelector{SelectorOptions: &pb.WithVectorsSelector_Enable{Enable: true}},
	}
	if len(filter) > 0 {
		must := make([]*pb.Condition, 0, len(filter))
		for key, val := range filter {
			must = append(must, fieldMatch(key, fmt.Sprint(val)))
		}
		req.Filter = &pb.Filter{Must: must}
	}

	resp, err := s.points.Search(ctx, req)
	if err != nil {
		return nil, pipelineerr.Wrap(pipelineerr.KindStorageIO, "search points", err)
	}

	out := make([]SearchResult, 0, len(resp.GetResult()))
	for i, r := range resp.GetResult() {
		out = append(out, SearchResult{
			Doc:        pointToDocument(r.GetId().GetUuid(), r.GetPayload(), r.GetVectors()),
			Similarity: similarity(r.GetScore()),
			Rank:       i + 1,
		})
	}
	return out, nil
}

func (s *QdrantStore) Get(ctx context.Context, id string) (Document, error) {
	resp, err := s.points.Get(ctx, &pb.GetPoints{
		CollectionName: s.collection,
		Ids:            []*pb.PointId{{PointIdOptions: &pb.PointId_Uuid{Uuid: id}}},
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
		WithVectors:    &pb.WithVectorsSelector{SelectorOptions: &pb.WithVectorsSelector_Enable{Enable: true}},
	})
	if err != nil {
		return Document{}, pipelineerr.Wrap(pipelineerr.KindStorageIO, "get point", err)
	}
	if len(resp.GetResult()) == 0 {
		return Document{}, pipelineerr.New(pipelineerr.KindNotFound, id)
	}
	r := resp.GetResult()[0]
	return pointToDocument(id, r.GetPayload(), r.GetVectors()), nil
}

func (s *QdrantStore) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	wait := true
	_, err := s.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Points{
				Points: &pb.PointsIdsList{Ids: []*pb.PointId{{PointIdOptions: &pb.PointId_Uuid{Uuid: id}}}},
			},
		},
	})
	if err != nil {
		return pipelineerr.Wrap(pipelineerr.KindStorageIO, "delete point", err)
	}
	return nil
}

func (s *QdrantStore) List(ctx context.Context, limit int) ([]Document, error) {
	if limit <= 0 {
		limit = 100
	}
	resp, err := s.points.Scroll(ctx, &pb.ScrollPoints{
		CollectionName: s.collection,
		Limit:          ptrUint32(uint32(limit)),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
		WithVectors:    &pb.WithVectorsSelector{SelectorOptions: &pb.WithVectorsSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, pipelineerr.Wrap(pipelineerr.KindStorageIO, "scroll points", err)
	}
	out := make([]Document, 0, len(resp.GetResult()))
	for _, r := range resp.GetResult() {
		out = append(out, pointToDocument(r.GetId().GetUuid(), r.GetPayload(), r.GetVectors()))
	}
	return out, nil
}

func (s *QdrantStore) Stats(ctx context.Context) (Stats, error) {
	info, err := s.collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: s.collection})
	if err != nil {
		return Stats{}, pipelineerr.Wrap(pipelineerr.KindStorageIO, "get collection info", err)
	}
	s.mu.Lock()
	dim := s.dimension
	s.mu.Unlock()
	return Stats{
		Collection:    s.collection,
		Count:         int(info.GetResult().GetPointsCount()),
		Path:          "",
		EmbeddingInfo: EmbeddingInfo{Dimension: dim},
	}, nil
}

func pointToDocument(id string, payload map[string]*pb.Value, vectors *pb.Vectors) Document {
	metadata := fromPayload(payload)
	content, _ := metadata[contentKey].(string)
	delete(metadata, contentKey)
	var vec []float32
	if v := vectors.GetVector(); v != nil {
		vec = v.GetData()
	}
	return Document{ID: id, Content: content, Metadata: metadata, Embedding: vec}
}

func toPayload(metadata map[string]any) map[string]*pb.Value {
	payload := make(map[string]*pb.Value, len(metadata))
	for k, val := range metadata {
		switch tv := val.(type) {
		case string:
			payload[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: tv}}
		case int:
			payload[k] = &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(tv)}}
		case int64:
			payload[k] = &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: tv}}
		case float64:
			payload[k] = &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: tv}}
		case bool:
			payload[k] = &pb.Value{Kind: &pb.Value_BoolValue{BoolValue: tv}}
		default:
			payload[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: fmt.Sprint(tv)}}
		}
	}
	return payload
}

func fromPayload(payload map[string]*pb.Value) map[string]any {
	out := make(map[string]any, len(payload))
	for k, val := range payload {
		switch v := val.GetKind().(type) {
		case *pb.Value_StringValue:
			out[k] = v.StringValue
		case *pb.Value_IntegerValue:
			out[k] = v.IntegerValue
		case *pb.Value_DoubleValue:
			out[k] = v.DoubleValue
		case *pb.Value_BoolValue:
			out[k] = v.BoolValue
		default:
			out[k] = fmt.Sprint(val)
		}
	}
	return out
}

func fieldMatch(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key:   key,
				Match: &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: value}},
			},
		},
	}
}

func ptrUint32(v uint32) *uint32 { return &v }
