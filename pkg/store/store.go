// Package store persists finalized flow records to MongoDB and answers
// pivot queries across the JA4+ family, generalizing the teacher's
// single-fingerprint RequestLog/GetByJA3/GetByH2/GetByPeetPrint report shape
// (pkg/server/database.go) into one document per flow and one
// kind-parameterized query.
package store

import (
	"context"
	"fmt"
	"sort"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/netfprint/ja4core/pkg/stream"
)

// FlowDocument is the Mongo-persisted shape of one finalized flow. The
// teacher stores one RequestLog row per live HTTP request with a handful of
// named fingerprint fields (JA3, JA4, JA4H, H2, PeetPrint); here one
// document covers everything Streams.Finalize produced for a flow.
type FlowDocument struct {
	Client     string   `bson:"client"`
	Server     string   `bson:"server"`
	Transport  string   `bson:"transport"`
	JA4        string   `bson:"ja4,omitempty"`
	JA4S       string   `bson:"ja4s,omitempty"`
	JA4H       []string `bson:"ja4h,omitempty"`
	JA4X       []string `bson:"ja4x,omitempty"`
	JA4LClient string   `bson:"ja4l_c,omitempty"`
	JA4LServer string   `bson:"ja4l_s,omitempty"`
	JA4SSH     []string `bson:"ja4ssh,omitempty"`
	ObservedAt int64    `bson:"observed_at"`
}

func documentFrom(rec stream.Record, observedAt int64) FlowDocument {
	return FlowDocument{
		Client:     rec.Client.String(),
		Server:     rec.Server.String(),
		Transport:  rec.Transport,
		JA4:        rec.JA4,
		JA4S:       rec.JA4S,
		JA4H:       rec.JA4H,
		JA4X:       rec.JA4X,
		JA4LClient: rec.JA4LClient,
		JA4LServer: rec.JA4LServer,
		JA4SSH:     rec.JA4SSH,
		ObservedAt: observedAt,
	}
}

// Store wraps one Mongo collection of FlowDocuments.
type Store struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// Connect opens (and pings) a Mongo connection, matching the teacher's
// connect-then-ping-before-serving pattern.
func Connect(ctx context.Context, uri, database, collection string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return &Store{client: client, collection: client.Database(database).Collection(collection)}, nil
}

// Close disconnects the underlying Mongo client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Save inserts one finished flow's record, observed at observedAt (Unix
// seconds).
func (s *Store) Save(ctx context.Context, rec stream.Record, observedAt int64) error {
	if _, err := s.collection.InsertOne(ctx, documentFrom(rec, observedAt)); err != nil {
		return fmt.Errorf("insert flow record: %w", err)
	}
	return nil
}

// Kind identifies a JA4+ fingerprint family to pivot queries by, replacing
// the teacher's one-function-per-kind (GetByJA4, GetByH2, GetByPeetPrint...)
// with a single parameterized query.
type Kind string

const (
	KindJA4    Kind = "ja4"
	KindJA4S   Kind = "ja4s"
	KindJA4H   Kind = "ja4h"
	KindJA4X   Kind = "ja4x"
	KindJA4SSH Kind = "ja4ssh"
)

var allKinds = []Kind{KindJA4, KindJA4S, KindJA4H, KindJA4X, KindJA4SSH}

func (k Kind) field() string { return string(k) }

// Pivot reports, for one fingerprint value, the top co-occurring values of
// every other fingerprint kind seen on the same flows — the same "what else
// shows up with this JA3/H2/PeetPrint" shape as the teacher's By* reports,
// generalized across the whole JA4+ family instead of one struct per kind.
type Pivot struct {
	Kind        Kind                    `json:"kind"`
	Value       string                  `json:"value"`
	CoOccurring map[Kind]map[string]int `json:"co_occurring"`
}

// topN bounds how many co-occurring values each kind reports, mirroring the
// teacher's COUNT constant passed to utils.SortByVal.
const topN = 10

// GetByFingerprint finds every flow document carrying val under kind and
// tallies which other fingerprint values co-occurred with it.
func (s *Store) GetByFingerprint(ctx context.Context, kind Kind, val string) (Pivot, error) {
	cur, err := s.collection.Find(ctx, bson.D{{Key: kind.field(), Value: val}})
	if err != nil {
		return Pivot{}, fmt.Errorf("query %s=%s: %w", kind, val, err)
	}
	defer cur.Close(ctx)

	pivot := Pivot{Kind: kind, Value: val, CoOccurring: make(map[Kind]map[string]int)}
	for _, k := range allKinds {
		if k != kind {
			pivot.CoOccurring[k] = map[string]int{}
		}
	}

	for cur.Next(ctx) {
		var doc FlowDocument
		if err := cur.Decode(&doc); err != nil {
			continue // one malformed document does not fail the whole pivot
		}
		tally(pivot.CoOccurring[KindJA4], doc.JA4)
		tally(pivot.CoOccurring[KindJA4S], doc.JA4S)
		for _, v := range doc.JA4H {
			tally(pivot.CoOccurring[KindJA4H], v)
		}
		for _, v := range doc.JA4X {
			tally(pivot.CoOccurring[KindJA4X], v)
		}
		for _, v := range doc.JA4SSH {
			tally(pivot.CoOccurring[KindJA4SSH], v)
		}
	}
	if err := cur.Err(); err != nil {
		return Pivot{}, fmt.Errorf("cursor: %w", err)
	}

	for k, counts := range pivot.CoOccurring {
		pivot.CoOccurring[k] = topNByCount(counts, topN)
	}
	return pivot, nil
}

func tally(m map[string]int, val string) {
	if m == nil || val == "" {
		return
	}
	m[val]++
}

// topNByCount keeps only the n highest-count entries, breaking ties
// lexicographically for determinism.
func topNByCount(m map[string]int, n int) map[string]int {
	type pair struct {
		key   string
		count int
	}
	pairs := make([]pair, 0, len(m))
	for k, v := range m {
		pairs = append(pairs, pair{k, v})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].count != pairs[j].count {
			return pairs[i].count > pairs[j].count
		}
		return pairs[i].key < pairs[j].key
	})
	if len(pairs) > n {
		pairs = pairs[:n]
	}
	out := make(map[string]int, len(pairs))
	for _, p := range pairs {
		out[p.key] = p.count
	}
	return out
}
