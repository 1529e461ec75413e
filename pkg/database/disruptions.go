package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/travigo/disruptions/pkg/ctdf"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const DisruptionsCollection = "disruptions"

// DisruptionRecord stores a disruption as its JSON document so the sum typed targets survive the round trip
type DisruptionRecord struct {
	ID          string    `bson:"id"`
	Contributor string    `bson:"contributor"`
	ContentHash string    `bson:"contenthash"`
	UpdatedAt   time.Time `bson:"updatedat"`
	Payload     string    `bson:"payload"`
}

func NewDisruptionRecord(disruption *ctdf.Disruption) (*DisruptionRecord, error) {
	payload, err := json.Marshal(disruption)
	if err != nil {
		return nil, err
	}

	contentHash, err := disruption.ContentHash()
	if err != nil {
		return nil, err
	}

	return &DisruptionRecord{
		ID:          disruption.ID,
		Contributor: disruption.Contributor,
		ContentHash: contentHash,
		UpdatedAt:   disruption.UpdatedAt,
		Payload:     string(payload),
	}, nil
}

func (r *DisruptionRecord) Disruption() (*ctdf.Disruption, error) {
	var disruption ctdf.Disruption
	if err := json.Unmarshal([]byte(r.Payload), &disruption); err != nil {
		return nil, fmt.Errorf("disruption record %s: %w", r.ID, err)
	}
	return &disruption, nil
}

type DisruptionStore struct {
	collection *mongo.Collection
}

func NewDisruptionStore() *DisruptionStore {
	return &DisruptionStore{collection: GetCollection(DisruptionsCollection)}
}

func (s *DisruptionStore) Upsert(ctx context.Context, disruption *ctdf.Disruption) error {
	record, err := NewDisruptionRecord(disruption)
	if err != nil {
		return err
	}

	_, err = s.collection.ReplaceOne(ctx, bson.M{"id": record.ID}, record, options.Replace().SetUpsert(true))
	return err
}

func (s *DisruptionStore) Delete(ctx context.Context, id string) error {
	_, err := s.collection.DeleteOne(ctx, bson.M{"id": id})
	return err
}

// LoadAll returns every stored disruption, oldest update first
func (s *DisruptionStore) LoadAll(ctx context.Context) ([]*ctdf.Disruption, error) {
	cursor, err := s.collection.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "updatedat", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var disruptions []*ctdf.Disruption
	for cursor.Next(ctx) {
		var record DisruptionRecord
		if err := cursor.Decode(&record); err != nil {
			return nil, err
		}

		disruption, err := record.Disruption()
		if err != nil {
			return nil, err
		}
		disruptions = append(disruptions, disruption)
	}

	return disruptions, cursor.Err()
}
