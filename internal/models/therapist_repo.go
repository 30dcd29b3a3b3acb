package models

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func (mdb *MongodbRepo) GetTherapistByID(ctx context.Context, id primitive.ObjectID) (*Therapist, error) {
	col, err := mdb.GetCollection(ctx, TherapistDbName, TherapistColName)
	if err != nil {
		return nil, fmt.Errorf("error getting collection: %v", err)
	}

	var therapist Therapist
	if err := col.FindOne(ctx, bson.M{"_id": id}).Decode(&therapist); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNoTherapist
		}
		return nil, fmt.Errorf("error finding therapist: %v", err)
	}
	return &therapist, nil
}

func (mdb *MongodbRepo) ListTherapists(ctx context.Context, offset, limit int) ([]*Therapist, int64, error) {
	col, err := mdb.GetCollection(ctx, TherapistDbName, TherapistColName)
	if err != nil {
		return nil, 0, fmt.Errorf("error getting collection: %v", err)
	}

	total, err := col.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, 0, fmt.Errorf("error counting therapists: %v", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "name", Value: 1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))

	cursor, err := col.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("error listing therapists: %v", err)
	}
	defer cursor.Close(ctx)

	var therapists []*Therapist
	for cursor.Next(ctx) {
		var t Therapist
		if err := cursor.Decode(&t); err != nil {
			return nil, 0, fmt.Errorf("error decoding therapist: %v", err)
		}
		therapists = append(therapists, &t)
	}
	if err := cursor.Err(); err != nil {
		return nil, 0, fmt.Errorf("cursor error: %v", err)
	}

	return therapists, total, nil
}
