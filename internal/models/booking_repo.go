package models

import (
	"context"
	"fmt"
	"time"

	"github.com/serenitycare/server/internal/helpers"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func (mdb *MongodbRepo) CreateBooking(ctx context.Context, booking *Booking) (*Booking, error) {
	col, err := mdb.GetCollection(ctx, BookingDbName, BookingColName)
	if err != nil {
		return nil, fmt.Errorf("error getting collection: %v", err)
	}

	if err := booking.BeforeCreate(); err != nil {
		return nil, fmt.Errorf("invalid booking data: %w", err)
	}

	now := time.Now()
	booking.CreatedAt = now
	booking.UpdatedAt = now

	if _, err := col.InsertOne(ctx, booking); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			// The partial unique index on (therapist_id, date, time_slot) is
			// the backstop for two requests racing past the availability
			// check. The second insert lands here.
			return nil, ErrSlotTaken
		}
		return nil, fmt.Errorf("error inserting booking: %v", err)
	}

	return booking, nil
}

func (mdb *MongodbRepo) FindBookingByID(ctx context.Context, id primitive.ObjectID) (*Booking, error) {
	return mdb.findOneBooking(ctx, bson.M{"_id": id})
}

func (mdb *MongodbRepo) FindBookingByOrderID(ctx context.Context, orderID string) (*Booking, error) {
	return mdb.findOneBooking(ctx, bson.M{"order_id": orderID})
}

func (mdb *MongodbRepo) FindBookingByPaymentID(ctx context.Context, paymentID string) (*Booking, error) {
	return mdb.findOneBooking(ctx, bson.M{"payment_id": paymentID})
}

func (mdb *MongodbRepo) FindBookingBySlot(ctx context.Context, therapistID primitive.ObjectID, day time.Time, timeSlot string, statuses []PaymentStatus, exclude *primitive.ObjectID) (*Booking, error) {
	start, end := helpers.DayRange(day)
	filter := bson.M{
		"therapist_id":   therapistID,
		"date":           bson.M{"$gte": start, "$lte": end},
		"time_slot":      timeSlot,
		"payment_status": bson.M{"$in": statuses},
	}
	if exclude != nil {
		filter["_id"] = bson.M{"$ne": *exclude}
	}
	return mdb.findOneBooking(ctx, filter)
}

func (mdb *MongodbRepo) findOneBooking(ctx context.Context, filter bson.M) (*Booking, error) {
	col, err := mdb.GetCollection(ctx, BookingDbName, BookingColName)
	if err != nil {
		return nil, fmt.Errorf("error getting collection: %v", err)
	}

	var booking Booking
	if err := col.FindOne(ctx, filter).Decode(&booking); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNoBooking
		}
		return nil, fmt.Errorf("error finding booking: %v", err)
	}
	return &booking, nil
}

// UpdateBookingStatus is the only mutation bookings ever receive. The filter
// includes the expected previous status so a concurrent terminal transition is
// never clobbered; the caller gets ErrStatusConflict and must re-read.
func (mdb *MongodbRepo) UpdateBookingStatus(ctx context.Context, id primitive.ObjectID, from, to PaymentStatus, paymentID, signature string) error {
	col, err := mdb.GetCollection(ctx, BookingDbName, BookingColName)
	if err != nil {
		return fmt.Errorf("error getting collection: %v", err)
	}

	set := bson.M{
		"payment_status": to,
		"updated_at":     time.Now(),
	}
	if paymentID != "" {
		set["payment_id"] = paymentID
	}
	if signature != "" {
		set["signature"] = signature
	}

	res, err := col.UpdateOne(ctx,
		bson.M{"_id": id, "payment_status": from},
		bson.M{"$set": set},
	)
	if err != nil {
		return fmt.Errorf("error updating booking status: %v", err)
	}
	if res.MatchedCount == 0 {
		return ErrStatusConflict
	}
	return nil
}

func (mdb *MongodbRepo) BookedSlots(ctx context.Context, therapistID primitive.ObjectID, day time.Time) ([]string, error) {
	col, err := mdb.GetCollection(ctx, BookingDbName, BookingColName)
	if err != nil {
		return nil, fmt.Errorf("error getting collection: %v", err)
	}

	start, end := helpers.DayRange(day)
	filter := bson.M{
		"therapist_id":   therapistID,
		"date":           bson.M{"$gte": start, "$lte": end},
		"payment_status": bson.M{"$in": []PaymentStatus{StatusPending, StatusPaid}},
	}

	cursor, err := col.Find(ctx, filter, options.Find().SetProjection(bson.M{"time_slot": 1}))
	if err != nil {
		return nil, fmt.Errorf("error finding booked slots: %v", err)
	}
	defer cursor.Close(ctx)

	var slots []string
	for cursor.Next(ctx) {
		var doc struct {
			TimeSlot string `bson:"time_slot"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("error decoding booking: %v", err)
		}
		slots = append(slots, doc.TimeSlot)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %v", err)
	}

	return slots, nil
}

func (mdb *MongodbRepo) ListBookings(ctx context.Context, offset, limit int) ([]*Booking, int64, error) {
	col, err := mdb.GetCollection(ctx, BookingDbName, BookingColName)
	if err != nil {
		return nil, 0, fmt.Errorf("error getting collection: %v", err)
	}

	total, err := col.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, 0, fmt.Errorf("error counting bookings: %v", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))

	cursor, err := col.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("error listing bookings: %v", err)
	}
	defer cursor.Close(ctx)

	var bookings []*Booking
	for cursor.Next(ctx) {
		var b Booking
		if err := cursor.Decode(&b); err != nil {
			return nil, 0, fmt.Errorf("error decoding booking: %v", err)
		}
		bookings = append(bookings, &b)
	}
	if err := cursor.Err(); err != nil {
		return nil, 0, fmt.Errorf("cursor error: %v", err)
	}

	return bookings, total, nil
}
