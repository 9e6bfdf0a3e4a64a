package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"shelterchat/backend/internal/apperr"
	"shelterchat/backend/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const messagesCollection = "messages"

type messageDocument struct {
	RoomID    int64     `bson:"room_id"`
	Seq       int64     `bson:"seq"`
	SenderID  int64     `bson:"sender_id"`
	Type      string    `bson:"type"`
	Content   string    `bson:"content,omitempty"`
	FileName  string    `bson:"file_name,omitempty"`
	FileURL   string    `bson:"file_url,omitempty"`
	FileSize  *int64    `bson:"file_size,omitempty"`
	CreatedAt time.Time `bson:"created_at"`
}

func toDocument(m *models.Message) messageDocument {
	return messageDocument{
		RoomID:    m.RoomID,
		Seq:       m.Seq,
		SenderID:  m.SenderID,
		Type:      string(m.Type),
		Content:   m.Content,
		FileName:  m.FileName,
		FileURL:   m.FileURL,
		FileSize:  m.FileSize,
		CreatedAt: m.CreatedAt,
	}
}

func (d messageDocument) toModel() models.Message {
	return models.Message{
		RoomID:    d.RoomID,
		Seq:       d.Seq,
		SenderID:  d.SenderID,
		Type:      models.MessageType(d.Type),
		Content:   d.Content,
		FileName:  d.FileName,
		FileURL:   d.FileURL,
		FileSize:  d.FileSize,
		CreatedAt: d.CreatedAt,
	}
}

// ConnectMongo opens a client and verifies the connection.
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client, nil
}

// MongoMessageStore keeps the message log in a MongoDB collection with a
// unique (room_id, seq) index.
type MongoMessageStore struct {
	coll *mongo.Collection
}

func NewMongoMessageStore(ctx context.Context, db *mongo.Database) (*MongoMessageStore, error) {
	coll := db.Collection(messagesCollection)
	ix := mongo.IndexModel{
		Keys:    bson.D{{Key: "room_id", Value: 1}, {Key: "seq", Value: -1}},
		Options: options.Index().SetUnique(true).SetName("uk_room_seq"),
	}
	if _, err := coll.Indexes().CreateOne(ctx, ix); err != nil {
		return nil, fmt.Errorf("create message index: %w", err)
	}
	return &MongoMessageStore{coll: coll}, nil
}

func (s *MongoMessageStore) Append(ctx context.Context, msg *models.Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	_, err := s.coll.InsertOne(ctx, toDocument(msg))
	if mongo.IsDuplicateKeyError(err) {
		return apperr.Wrap(apperr.ErrDuplicateSeq, err)
	}
	if err != nil {
		return apperr.Infra("append message", err)
	}
	return nil
}

func (s *MongoMessageStore) FetchBefore(ctx context.Context, roomID int64, beforeSeq *int64, limit int) ([]models.Message, error) {
	filter := bson.M{"room_id": roomID}
	if beforeSeq != nil {
		filter["seq"] = bson.M{"$lt": *beforeSeq}
	}
	opts := options.Find().SetSort(bson.D{{Key: "seq", Value: -1}}).SetLimit(int64(limit))
	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, apperr.Infra("fetch messages", err)
	}
	defer cur.Close(ctx)

	out := []models.Message{}
	for cur.Next(ctx) {
		var d messageDocument
		if err := cur.Decode(&d); err != nil {
			return nil, apperr.Infra("decode message", err)
		}
		out = append(out, d.toModel())
	}
	if err := cur.Err(); err != nil {
		return nil, apperr.Infra("fetch messages", err)
	}
	return out, nil
}

func (s *MongoMessageStore) LatestSeq(ctx context.Context, roomID int64) (int64, error) {
	opts := options.FindOne().
		SetSort(bson.D{{Key: "seq", Value: -1}}).
		SetProjection(bson.M{"seq": 1})
	var d messageDocument
	err := s.coll.FindOne(ctx, bson.M{"room_id": roomID}, opts).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, nil
	}
	if err != nil {
		return 0, apperr.Infra("latest seq", err)
	}
	return d.Seq, nil
}

func (s *MongoMessageStore) LatestSeqForRooms(ctx context.Context, roomIDs []int64) (map[int64]int64, error) {
	out := make(map[int64]int64, len(roomIDs))
	if len(roomIDs) == 0 {
		return out, nil
	}
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"room_id": bson.M{"$in": roomIDs}}}},
		{{Key: "$group", Value: bson.M{"_id": "$room_id", "latest": bson.M{"$max": "$seq"}}}},
	}
	cur, err := s.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, apperr.Infra("latest seq for rooms", err)
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		var row struct {
			RoomID int64 `bson:"_id"`
			Latest int64 `bson:"latest"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, apperr.Infra("decode latest seq", err)
		}
		out[row.RoomID] = row.Latest
	}
	if err := cur.Err(); err != nil {
		return nil, apperr.Infra("latest seq for rooms", err)
	}
	return out, nil
}

func (s *MongoMessageStore) DeleteRoomMessages(ctx context.Context, roomID int64) error {
	if _, err := s.coll.DeleteMany(ctx, bson.M{"room_id": roomID}); err != nil {
		return apperr.Infra("delete room messages", err)
	}
	return nil
}
