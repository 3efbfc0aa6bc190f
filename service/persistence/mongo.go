package persistence

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"QChat/logger"
	"QChat/module/chat/model"
	"QChat/tools/ids"
)

// MongoEngine keeps one document per message in a shared "messages"
// collection, partitioned logically by the room field. Late detection reads
// the room's current maximum ts with a single sorted point query.
type MongoEngine struct {
	coll *mongo.Collection
}

type MongoConfig struct {
	URI      string
	Database string
}

const mongoMessagesCollection = "messages"

func NewMongoEngine(ctx context.Context, cfg MongoConfig) (*MongoEngine, error) {
	opts := options.Client().ApplyURI(cfg.URI).SetMaxPoolSize(20)

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	cli, err := mongo.Connect(connectCtx, opts)
	if err != nil {
		return nil, err
	}
	if err := cli.Ping(connectCtx, nil); err != nil {
		return nil, err
	}
	return &MongoEngine{coll: cli.Database(cfg.Database).Collection(mongoMessagesCollection)}, nil
}

type mongoMessage struct {
	ID      string `bson:"_id"`
	Room    string `bson:"room"`
	Ts      int64  `bson:"ts"`
	Read    bool   `bson:"read"`
	Late    bool   `bson:"late"`
	Channel string `bson:"channel"`
	From    string `bson:"from"`
	Content string `bson:"content"`
	Type    string `bson:"type"`
}

func (d *mongoMessage) toModel() *model.Message {
	return &model.Message{
		ID:      d.ID,
		Ts:      d.Ts,
		Read:    d.Read,
		Late:    d.Late,
		Channel: d.Channel,
		From:    d.From,
		Content: d.Content,
		Type:    model.ContentType(d.Type),
	}
}

// InitializeStorageForRoom ensures the (room, ts) index exists. CreateOne is
// idempotent, so calling this on every connect is safe.
func (e *MongoEngine) InitializeStorageForRoom(ctx context.Context, roomID string) bool {
	_, err := e.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "room", Value: 1}, {Key: "ts", Value: -1}},
	})
	if err != nil {
		logger.Errorf("error occurred while ensuring mongo index: %v", err)
		return false
	}
	return true
}

func (e *MongoEngine) PersistMessage(ctx context.Context, identity, roomID string, draft *model.Draft) *model.Message {
	late := false
	var newest mongoMessage
	err := e.coll.FindOne(ctx,
		bson.M{"room": roomID},
		options.FindOne().SetSort(bson.D{{Key: "ts", Value: -1}}),
	).Decode(&newest)
	switch {
	case err == mongo.ErrNoDocuments:
		// first message for the room
	case err != nil:
		logger.Errorf("error occurred while persisting message to mongo: %v", err)
		return nil
	default:
		late = draft.Ts < newest.Ts
	}

	msg := &model.Message{
		ID:      ids.Generate(),
		Ts:      draft.Ts,
		Read:    false,
		Late:    late,
		Channel: draft.Channel,
		From:    identity,
		Content: draft.Content,
		Type:    draft.Type,
	}
	doc := mongoMessage{
		ID:      msg.ID,
		Room:    roomID,
		Ts:      msg.Ts,
		Read:    msg.Read,
		Late:    msg.Late,
		Channel: msg.Channel,
		From:    msg.From,
		Content: msg.Content,
		Type:    string(msg.Type),
	}
	if _, err := e.coll.InsertOne(ctx, doc); err != nil {
		logger.Errorf("error occurred while persisting message to mongo: %v", err)
		return nil
	}
	return msg
}

func (e *MongoEngine) StreamByTimestamp(ctx context.Context, identity, roomID string, opts TsOptions) StreamOutput {
	end := opts.EndTs
	if end == 0 {
		end = int64(1)<<62 - 1
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultStreamLimit
	}

	windowed, err := e.find(ctx,
		bson.M{"room": roomID, "ts": bson.M{"$gte": opts.StartTs, "$lte": end}},
		options.Find().SetSort(bson.D{{Key: "ts", Value: -1}}).SetLimit(int64(limit)),
	)
	if err != nil {
		logger.Errorf("error occurred while streaming messages by timestamp: %v", err)
		return StreamOutput{Success: false, FailureReason: "error", Messages: []*model.Message{}}
	}

	late, err := e.find(ctx,
		bson.M{"room": roomID, "late": true, "read": false, "channel": identity},
		options.Find(),
	)
	if err != nil {
		logger.Errorf("error occurred while streaming messages by timestamp: %v", err)
		return StreamOutput{Success: false, FailureReason: "error", Messages: []*model.Message{}}
	}

	// No dedup across the two segments.
	return StreamOutput{Success: true, Messages: append(windowed, late...)}
}

func (e *MongoEngine) StreamByIDs(ctx context.Context, roomID string, opts IDOptions) StreamOutput {
	if len(opts.MessageIDs) == 0 {
		return StreamOutput{Success: true, Messages: []*model.Message{}}
	}

	findOpts := options.Find()
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}
	msgs, err := e.find(ctx, bson.M{"room": roomID, "_id": bson.M{"$in": opts.MessageIDs}}, findOpts)
	if err != nil {
		logger.Errorf("error occurred while streaming messages by id: %v", err)
		return StreamOutput{Success: false, FailureReason: "error", Messages: []*model.Message{}}
	}
	return StreamOutput{Success: true, Messages: msgs}
}

func (e *MongoEngine) UpdateReadStatus(ctx context.Context, identity, roomID string, messageIDs []string) bool {
	n, err := e.coll.CountDocuments(ctx, bson.M{"room": roomID}, options.Count().SetLimit(1))
	if err != nil {
		logger.Errorf("error occurred while updating the read status of messages: %v", err)
		return false
	}
	if n == 0 {
		return false
	}

	_, err = e.coll.UpdateMany(ctx,
		bson.M{"room": roomID, "_id": bson.M{"$in": messageIDs}, "channel": identity},
		bson.M{"$set": bson.M{"read": true}},
	)
	if err != nil {
		logger.Errorf("error occurred while updating the read status of messages: %v", err)
		return false
	}
	return true
}

func (e *MongoEngine) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*model.Message, error) {
	cur, err := e.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := make([]*model.Message, 0)
	for cur.Next(ctx) {
		var doc mongoMessage
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.toModel())
	}
	return out, cur.Err()
}
