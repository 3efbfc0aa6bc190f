package persistence

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"QChat/logger"
	"QChat/module/chat/model"
	"QChat/tools/ids"
)

const redisMessagesKeyBasePrefix = "messages_for_room_"

// The late-message segment of a timestamp stream is not windowed; RediSearch
// still wants an explicit page size, so we use one large enough to act as
// "all of them".
const redisUnboundedLimit = 10000

// RedisEngine stores each message as a JSON document keyed
// "messages_for_room_<roomId>:<messageId>" and maintains one search index
// per room over ts/late/read/channel/id. A side key "<roomId>-maxTs" tracks
// the room's maximum Ts for O(1) late detection; the read-then-write on it
// is deliberately best-effort (late detection is advisory, not an ordering
// guarantee).
type RedisEngine struct {
	rdb *redis.Client
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

func NewRedisEngine(cfg RedisConfig) (*RedisEngine, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &RedisEngine{rdb: rdb}, nil
}

// storedMessage is the on-wire document shape: boolean fields are stored as
// their string serialization and coerced back on read.
type storedMessage struct {
	ID      string `json:"id"`
	Ts      int64  `json:"ts"`
	Read    string `json:"read"`
	Late    string `json:"late"`
	Channel string `json:"channel"`
	From    string `json:"from"`
	Content string `json:"content"`
	Type    string `json:"type"`
}

func (s *storedMessage) toModel() *model.Message {
	return &model.Message{
		ID:      s.ID,
		Ts:      s.Ts,
		Read:    s.Read == "true",
		Late:    s.Late == "true",
		Channel: s.Channel,
		From:    s.From,
		Content: s.Content,
		Type:    model.ContentType(s.Type),
	}
}

func redisKeyPrefix(roomID string) string {
	return redisMessagesKeyBasePrefix + roomID
}

func redisMaxTsKey(roomID string) string {
	return roomID + "-maxTs"
}

// InitializeStorageForRoom creates the room's search index once. A racing
// "Index already exists" from another connect is success, not failure.
func (e *RedisEngine) InitializeStorageForRoom(ctx context.Context, roomID string) bool {
	idx := redisKeyPrefix(roomID)
	if _, err := e.rdb.FTInfo(ctx, idx).Result(); err == nil {
		return true
	}

	err := e.rdb.FTCreate(ctx, idx,
		&redis.FTCreateOptions{
			OnJSON: true,
			Prefix: []interface{}{idx + ":"},
			Score:  1.0,
		},
		&redis.FieldSchema{FieldName: "$.read", As: "read", FieldType: redis.SearchFieldTypeText},
		&redis.FieldSchema{FieldName: "$.late", As: "late", FieldType: redis.SearchFieldTypeText},
		&redis.FieldSchema{FieldName: "$.ts", As: "ts", FieldType: redis.SearchFieldTypeNumeric, Sortable: true},
		&redis.FieldSchema{FieldName: "$.id", As: "id", FieldType: redis.SearchFieldTypeText},
		&redis.FieldSchema{FieldName: "$.channel", As: "channel", FieldType: redis.SearchFieldTypeText},
		&redis.FieldSchema{FieldName: "$.from", As: "from", FieldType: redis.SearchFieldTypeText},
		&redis.FieldSchema{FieldName: "$.content", As: "content", FieldType: redis.SearchFieldTypeText},
		&redis.FieldSchema{FieldName: "$.type", As: "type", FieldType: redis.SearchFieldTypeText},
	).Err()
	if err != nil {
		if strings.Contains(err.Error(), "Index already exists") {
			logger.Warn("tried to recreate existing redis index, continuing anyway")
			return true
		}
		logger.Errorf("error occurred while creating redis index: %v", err)
		return false
	}
	return true
}

func (e *RedisEngine) PersistMessage(ctx context.Context, identity, roomID string, draft *model.Draft) *model.Message {
	maxTsKey := redisMaxTsKey(roomID)

	late := false
	maxTsRaw, err := e.rdb.Get(ctx, maxTsKey).Result()
	switch {
	case err == redis.Nil:
		// first message for the room
	case err != nil:
		logger.Errorf("error occurred while persisting message to redis: %v", err)
		return nil
	default:
		maxTs, perr := strconv.ParseInt(maxTsRaw, 10, 64)
		if perr == nil {
			late = draft.Ts < maxTs
		}
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

	doc := storedMessage{
		ID:      msg.ID,
		Ts:      msg.Ts,
		Read:    strconv.FormatBool(msg.Read),
		Late:    strconv.FormatBool(msg.Late),
		Channel: msg.Channel,
		From:    msg.From,
		Content: msg.Content,
		Type:    string(msg.Type),
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		logger.Errorf("error occurred while persisting message to redis: %v", err)
		return nil
	}

	key := redisKeyPrefix(roomID) + ":" + msg.ID
	if err := e.rdb.JSONSet(ctx, key, "$", string(raw)).Err(); err != nil {
		logger.Errorf("error occurred while persisting message to redis: %v", err)
		return nil
	}
	if !late {
		if err := e.rdb.Set(ctx, maxTsKey, strconv.FormatInt(msg.Ts, 10), 0).Err(); err != nil {
			logger.Errorf("error occurred while updating room max ts: %v", err)
		}
	}
	return msg
}

func (e *RedisEngine) StreamByTimestamp(ctx context.Context, identity, roomID string, opts TsOptions) StreamOutput {
	idx := redisKeyPrefix(roomID)

	start := "-inf"
	if opts.StartTs > 0 {
		start = strconv.FormatInt(opts.StartTs, 10)
	}
	end := "+inf"
	if opts.EndTs > 0 {
		end = strconv.FormatInt(opts.EndTs, 10)
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultStreamLimit
	}

	windowed, err := e.search(ctx, idx, "@ts:["+start+" "+end+"]", &redis.FTSearchOptions{
		SortBy:         []redis.FTSearchSortBy{{FieldName: "ts", Desc: true}},
		LimitOffset:    0,
		Limit:          limit,
		DialectVersion: 2,
	})
	if err != nil {
		logger.Errorf("error occurred while streaming messages by timestamp: %v", err)
		return StreamOutput{Success: false, FailureReason: "error", Messages: []*model.Message{}}
	}

	lateQuery := `(@late:"true" @read:"false" @channel:"` + identity + `")`
	late, err := e.search(ctx, idx, lateQuery, &redis.FTSearchOptions{
		LimitOffset:    0,
		Limit:          redisUnboundedLimit,
		DialectVersion: 2,
	})
	if err != nil {
		logger.Errorf("error occurred while streaming messages by timestamp: %v", err)
		return StreamOutput{Success: false, FailureReason: "error", Messages: []*model.Message{}}
	}

	// Intentionally no dedup: a late message inside the window appears in
	// both segments.
	return StreamOutput{Success: true, Messages: append(windowed, late...)}
}

func (e *RedisEngine) StreamByIDs(ctx context.Context, roomID string, opts IDOptions) StreamOutput {
	if len(opts.MessageIDs) == 0 {
		return StreamOutput{Success: true, Messages: []*model.Message{}}
	}

	query := "@id:(" + strings.Join(opts.MessageIDs, " ") + ")"
	msgs, err := e.search(ctx, redisKeyPrefix(roomID), query, &redis.FTSearchOptions{
		LimitOffset:    0,
		Limit:          redisUnboundedLimit,
		DialectVersion: 2,
	})
	if err != nil {
		logger.Errorf("error occurred while streaming messages by id: %v", err)
		return StreamOutput{Success: false, FailureReason: "error", Messages: []*model.Message{}}
	}
	return StreamOutput{Success: true, Messages: msgs}
}

func (e *RedisEngine) UpdateReadStatus(ctx context.Context, identity, roomID string, messageIDs []string) bool {
	existing, err := e.search(ctx, redisKeyPrefix(roomID), "*", &redis.FTSearchOptions{
		LimitOffset:    0,
		Limit:          1,
		DialectVersion: 2,
	})
	if err != nil || len(existing) == 0 {
		return false
	}

	// Only the recipient may acknowledge: resolve the candidate documents
	// first and flip read on those addressed to the caller.
	out := e.StreamByIDs(ctx, roomID, IDOptions{MessageIDs: messageIDs})
	if !out.Success {
		return false
	}

	prefix := redisKeyPrefix(roomID)
	for _, m := range out.Messages {
		if m.Channel != identity {
			continue
		}
		key := prefix + ":" + m.ID
		if err := e.rdb.JSONSet(ctx, key, "$.read", `"true"`).Err(); err != nil {
			logger.Errorf("error occurred while updating the read status of messages: %v", err)
			return false
		}
	}
	return true
}

func (e *RedisEngine) search(ctx context.Context, idx, query string, opts *redis.FTSearchOptions) ([]*model.Message, error) {
	res, err := e.rdb.FTSearchWithArgs(ctx, idx, query, opts).Result()
	if err != nil {
		return nil, err
	}

	out := make([]*model.Message, 0, len(res.Docs))
	for _, doc := range res.Docs {
		raw, ok := doc.Fields["$"]
		if !ok {
			continue
		}
		var stored storedMessage
		if err := json.Unmarshal([]byte(raw), &stored); err != nil {
			logger.Warnf("skipping unreadable message document %s: %v", doc.ID, err)
			continue
		}
		out = append(out, stored.toModel())
	}
	return out, nil
}
