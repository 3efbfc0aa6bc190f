package persistence

import (
	"context"
	"time"

	"github.com/gocql/gocql"

	"QChat/logger"
	"QChat/module/chat/model"
	"QChat/tools/ids"
)

// CassandraEngine stores each message as a row partitioned by room and
// clustered by ts. Expected schema:
//
//	CREATE TABLE messages (
//	    room    text,
//	    ts      timestamp,
//	    id      text,
//	    read    boolean,
//	    late    boolean,
//	    channel text,
//	    "from"  text,
//	    content text,
//	    type    text,
//	    PRIMARY KEY ((room), ts, id)
//	) WITH CLUSTERING ORDER BY (ts DESC);
//
// Late detection issues a max(ts) aggregate scoped to the partition before
// every insert.
type CassandraEngine struct {
	session *gocql.Session
}

type CassandraConfig struct {
	Hosts    []string
	Keyspace string
}

// Range reads default to the original deployment's window cap when the
// caller supplies no limit.
const cassandraDefaultLimit = 30

// Upper bound used for "no end of window".
const cassandraMaxTsMillis = int64(4075808567000)

func NewCassandraEngine(cfg CassandraConfig) (*CassandraEngine, error) {
	cluster := gocql.NewCluster(cfg.Hosts...)
	cluster.Keyspace = cfg.Keyspace
	cluster.Consistency = gocql.Quorum
	cluster.RetryPolicy = &gocql.SimpleRetryPolicy{NumRetries: 3}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, err
	}
	return &CassandraEngine{session: session}, nil
}

func (e *CassandraEngine) Close() {
	e.session.Close()
}

// InitializeStorageForRoom has no per-room setup; the messages table is
// shared across rooms.
func (e *CassandraEngine) InitializeStorageForRoom(ctx context.Context, roomID string) bool {
	return true
}

func (e *CassandraEngine) PersistMessage(ctx context.Context, identity, roomID string, draft *model.Draft) *model.Message {
	var maxTs time.Time
	err := e.session.Query(`SELECT max(ts) FROM messages WHERE room = ?`, roomID).
		WithContext(ctx).Scan(&maxTs)
	if err != nil && err != gocql.ErrNotFound {
		logger.Errorf("error while reading max ts from cassandra: %v", err)
		return nil
	}
	late := !maxTs.IsZero() && draft.Ts < maxTs.UnixMilli()

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

	err = e.session.Query(
		`INSERT INTO messages (id, ts, read, late, channel, "from", room, content, type) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, time.UnixMilli(msg.Ts), msg.Read, msg.Late, msg.Channel, msg.From, roomID, msg.Content, string(msg.Type),
	).WithContext(ctx).Exec()
	if err != nil {
		logger.Errorf("error while writing to cassandra: %v", err)
		return nil
	}
	return msg
}

func (e *CassandraEngine) StreamByTimestamp(ctx context.Context, identity, roomID string, opts TsOptions) StreamOutput {
	start := time.UnixMilli(opts.StartTs)
	endMillis := opts.EndTs
	if endMillis == 0 {
		endMillis = cassandraMaxTsMillis
	}
	end := time.UnixMilli(endMillis)
	limit := opts.Limit
	if limit <= 0 {
		limit = cassandraDefaultLimit
	}

	iter := e.session.Query(
		`SELECT id, ts, read, late, channel, "from", content, type FROM messages WHERE room = ? AND ts >= ? AND ts <= ? LIMIT ?`,
		roomID, start, end, limit,
	).WithContext(ctx).Iter()
	windowed, err := scanMessages(iter)
	if err != nil {
		logger.Errorf("error while reading from cassandra: %v", err)
		return StreamOutput{Success: false, FailureReason: err.Error(), Messages: []*model.Message{}}
	}

	// Late unread messages addressed to the caller surface regardless of
	// the window. late is not part of the clustering key, hence the
	// partition-scoped filtering read.
	iter = e.session.Query(
		`SELECT id, ts, read, late, channel, "from", content, type FROM messages WHERE room = ? AND late = true ALLOW FILTERING`,
		roomID,
	).WithContext(ctx).Iter()
	lateRows, err := scanMessages(iter)
	if err != nil {
		logger.Errorf("error while reading from cassandra: %v", err)
		return StreamOutput{Success: false, FailureReason: err.Error(), Messages: []*model.Message{}}
	}
	for _, m := range lateRows {
		if !m.Read && m.Channel == identity {
			windowed = append(windowed, m)
		}
	}

	return StreamOutput{Success: true, Messages: windowed}
}

func (e *CassandraEngine) StreamByIDs(ctx context.Context, roomID string, opts IDOptions) StreamOutput {
	if len(opts.MessageIDs) == 0 {
		return StreamOutput{Success: true, Messages: []*model.Message{}}
	}

	iter := e.session.Query(
		`SELECT id, ts, read, late, channel, "from", content, type FROM messages WHERE room = ? AND id IN ? ALLOW FILTERING`,
		roomID, opts.MessageIDs,
	).WithContext(ctx).Iter()
	msgs, err := scanMessages(iter)
	if err != nil {
		logger.Errorf("error while reading from cassandra: %v", err)
		return StreamOutput{Success: false, Messages: []*model.Message{}}
	}
	return StreamOutput{Success: true, Messages: msgs}
}

func (e *CassandraEngine) UpdateReadStatus(ctx context.Context, identity, roomID string, messageIDs []string) bool {
	if len(messageIDs) == 0 {
		return true
	}
	wanted := make(map[string]bool, len(messageIDs))
	for _, id := range messageIDs {
		wanted[id] = true
	}

	// Updates need the full primary key, so resolve (ts, id, channel) for
	// the partition first.
	iter := e.session.Query(
		`SELECT id, ts, channel FROM messages WHERE room = ?`, roomID,
	).WithContext(ctx).Iter()

	type rowKey struct {
		id string
		ts time.Time
	}
	var targets []rowKey
	seen := 0

	var (
		id      string
		ts      time.Time
		channel string
	)
	for iter.Scan(&id, &ts, &channel) {
		seen++
		if wanted[id] && channel == identity {
			targets = append(targets, rowKey{id: id, ts: ts})
		}
	}
	if err := iter.Close(); err != nil {
		logger.Errorf("error while reading from cassandra: %v", err)
		return false
	}
	if seen == 0 {
		return false
	}

	for _, t := range targets {
		err := e.session.Query(
			`UPDATE messages SET read = true WHERE room = ? AND ts = ? AND id = ?`,
			roomID, t.ts, t.id,
		).WithContext(ctx).Exec()
		if err != nil {
			logger.Errorf("error while updating read status in cassandra: %v", err)
			return false
		}
	}
	return true
}

func scanMessages(iter *gocql.Iter) ([]*model.Message, error) {
	out := make([]*model.Message, 0)
	var (
		id       string
		ts       time.Time
		read     bool
		late     bool
		channel  string
		from     string
		content  string
		typeName string
	)
	for iter.Scan(&id, &ts, &read, &late, &channel, &from, &content, &typeName) {
		out = append(out, &model.Message{
			ID:      id,
			Ts:      ts.UnixMilli(),
			Read:    read,
			Late:    late,
			Channel: channel,
			From:    from,
			Content: content,
			Type:    model.ContentType(typeName),
		})
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return out, nil
}
