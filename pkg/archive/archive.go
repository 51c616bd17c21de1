// Package archive stores the telemetry frames flushed by the relay.
//
// The archive is write-only from the perspective of the live system.
// Stored batches are not loaded back into a history store.
package archive

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stephenafamo/bob"
	"github.com/stephenafamo/bob/dialect/psql"
	"github.com/stephenafamo/bob/dialect/psql/im"
	"github.com/stephenafamo/bob/dialect/psql/sm"
	"github.com/stephenafamo/scan"

	"github.com/mpapenbr/sequential/log"
	"github.com/mpapenbr/sequential/pkg/model"
)

const tableName = "telemetry_batch"

type (
	Repository struct {
		conn bob.Executor
		l    *log.Logger
	}
	Option func(*Repository)

	// BatchInfo summarizes a stored batch
	BatchInfo struct {
		ID          uuid.UUID       `db:"id"`
		SessionID   string          `db:"session_id"`
		CreatedAt   time.Time       `db:"created_at"`
		Frames      int32           `db:"frames"`
		FirstPacket *int32          `db:"first_packet"`
		LastPacket  *int32          `db:"last_packet"`
		MaxSpeed    decimal.Decimal `db:"max_speed"`
		MaxRpm      decimal.Decimal `db:"max_rpm"`
	}
)

func WithLogger(l *log.Logger) Option {
	return func(r *Repository) {
		r.l = l
	}
}

func NewRepository(conn bob.Executor, opts ...Option) *Repository {
	ret := &Repository{
		conn: conn,
		l:    log.Default().Named("archive"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// Store writes the frames as one batch. Empty data is ignored.
//
//nolint:whitespace // can't make both editor and linter happy
func (r *Repository) Store(
	ctx context.Context, sessionID string, data []model.RawSample,
) error {
	if len(data) == 0 {
		return nil
	}
	id, err := uuid.NewV7()
	if err != nil {
		return err
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	first, last := packetRange(data)
	maxSpeed := lo.MaxBy(data, func(a, b model.RawSample) bool { return a.SpeedKmh > b.SpeedKmh })
	maxRpm := lo.MaxBy(data, func(a, b model.RawSample) bool { return a.Rpms > b.Rpms })

	q := psql.Insert(
		im.Into(psql.Quote(tableName),
			"id", "session_id", "frames", "first_packet", "last_packet",
			"max_speed", "max_rpm", "data"),
		im.Values(psql.Arg(
			id,
			sessionID,
			int32(len(data)),
			first,
			last,
			decimal.NewFromFloat(maxSpeed.SpeedKmh).Round(2),
			decimal.NewFromFloat(maxRpm.Rpms).Round(1),
			string(payload),
		)),
	)
	if _, err := q.Exec(ctx, r.conn); err != nil {
		return err
	}
	r.l.Debug("stored batch",
		log.String("id", id.String()),
		log.String("session", sessionID),
		log.Int("frames", len(data)))
	return nil
}

// LoadInfos returns the summaries of all batches of a session, oldest first
//
//nolint:whitespace // can't make both editor and linter happy
func (r *Repository) LoadInfos(
	ctx context.Context, sessionID string,
) ([]BatchInfo, error) {
	q := psql.Select(
		sm.Columns("id", "session_id", "created_at", "frames",
			"first_packet", "last_packet", "max_speed", "max_rpm"),
		sm.From(psql.Quote(tableName)),
		sm.Where(psql.Quote("session_id").EQ(psql.Arg(sessionID))),
		sm.OrderBy("created_at").Asc(),
		sm.OrderBy("id").Asc(),
	)
	return bob.All(ctx, r.conn, q, scan.StructMapper[BatchInfo]())
}

// CountFrames returns the number of archived frames of a session
func (r *Repository) CountFrames(ctx context.Context, sessionID string) (int64, error) {
	q := psql.Select(
		sm.Columns(psql.Raw("coalesce(sum(frames), 0)")),
		sm.From(psql.Quote(tableName)),
		sm.Where(psql.Quote("session_id").EQ(psql.Arg(sessionID))),
	)
	return bob.One(ctx, r.conn, q, scan.SingleColumnMapper[int64])
}

// packetRange returns the packet ids of the first and last frame.
// nil is returned if the frames carry no packet ids.
func packetRange(data []model.RawSample) (first, last *int32) {
	if data[0].PacketID != 0 {
		first = &data[0].PacketID
	}
	if data[len(data)-1].PacketID != 0 {
		last = &data[len(data)-1].PacketID
	}
	return first, last
}
