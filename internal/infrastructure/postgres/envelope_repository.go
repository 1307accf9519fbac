package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/p2pmarket/marketd/internal/domain/envelope"
	"github.com/p2pmarket/marketd/internal/protocol"
)

// EnvelopeRepository implements envelope.Repository.
type EnvelopeRepository struct {
	q querier
}

func NewEnvelopeRepository(q querier) *EnvelopeRepository {
	return &EnvelopeRepository{q: q}
}

const envelopeColumns = `id, msgid, direction, status, action_type, action_hash, sender, recipient, payload, retries, retryable, last_error, received_at, processed_at, expires_at`

func (r *EnvelopeRepository) Create(ctx context.Context, e *envelope.Envelope) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO envelopes (`+envelopeColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	`, e.ID, e.MsgID, e.Direction, e.Status, e.ActionType, e.ActionHash, e.From, e.To, e.Payload, e.Retries, e.Retryable, e.LastError, e.ReceivedAt, e.ProcessedAt, e.ExpiresAt)
	return err
}

func (r *EnvelopeRepository) GetByMsgID(ctx context.Context, msgID string, dir protocol.Direction) (*envelope.Envelope, error) {
	row := r.q.QueryRow(ctx, `SELECT `+envelopeColumns+` FROM envelopes WHERE msgid=$1 AND direction=$2`, msgID, dir)
	return scanEnvelope(row)
}

func (r *EnvelopeRepository) Update(ctx context.Context, e *envelope.Envelope) error {
	_, err := r.q.Exec(ctx, `
		UPDATE envelopes
		SET status=$1, action_type=$2, action_hash=$3, retries=$4, retryable=$5, last_error=$6, processed_at=$7
		WHERE msgid=$8 AND direction=$9
	`, e.Status, e.ActionType, e.ActionHash, e.Retries, e.Retryable, e.LastError, e.ProcessedAt, e.MsgID, e.Direction)
	return err
}

func (r *EnvelopeRepository) ListProcessable(ctx context.Context, now time.Time, maxRetries, limit int) ([]*envelope.Envelope, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+envelopeColumns+` FROM envelopes
		WHERE direction='INCOMING' AND expires_at > $1
		  AND (status IN ('RECEIVED','WAITING') OR (status='PROCESSING_FAILED' AND retryable AND retries < $2))
		ORDER BY received_at ASC
		LIMIT $3
	`, now, maxRetries, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*envelope.Envelope
	for rows.Next() {
		e, err := scanEnvelope(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *EnvelopeRepository) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE envelopes SET status='EXPIRED'
		WHERE status NOT IN ('PROCESSED','SENT','EXPIRED') AND expires_at <= $1
	`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanEnvelope(row pgx.Row) (*envelope.Envelope, error) {
	var e envelope.Envelope
	if err := row.Scan(&e.ID, &e.MsgID, &e.Direction, &e.Status, &e.ActionType, &e.ActionHash, &e.From, &e.To, &e.Payload, &e.Retries, &e.Retryable, &e.LastError, &e.ReceivedAt, &e.ProcessedAt, &e.ExpiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}
