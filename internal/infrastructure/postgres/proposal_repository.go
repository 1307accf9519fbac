package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/p2pmarket/marketd/internal/domain/proposal"
)

// ProposalRepository implements proposal.Repository.
type ProposalRepository struct {
	q querier
}

func NewProposalRepository(q querier) *ProposalRepository {
	return &ProposalRepository{q: q}
}

const proposalColumns = `id, hash, submitter, title, description, category, target, time_start, time_end, options, final_result_id, created_at`

func (r *ProposalRepository) Create(ctx context.Context, p *proposal.Proposal) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO proposals (`+proposalColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, p.ID, p.Hash, p.Submitter, p.Title, p.Description, p.Category, p.Target, p.TimeStart, p.TimeEnd, p.Options, p.FinalResultID, p.CreatedAt)
	return err
}

func (r *ProposalRepository) GetByHash(ctx context.Context, hash string) (*proposal.Proposal, error) {
	row := r.q.QueryRow(ctx, `SELECT `+proposalColumns+` FROM proposals WHERE hash=$1`, hash)
	return scanProposal(row)
}

func (r *ProposalRepository) ListExpired(ctx context.Context, now time.Time) ([]*proposal.Proposal, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+proposalColumns+` FROM proposals
		WHERE final_result_id IS NULL AND time_end < $1
		ORDER BY time_end ASC
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*proposal.Proposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *ProposalRepository) SetFinalResult(ctx context.Context, proposalHash string, resultID uuid.UUID) error {
	_, err := r.q.Exec(ctx, `UPDATE proposals SET final_result_id=$1 WHERE hash=$2`, resultID, proposalHash)
	return err
}

const voteColumns = `id, hash, msgid, proposal_hash, voter, option_id, signature, weight, voted_at, updated_at`

// UpsertVote keeps the row id of an earlier vote by the same voter.
func (r *ProposalRepository) UpsertVote(ctx context.Context, v *proposal.Vote) error {
	return r.q.QueryRow(ctx, `
		INSERT INTO votes (`+voteColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (proposal_hash, voter) DO UPDATE SET
			hash=EXCLUDED.hash, msgid=EXCLUDED.msgid, option_id=EXCLUDED.option_id,
			signature=EXCLUDED.signature, weight=EXCLUDED.weight,
			voted_at=EXCLUDED.voted_at, updated_at=EXCLUDED.updated_at
		RETURNING id
	`, v.ID, v.Hash, v.MsgID, v.ProposalHash, v.Voter, v.OptionID, v.Signature, v.Weight, v.VotedAt, v.UpdatedAt).Scan(&v.ID)
}

func (r *ProposalRepository) GetVote(ctx context.Context, proposalHash, voter string) (*proposal.Vote, error) {
	row := r.q.QueryRow(ctx, `SELECT `+voteColumns+` FROM votes WHERE proposal_hash=$1 AND voter=$2`, proposalHash, voter)
	return scanVote(row)
}

func (r *ProposalRepository) GetVoteByHash(ctx context.Context, hash string) (*proposal.Vote, error) {
	row := r.q.QueryRow(ctx, `SELECT `+voteColumns+` FROM votes WHERE hash=$1`, hash)
	return scanVote(row)
}

func (r *ProposalRepository) ListVotes(ctx context.Context, proposalHash string) ([]*proposal.Vote, error) {
	rows, err := r.q.Query(ctx, `SELECT `+voteColumns+` FROM votes WHERE proposal_hash=$1 ORDER BY voter ASC`, proposalHash)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*proposal.Vote
	for rows.Next() {
		v, err := scanVote(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (r *ProposalRepository) UpdateVoteWeight(ctx context.Context, voteID uuid.UUID, weight int64) error {
	_, err := r.q.Exec(ctx, `UPDATE votes SET weight=$1, updated_at=now() WHERE id=$2`, weight, voteID)
	return err
}

func (r *ProposalRepository) CreateResult(ctx context.Context, res *proposal.Result) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO proposal_results (id, proposal_hash, options, calculated_at) VALUES ($1,$2,$3,$4)
	`, res.ID, res.ProposalHash, res.Options, res.CalculatedAt)
	return err
}

func (r *ProposalRepository) GetResult(ctx context.Context, resultID uuid.UUID) (*proposal.Result, error) {
	row := r.q.QueryRow(ctx, `SELECT id, proposal_hash, options, calculated_at FROM proposal_results WHERE id=$1`, resultID)
	return scanResult(row)
}

func (r *ProposalRepository) LatestResult(ctx context.Context, proposalHash string) (*proposal.Result, error) {
	row := r.q.QueryRow(ctx, `
		SELECT id, proposal_hash, options, calculated_at FROM proposal_results
		WHERE proposal_hash=$1 ORDER BY seq DESC LIMIT 1
	`, proposalHash)
	return scanResult(row)
}

func (r *ProposalRepository) CreateFlaggedItem(ctx context.Context, f *proposal.FlaggedItem) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO flagged_items (id, proposal_hash, target, category, reason, removed, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, f.ID, f.ProposalHash, f.Target, f.Category, f.Reason, f.Removed, f.CreatedAt)
	return err
}

func (r *ProposalRepository) GetFlaggedItem(ctx context.Context, proposalHash string) (*proposal.FlaggedItem, error) {
	var f proposal.FlaggedItem
	err := r.q.QueryRow(ctx, `
		SELECT id, proposal_hash, target, category, reason, removed, created_at
		FROM flagged_items WHERE proposal_hash=$1
	`, proposalHash).Scan(&f.ID, &f.ProposalHash, &f.Target, &f.Category, &f.Reason, &f.Removed, &f.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &f, nil
}

func (r *ProposalRepository) MarkFlaggedRemoved(ctx context.Context, id uuid.UUID) error {
	_, err := r.q.Exec(ctx, `UPDATE flagged_items SET removed=TRUE WHERE id=$1`, id)
	return err
}

func scanProposal(row pgx.Row) (*proposal.Proposal, error) {
	var p proposal.Proposal
	if err := row.Scan(&p.ID, &p.Hash, &p.Submitter, &p.Title, &p.Description, &p.Category, &p.Target, &p.TimeStart, &p.TimeEnd, &p.Options, &p.FinalResultID, &p.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

func scanVote(row pgx.Row) (*proposal.Vote, error) {
	var v proposal.Vote
	if err := row.Scan(&v.ID, &v.Hash, &v.MsgID, &v.ProposalHash, &v.Voter, &v.OptionID, &v.Signature, &v.Weight, &v.VotedAt, &v.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &v, nil
}

func scanResult(row pgx.Row) (*proposal.Result, error) {
	var res proposal.Result
	if err := row.Scan(&res.ID, &res.ProposalHash, &res.Options, &res.CalculatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &res, nil
}
