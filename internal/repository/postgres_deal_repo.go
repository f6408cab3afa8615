package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/dealscope/internal/model"
)

// PostgresDealRepo はPostgreSQLを使用したディールリポジトリ。
type PostgresDealRepo struct {
	db *sql.DB
}

// NewPostgresDealRepo はPostgresDealRepoを生成する。
func NewPostgresDealRepo(db *sql.DB) *PostgresDealRepo {
	return &PostgresDealRepo{db: db}
}

// Upsert はディールをid単位で挿入または上書きする。
// ON CONFLICTによる単一文のため、1レコードの全フィールドは
// まとめて更新される。assigned_by_idはソフト参照であり、
// 参照先マネージャーが存在しなくても失敗しない。
func (r *PostgresDealRepo) Upsert(ctx context.Context, deal *model.Deal) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO deals (
		    id, title, type_id, stage_id, currency_id, source_id,
		    opportunity, assigned_by_id,
		    begindate, closedate, date_create, date_modify, last_activity_time,
		    date_create_ts, closedate_ts, created_at, updated_at
		 ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, now(), now())
		 ON CONFLICT (id) DO UPDATE SET
		    title = EXCLUDED.title,
		    type_id = EXCLUDED.type_id,
		    stage_id = EXCLUDED.stage_id,
		    currency_id = EXCLUDED.currency_id,
		    source_id = EXCLUDED.source_id,
		    opportunity = EXCLUDED.opportunity,
		    assigned_by_id = EXCLUDED.assigned_by_id,
		    begindate = EXCLUDED.begindate,
		    closedate = EXCLUDED.closedate,
		    date_create = EXCLUDED.date_create,
		    date_modify = EXCLUDED.date_modify,
		    last_activity_time = EXCLUDED.last_activity_time,
		    date_create_ts = EXCLUDED.date_create_ts,
		    closedate_ts = EXCLUDED.closedate_ts,
		    updated_at = now()`,
		deal.ID, deal.Title, deal.TypeID, deal.StageID, deal.CurrencyID, deal.SourceID,
		deal.Opportunity, deal.AssignedByID,
		deal.BeginDate, deal.CloseDate, deal.DateCreate, deal.DateModify, deal.LastActivityTime,
		nullTime(deal.DateCreateAt), nullTime(deal.CloseDateAt),
	)
	if err != nil {
		return &model.StorageError{Op: "upsert_deal", Err: err}
	}
	return nil
}

// List はフィルタ条件に合致するディールを返す。
// 日付範囲指定時、date_create_tsがNULL（パース不能）の行は除外される。
// 順序は不定であり、必要な並びは集計側が責任を持つ。
func (r *PostgresDealRepo) List(ctx context.Context, filter DealFilter) ([]*model.Deal, error) {
	query := `SELECT id, title, type_id, stage_id, currency_id, source_id,
	                 opportunity, assigned_by_id,
	                 begindate, closedate, date_create, date_modify, last_activity_time,
	                 date_create_ts, closedate_ts
	          FROM deals WHERE 1=1`

	var args []interface{}
	argIndex := 1

	if filter.CreatedFrom != nil {
		query += fmt.Sprintf(" AND date_create_ts IS NOT NULL AND date_create_ts >= $%d", argIndex)
		args = append(args, *filter.CreatedFrom)
		argIndex++
	}
	if filter.CreatedUntil != nil {
		query += fmt.Sprintf(" AND date_create_ts IS NOT NULL AND date_create_ts < $%d", argIndex)
		args = append(args, *filter.CreatedUntil)
		argIndex++
	}
	if filter.AssignedByID != nil {
		query += fmt.Sprintf(" AND assigned_by_id = $%d", argIndex)
		args = append(args, *filter.AssignedByID)
		argIndex++
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &model.StorageError{Op: "list_deals", Err: err}
	}
	defer rows.Close()

	var deals []*model.Deal
	for rows.Next() {
		deal := &model.Deal{}
		var dateCreateTS, closeDateTS sql.NullTime

		if err := rows.Scan(
			&deal.ID, &deal.Title, &deal.TypeID, &deal.StageID, &deal.CurrencyID, &deal.SourceID,
			&deal.Opportunity, &deal.AssignedByID,
			&deal.BeginDate, &deal.CloseDate, &deal.DateCreate, &deal.DateModify, &deal.LastActivityTime,
			&dateCreateTS, &closeDateTS,
		); err != nil {
			return nil, &model.StorageError{Op: "list_deals", Err: fmt.Errorf("ディール行の読み取りに失敗しました: %w", err)}
		}

		if dateCreateTS.Valid {
			t := dateCreateTS.Time
			deal.DateCreateAt = &t
		}
		if closeDateTS.Valid {
			t := closeDateTS.Time
			deal.CloseDateAt = &t
		}

		deals = append(deals, deal)
	}
	if err := rows.Err(); err != nil {
		return nil, &model.StorageError{Op: "list_deals", Err: fmt.Errorf("ディール一覧の走査に失敗しました: %w", err)}
	}

	return deals, nil
}

// Count は全ディール数を返す。
func (r *PostgresDealRepo) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM deals`).Scan(&count); err != nil {
		return 0, &model.StorageError{Op: "count_deals", Err: err}
	}
	return count, nil
}

// nullTime は*time.Timeをsql.NullTimeに変換する。
func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// compile-time interface check
var _ DealRepository = (*PostgresDealRepo)(nil)
