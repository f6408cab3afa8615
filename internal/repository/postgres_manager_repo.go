package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/dealscope/internal/model"
)

// PostgresManagerRepo はPostgreSQLを使用したマネージャーリポジトリ。
type PostgresManagerRepo struct {
	db *sql.DB
}

// NewPostgresManagerRepo はPostgresManagerRepoを生成する。
func NewPostgresManagerRepo(db *sql.DB) *PostgresManagerRepo {
	return &PostgresManagerRepo{db: db}
}

// Upsert はマネージャーをid単位で挿入または上書きする。
// ON CONFLICTによる単一文のため、同時読み取りが部分更新された行を
// 観測することはない。
func (r *PostgresManagerRepo) Upsert(ctx context.Context, manager *model.Manager) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO managers (id, name, last_name, is_admin, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, now(), now())
		 ON CONFLICT (id) DO UPDATE SET
		    name = EXCLUDED.name,
		    last_name = EXCLUDED.last_name,
		    is_admin = EXCLUDED.is_admin,
		    updated_at = now()`,
		manager.ID, manager.Name, manager.LastName, manager.IsAdmin,
	)
	if err != nil {
		return &model.StorageError{Op: "upsert_manager", Err: err}
	}
	return nil
}

// FindByID は指定IDのマネージャーを取得する。見つからない場合はnilを返す。
func (r *PostgresManagerRepo) FindByID(ctx context.Context, id int64) (*model.Manager, error) {
	m := &model.Manager{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, last_name, is_admin FROM managers WHERE id = $1`,
		id,
	).Scan(&m.ID, &m.Name, &m.LastName, &m.IsAdmin)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &model.StorageError{Op: "find_manager", Err: err}
	}

	return m, nil
}

// List は全マネージャーをid昇順で返す。
func (r *PostgresManagerRepo) List(ctx context.Context) ([]*model.Manager, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, last_name, is_admin FROM managers ORDER BY id`,
	)
	if err != nil {
		return nil, &model.StorageError{Op: "list_managers", Err: err}
	}
	defer rows.Close()

	var managers []*model.Manager
	for rows.Next() {
		m := &model.Manager{}
		if err := rows.Scan(&m.ID, &m.Name, &m.LastName, &m.IsAdmin); err != nil {
			return nil, &model.StorageError{Op: "list_managers", Err: fmt.Errorf("マネージャー行の読み取りに失敗しました: %w", err)}
		}
		managers = append(managers, m)
	}
	if err := rows.Err(); err != nil {
		return nil, &model.StorageError{Op: "list_managers", Err: fmt.Errorf("マネージャー一覧の走査に失敗しました: %w", err)}
	}

	return managers, nil
}

// compile-time interface check
var _ ManagerRepository = (*PostgresManagerRepo)(nil)
