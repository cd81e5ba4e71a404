package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Factoria/internal/domain"
)

const maxListLimit = 1000

const schema = `
	CREATE TABLE IF NOT EXISTS commands (
		command_id    TEXT PRIMARY KEY,
		line_id       TEXT NOT NULL,
		action        TEXT NOT NULL,
		target        TEXT NOT NULL,
		params        JSONB NOT NULL,
		priority      TEXT,
		reasoning     TEXT,
		mode          TEXT NOT NULL,
		dispatched_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS commands_line_dispatched_idx
		ON commands (line_id, dispatched_at DESC);

	CREATE TABLE IF NOT EXISTS command_responses (
		id          BIGSERIAL PRIMARY KEY,
		line_id     TEXT NOT NULL,
		command_id  TEXT,
		response    TEXT NOT NULL,
		received_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS command_responses_line_idx
		ON command_responses (line_id, received_at DESC);
`

// CommandRepo — журнал отправленных команд и ответов в PostgreSQL.
type CommandRepo struct {
	pool *pgxpool.Pool
}

// NewCommandRepo создаёт новый CommandRepo.
func NewCommandRepo(pool *pgxpool.Pool) *CommandRepo {
	return &CommandRepo{pool: pool}
}

// EnsureSchema создаёт таблицы, если их нет.
func (r *CommandRepo) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// SaveCommand сохраняет отправленную команду.
// Повторное сохранение того же command_id возвращает ErrAlreadyExists.
func (r *CommandRepo) SaveCommand(ctx context.Context, rec domain.CommandRecord) error {
	paramsJSON, err := json.Marshal(rec.Command.Params)
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}

	query := `
		INSERT INTO commands (command_id, line_id, action, target, params, priority, reasoning, mode, dispatched_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (command_id) DO NOTHING
	`
	result, err := r.pool.Exec(ctx, query,
		rec.Command.CommandID,
		rec.LineID,
		string(rec.Command.Action),
		rec.Command.Target,
		paramsJSON,
		nullString(rec.Command.Priority),
		nullString(rec.Command.Reasoning),
		rec.Mode,
		rec.DispatchedAt,
	)
	if err != nil {
		return fmt.Errorf("insert command: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: command %s", ErrAlreadyExists, rec.Command.CommandID)
	}
	return nil
}

// SaveResponse сохраняет ответ исполнителя.
func (r *CommandRepo) SaveResponse(ctx context.Context, resp domain.CommandResponse) error {
	query := `
		INSERT INTO command_responses (line_id, command_id, response, received_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := r.pool.Exec(ctx, query,
		resp.LineID,
		nullString(resp.CommandID),
		resp.Response,
		resp.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("insert response: %w", err)
	}
	return nil
}

// ListRecent возвращает последние limit команд линии, от новых к старым.
func (r *CommandRepo) ListRecent(ctx context.Context, lineID string, limit int) ([]domain.CommandRecord, error) {
	if limit <= 0 || limit > maxListLimit {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLimit, limit)
	}

	query := `
		SELECT command_id, line_id, action, target, params, priority, reasoning, mode, dispatched_at
		FROM commands
		WHERE line_id = $1
		ORDER BY dispatched_at DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, lineID, limit)
	if err != nil {
		return nil, fmt.Errorf("list commands: %w", err)
	}
	defer rows.Close()

	var records []domain.CommandRecord
	for rows.Next() {
		rec, err := scanCommand(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func scanCommand(row pgx.Row) (domain.CommandRecord, error) {
	var (
		rec                 domain.CommandRecord
		action              string
		paramsJSON          []byte
		priority, reasoning *string
	)
	err := row.Scan(
		&rec.Command.CommandID,
		&rec.LineID,
		&action,
		&rec.Command.Target,
		&paramsJSON,
		&priority,
		&reasoning,
		&rec.Mode,
		&rec.DispatchedAt,
	)
	if err != nil {
		return domain.CommandRecord{}, fmt.Errorf("scan command: %w", err)
	}

	rec.Command.Action = domain.Action(action)
	if err := json.Unmarshal(paramsJSON, &rec.Command.Params); err != nil {
		return domain.CommandRecord{}, fmt.Errorf("unmarshal params: %w", err)
	}
	if priority != nil {
		rec.Command.Priority = *priority
	}
	if reasoning != nil {
		rec.Command.Reasoning = *reasoning
	}
	return rec, nil
}

// nullString возвращает nil для пустой строки.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
