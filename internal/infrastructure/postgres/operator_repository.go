package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/emisor-fiscal/internal/domain"
	"github.com/jhoicas/emisor-fiscal/internal/domain/entity"
	"github.com/jhoicas/emisor-fiscal/internal/domain/repository"
)

var _ repository.OperatorRepository = (*OperatorRepo)(nil)

// OperatorRepo implementación del puerto OperatorRepository sobre PostgreSQL.
type OperatorRepo struct {
	q Querier
}

// NewOperatorRepository construye el adaptador de persistencia para operadores.
func NewOperatorRepository(q Querier) *OperatorRepo {
	return &OperatorRepo{q: q}
}

// Create persiste un nuevo operador.
func (r *OperatorRepo) Create(ctx context.Context, op *entity.Operator) error {
	query := `
		INSERT INTO operators (id, login, password_hash, name, role, terminal_id, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.q.Exec(ctx, query,
		op.ID, op.Login, op.PasswordHash, op.Name, op.Role, op.TerminalID, op.Active,
		op.CreatedAt, op.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrLoginTaken
		}
		return fmt.Errorf("insert operator: %w", err)
	}
	return nil
}

// GetByLogin obtiene un operador por login.
func (r *OperatorRepo) GetByLogin(ctx context.Context, login string) (*entity.Operator, error) {
	query := `
		SELECT id, login, password_hash, name, role, terminal_id, active, created_at, updated_at
		FROM operators WHERE login = $1`
	var op entity.Operator
	err := r.q.QueryRow(ctx, query, login).Scan(
		&op.ID, &op.Login, &op.PasswordHash, &op.Name, &op.Role, &op.TerminalID, &op.Active,
		&op.CreatedAt, &op.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get operator: %w", err)
	}
	return &op, nil
}
