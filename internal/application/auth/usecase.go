package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/jhoicas/emisor-fiscal/internal/application/dto"
	"github.com/jhoicas/emisor-fiscal/internal/domain"
	"github.com/jhoicas/emisor-fiscal/internal/domain/entity"
	"github.com/jhoicas/emisor-fiscal/internal/domain/repository"
	"github.com/jhoicas/emisor-fiscal/pkg/jwt"
)

const minPasswordLength = 8

// JWTConfig configuración para generación de tokens.
type JWTConfig struct {
	Secret     string
	ExpMinutes int
	Issuer     string
}

// AuthUseCase registro y login de operadores del PDV.
type AuthUseCase struct {
	operators repository.OperatorRepository
	jwtCfg    JWTConfig
	now       func() time.Time
}

// NewAuthUseCase construye el caso de uso de auth.
func NewAuthUseCase(operators repository.OperatorRepository, jwtCfg JWTConfig) *AuthUseCase {
	return &AuthUseCase{operators: operators, jwtCfg: jwtCfg, now: time.Now}
}

// RegisterOperator hashea la contraseña con bcrypt y persiste el operador.
func (uc *AuthUseCase) RegisterOperator(ctx context.Context, in dto.RegisterOperatorRequest) (*dto.OperatorResponse, error) {
	login := strings.ToLower(strings.TrimSpace(in.Login))
	if login == "" || in.Password == "" {
		return nil, fmt.Errorf("%w: login y password son requeridos", domain.ErrInvalidInput)
	}
	if len(in.Password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password debe tener al menos %d caracteres", domain.ErrInvalidInput, minPasswordLength)
	}
	role := in.Role
	if role == "" {
		role = jwt.RoleCaixa
	}
	switch role {
	case jwt.RoleAdmin, jwt.RoleGerente, jwt.RoleCaixa:
	default:
		return nil, fmt.Errorf("%w: rol %q desconocido", domain.ErrInvalidInput, role)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	now := uc.now()
	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = login
	}
	op := &entity.Operator{
		ID:           uuid.NewString(),
		Login:        login,
		PasswordHash: string(hash),
		Name:         name,
		Role:         role,
		TerminalID:   strings.TrimSpace(in.TerminalID),
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := uc.operators.Create(ctx, op); err != nil {
		return nil, err
	}
	return toOperatorResponse(op), nil
}

// EnsureAdmin crea el administrador inicial si el login todavía no existe.
// Devuelve true si lo creó.
func (uc *AuthUseCase) EnsureAdmin(ctx context.Context, login, password string) (bool, error) {
	existing, err := uc.operators.GetByLogin(ctx, strings.ToLower(strings.TrimSpace(login)))
	if err != nil {
		return false, err
	}
	if existing != nil {
		return false, nil
	}
	_, err = uc.RegisterOperator(ctx, dto.RegisterOperatorRequest{Login: login, Password: password, Role: jwt.RoleAdmin})
	if err != nil {
		return false, err
	}
	return true, nil
}

// Login verifica login/password y genera el JWT con rol y terminal.
func (uc *AuthUseCase) Login(ctx context.Context, in dto.LoginRequest) (*dto.LoginResponse, error) {
	op, err := uc.operators.GetByLogin(ctx, strings.ToLower(strings.TrimSpace(in.Login)))
	if err != nil {
		return nil, err
	}
	// Mismo error para login inexistente y contraseña incorrecta.
	if op == nil {
		return nil, domain.ErrUnauthorized
	}
	if err := bcrypt.CompareHashAndPassword([]byte(op.PasswordHash), []byte(in.Password)); err != nil {
		return nil, domain.ErrUnauthorized
	}
	if !op.Active {
		return nil, domain.ErrForbidden
	}
	terminal := strings.TrimSpace(in.TerminalID)
	if terminal == "" {
		terminal = op.TerminalID
	}
	token, err := jwt.Generate(uc.jwtCfg.Secret, op.ID, terminal, op.Role, uc.jwtCfg.Issuer, uc.jwtCfg.ExpMinutes)
	if err != nil {
		return nil, err
	}
	out := toOperatorResponse(op)
	out.TerminalID = terminal
	return &dto.LoginResponse{Token: token, Operator: *out}, nil
}

func toOperatorResponse(op *entity.Operator) *dto.OperatorResponse {
	return &dto.OperatorResponse{
		ID:         op.ID,
		Login:      op.Login,
		Name:       op.Name,
		Role:       op.Role,
		TerminalID: op.TerminalID,
		Active:     op.Active,
		CreatedAt:  op.CreatedAt,
	}
}
