package dto

import "time"

// LoginRequest body para POST /api/auth/login.
type LoginRequest struct {
	Login      string `json:"login"`
	Password   string `json:"password"`
	TerminalID string `json:"terminal_id,omitempty"` // vacío = terminal por defecto del operador
}

// RegisterOperatorRequest body para POST /api/auth/operators (solo admin).
type RegisterOperatorRequest struct {
	Login      string `json:"login"`
	Password   string `json:"password"`
	Name       string `json:"name"`
	Role       string `json:"role"` // admin, gerente, caixa; vacío = caixa
	TerminalID string `json:"terminal_id"`
}

// OperatorResponse operador sin el hash de la contraseña.
type OperatorResponse struct {
	ID         string    `json:"id"`
	Login      string    `json:"login"`
	Name       string    `json:"name"`
	Role       string    `json:"role"`
	TerminalID string    `json:"terminal_id"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
}

// LoginResponse token JWT más los datos del operador.
type LoginResponse struct {
	Token    string           `json:"token"`
	Operator OperatorResponse `json:"operator"`
}
