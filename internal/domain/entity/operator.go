package entity

import "time"

// Operator es un usuario del PDV que obtiene token para emitir o cancelar.
type Operator struct {
	ID           string
	Login        string
	PasswordHash string // bcrypt
	Name         string
	Role         string // admin, gerente, caixa
	TerminalID   string // PDV por defecto; el login puede indicar otro
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
