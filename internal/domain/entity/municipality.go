package entity

// Municipality es un municipio de la tabla IBGE.
type Municipality struct {
	Code string // 7 dígitos
	Name string
	UF   string
}
