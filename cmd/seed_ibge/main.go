// seed_ibge genera el script SQL que puebla la tabla municipalities a partir del
// CSV oficial de la DTB del IBGE (separador ';', codificación ISO-8859-1).
//
// Uso: go run ./cmd/seed_ibge [ruta/RELATORIO_DTB_BRASIL_MUNICIPIO.csv]
// Escribe: internal/infrastructure/postgres/migrations/003_seed_municipalities.sql
package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	pkgnfe "github.com/jhoicas/emisor-fiscal/pkg/nfe"
)

const (
	colCode = "Código Município Completo"
	colName = "Nome_Município"
)

type municipality struct {
	code, name, uf string
}

func main() {
	csvPath := "RELATORIO_DTB_BRASIL_MUNICIPIO.csv"
	if len(os.Args) > 1 {
		csvPath = os.Args[1]
	}
	f, err := os.Open(csvPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Abrir CSV: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	list, err := parse(transform.NewReader(f, charmap.ISO8859_1.NewDecoder()))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Leer CSV: %v\n", err)
		os.Exit(1)
	}

	outPath := filepath.Join(findModuleRoot(), "internal", "infrastructure", "postgres", "migrations", "003_seed_municipalities.sql")
	out, err := os.Create(outPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Crear archivo: %v\n", err)
		os.Exit(1)
	}
	defer out.Close()

	if err := write(out, list); err != nil {
		fmt.Fprintf(os.Stderr, "Escribir SQL: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Generado %s: %d municipios\n", outPath, len(list))
}

// parse localiza las columnas por nombre de cabecera; la UF sale de los dos primeros
// dígitos del código IBGE.
func parse(r io.Reader) ([]municipality, error) {
	cr := csv.NewReader(r)
	cr.Comma = ';'
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, err
	}
	codeIdx, nameIdx := -1, -1
	for i, h := range header {
		switch strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")) {
		case colCode:
			codeIdx = i
		case colName:
			nameIdx = i
		}
	}
	if codeIdx < 0 || nameIdx < 0 {
		return nil, fmt.Errorf("cabeceras %q y %q no encontradas", colCode, colName)
	}

	sigla := make(map[string]string, len(pkgnfe.UFCodes))
	for uf, code := range pkgnfe.UFCodes {
		sigla[code] = uf
	}

	var list []municipality
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(rec) <= codeIdx || len(rec) <= nameIdx {
			continue
		}
		code := pkgnfe.OnlyDigits(rec[codeIdx])
		name := strings.TrimSpace(rec[nameIdx])
		if len(code) != 7 || name == "" {
			continue
		}
		uf, ok := sigla[code[:2]]
		if !ok {
			continue
		}
		list = append(list, municipality{code: code, name: name, uf: uf})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].code < list[j].code })
	return list, nil
}

func write(w io.Writer, list []municipality) error {
	if _, err := io.WriteString(w, "-- Municipios de Brasil (código IBGE)\n-- Generado desde la DTB del IBGE\n\n"); err != nil {
		return err
	}
	for _, m := range list {
		_, err := fmt.Fprintf(w,
			"INSERT INTO municipalities (code, name, uf, normalized_name) VALUES ('%s', '%s', '%s', '%s')\n"+
				"ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name, uf = EXCLUDED.uf, normalized_name = EXCLUDED.normalized_name;\n",
			m.code, escapeSQL(m.name), m.uf, escapeSQL(pkgnfe.NormalizeName(m.name)))
		if err != nil {
			return err
		}
	}
	return nil
}

func escapeSQL(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

func findModuleRoot() string {
	dir, _ := os.Getwd()
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return dir
		}
		dir = parent
	}
}
