package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

func TestParseYWrite(t *testing.T) {
	raw := "UF;Nome_UF;Código Município Completo;Nome_Município\n" +
		"35;São Paulo;3550308;São Paulo\n" +
		"33;Rio de Janeiro;3304557;Rio de Janeiro\n" +
		"53;Distrito Federal;5300108;Brasília\n" +
		"99;Inválido;9900001;Nenhum\n" +
		"35;São Paulo;123;Código curto\n"
	latin1, err := charmap.ISO8859_1.NewEncoder().String(raw)
	require.NoError(t, err)

	list, err := parse(transform.NewReader(strings.NewReader(latin1), charmap.ISO8859_1.NewDecoder()))
	require.NoError(t, err)
	require.Len(t, list, 3, "se descartan UF desconocida y código corto")
	assert.Equal(t, municipality{code: "3304557", name: "Rio de Janeiro", uf: "RJ"}, list[0])
	assert.Equal(t, "SP", list[1].uf)
	assert.Equal(t, "Brasília", list[2].name)

	var buf bytes.Buffer
	require.NoError(t, write(&buf, list))
	assert.Contains(t, buf.String(), "('5300108', 'Brasília', 'DF', 'BRASILIA')")
	assert.Equal(t, 3, strings.Count(buf.String(), "ON CONFLICT (code)"))
}

func TestParse_SinCabeceras(t *testing.T) {
	_, err := parse(strings.NewReader("a;b\n1;2\n"))
	assert.Error(t, err)
}

func TestEscapeSQL(t *testing.T) {
	assert.Equal(t, "Olho d''Água", escapeSQL("Olho d'Água"))
}
