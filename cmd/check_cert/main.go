// check_cert diagnostica el certificado A1 configurado (CERT_PATH / CERT_PASSWORD):
// que el archivo exista, que la contraseña abra el PKCS#12, la vigencia y que el
// CNPJ coincida con el emisor esperado.
//
// Uso: go run ./cmd/check_cert [CNPJ esperado]
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/jhoicas/emisor-fiscal/internal/infrastructure/nfe/signer"
	"github.com/jhoicas/emisor-fiscal/pkg/config"
	"github.com/jhoicas/emisor-fiscal/pkg/nfe"
)

const expiryWarning = 30 * 24 * time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuración: %v\n", err)
		os.Exit(1)
	}
	if cfg.Fiscal.CertPath == "" {
		fmt.Fprintln(os.Stderr, "CERT_PATH vacío: no hay certificado configurado")
		os.Exit(1)
	}

	fmt.Printf("Leyendo %s\n", cfg.Fiscal.CertPath)
	cert, err := signer.LoadFromP12(cfg.Fiscal.CertPath, cfg.Fiscal.CertPassword)
	if err != nil {
		fmt.Fprintf(os.Stderr, "El certificado no abre (archivo o contraseña): %v\n", err)
		os.Exit(1)
	}
	info, err := signer.Describe(cert)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Certificado ilegible: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Titular:  %s\n", info.Subject)
	fmt.Printf("CNPJ:     %s\n", info.CNPJ)
	fmt.Printf("Vigencia: %s a %s\n", info.NotBefore.Format(time.DateOnly), info.NotAfter.Format(time.DateOnly))

	now := time.Now()
	exit := 0
	switch {
	case !info.ValidAt(now):
		fmt.Println("ERROR: certificado fuera de vigencia")
		exit = 1
	case info.NotAfter.Sub(now) < expiryWarning:
		fmt.Printf("AVISO: vence en %d días\n", int(info.NotAfter.Sub(now).Hours()/24))
	}
	if len(os.Args) > 1 {
		if want := nfe.OnlyDigits(os.Args[1]); want != info.CNPJ {
			fmt.Printf("ERROR: el CNPJ del certificado (%s) no es el del emisor (%s)\n", info.CNPJ, want)
			exit = 1
		}
	}
	if exit == 0 {
		fmt.Println("OK")
	}
	os.Exit(exit)
}
