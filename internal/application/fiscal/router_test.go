package fiscal_test

import (
	"context"
	"crypto/tls"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/jhoicas/emisor-fiscal/internal/application/fiscal"
	"github.com/jhoicas/emisor-fiscal/internal/domain"
	"github.com/jhoicas/emisor-fiscal/internal/domain/entity"
	infranfe "github.com/jhoicas/emisor-fiscal/internal/infrastructure/nfe"
	"github.com/jhoicas/emisor-fiscal/internal/infrastructure/nfe/mocks"
)

type markingSigner struct{ calls int }

func (s *markingSigner) Sign(xmlBytes []byte, _ tls.Certificate) ([]byte, error) {
	s.calls++
	return append(append([]byte{}, xmlBytes...), []byte("<Signature/>")...), nil
}

func pendingDoc(env entity.Environment) *entity.FiscalDocument {
	return &entity.FiscalDocument{
		ID:          "doc-1",
		AccessKey:   "35241011222333000181650010000000421012345672",
		Model:       entity.ModelNFCe,
		Status:      entity.StatusPending,
		Environment: env,
		Body:        []byte("<NFe/>"),
	}
}

func TestRouter_HomologacionSimulada(t *testing.T) {
	clock := newFakeClock()
	router := fiscal.NewEnvironmentRouter(fiscal.RouterDeps{Clock: clock, Logger: zerolog.Nop()})

	out, err := router.Authorize(context.Background(), pendingDoc(entity.EnvironmentHomologation), testIssuer())
	require.NoError(t, err)
	assert.Equal(t, entity.StatusAuthorized, out.Status)
	assert.Equal(t, infranfe.SyntheticProtocol("SP", clock.Now()), out.Protocol, "determinista con el reloj inyectado")
	assert.True(t, out.At.Equal(clock.Now()))

	body, err := router.Prepare(entity.EnvironmentHomologation, []byte("<NFe/>"))
	require.NoError(t, err)
	assert.Equal(t, "<NFe/>", string(body), "homologación no firma")
}

func TestRouter_CheckReady(t *testing.T) {
	ctrl := gomock.NewController(t)
	auth := mocks.NewMockAuthorizer(ctrl)

	tests := []struct {
		name    string
		deps    fiscal.RouterDeps
		env     entity.Environment
		wantErr error
	}{
		{name: "homologación siempre lista", env: entity.EnvironmentHomologation},
		{name: "producción sin autorizador", env: entity.EnvironmentProduction, deps: fiscal.RouterDeps{Signer: &markingSigner{}, Certificate: fakeCert}, wantErr: domain.ErrConfigurationIncomplete},
		{name: "producción sin firmador", env: entity.EnvironmentProduction, deps: fiscal.RouterDeps{Production: auth, Certificate: fakeCert}, wantErr: domain.ErrConfigurationIncomplete},
		{name: "producción sin certificado", env: entity.EnvironmentProduction, deps: fiscal.RouterDeps{Production: auth, Signer: &markingSigner{}}, wantErr: domain.ErrConfigurationIncomplete},
		{name: "producción completa", env: entity.EnvironmentProduction, deps: fiscal.RouterDeps{Production: auth, Signer: &markingSigner{}, Certificate: fakeCert}},
		{name: "ambiente desconocido", env: "staging", wantErr: domain.ErrConfigurationIncomplete},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := fiscal.NewEnvironmentRouter(tt.deps).CheckReady(tt.env)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestRouter_ProduccionFirmaYEnvia(t *testing.T) {
	ctrl := gomock.NewController(t)
	auth := mocks.NewMockAuthorizer(ctrl)
	signer := &markingSigner{}
	router := fiscal.NewEnvironmentRouter(fiscal.RouterDeps{
		Production: auth, Signer: signer, Certificate: fakeCert, Clock: newFakeClock(), Logger: zerolog.Nop(),
	})

	signed, err := router.Prepare(entity.EnvironmentProduction, []byte("<NFe/>"))
	require.NoError(t, err)
	assert.Equal(t, "<NFe/><Signature/>", string(signed))
	assert.Equal(t, 1, signer.calls)

	doc := pendingDoc(entity.EnvironmentProduction)
	doc.Body = signed
	auth.EXPECT().Authorize(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, req *infranfe.AuthorizationRequest) (*infranfe.AuthorizationResult, error) {
			_, hasDeadline := ctx.Deadline()
			assert.True(t, hasDeadline, "la llamada externa siempre va acotada")
			assert.Equal(t, signed, req.Body)
			assert.Equal(t, entity.EnvironmentProduction, req.Environment)
			return &infranfe.AuthorizationResult{Authorized: true, Status: "100", Protocol: "135240000000001"}, nil
		})

	out, err := router.Authorize(context.Background(), doc, testIssuer())
	require.NoError(t, err)
	assert.Equal(t, entity.StatusAuthorized, out.Status)
	assert.Equal(t, "135240000000001", out.Protocol)
	assert.False(t, out.At.IsZero(), "sin fecha de la autoridad se usa el reloj")
}

func TestRouter_ProduccionTimeout(t *testing.T) {
	ctrl := gomock.NewController(t)
	auth := mocks.NewMockAuthorizer(ctrl)
	router := fiscal.NewEnvironmentRouter(fiscal.RouterDeps{
		Production: auth, Signer: &markingSigner{}, Certificate: fakeCert, Timeout: 15 * time.Millisecond, Logger: zerolog.Nop(),
	})

	auth.EXPECT().Authorize(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ *infranfe.AuthorizationRequest) (*infranfe.AuthorizationResult, error) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(5 * time.Second):
				return &infranfe.AuthorizationResult{Authorized: true, Protocol: "tarde"}, nil
			}
		})

	start := time.Now()
	out, err := router.Authorize(context.Background(), pendingDoc(entity.EnvironmentProduction), testIssuer())
	assert.Nil(t, out)
	assert.ErrorIs(t, err, domain.ErrAuthorizationTimeout)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestRouter_ErrorDeTransporteEsReintentable(t *testing.T) {
	ctrl := gomock.NewController(t)
	auth := mocks.NewMockAuthorizer(ctrl)
	router := fiscal.NewEnvironmentRouter(fiscal.RouterDeps{
		Production: auth, Signer: &markingSigner{}, Certificate: fakeCert, Logger: zerolog.Nop(),
	})
	auth.EXPECT().Authorize(gomock.Any(), gomock.Any()).Return(nil, errors.New("tls: handshake failure"))

	_, err := router.Authorize(context.Background(), pendingDoc(entity.EnvironmentProduction), testIssuer())
	assert.ErrorIs(t, err, domain.ErrAuthorizationTimeout)
	assert.True(t, domain.IsRetryable(err))
}

func TestRouter_Rechazo(t *testing.T) {
	ctrl := gomock.NewController(t)
	auth := mocks.NewMockAuthorizer(ctrl)
	router := fiscal.NewEnvironmentRouter(fiscal.RouterDeps{
		Production: auth, Signer: &markingSigner{}, Certificate: fakeCert, Logger: zerolog.Nop(),
	})
	auth.EXPECT().Authorize(gomock.Any(), gomock.Any()).Return(&infranfe.AuthorizationResult{
		Authorized: false, Status: "204", Reason: "Duplicidade de NF-e",
	}, nil)

	out, err := router.Authorize(context.Background(), pendingDoc(entity.EnvironmentProduction), testIssuer())
	require.NoError(t, err)
	assert.Equal(t, entity.StatusRejected, out.Status)
	assert.Equal(t, "204", out.Code)

	assert.Equal(t, entity.StatusRejected, out.Transition().To())
}
