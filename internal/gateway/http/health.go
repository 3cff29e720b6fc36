package http

import (
	"net/http"
	"time"

	"github.com/aussiebroadwan/gateway/internal/gateway/broker"
	"github.com/aussiebroadwan/gateway/internal/gateway/store"
	"github.com/aussiebroadwan/gateway/pkg/gatewaysdk"
	"github.com/aussiebroadwan/gateway/pkg/httpx"
	"github.com/aussiebroadwan/gateway/pkg/jwtx"
)

// JWKSHandler exposes the gateway's own public key.
//
//	@Summary		Get JWKS
//	@Description	Returns the JSON Web Key Set that verifies gateway-issued claims.
//	@Tags			well-known
//	@Produce		json
//	@Success		200	{object}	gatewaysdk.JWKSResponse	"The JSON Web Key Set"
//	@Router			/.well-known/jwks.json [get].
func JWKSHandler(codec *jwtx.Codec) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, gatewaysdk.JWKSResponse(codec.SelfJWKS()))
	}
}

// LivezHandler godoc
//
//	@Summary		Health Check Endpoint
//	@Description	Liveness probe returning uptime and version. Always 200 while the process is serving.
//	@Tags			Health
//	@Produce		json
//	@Success		200	{object}	gatewaysdk.HealthResponse	"status, uptime, version"
//	@Router			/livez [get].
func LivezHandler(startTime time.Time, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, gatewaysdk.HealthResponse{
			Status:  "ok",
			Uptime:  time.Since(startTime).String(),
			Version: version,
		})
	}
}

// ProviderKeys reports whether the federated provider's key set is usable.
type ProviderKeys interface {
	KeysReady() bool
}

// ReadyzHandler godoc
//
//	@Summary		Readiness Check Endpoint
//	@Description	Readiness probe checking the database, the claim signer, the broker connection and, when
//	@Description	federation is configured, the provider's key set.
//	@Tags			Health
//	@Produce		json
//	@Success		200	{object}	gatewaysdk.HealthResponse	"status, uptime, version, checks"
//	@Failure		503	{object}	gatewaysdk.HealthResponse	"status, uptime, version, checks - not ready"
//	@Router			/readyz [get].
func ReadyzHandler(
	startTime time.Time,
	version string,
	st store.Store,
	codec *jwtx.Codec,
	bridge Bridge,
	provider ProviderKeys,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := &gatewaysdk.HealthChecks{
			Database: "ok",
			Signer:   "ok",
			Broker:   "ok",
		}
		overallStatus := "ok"
		statusCode := http.StatusOK
		fail := func() {
			overallStatus = "degraded"
			statusCode = http.StatusServiceUnavailable
		}

		if err := st.Ping(r.Context()); err != nil {
			checks.Database = "error: " + err.Error()
			fail()
		}

		if err := checkSigner(codec); err != nil {
			checks.Signer = "error: " + err.Error()
			fail()
		}

		if state := bridge.State(); state != broker.StateReady {
			checks.Broker = "error: " + state.String()
			fail()
		}

		if provider != nil {
			checks.Provider = "ok"
			if !provider.KeysReady() {
				checks.Provider = "error: no provider keys loaded"
				fail()
			}
		}

		httpx.WriteJSON(w, statusCode, gatewaysdk.HealthResponse{
			Status:  overallStatus,
			Uptime:  time.Since(startTime).String(),
			Version: version,
			Checks:  checks,
		})
	}
}

// checkSigner signs a throwaway claim and verifies it with the published key.
func checkSigner(codec *jwtx.Codec) error {
	token, err := codec.Sign(codec.Issue("readyz", "", ""))
	if err != nil {
		return err
	}
	_, err = codec.Verify(token)
	return err
}
