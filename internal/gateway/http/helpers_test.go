package http_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/gateway/internal/gateway/broker"
	"github.com/aussiebroadwan/gateway/internal/gateway/domain"
	gwhttp "github.com/aussiebroadwan/gateway/internal/gateway/http"
	"github.com/aussiebroadwan/gateway/internal/gateway/push"
	"github.com/aussiebroadwan/gateway/internal/gateway/service"
	"github.com/aussiebroadwan/gateway/internal/gateway/store/drivers/sqlite"
	"github.com/aussiebroadwan/gateway/internal/gateway/ttlstore"
	"github.com/aussiebroadwan/gateway/pkg/cryptox"
	"github.com/aussiebroadwan/gateway/pkg/gatewaysdk"
	"github.com/aussiebroadwan/gateway/pkg/httpx"
	"github.com/aussiebroadwan/gateway/pkg/jwtx"
	"github.com/aussiebroadwan/gateway/pkg/slogx"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
)

type bridgeCall struct {
	Queue broker.Queue
	Op    broker.Op
	Body  string
	Claim jwtx.Claims
}

// fakeBridge answers every call with reply, or 201 "{}" when reply is nil.
type fakeBridge struct {
	mu    sync.Mutex
	calls []bridgeCall
	reply func(bridgeCall) (broker.Result, error)
	state atomic.Int32
}

func newFakeBridge() *fakeBridge {
	b := &fakeBridge{}
	b.state.Store(int32(broker.StateReady))
	return b
}

func (b *fakeBridge) Call(_ context.Context, q broker.Queue, op broker.Op, body string, claim jwtx.Claims, attach *broker.Attachment) (broker.Result, error) {
	c := bridgeCall{Queue: q, Op: op, Body: body, Claim: claim}
	b.mu.Lock()
	b.calls = append(b.calls, c)
	reply := b.reply
	b.mu.Unlock()

	res := broker.Result{Status: http.StatusCreated, Body: "{}"}
	if reply != nil {
		var err error
		if res, err = reply(c); err != nil {
			return broker.Result{}, err
		}
	}
	if res.OK() {
		res.Attach = attach
	}
	return res, nil
}

func (b *fakeBridge) State() broker.State { return broker.State(b.state.Load()) }

func (b *fakeBridge) setReply(fn func(bridgeCall) (broker.Result, error)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reply = fn
}

func (b *fakeBridge) Calls() []bridgeCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]bridgeCall(nil), b.calls...)
}

// totpTime pins the step-up clock so generated codes never straddle a bucket.
var totpTime = time.Unix(1_700_000_010, 0).UTC()

type testEnv struct {
	store    *sqlite.Store
	codec    *jwtx.Codec
	hasher   *cryptox.PasswordHasher
	bridge   *fakeBridge
	registry *push.Registry
	server   *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	signer, err := jwtx.NewSignerRS256("self", pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	}))
	require.NoError(t, err)
	codec, err := jwtx.NewCodec(jwtx.CodecOptions{Signer: signer, Issuer: "gateway", Audience: "spa"})
	require.NoError(t, err)

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.ApplyMigrations())
	t.Cleanup(func() { _ = st.Close() })

	stepUpStates := ttlstore.NewMemory[domain.PendingStepUp]()
	tickets := ttlstore.NewMemory[domain.SocketTicket]()
	t.Cleanup(stepUpStates.Stop)
	t.Cleanup(tickets.Stop)

	env := &testEnv{
		store:    st,
		codec:    codec,
		hasher:   cryptox.NewPasswordHasherWithPepper("test-pepper"),
		bridge:   newFakeBridge(),
		registry: push.NewRegistry(),
	}
	t.Cleanup(env.registry.Close)

	sessions := &service.SessionService{Store: st, Codec: codec}
	stepUp := &service.StepUpService{
		States:    stepUpStates,
		Verifier:  codec,
		Algorithm: otp.AlgorithmSHA1,
		Now:       func() time.Time { return totpTime },
	}
	authority := push.NewTicketAuthority(tickets, push.DefaultTicketTTL)

	router := gwhttp.NewRouter(codec, st, gwhttp.Options{
		BuildVersion: "test",
		Cookies:      gwhttp.CredentialCookies{CookieOptions: httpx.CookieOptions{Path: "/"}},
	}, slogx.Discard())
	router.AuthService = &service.AuthService{
		Store:      st,
		Codec:      codec,
		Hasher:     env.hasher,
		Sessions:   sessions,
		StepUp:     stepUp,
		Onboarding: &service.OnboardingService{Store: st, Bridge: env.bridge, Logger: slogx.Discard()},
	}
	router.SessionService = sessions
	router.MFAService = &service.MFAService{Store: st, StepUp: stepUp, Issuer: "Gateway"}
	router.Tickets = authority
	router.Push = &push.Handler{Tickets: authority, Registry: env.registry}
	router.Bridge = env.bridge
	router.ApplyRoutes()

	env.server = httptest.NewServer(router)
	t.Cleanup(env.server.Close)
	return env
}

func (e *testEnv) client() *gatewaysdk.Client {
	c := gatewaysdk.NewClient(e.server.URL)
	c.HTTPClient.Transport = e.server.Client().Transport
	return c
}

// createUser inserts a local account directly.
func (e *testEnv) createUser(t *testing.T, id, username, password string) {
	t.Helper()
	hash, err := e.hasher.Hash(password)
	require.NoError(t, err)
	require.NoError(t, e.store.Users().CreateUser(context.Background(), domain.User{
		ID:           id,
		Username:     username,
		DisplayName:  username,
		PasswordHash: hash,
	}))
}

func (e *testEnv) enableMFA(t *testing.T, userID, secret string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, e.store.Users().UpdateMFASecret(ctx, userID, secret))
	require.NoError(t, e.store.Users().EnableMFA(ctx, userID))
}

// setCookie plants a cookie in c's jar as if the gateway had set it.
func (e *testEnv) setCookie(t *testing.T, c *gatewaysdk.Client, name, value string) {
	t.Helper()
	u, err := url.Parse(e.server.URL)
	require.NoError(t, err)
	c.HTTPClient.Jar.SetCookies(u, []*http.Cookie{{Name: name, Value: value, Path: "/"}})
}

func currentCode(t *testing.T, secret string) string {
	t.Helper()
	code, err := totp.GenerateCodeCustom(secret, totpTime, totp.ValidateOpts{
		Period:    service.StepUpPeriod,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	require.NoError(t, err)
	return code
}

func wrongCode(code string) string {
	if code == "000000" {
		return "111111"
	}
	return "000000"
}
