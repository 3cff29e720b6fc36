package service_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/gateway/internal/gateway/broker"
	"github.com/aussiebroadwan/gateway/internal/gateway/domain"
	"github.com/aussiebroadwan/gateway/internal/gateway/service"
	"github.com/aussiebroadwan/gateway/internal/gateway/store/drivers/sqlite"
	"github.com/aussiebroadwan/gateway/internal/gateway/ttlstore"
	"github.com/aussiebroadwan/gateway/pkg/cryptox"
	"github.com/aussiebroadwan/gateway/pkg/jwtx"
	"github.com/pquerna/otp"
	"github.com/stretchr/testify/require"
)

const (
	testIssuer   = "gateway"
	testAudience = "spa"

	// RFC 6238 SHA-1 test secret, base32 of "12345678901234567890".
	rfcSecret = "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *fakeClock { return &fakeClock{t: time.Unix(1_700_000_010, 0).UTC()} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestSigner(t *testing.T, kid string) *jwtx.RS256Signer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	s, err := jwtx.NewSignerRS256(kid, pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	}))
	require.NoError(t, err)
	return s
}

func newTestCodec(t *testing.T, clock *fakeClock) *jwtx.Codec {
	t.Helper()
	codec, err := jwtx.NewCodec(jwtx.CodecOptions{
		Signer:   newTestSigner(t, "self"),
		Issuer:   testIssuer,
		Audience: testAudience,
		Now:      clock.Now,
	})
	require.NoError(t, err)
	return codec
}

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, s.ApplyMigrations())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

type fakeCall struct {
	Queue broker.Queue
	Op    broker.Op
	Body  string
	Claim jwtx.Claims
}

// fakeCaller stands in for the broker bridge.
type fakeCaller struct {
	mu    sync.Mutex
	calls []fakeCall
	reply func(fakeCall) (broker.Result, error)
}

func (f *fakeCaller) Call(_ context.Context, q broker.Queue, op broker.Op, body string, claim jwtx.Claims, attach *broker.Attachment) (broker.Result, error) {
	c := fakeCall{Queue: q, Op: op, Body: body, Claim: claim}
	f.mu.Lock()
	f.calls = append(f.calls, c)
	reply := f.reply
	f.mu.Unlock()

	res := broker.Result{Status: 201, Body: "{}"}
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

func (f *fakeCaller) Calls() []fakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fakeCall(nil), f.calls...)
}

type harness struct {
	clock      *fakeClock
	store      *sqlite.Store
	codec      *jwtx.Codec
	caller     *fakeCaller
	hasher     *cryptox.PasswordHasher
	sessions   *service.SessionService
	stepUp     *service.StepUpService
	onboarding *service.OnboardingService
	mfa        *service.MFAService
	auth       *service.AuthService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		clock:  newClock(),
		store:  newTestStore(t),
		caller: &fakeCaller{},
		hasher: cryptox.NewPasswordHasherWithPepper("test-pepper"),
	}
	h.codec = newTestCodec(t, h.clock)

	states := ttlstore.NewMemory[domain.PendingStepUp](ttlstore.WithSweepInterval(0), ttlstore.WithClock(h.clock.Now))
	t.Cleanup(states.Stop)

	h.sessions = &service.SessionService{Store: h.store, Codec: h.codec, Now: h.clock.Now}
	h.stepUp = &service.StepUpService{
		States:    states,
		Verifier:  h.codec,
		Algorithm: otp.AlgorithmSHA1,
		Now:       h.clock.Now,
	}
	h.onboarding = &service.OnboardingService{Store: h.store, Bridge: h.caller}
	h.mfa = &service.MFAService{Store: h.store, StepUp: h.stepUp, Issuer: "Gateway"}
	h.auth = &service.AuthService{
		Store:      h.store,
		Codec:      h.codec,
		Hasher:     h.hasher,
		Sessions:   h.sessions,
		StepUp:     h.stepUp,
		Onboarding: h.onboarding,
	}
	return h
}

// createUser inserts a local account with a password directly.
func (h *harness) createUser(t *testing.T, id, username, password string) domain.User {
	t.Helper()
	hash, err := h.hasher.Hash(password)
	require.NoError(t, err)
	u := domain.User{ID: id, Username: username, DisplayName: username, PasswordHash: hash}
	require.NoError(t, h.store.Users().CreateUser(context.Background(), u))
	return u
}

// enableMFA turns on step-up for userID with secret.
func (h *harness) enableMFA(t *testing.T, userID, secret string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, h.store.Users().UpdateMFASecret(ctx, userID, secret))
	require.NoError(t, h.store.Users().EnableMFA(ctx, userID))
}

func (h *harness) currentCode(t *testing.T, secret string) string {
	t.Helper()
	code, err := h.stepUp.GenerateCode(secret)
	require.NoError(t, err)
	return code
}

func wrongCode(code string) string {
	if code == "000000" {
		return "111111"
	}
	return "000000"
}
