package guard

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/marginalia-app/marginalia/internal/errs"
	"github.com/marginalia-app/marginalia/internal/model"
	"github.com/marginalia-app/marginalia/internal/repository"
	"github.com/marginalia-app/marginalia/internal/token"
)

type fakeUsers struct {
	byID map[uuid.UUID]*model.User
}

var _ repository.UserRepository = (*fakeUsers)(nil)

func (f *fakeUsers) Create(_ context.Context, u *model.User) error {
	if f.byID == nil {
		f.byID = map[uuid.UUID]*model.User{}
	}
	f.byID[u.ID] = u
	return nil
}
func (f *fakeUsers) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	u, ok := f.byID[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return u, nil
}
func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
	for _, u := range f.byID {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, errs.ErrNotFound
}
func (f *fakeUsers) Update(_ context.Context, u *model.User) error { return nil }
func (f *fakeUsers) Delete(_ context.Context, id uuid.UUID) error {
	delete(f.byID, id)
	return nil
}

func newGuardFixture(t *testing.T) (*Guard, *token.Manager, *fakeUsers, *model.User) {
	t.Helper()
	mgr := token.NewManager([]byte("test-sign-key"), time.Hour)
	users := &fakeUsers{}
	u := &model.User{ID: uuid.Must(uuid.NewV4()), Email: "a@x.com", Role: model.RoleUser}
	_ = users.Create(context.Background(), u)
	return New(mgr, users), mgr, users, u
}

func signedRequest(t *testing.T, mgr *token.Manager, u *model.User) *http.Request {
	t.Helper()
	raw, _, err := mgr.Issue(u)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	r := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	r.Header.Set("Authorization", "Bearer "+raw)
	return r
}

func TestGuard_HTTP_BearerHeader(t *testing.T) {
	t.Parallel()
	g, mgr, _, u := newGuardFixture(t)

	got, err := g.Authenticate(context.Background(), HTTPCall(signedRequest(t, mgr, u)))
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if got.ID != u.ID {
		t.Fatalf("principal mismatch")
	}
}

func TestGuard_HTTP_Cookie(t *testing.T) {
	t.Parallel()
	g, mgr, _, u := newGuardFixture(t)

	raw, _, err := mgr.Issue(u)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	r := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	r.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: raw})

	got, err := g.Authenticate(context.Background(), HTTPCall(r))
	if err != nil {
		t.Fatalf("Authenticate via cookie: %v", err)
	}
	if got.ID != u.ID {
		t.Fatalf("principal mismatch")
	}
}

func TestGuard_GraphQL_WrappedRequest(t *testing.T) {
	t.Parallel()
	g, mgr, _, u := newGuardFixture(t)

	execCtx := WithHTTPRequest(context.Background(), signedRequest(t, mgr, u))
	got, err := g.Authenticate(context.Background(), GraphQLCall(execCtx))
	if err != nil {
		t.Fatalf("Authenticate over graphql: %v", err)
	}
	if got.ID != u.ID {
		t.Fatalf("principal mismatch")
	}
}

// Identical credential, identical outcome, whichever transport carried it.
func TestGuard_TransportsAgree(t *testing.T) {
	t.Parallel()
	g, mgr, _, u := newGuardFixture(t)
	r := signedRequest(t, mgr, u)

	viaHTTP, errHTTP := g.Authenticate(context.Background(), HTTPCall(r))
	viaGQL, errGQL := g.Authenticate(context.Background(), GraphQLCall(WithHTTPRequest(context.Background(), r)))
	if errHTTP != nil || errGQL != nil {
		t.Fatalf("authenticate: http=%v graphql=%v", errHTTP, errGQL)
	}
	if viaHTTP.ID != viaGQL.ID {
		t.Fatalf("transports resolved different principals")
	}
}

func TestGuard_FailClosed(t *testing.T) {
	t.Parallel()
	g, mgr, users, u := newGuardFixture(t)

	cases := map[string]CallContext{
		"no credential": HTTPCall(httptest.NewRequest(http.MethodGet, "/", nil)),
		"malformed header": HTTPCall(func() *http.Request {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.Header.Set("Authorization", "Bearer")
			return r
		}()),
		"garbage token": HTTPCall(func() *http.Request {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.Header.Set("Authorization", "Bearer not.a.jwt")
			return r
		}()),
		"empty cookie": HTTPCall(func() *http.Request {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: " "})
			return r
		}()),
		"graphql without request": GraphQLCall(context.Background()),
		"nil http request":        {Kind: KindHTTP},
	}
	for name, cc := range cases {
		if _, err := g.Authenticate(context.Background(), cc); !errors.Is(err, errs.ErrUnauthenticated) {
			t.Fatalf("%s: want ErrUnauthenticated, got %v", name, err)
		}
	}

	// Wrong signing key.
	other := token.NewManager([]byte("other-key"), time.Hour)
	if _, err := g.Authenticate(context.Background(), HTTPCall(signedRequest(t, other, u))); !errors.Is(err, errs.ErrUnauthenticated) {
		t.Fatalf("foreign signature: want ErrUnauthenticated, got %v", err)
	}

	// Expired token.
	expired := token.NewManager([]byte("test-sign-key"), -2*time.Minute)
	if _, err := g.Authenticate(context.Background(), HTTPCall(signedRequest(t, expired, u))); !errors.Is(err, errs.ErrUnauthenticated) {
		t.Fatalf("expired token: want ErrUnauthenticated, got %v", err)
	}

	// Principal deleted after issuance.
	r := signedRequest(t, mgr, u)
	_ = users.Delete(context.Background(), u.ID)
	if _, err := g.Authenticate(context.Background(), HTTPCall(r)); !errors.Is(err, errs.ErrUnauthenticated) {
		t.Fatalf("deleted principal: want ErrUnauthenticated, got %v", err)
	}
}
