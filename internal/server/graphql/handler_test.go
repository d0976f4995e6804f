package graphqlserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/marginalia-app/marginalia/internal/errs"
	"github.com/marginalia-app/marginalia/internal/model"
	"github.com/marginalia-app/marginalia/internal/server/guard"
	httpserver "github.com/marginalia-app/marginalia/internal/server/http"
	"github.com/marginalia-app/marginalia/internal/service"
	"github.com/marginalia-app/marginalia/internal/token"
)

type fakeAuth struct {
	loginPair model.Tokens
	loginUser *model.User
	loginErr  error
}

var _ service.AuthService = (*fakeAuth)(nil)

func (f *fakeAuth) Register(_ context.Context, email, _, displayName string) (*model.User, error) {
	return &model.User{ID: uuid.Must(uuid.NewV4()), Email: email, DisplayName: displayName}, nil
}
func (f *fakeAuth) Login(context.Context, string, string, service.Provenance) (model.Tokens, *model.User, error) {
	return f.loginPair, f.loginUser, f.loginErr
}
func (f *fakeAuth) GetByID(context.Context, uuid.UUID) (*model.User, error) {
	return nil, errs.ErrNotFound
}
func (f *fakeAuth) UpdateProfile(context.Context, uuid.UUID, string) (*model.User, error) {
	return nil, errs.ErrNotFound
}
func (f *fakeAuth) ChangePassword(context.Context, uuid.UUID, string, string) error { return nil }
func (f *fakeAuth) DeleteAccount(context.Context, uuid.UUID) error                  { return nil }

type fakeSessions struct {
	rotatePair model.Tokens
	rotateUser *model.User
	rotateErr  error

	revoked []string
}

var _ service.SessionService = (*fakeSessions)(nil)

func (f *fakeSessions) Issue(context.Context, uuid.UUID, service.Provenance) (string, *model.RefreshToken, error) {
	return "", nil, nil
}
func (f *fakeSessions) Verify(context.Context, string) (*model.RefreshToken, error) {
	return nil, errs.ErrUnauthenticated
}
func (f *fakeSessions) Revoke(_ context.Context, plaintext string) (bool, error) {
	f.revoked = append(f.revoked, plaintext)
	return true, nil
}
func (f *fakeSessions) RevokeAll(context.Context, uuid.UUID) error { return nil }
func (f *fakeSessions) Rotate(context.Context, string) (model.Tokens, *model.User, error) {
	return f.rotatePair, f.rotateUser, f.rotateErr
}

type fakeUsers struct{ byID map[uuid.UUID]*model.User }

func (f *fakeUsers) Create(context.Context, *model.User) error { return nil }
func (f *fakeUsers) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	u, ok := f.byID[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return u, nil
}
func (f *fakeUsers) GetByEmail(context.Context, string) (*model.User, error) {
	return nil, errs.ErrNotFound
}
func (f *fakeUsers) Update(context.Context, *model.User) error { return nil }
func (f *fakeUsers) Delete(context.Context, uuid.UUID) error   { return nil }

type gqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func testHandler(auth *fakeAuth, sessions *fakeSessions, users *fakeUsers) (*Handler, *token.Manager) {
	mgr := token.NewManager([]byte("test-sign-key"), time.Hour)
	if users == nil {
		users = &fakeUsers{byID: map[uuid.UUID]*model.User{}}
	}
	g := guard.New(mgr, users)
	cookies := httpserver.CookieWriter{AccessTTL: time.Hour, RefreshTTL: 7 * 24 * time.Hour}
	r := NewResolver(auth, sessions, g, cookies, zap.NewNop())
	return NewHandler(r), mgr
}

func exec(t *testing.T, h *Handler, query string, mutate func(*http.Request)) (*httptest.ResponseRecorder, gqlResponse) {
	t.Helper()
	body, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(string(body)))
	if mutate != nil {
		mutate(req)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp gqlResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return rec, resp
}

func TestSchemaParses(t *testing.T) {
	t.Parallel()
	testHandler(&fakeAuth{}, &fakeSessions{}, nil)
}

func TestQueryMe(t *testing.T) {
	t.Parallel()
	u := &model.User{ID: uuid.Must(uuid.NewV4()), Email: "a@x.com", DisplayName: "A", Role: model.RoleUser}
	users := &fakeUsers{byID: map[uuid.UUID]*model.User{u.ID: u}}
	h, mgr := testHandler(&fakeAuth{}, &fakeSessions{}, users)

	raw, _, err := mgr.Issue(u)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	_, resp := exec(t, h, `{ me { id email displayName role } }`, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+raw)
	})
	if len(resp.Errors) != 0 {
		t.Fatalf("errors: %+v", resp.Errors)
	}
	var data struct {
		Me struct {
			ID    string `json:"id"`
			Email string `json:"email"`
		} `json:"me"`
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
	if data.Me.ID != u.ID.String() || data.Me.Email != u.Email {
		t.Fatalf("wrong principal: %+v", data.Me)
	}
}

func TestQueryMe_Unauthenticated(t *testing.T) {
	t.Parallel()
	h, _ := testHandler(&fakeAuth{}, &fakeSessions{}, nil)

	_, resp := exec(t, h, `{ me { id } }`, nil)
	if len(resp.Errors) == 0 {
		t.Fatal("expected an error for anonymous me")
	}
}

func TestQueryPasswordStrength(t *testing.T) {
	t.Parallel()
	h, _ := testHandler(&fakeAuth{}, &fakeSessions{}, nil)

	_, resp := exec(t, h, `{ passwordStrength(password: "Str0ng_P@ssw0rd!") }`, nil)
	if len(resp.Errors) != 0 {
		t.Fatalf("errors: %+v", resp.Errors)
	}
	var data struct {
		PasswordStrength int `json:"passwordStrength"`
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
	if data.PasswordStrength < 70 {
		t.Fatalf("score=%d, want >= 70", data.PasswordStrength)
	}
}

func TestMutationLogin_SetsCookies(t *testing.T) {
	t.Parallel()
	u := &model.User{ID: uuid.Must(uuid.NewV4()), Email: "a@x.com", Role: model.RoleUser}
	auth := &fakeAuth{
		loginPair: model.Tokens{AccessToken: "acc", RefreshToken: "ref", ExpiresAt: time.Now().Add(time.Hour)},
		loginUser: u,
	}
	h, _ := testHandler(auth, &fakeSessions{}, nil)

	rec, resp := exec(t, h,
		`mutation { login(email: "a@x.com", password: "Str0ng_P@ssw0rd!") { accessToken refreshToken user { email } } }`, nil)
	if len(resp.Errors) != 0 {
		t.Fatalf("errors: %+v", resp.Errors)
	}

	names := map[string]bool{}
	for _, c := range rec.Result().Cookies() {
		names[c.Name] = true
	}
	if !names[guard.AccessTokenCookie] || !names[httpserver.RefreshTokenCookie] {
		t.Fatalf("credential cookies not set: %v", names)
	}

	var data struct {
		Login struct {
			AccessToken  string `json:"accessToken"`
			RefreshToken string `json:"refreshToken"`
		} `json:"login"`
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
	if data.Login.AccessToken != "acc" || data.Login.RefreshToken != "ref" {
		t.Fatalf("tokens missing from payload: %+v", data.Login)
	}
}

func TestMutationLogin_InvalidCredentials(t *testing.T) {
	t.Parallel()
	h, _ := testHandler(&fakeAuth{loginErr: errs.ErrInvalidCredentials}, &fakeSessions{}, nil)

	rec, resp := exec(t, h, `mutation { login(email: "a@x.com", password: "nope") { accessToken } }`, nil)
	if len(resp.Errors) == 0 {
		t.Fatal("expected an error")
	}
	if len(rec.Result().Cookies()) != 0 {
		t.Fatal("no cookies on failure")
	}
}

func TestMutationRefresh_FromCookie(t *testing.T) {
	t.Parallel()
	u := &model.User{ID: uuid.Must(uuid.NewV4()), Email: "a@x.com"}
	sessions := &fakeSessions{
		rotatePair: model.Tokens{AccessToken: "acc2", RefreshToken: "ref2", ExpiresAt: time.Now().Add(time.Hour)},
		rotateUser: u,
	}
	h, _ := testHandler(&fakeAuth{}, sessions, nil)

	rec, resp := exec(t, h, `mutation { refresh { accessToken refreshToken } }`, func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: httpserver.RefreshTokenCookie, Value: "old"})
	})
	if len(resp.Errors) != 0 {
		t.Fatalf("errors: %+v", resp.Errors)
	}
	found := false
	for _, c := range rec.Result().Cookies() {
		if c.Name == httpserver.RefreshTokenCookie && c.Value == "ref2" {
			found = true
		}
	}
	if !found {
		t.Fatal("refresh cookie not rotated")
	}

	// no cookie and no argument fails closed
	_, resp = exec(t, h, `mutation { refresh { accessToken } }`, nil)
	if len(resp.Errors) == 0 {
		t.Fatal("expected an error without a token")
	}
}

func TestMutationLogout(t *testing.T) {
	t.Parallel()
	sessions := &fakeSessions{}
	h, _ := testHandler(&fakeAuth{}, sessions, nil)

	rec, resp := exec(t, h, `mutation { logout }`, func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: httpserver.RefreshTokenCookie, Value: "current"})
	})
	if len(resp.Errors) != 0 {
		t.Fatalf("errors: %+v", resp.Errors)
	}
	if len(sessions.revoked) != 1 || sessions.revoked[0] != "current" {
		t.Fatalf("refresh token not revoked: %v", sessions.revoked)
	}
	cleared := 0
	for _, c := range rec.Result().Cookies() {
		if c.Value == "" && c.MaxAge < 0 {
			cleared++
		}
	}
	if cleared != 2 {
		t.Fatalf("cleared %d cookies, want 2", cleared)
	}
}

func TestUserHasNoPasswordField(t *testing.T) {
	t.Parallel()
	h, _ := testHandler(&fakeAuth{}, &fakeSessions{}, nil)

	_, resp := exec(t, h, `{ me { passwordHash } }`, nil)
	if len(resp.Errors) == 0 {
		t.Fatal("selecting a password field must be a validation error")
	}
}
