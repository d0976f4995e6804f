package graphqlserver

import (
	"context"
	"net"
	"net/http"

	graphql "github.com/graph-gophers/graphql-go"
	"go.uber.org/zap"

	pkgcrypto "github.com/marginalia-app/marginalia/internal/crypto"
	"github.com/marginalia-app/marginalia/internal/errs"
	"github.com/marginalia-app/marginalia/internal/model"
	"github.com/marginalia-app/marginalia/internal/server/guard"
	httpserver "github.com/marginalia-app/marginalia/internal/server/http"
	"github.com/marginalia-app/marginalia/internal/service"
)

// Resolver is the root resolver for queries and mutations.
type Resolver struct {
	auth     service.AuthService
	sessions service.SessionService
	guard    *guard.Guard
	cookies  httpserver.CookieWriter
	log      *zap.Logger
}

// NewResolver constructs the root resolver with injected services.
func NewResolver(auth service.AuthService, sessions service.SessionService, g *guard.Guard, cookies httpserver.CookieWriter, log *zap.Logger) *Resolver {
	return &Resolver{auth: auth, sessions: sessions, guard: g, cookies: cookies, log: log}
}

// Me resolves the authenticated principal from the execution context.
func (r *Resolver) Me(ctx context.Context) (*UserResolver, error) {
	u, err := r.guard.Authenticate(ctx, guard.GraphQLCall(ctx))
	if err != nil {
		return nil, err
	}
	return &UserResolver{u: u}, nil
}

// PasswordStrength scores a candidate password.
func (r *Resolver) PasswordStrength(args struct{ Password string }) int32 {
	return int32(pkgcrypto.Score(args.Password))
}

// Register creates a new account.
func (r *Resolver) Register(ctx context.Context, args struct {
	Email       string
	Password    string
	DisplayName string
}) (*UserResolver, error) {
	u, err := r.auth.Register(ctx, args.Email, args.Password, args.DisplayName)
	if err != nil {
		return nil, err
	}
	return &UserResolver{u: u}, nil
}

// Login authenticates and sets the credential cookies on the wrapping
// HTTP response.
func (r *Resolver) Login(ctx context.Context, args struct {
	Email    string
	Password string
}) (*AuthPayloadResolver, error) {
	pair, u, err := r.auth.Login(ctx, args.Email, args.Password, r.provenance(ctx))
	if err != nil {
		return nil, err
	}
	if w, ok := responseWriterFromContext(ctx); ok {
		r.cookies.Set(w, pair)
	}
	return &AuthPayloadResolver{pair: pair, user: u}, nil
}

// Logout revokes the presented refresh token and clears the cookies.
func (r *Resolver) Logout(ctx context.Context) (bool, error) {
	if req, ok := guard.HTTPRequestFromContext(ctx); ok {
		if c, err := req.Cookie(httpserver.RefreshTokenCookie); err == nil && c.Value != "" {
			if _, err := r.sessions.Revoke(ctx, c.Value); err != nil {
				r.log.Warn("logout revocation failed", zap.Error(err))
			}
		}
	}
	if w, ok := responseWriterFromContext(ctx); ok {
		r.cookies.Clear(w)
	}
	return true, nil
}

// Refresh rotates the presented refresh token, from the cookie or the
// argument.
func (r *Resolver) Refresh(ctx context.Context, args struct{ RefreshToken *string }) (*AuthPayloadResolver, error) {
	plaintext := ""
	if req, ok := guard.HTTPRequestFromContext(ctx); ok {
		if c, err := req.Cookie(httpserver.RefreshTokenCookie); err == nil {
			plaintext = c.Value
		}
	}
	if plaintext == "" && args.RefreshToken != nil {
		plaintext = *args.RefreshToken
	}
	if plaintext == "" {
		return nil, errs.ErrUnauthenticated
	}

	pair, u, err := r.sessions.Rotate(ctx, plaintext)
	if err != nil {
		return nil, err
	}
	if w, ok := responseWriterFromContext(ctx); ok {
		r.cookies.Set(w, pair)
	}
	return &AuthPayloadResolver{pair: pair, user: u}, nil
}

func (r *Resolver) provenance(ctx context.Context) service.Provenance {
	req, ok := guard.HTTPRequestFromContext(ctx)
	if !ok {
		return service.Provenance{}
	}
	ip := req.RemoteAddr
	if host, _, err := net.SplitHostPort(req.RemoteAddr); err == nil {
		ip = host
	}
	return service.Provenance{UserAgent: req.UserAgent(), IP: ip}
}

// UserResolver adapts model.User to the schema. The password hash has no
// field and can never be selected.
type UserResolver struct {
	u *model.User
}

func (r *UserResolver) ID() graphql.ID       { return graphql.ID(r.u.ID.String()) }
func (r *UserResolver) Email() string        { return r.u.Email }
func (r *UserResolver) DisplayName() string  { return r.u.DisplayName }
func (r *UserResolver) Role() string         { return string(r.u.Role) }
func (r *UserResolver) CreatedAt() graphql.Time {
	return graphql.Time{Time: r.u.CreatedAt}
}
func (r *UserResolver) UpdatedAt() graphql.Time {
	return graphql.Time{Time: r.u.UpdatedAt}
}
func (r *UserResolver) VerifiedAt() *graphql.Time {
	if r.u.VerifiedAt == nil {
		return nil
	}
	return &graphql.Time{Time: *r.u.VerifiedAt}
}

// AuthPayloadResolver adapts an issued token pair.
type AuthPayloadResolver struct {
	pair model.Tokens
	user *model.User
}

func (r *AuthPayloadResolver) AccessToken() string  { return r.pair.AccessToken }
func (r *AuthPayloadResolver) RefreshToken() string { return r.pair.RefreshToken }
func (r *AuthPayloadResolver) User() *UserResolver  { return &UserResolver{u: r.user} }

type responseWriterContextKey struct{}

func withResponseWriter(ctx context.Context, w http.ResponseWriter) context.Context {
	return context.WithValue(ctx, responseWriterContextKey{}, w)
}

func responseWriterFromContext(ctx context.Context) (http.ResponseWriter, bool) {
	w, ok := ctx.Value(responseWriterContextKey{}).(http.ResponseWriter)
	return w, ok
}
