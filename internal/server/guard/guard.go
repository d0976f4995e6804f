// Package guard authenticates inbound calls regardless of transport.
//
// REST handlers see a bare *http.Request; GraphQL resolvers see an execution
// context wrapping one. A small resolver strategy normalizes both to the
// same request shape before the bearer credential is extracted, so the two
// surfaces share one authentication contract.
package guard

import (
	"context"
	"net/http"
	"strings"

	"github.com/marginalia-app/marginalia/internal/errs"
	"github.com/marginalia-app/marginalia/internal/model"
	"github.com/marginalia-app/marginalia/internal/repository"
	"github.com/marginalia-app/marginalia/internal/token"
)

// AccessTokenCookie carries the access token for browser clients that do
// not send an Authorization header.
const AccessTokenCookie = "access_token"

// Kind discriminates how a call arrived.
type Kind int

const (
	// KindHTTP is a direct HTTP request.
	KindHTTP Kind = iota
	// KindGraphQL is a GraphQL execution wrapping an HTTP request.
	KindGraphQL
)

// CallContext is the opaque call descriptor handed to the guard.
type CallContext struct {
	Kind    Kind
	Request *http.Request   // set for KindHTTP
	Ctx     context.Context // set for KindGraphQL
}

// HTTPCall wraps a direct HTTP request.
func HTTPCall(r *http.Request) CallContext {
	return CallContext{Kind: KindHTTP, Request: r}
}

// GraphQLCall wraps a GraphQL execution context.
func GraphQLCall(ctx context.Context) CallContext {
	return CallContext{Kind: KindGraphQL, Ctx: ctx}
}

// RequestResolver resolves a call context to its underlying HTTP request.
type RequestResolver interface {
	ResolveRequest(cc CallContext) (*http.Request, error)
}

type httpResolver struct{}

func (httpResolver) ResolveRequest(cc CallContext) (*http.Request, error) {
	if cc.Request == nil {
		return nil, errs.ErrUnauthenticated
	}
	return cc.Request, nil
}

type graphqlResolver struct{}

func (graphqlResolver) ResolveRequest(cc CallContext) (*http.Request, error) {
	if cc.Ctx == nil {
		return nil, errs.ErrUnauthenticated
	}
	r, ok := HTTPRequestFromContext(cc.Ctx)
	if !ok {
		return nil, errs.ErrUnauthenticated
	}
	return r, nil
}

// Guard validates bearer credentials and resolves them to a principal.
type Guard struct {
	tokens    *token.Manager
	users     repository.UserRepository
	resolvers map[Kind]RequestResolver
}

// New constructs a Guard over the access-token verifier and user store.
func New(tokens *token.Manager, users repository.UserRepository) *Guard {
	return &Guard{
		tokens: tokens,
		users:  users,
		resolvers: map[Kind]RequestResolver{
			KindHTTP:    httpResolver{},
			KindGraphQL: graphqlResolver{},
		},
	}
}

// Authenticate extracts the bearer credential from the call, verifies it and
// re-loads the principal. Every failure mode collapses to ErrUnauthenticated;
// callers never learn which check rejected the call.
func (g *Guard) Authenticate(ctx context.Context, cc CallContext) (*model.User, error) {
	resolver, ok := g.resolvers[cc.Kind]
	if !ok {
		return nil, errs.ErrUnauthenticated
	}
	r, err := resolver.ResolveRequest(cc)
	if err != nil {
		return nil, errs.ErrUnauthenticated
	}

	raw, ok := extractToken(r)
	if !ok {
		return nil, errs.ErrUnauthenticated
	}
	claims, err := g.tokens.Parse(raw)
	if err != nil {
		return nil, errs.ErrUnauthenticated
	}

	u, err := g.users.GetByID(ctx, claims.UserID)
	if err != nil {
		// The token may outlive the account.
		return nil, errs.ErrUnauthenticated
	}
	return u, nil
}

// extractToken prefers the Authorization header and falls back to the
// access-token cookie.
func extractToken(r *http.Request) (string, bool) {
	if tok, ok := bearerToken(r.Header.Get("Authorization")); ok {
		return tok, true
	}
	if c, err := r.Cookie(AccessTokenCookie); err == nil {
		v := strings.TrimSpace(c.Value)
		if v != "" {
			return v, true
		}
	}
	return "", false
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	tok := value[len(bearer):]
	if tok == "" {
		return "", false
	}

	return tok, true
}
