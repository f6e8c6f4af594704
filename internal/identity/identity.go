package identity

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/park285/duelchess/internal/session"
)

var (
	ErrUnauthenticated = errors.New("no user identity on request")
	ErrUnknownUser     = errors.New("unknown user")
)

const (
	HeaderUserID   = "X-User-Id"
	HeaderUserName = "X-User-Name"
)

// Provider resolves the participant behind an incoming request.
type Provider interface {
	Identify(ctx context.Context, r *http.Request) (session.Participant, error)
}

// HeaderProvider trusts identity headers set by a fronting proxy. Browsers
// cannot set headers on a websocket upgrade, so the user_id and name query
// parameters are accepted as a fallback.
type HeaderProvider struct{}

func (HeaderProvider) Identify(_ context.Context, r *http.Request) (session.Participant, error) {
	id, name := requestIdentity(r)
	if id == "" {
		return session.Participant{}, ErrUnauthenticated
	}
	if name == "" {
		name = id
	}
	return session.Participant{ID: id, Name: name}, nil
}

func requestIdentity(r *http.Request) (id, name string) {
	id = strings.TrimSpace(r.Header.Get(HeaderUserID))
	name = strings.TrimSpace(r.Header.Get(HeaderUserName))
	if id == "" {
		q := r.URL.Query()
		id = strings.TrimSpace(q.Get("user_id"))
		name = strings.TrimSpace(q.Get("name"))
	}
	return id, name
}

// DirectoryProvider takes the user id from the request and resolves the
// display name through a Directory, ignoring any client-supplied name.
type DirectoryProvider struct {
	Directory *Directory
}

func (p DirectoryProvider) Identify(ctx context.Context, r *http.Request) (session.Participant, error) {
	id, _ := requestIdentity(r)
	if id == "" {
		return session.Participant{}, ErrUnauthenticated
	}
	return p.Directory.Lookup(ctx, id)
}
