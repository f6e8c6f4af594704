package identity

import (
	"context"
	"errors"
	"net"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
)

func TestHeaderProvider(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set(HeaderUserID, " u1 ")
	r.Header.Set(HeaderUserName, "Alice")
	p, err := HeaderProvider{}.Identify(context.Background(), r)
	if err != nil || p.ID != "u1" || p.Name != "Alice" {
		t.Fatalf("Identify = %+v, %v", p, err)
	}

	r = httptest.NewRequest("GET", "/ws?user_id=u2", nil)
	p, err = HeaderProvider{}.Identify(context.Background(), r)
	if err != nil || p.ID != "u2" || p.Name != "u2" {
		t.Fatalf("query Identify = %+v, %v", p, err)
	}

	r = httptest.NewRequest("GET", "/ws", nil)
	if _, err := (HeaderProvider{}).Identify(context.Background(), r); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("err = %v, want ErrUnauthenticated", err)
	}
}

// serve starts an in-memory fasthttp server and returns a Directory wired
// to it.
func serve(t *testing.T, h fasthttp.RequestHandler, opts ...Option) *Directory {
	t.Helper()
	ln := fasthttputil.NewInmemoryListener()
	srv := &fasthttp.Server{Handler: h}
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() {
		_ = srv.Shutdown()
		_ = ln.Close()
	})
	opts = append([]Option{WithDial(func(string) (net.Conn, error) { return ln.Dial() })}, opts...)
	return NewDirectory("http://identity.local", opts...)
}

func TestDirectoryLookup(t *testing.T) {
	d := serve(t, func(ctx *fasthttp.RequestCtx) {
		switch string(ctx.Path()) {
		case "/users/u1":
			ctx.SetContentType("application/json")
			ctx.SetBodyString(`{"id":"u1","name":"Alice"}`)
		case "/users/bare":
			ctx.SetBodyString(`{}`)
		default:
			ctx.SetStatusCode(fasthttp.StatusNotFound)
		}
	})

	p, err := d.Lookup(context.Background(), "u1")
	if err != nil || p.Name != "Alice" {
		t.Fatalf("Lookup = %+v, %v", p, err)
	}
	p, err = d.Lookup(context.Background(), "bare")
	if err != nil || p.ID != "bare" || p.Name != "bare" {
		t.Fatalf("Lookup(bare) = %+v, %v", p, err)
	}
	if _, err := d.Lookup(context.Background(), "ghost"); !errors.Is(err, ErrUnknownUser) {
		t.Fatalf("err = %v, want ErrUnknownUser", err)
	}
}

func TestDirectoryRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	d := serve(t, func(ctx *fasthttp.RequestCtx) {
		if calls.Add(1) < 3 {
			ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
			return
		}
		ctx.SetBodyString(`{"id":"u1","name":"Alice"}`)
	}, WithRetry(3))

	p, err := d.Lookup(context.Background(), "u1")
	if err != nil || p.Name != "Alice" {
		t.Fatalf("Lookup = %+v, %v", p, err)
	}
	if calls.Load() != 3 {
		t.Fatalf("calls = %d, want 3", calls.Load())
	}
}

func TestDirectoryDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	d := serve(t, func(ctx *fasthttp.RequestCtx) {
		calls.Add(1)
		ctx.SetStatusCode(fasthttp.StatusForbidden)
		ctx.SetBodyString("nope")
	}, WithRetry(3))

	_, err := d.Lookup(context.Background(), "u1")
	if err == nil || !strings.Contains(err.Error(), "status=403") {
		t.Fatalf("err = %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}
}

func TestDirectoryHonoursContext(t *testing.T) {
	d := serve(t, func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusBadGateway)
	}, WithRetry(5))
	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	start := time.Now()
	if _, err := d.Lookup(ctx, "u1"); err == nil {
		t.Fatalf("expected error")
	}
	if time.Since(start) > time.Second {
		t.Fatalf("retries ignored the context deadline")
	}
}

func TestDirectoryProvider(t *testing.T) {
	d := serve(t, func(ctx *fasthttp.RequestCtx) {
		ctx.SetBodyString(`{"id":"u9","name":"Directory Name"}`)
	})
	r := httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set(HeaderUserID, "u9")
	r.Header.Set(HeaderUserName, "Spoofed")
	p, err := DirectoryProvider{Directory: d}.Identify(context.Background(), r)
	if err != nil || p.Name != "Directory Name" {
		t.Fatalf("Identify = %+v, %v", p, err)
	}
}

func TestBackoff(t *testing.T) {
	if backoffDuration(1) != 100*time.Millisecond || backoffDuration(3) != 400*time.Millisecond || backoffDuration(10) != 3200*time.Millisecond {
		t.Fatalf("unexpected backoff schedule")
	}
}
