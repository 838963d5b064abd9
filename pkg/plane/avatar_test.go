package plane

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newFetcher(baseURL, token string) *AvatarFetcher {
	return NewAvatarFetcher(baseURL, token, 5*time.Second, nil)
}

// TestFetchEmptyRef tests that an empty reference performs no I/O.
func TestFetchEmptyRef(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	if avatar := newFetcher(server.URL, "").Fetch(context.Background(), ""); avatar != nil {
		t.Fatalf("expected nil avatar")
	}
	if called {
		t.Fatalf("expected no request for empty ref")
	}
}

// TestFetchRelativeWithoutBaseURL tests that relative refs cannot resolve without a base URL.
func TestFetchRelativeWithoutBaseURL(t *testing.T) {
	if avatar := newFetcher("", "").Fetch(context.Background(), "/avatars/carol.png"); avatar != nil {
		t.Fatalf("expected nil avatar without base url")
	}
}

// TestFetchRelativeJoinsBaseURL tests that relative refs are joined against the base URL with the bearer token.
func TestFetchRelativeJoinsBaseURL(t *testing.T) {
	var gotPath, gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte("jpeg-bytes"))
	}))
	defer server.Close()

	avatar := newFetcher(server.URL+"/", "token123").Fetch(context.Background(), "avatars/carol.jpg")
	if avatar == nil {
		t.Fatalf("expected avatar")
	}
	if gotPath != "/avatars/carol.jpg" {
		t.Fatalf("unexpected path: %q", gotPath)
	}
	if gotAuth != "Bearer token123" {
		t.Fatalf("expected bearer token, got %q", gotAuth)
	}
	if avatar.Filename != "avatar.jpg" || avatar.ContentType != "image/jpeg" {
		t.Fatalf("unexpected filetype: %q %q", avatar.Filename, avatar.ContentType)
	}
	if string(avatar.Data) != "jpeg-bytes" {
		t.Fatalf("unexpected data: %q", avatar.Data)
	}
}

// TestFetchRedirectStripsAuthorization tests that the one followed redirect drops the auth header.
func TestFetchRedirectStripsAuthorization(t *testing.T) {
	var redirectAuth *string
	storage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		redirectAuth = &auth
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("png-bytes"))
	}))
	defer storage.Close()

	var initialAuth string
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		initialAuth = r.Header.Get("Authorization")
		w.Header().Set("Location", storage.URL+"/x?X-Amz-Signature=abc")
		w.WriteHeader(http.StatusFound)
	}))
	defer origin.Close()

	avatar := newFetcher(origin.URL, "token123").Fetch(context.Background(), "/avatars/carol.png")
	if avatar == nil {
		t.Fatalf("expected avatar via redirect")
	}
	if initialAuth != "Bearer token123" {
		t.Fatalf("expected auth on initial request, got %q", initialAuth)
	}
	if redirectAuth == nil || *redirectAuth != "" {
		t.Fatalf("expected no auth header on redirect request, got %v", redirectAuth)
	}
	if string(avatar.Data) != "png-bytes" {
		t.Fatalf("unexpected data: %q", avatar.Data)
	}
}

// TestFetchSingleRedirectHop tests that a second redirect is not followed.
func TestFetchSingleRedirectHop(t *testing.T) {
	hops := 0
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hops++
		w.Header().Set("Location", server.URL+"/next")
		w.WriteHeader(http.StatusFound)
	}))
	defer server.Close()

	if avatar := newFetcher(server.URL, "").Fetch(context.Background(), "/loop"); avatar != nil {
		t.Fatalf("expected nil avatar for redirect loop")
	}
	if hops != 2 {
		t.Fatalf("expected exactly 2 requests, got %d", hops)
	}
}

// TestFetchAbsoluteRef tests that an absolute reference is used verbatim.
func TestFetchAbsoluteRef(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("png-bytes"))
	}))
	defer server.Close()

	avatar := newFetcher("https://unused.example.com", "").Fetch(context.Background(), server.URL+"/direct.png")
	if avatar == nil {
		t.Fatalf("expected avatar")
	}
}

// TestFetchErrorStatus tests that a non-success response yields nil.
func TestFetchErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	if avatar := newFetcher(server.URL, "").Fetch(context.Background(), "/missing.png"); avatar != nil {
		t.Fatalf("expected nil avatar for 404")
	}
}

// TestFetchDefaultsToPNG tests the filetype fallback for unknown content types.
func TestFetchDefaultsToPNG(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write([]byte("bytes"))
	}))
	defer server.Close()

	avatar := newFetcher(server.URL, "").Fetch(context.Background(), "/blob")
	if avatar == nil {
		t.Fatalf("expected avatar")
	}
	if avatar.Filename != "avatar.png" {
		t.Fatalf("expected png fallback filename, got %q", avatar.Filename)
	}
}

// TestFiletype tests content-type to extension mapping.
func TestFiletype(t *testing.T) {
	for header, want := range map[string][2]string{
		"image/png":                 {"image/png", ".png"},
		"image/jpeg; charset=utf-8": {"image/jpeg", ".jpg"},
		"image/webp":                {"image/webp", ".webp"},
		"":                          {"image/png", ".png"},
		"not/a-real-type":           {"not/a-real-type", ".png"},
	} {
		contentType, ext := filetype(header)
		if contentType != want[0] || ext != want[1] {
			t.Fatalf("filetype(%q) = (%q, %q), want (%q, %q)", header, contentType, ext, want[0], want[1])
		}
	}
}
