package remotearchive

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestClient(srv *httptest.Server, token string) *Client {
	c := NewClient(token)
	c.baseURL = srv.URL
	return c
}

func TestParseListingOrdersByFirstAppearance(t *testing.T) {
	body := strings.NewReader(
		"aaa111  /archive/gnss/products/2356/b.sp3.gz\n" +
			"bbb222  /archive/gnss/products/2356/a.sp3.gz\n" +
			"garbage line with wrong field count\n" +
			"ccc333  /archive/gnss/products/2356/b.sp3.gz\n",
	)

	listing, err := parseListing(2356, body)
	if err != nil {
		t.Fatalf("parseListing() error = %v", err)
	}
	if listing.Week != 2356 {
		t.Errorf("Week = %d, want 2356", listing.Week)
	}
	wantOrder := []string{"b.sp3.gz", "a.sp3.gz"}
	if len(listing.Order) != len(wantOrder) {
		t.Fatalf("Order = %v, want %v", listing.Order, wantOrder)
	}
	for i, name := range wantOrder {
		if listing.Order[i] != name {
			t.Errorf("Order[%d] = %s, want %s", i, listing.Order[i], name)
		}
	}
	if listing.Files["b.sp3.gz"] != "ccc333" {
		t.Errorf("Files[b.sp3.gz] = %s, want ccc333 (last write wins)", listing.Files["b.sp3.gz"])
	}
	if listing.Files["a.sp3.gz"] != "bbb222" {
		t.Errorf("Files[a.sp3.gz] = %s, want bbb222", listing.Files["a.sp3.gz"])
	}
}

func TestGetListingSendsBearerAuthAndParsesBody(t *testing.T) {
	var gotAuth, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		_, _ = w.Write([]byte("deadbeef  /archive/gnss/products/2356/f.sp3.gz\n"))
	}))
	defer srv.Close()

	c := newTestClient(srv, "my-token")
	listing, err := c.GetListing(2356)
	if err != nil {
		t.Fatalf("GetListing() error = %v", err)
	}
	if gotAuth != "Bearer my-token" {
		t.Errorf("Authorization header = %q, want %q", gotAuth, "Bearer my-token")
	}
	if gotPath != "/2356/SHA512SUMS" {
		t.Errorf("request path = %q, want /2356/SHA512SUMS", gotPath)
	}
	if listing.Files["f.sp3.gz"] != "deadbeef" {
		t.Errorf("Files[f.sp3.gz] = %s, want deadbeef", listing.Files["f.sp3.gz"])
	}
}

func TestGetListingNotFoundReturnsEmptyListing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestClient(srv, "tok")
	listing, err := c.GetListing(9999)
	if err != nil {
		t.Fatalf("GetListing() error = %v, want nil for 404", err)
	}
	if len(listing.Files) != 0 {
		t.Errorf("expected empty listing for a missing week, got %v", listing.Files)
	}
}

func TestGetFileReturnsBodyAndLength(t *testing.T) {
	const content = "file contents"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/2356/f.sp3.gz" {
			t.Errorf("request path = %q, want /2356/f.sp3.gz", r.URL.Path)
		}
		_, _ = w.Write([]byte(content))
	}))
	defer srv.Close()

	c := newTestClient(srv, "tok")
	resp, err := c.GetFile(2356, "f.sp3.gz")
	if err != nil {
		t.Fatalf("GetFile() error = %v", err)
	}
	defer resp.Body.Close()

	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if string(buf) != content {
		t.Errorf("body = %q, want %q", buf, content)
	}
}

func TestGetFileErrorStatusReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := newTestClient(srv, "tok")
	c.http.RetryMax = 0
	if _, err := c.GetFile(2356, "f.sp3.gz"); err == nil {
		t.Fatal("expected GetFile() to return an error for a 403 response")
	}
}
