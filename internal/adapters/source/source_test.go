package source_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	source "github.com/okian/scorer/internal/adapters/source"
	"github.com/okian/scorer/internal/apperr"
	. "github.com/smartystreets/goconvey/convey"
)

func TestRouter_Local(t *testing.T) {
	Convey("Given an upload root with a file", t, func() {
		root := t.TempDir()
		So(os.MkdirAll(filepath.Join(root, "comp"), 0o755), ShouldBeNil)
		So(os.WriteFile(filepath.Join(root, "comp", "truth.csv"), []byte("id,value\n1,1\n"), 0o600), ShouldBeNil)
		r := source.New(source.WithLocalRoot(root))
		ctx := context.Background()

		Convey("When reading a relative ref", func() {
			data, err := r.Read(ctx, "comp/truth.csv")
			So(err, ShouldBeNil)
			So(string(data), ShouldEqual, "id,value\n1,1\n")
		})

		Convey("When reading an upload URL path", func() {
			data, err := r.Read(ctx, "/api/file/comp/truth.csv")
			So(err, ShouldBeNil)
			So(len(data), ShouldBeGreaterThan, 0)
		})

		Convey("When reading an absolute path inside the root", func() {
			_, err := r.Read(ctx, filepath.Join(root, "comp", "truth.csv"))
			So(err, ShouldBeNil)
		})

		Convey("When the ref climbs out of the root", func() {
			_, err := r.Read(ctx, "../../etc/passwd")

			Convey("Then it is a resolution error", func() {
				So(apperr.KindOf(err), ShouldEqual, apperr.KindResolution)
				So(err.Error(), ShouldContainSubstring, "escapes the upload root")
			})
		})

		Convey("When the file is missing", func() {
			_, err := r.Read(ctx, "comp/nope.csv")

			Convey("Then it is a retryable resolution error", func() {
				So(apperr.KindOf(err), ShouldEqual, apperr.KindResolution)
				So(apperr.Retryable(err), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "not found")
			})
		})

		Convey("When the file is larger than the limit", func() {
			small := source.New(source.WithLocalRoot(root), source.WithMaxBytes(4))
			_, err := small.Read(ctx, "comp/truth.csv")
			So(apperr.KindOf(err), ShouldEqual, apperr.KindResolution)
			So(err.Error(), ShouldContainSubstring, "limit 4")
		})

		Convey("When the ref is a directory", func() {
			_, err := r.Read(ctx, "comp")
			So(apperr.KindOf(err), ShouldEqual, apperr.KindResolution)
		})

		Convey("When the ref is empty", func() {
			_, err := r.Read(ctx, "  ")
			So(apperr.KindOf(err), ShouldEqual, apperr.KindResolution)
		})
	})

	Convey("Given no upload root", t, func() {
		dir := t.TempDir()
		p := filepath.Join(dir, "sub.json")
		So(os.WriteFile(p, []byte(`[1,2]`), 0o600), ShouldBeNil)
		r := source.New()

		Convey("Then paths are read as given, including file URLs", func() {
			data, err := r.Read(context.Background(), p)
			So(err, ShouldBeNil)
			So(string(data), ShouldEqual, "[1,2]")

			data, err = r.Read(context.Background(), "file://"+filepath.ToSlash(p))
			So(err, ShouldBeNil)
			So(string(data), ShouldEqual, "[1,2]")
		})
	})
}

func TestRouter_HTTP(t *testing.T) {
	Convey("Given an HTTP file server", t, func() {
		mux := http.NewServeMux()
		mux.HandleFunc("/ok.csv", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("id,value\n1,0.5\n"))
		})
		mux.HandleFunc("/big.csv", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(strings.Repeat("x", 64)))
		})
		mux.HandleFunc("/slow.csv", func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		})
		srv := httptest.NewServer(mux)
		Reset(srv.Close)

		r := source.New(source.WithHTTPClient(srv.Client()), source.WithTimeout(100*time.Millisecond))
		ctx := context.Background()

		Convey("When fetching an existing file", func() {
			data, err := r.Read(ctx, srv.URL+"/ok.csv?token=secret")
			So(err, ShouldBeNil)
			So(string(data), ShouldEqual, "id,value\n1,0.5\n")
		})

		Convey("When the server answers 404", func() {
			_, err := r.Read(ctx, srv.URL+"/missing.csv?token=secret")

			Convey("Then it is a resolution error without the query", func() {
				So(apperr.KindOf(err), ShouldEqual, apperr.KindResolution)
				So(err.Error(), ShouldContainSubstring, "status 404")
				So(err.Error(), ShouldNotContainSubstring, "secret")
			})
		})

		Convey("When the body exceeds the limit", func() {
			small := source.New(source.WithHTTPClient(srv.Client()), source.WithMaxBytes(16))
			_, err := small.Read(ctx, srv.URL+"/big.csv")
			So(apperr.KindOf(err), ShouldEqual, apperr.KindResolution)
		})

		Convey("When the server is too slow", func() {
			_, err := r.Read(ctx, srv.URL+"/slow.csv")

			Convey("Then it is a timeout error", func() {
				So(apperr.KindOf(err), ShouldEqual, apperr.KindTimeout)
				So(apperr.Retryable(err), ShouldBeTrue)
			})
		})

		Convey("When the caller cancels", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			_, err := r.Read(cctx, srv.URL+"/ok.csv")
			So(apperr.KindOf(err), ShouldEqual, apperr.KindTimeout)
		})
	})

	Convey("Given an unreachable host", t, func() {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		_, err := source.New().Read(context.Background(), url+"/x.csv")
		So(apperr.KindOf(err), ShouldEqual, apperr.KindResolution)
	})
}

func TestIsRemote(t *testing.T) {
	Convey("Given refs", t, func() {
		So(source.IsRemote("https://example.com/a.csv"), ShouldBeTrue)
		So(source.IsRemote("http://example.com/a.csv"), ShouldBeTrue)
		So(source.IsRemote("uploads/a.csv"), ShouldBeFalse)
		So(source.IsRemote("file:///tmp/a.csv"), ShouldBeFalse)
	})
}
