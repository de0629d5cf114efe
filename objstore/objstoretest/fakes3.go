// Package objstoretest provides an in-process S3 endpoint for tests.
package objstoretest

import (
	"crypto/md5"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
)

// FakeS3 is a minimal path-style S3 endpoint for a single bucket. It supports
// GET, PUT with If-Match / If-None-Match preconditions, DELETE and
// ListObjectsV2, and answers quoted ETags the way S3 does.
type FakeS3 struct {
	mu      sync.Mutex
	bucket  string
	objects map[string][]byte
	etags   map[string]string
	headers []http.Header
}

func NewFakeS3(bucket string) *FakeS3 {
	return &FakeS3{
		bucket:  bucket,
		objects: make(map[string][]byte),
		etags:   make(map[string]string),
	}
}

// Serve starts the endpoint for the duration of the test and returns its URL.
func Serve(t testing.TB, bucket string) (*FakeS3, string) {
	t.Helper()
	fake := NewFakeS3(bucket)
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	return fake, srv.URL
}

// PutHeaders returns the headers of every PUT received so far.
func (f *FakeS3) PutHeaders() []http.Header {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]http.Header(nil), f.headers...)
}

// Keys returns the stored object keys in order.
func (f *FakeS3) Keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.objects))
	for k := range f.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Object returns the stored content of key.
func (f *FakeS3) Object(key string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	return append([]byte(nil), data...), ok
}

type listEntry struct {
	Key  string `xml:"Key"`
	Size int    `xml:"Size"`
}

type listBucketResult struct {
	XMLName     xml.Name    `xml:"ListBucketResult"`
	Name        string      `xml:"Name"`
	Prefix      string      `xml:"Prefix"`
	KeyCount    int         `xml:"KeyCount"`
	IsTruncated bool        `xml:"IsTruncated"`
	Contents    []listEntry `xml:"Contents"`
}

func writeError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>%s</Code><Message>%s</Message><RequestId>1</RequestId></Error>`, code, code)
}

func (f *FakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, "/"+f.bucket), "/")

	if key == "" && r.Method == http.MethodGet {
		prefix := r.URL.Query().Get("prefix")
		res := listBucketResult{Name: f.bucket, Prefix: prefix}
		var keys []string
		for k := range f.objects {
			if strings.HasPrefix(k, prefix) {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		for _, k := range keys {
			res.Contents = append(res.Contents, listEntry{Key: k, Size: len(f.objects[k])})
		}
		res.KeyCount = len(keys)
		w.Header().Set("Content-Type", "application/xml")
		xml.NewEncoder(w).Encode(res)
		return
	}

	switch r.Method {
	case http.MethodGet:
		data, ok := f.objects[key]
		if !ok {
			writeError(w, http.StatusNotFound, "NoSuchKey")
			return
		}
		w.Header().Set("ETag", f.etags[key])
		w.Write(data)
	case http.MethodPut:
		f.headers = append(f.headers, r.Header.Clone())
		current, exists := f.etags[key]
		if r.Header.Get("If-None-Match") == "*" && exists {
			writeError(w, http.StatusPreconditionFailed, "PreconditionFailed")
			return
		}
		if match := r.Header.Get("If-Match"); match != "" && match != current {
			writeError(w, http.StatusPreconditionFailed, "PreconditionFailed")
			return
		}
		data, _ := io.ReadAll(r.Body)
		etag := fmt.Sprintf("\"%x\"", md5.Sum(data))
		f.objects[key] = data
		f.etags[key] = etag
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusOK)
	case http.MethodDelete:
		delete(f.objects, key)
		delete(f.etags, key)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}
