package evidence

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/AdamBeresnev/bracket-engine/internal/bracket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	testCases := []struct {
		name     string
		link     string
		expected Link
	}{
		{name: "empty", link: "  ", expected: Link{Kind: LinkNone}},
		{name: "watch link", link: "https://www.youtube.com/watch?v=abc123&t=42", expected: Link{Kind: LinkYouTube, URL: "https://www.youtube.com/embed/abc123"}},
		{name: "short link", link: "https://youtu.be/xyz?si=share", expected: Link{Kind: LinkYouTube, URL: "https://www.youtube.com/embed/xyz"}},
		{name: "embed link", link: "https://www.youtube.com/embed/q1", expected: Link{Kind: LinkYouTube, URL: "https://www.youtube.com/embed/q1"}},
		{name: "video file", link: "https://cdn.example.com/clip.MP4", expected: Link{Kind: LinkVideo, URL: "https://cdn.example.com/clip.MP4"}},
		{name: "screenshot", link: "https://i.example.com/score.png?w=800", expected: Link{Kind: LinkImage, URL: "https://i.example.com/score.png?w=800"}},
		{name: "anything else", link: "https://twitch.tv/videos/1", expected: Link{Kind: LinkPage, URL: "https://twitch.tv/videos/1"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, Classify(tc.link))
		})
	}
}

func TestNormalize(t *testing.T) {
	got := Normalize([]string{"", "https://youtu.be/xyz", " "})
	assert.Equal(t, []string{"https://www.youtube.com/embed/xyz"}, got)
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	ref, err := m.Store(ctx, []byte("screenshot"), "image/png")
	require.NoError(t, err)
	again, err := m.Store(ctx, []byte("screenshot"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, ref, again, "identical proof maps to one reference")

	blob, err := m.Retrieve(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, []byte("screenshot"), blob)

	_, err = m.Retrieve(ctx, "nope")
	assert.ErrorIs(t, err, bracket.ErrNotFound)
}

// fakeS3 serves path-style PUT and GET requests for a single bucket.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (f *fakeS3) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[key]
	return ok
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, "/")
	f.mu.Lock()
	defer f.mu.Unlock()
	switch r.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[key] = body
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		body, ok := f.objects[key]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write(body)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func TestS3Store(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	ctx := context.Background()
	s, err := NewS3Store(ctx, S3Config{
		Endpoint:        srv.URL,
		Region:          "auto",
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
		Bucket:          "evidence",
		Prefix:          "disputes/",
	})
	require.NoError(t, err)

	ref, err := s.Store(ctx, []byte("replay"), "video/mp4")
	require.NoError(t, err)
	assert.True(t, fake.has("evidence/disputes/"+string(ref)))

	blob, err := s.Retrieve(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, []byte("replay"), blob)

	_, err = s.Retrieve(ctx, "missing")
	assert.ErrorIs(t, err, bracket.ErrNotFound)
}

func TestNewS3StoreRequiresBucket(t *testing.T) {
	_, err := NewS3Store(context.Background(), S3Config{AccessKeyID: "k", SecretAccessKey: "s"})
	assert.Error(t, err)
}
