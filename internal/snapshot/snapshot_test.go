package snapshot

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/kevinesg/ph-top-headlines-ETL/internal/models"
	"github.com/kevinesg/ph-top-headlines-ETL/internal/objectstore"
	"github.com/kevinesg/ph-top-headlines-ETL/logger"
)

const bucket = "ph-news-test"

func article(url string) models.Article {
	return models.Article{
		Author:      "Reporter",
		Title:       "Title " + url,
		URL:         url,
		Source:      "inquirer",
		Category:    "general",
		Language:    "en",
		Country:     "ph",
		PublishedAt: "2023-06-02T10:00:00+00:00",
	}
}

func articles(urls ...string) []models.Article {
	out := make([]models.Article, 0, len(urls))
	for _, u := range urls {
		out = append(out, article(u))
	}
	return out
}

func urls(as []models.Article) []string {
	out := make([]string, 0, len(as))
	for _, a := range as {
		out = append(out, a.URL)
	}
	return out
}

func newStore(t *testing.T) *objectstore.FileStore {
	t.Helper()
	s, err := objectstore.NewFileStore(filepath.Join(t.TempDir(), "store"))
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	return s
}

func seed(t *testing.T, s objectstore.ObjectStore, data []byte) {
	t.Helper()
	ctx := context.Background()
	if err := s.CreateBucket(ctx, bucket); err != nil {
		t.Fatalf("CreateBucket: %v", err)
	}
	if err := s.Put(ctx, bucket, LatestBatchPath, data, ContentType); err != nil {
		t.Fatalf("Put: %v", err)
	}
}

func TestDiff(t *testing.T) {
	tests := []struct {
		name    string
		prev    []string
		current []string
		want    []string
	}{
		{"one new", []string{"A", "B"}, []string{"A", "B", "C"}, []string{"C"}},
		{"no prior", nil, []string{"C", "A"}, []string{"C", "A"}},
		{"nothing new", []string{"A", "B"}, []string{"B", "A"}, []string{}},
		{"empty current", []string{"A"}, nil, []string{}},
		{"order kept", []string{"B"}, []string{"D", "B", "A", "C"}, []string{"D", "A", "C"}},
		{"duplicates in current kept", []string{"A"}, []string{"C", "C"}, []string{"C", "C"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := urls(Diff(articles(tt.prev...), articles(tt.current...)))
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Diff = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDiffIsSetDifference(t *testing.T) {
	prev := articles("A", "B", "E")
	current := articles("A", "C", "D", "E", "F")
	delta := Diff(prev, current)

	prevURLs := map[string]bool{}
	for _, a := range prev {
		prevURLs[a.URL] = true
	}
	inDelta := map[string]bool{}
	for _, a := range delta {
		if prevURLs[a.URL] {
			t.Errorf("delta contains %s which was already in the snapshot", a.URL)
		}
		inDelta[a.URL] = true
	}
	for _, a := range current {
		if !prevURLs[a.URL] && !inDelta[a.URL] {
			t.Errorf("new url %s missing from delta", a.URL)
		}
	}
}

func TestEncodeDecodeKeepsURLs(t *testing.T) {
	in := articles("https://a.example/1", "https://b.example/2?x=1,2", `https://c.example/"q"`)
	in[0].Description = "line one\nline two"
	in[1].Author = ""

	data, err := Encode(in)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	out, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !reflect.DeepEqual(out, in) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", out, in)
	}
}

func TestDecode(t *testing.T) {
	t.Run("empty input", func(t *testing.T) {
		got, err := Decode([]byte("  \n"))
		if err != nil || len(got) != 0 {
			t.Errorf("Decode = %v, %v", got, err)
		}
	})
	t.Run("header only", func(t *testing.T) {
		data, _ := Encode(nil)
		got, err := Decode(data)
		if err != nil || len(got) != 0 {
			t.Errorf("Decode = %v, %v", got, err)
		}
	})
	t.Run("columns by name", func(t *testing.T) {
		got, err := Decode([]byte("url,title,extra\nhttps://x,Hello,zzz\n"))
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		want := []models.Article{{URL: "https://x", Title: "Hello"}}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("Decode = %+v, want %+v", got, want)
		}
	})
	t.Run("no url column", func(t *testing.T) {
		_, err := Decode([]byte("title\nHello\n"))
		if !errors.Is(err, ErrMalformedSnapshot) {
			t.Errorf("expected ErrMalformedSnapshot, got %v", err)
		}
	})
	t.Run("ragged rows", func(t *testing.T) {
		_, err := Decode([]byte("url,title\nhttps://x\n"))
		if !errors.Is(err, ErrMalformedSnapshot) {
			t.Errorf("expected ErrMalformedSnapshot, got %v", err)
		}
	})
}

func TestDifferRun(t *testing.T) {
	ctx := context.Background()
	prevData, err := Encode(articles("A", "B"))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name      string
		seed      []byte
		noBucket  bool
		current   []string
		wantDelta []string
		wantFirst bool
	}{
		{name: "one new article", seed: prevData, current: []string{"A", "B", "C"}, wantDelta: []string{"C"}},
		{name: "empty fetch", seed: prevData, current: nil, wantDelta: []string{}},
		{name: "first run", noBucket: true, current: []string{"A", "B"}, wantDelta: []string{"A", "B"}, wantFirst: true},
		{name: "first run empty fetch", noBucket: true, current: nil, wantDelta: []string{}, wantFirst: true},
		{name: "empty snapshot", seed: []byte{}, current: []string{"A"}, wantDelta: []string{"A"}, wantFirst: true},
		{name: "malformed snapshot", seed: []byte("title\n\"unterminated"), current: []string{"A"}, wantDelta: []string{"A"}, wantFirst: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newStore(t)
			if !tt.noBucket {
				seed(t, store, tt.seed)
			}
			d := NewDiffer(store, logger.Discard())

			res, err := d.Run(ctx, bucket, articles(tt.current...))
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if got := urls(res.Delta); !reflect.DeepEqual(got, tt.wantDelta) {
				t.Errorf("delta = %v, want %v", got, tt.wantDelta)
			}
			if res.FirstRun != tt.wantFirst {
				t.Errorf("FirstRun = %v, want %v", res.FirstRun, tt.wantFirst)
			}

			latest, err := store.Get(ctx, bucket, LatestBatchPath)
			if err != nil {
				t.Fatalf("latest batch: %v", err)
			}
			stored, err := Decode(latest)
			if err != nil {
				t.Fatalf("decode latest: %v", err)
			}
			if got := urls(stored); !reflect.DeepEqual(got, urls(articles(tt.current...))) {
				t.Errorf("latest batch = %v, want %v", got, tt.current)
			}

			delta, err := LoadDelta(ctx, store, bucket)
			if err != nil {
				t.Fatalf("LoadDelta: %v", err)
			}
			if got := urls(delta); !reflect.DeepEqual(got, tt.wantDelta) {
				t.Errorf("stored delta = %v, want %v", got, tt.wantDelta)
			}
		})
	}
}

func TestDifferRunTwice(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	d := NewDiffer(store, logger.Discard())

	if _, err := d.Run(ctx, bucket, articles("A", "B")); err != nil {
		t.Fatal(err)
	}
	res, err := d.Run(ctx, bucket, articles("A", "B"))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Delta) != 0 || res.FirstRun {
		t.Errorf("second identical run: delta %v, first run %v", urls(res.Delta), res.FirstRun)
	}
}

type brokenStore struct {
	objectstore.ObjectStore
}

func (brokenStore) BucketExists(context.Context, string) (bool, error) {
	return false, errors.Join(objectstore.ErrStorageAccess, errors.New("permission denied"))
}

func TestDifferRunStorageError(t *testing.T) {
	d := NewDiffer(brokenStore{}, logger.Discard())
	_, err := d.Run(context.Background(), bucket, articles("A"))
	if !errors.Is(err, objectstore.ErrStorageAccess) {
		t.Errorf("expected ErrStorageAccess, got %v", err)
	}
}

func TestLoadDeltaMissing(t *testing.T) {
	store := newStore(t)
	_, err := LoadDelta(context.Background(), store, bucket)
	if !errors.Is(err, objectstore.ErrStorageAccess) || !errors.Is(err, objectstore.ErrObjectNotFound) {
		t.Errorf("expected missing-object storage error, got %v", err)
	}
}
