package diceword

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pion/logging"
)

func TestCacheLoadsOnce(t *testing.T) {
	var calls atomic.Int32
	c := NewCache(CacheConfig{
		Loader: LoaderFunc(func(context.Context) ([]byte, error) {
			calls.Add(1)
			return []byte(testWordList), nil
		}),
	})
	ctx := context.Background()

	if _, err := c.WordsFromBytes(ctx, []byte{1, 2, 3, 4}, 2); err != nil {
		t.Fatalf("WordsFromBytes failed: %v", err)
	}
	if ok, err := c.ValidateWords(ctx, []string{"apple"}); err != nil || !ok {
		t.Fatalf("ValidateWords = %v, %v", ok, err)
	}
	n, err := c.Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 10 {
		t.Errorf("Count() = %d, want 10", n)
	}

	if got := calls.Load(); got != 1 {
		t.Errorf("loader called %d times, want 1", got)
	}
}

func TestCacheSingleFlight(t *testing.T) {
	var calls atomic.Int32
	entered := make(chan struct{})
	release := make(chan struct{})

	c := NewCache(CacheConfig{
		Loader: LoaderFunc(func(context.Context) ([]byte, error) {
			if calls.Add(1) == 1 {
				close(entered)
			}
			<-release
			return []byte(testWordList), nil
		}),
	})

	const waiters = 8
	var wg sync.WaitGroup
	errs := make(chan error, waiters)
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Dictionary(context.Background())
			errs <- err
		}()
	}

	<-entered
	// Give the remaining goroutines a chance to join the in-flight load.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("Dictionary() error: %v", err)
		}
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("loader called %d times, want 1", got)
	}
}

func TestCacheFailureNotCached(t *testing.T) {
	var calls atomic.Int32
	c := NewCache(CacheConfig{
		Loader: LoaderFunc(func(context.Context) ([]byte, error) {
			if calls.Add(1) == 1 {
				return nil, errors.New("network error")
			}
			return []byte(testWordList), nil
		}),
		LoggerFactory: logging.NewDefaultLoggerFactory(),
	})
	ctx := context.Background()

	_, err := c.Dictionary(ctx)
	if !errors.Is(err, ErrDictionaryUnavailable) {
		t.Fatalf("first load error = %v, want ErrDictionaryUnavailable", err)
	}

	d, err := c.Dictionary(ctx)
	if err != nil {
		t.Fatalf("second load failed: %v", err)
	}
	if d.Len() != 10 {
		t.Errorf("Len() = %d, want 10", d.Len())
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("loader called %d times, want 2", got)
	}
}

func TestCacheEmptyListIsUnavailable(t *testing.T) {
	c := NewCache(CacheConfig{
		Loader: LoaderFunc(func(context.Context) ([]byte, error) {
			return []byte("   \n  \n  "), nil
		}),
	})

	_, err := c.WordsFromBytes(context.Background(), []byte{1, 2, 3, 4}, 2)
	if !errors.Is(err, ErrDictionaryUnavailable) {
		t.Fatalf("error = %v, want ErrDictionaryUnavailable", err)
	}
}

func TestCacheWaiterCanceled(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	c := NewCache(CacheConfig{
		Loader: LoaderFunc(func(context.Context) ([]byte, error) {
			<-release
			return []byte(testWordList), nil
		}),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := c.Dictionary(ctx)
	if !errors.Is(err, ErrDictionaryUnavailable) {
		t.Errorf("error = %v, want ErrDictionaryUnavailable", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want DeadlineExceeded in chain", err)
	}
}

func TestFileLoader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "words.txt")
	if err := os.WriteFile(path, []byte(testWordList), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	c := NewCache(CacheConfig{Loader: FileLoader(path)})
	n, err := c.Count(context.Background())
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 10 {
		t.Errorf("Count() = %d, want 10", n)
	}

	missing := NewCache(CacheConfig{Loader: FileLoader(filepath.Join(t.TempDir(), "nope.txt"))})
	if _, err := missing.Count(context.Background()); !errors.Is(err, ErrDictionaryUnavailable) {
		t.Errorf("missing file error = %v, want ErrDictionaryUnavailable", err)
	}
}

func TestHTTPLoader(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch r.URL.Path {
		case "/dicewords.txt":
			w.Header().Set("Content-Type", "text/plain")
			_, _ = w.Write([]byte(testWordList))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewCache(CacheConfig{Loader: HTTPLoader(HTTPLoaderConfig{URL: srv.URL + "/dicewords.txt"})})
	words, err := c.WordsFromBytes(context.Background(), []byte{0x00, 0x01}, 1)
	if err != nil {
		t.Fatalf("WordsFromBytes failed: %v", err)
	}
	if words[0] != "banana" {
		t.Errorf("word = %q, want banana", words[0])
	}
	if _, err := c.Count(context.Background()); err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("server hit %d times, want 1", got)
	}

	notFound := NewCache(CacheConfig{Loader: HTTPLoader(HTTPLoaderConfig{URL: srv.URL + "/missing.txt"})})
	if _, err := notFound.Count(context.Background()); !errors.Is(err, ErrDictionaryUnavailable) {
		t.Errorf("404 error = %v, want ErrDictionaryUnavailable", err)
	}
}

func TestDefaultCache(t *testing.T) {
	n, err := Default().Count(context.Background())
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n < 256 {
		t.Errorf("default dictionary has %d words", n)
	}
}
