package diceword

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
)

//go:embed wordlist.txt
var embeddedWordList []byte

// DefaultHTTPTimeout bounds a single word list fetch.
const DefaultHTTPTimeout = 10 * time.Second

// Loader fetches the raw word list.
type Loader interface {
	Load(ctx context.Context) ([]byte, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(ctx context.Context) ([]byte, error)

// Load implements Loader.
func (f LoaderFunc) Load(ctx context.Context) ([]byte, error) {
	return f(ctx)
}

// EmbeddedLoader returns a Loader for the word list compiled into the binary.
func EmbeddedLoader() Loader {
	return LoaderFunc(func(context.Context) ([]byte, error) {
		return embeddedWordList, nil
	})
}

// FileLoader returns a Loader that reads the word list from path.
func FileLoader(path string) Loader {
	return LoaderFunc(func(context.Context) ([]byte, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read word list: %w", err)
		}
		return data, nil
	})
}

// HTTPLoaderConfig configures an HTTP word list loader.
type HTTPLoaderConfig struct {
	// URL is the well-known location of the word list.
	// Required.
	URL string

	// Client is the resty client to use.
	// If nil, a new client is created.
	Client *resty.Client

	// Timeout bounds each fetch.
	// Defaults to DefaultHTTPTimeout if 0.
	Timeout time.Duration
}

// HTTPLoader returns a Loader that fetches the word list over HTTP.
// Any non-2xx response is a load failure.
func HTTPLoader(config HTTPLoaderConfig) Loader {
	client := config.Client
	if client == nil {
		client = resty.New()
	}
	timeout := config.Timeout
	if timeout == 0 {
		timeout = DefaultHTTPTimeout
	}
	url := config.URL

	return LoaderFunc(func(ctx context.Context) ([]byte, error) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		resp, err := client.R().
			SetContext(ctx).
			SetHeader("Accept", "text/plain").
			Get(url)
		if err != nil {
			return nil, fmt.Errorf("fetch word list: %w", err)
		}
		if !resp.IsSuccess() {
			return nil, fmt.Errorf("fetch word list: %s", resp.Status())
		}
		return resp.Body(), nil
	})
}
