// Package request reads command request documents from the places a
// dispatcher hands them over: inline, a file, stdin or a URL.
package request

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/aretw0/deckhand/pkg/domain"
)

// MaxSize bounds a request document.
const MaxSize = 1 << 20

// Loader resolves request references.
type Loader struct {
	Client *http.Client
	Stdin  io.Reader
}

// Load resolves ref with a default Loader.
func Load(ctx context.Context, ref string, inv domain.Invocation) (*domain.CommandRequest, error) {
	return Loader{}.Load(ctx, ref, inv)
}

// Load resolves ref and parses it. A ref starting with "{" is the document
// itself, "-" reads stdin, http(s) URLs are fetched and anything else is a
// file path.
func (l Loader) Load(ctx context.Context, ref string, inv domain.Invocation) (*domain.CommandRequest, error) {
	data, err := l.read(ctx, strings.TrimSpace(ref))
	if err != nil {
		return nil, err
	}
	return domain.ParseCommandRequest(data, inv)
}

func (l Loader) read(ctx context.Context, ref string) ([]byte, error) {
	switch {
	case ref == "":
		return nil, fmt.Errorf("empty request reference")
	case strings.HasPrefix(ref, "{"):
		return []byte(ref), nil
	case ref == "-":
		stdin := l.Stdin
		if stdin == nil {
			stdin = os.Stdin
		}
		return readLimited(stdin)
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return l.fetch(ctx, ref)
	default:
		f, err := os.Open(ref)
		if err != nil {
			return nil, fmt.Errorf("failed to open request file: %w", err)
		}
		defer f.Close()
		return readLimited(f)
	}
}

func (l Loader) fetch(ctx context.Context, url string) ([]byte, error) {
	client := l.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid request url: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch request: %s", resp.Status)
	}
	return readLimited(resp.Body)
}

func readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read request: %w", err)
	}
	if len(data) > MaxSize {
		return nil, fmt.Errorf("request exceeds %d bytes", MaxSize)
	}
	return data, nil
}
