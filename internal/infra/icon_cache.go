package infra

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/disintegration/imaging"
)

// IconCache downloads asset icons and keeps resized PNG bytes in memory.
// Nothing is written to disk.
type IconCache struct {
	size   int
	client *http.Client

	mu    sync.RWMutex
	icons map[string][]byte
}

// NewIconCache creates an IconCache that resizes icons to size x size pixels
func NewIconCache(size int) *IconCache {
	// Optimize HTTP Transport to prevent connection leaks
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConns = 100
	transport.MaxConnsPerHost = 10
	transport.IdleConnTimeout = 30 * time.Second

	return &IconCache{
		size: size,
		client: &http.Client{
			Timeout:   10 * time.Second,
			Transport: transport,
		},
		icons: make(map[string][]byte),
	}
}

// Fetch returns the icon for id, downloading imageURL on a cache miss.
func (c *IconCache) Fetch(ctx context.Context, id, imageURL string) ([]byte, error) {
	// Security: Sanitize id before using it as a cache key
	safeID := sanitizeID(id)
	if safeID == "" {
		return nil, fmt.Errorf("invalid asset id: %q", id)
	}

	if icon, ok := c.Get(safeID); ok {
		return icon, nil // Cache Hit
	}

	if imageURL == "" {
		return nil, fmt.Errorf("no image url for %s", safeID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", DefaultUserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bad status: %s", resp.Status)
	}

	srcImg, err := imaging.Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	// Resize with high-quality Lanczos filter
	resized := imaging.Resize(srcImg, c.size, c.size, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imaging.PNG); err != nil {
		return nil, fmt.Errorf("failed to encode resized image: %w", err)
	}

	icon := buf.Bytes()
	c.mu.Lock()
	c.icons[safeID] = icon
	c.mu.Unlock()

	return icon, nil
}

// Get returns a cached icon without touching the network
func (c *IconCache) Get(id string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	icon, ok := c.icons[sanitizeID(id)]
	return icon, ok
}

// Len returns the number of cached icons
func (c *IconCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.icons)
}

func sanitizeID(id string) string {
	res := make([]rune, 0, len(id))
	for _, r := range strings.ToLower(id) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			res = append(res, r)
		}
	}
	return string(res)
}
