package audio

import (
	"context"
	"crypto/md5"
	"fmt"
	"io"
	"time"

	"onceupon/internal/domain/voice"

	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

// CachedSynthesizer keeps recently synthesized clips in memory so replays
// of the same segment do not hit the engine again.
type CachedSynthesizer struct {
	next  Synthesizer
	cache *cache.Cache
}

func NewCachedSynthesizer(next Synthesizer, ttl time.Duration) *CachedSynthesizer {
	return &CachedSynthesizer{
		next:  next,
		cache: cache.New(ttl, 2*ttl),
	}
}

func (c *CachedSynthesizer) Name() string {
	return c.next.Name()
}

func (c *CachedSynthesizer) Synthesize(ctx context.Context, text string, v voice.Voice) (Clip, error) {
	key := cacheKey(c.next.Name(), v, text)
	if x, found := c.cache.Get(key); found {
		logrus.WithField("engine", c.next.Name()).Debug("Using cached narration")
		return x.(Clip), nil
	}

	clip, err := c.next.Synthesize(ctx, text, v)
	if err != nil {
		return Clip{}, err
	}
	c.cache.Set(key, clip, cache.DefaultExpiration)
	return clip, nil
}

// Close releases the wrapped engine when it holds resources.
func (c *CachedSynthesizer) Close() error {
	if closer, ok := c.next.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// Len reports the number of cached clips.
func (c *CachedSynthesizer) Len() int {
	return c.cache.ItemCount()
}

func cacheKey(engine string, v voice.Voice, text string) string {
	return fmt.Sprintf("%s:%s:%s", engine, v, md5Sum(text))
}

func md5Sum(s string) string {
	h := md5.New()
	io.WriteString(h, s)
	return fmt.Sprintf("%x", h.Sum(nil))
}
