// Package words suggests a random word to continue the story with.
package words

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/shouni/go-http-kit/pkg/httpkit"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	DefaultTimeout = 5 * time.Second
	DefaultRate    = time.Second
)

// Fallback is used whenever the word service cannot answer.
var Fallback = []string{
	"dragon", "castle", "forest", "moon", "river", "wizard", "treasure",
	"storm", "owl", "lantern", "bridge", "mirror", "giant", "island",
	"candle", "shadow", "garden", "key", "ship", "star", "wolf", "crown",
}

// Fetcher performs a GET and returns the body of a successful response.
type Fetcher interface {
	FetchBytes(ctx context.Context, url string) ([]byte, error)
}

type Config struct {
	URL     string
	Timeout time.Duration
	// Rate is the minimum spacing between requests to the service.
	Rate time.Duration
}

type Picker struct {
	fetcher Fetcher
	url     string
	timeout time.Duration
	limiter *rate.Limiter
	log     *logrus.Entry

	mu  sync.Mutex
	rnd *rand.Rand
}

func New(cfg Config) *Picker {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return NewWithFetcher(cfg, httpkit.New(timeout))
}

func NewWithFetcher(cfg Config, f Fetcher) *Picker {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Rate <= 0 {
		cfg.Rate = DefaultRate
	}
	return &Picker{
		fetcher: f,
		url:     strings.TrimRight(cfg.URL, "/"),
		timeout: cfg.Timeout,
		limiter: rate.NewLimiter(rate.Every(cfg.Rate), 1),
		log:     logrus.WithField("component", "words"),
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Pick returns a word from the service, or one from Fallback when the
// service times out, fails, answers with something unexpected or is being
// asked too often. fallback reports which of the two happened.
func (p *Picker) Pick(ctx context.Context) (word string, fallback bool) {
	if p.url == "" || !p.limiter.Allow() {
		return p.fallback(), true
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	word, err := p.fetch(ctx)
	if err != nil {
		p.log.WithError(err).Warn("Word service unavailable, using fallback list")
		return p.fallback(), true
	}
	return word, false
}

func (p *Picker) fetch(ctx context.Context) (string, error) {
	target := p.url + "/word?" + url.Values{"number": {"1"}}.Encode()

	type result struct {
		body []byte
		err  error
	}
	// The fetcher may not honour ctx, so the deadline is enforced here.
	resc := make(chan result, 1)
	go func() {
		body, err := p.fetcher.FetchBytes(ctx, target)
		resc <- result{body, err}
	}()

	var res result
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("word service: %w", ctx.Err())
	case res = <-resc:
	}
	if res.err != nil {
		return "", fmt.Errorf("failed to fetch word: %w", res.err)
	}

	var words []string
	if err := json.Unmarshal(res.body, &words); err != nil {
		return "", fmt.Errorf("failed to parse word list: %w", err)
	}
	if len(words) == 0 {
		return "", errors.New("word service returned no words")
	}
	word := strings.TrimSpace(words[0])
	if word == "" {
		return "", errors.New("word service returned an empty word")
	}
	return word, nil
}

func (p *Picker) fallback() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Fallback[p.rnd.Intn(len(Fallback))]
}

// isFallback reports whether word is on the curated list.
func isFallback(word string) bool {
	for _, w := range Fallback {
		if w == word {
			return true
		}
	}
	return false
}
