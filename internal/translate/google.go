// Package translate moves free text between the user's language and English
// through Google Translate v2. Every failure degrades to the original text.
package translate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ggonzalez94/lingo-wallet/internal/cache"
	"github.com/ggonzalez94/lingo-wallet/internal/httpx"
	"github.com/ggonzalez94/lingo-wallet/internal/metrics"
)

const (
	DefaultBaseURL = "https://translation.googleapis.com/language/translate/v2"
	DefaultTTL     = 7 * 24 * time.Hour
	cacheNamespace = "translate"

	noKeyNote = "Add GOOGLE_TRANSLATE_API_KEY to enable translation"
)

type Result struct {
	TranslatedText   string `json:"translatedText"`
	OriginalLanguage string `json:"originalLanguage,omitempty"`
	TargetLanguage   string `json:"targetLanguage"`
	Translated       bool   `json:"translated"`
	Cached           bool   `json:"cached,omitempty"`
	Note             string `json:"note,omitempty"`
	Error            string `json:"error,omitempty"`
}

type Translator interface {
	Translate(ctx context.Context, text, target string) (Result, error)
}

type Cache interface {
	Get(ctx context.Context, key string) (cache.Entry, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

type Client struct {
	http    *httpx.Client
	baseURL string
	apiKey  string
	cache   Cache
	ttl     time.Duration
	log     logrus.FieldLogger
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if v := strings.TrimRight(strings.TrimSpace(baseURL), "/"); v != "" {
			c.baseURL = v
		}
	}
}

// WithCache stores successful translations for ttl. A nil cache disables caching.
func WithCache(store Cache, ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = store
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

func New(httpClient *httpx.Client, apiKey string, opts ...Option) *Client {
	c := &Client{
		http:    httpClient,
		baseURL: DefaultBaseURL,
		apiKey:  strings.TrimSpace(apiKey),
		ttl:     DefaultTTL,
		log:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type translateRequest struct {
	Q      string `json:"q"`
	Target string `json:"target"`
	Format string `json:"format"`
}

type translateResponse struct {
	Data struct {
		Translations []struct {
			TranslatedText         string `json:"translatedText"`
			DetectedSourceLanguage string `json:"detectedSourceLanguage"`
		} `json:"translations"`
	} `json:"data"`
}

// Translate falls back to the original text on provider failures and reports
// the reason in Result.Error. It only returns an error for unencodable input.
func (c *Client) Translate(ctx context.Context, text, target string) (Result, error) {
	target = strings.ToLower(strings.TrimSpace(target))
	if target == "" {
		target = "en"
	}
	original := Result{TranslatedText: text, TargetLanguage: target}
	if strings.TrimSpace(text) == "" {
		return original, nil
	}
	if c.apiKey == "" {
		metrics.Translations.WithLabelValues("disabled").Inc()
		original.Note = noKeyNote
		return original, nil
	}

	key := cache.Key(cacheNamespace, target, text)
	if c.cache != nil {
		if entry, err := c.cache.Get(ctx, key); err != nil {
			c.log.WithError(err).Warn("translation cache read failed")
		} else if entry.Hit {
			var cached Result
			if err := json.Unmarshal(entry.Value, &cached); err == nil {
				metrics.Translations.WithLabelValues("cache").Inc()
				cached.Cached = true
				return cached, nil
			}
		}
	}

	body, err := json.Marshal(translateRequest{Q: text, Target: target, Format: "text"})
	if err != nil {
		return original, err
	}
	endpoint := c.baseURL + "?key=" + url.QueryEscape(c.apiKey)
	var resp translateResponse
	if _, err := httpx.DoBodyJSON(ctx, c.http, http.MethodPost, endpoint, body, nil, &resp); err != nil {
		metrics.Translations.WithLabelValues("fallback").Inc()
		c.log.WithError(err).WithField("target", target).Warn("translation failed, using original text")
		original.Error = httpx.ProviderMessage(err)
		if original.Error == "" {
			original.Error = err.Error()
		}
		return original, nil
	}
	if len(resp.Data.Translations) == 0 {
		metrics.Translations.WithLabelValues("fallback").Inc()
		original.Error = "translation response was empty"
		return original, nil
	}

	first := resp.Data.Translations[0]
	out := Result{
		TranslatedText:   first.TranslatedText,
		OriginalLanguage: first.DetectedSourceLanguage,
		TargetLanguage:   target,
		Translated:       true,
	}
	metrics.Translations.WithLabelValues("provider").Inc()
	if c.cache != nil {
		if buf, err := json.Marshal(out); err == nil {
			if err := c.cache.Set(ctx, key, buf, c.ttl); err != nil {
				c.log.WithError(err).Warn("translation cache write failed")
			}
		}
	}
	return out, nil
}

// Passthrough returns text unchanged. It stands in when no translator is configured.
type Passthrough struct{}

func (Passthrough) Translate(_ context.Context, text, target string) (Result, error) {
	if target == "" {
		target = "en"
	}
	return Result{TranslatedText: text, TargetLanguage: target}, nil
}
