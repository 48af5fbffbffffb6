package keys

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-marketplace-hooks/core"
)

const publicKeyPath = "/v2/webhook-public-keys/"

const defaultAPIClientTimeout = 30 * time.Second
const defaultResponseBodyLimit int64 = 64 << 10

type publicKeyResponse struct {
	Serial string `json:"serial"`
	Key    string `json:"key"`
}

// APIPublicKeyProvider fetches keys from the key issuance API. Every call is a
// network round trip; wrap it in a CachingPublicKeyProvider.
type APIPublicKeyProvider struct {
	BaseURL              string
	Client               HTTPDoer
	Timeout              time.Duration
	MaxResponseBodyBytes int64
	Logger               core.Logger
}

type APIOption func(*APIPublicKeyProvider)

func WithBaseURL(baseURL string) APIOption {
	return func(p *APIPublicKeyProvider) {
		if trimmed := strings.TrimSpace(baseURL); trimmed != "" {
			p.BaseURL = trimmed
		}
	}
}

func WithHTTPClient(client HTTPDoer) APIOption {
	return func(p *APIPublicKeyProvider) {
		if client != nil {
			p.Client = client
		}
	}
}

func WithTimeout(timeout time.Duration) APIOption {
	return func(p *APIPublicKeyProvider) {
		if timeout > 0 {
			p.Timeout = timeout
		}
	}
}

func WithAPILogger(logger core.Logger) APIOption {
	return func(p *APIPublicKeyProvider) {
		if logger != nil {
			p.Logger = logger
		}
	}
}

func NewAPIPublicKeyProvider(opts ...APIOption) *APIPublicKeyProvider {
	provider := &APIPublicKeyProvider{
		BaseURL:              core.DefaultKeyServiceBaseURL,
		Client:               &http.Client{Timeout: defaultAPIClientTimeout},
		Timeout:              core.DefaultKeyServiceTimeout,
		MaxResponseBodyBytes: defaultResponseBodyLimit,
		Logger:               glog.Nop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(provider)
		}
	}
	return provider
}

func (p *APIPublicKeyProvider) GetPublicKey(ctx context.Context, serial string) (string, error) {
	if p == nil || p.Client == nil {
		return "", core.NewFailedToFetchPublicKeyError(fmt.Errorf("keys: api provider is not configured"), serial, 0)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	endpoint, err := p.endpoint(serial)
	if err != nil {
		return "", core.NewFailedToFetchPublicKeyError(err, serial, 0)
	}

	requestCtx := ctx
	cancel := func() {}
	if p.Timeout > 0 {
		requestCtx, cancel = context.WithTimeout(ctx, p.Timeout)
	}
	defer cancel()

	req, err := http.NewRequestWithContext(requestCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", core.NewFailedToFetchPublicKeyError(err, serial, 0)
	}
	req.Header.Set("Accept", "application/json")

	res, err := p.Client.Do(req)
	if err != nil {
		p.logFailure(ctx, serial, 0, err)
		return "", core.NewFailedToFetchPublicKeyError(err, serial, 0)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, p.bodyLimit()))
		p.logFailure(ctx, serial, res.StatusCode, nil)
		return "", core.NewFailedToFetchPublicKeyError(nil, serial, res.StatusCode)
	}

	var payload publicKeyResponse
	if err := json.NewDecoder(io.LimitReader(res.Body, p.bodyLimit())).Decode(&payload); err != nil {
		p.logFailure(ctx, serial, res.StatusCode, err)
		return "", core.NewFailedToFetchPublicKeyError(err, serial, res.StatusCode)
	}
	key := strings.TrimSpace(payload.Key)
	if key == "" {
		err := fmt.Errorf("keys: response for serial %s has no key", serial)
		p.logFailure(ctx, serial, res.StatusCode, err)
		return "", core.NewFailedToFetchPublicKeyError(err, serial, res.StatusCode)
	}
	return key, nil
}

func (p *APIPublicKeyProvider) endpoint(serial string) (string, error) {
	base := strings.TrimRight(strings.TrimSpace(p.BaseURL), "/")
	if base == "" {
		base = core.DefaultKeyServiceBaseURL
	}
	parsed, err := url.Parse(base)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("keys: invalid key service url %q", p.BaseURL)
	}
	return base + publicKeyPath + url.PathEscape(serial), nil
}

func (p *APIPublicKeyProvider) bodyLimit() int64 {
	if p.MaxResponseBodyBytes > 0 {
		return p.MaxResponseBodyBytes
	}
	return defaultResponseBodyLimit
}

func (p *APIPublicKeyProvider) logFailure(ctx context.Context, serial string, status int, err error) {
	fields := map[string]any{"serial": serial, "status": status}
	if err != nil {
		fields["error"] = err.Error()
	}
	core.LogAt(ctx, p.Logger, core.LevelWarn, "public key fetch failed", fields)
}

var _ PublicKeyProvider = (*APIPublicKeyProvider)(nil)
