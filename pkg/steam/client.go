package steam

import (
	"context"
	"net/http"
	"strings"
	"time"

	"giveaway-fulfillment/pkg/config"
	"giveaway-fulfillment/pkg/errutil"

	"github.com/go-resty/resty/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var Module = fx.Module("steam",
	fx.Provide(NewFromConfig),
)

// Options configures a Client. Session cookies come from an existing web login;
// the client never performs the login handshake itself.
type Options struct {
	SteamID           string
	APIKey            string
	SessionID         string
	LoginSecure       string
	IdentitySecret    string
	DeviceID          string
	CommunityURL      string
	APIURL            string
	Language          string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
}

// Client talks to the Steam community site and the Steam Web API on behalf of the
// custodial account. Every outbound request waits on a shared rate limiter.
type Client struct {
	community *resty.Client
	api       *resty.Client
	limiter   *rate.Limiter

	communityURL   string
	steamID        string
	apiKey         string
	sessionID      string
	identitySecret string
	deviceID       string
	language       string

	now func() time.Time
}

func NewFromConfig(cfg *config.Config) *Client {
	s := cfg.Steam
	return New(Options{
		SteamID:           s.SteamID,
		APIKey:            s.APIKey,
		SessionID:         s.SessionID,
		LoginSecure:       s.LoginSecure,
		IdentitySecret:    s.IdentitySecret,
		DeviceID:          s.DeviceID,
		CommunityURL:      s.CommunityURL,
		APIURL:            s.APIURL,
		Language:          s.Language,
		Timeout:           s.Timeout,
		RequestsPerSecond: s.RequestsPerSecond,
		Burst:             s.Burst,
	})
}

func New(opts Options) *Client {
	if opts.CommunityURL == "" {
		opts.CommunityURL = "https://steamcommunity.com"
	}
	if opts.APIURL == "" {
		opts.APIURL = "https://api.steampowered.com"
	}
	if opts.Language == "" {
		opts.Language = "english"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	if opts.DeviceID == "" && opts.SteamID != "" {
		opts.DeviceID = DeviceID(opts.SteamID)
	}

	c := &Client{
		limiter:        rate.NewLimiter(limit, opts.Burst),
		communityURL:   strings.TrimRight(opts.CommunityURL, "/"),
		steamID:        opts.SteamID,
		apiKey:         opts.APIKey,
		sessionID:      opts.SessionID,
		identitySecret: opts.IdentitySecret,
		deviceID:       opts.DeviceID,
		language:       opts.Language,
		now:            time.Now,
	}

	c.community = resty.New().
		SetBaseURL(c.communityURL).
		SetTimeout(opts.Timeout).
		SetHeader("User-Agent", userAgent).
		OnBeforeRequest(c.wait)
	if opts.SessionID != "" {
		c.community.SetCookie(&http.Cookie{Name: "sessionid", Value: opts.SessionID})
	}
	if opts.LoginSecure != "" {
		c.community.SetCookie(&http.Cookie{Name: "steamLoginSecure", Value: opts.LoginSecure})
	}

	c.api = resty.New().
		SetBaseURL(strings.TrimRight(opts.APIURL, "/")).
		SetTimeout(opts.Timeout).
		SetHeader("User-Agent", userAgent).
		OnBeforeRequest(c.wait)

	return c
}

const userAgent = "Mozilla/5.0 (compatible; giveaway-fulfillment)"

func (c *Client) wait(_ *resty.Client, r *resty.Request) error {
	ctx := r.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return errutil.TooManyRequest("Steam rate limit wait aborted", err)
	}
	return nil
}

// SteamID is the custodial account's 64-bit id.
func (c *Client) SteamID() string {
	return c.steamID
}

// CanConfirm reports whether an identity secret is configured.
func (c *Client) CanConfirm() bool {
	return c.identitySecret != ""
}

func httpError(op string, resp *resty.Response, err error) error {
	if err != nil {
		return errutil.BadGateway(op+" request failed", err)
	}
	switch resp.StatusCode() {
	case http.StatusTooManyRequests:
		return errutil.TooManyRequest(op+" rate limited by Steam", nil)
	case http.StatusUnauthorized, http.StatusForbidden:
		return errutil.Unauthorized(op+" rejected by Steam (session expired or private)", nil)
	}
	return errutil.BadGateway(op+" failed (HTTP "+resp.Status()+")", nil)
}

func logRequest(op string, fields ...zap.Field) {
	zap.L().Debug("[Steam] "+op, fields...)
}
