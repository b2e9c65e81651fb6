package drive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	googleoauth "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"

	"github.com/entro314-labs/drivepurge/internal/logging"
	"github.com/entro314-labs/drivepurge/internal/provider"
)

// Scopes requested for interactive sign-in. Trashing a file the app did not
// create needs the full drive scope; it also covers listing.
var Scopes = []string{
	"https://www.googleapis.com/auth/drive",
}

// RevokeURL is Google's token revocation endpoint.
const RevokeURL = "https://oauth2.googleapis.com/revoke"

// DefaultAuthTimeout bounds how long sign-in waits for the browser redirect.
const DefaultAuthTimeout = 5 * time.Minute

// Prompt is the page the user must open to approve a sign-in.
type Prompt struct {
	URL    string
	Expiry time.Time
}

// AuthOptions configures a LoopbackAuthorizer.
type AuthOptions struct {
	ClientSecret string
	// Endpoint defaults to Google's OAuth2 endpoint.
	Endpoint  oauth2.Endpoint
	RevokeURL string
	// ListenAddr is where the redirect listener binds, 127.0.0.1:0 by default.
	ListenAddr string
	Timeout    time.Duration
	// HTTPClient is used for the token and revoke endpoints.
	HTTPClient *http.Client
	// Notify is called once the consent URL is known, before waiting starts.
	Notify func(Prompt)
	Logger *zap.Logger
}

// LoopbackAuthorizer runs the installed-app authorization code flow with
// PKCE. Google redirects the browser to a listener on the loopback interface,
// and the code it carries is exchanged for an access token.
type LoopbackAuthorizer struct {
	config     *oauth2.Config
	revokeURL  string
	listenAddr string
	timeout    time.Duration
	client     *http.Client
	notify     func(Prompt)
	log        *zap.Logger
}

var _ provider.Authorizer = (*LoopbackAuthorizer)(nil)

func NewLoopbackAuthorizer(clientID string, opts AuthOptions) *LoopbackAuthorizer {
	endpoint := opts.Endpoint
	if endpoint.TokenURL == "" {
		endpoint = google.Endpoint
	}
	revokeURL := opts.RevokeURL
	if revokeURL == "" {
		revokeURL = RevokeURL
	}
	listenAddr := opts.ListenAddr
	if listenAddr == "" {
		listenAddr = "127.0.0.1:0"
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultAuthTimeout
	}
	client := opts.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	return &LoopbackAuthorizer{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: opts.ClientSecret,
			Endpoint:     endpoint,
			Scopes:       Scopes,
		},
		revokeURL:  revokeURL,
		listenAddr: listenAddr,
		timeout:    timeout,
		client:     client,
		notify:     opts.Notify,
		log:        logging.OrNop(opts.Logger).Named("auth"),
	}
}

type redirectResult struct {
	code string
	err  error
}

func (a *LoopbackAuthorizer) RequestToken(ctx context.Context) (string, error) {
	ln, err := net.Listen("tcp", a.listenAddr)
	if err != nil {
		return "", fmt.Errorf("%w: start redirect listener: %w", provider.ErrAuthFailed, err)
	}

	cfg := *a.config
	cfg.RedirectURL = "http://" + ln.Addr().String() + "/"
	state := oauth2.GenerateVerifier()
	verifier := oauth2.GenerateVerifier()

	results := make(chan redirectResult, 1)
	srv := &http.Server{Handler: redirectHandler(state, results), ReadHeaderTimeout: 5 * time.Second}
	go func() { _ = srv.Serve(ln) }()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	waitCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	expiry, _ := waitCtx.Deadline()

	authURL := cfg.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))
	a.log.Info("waiting for browser sign-in", zap.String("redirect_uri", cfg.RedirectURL))
	if a.notify != nil {
		a.notify(Prompt{URL: authURL, Expiry: expiry})
	}

	var res redirectResult
	select {
	case res = <-results:
	case <-waitCtx.Done():
		return "", fmt.Errorf("%w: no response from the browser: %w", provider.ErrAuthFailed, waitCtx.Err())
	}
	if res.err != nil {
		return "", fmt.Errorf("%w: %w", provider.ErrAuthFailed, res.err)
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.client)
	tok, err := cfg.Exchange(ctx, res.code, oauth2.VerifierOption(verifier))
	if err != nil {
		return "", fmt.Errorf("%w: exchange code: %w", provider.ErrAuthFailed, err)
	}
	return tok.AccessToken, nil
}

// redirectHandler reports the first redirect that carries a code or an error.
// Anything else, such as a favicon request, gets a 404.
func redirectHandler(state string, results chan<- redirectResult) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		var res redirectResult
		switch {
		case q.Get("error") != "":
			res.err = fmt.Errorf("sign-in denied: %s", q.Get("error"))
		case q.Get("code") == "":
			http.NotFound(w, r)
			return
		case q.Get("state") != state:
			res.err = errors.New("sign-in state mismatch")
		default:
			res.code = q.Get("code")
		}

		select {
		case results <- res:
		default:
		}
		if res.err != nil {
			http.Error(w, "Sign-in failed. You can close this window.", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, "Signed in to drivepurge. You can close this window.")
	})
}

func (a *LoopbackAuthorizer) Revoke(ctx context.Context, token string) error {
	form := url.Values{"token": {token}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.revokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: revoke request: %w", provider.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("revoke failed (%d): %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return nil
}

// IdentityClient resolves a credential through the OAuth2 userinfo API.
type IdentityClient struct {
	endpoint string
	base     *http.Client
}

var _ provider.IdentityResolver = (*IdentityClient)(nil)

func NewIdentityClient(opts Options) *IdentityClient {
	return &IdentityClient{endpoint: opts.Endpoint, base: opts.HTTPClient}
}

func (c *IdentityClient) Resolve(ctx context.Context, token string) (provider.Identity, error) {
	opts := []option.ClientOption{option.WithHTTPClient(bearerClient(ctx, c.base, token))}
	if c.endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.endpoint))
	}
	srv, err := googleoauth.NewService(ctx, opts...)
	if err != nil {
		return provider.Identity{}, fmt.Errorf("create userinfo service: %w", err)
	}
	info, err := srv.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return provider.Identity{}, classify(err)
	}
	return provider.Identity{Name: info.Name, Picture: info.Picture}, nil
}
