// internal/app/features/oauthsync/adapter.go

// Package oauthsync runs the Google sign-in flow for the device and
// reconciles the resulting identity with the membership backend.
//
// The flow is the native loopback variant: a short-lived listener on
// 127.0.0.1 receives the provider callback while the system browser
// shows the consent screen.
package oauthsync

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/memberlink/memberlink/internal/app/api"
	"github.com/memberlink/memberlink/internal/app/system/timeouts"
	"github.com/memberlink/memberlink/internal/domain/models"
)

var (
	// ErrDenied is returned when the user cancels the consent screen.
	ErrDenied = errors.New("oauthsync: consent denied")
	// ErrStateMismatch is returned when the callback state does not
	// match the one issued for this attempt.
	ErrStateMismatch = errors.New("oauthsync: state mismatch")
)

// Backend is the slice of the API client the adapter needs.
type Backend interface {
	ExchangeExternal(ctx context.Context, id api.ExternalIdentity) (api.ExchangeResult, error)
}

// SessionStore persists the reconciled session.
type SessionStore interface {
	SaveSession(ctx context.Context, sess models.Session) error
}

// Outcome is the result of a completed sync.
type Outcome struct {
	IsNewPrincipal bool
	Assertion      models.OAuthAssertion
	Session        models.Session
}

// Adapter drives the Google OAuth flow and the backend exchange.
type Adapter struct {
	API   Backend
	Store SessionStore
	Log   *zap.Logger

	// OAuth configuration
	ClientID     string
	ClientSecret string

	// OpenBrowser shows url in the system browser. Tests substitute a
	// function that performs the callback directly.
	OpenBrowser func(url string) error
}

// NewAdapter creates a Google sync adapter.
func NewAdapter(backend Backend, store SessionStore, clientID, clientSecret string, openBrowser func(string) error, logger *zap.Logger) *Adapter {
	return &Adapter{
		API:          backend,
		Store:        store,
		Log:          logger,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		OpenBrowser:  openBrowser,
	}
}

// IsConfigured returns true if Google OAuth is configured.
func (a *Adapter) IsConfigured() bool {
	return a.ClientID != "" && a.ClientSecret != ""
}

// oauth2Config returns the Google OAuth2 configuration for redirectURL.
func (a *Adapter) oauth2Config(redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     a.ClientID,
		ClientSecret: a.ClientSecret,
		RedirectURL:  redirectURL,
		Scopes: []string{
			"openid",
			"https://www.googleapis.com/auth/userinfo.email",
			"https://www.googleapis.com/auth/userinfo.profile",
		},
		Endpoint: google.Endpoint,
	}
}

/*─────────────────────────────────────────────────────────────────────────────*
| Sync                                                                         |
| Runs consent, exchanges the identity with the backend, and persists the      |
| session. The token and profile are written in a single store operation so a  |
| crash mid-sync never leaves a token without its profile.                     |
*─────────────────────────────────────────────────────────────────────────────*/

// Sync runs the full flow. It blocks until the callback arrives or ctx
// is done. Nothing is persisted unless the backend exchange succeeds.
func (a *Adapter) Sync(ctx context.Context) (Outcome, error) {
	if !a.IsConfigured() {
		return Outcome{}, errors.New("oauthsync: google oauth not configured")
	}

	state, err := generateState()
	if err != nil {
		return Outcome{}, fmt.Errorf("oauthsync: generate state: %w", err)
	}

	code, cfg, err := a.obtainCode(ctx, state)
	if err != nil {
		return Outcome{}, err
	}

	token, err := cfg.Exchange(ctx, code)
	if err != nil {
		return Outcome{}, fmt.Errorf("oauthsync: exchange code: %w", err)
	}

	info, err := fetchGoogleUserInfo(ctx, token)
	if err != nil {
		return Outcome{}, fmt.Errorf("oauthsync: fetch user info: %w", err)
	}

	a.Log.Debug("google identity fetched",
		zap.String("google_id", info.ID),
		zap.String("email", info.Email))

	exchCtx, cancel := context.WithTimeout(ctx, timeouts.Short())
	defer cancel()

	result, err := a.API.ExchangeExternal(exchCtx, api.ExternalIdentity{
		Email:      info.Email,
		Name:       info.Name,
		Photo:      info.Picture,
		ExternalID: info.ID,
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("oauthsync: backend exchange: %w", err)
	}

	sess := models.Session{Token: result.Token, Profile: result.Profile}

	saveCtx, cancelSave := context.WithTimeout(ctx, timeouts.Short())
	defer cancelSave()
	if err := a.Store.SaveSession(saveCtx, sess); err != nil {
		return Outcome{}, fmt.Errorf("oauthsync: persist session: %w", err)
	}

	a.Log.Info("google sign-in reconciled",
		zap.String("email", info.Email),
		zap.Bool("new_principal", result.IsNewPrincipal))

	return Outcome{
		IsNewPrincipal: result.IsNewPrincipal,
		Assertion: models.OAuthAssertion{
			Name:     info.Name,
			Email:    info.Email,
			PhotoURL: info.Picture,
		},
		Session: sess,
	}, nil
}

/*─────────────────────────────────────────────────────────────────────────────*
| Loopback listener                                                            |
*─────────────────────────────────────────────────────────────────────────────*/

type callbackResult struct {
	code string
	err  error
}

// obtainCode starts the loopback listener, opens the consent screen,
// and waits for the provider callback.
func (a *Adapter) obtainCode(ctx context.Context, state string) (string, *oauth2.Config, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", nil, fmt.Errorf("oauthsync: loopback listen: %w", err)
	}
	defer ln.Close()

	redirectURL := fmt.Sprintf("http://%s/callback", ln.Addr().String())
	cfg := a.oauth2Config(redirectURL)

	results := make(chan callbackResult, 1)

	r := chi.NewRouter()
	r.Get("/callback", func(w http.ResponseWriter, req *http.Request) {
		res := parseCallback(req, state)
		if res.err != nil {
			http.Error(w, "sign-in failed, return to the app", http.StatusBadRequest)
		} else {
			fmt.Fprint(w, "Signed in. You can close this window.")
		}
		select {
		case results <- res:
		default:
		}
	})

	srv := &http.Server{Handler: r}
	go srv.Serve(ln)
	defer func() {
		shutCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()

	authURL := cfg.AuthCodeURL(state, oauth2.AccessTypeOffline)
	a.Log.Debug("initiating google oauth flow", zap.String("redirect_url", redirectURL))

	if err := a.OpenBrowser(authURL); err != nil {
		return "", nil, fmt.Errorf("oauthsync: open browser: %w", err)
	}

	select {
	case res := <-results:
		if res.err != nil {
			return "", nil, res.err
		}
		return res.code, cfg, nil
	case <-ctx.Done():
		return "", nil, ctx.Err()
	}
}

func parseCallback(req *http.Request, wantState string) callbackResult {
	q := req.URL.Query()
	if errParam := q.Get("error"); errParam != "" {
		if errParam == "access_denied" {
			return callbackResult{err: ErrDenied}
		}
		return callbackResult{err: fmt.Errorf("oauthsync: provider error: %s", errParam)}
	}
	if q.Get("state") != wantState {
		return callbackResult{err: ErrStateMismatch}
	}
	code := q.Get("code")
	if code == "" {
		return callbackResult{err: errors.New("oauthsync: callback missing code")}
	}
	return callbackResult{code: code}
}

/*─────────────────────────────────────────────────────────────────────────────*
| Helpers                                                                      |
*─────────────────────────────────────────────────────────────────────────────*/

// googleUserInfo represents user info returned from Google.
type googleUserInfo struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// fetchGoogleUserInfo retrieves user information from Google's userinfo endpoint.
func fetchGoogleUserInfo(ctx context.Context, token *oauth2.Token) (*googleUserInfo, error) {
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(token))

	resp, err := client.Get("https://www.googleapis.com/oauth2/v2/userinfo")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var info googleUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to decode user info: %w", err)
	}

	return &info, nil
}

// generateState creates a cryptographically secure random state string.
func generateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
