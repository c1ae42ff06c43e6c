// internal/app/bootstrap/app.go
package bootstrap

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/memberlink/memberlink/internal/app/api"
	"github.com/memberlink/memberlink/internal/app/features/address"
	"github.com/memberlink/memberlink/internal/app/features/gate"
	"github.com/memberlink/memberlink/internal/app/features/oauthsync"
	"github.com/memberlink/memberlink/internal/app/features/verify"
	"github.com/memberlink/memberlink/internal/app/features/wizard"
	"github.com/memberlink/memberlink/internal/app/host"
	"github.com/memberlink/memberlink/internal/app/realtime"
	"github.com/memberlink/memberlink/internal/app/store/credstore"
	"github.com/memberlink/memberlink/internal/app/system/geo"
	"github.com/memberlink/memberlink/internal/app/system/media"
	"github.com/memberlink/memberlink/internal/app/system/navigation"
)

// App is the assembled engine: every feature wired to its dependencies
// and ready to drive.
type App struct {
	Cfg *AppConfig
	Log *zap.Logger

	Store    *credstore.Store
	API      *api.Client
	Realtime *realtime.Manager

	Gate    *gate.Gate
	Wizard  *wizard.Wizard
	OAuth   *oauthsync.Adapter
	Poller  *verify.Poller
	Address *address.Unit

	Nav navigation.Navigator
}

// Build assembles the engine from configuration. The caller owns the
// returned App and must call Shutdown.
func Build(cfg *AppConfig, logger *zap.Logger) (*App, error) {
	store, err := credstore.Open(cfg.CredentialPath, cfg.CredentialSecret)
	if err != nil {
		return nil, fmt.Errorf("open credential store: %w", err)
	}

	client := api.NewClient(cfg.APIBaseURL, cfg.HTTPTimeout, logger.Named("api"))

	nav := &host.LogNavigator{Log: logger.Named("nav")}
	notifier := &host.LogNotifier{Log: logger.Named("notify")}
	splash := &host.LogSplash{Log: logger.Named("splash")}

	rt := realtime.NewManager(cfg.SocketURL, notifier, logger.Named("realtime"))

	g := gate.New(store, nav, rt, splash, logger.Named("gate"))
	g.SplashCeiling = cfg.SplashCeiling

	verifier := &wizard.BackendVerifier{
		API:      client,
		TestCode: cfg.OTPTestCode,
		Log:      logger.Named("otp"),
	}
	uploader := media.NewHTTPUploader(cfg.MediaURL, cfg.HTTPTimeout, logger.Named("media"))
	wiz := wizard.New(client, store, verifier, uploader, logger.Named("wizard"))

	oauth := oauthsync.NewAdapter(
		client, store,
		cfg.GoogleClientID, cfg.GoogleClientSecret,
		host.OpenBrowser,
		logger.Named("oauth"))

	poller := verify.NewPoller(client, store, logger.Named("verify"))
	poller.PollInterval = cfg.PollInterval
	poller.DisplayDelay = cfg.DisplayDelay
	poller.Cooldown = rate.NewLimiter(rate.Every(cfg.ResendCooldown), 1)
	poller.OnVerified = func() {
		if err := wiz.Verified(); err != nil {
			logger.Warn("verified outside verification step", zap.Error(err))
			return
		}
		nav.Replace(navigation.RouteHome, nil)
	}
	poller.OnRestart = func() {
		wiz.Reset()
		nav.Replace(navigation.RouteSignIn, nil)
	}

	geocoder := geo.NewNominatimGeocoder(cfg.GeocodeURL, cfg.HTTPTimeout, logger.Named("geo"))
	location := &host.StaticLocation{}
	addr := address.NewUnit(location, geocoder, logger.Named("address"))

	return &App{
		Cfg:      cfg,
		Log:      logger,
		Store:    store,
		API:      client,
		Realtime: rt,
		Gate:     g,
		Wizard:   wiz,
		OAuth:    oauth,
		Poller:   poller,
		Address:  addr,
		Nav:      nav,
	}, nil
}

// Run performs the launch sequence and blocks until ctx ends.
func (a *App) Run(ctx context.Context) error {
	a.Gate.Run(ctx, navigation.RouteSignIn)
	<-ctx.Done()
	return ctx.Err()
}

// Shutdown stops background work in dependency order.
func (a *App) Shutdown() {
	a.Poller.Stop()
	a.Gate.Close()
	a.Log.Info("engine stopped")
}
