// internal/app/host/host.go

// Package host supplies the engine's device-side capabilities for the
// standalone binary: a logging navigator and notifier, a terminal
// splash, a browser opener, and a fixed location source. Embedded
// hosts replace these with real platform bindings.
package host

import (
	"context"
	"os/exec"
	"runtime"

	"go.uber.org/zap"

	"github.com/memberlink/memberlink/internal/app/system/geo"
	"github.com/memberlink/memberlink/internal/app/system/navigation"
	"github.com/memberlink/memberlink/internal/domain/models"
)

// LogNavigator records navigation calls to the process log.
type LogNavigator struct {
	Log *zap.Logger
}

func (n *LogNavigator) GoBack() {
	n.Log.Info("navigate back")
}

func (n *LogNavigator) Navigate(target navigation.Target, params navigation.Params) {
	n.Log.Info("navigate",
		zap.String("target", string(target)),
		zap.Any("params", params))
}

func (n *LogNavigator) Replace(target navigation.Target, params navigation.Params) {
	n.Log.Info("navigate replace",
		zap.String("target", string(target)),
		zap.Any("params", params))
}

// LogNotifier writes local notifications to the process log.
type LogNotifier struct {
	Log *zap.Logger
}

func (n *LogNotifier) Notify(title, message string) {
	n.Log.Info("local notification",
		zap.String("title", title),
		zap.String("message", message))
}

// LogSplash records the splash dismissal.
type LogSplash struct {
	Log *zap.Logger
}

func (s *LogSplash) Dismiss() {
	s.Log.Info("splash dismissed")
}

// OpenBrowser shows url in the system browser.
func OpenBrowser(url string) error {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", url).Start()
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	default:
		return exec.Command("xdg-open", url).Start()
	}
}

// StaticLocation is a location source with a fixed position. When
// Granted is false it refuses permission, which exercises the manual
// address path.
type StaticLocation struct {
	Granted bool
	Coords  models.Coordinates
}

func (l *StaticLocation) RequestPermission(ctx context.Context) error {
	if !l.Granted {
		return geo.ErrPermissionDenied
	}
	return nil
}

func (l *StaticLocation) Current(ctx context.Context) (models.Coordinates, error) {
	return l.Coords, nil
}
