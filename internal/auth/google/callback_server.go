package google

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rentaldesk/rentaldesk/internal/config"
)

// CallbackTimeout is how long the loopback server waits for the consent redirect.
const CallbackTimeout = 5 * time.Minute

// LoopbackFlow is a consent flow completed against a temporary local server,
// for hosts where the dashboard is not reachable from a browser.
type LoopbackFlow struct {
	AuthURL string
	Port    int

	results chan error
	cleanup func()
}

// Wait blocks until the callback was handled, the timeout fired or ctx ended.
func (f *LoopbackFlow) Wait(ctx context.Context) error {
	defer f.cleanup()
	select {
	case err := <-f.results:
		return err
	case <-time.After(CallbackTimeout):
		return fmt.Errorf("OAuth callback timeout after %v", CallbackTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the server without waiting.
func (f *LoopbackFlow) Close() { f.cleanup() }

// StartLoopbackFlow listens on 127.0.0.1:port (0 picks a free port) and
// returns the consent URL to open.
func StartLoopbackFlow(cfg config.GmailConfig, saver TokenSaver, port int) (*LoopbackFlow, error) {
	if !IsConfigured(cfg) {
		return nil, errors.New("gmail client_id and client_secret are required")
	}

	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return nil, fmt.Errorf("failed to start callback server: %w", err)
	}
	actualPort := listener.Addr().(*net.TCPAddr).Port
	log.Printf("[OAuth] Callback server listening on port %d", actualPort)

	redirectURL := fmt.Sprintf("http://127.0.0.1:%d%s", actualPort, CallbackPath)
	oauthCfg := GetOAuthConfig(cfg, redirectURL)
	states := NewStates()
	state := states.Issue()

	results := make(chan error, 1)
	var handled sync.Once

	mux := http.NewServeMux()
	mux.HandleFunc(CallbackPath, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("code") == "" || q.Get("error") != "" {
			http.Error(w, "Authorization failed", http.StatusBadRequest)
			handled.Do(func() { results <- fmt.Errorf("authorization failed: %s", q.Get("error")) })
			return
		}
		if !states.Consume(q.Get("state")) {
			http.Error(w, "Invalid state token", http.StatusBadRequest)
			return
		}

		_, err := Exchange(r.Context(), oauthCfg, q.Get("code"), saver, time.Now())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			handled.Do(func() { results <- err })
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<!DOCTYPE html>
<html lang="de">
<head><meta charset="UTF-8"><title>Gmail verbunden</title></head>
<body style="font-family: sans-serif; text-align: center; margin-top: 60px;">
	<h1>✅ Gmail verbunden</h1>
	<p>Sie können dieses Fenster schließen.</p>
</body>
</html>`)
		handled.Do(func() { results <- nil })
	})

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Printf("[OAuth] Callback server error: %v", err)
		}
	}()

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				log.Printf("[OAuth] Error shutting down callback server: %v", err)
			}
			log.Printf("[OAuth] Callback server stopped")
		})
	}

	return &LoopbackFlow{
		AuthURL: AuthURL(oauthCfg, state),
		Port:    actualPort,
		results: results,
		cleanup: cleanup,
	}, nil
}
