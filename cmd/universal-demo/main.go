// Command universal-demo serves a page rendered through a server pass and a
// follow-up endpoint that replays the client pass from the stored payload.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/a-h/templ"

	universal "github.com/goliatone/go-universal"
	"github.com/goliatone/go-universal/internal/config"
	"github.com/goliatone/go-universal/pkg/transport"
	"github.com/goliatone/go-universal/ssr"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "universal-demo: %v\n", err)
		os.Exit(1)
	}
	logger := newLogger(cfg.LogLevel)

	store := transport.NewMemoryStore()
	driver := ssr.NewDriver(
		ssr.WithLogger(logger),
		ssr.WithMaxPrepasses(cfg.MaxPrepasses),
		ssr.WithFetchLimit(cfg.FetchLimit),
		ssr.WithStore(store, cfg.PayloadTTL),
	)
	app := &demo{cfg: cfg, logger: logger, driver: driver, link: newDemoLink(logger)}

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.PayloadTTL > 0 {
		go sweep(ctx, store, cfg.PayloadTTL)
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.logger.Info("listening", "addr", cfg.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func sweep(ctx context.Context, store *transport.MemoryStore, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			store.Sweep()
		}
	}
}

type demo struct {
	cfg    config.Config
	logger hclogLogger
	driver *ssr.Driver
	link   universal.Link
}

func (d *demo) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /", d.serveServer)
	mux.HandleFunc("GET /client/{pass}", d.serveClient)
	return mux
}

func newDemoLink(logger universal.Logger) universal.Link {
	return universal.NewRuleLink(
		universal.WithRule("Viewer", `{"id": id, "name": "Guest " + id}`),
		universal.WithRule("Posts", `map(1..count, {"title": "Post #" + string(#)})`),
		universal.WithRuleLogger(logger),
	)
}

// provider builds the per-request provider. Each request gets its own so
// caches never leak between users.
func (d *demo) provider() *universal.Provider {
	return universal.NewProvider(func() (universal.ClientOptions, error) {
		options := universal.ClientOptions{
			Link:               d.link,
			SSRForceFetchDelay: universal.Duration(d.cfg.SSRForceFetchDelay),
			Name:               "universal-demo",
		}
		if d.cfg.DevTools {
			options.ConnectToDevTools = universal.Bool(true)
		}
		return options, nil
	}, universal.WithLogger(d.logger))
}

func (d *demo) page(viewerID string) templ.Component {
	return d.provider().Wrap(templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if err := viewerCard(viewerID).Render(ctx, w); err != nil {
			return err
		}
		return postList(3).Render(ctx, w)
	}))
}

func (d *demo) serveServer(w http.ResponseWriter, r *http.Request) {
	viewerID := r.URL.Query().Get("viewer")
	if viewerID == "" {
		viewerID = "1"
	}
	page, err := d.driver.RenderServer(r.Context(), d.page(viewerID))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeDocument(w, page, fmt.Sprintf(`<a href="/client/%s?viewer=%s">replay client pass</a>`, page.PassID, templ.EscapeString(viewerID)))
}

func (d *demo) serveClient(w http.ResponseWriter, r *http.Request) {
	viewerID := r.URL.Query().Get("viewer")
	if viewerID == "" {
		viewerID = "1"
	}
	page, err := d.driver.RenderClientFromStore(r.Context(), r.PathValue("pass"), d.page(viewerID))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeDocument(w, page, "")
}

func writeDocument(w http.ResponseWriter, page ssr.Page, footer string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, "<!doctype html><html><body data-pass=%q>", page.PassID)
	_, _ = w.Write(page.HTML)
	fmt.Fprintf(w, "%s</body></html>", footer)
}
