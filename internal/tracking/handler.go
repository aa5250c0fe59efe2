// Package tracking serves the recipient-facing endpoints: the open pixel,
// click redirects and unsubscribe. Handlers never fail toward the
// recipient; resolution problems are logged and the pixel, fallback page
// or confirmation still goes out.
package tracking

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/arkmail/dispatch/internal/domain"
	"github.com/arkmail/dispatch/internal/pkg/logger"
	"github.com/arkmail/dispatch/internal/pkg/metrics"
)

// 1x1 transparent GIF
var pixelGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00,
	0x80, 0x00, 0x00, 0xff, 0xff, 0xff, 0x00, 0x00, 0x00, 0x2c,
	0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00, 0x02,
	0x02, 0x44, 0x01, 0x00, 0x3b,
}

// Ingestor resolves tracking artifacts and records the hits.
type Ingestor interface {
	HandleOpen(ctx context.Context, token string, meta domain.RequestMeta) error
	HandleClick(ctx context.Context, linkID string, meta domain.RequestMeta) (string, error)
}

// Unsubscriber suppresses the recipient behind a tracking token.
type Unsubscriber interface {
	Unsubscribe(ctx context.Context, trackingToken string, source domain.SuppressionSource) error
}

// Handler owns the recipient-facing routes.
type Handler struct {
	ingestor    Ingestor
	unsub       Unsubscriber
	met         *metrics.Metrics
	fallbackURL string
}

// NewHandler wires the tracking routes. fallbackURL is where broken or
// expired click links land; empty means plain 404.
func NewHandler(ingestor Ingestor, unsub Unsubscriber, met *metrics.Metrics, fallbackURL string) *Handler {
	return &Handler{ingestor: ingestor, unsub: unsub, met: met, fallbackURL: fallbackURL}
}

// Routes returns the router served under /track.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/pixel/{token}", h.HandleOpen)
	r.Get("/click/{linkID}", h.HandleClick)
	r.Get("/unsubscribe/{token}", h.HandleUnsubscribe)
	r.Post("/unsubscribe/{token}", h.HandleUnsubscribe)
	return r
}

// HandleOpen records an open and serves the pixel. The pixel goes out on
// every path, including unknown tokens, so mail clients never see an error.
func (h *Handler) HandleOpen(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	meta := requestMeta(r)

	if err := h.ingestor.HandleOpen(r.Context(), token, meta); err != nil {
		logger.Debug("open not recorded", "token", token, "error", err.Error())
	}
	if h.met != nil {
		h.met.TrackingHits.WithLabelValues("open").Inc()
	}

	servePixel(w)
}

// HandleClick records the click and redirects to the original URL. Unknown
// or expired links land on the fallback URL.
func (h *Handler) HandleClick(w http.ResponseWriter, r *http.Request) {
	linkID := chi.URLParam(r, "linkID")
	meta := requestMeta(r)

	if h.met != nil {
		h.met.TrackingHits.WithLabelValues("click").Inc()
	}

	dest, err := h.ingestor.HandleClick(r.Context(), linkID, meta)
	if err != nil {
		logger.Debug("click not resolved", "link_id", linkID, "error", err.Error())
		if h.fallbackURL == "" {
			http.NotFound(w, r)
			return
		}
		http.Redirect(w, r, h.fallbackURL, http.StatusFound)
		return
	}

	http.Redirect(w, r, dest, http.StatusFound)
}

// HandleUnsubscribe suppresses the recipient. POST is the RFC 8058
// one-click path mail clients use; GET is the footer link. Both confirm
// regardless of outcome so the page never reveals token validity.
func (h *Handler) HandleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	source := domain.SourceTrackingLink
	if r.Method == http.MethodPost {
		source = domain.SourceOneClick
	}

	if err := h.unsub.Unsubscribe(r.Context(), token, source); err != nil {
		logger.Warn("unsubscribe not applied", "token", token, "error", err.Error())
	}
	if h.met != nil {
		h.met.TrackingHits.WithLabelValues("unsubscribe").Inc()
	}

	if r.Method == http.MethodPost {
		w.WriteHeader(http.StatusOK)
		return
	}

	w.Header().Set("Content-Type", "text/html")
	w.Write([]byte(`<!DOCTYPE html><html><body style="font-family:Arial;text-align:center;padding:50px;">
		<h1>You have been unsubscribed</h1>
		<p>You will no longer receive emails from us.</p>
	</body></html>`))
}

func servePixel(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.Write(pixelGIF)
}

// requestMeta extracts the caller telemetry. RemoteAddr is already the
// client IP when the server runs chi's RealIP middleware; the port is
// stripped when present.
func requestMeta(r *http.Request) domain.RequestMeta {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	return domain.RequestMeta{
		IP:        strings.TrimSpace(ip),
		UserAgent: r.UserAgent(),
		Referer:   r.Referer(),
	}
}
