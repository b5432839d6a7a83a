// Jarguess Game
//
// Everyone looks at the same jar and submits a guess for how many items are
// inside. One shared jar holds the latest guess of every browser session.
//
// Features:
// - Visitors identified by an 8-char id in a signed session cookie
// - Resubmitting replaces the visitor's earlier guess
// - Guesses clamped to [0, --max-guess]
// - Host role unlocked with --host-password or --host-password-hash
// - Host shows/hides the histogram, reveals the true count, and resets the jar
// - Histogram PNG with mean, median, and (once revealed) true count lines
// - Websocket feed so every open page refreshes when the jar changes
// - In-browser QR button to share the page, backed by go-qrcode

package main

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"
	"github.com/skip2/go-qrcode"
)

const maxRequestBody = 1 << 10

// VisitorStateMessage is what /jar/state returns to one visitor.
type VisitorStateMessage struct {
	Type        string   `json:"type"` // "visitor_state"
	SessionID   string   `json:"session_id"`
	IsHost      bool     `json:"is_host"`
	MyGuess     *int     `json:"my_guess,omitempty"`
	MaxGuess    int      `json:"max_guess"`
	Guesses     int      `json:"guesses"`
	ShowPlot    bool     `json:"show_plot"`
	RevealCount bool     `json:"reveal_count"`
	Summary     *Summary `json:"summary,omitempty"`
}

// NoticeMessage is a user-facing outcome: "success", "warning", or "error".
type NoticeMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type guessRequest struct {
	Guess *int `json:"guess"`
}

type hostRequest struct {
	Password string `json:"password"`
}

type plotRequest struct {
	Show *bool `json:"show"`
}

type revealRequest struct {
	Reveal *bool `json:"reveal"`
}

type jarGame struct {
	cfg      *Config
	jar      *Jar
	visitors *Visitors
	gate     HostGate
	hub      *Hub
	log      zerolog.Logger

	page  *template.Template
	image []byte
}

func newJarGame(ctx context.Context, cfg *Config, log zerolog.Logger) (*jarGame, error) {
	page, err := template.New("index").Parse(string(indexHTML))
	if err != nil {
		return nil, err
	}

	var image []byte
	if cfg.image != "" {
		image, err = os.ReadFile(cfg.image)
		if err != nil {
			return nil, fmt.Errorf("reading jar image: %w", err)
		}
	}

	jar := newJar(cfg.trueCount, cfg.maxGuess)
	hub := newHub(ctx, jar.State, log)
	jar.OnChange(hub.publish)

	return &jarGame{
		cfg:      cfg,
		jar:      jar,
		visitors: newVisitors(cfg),
		gate:     newHostGate(cfg),
		hub:      hub,
		log:      log,
		page:     page,
		image:    image,
	}, nil
}

func writeJSON(cfg *Config, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	securityHeaders(cfg, w)
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(v)
}

func writeNotice(cfg *Config, w http.ResponseWriter, status int, kind, message string) {
	writeJSON(cfg, w, status, NoticeMessage{Type: kind, Message: message})
}

// writeError maps the game's sentinel errors onto notices.
func writeError(cfg *Config, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNoGuesses):
		writeNotice(cfg, w, http.StatusConflict, "warning", "No guesses have been submitted yet!")
	case errors.Is(err, ErrNotHost):
		writeNotice(cfg, w, http.StatusForbidden, "error", "Only the host can do that.")
	case errors.Is(err, ErrBadPassword):
		writeNotice(cfg, w, http.StatusUnauthorized, "error", "Incorrect host password.")
	case errors.Is(err, ErrHostDisabled):
		writeNotice(cfg, w, http.StatusForbidden, "error", "Host login is not enabled on this server.")
	default:
		writeNotice(cfg, w, http.StatusInternalServerError, "error", "An error has occurred. Please try again.")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	return dec.Decode(dst)
}

// visitor resolves the caller's session, answering with a 500 on failure.
func (g *jarGame) visitor(w http.ResponseWriter, r *http.Request) (*Visitor, bool) {
	v, err := g.visitors.Get(w, r)
	if err != nil {
		g.log.Error().Err(err).Str("remote", realIP(r)).Msg("SERVE: Session cookie could not be saved")
		writeError(g.cfg, w, err)
		return nil, false
	}
	return v, true
}

func (g *jarGame) visitorState(v *Visitor) VisitorStateMessage {
	view := g.jar.View(v.ID)

	return VisitorStateMessage{
		Type:        "visitor_state",
		SessionID:   v.ID,
		IsHost:      v.Host,
		MaxGuess:    g.cfg.maxGuess,
		Guesses:     view.State.Guesses,
		ShowPlot:    view.State.ShowPlot,
		RevealCount: view.State.RevealCount,
		MyGuess:     view.Guess,
		Summary:     view.Summary,
	}
}

func (g *jarGame) serveState() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		v, ok := g.visitor(w, r)
		if !ok {
			return
		}

		writeJSON(g.cfg, w, http.StatusOK, g.visitorState(v))
	}
}

func (g *jarGame) serveGuess() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		v, ok := g.visitor(w, r)
		if !ok {
			return
		}

		var req guessRequest
		if err := decodeBody(w, r, &req); err != nil || req.Guess == nil {
			writeNotice(g.cfg, w, http.StatusBadRequest, "error", "Please enter a whole number.")
			return
		}

		stored := g.jar.Submit(v.ID, *req.Guess)

		g.log.Info().Str("session", v.ID).Int("guess", stored).Str("remote", realIP(r)).Msg("GAMES: Guess submitted")

		writeNotice(g.cfg, w, http.StatusOK, "success", "Your guess of "+strconv.Itoa(stored)+" has been submitted!")
	}
}

func (g *jarGame) serveHostLogin() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		v, ok := g.visitor(w, r)
		if !ok {
			return
		}

		var req hostRequest
		if err := decodeBody(w, r, &req); err != nil {
			writeNotice(g.cfg, w, http.StatusBadRequest, "error", "Malformed login request.")
			return
		}

		if err := g.gate.Check(req.Password); err != nil {
			metricHostLogins.WithLabelValues("denied").Inc()
			g.log.Warn().Str("session", v.ID).Str("remote", realIP(r)).Msg("GAMES: Host login refused")
			writeError(g.cfg, w, err)
			return
		}

		if err := g.visitors.Elevate(w, r, v); err != nil {
			g.log.Error().Err(err).Str("session", v.ID).Msg("SERVE: Host session could not be saved")
			writeError(g.cfg, w, err)
			return
		}

		metricHostLogins.WithLabelValues("ok").Inc()
		g.log.Info().Str("session", v.ID).Str("remote", realIP(r)).Msg("GAMES: Host logged in")

		writeNotice(g.cfg, w, http.StatusOK, "success", "You are now the host.")
	}
}

func (g *jarGame) servePlot() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		v, ok := g.visitor(w, r)
		if !ok {
			return
		}

		var req plotRequest
		if err := decodeBody(w, r, &req); err != nil || req.Show == nil {
			writeNotice(g.cfg, w, http.StatusBadRequest, "error", "Malformed plot request.")
			return
		}

		if err := g.jar.SetShowPlot(v, *req.Show); err != nil {
			writeError(g.cfg, w, err)
			return
		}

		g.log.Info().Bool("show", *req.Show).Msg("GAMES: Plot visibility changed")

		if *req.Show {
			writeNotice(g.cfg, w, http.StatusOK, "success", "The plot is now visible.")
		} else {
			writeNotice(g.cfg, w, http.StatusOK, "success", "The plot is now hidden.")
		}
	}
}

func (g *jarGame) serveReveal() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		v, ok := g.visitor(w, r)
		if !ok {
			return
		}

		var req revealRequest
		if err := decodeBody(w, r, &req); err != nil || req.Reveal == nil {
			writeNotice(g.cfg, w, http.StatusBadRequest, "error", "Malformed reveal request.")
			return
		}

		if err := g.jar.SetRevealCount(v, *req.Reveal); err != nil {
			writeError(g.cfg, w, err)
			return
		}

		g.log.Info().Bool("reveal", *req.Reveal).Msg("GAMES: True count visibility changed")

		if *req.Reveal {
			writeNotice(g.cfg, w, http.StatusOK, "success", "The actual count is now revealed.")
		} else {
			writeNotice(g.cfg, w, http.StatusOK, "success", "The actual count is now hidden.")
		}
	}
}

func (g *jarGame) serveReset() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		v, ok := g.visitor(w, r)
		if !ok {
			return
		}

		if err := g.jar.Reset(v); err != nil {
			writeError(g.cfg, w, err)
			return
		}

		g.log.Info().Str("session", v.ID).Msg("GAMES: Jar reset")

		writeNotice(g.cfg, w, http.StatusOK, "success", "All guesses have been cleared.")
	}
}

func (g *jarGame) serveHistogram() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		startTime := time.Now()

		summary, ok := g.jar.Summary()
		if !ok {
			writeNotice(g.cfg, w, http.StatusConflict, "warning", "The plot is not visible yet.")
			return
		}

		var buf bytes.Buffer
		if err := renderHistogram(&buf, summary, g.cfg.bins); err != nil {
			g.log.Error().Err(err).Msg("SERVE: Histogram render failed")
			writeError(g.cfg, w, err)
			return
		}
		metricHistogramRender.Observe(float64(time.Since(startTime).Microseconds()) / 1000)

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
		securityHeaders(g.cfg, w)

		written, err := w.Write(buf.Bytes())
		if err != nil {
			g.log.Error().Err(err).Msg("SERVE: Histogram write failed")
			return
		}

		g.log.Info().Msgf("SERVE: Histogram (%s) to %s in %s",
			humanize.Bytes(uint64(written)),
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

func (g *jarGame) serveImage() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		if len(g.image) == 0 {
			http.NotFound(w, r)
			return
		}

		w.Header().Set("Content-Type", http.DetectContentType(g.image))
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		w.Header().Set("Content-Length", strconv.Itoa(len(g.image)))
		securityHeaders(g.cfg, w)

		_, _ = w.Write(g.image)
	}
}

// serveQR generates a PNG QR code for the jar page URL using go-qrcode.
func (g *jarGame) serveQR() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		// Respect TLS and X-Forwarded-Proto if present.
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}

		// We are at /.../jar/qr; strip the trailing "/qr" to get the page URL.
		url := scheme + "://" + r.Host + strings.TrimSuffix(r.URL.Path, "/qr")

		const qrSize = 320 // mobile-friendly size
		png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		securityHeaders(g.cfg, w)
		_, _ = w.Write(png)
	}
}

// ---- Static file paths ----

//go:embed jar/index.html
var indexHTML []byte

//go:embed jar/app.css
var jarCSS []byte

//go:embed jar/app.js
var jarJS []byte

type indexData struct {
	Base     string
	Caption  string
	MaxGuess int
	HasImage bool
}

func (g *jarGame) serveIndex() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		// Assign the session id before the page loads so the first API call
		// already carries it.
		if _, ok := g.visitor(w, r); !ok {
			return
		}

		var buf bytes.Buffer
		err := g.page.Execute(&buf, indexData{
			Base:     g.cfg.prefix,
			Caption:  g.cfg.caption,
			MaxGuess: g.cfg.maxGuess,
			HasImage: len(g.image) > 0,
		})
		if err != nil {
			g.log.Error().Err(err).Msg("SERVE: Index template failed")
			writeError(g.cfg, w, err)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		securityHeaders(g.cfg, w)

		_, _ = w.Write(buf.Bytes())
	}
}

func serveStatic(cfg *Config, contentType string, data []byte) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		securityHeaders(cfg, w)

		_, _ = w.Write(data)
	}
}

// registerJarGame sets up routes so that:
//   - $path              → HTML client
//   - $path/state        → JSON state for the calling visitor
//   - $path/guess        → submit or replace a guess
//   - $path/host         → host login
//   - $path/plot         → host: show or hide the histogram
//   - $path/reveal       → host: show or hide the true count
//   - $path/reset        → host: clear the jar
//   - $path/histogram.png → histogram image, once visible
//   - $path/image        → jar photo, when configured
//   - $path/qr           → PNG QR code for the page URL
//   - $path/ws           → websocket feed of jar state
func registerJarGame(ctx context.Context, cfg *Config, path string, mux *httprouter.Router, log zerolog.Logger) (*jarGame, error) {
	g, err := newJarGame(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	go g.hub.run()

	base := cfg.prefix + path

	mux.GET(base, g.serveIndex())
	mux.GET(base+"/state", g.serveState())
	mux.POST(base+"/guess", g.serveGuess())
	mux.POST(base+"/host", g.serveHostLogin())
	mux.POST(base+"/plot", g.servePlot())
	mux.POST(base+"/reveal", g.serveReveal())
	mux.POST(base+"/reset", g.serveReset())
	mux.GET(base+"/histogram.png", g.serveHistogram())
	mux.GET(base+"/image", g.serveImage())
	mux.GET(base+"/qr", g.serveQR())
	mux.GET(base+"/ws", serveWatch(g.hub))

	mux.GET(cfg.prefix+"/assets/jar/app.css", serveStatic(cfg, "text/css; charset=utf-8", jarCSS))
	mux.GET(cfg.prefix+"/assets/jar/app.js", serveStatic(cfg, "text/javascript; charset=utf-8", jarJS))

	return g, nil
}
