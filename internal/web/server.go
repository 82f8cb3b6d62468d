// Package web serves the status page and the control endpoints.
package web

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/net/netutil"

	"github.com/sweeney/plant-waterer/internal/logic"
	"github.com/sweeney/plant-waterer/internal/state"
)

// Response messages.
const (
	MsgPumpStarted   = "Pump started!"
	MsgPumpStopped   = "Pump stopped!"
	MsgPumpFault     = "Pump fault: the pump was switched off and automatic watering is halted."
	MsgSettingsSaved = "Settings saved."
	MsgNoSettings    = "Enter a threshold or an interval."
	MsgBadForm       = "Could not read the form, please retry."
	MsgNotAccepting  = "Not accepting network credentials right now."
	MsgInternalError = "Internal error, please retry."
)

// PumpControl handles manual pump commands.
type PumpControl interface {
	Manual(on bool) error
}

// Provisioner receives network credentials from the configuration form.
type Provisioner interface {
	AcceptingCredentials() bool
	Submit(ssid, password string) error
}

// Indicator shows a status colour.
type Indicator interface {
	Show(c logic.Color)
}

// Server serves the status page over HTTP, one connection at a time.
type Server struct {
	httpServer *http.Server
	store      *state.Store
	pump       PumpControl
	prov       Provisioner
	ind        Indicator
	log        *zap.Logger
}

// New creates a Server. prov and ind may be nil.
func New(addr string, store *state.Store, pump PumpControl, prov Provisioner, ind Indicator, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{store: store, pump: pump, prov: prov, ind: ind, log: log}

	r := mux.NewRouter()
	r.HandleFunc("/start", s.handleStart)
	r.HandleFunc("/stop", s.handleStop)
	r.HandleFunc("/index.json", s.handleJSON)
	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/", s.handleForm).Methods(http.MethodPost)
	r.NotFoundHandler = http.HandlerFunc(s.handleIndex)
	r.MethodNotAllowedHandler = http.HandlerFunc(s.handleIndex)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.recoverer(r),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
	s.httpServer.SetKeepAlivesEnabled(false)
	return s
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln, serving one at a time.
func (s *Server) Serve(ln net.Listener) error {
	err := s.httpServer.Serve(netutil.LimitListener(ln, 1))
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Handler returns the routed handler, for embedding in another server.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// recoverer keeps a panicking handler from taking down the accept loop.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				s.log.Error("handler panic", zap.String("path", r.URL.Path), zap.Any("panic", v))
				w.Header().Set("Content-Type", "text/html; charset=utf-8")
				w.WriteHeader(http.StatusOK)
				fmt.Fprint(w, MsgInternalError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.render(w, page{})
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write(state.FormatJSON(s.store.Snapshot()))
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	s.manual(w, true, MsgPumpStarted)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.manual(w, false, MsgPumpStopped)
}

func (s *Server) manual(w http.ResponseWriter, on bool, msg string) {
	if err := s.pump.Manual(on); err != nil {
		s.log.Error("manual pump command failed", zap.Bool("on", on), zap.Error(err))
		s.render(w, page{Message: MsgPumpFault, Error: true})
		return
	}
	s.log.Info("manual pump command", zap.Bool("on", on))
	s.render(w, page{Message: msg})
}

func (s *Server) handleForm(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.reject(w, MsgBadForm, err)
		return
	}
	if r.PostForm.Has("ssid") {
		s.submitCredentials(w, r)
		return
	}
	s.updateSettings(w, r)
}

func (s *Server) submitCredentials(w http.ResponseWriter, r *http.Request) {
	if s.prov == nil || !s.prov.AcceptingCredentials() {
		s.reject(w, MsgNotAccepting, nil)
		return
	}
	ssid := r.PostForm.Get("ssid")
	err := s.prov.Submit(ssid, r.PostForm.Get("password"))
	var ve *logic.ValidationError
	switch {
	case errors.As(err, &ve):
		s.reject(w, ve.Error(), nil)
	case err != nil:
		s.reject(w, MsgNotAccepting, err)
	default:
		s.accept()
		s.render(w, page{Message: fmt.Sprintf("Credentials received. Connecting to %s; reconnect to that network in a few seconds.", ssid)})
	}
}

func (s *Server) updateSettings(w http.ResponseWriter, r *http.Request) {
	rawThreshold := r.PostForm.Get("input_value")
	rawInterval := r.PostForm.Get("input_value2")
	if rawThreshold == "" && rawInterval == "" {
		s.reject(w, MsgNoSettings, nil)
		return
	}

	var threshold, interval *int
	if rawThreshold != "" {
		n, err := logic.ParseThreshold(rawThreshold)
		if err != nil {
			s.reject(w, err.Error(), nil)
			return
		}
		threshold = &n
	}
	if rawInterval != "" {
		n, err := logic.ParseInterval(rawInterval)
		if err != nil {
			s.reject(w, err.Error(), nil)
			return
		}
		interval = &n
	}
	if err := s.store.UpdateSettings(threshold, interval); err != nil {
		s.reject(w, err.Error(), nil)
		return
	}

	snap := s.store.Snapshot()
	s.store.AppendLog(fmt.Sprintf("settings: threshold %d%%, interval %d min", snap.Threshold, snap.IntervalMinutes))
	s.log.Info("settings updated", zap.Int("threshold", snap.Threshold), zap.Int("interval_minutes", snap.IntervalMinutes))
	s.accept()
	s.render(w, page{Message: MsgSettingsSaved})
}

func (s *Server) accept() {
	if s.ind != nil {
		s.ind.Show(logic.ColorGreen)
	}
}

// reject signals rejected input on the indicator and renders msg.
func (s *Server) reject(w http.ResponseWriter, msg string, err error) {
	if err != nil {
		s.log.Warn("request rejected", zap.String("message", msg), zap.Error(err))
	}
	if s.ind != nil {
		s.ind.Show(logic.ColorBlue)
	}
	s.render(w, page{Message: msg, Error: true})
}

func (s *Server) render(w http.ResponseWriter, p page) {
	p.Snapshot = s.store.Snapshot()
	p.Accepting = s.prov != nil && s.prov.AcceptingCredentials()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if err := renderHTML(w, p); err != nil {
		s.log.Error("render status page", zap.Error(err))
	}
}
