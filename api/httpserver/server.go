package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/gnuser/red-envelope-server/api/view"
	"github.com/gnuser/red-envelope-server/domain/num"
	"github.com/gnuser/red-envelope-server/domain/orderbook"
	"github.com/gnuser/red-envelope-server/infra/logging"
	"github.com/gnuser/red-envelope-server/infra/metrics"
	"github.com/gnuser/red-envelope-server/service"
)

const (
	defaultLimit = 20
	depthLimit   = 50
)

// ErrorResponse is the body of every non 2xx reply.
type ErrorResponse struct {
	Code    service.Code `json:"code"`
	Message string       `json:"message"`
}

// Server serves read only queries over REST.
type Server struct {
	log    *logging.Logger
	svc    *service.OrderService
	router *mux.Router
	http   *http.Server
}

func NewServer(log *logging.Logger, svc *service.OrderService, origins []string) *Server {
	s := &Server{
		log:    log.Named("http"),
		svc:    svc,
		router: mux.NewRouter(),
	}
	s.setupRoutes()

	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})
	s.http = &http.Server{
		Handler:           c.Handler(s.router),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.Use(s.timed)

	// Market endpoints
	api.HandleFunc("/markets", s.handleMarketList).Methods("GET")
	api.HandleFunc("/markets/summary", s.handleMarketSummary).Methods("GET")
	api.HandleFunc("/markets/depth", s.handleMarketDepth).Methods("GET")
	api.HandleFunc("/markets/{market}/last", s.handleLastPrice).Methods("GET")
	api.HandleFunc("/markets/{market}/depth", s.handleDepth).Methods("GET")
	api.HandleFunc("/markets/{market}/book", s.handleBook).Methods("GET")
	api.HandleFunc("/markets/{market}/orders/{id:[0-9]+}", s.handleOrder).Methods("GET")
	api.HandleFunc("/markets/{market}/users/{user:[0-9]+}/orders", s.handleUserOrders).Methods("GET")

	// Envelope endpoints
	api.HandleFunc("/envelopes/{id:[0-9]+}", s.handleEnvelope).Methods("GET")
	api.HandleFunc("/users/{user:[0-9]+}/envelopes", s.handleUserEnvelopes).Methods("GET")

	s.router.Handle("/metrics", metrics.Handler())
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler exposes the routed handler with CORS applied.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Start serves on addr until Shutdown.
func (s *Server) Start(addr string) error {
	s.http.Addr = addr
	s.log.Info("http server starting", zap.String("addr", addr))
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) timed(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				name = tpl
			}
		}
		defer metrics.StartAPIRequestAndTime("http", name)()
		next.ServeHTTP(w, r)
	})
}

// ==============================
// Market handlers
// ==============================

func (s *Server) handleMarketList(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, s.svc.MarketList())
}

func (s *Server) handleMarketSummary(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.MarketSummary(r.URL.Query()["market"]...)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	out := make([]view.Status, len(st))
	for i, v := range st {
		out[i] = view.FromStatus(v)
	}
	respondJSON(w, out)
}

func (s *Server) handleMarketDepth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, s.svc.MarketDepth())
}

func (s *Server) handleLastPrice(w http.ResponseWriter, r *http.Request) {
	market := mux.Vars(r)["market"]
	price, err := s.svc.LastPrice(market)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, map[string]num.Decimal{"price": price})
}

func (s *Server) handleDepth(w http.ResponseWriter, r *http.Request) {
	market := mux.Vars(r)["market"]
	limit, ok := queryInt(w, r, "limit", depthLimit)
	if !ok {
		return
	}

	var (
		depth orderbook.Depth
		err   error
	)
	if interval := r.URL.Query().Get("interval"); interval != "" && interval != "0" {
		depth, err = s.svc.MergedDepth(market, limit, interval)
	} else {
		depth, err = s.svc.Depth(market, limit)
	}
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, view.FromDepth(depth))
}

func (s *Server) handleBook(w http.ResponseWriter, r *http.Request) {
	market := mux.Vars(r)["market"]
	side, ok := queryInt(w, r, "side", 0)
	if !ok {
		return
	}
	offset, limit, ok := page(w, r)
	if !ok {
		return
	}
	orders, total, err := s.svc.Book(market, orderbook.Side(side), offset, limit)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, view.OrderPage{Offset: offset, Limit: limit, Total: total, Records: view.FromOrders(orders)})
}

func (s *Server) handleOrder(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, service.CodeInvalidArgument, "invalid order id")
		return
	}
	o, err := s.svc.Order(vars["market"], id)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, view.FromOrder(o))
}

func (s *Server) handleUserOrders(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	user, err := strconv.ParseUint(vars["user"], 10, 32)
	if err != nil {
		respondError(w, http.StatusBadRequest, service.CodeInvalidArgument, "invalid user id")
		return
	}
	offset, limit, ok := page(w, r)
	if !ok {
		return
	}
	orders, total, err := s.svc.UserOrders(vars["market"], uint32(user), offset, limit)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, view.OrderPage{Offset: offset, Limit: limit, Total: total, Records: view.FromOrders(orders)})
}

// ==============================
// Envelope handlers
// ==============================

func (s *Server) handleEnvelope(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, service.CodeInvalidArgument, "invalid envelope id")
		return
	}
	e, err := s.svc.Envelope(id)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, view.FromEnvelope(e))
}

func (s *Server) handleUserEnvelopes(w http.ResponseWriter, r *http.Request) {
	user, err := strconv.ParseUint(mux.Vars(r)["user"], 10, 32)
	if err != nil {
		respondError(w, http.StatusBadRequest, service.CodeInvalidArgument, "invalid user id")
		return
	}
	respondJSON(w, view.FromEnvelopes(s.svc.UserEnvelopes(uint32(user))))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]any{"status": "ok", "seq": s.svc.LastSeq()})
}

// ==============================
// Helpers
// ==============================

func queryInt(w http.ResponseWriter, r *http.Request, key string, def int) (int, bool) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		respondError(w, http.StatusBadRequest, service.CodeInvalidArgument, "invalid "+key)
		return 0, false
	}
	return n, true
}

func page(w http.ResponseWriter, r *http.Request) (offset, limit int, ok bool) {
	if offset, ok = queryInt(w, r, "offset", 0); !ok {
		return 0, 0, false
	}
	if limit, ok = queryInt(w, r, "limit", defaultLimit); !ok {
		return 0, 0, false
	}
	return offset, limit, true
}

func (s *Server) respondServiceError(w http.ResponseWriter, err error) {
	code := service.CodeOf(err)
	st := http.StatusBadRequest
	switch code {
	case service.CodeMarketNotFound, service.CodeOrderNotFound, service.CodeEnvelopeNotFound:
		st = http.StatusNotFound
	case service.CodeInternal:
		st = http.StatusInternalServerError
		s.log.Error("query failed", zap.Error(err))
	}
	respondError(w, st, code, err.Error())
}

func respondJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, code service.Code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Code: code, Message: message})
}
