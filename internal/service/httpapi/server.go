// Package httpapi отдаёт REST API дашборда лаборатории поверх хранилища заказов.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/crowngate/internal/domain"
	"github.com/vladislavdragonenkov/crowngate/internal/metrics"
	"github.com/vladislavdragonenkov/crowngate/internal/service/idempotency"
	"github.com/vladislavdragonenkov/crowngate/internal/store"
)

// OrderStore — операции хранилища, которые использует API.
type OrderStore interface {
	Mode() store.Mode
	Snapshot() store.Dataset
	GetOrders(ctx context.Context) []domain.Order
	GetUsers(ctx context.Context) []domain.User
	GetProducts(ctx context.Context) []domain.Product
	AddOrder(ctx context.Context, in domain.NewOrder) (domain.Order, *store.Confirmation, error)
	UpdateOrder(ctx context.Context, id string, patch domain.OrderPatch) (domain.Order, *store.Confirmation, error)
	DeleteOrder(ctx context.Context, id string) (*store.Confirmation, error)
	AddProduct(ctx context.Context, name string) (domain.Product, *store.Confirmation, error)
	DeleteProduct(ctx context.Context, id string) (*store.Confirmation, error)
	AddUser(ctx context.Context, user domain.User) error
	Subscribe(l store.Listener) func()
}

var _ OrderStore = (*store.Store)(nil)

// Dependencies — всё, что нужно роутеру. Timeline, Idempotency и Metrics необязательны.
type Dependencies struct {
	Store       OrderStore
	Timeline    domain.TimelineRepository
	Idempotency *idempotency.Service
	Metrics     *metrics.HTTPMetrics
	Logger      *log.Entry
	// KeepAlive — период комментариев-пингов в потоке /api/events.
	KeepAlive time.Duration
}

const (
	defaultKeepAlive   = 15 * time.Second
	maxRequestBodySize = 1 << 20
)

// NewRouter собирает gin-роутер со всеми маршрутами API.
func NewRouter(deps Dependencies) *gin.Engine {
	return newRouter(deps, nil)
}

// newRouter: закрытие stop завершает потоки /api/events.
func newRouter(deps Dependencies, stop <-chan struct{}) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = log.WithField("component", "http-api")
	}
	keepAlive := deps.KeepAlive
	if keepAlive <= 0 {
		keepAlive = defaultKeepAlive
	}

	r := gin.New()
	if err := r.SetTrustedProxies(nil); err != nil {
		logger.WithError(err).Warn("failed to reset trusted proxies")
	}
	r.Use(gin.Recovery(), requestLogger(logger), instrument(deps.Metrics))

	h := &handler{
		store:     deps.Store,
		timeline:  deps.Timeline,
		idem:      deps.Idempotency,
		logger:    logger,
		keepAlive: keepAlive,
		stop:      stop,
	}

	api := r.Group("/api")
	api.GET("/orders", h.listOrders)
	api.POST("/orders", h.createOrder)
	api.PATCH("/orders/:id", h.updateOrder)
	api.DELETE("/orders/:id", h.deleteOrder)
	api.GET("/orders/:id/timeline", h.orderTimeline)

	api.GET("/users", h.listUsers)
	api.POST("/users", h.createUser)

	api.GET("/products", h.listProducts)
	api.POST("/products", h.createProduct)
	api.DELETE("/products/:id", h.deleteProduct)

	api.GET("/stats", h.stats)
	api.GET("/events", h.events)

	return r
}

// Server — HTTP-сервер API с корректной остановкой.
type Server struct {
	httpServer *http.Server
	logger     *log.Entry
}

// NewServer создаёт сервер на addr.
func NewServer(addr string, deps Dependencies) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = log.WithField("component", "http-api")
	}
	deps.Logger = logger
	gin.SetMode(gin.ReleaseMode)

	// Shutdown не прерывает активные запросы, поэтому SSE-потоки закрываются отдельно.
	stop := make(chan struct{})
	var once sync.Once
	srv := &http.Server{
		Addr:              addr,
		Handler:           newRouter(deps, stop),
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv.RegisterOnShutdown(func() { once.Do(func() { close(stop) }) })

	return &Server{httpServer: srv, logger: logger}
}

// Handler возвращает корневой обработчик сервера.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start блокируется до остановки сервера. Штатная остановка возвращает nil.
func (s *Server) Start() error {
	s.logger.WithField("address", s.httpServer.Addr).Info("starting http api server")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown останавливает приём запросов и ждёт активные обработчики.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http api server")
	return s.httpServer.Shutdown(ctx)
}
