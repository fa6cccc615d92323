package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"kuji/auth"
	"kuji/controlroom"
	"kuji/events"
	"kuji/overlay"
	"kuji/service"
)

// Dependencies are everything the HTTP layer calls into
type Dependencies struct {
	Boards      service.BoardService
	Query       service.QueryService
	Ledger      service.LedgerService
	Overlay     service.OverlayStateService
	Bus         *events.Bus
	Issuer      *auth.Issuer
	Limiter     controlroom.DrawLimiter
	Cards       *overlay.CardRenderer
	RecentLimit int
	RevealDelay time.Duration
	CORSOrigins []string
}

// Server is the gin HTTP and websocket front end
type Server struct {
	deps   Dependencies
	engine *gin.Engine
}

// New builds the engine and registers every route
func New(deps Dependencies) *Server {
	if deps.RecentLimit <= 0 {
		deps.RecentLimit = 20
	}

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(cors.New(corsConfig(deps.CORSOrigins)))

	s := &Server{deps: deps, engine: r}
	s.routes()
	return s
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	return cfg
}

func (s *Server) routes() {
	r := s.engine

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now()})
	})

	// Overlay routes are anonymous but token gated
	o := r.Group("/o/:boardId")
	{
		o.GET("", s.overlayFrame)
		o.GET("/ws", s.overlayWebSocket)
		o.GET("/result.png", s.overlayCard)
	}

	authorized := r.Group("/")
	authorized.Use(JWTAuthMiddleware(s.deps.Issuer))
	{
		authorized.POST("/boards", s.createBoard)
		authorized.GET("/boards", s.listBoards)
		authorized.GET("/boards/:id", s.getBoard)
		authorized.PUT("/boards/:id", s.updateBoard)
		authorized.DELETE("/boards/:id", s.deleteBoard)
		authorized.PUT("/boards/:id/prizes", s.replacePrizes)
		authorized.POST("/boards/:id/status", s.transitionStatus)
		authorized.POST("/boards/:id/overlay-token", s.rotateOverlayToken)

		authorized.GET("/boards/:id/draws", s.listDraws)
		authorized.POST("/boards/:id/draws", s.commitDraw)
		authorized.POST("/boards/:id/overlay/modal", s.setModal)
		authorized.POST("/boards/:id/overlay/hide-result", s.hideResult)
		authorized.GET("/boards/:id/control/ws", s.controlWebSocket)
	}
}

// Handler exposes the engine, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).Info("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
