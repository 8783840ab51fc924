package web

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/klog/v2"
	"plcgateway/cmd/gateway/config"
	"plcgateway/cmd/gateway/options"
	"plcgateway/pkg/apis/response"
	"plcgateway/pkg/gateway"
	"plcgateway/pkg/generic"
	"plcgateway/pkg/plc"
)

type Server struct {
	*generic.Server
	*config.Config
	addr net.Addr
}

func NewServer(router *gin.Engine, o *options.Options, config *config.Config) (*Server, error) {
	allowMethods := []string{http.MethodPost, http.MethodGet}

	s := &generic.Server{
		Router:  router,
		Port:    o.Port,
		Methods: allowMethods,
	}

	server := &Server{
		Server: s,
		Config: config,
	}

	server.InstallHandlers()

	return server, nil
}

func (s *Server) InstallHandlers() {
	s.Router.GET("/health", plc.Health(s.Config.Device))
	api := s.Router.Group("/api")
	plc.InstallHandler(api, s.Config.Device)
	gateway.InstallHandler(api.Group("/system"), s.Config.GatewayMgr, s.Config.Device.Connected)

	s.Router.GET("/", s.index)
	s.Router.NoRoute(s.static)
}

// Serve binds the port before returning, so a port in use fails the start up.
func (s *Server) Serve() (func(ctx context.Context), error) {
	ln, err := net.Listen("tcp", s.ListenAddress())
	if err != nil {
		return nil, fmt.Errorf("port %s is already in use or not available: %w", s.Port, err)
	}
	s.addr = ln.Addr()

	srv := &http.Server{
		Handler: s.Router,
	}
	if len(s.Config.CertFile) != 0 && len(s.Config.KeyFile) != 0 {
		x509KeyPair, err := tls.LoadX509KeyPair(s.Config.CertFile, s.Config.KeyFile)
		if err != nil {
			_ = ln.Close()
			return nil, err
		}
		srv.TLSConfig = &tls.Config{
			Certificates: []tls.Certificate{x509KeyPair},
		}
		go func() {
			if err := srv.ServeTLS(ln, "", ""); err != nil && err != http.ErrServerClosed {
				klog.ErrorS(err, "HTTPS server stopped")
			}
		}()
	} else {
		go func() {
			if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
				klog.ErrorS(err, "HTTP server stopped")
			}
		}()
	}

	return func(ctx context.Context) {
		srv.SetKeepAlivesEnabled(false)
		if err := srv.Shutdown(ctx); err != nil {
			klog.Error(err)
		}
		if err := s.Config.Device.Disconnect(); err != nil {
			klog.Error(err)
		}
	}, nil
}

// Addr is the bound address, nil before Serve.
func (s *Server) Addr() net.Addr {
	return s.addr
}

func (s *Server) index(c *gin.Context) {
	if len(s.Config.StaticDir) > 0 && len(s.Config.Dashboard) > 0 {
		dashboard := filepath.Join(s.Config.StaticDir, s.Config.Dashboard)
		if isFile(dashboard) {
			c.File(dashboard)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "PLC API Server Running",
		"endpoints": gin.H{
			"status":  "/api/status",
			"summary": "/api/status/summary",
			"health":  "/health",
		},
	})
}

func (s *Server) static(c *gin.Context) {
	if len(s.Config.StaticDir) > 0 && (c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead) {
		// Clean 之后不会越过 StaticDir
		name := filepath.Join(s.Config.StaticDir, filepath.FromSlash(path.Clean("/"+c.Request.URL.Path)))
		if servable(name) {
			c.File(name)
			return
		}
	}
	c.JSON(http.StatusNotFound, response.NewFailure(response.ErrEndpointNotFound, s.Config.Device.Connected()))
}

// 配置文件里可能有 mqtt 密码
var hiddenExtensions = sets.NewString(".yaml", ".yml", ".env", ".key", ".pem")

func servable(name string) bool {
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".") || hiddenExtensions.Has(strings.ToLower(filepath.Ext(base))) {
		return false
	}
	return isFile(name)
}

func isFile(name string) bool {
	info, err := os.Stat(name)
	return err == nil && !info.IsDir()
}
