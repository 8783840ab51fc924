package generic

import (
	"net"

	"github.com/gin-gonic/gin"
)

type Server struct {
	Router  *gin.Engine
	Port    string
	Methods []string
}

// ListenAddress listens on every interface, the dashboard is opened from other machines on the LAN.
func (s *Server) ListenAddress() string {
	return net.JoinHostPort("", s.Port)
}
