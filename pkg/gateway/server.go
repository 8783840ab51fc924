package gateway

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"k8s.io/klog/v2"
	"plcgateway/pkg/apis/response"
)

// InstallHandler registers the host diagnostics, connected reports the PLC link in error bodies.
func InstallHandler(group *gin.RouterGroup, mgr *Manager, connected func() bool) {
	group.GET("/host", handle("host", connected, func() (ResponseModel, error) {
		h, err := mgr.getGatewayHost()
		return ResponseModel{Host: h}, err
	}))
	group.GET("/cpu", handle("cpu", connected, func() (ResponseModel, error) {
		cpus, err := mgr.getGatewayCpu()
		return ResponseModel{Cpus: cpus}, err
	}))
	group.GET("/mem", handle("mem", connected, func() (ResponseModel, error) {
		m, err := mgr.getGatewayMem()
		return ResponseModel{Mem: m}, err
	}))
	group.GET("/disk", handle("disk", connected, func() (ResponseModel, error) {
		disks, err := mgr.getGatewayDisk()
		return ResponseModel{Disks: disks}, err
	}))
	group.GET("/serial", handle("serial", connected, func() (ResponseModel, error) {
		ports, err := SerialPorts()
		return ResponseModel{SerialPorts: ports}, err
	}))
}

func handle(resource string, connected func() bool, collect func() (ResponseModel, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		model, err := collect()
		if err != nil {
			klog.V(2).InfoS("Failed to collect gateway info", "resource", resource, "err", err)
			c.JSON(http.StatusInternalServerError, response.NewFailure(response.ErrInternal(err), connected()))
			return
		}
		c.JSON(http.StatusOK, model)
	}
}
