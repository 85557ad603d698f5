package handlers

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	log "github.com/sirupsen/logrus"
)

// SystemInfo handles system information requests.
// GET /api/v1/health/system
func (h *APIHandler) SystemInfo(c *gin.Context) {
	memInfo, err := mem.VirtualMemory()
	if err != nil {
		log.WithError(err).Error("Failed to get memory info")
	}

	cpuPercent, err := cpu.Percent(time.Second, false)
	if err != nil {
		log.WithError(err).Error("Failed to get CPU usage")
	}
	cpuUsage := 0.0
	if len(cpuPercent) > 0 {
		cpuUsage = cpuPercent[0]
	}
	cpuCounts, _ := cpu.Counts(true)

	loadAvgData := map[string]float64{"1min": 0, "5min": 0, "15min": 0}
	if loadAvg, err := load.Avg(); err == nil && loadAvg != nil {
		loadAvgData["1min"] = loadAvg.Load1
		loadAvgData["5min"] = loadAvg.Load5
		loadAvgData["15min"] = loadAvg.Load15
	}

	diskInfo, err := disk.Usage("/")
	if err != nil {
		log.WithError(err).Error("Failed to get disk info")
	}

	hostInfo, err := host.Info()
	if err != nil {
		log.WithError(err).Error("Failed to get host info")
	}

	response := gin.H{
		"service":   "indexbridge",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"system": gin.H{
			"cpu": gin.H{
				"usage_percent": round(cpuUsage, 2),
				"count_logical": cpuCounts,
				"load_average":  loadAvgData,
			},
			"os": gin.H{
				"system":  runtime.GOOS,
				"machine": runtime.GOARCH,
			},
		},
	}

	if memInfo != nil {
		response["system"].(gin.H)["memory"] = gin.H{
			"total_gb":     round(float64(memInfo.Total)/(1024*1024*1024), 2),
			"used_gb":      round(float64(memInfo.Used)/(1024*1024*1024), 2),
			"available_gb": round(float64(memInfo.Available)/(1024*1024*1024), 2),
			"percent":      round(memInfo.UsedPercent, 2),
		}
	}
	if diskInfo != nil {
		response["system"].(gin.H)["disk"] = gin.H{
			"total_gb": round(float64(diskInfo.Total)/(1024*1024*1024), 2),
			"free_gb":  round(float64(diskInfo.Free)/(1024*1024*1024), 2),
			"percent":  round(diskInfo.UsedPercent, 2),
		}
	}
	if hostInfo != nil {
		response["system"].(gin.H)["uptime_seconds"] = int64(hostInfo.Uptime)
		response["system"].(gin.H)["os"].(gin.H)["platform"] = hostInfo.Platform
	}

	c.JSON(http.StatusOK, response)
}

// round truncates a float to the given number of decimal places.
func round(val float64, precision int) float64 {
	ratio := float64(1)
	for i := 0; i < precision; i++ {
		ratio *= 10
	}
	return float64(int(val*ratio)) / ratio
}
