package controllers

import (
	"net/http"
	"strconv"

	"cloudrams/internal/services"

	"github.com/gin-gonic/gin"
)

// GetRunningTasks returns the tracked applications currently running
func GetRunningTasks(c *gin.Context) {
	tasks, lastUpdated, err := services.GetCachedTasks()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"tasks":        tasks,
		"last_updated": lastUpdated,
	})
}

// GetTopProcesses returns the top processes by CPU + memory usage with totals
func GetTopProcesses(c *gin.Context) {
	limit := services.DefaultProcessLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = parsed
	}

	processes, totalCPU, totalMem, err := services.ListProcesses(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"processes":         processes,
		"total_cpu_percent": totalCPU,
		"total_mem_percent": totalMem,
	})
}

// GetProcessStatus returns a simple process status summary (total count)
func GetProcessStatus(c *gin.Context) {
	count, err := services.GetProcessCount()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"total_processes": count})
}
