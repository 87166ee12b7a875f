package controllers

import (
	"net/http"

	"cloudrams/internal/models"
	"cloudrams/internal/services"

	"github.com/gin-gonic/gin"
)

// ZipFolder packs a local folder into the agent cache
func ZipFolder(c *gin.Context) {
	var req models.ZipFolderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	resp, err := services.ZipFolder(c.Request.Context(), req.FolderPath)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// UploadToURL sends a local file to a presigned PUT URL
func UploadToURL(c *gin.Context) {
	var req models.UploadToURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	resp, err := services.Upload(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// DownloadFromURL saves a remote file into the downloads directory
func DownloadFromURL(c *gin.Context) {
	var req models.DownloadFromURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	resp, err := services.Download(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
