// Command open311stub is a local stand-in for an Open311 endpoint. It logs every
// submitted report and keeps the attached media files on disk.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
)

var (
	port    = flag.Int("port", 3001, "The port used by the stub.")
	saveDir = flag.String("save_dir", "received_files", "Directory where received media is stored.")
)

func main() {
	flag.Parse()
	log.Infof("Open311 stub listening on :%d, saving media to %s", *port, *saveDir)
	if err := setupRouter(*saveDir).Run(fmt.Sprintf(":%d", *port)); err != nil {
		log.WithError(err).Fatal("stub server stopped")
	}
}

func setupRouter(dir string) *gin.Engine {
	router := gin.Default()
	router.POST("/requests", receiveReport(dir))
	return router
}

func receiveReport(dir string) gin.HandlerFunc {
	return func(c *gin.Context) {
		form, err := c.MultipartForm()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": err.Error()})
			return
		}

		fields := make(map[string]string, len(form.Value))
		for k, v := range form.Value {
			if len(v) > 0 {
				fields[k] = v[0]
			}
		}
		log.WithFields(log.Fields{"fields": fields}).Info("open311.report_received")

		media := form.File["media"]
		if len(media) > 0 {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": err.Error()})
				return
			}
		}
		for _, fh := range media {
			path := filepath.Join(dir, filepath.Base(fh.Filename))
			if err := c.SaveUploadedFile(fh, path); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": err.Error()})
				return
			}
			log.WithFields(log.Fields{"file": path, "size": fh.Size}).Info("open311.media_saved")
		}

		c.JSON(http.StatusOK, gin.H{
			"status":  "success",
			"message": "Report received",
			"data": gin.H{
				"form_fields":   fields,
				"file_received": len(media) > 0,
			},
		})
	}
}
