// internal/handlers/health.go
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/javajoker/coopfund-backend/internal/utils"
)

const healthTimeout = 2 * time.Second

// Health reports the service healthy only while the ledger database answers.
func Health(db *gorm.DB, version string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := pingDB(c.Request.Context(), db); err != nil {
			logrus.WithError(err).Warn("Health check failed")
			utils.ServiceUnavailableResponse(c, "DATABASE_UNAVAILABLE", "ledger database is unreachable")
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"version": version,
		})
	}
}

func pingDB(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()
	return sqlDB.PingContext(ctx)
}
