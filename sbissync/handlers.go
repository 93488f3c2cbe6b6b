package sbissync

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/billing_backend/config"
	"github.com/mmdatafocus/billing_backend/models"
	"github.com/mmdatafocus/billing_backend/utils"
	"github.com/sirupsen/logrus"
)

// StatusHandler reports the most recent audit rows so operators can see at a
// glance whether the nightly pass ran and how it went.
func StatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logs, err := models.ListSyncLogs(c.Request.Context(), 0, 20)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"recent_sync_logs": logs})
	}
}

// TriggerSyncHandler kicks off a full sync pass. When Pub/Sub is configured
// the request is queued; otherwise the pass runs in the background here.
func TriggerSyncHandler(syncer *Syncer) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if envBoolDefault("SBIS_SYNC_VIA_PUBSUB", false) {
			if err := PublishSyncRequest(ctx, 0, models.SyncTriggeredManual); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusAccepted, gin.H{"message": "sync queued"})
			return
		}

		go func() {
			// Detach from the request; the pass outlives the response.
			runCtx, cancel := context.WithTimeout(context.Background(), time.Hour)
			defer cancel()
			if _, err := syncer.SyncAllClients(runCtx); err != nil {
				config.LogError(syncer.Logger, "handlers.go", "TriggerSyncHandler", "manual sync pass", nil, err)
			}
		}()
		c.JSON(http.StatusAccepted, gin.H{"message": "sync started"})
	}
}

// TriggerClientSyncHandler runs one client's sync synchronously and reports
// the outcome; used by support when a client disputes their balance.
func TriggerClientSyncHandler(syncer *Syncer) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientId, err := strconv.Atoi(c.Param("id"))
		if err != nil || clientId < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid client id"})
			return
		}

		ctx := c.Request.Context()
		client, err := models.GetClient(ctx, clientId)
		if err != nil {
			if errors.Is(err, utils.ErrorRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "client not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if client.SbisContractId == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "sbis contract id not configured for this client"})
			return
		}

		if err := syncer.SyncClient(ctx, *client); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "synchronization completed"})
	}
}

func SyncLogsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientId, _ := strconv.Atoi(c.Query("client_id"))
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

		logs, err := models.ListSyncLogs(c.Request.Context(), clientId, limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, logs)
	}
}

// BalanceChecksHandler runs the drift report on demand.
func BalanceChecksHandler(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		mismatches, err := models.RunBalanceChecks(c.Request.Context())
		if err != nil {
			config.LogError(logger, "handlers.go", "BalanceChecksHandler", "running balance checks", nil, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"mismatches": mismatches, "count": len(mismatches)})
	}
}
