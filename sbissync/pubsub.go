package sbissync

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"

	"cloud.google.com/go/pubsub"
	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/billing_backend/config"
	"github.com/mmdatafocus/billing_backend/models"
)

// PublishSyncRequest queues a sync over Pub/Sub so a Cloud Scheduler job (or
// another instance) can trigger the pass without holding the HTTP request.
// ClientId 0 means "all syncable clients".
func PublishSyncRequest(ctx context.Context, clientId int, triggeredBy string) error {
	topicName := strings.TrimSpace(os.Getenv("SBIS_SYNC_TOPIC"))
	if topicName == "" {
		topicName = "sbis-sync"
	}

	client, err := config.GetClient(ctx)
	if err != nil {
		return err
	}

	topic := client.Topic(topicName)
	if envBoolDefault("SBIS_SYNC_CREATE_TOPIC", false) {
		topic, err = config.CreateTopicIfNotExists(client, topicName)
		if err != nil {
			return err
		}
	}

	payload := SyncPubSubPayload{
		ClientId:    clientId,
		TriggeredBy: triggeredBy,
	}
	data, _ := json.Marshal(payload)
	res := topic.Publish(ctx, &pubsub.Message{Data: data})
	_, err = res.Get(ctx)
	return err
}

// PubSubPushHandler accepts the Pub/Sub push envelope and runs the requested
// sync. It always acks (204): a failed pass is already audited per client and
// redelivery would only repeat work the idempotency keys make safe anyway.
func PubSubPushHandler(syncer *Syncer) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !envBoolDefault("ENABLE_SBIS_PUBSUB_PUSH_ENDPOINT", true) {
			c.Status(204)
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Status(204)
			return
		}

		var envelope PubSubPushEnvelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			c.Status(204)
			return
		}

		var payload SyncPubSubPayload
		if err := json.Unmarshal(envelope.Message.Data, &payload); err != nil {
			c.Status(204)
			return
		}

		ctx := c.Request.Context()
		if payload.ClientId > 0 {
			if client, err := models.GetClient(ctx, payload.ClientId); err == nil {
				_ = syncer.SyncClient(ctx, *client)
			}
		} else {
			_, _ = syncer.SyncAllClients(ctx)
		}
		c.Status(204)
	}
}

func envBoolDefault(key string, def bool) bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch val {
	case "true", "1", "yes", "y", "on":
		return true
	case "false", "0", "no", "n", "off":
		return false
	default:
		return def
	}
}
