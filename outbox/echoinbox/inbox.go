// Package echoinbox adapts an inbound outbox webhook to an echo handler so
// that downstream services can consume the notification stream by mounting
// a single route. Consumers must be idempotent - the relay delivers
// at-least-once and the item sequence number is the stable dedup key.
package echoinbox

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/relvacode/iso8601"

	"github.com/anovik/eventflow"
	"github.com/anovik/eventflow/outbox"
)

// Item is a decoded inbound notification
type Item struct {
	Notification any

	Sequence      uint64
	StreamID      string
	CorrelationID string
	Type          string
	CreatedAt     time.Time
}

// Consumer handles a single inbound notification
type Consumer func(ctx context.Context, item Item) error

// Decoder is an interface for decoding notifications
type Decoder interface {
	Decode(*eventflow.EncodedEvt) (any, error)
}

// Wrap returns an echo handler which decodes posted outbox item batches and
// feeds them to the consumer one by one. Notification types unknown to the
// decoder are skipped. A consumer error fails the whole batch with a 5xx so
// the sending relay re-delivers it
func Wrap(dec Decoder, consume Consumer) echo.HandlerFunc {
	return func(c echo.Context) error {
		body, err := io.ReadAll(c.Request().Body)
		if err != nil {
			return err
		}

		var items []outbox.WebhookItem

		if err := json.Unmarshal(body, &items); err != nil {
			return c.NoContent(http.StatusBadRequest)
		}

		ctx := c.Request().Context()

		for _, item := range items {
			decoded, err := dec.Decode(&eventflow.EncodedEvt{
				Data: string(item.Data),
				Type: item.Type,
			})
			if err != nil {
				if errors.Is(err, eventflow.ErrEventNotRegistered) {
					continue
				}

				return c.NoContent(http.StatusInternalServerError)
			}

			createdAt, err := iso8601.ParseString(item.CreatedAt)
			if err != nil {
				return c.NoContent(http.StatusBadRequest)
			}

			err = consume(ctx, Item{
				Notification:  decoded,
				Sequence:      item.Sequence,
				StreamID:      item.StreamID,
				CorrelationID: item.CorrelationID,
				Type:          item.Type,
				CreatedAt:     createdAt,
			})
			if err != nil {
				return c.NoContent(http.StatusInternalServerError)
			}
		}

		return c.NoContent(http.StatusNoContent)
	}
}
