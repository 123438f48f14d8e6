package echoinbox_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anovik/eventflow"
	"github.com/anovik/eventflow/outbox"
	"github.com/anovik/eventflow/outbox/echoinbox"
)

type balanceChanged struct {
	Amount int
}

func post(t *testing.T, h echo.HandlerFunc, payload any) *httptest.ResponseRecorder {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/outbox", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	require.NoError(t, h(e.NewContext(req, rec)))

	return rec
}

func TestShould_Decode_And_Consume_Posted_Items(t *testing.T) {
	enc := eventflow.NewJsonEncoder(balanceChanged{})

	var got []echoinbox.Item

	h := echoinbox.Wrap(enc, func(_ context.Context, item echoinbox.Item) error {
		got = append(got, item)

		return nil
	})

	rec := post(t, h, []outbox.WebhookItem{
		{
			Sequence:      7,
			StreamID:      "account-1",
			CorrelationID: "K1",
			Type:          "balanceChanged",
			Data:          json.RawMessage(`{"Amount":100}`),
			CreatedAt:     "2026-08-05T10:00:00Z",
		},
	})

	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.Len(t, got, 1)

	assert.Equal(t, balanceChanged{Amount: 100}, got[0].Notification)
	assert.Equal(t, uint64(7), got[0].Sequence)
	assert.Equal(t, "account-1", got[0].StreamID)
	assert.Equal(t, "K1", got[0].CorrelationID)
	assert.Equal(t, time.Date(2026, 8, 5, 10, 0, 0, 0, time.UTC), got[0].CreatedAt.UTC())
}

func TestShould_Skip_Unregistered_Notification_Types(t *testing.T) {
	enc := eventflow.NewJsonEncoder(balanceChanged{})

	var got []echoinbox.Item

	h := echoinbox.Wrap(enc, func(_ context.Context, item echoinbox.Item) error {
		got = append(got, item)

		return nil
	})

	rec := post(t, h, []outbox.WebhookItem{
		{
			Sequence:  1,
			Type:      "somethingElse",
			Data:      json.RawMessage(`{}`),
			CreatedAt: "2026-08-05T10:00:00Z",
		},
		{
			Sequence:  2,
			Type:      "balanceChanged",
			Data:      json.RawMessage(`{"Amount":5}`),
			CreatedAt: "2026-08-05T10:00:00Z",
		},
	})

	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.Len(t, got, 1)
	assert.Equal(t, uint64(2), got[0].Sequence)
}

func TestShould_Fail_Batch_When_Consumer_Errors(t *testing.T) {
	enc := eventflow.NewJsonEncoder(balanceChanged{})

	h := echoinbox.Wrap(enc, func(_ context.Context, _ echoinbox.Item) error {
		return errors.New("read model unavailable")
	})

	rec := post(t, h, []outbox.WebhookItem{
		{
			Sequence:  1,
			Type:      "balanceChanged",
			Data:      json.RawMessage(`{"Amount":5}`),
			CreatedAt: "2026-08-05T10:00:00Z",
		},
	})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestShould_Reject_Malformed_Payload(t *testing.T) {
	enc := eventflow.NewJsonEncoder(balanceChanged{})

	h := echoinbox.Wrap(enc, func(_ context.Context, _ echoinbox.Item) error {
		return nil
	})

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/outbox", bytes.NewReader([]byte("not json")))
	rec := httptest.NewRecorder()

	require.NoError(t, h(e.NewContext(req, rec)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
