package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("RegisteredPayload", func(t *testing.T) {
		b, err := Encode("evt-1", ChannelTransaction, PurchaseSucceeded, TransactionPayload{
			TransactionID: 7,
			BuyerID:       1,
			Type:          "video",
			TotalPrice:    3000,
		}, at)
		require.NoError(t, err)

		evt, err := Decode(b)
		require.NoError(t, err)
		assert.Equal(t, "evt-1", evt.ID)
		assert.Equal(t, ChannelTransaction, evt.Channel)
		assert.Equal(t, PurchaseSucceeded, evt.Name)
		assert.True(t, at.Equal(evt.PublishedAt))

		p, ok := evt.Payload.(*TransactionPayload)
		require.True(t, ok)
		assert.Equal(t, uint64(7), p.TransactionID)
		assert.Equal(t, int64(3000), p.TotalPrice)
	})

	t.Run("UnknownPairKeepsRaw", func(t *testing.T) {
		b, err := Encode("evt-2", ChannelCategory, Created, map[string]int{"category_id": 3}, at)
		require.NoError(t, err)

		evt, err := Decode(b)
		require.NoError(t, err)
		assert.Nil(t, evt.Payload)
		assert.JSONEq(t, `{"category_id":3}`, string(evt.Raw))
	})

	t.Run("MalformedPayload", func(t *testing.T) {
		_, err := Decode([]byte(`{"channel":"category","event":"Deleted","data":"oops"}`))
		assert.Error(t, err)

		_, err = Decode([]byte(`not json`))
		assert.Error(t, err)
	})
}

func TestKnown(t *testing.T) {
	assert.True(t, Known(ChannelFeed, Activated))
	assert.True(t, Known(ChannelPayoutRequest, Updated))
	assert.False(t, Known(ChannelPayoutRequest, Deleted))
}
