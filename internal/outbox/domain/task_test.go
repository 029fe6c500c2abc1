package domain

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskKind_Valid(t *testing.T) {
	known := []TaskKind{
		KindUserNotify, KindChargeOutstanding, KindProcessMandrillEvent,
		KindRefreshAppStoreReceipts, KindSendPaymentReminders,
		KindCreateStripeAccount, KindUpdateMailingListTags,
	}
	for _, kind := range known {
		assert.True(t, kind.Valid(), "kind %s", kind)
	}
	assert.False(t, TaskKind("").Valid())
	assert.False(t, TaskKind("user.notify.v2").Valid())
}

func TestTask_DecodePayload(t *testing.T) {
	userID := uuid.New()
	raw, err := json.Marshal(UserNotifyPayload{UserID: userID, Title: "hi"})
	require.NoError(t, err)

	task := &Task{Kind: KindUserNotify, Payload: raw}

	var decoded UserNotifyPayload
	require.NoError(t, task.DecodePayload(&decoded))
	assert.Equal(t, userID, decoded.UserID)
	assert.Equal(t, "hi", decoded.Title)

	t.Run("malformed payload names the kind", func(t *testing.T) {
		bad := &Task{Kind: KindChargeOutstanding, Payload: json.RawMessage(`{`)}
		var dst ChargeOutstandingPayload
		err := bad.DecodePayload(&dst)
		require.Error(t, err)
		assert.Contains(t, err.Error(), string(KindChargeOutstanding))
	})
}
