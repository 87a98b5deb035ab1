package lark

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/garyjia/medical-claims/internal/application/dispatcher"
	"github.com/garyjia/medical-claims/internal/domain/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSender struct {
	receiveIDType, receiveID, msgType, content string
	err                                        error
}

func (m *mockSender) SendMessage(ctx context.Context, receiveIDType, receiveID, msgType, content string) (string, error) {
	m.receiveIDType, m.receiveID, m.msgType, m.content = receiveIDType, receiveID, msgType, content
	return "om_1", m.err
}

func TestDecisionNotifier_Handle(t *testing.T) {
	sender := &mockSender{}
	n := NewDecisionNotifier(sender, "oc_claims", nil)

	evt := event.NewEvent(event.TypeClaimApproved, "Claim-2025-26-00001", map[string]interface{}{
		event.KeyActorUserID:    "smb-1",
		event.KeyEmployeeID:     "EMP-9",
		event.KeyAmountClaimed:  "5000.00",
		event.KeyAmountApproved: "4500.00",
		event.KeyRemarks:        "ok \"fine\"",
	})

	require.NoError(t, n.Handle(context.Background(), evt))

	assert.Equal(t, "chat_id", sender.receiveIDType)
	assert.Equal(t, "oc_claims", sender.receiveID)
	assert.Equal(t, "text", sender.msgType)

	var body map[string]string
	require.NoError(t, json.Unmarshal([]byte(sender.content), &body))
	assert.Equal(t, "Claim Claim-2025-26-00001 was approved by smb-1.\nEmployee: EMP-9\nClaimed: 5000.00\nApproved: 4500.00\nRemarks: ok \"fine\"", body["text"])
}

func TestDecisionNotifier_SendFailure(t *testing.T) {
	n := NewDecisionNotifier(&mockSender{err: errors.New("code=99991663")}, "oc", nil)

	err := n.Handle(context.Background(), event.NewEvent(event.TypeClaimRejected, "C-1", nil))

	assert.Error(t, err)
}

func TestFormatDecision(t *testing.T) {
	tests := []struct {
		eventType event.Type
		want      string
	}{
		{event.TypeClaimRejected, "Claim C-1 was rejected."},
		{event.TypeClaimReturned, "Claim C-1 was returned."},
		{event.TypeClaimStatusChanged, "Claim C-1 was updated."},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, formatDecision(event.NewEvent(tt.eventType, "C-1", nil)))
	}
}

func TestDecisionNotifier_Register(t *testing.T) {
	d := dispatcher.NewDispatcher()
	defer d.Close()

	NewDecisionNotifier(&mockSender{}, "oc", nil).Register(d)

	assert.Equal(t, []string{"lark_decision_notifier"}, d.Handlers(event.TypeClaimApproved))
	assert.Equal(t, []string{"lark_decision_notifier"}, d.Handlers(event.TypeClaimRejected))
	assert.Equal(t, []string{"lark_decision_notifier"}, d.Handlers(event.TypeClaimReturned))
	assert.Empty(t, d.Handlers(event.TypeClaimStatusChanged))
}
