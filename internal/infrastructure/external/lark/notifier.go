package lark

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/garyjia/medical-claims/internal/application/dispatcher"
	"github.com/garyjia/medical-claims/internal/domain/event"
	"go.uber.org/zap"
)

// DecisionNotifier posts claim decisions to a Lark group chat
type DecisionNotifier struct {
	sender MessageSender
	chatID string
	logger *zap.Logger
}

// NewDecisionNotifier creates a notifier for the given chat
func NewDecisionNotifier(sender MessageSender, chatID string, logger *zap.Logger) *DecisionNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DecisionNotifier{sender: sender, chatID: chatID, logger: logger}
}

// Register subscribes the notifier to approve, reject and return events
func (n *DecisionNotifier) Register(d dispatcher.Dispatcher) {
	for _, t := range []event.Type{event.TypeClaimApproved, event.TypeClaimRejected, event.TypeClaimReturned} {
		d.Subscribe(t, "lark_decision_notifier", n.Handle)
	}
}

// Handle sends one text message describing the decision
func (n *DecisionNotifier) Handle(ctx context.Context, evt *event.Event) error {
	content, err := json.Marshal(map[string]string{"text": formatDecision(evt)})
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	messageID, err := n.sender.SendMessage(ctx, "chat_id", n.chatID, "text", string(content))
	if err != nil {
		return err
	}

	n.logger.Info("Decision notification sent",
		zap.String("claim_id", evt.ClaimID),
		zap.String("event_type", string(evt.Type)),
		zap.String("message_id", messageID))
	return nil
}

func formatDecision(evt *event.Event) string {
	var b strings.Builder

	verb := "updated"
	switch evt.Type {
	case event.TypeClaimApproved:
		verb = "approved"
	case event.TypeClaimRejected:
		verb = "rejected"
	case event.TypeClaimReturned:
		verb = "returned"
	}
	fmt.Fprintf(&b, "Claim %s was %s", evt.ClaimID, verb)

	if actor := evt.GetPayloadString(event.KeyActorUserID); actor != "" {
		fmt.Fprintf(&b, " by %s", actor)
	}
	b.WriteString(".")

	if emp := evt.GetPayloadString(event.KeyEmployeeID); emp != "" {
		fmt.Fprintf(&b, "\nEmployee: %s", emp)
	}
	if claimed := evt.GetPayloadString(event.KeyAmountClaimed); claimed != "" {
		fmt.Fprintf(&b, "\nClaimed: %s", claimed)
	}
	if approved := evt.GetPayloadString(event.KeyAmountApproved); approved != "" {
		fmt.Fprintf(&b, "\nApproved: %s", approved)
	}
	if remarks := evt.GetPayloadString(event.KeyRemarks); remarks != "" {
		fmt.Fprintf(&b, "\nRemarks: %s", remarks)
	}
	return b.String()
}
