package engine

// transitions maps (current state, resolved intent) to the next billing
// state. Absent pairs keep the current state.
var transitions = map[BillingState]map[Intent]BillingState{
	StatePending: {
		IntentPaymentConfirmation: StatePaidPendingVerification,
		IntentNegotiationRequest:  StateNegotiating,
		IntentFinancialHardship:   StateNegotiating,
		IntentDispute:             StateDisputed,
	},
	StateNegotiating: {
		IntentPaymentConfirmation: StatePaidPendingVerification,
		IntentDispute:             StateDisputed,
	},
	StateDisputed: {
		IntentPaymentConfirmation: StatePaidPendingVerification,
	},
	StatePaidPendingVerification: {
		IntentDispute: StateDisputed,
	},
}

// NextState applies one resolved intent to the billing state machine and
// reports whether the transition should count as a negotiation attempt.
func NextState(current BillingState, intent Intent) (next BillingState, negotiation bool) {
	if current == "" {
		current = StatePending
	}
	next = current
	if byIntent, ok := transitions[current]; ok {
		if to, ok := byIntent[intent]; ok {
			next = to
		}
	}
	negotiation = intent == IntentNegotiationRequest || intent == IntentFinancialHardship
	return next, negotiation
}
