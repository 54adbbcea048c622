package stripe

// ChargeParams describes an off-session charge of a saved card, split to a
// connected account when DestinationAccount is set.
type ChargeParams struct {
	CustomerID         string
	PaymentMethodID    string
	AmountCents        int64
	Currency           string
	IdempotencyKey     string
	Description        string
	DestinationAccount string
	Metadata           map[string]string
}

// PaymentIntent is the subset of the Stripe object the app reads.
type PaymentIntent struct {
	ID       string            `json:"id"`
	Object   string            `json:"object"`
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Status   string            `json:"status"`
	Customer string            `json:"customer"`
	Metadata map[string]string `json:"metadata"`
}

const PaymentIntentSucceeded = "succeeded"

const RefundReasonRequestedByCustomer = "requested_by_customer"

type RefundParams struct {
	PaymentIntentID string
	Reason          string
	IdempotencyKey  string
}

type Refund struct {
	ID            string `json:"id"`
	Amount        int64  `json:"amount"`
	PaymentIntent string `json:"payment_intent"`
	Status        string `json:"status"`
	Reason        string `json:"reason"`
}
