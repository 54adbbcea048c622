package omnivore

// Ticket is the decoded ticket object. Numbers are kept as json.Number so
// the money normalizer can tell 25 from 25.00.
type Ticket = map[string]interface{}

// PaymentRequest is the minimal payment body. The adapter rejects extra
// fields such as reference or tender_type, and tip is required.
type PaymentRequest struct {
	Type   string `json:"type"`
	Amount int64  `json:"amount"`
	Tip    int64  `json:"tip"`
}

// PaymentReceipt is what the POS returns after accepting a payment.
type PaymentReceipt struct {
	ID     string                 `json:"id"`
	Amount int64                  `json:"amount"`
	Tip    int64                  `json:"tip"`
	Raw    map[string]interface{} `json:"-"`
}
