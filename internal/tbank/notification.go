package tbank

import (
	"encoding/json"
	"strconv"
)

// Notification is an inbound payment callback. Fields keeps every root-level value
// exactly as received (numbers as json.Number) so the token can be recomputed.
type Notification struct {
	Fields    map[string]any
	OrderID   string
	PaymentID string
	Status    Status
	Amount    int64
	HasAmount bool
	Raw       json.RawMessage
}

func ParseNotification(body []byte) (Notification, error) {
	fields, err := decodeFields(body)
	if err != nil {
		return Notification{}, err
	}
	n := Notification{Fields: fields, Raw: json.RawMessage(body)}
	n.OrderID, _ = stringify(fields["OrderId"])
	n.PaymentID, _ = stringify(fields["PaymentId"])
	if s, _ := stringify(fields["Status"]); s != "" {
		n.Status = Status(s)
	} else {
		n.Status = "UNKNOWN"
	}
	if a, ok := stringify(fields["Amount"]); ok {
		if v, err := strconv.ParseInt(a, 10, 64); err == nil && v != 0 {
			n.Amount, n.HasAmount = v, true
		}
	}
	return n, nil
}

// Verify checks the notification token with the shop password.
func (n Notification) Verify(password string) error {
	return Verify(n.Fields, password)
}
