package service

import (
	"strconv"
	"strings"

	"checkout/pkg/checkout/domain/model"
)

// The gateway does not commit to one response shape: the transaction
// reference and the status arrive under varying field names, and status
// values are sometimes tokens, sometimes numeric result codes. Both lists
// are probed in order; the first non-empty match wins.
var transactionIDAliases = []string{
	"CheckoutRequestID",
	"checkout_request_id",
	"transaction_id",
	"TransactionID",
	"MerchantRequestID",
	"reference",
}

var statusAliases = []string{
	"status",
	"ResultCode",
	"result_code",
	"payment_status",
	"state",
}

// statusTokens maps every known status token or result code to its canonical
// classification. Tokens missing from this table are never guessed terminal.
var statusTokens = map[string]model.PaymentStatus{
	"completed":  model.PaymentSuccess,
	"success":    model.PaymentSuccess,
	"successful": model.PaymentSuccess,
	"paid":       model.PaymentSuccess,
	"settled":    model.PaymentSuccess,
	"0":          model.PaymentSuccess,

	"failed":             model.PaymentFailure,
	"failure":            model.PaymentFailure,
	"cancelled":          model.PaymentFailure,
	"canceled":           model.PaymentFailure,
	"declined":           model.PaymentFailure,
	"insufficient_funds": model.PaymentFailure,
	"1":                  model.PaymentFailure,
	"1032":               model.PaymentFailure,
	"1037":               model.PaymentFailure,
	"2001":               model.PaymentFailure,

	"pending":    model.PaymentPending,
	"processing": model.PaymentPending,
	"queued":     model.PaymentPending,
}

// ExtractTransactionID probes the known field-name aliases for the
// gateway-assigned transaction reference.
func ExtractTransactionID(payload map[string]any) (string, error) {
	for _, alias := range transactionIDAliases {
		if v, ok := payload[alias]; ok {
			if id := tokenize(v); id != "" {
				return id, nil
			}
		}
	}
	return "", &model.MissingTransactionIDError{Raw: payload}
}

// ClassifyStatus maps a loosely-typed status response to a canonical
// PaymentStatus. A payload whose status field carries an unrecognized value,
// or that carries no status field at all, classifies as Pending alongside
// ErrAmbiguousStatus so the caller can log the unexpected shape.
func ClassifyStatus(payload map[string]any) (model.PaymentStatus, error) {
	for _, alias := range statusAliases {
		v, ok := payload[alias]
		if !ok {
			continue
		}
		token := strings.ToLower(tokenize(v))
		if token == "" {
			continue
		}
		if status, known := statusTokens[token]; known {
			return status, nil
		}
		return model.PaymentPending, model.ErrAmbiguousStatus
	}
	return model.PaymentPending, model.ErrAmbiguousStatus
}

// tokenize renders a JSON field value as a comparable token. Numeric codes
// decode as float64, so whole numbers must not pick up a decimal point.
func tokenize(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return ""
	}
}
