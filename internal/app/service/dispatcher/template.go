package dispatcher

import (
	"regexp"

	"github.com/otwdelivery/otw-backend/pkg/types"
)

var placeholderPattern = regexp.MustCompile(`\{\{([a-zA-Z0-9_]+)\}\}`)

// Render substitutes {{key}} placeholders with values from vars. Unresolved
// placeholders are left verbatim; rendering never fails. No escaping is
// applied to substituted values.
func Render(tmpl string, vars map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(tmpl, func(match string) string {
		key := placeholderPattern.FindStringSubmatch(match)[1]
		if v, ok := vars[key]; ok {
			return v
		}
		return match
	})
}

type messageTemplate struct {
	Title string
	Body  string
}

// eventTemplates maps an order lifecycle moment to its default message.
// CustomTitle/CustomBody on the intent override these.
var eventTemplates = map[types.OrderEvent]messageTemplate{
	types.OrderEventPaid:          {"Order confirmed", "Your payment for order {{orderId}} was received."},
	types.OrderEventPaymentFailed: {"Payment failed", "Payment for order {{orderId}} did not go through: {{reason}}"},
	"confirmed":                   {"Order confirmed", "Order {{orderId}} has been confirmed by the restaurant."},
	"preparing":                   {"Order update", "Order {{orderId}} is being prepared."},
	"ready":                       {"Order ready", "Order {{orderId}} is ready for pickup."},
	"out_for_delivery":            {"On the way", "Order {{orderId}} is out for delivery."},
	"delivered":                   {"Delivered", "Order {{orderId}} has been delivered. Enjoy!"},
	"cancelled":                   {"Order cancelled", "Order {{orderId}} has been cancelled."},
}

var fallbackTemplate = messageTemplate{"Order update", "Order {{orderId}} is now {{status}}."}

// payloadFor builds the rendered notification content for an intent.
func payloadFor(intent types.SideEffectIntent) types.NotificationPayload {
	tmpl, ok := eventTemplates[intent.Event]
	if !ok {
		tmpl = fallbackTemplate
	}
	if intent.CustomTitle != "" {
		tmpl.Title = intent.CustomTitle
	}
	if intent.CustomBody != "" {
		tmpl.Body = intent.CustomBody
	}

	vars := map[string]string{
		"orderId": intent.OrderID,
		"status":  string(intent.Event),
	}
	for k, v := range intent.Data {
		vars[k] = v
	}

	return types.NotificationPayload{
		Title: Render(tmpl.Title, vars),
		Body:  Render(tmpl.Body, vars),
		Data:  intent.Data,
	}
}
