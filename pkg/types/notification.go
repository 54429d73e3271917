package types

type NotificationChannel string

const (
	NotificationChannelPush  NotificationChannel = "push"
	NotificationChannelEmail NotificationChannel = "email"
)

// NotificationPayload is the ephemeral per-dispatch message content. It is
// never persisted.
type NotificationPayload struct {
	Title       string            `json:"title"`
	Body        string            `json:"body"`
	ImageURL    string            `json:"image_url,omitempty"`
	ClickAction string            `json:"click_action,omitempty"`
	Data        map[string]string `json:"data,omitempty"`
}

type IntentKind string

const (
	IntentKindNotifyOrderEvent IntentKind = "notify_order_event"
	IntentKindFraudAlert       IntentKind = "fraud_alert"
)

// OrderEvent names the order lifecycle moment a notification is about. For
// status-change intents it is the new status value.
type OrderEvent string

const (
	OrderEventPaid          OrderEvent = "paid"
	OrderEventPaymentFailed OrderEvent = "payment_failed"
)

// SideEffectIntent describes a desired effect decoupled from its execution.
// Intents produced by the reconciler are queued and executed by the worker so
// that webhook acknowledgment does not wait on delivery.
//
// Target resolution: explicit Tokens/Topic/Condition win when set; otherwise
// the dispatcher resolves the owning user's device tokens and channel
// preferences.
type SideEffectIntent struct {
	Kind    IntentKind `json:"kind"`
	OrderID string     `json:"order_id,omitempty"`
	UserID  string     `json:"user_id,omitempty"`
	Event   OrderEvent `json:"event,omitempty"`

	Tokens    []string `json:"tokens,omitempty"`
	Topic     string   `json:"topic,omitempty"`
	Condition string   `json:"condition,omitempty"`

	// CustomTitle/CustomBody override the default template for the event.
	CustomTitle string            `json:"custom_title,omitempty"`
	CustomBody  string            `json:"custom_body,omitempty"`
	Data        map[string]string `json:"data,omitempty"`
}

// ChannelResult is the outcome of one channel attempt within a dispatch.
type ChannelResult struct {
	Channel   NotificationChannel `json:"channel"`
	Recipient string              `json:"recipient"`
	Success   bool                `json:"success"`
	Error     string              `json:"error,omitempty"`
}

// DispatchReport collects per-channel results for a single dispatch call.
// A failed channel never fails the dispatch as a whole.
type DispatchReport struct {
	Results []ChannelResult `json:"results"`
}

func (r *DispatchReport) Add(res ChannelResult) {
	r.Results = append(r.Results, res)
}

func (r *DispatchReport) SuccessCount() int {
	n := 0
	for _, res := range r.Results {
		if res.Success {
			n++
		}
	}
	return n
}

func (r *DispatchReport) FailureCount() int {
	return len(r.Results) - r.SuccessCount()
}

// BulkEmailResult is the per-recipient outcome of a bulk email send.
type BulkEmailResult struct {
	Email   string `json:"email"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}
