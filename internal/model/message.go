package model

// ItemChange one item-level status change within an order
type ItemChange struct {
	ProductKey string `json:"product_key"`
	NewStatus  string `json:"new_status"`
}

// DispatchMessage notification dispatch job for MQ
type DispatchMessage struct {
	EventKey  string       `json:"event_key"`  // e.g. "item-confirmed", "step-shipped"
	StepLabel string       `json:"step_label"` // human-readable event label
	OrderNo   string       `json:"order_no"`   // Order number
	Changed   []ItemChange `json:"changed"`    // Affected items
	ActorKey  string       `json:"actor_key"`  // User whose action caused the event
	Timestamp int64        `json:"timestamp"`  // Unix timestamp
	TraceID   string       `json:"trace_id"`   // Trace ID
}

// BridgeMessage push payload routed through the native bridge queue
type BridgeMessage struct {
	Token     string `json:"token"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	Timestamp int64  `json:"timestamp"`
}
