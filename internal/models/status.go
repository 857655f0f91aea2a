package models

// Order statuses (business lifecycle)
const (
	OrderStatusPending    = "pending"
	OrderStatusPaid       = "paid"
	OrderStatusProcessing = "processing"
	OrderStatusShipped    = "shipped"
	OrderStatusDelivered  = "delivered"
	OrderStatusCancelled  = "cancelled"
	OrderStatusRefunded   = "refunded"
)

// Payment statuses (gateway-facing lifecycle)
const (
	PaymentStatusPending  = "pending"
	PaymentStatusPaid     = "paid"
	PaymentStatusFailed   = "failed"
	PaymentStatusRefunded = "refunded"
)

// Fulfillment statuses, in tracking order
const (
	FulfillmentUnfulfilled    = "unfulfilled"
	FulfillmentProcessing     = "processing"
	FulfillmentShipped        = "shipped"
	FulfillmentInTransit      = "in_transit"
	FulfillmentOutForDelivery = "out_for_delivery"
	FulfillmentDelivered      = "delivered"
	FulfillmentException      = "exception"
	FulfillmentReturned       = "returned"
)

// Cart statuses
const (
	CartStatusOpen      = "open"
	CartStatusAbandoned = "abandoned"
	CartStatusRecovered = "recovered"
	CartStatusCompleted = "completed"
)

var validOrderNext = map[string]map[string]bool{
	OrderStatusPending:    {OrderStatusPaid: true, OrderStatusCancelled: true},
	OrderStatusPaid:       {OrderStatusProcessing: true, OrderStatusCancelled: true, OrderStatusRefunded: true},
	OrderStatusProcessing: {OrderStatusShipped: true, OrderStatusRefunded: true},
	OrderStatusShipped:    {OrderStatusDelivered: true},
	OrderStatusDelivered:  {},
	OrderStatusCancelled:  {},
	OrderStatusRefunded:   {},
}

// CanTransition reports whether an order may move from one status to another.
// Transitions are the only way status fields change; there are no direct
// writes outside the store's transition statements.
func CanTransition(from, to string) bool {
	return validOrderNext[from][to]
}

var validFulfillmentNext = map[string]map[string]bool{
	FulfillmentUnfulfilled:    {FulfillmentProcessing: true, FulfillmentException: true},
	FulfillmentProcessing:     {FulfillmentShipped: true, FulfillmentException: true},
	FulfillmentShipped:        {FulfillmentInTransit: true, FulfillmentException: true},
	FulfillmentInTransit:      {FulfillmentOutForDelivery: true, FulfillmentException: true},
	FulfillmentOutForDelivery: {FulfillmentDelivered: true, FulfillmentException: true},
	FulfillmentDelivered:      {FulfillmentReturned: true},
	FulfillmentException:      {FulfillmentProcessing: true, FulfillmentReturned: true},
	FulfillmentReturned:       {},
}

// CanTransitionFulfillment reports whether a fulfillment status change is legal.
func CanTransitionFulfillment(from, to string) bool {
	return validFulfillmentNext[from][to]
}
