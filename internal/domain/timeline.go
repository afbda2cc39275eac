package domain

import "time"

// TimelineEvent — запись в истории прохождения заказом производственных этапов.
type TimelineEvent struct {
	OrderID  string      `json:"orderId"`
	Type     string      `json:"type"`
	From     OrderStatus `json:"from,omitempty"`
	To       OrderStatus `json:"to,omitempty"`
	Reason   string      `json:"reason,omitempty"`
	Occurred time.Time   `json:"occurred"`
}

const (
	TimelineOrderSubmitted = "submitted"
	TimelineStatusChanged  = "status_changed"
	TimelineOrderDeleted   = "deleted"
)
