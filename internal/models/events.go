package models

import "time"

// Broker subjects
const (
	EventBookingCreated   = "booking.created"
	EventPaymentConfirmed = "payment.confirmed"
	EventBookingCancelled = "booking.cancelled"
	SubjectNotifyJobs     = "notify.jobs"
)

// NotificationJob asks one downstream channel to act on a booking event.
// Jobs are self-contained so a consumer process can run them without the
// request that produced them.
type NotificationJob struct {
	ID        string    `json:"id"`
	Event     string    `json:"event"`
	Channel   string    `json:"channel"`
	Booking   Booking   `json:"booking"`
	Attempt   int       `json:"attempt"`
	Timestamp time.Time `json:"timestamp"`
}
