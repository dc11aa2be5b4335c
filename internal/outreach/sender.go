// Package outreach defines the delivery port for rendered messages.
// Delivery confirmation is out of scope; the sequence only records the
// immediate result of handing the message to a channel.
package outreach

import "context"

// Message is one rendered outreach touch ready for a channel.
type Message struct {
	LeadName string
	Phone    string
	Email    *string
	Subject  string
	Body     string
	CTALink  string
	StepType string
}

// Sender hands a message to a delivery channel and reports the immediate
// status: queued, sent or failed.
type Sender interface {
	Send(ctx context.Context, msg Message) (string, error)
}
