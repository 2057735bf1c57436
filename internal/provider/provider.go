// Package provider contains the channel senders the dispatcher hands
// messages to, and the signature check for the provider's status
// callbacks.
package provider

import "context"

// Result is the provider's synchronous answer to one send.
//
// Accepted is false when the provider answered but refused the message;
// Error and ErrorCode then carry its reason. Transport failures are returned
// as errors instead.
type Result struct {
	ProviderRef string
	Accepted    bool
	Status      string
	ErrorCode   string
	Error       string
}

// Sender delivers one message to one phone number. Implementations make a
// single attempt and must honour ctx's deadline.
type Sender interface {
	Send(ctx context.Context, to, body string) (Result, error)
	Name() string
}
