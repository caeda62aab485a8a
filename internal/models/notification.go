package models

// NotificationEvent names the outbound events the signing workflow emits.
// Delivery is a fire-and-observe concern; failures never roll back signing.
type NotificationEvent string

const (
	NotificationSignatureRequested NotificationEvent = "SIGNATURE_REQUESTED"
	NotificationSignatureReceived  NotificationEvent = "SIGNATURE_RECEIVED"
	NotificationYourTurn           NotificationEvent = "YOUR_TURN"
	NotificationAllSigned          NotificationEvent = "ALL_SIGNED"
	NotificationSigningCancelled   NotificationEvent = "SIGNING_CANCELLED"
)

// Notification is one outbound message addressed to a single recipient.
type Notification struct {
	Event       NotificationEvent `json:"event"`
	RecipientID string            `json:"recipient_id"`
	DocumentID  string            `json:"document_id"`
	Message     string            `json:"message,omitempty"`
}
