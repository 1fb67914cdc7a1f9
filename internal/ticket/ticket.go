// Package ticket issues unique ticket credentials and renders their
// scannable payloads.
package ticket

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/felicity-portal/enrollment/internal/model"
	"github.com/google/uuid"
	qrcode "github.com/skip2/go-qrcode"
)

// NewID generates a ticket id of the form FEL-<TYP>-<8 uppercase hex>,
// e.g. FEL-ATT-9F3A01BC. Generation alone does not guarantee uniqueness;
// the storage layer's unique constraint does, and callers retry on a
// collision.
func NewID(eventType model.EventType) string {
	prefix := strings.ToUpper(string(eventType))
	if len(prefix) > 3 {
		prefix = prefix[:3]
	}
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:8])
	return fmt.Sprintf("FEL-%s-%s", prefix, suffix)
}

// OrderSummaryLine is the condensed per-item view embedded in a
// merchandise ticket's payload.
type OrderSummaryLine struct {
	Name     string `json:"name"`
	Quantity int    `json:"qty"`
}

// Payload is the structured credential content handed to the rendering
// collaborator. It is what a check-in scanner reads back.
type Payload struct {
	TicketID      string             `json:"ticket_id"`
	EventID       string             `json:"event_id"`
	ParticipantID string             `json:"participant_id"`
	EventName     string             `json:"event_name"`
	Order         []OrderSummaryLine `json:"order,omitempty"`
}

// NewPayload builds the credential payload for a confirmed registration.
func NewPayload(event *model.Event, reg *model.Registration) Payload {
	p := Payload{
		TicketID:      reg.TicketID,
		EventID:       event.ID,
		ParticipantID: reg.ParticipantID,
		EventName:     event.Name,
	}
	if reg.Order != nil {
		for _, line := range reg.Order.Lines {
			p.Order = append(p.Order, OrderSummaryLine{Name: line.Name, Quantity: line.Quantity})
		}
	}
	return p
}

// RenderQR encodes the payload as a 256px PNG QR code and returns it as a
// data URL, ready for a client to display.
func RenderQR(p Payload) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshal ticket payload: %w", err)
	}
	png, err := qrcode.Encode(string(data), qrcode.Medium, 256)
	if err != nil {
		return "", fmt.Errorf("encode qr: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
