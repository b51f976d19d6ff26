package qr

import (
	"testing"
	"time"

	"ms-booking/internal/models"
)

func sampleTicket(id string) models.Ticket {
	return models.Ticket{
		TicketID:  id,
		BookingID: "booking-1",
		EventID:   "event-1",
		UserID:    "user-1",
		IssuedAt:  time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC),
	}
}

func TestGenerateEncryptedQR(t *testing.T) {
	qrGen := NewQRGenerator("test-secret-key")

	qrBytes, err := qrGen.GenerateEncryptedQR(sampleTicket("ticket-1"))
	if err != nil {
		t.Fatalf("Failed to generate QR code: %v", err)
	}
	if len(qrBytes) == 0 {
		t.Error("Generated QR code is empty")
	}
}

func TestGenerateEncryptedQR_DifferentTickets(t *testing.T) {
	qrGen := NewQRGenerator("test-secret-key")

	qrBytes1, err := qrGen.GenerateEncryptedQR(sampleTicket("ticket-1"))
	if err != nil {
		t.Fatalf("Failed to generate QR code for ticket-1: %v", err)
	}
	qrBytes2, err := qrGen.GenerateEncryptedQR(sampleTicket("ticket-2"))
	if err != nil {
		t.Fatalf("Failed to generate QR code for ticket-2: %v", err)
	}

	if string(qrBytes1) == string(qrBytes2) {
		t.Error("QR codes for different tickets should be different")
	}
}

func TestGenerateEncryptedQR_RandomIV(t *testing.T) {
	qrGen := NewQRGenerator("test-secret-key")
	ticket := sampleTicket("ticket-1")

	qrBytes1, err := qrGen.GenerateEncryptedQR(ticket)
	if err != nil {
		t.Fatalf("Failed to generate first QR code: %v", err)
	}
	qrBytes2, err := qrGen.GenerateEncryptedQR(ticket)
	if err != nil {
		t.Fatalf("Failed to generate second QR code: %v", err)
	}

	// The random IV makes every encryption unique, even for the same ticket
	if string(qrBytes1) == string(qrBytes2) {
		t.Error("QR codes should differ due to the random IV in encryption")
	}
}

func TestGenerateEncryptedQR_DifferentSecrets(t *testing.T) {
	ticket := sampleTicket("ticket-1")

	qrBytes1, err := NewQRGenerator("secret-one").GenerateEncryptedQR(ticket)
	if err != nil {
		t.Fatalf("Failed to generate QR code with first secret: %v", err)
	}
	qrBytes2, err := NewQRGenerator("secret-two").GenerateEncryptedQR(ticket)
	if err != nil {
		t.Fatalf("Failed to generate QR code with second secret: %v", err)
	}

	if string(qrBytes1) == string(qrBytes2) {
		t.Error("QR codes generated with different secrets should be different")
	}
}
