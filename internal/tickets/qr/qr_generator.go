package qr

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"

	"github.com/skip2/go-qrcode"

	"ms-booking/internal/models"
)

type QRGenerator struct {
	secret []byte
}

func NewQRGenerator(secret string) *QRGenerator {
	hashed := sha256.Sum256([]byte(secret)) // normalize to 32 bytes
	return &QRGenerator{secret: hashed[:]}
}

// GenerateEncryptedQR encodes the ticket as an AES-encrypted QR PNG so gate
// scanners holding the secret can verify it offline.
func (q *QRGenerator) GenerateEncryptedQR(ticket models.Ticket) ([]byte, error) {
	payload := struct {
		TicketID  string `json:"ticket_id"`
		BookingID string `json:"booking_id"`
		EventID   string `json:"event_id"`
		UserID    string `json:"user_id"`
	}{
		TicketID:  ticket.TicketID,
		BookingID: ticket.BookingID,
		EventID:   ticket.EventID,
		UserID:    ticket.UserID,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	encrypted, err := encryptAES(data, q.secret)
	if err != nil {
		return nil, err
	}

	return qrcode.Encode(encrypted, qrcode.Medium, 256)
}

func encryptAES(data []byte, key []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	ciphertext := make([]byte, aes.BlockSize+len(data))
	iv := ciphertext[:aes.BlockSize]

	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", err
	}

	stream := cipher.NewCFBEncrypter(block, iv)
	stream.XORKeyStream(ciphertext[aes.BlockSize:], data)

	return base64.URLEncoding.EncodeToString(ciphertext), nil
}
