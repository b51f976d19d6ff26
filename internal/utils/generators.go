package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

func GeneratePaymentID() string {
	timestamp := time.Now().Unix()
	randomNum, _ := rand.Int(rand.Reader, big.NewInt(999999))
	return fmt.Sprintf("pay_%d_%06d", timestamp, randomNum.Int64())
}

func GenerateAlertID() string {
	timestamp := time.Now().Unix()
	randomNum, _ := rand.Int(rand.Reader, big.NewInt(999999))
	return fmt.Sprintf("alert_%d_%06d", timestamp, randomNum.Int64())
}
