package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"ms-booking/internal/models"
	"ms-booking/internal/payment"
	"ms-booking/internal/payment/daraja"
	"ms-booking/internal/utils"
)

func (h *Handler) InitiatePayment(w http.ResponseWriter, r *http.Request) {
	var req models.PaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.BookingID == "" || req.Phone == "" {
		writeError(w, http.StatusBadRequest, "booking_id and phone are required")
		return
	}

	resp, err := h.Payments.InitiatePayment(r.Context(), req.BookingID, req.Phone)
	if err != nil {
		switch {
		case errors.Is(err, payment.ErrBookingNotFound):
			writeError(w, http.StatusNotFound, "Booking not found")
		case errors.Is(err, payment.ErrBookingNotPending):
			writeError(w, http.StatusConflict, "Booking is not pending")
		case errors.Is(err, daraja.ErrGatewayRejected):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, daraja.ErrGatewayUnavailable):
			writeError(w, http.StatusBadGateway, "Payment gateway unavailable, try again")
		default:
			h.Logger.Error("API", fmt.Sprintf("InitiatePayment: %v", err))
			writeError(w, http.StatusInternalServerError, "Failed to initiate payment")
		}
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// PaymentCallback receives the gateway's asynchronous payment result. It
// acknowledges with 200 whenever the notification was conclusively handled
// (including duplicates and flagged mismatches) so the gateway stops
// retrying; only a true processing failure gets a non-2xx.
func (h *Handler) PaymentCallback(w http.ResponseWriter, r *http.Request) {
	var callback models.STKCallback
	if err := json.NewDecoder(r.Body).Decode(&callback); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid callback format")
		return
	}

	stk := callback.Body.StkCallback
	if stk.CheckoutRequestID == "" {
		writeError(w, http.StatusBadRequest, "Invalid callback format")
		return
	}

	notification := models.PaymentNotification{
		CheckoutSessionID: stk.CheckoutRequestID,
		ResultCode:        stk.ResultCode,
		ResultDesc:        stk.ResultDesc,
	}

	for _, item := range stk.CallbackMetadata.Item {
		switch item.Name {
		case "Amount":
			if v, ok := item.Value.(float64); ok {
				notification.Amount = int64(v)
			}
		case "MpesaReceiptNumber":
			if v, ok := item.Value.(string); ok {
				notification.TransactionID = v
			}
		}
	}

	if stk.ResultCode == 0 && (notification.Amount == 0 || notification.TransactionID == "") {
		h.Logger.Warn("API", fmt.Sprintf("PaymentCallback: incomplete metadata for session %s", stk.CheckoutRequestID))
		writeError(w, http.StatusBadRequest, "Incomplete callback metadata")
		return
	}

	outcome, err := h.Payments.HandleNotification(r.Context(), notification)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("PaymentCallback: processing failed for session %s: %v", stk.CheckoutRequestID, err))
		writeError(w, http.StatusInternalServerError, "Failed to process callback")
		return
	}

	writeJSON(w, http.StatusOK, utils.SuccessResponse("Callback processed", map[string]string{
		"result": string(outcome),
	}))
}

func (h *Handler) ListPaymentAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.Payments.ListAlerts(r.Context())
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ListPaymentAlerts: %v", err))
		writeError(w, http.StatusInternalServerError, "Failed to fetch alerts")
		return
	}
	writeJSON(w, http.StatusOK, alerts)
}
