package handlers

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/diagnosis/photo-challenges/internal/domain"
	"github.com/diagnosis/photo-challenges/internal/http/response"
	"github.com/diagnosis/photo-challenges/pkg/logger"
)

const signatureHeader = "OpenPayu-Signature"

type payuNotification struct {
	Order struct {
		OrderID      string `json:"orderId"`
		ExtOrderID   string `json:"extOrderId"`
		Status       string `json:"status"`
		TotalAmount  string `json:"totalAmount"`
		CurrencyCode string `json:"currencyCode"`
	} `json:"order"`
}

func (h *Handlers) PayUNotify(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		response.BadRequest(w, "unreadable body")
		return
	}

	if h.secondKey != "" && !validPayUSignature(r.Header.Get(signatureHeader), body, h.secondKey) {
		logger.WarnContext(r.Context(), "Rejected payment notification with bad signature")
		response.WriteError(w, http.StatusUnauthorized, "invalid signature", response.CodeInvalidSig)
		return
	}

	var p payuNotification
	if err := json.Unmarshal(body, &p); err != nil {
		response.BadRequest(w, "invalid JSON format")
		return
	}

	h.acknowledge(w, r, domain.Notification{
		Source:      domain.SourcePayU,
		OrderID:     p.Order.OrderID,
		ExtOrderID:  p.Order.ExtOrderID,
		Status:      p.Order.Status,
		TotalAmount: p.Order.TotalAmount,
		Currency:    p.Order.CurrencyCode,
		Payload:     body,
	})
}

// validPayUSignature checks a header of the form
// "sender=checkout;signature=<hex>;algorithm=MD5;content=DOCUMENT"
// against md5(body + secondKey).
func validPayUSignature(header string, body []byte, secondKey string) bool {
	var signature, algorithm string
	for _, part := range strings.Split(header, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch strings.ToLower(k) {
		case "signature":
			signature = strings.ToLower(v)
		case "algorithm":
			algorithm = strings.ToUpper(v)
		}
	}
	if signature == "" || (algorithm != "" && algorithm != "MD5") {
		return false
	}
	sum := md5.Sum(append(append([]byte{}, body...), secondKey...))
	expected := hex.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(signature), []byte(expected)) == 1
}
