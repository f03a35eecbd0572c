package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/yuzvak/crowdfund-service/internal/domain/crowdfund"
)

// SenderHeader carries the caller identity authenticated by the gateway in front of the service.
const SenderHeader = "X-Sender"

type fundsRequest struct {
	Funds []crowdfund.Coin `json:"funds,omitempty"`
}

func senderOf(r *http.Request) (string, map[string]string) {
	sender := strings.TrimSpace(r.Header.Get(SenderHeader))
	if sender == "" {
		return "", map[string]string{"sender": SenderHeader + " header is required"}
	}
	return sender, nil
}

// decodeBody accepts an empty body and leaves v untouched in that case.
func decodeBody(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}

// pagination reads start_after and limit from the query string.
func pagination(r *http.Request) (string, *uint32, error) {
	startAfter := r.URL.Query().Get("start_after")

	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return startAfter, nil, nil
	}
	n, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return "", nil, fmt.Errorf("limit must be an unsigned integer")
	}
	limit := uint32(n)
	return startAfter, &limit, nil
}
