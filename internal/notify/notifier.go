// README: Client for the external delivery/order-source collaborator (ready notifications, order close).
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"expo/internal/types"
)

// OrderError reports a per-order notification failure. Local state changes are
// never rolled back over these; the text is persisted on the order instead.
type OrderError struct {
	OrderID types.ID
	Message string
}

// Notifier announces ready orders to the upstream delivery source.
type Notifier interface {
	OrdersReady(ctx context.Context, ids []types.ID) []OrderError
}

// Closer asks the upstream order source to close an order before local deletion.
type Closer interface {
	CloseOrder(ctx context.Context, id types.ID) error
}

type HTTPClient struct {
	baseURL string
	client  *http.Client
}

func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type readyRequest struct {
	OrderIDs []types.ID `json:"order_ids"`
}

type readyResponse struct {
	Errors []struct {
		OrderID string `json:"order_id"`
		Message string `json:"message"`
	} `json:"errors"`
}

func (c *HTTPClient) OrdersReady(ctx context.Context, ids []types.ID) []OrderError {
	if len(ids) == 0 {
		return nil
	}
	body, _ := json.Marshal(readyRequest{OrderIDs: ids})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/orders/ready", bytes.NewReader(body))
	if err != nil {
		return allFailed(ids, err.Error())
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return allFailed(ids, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return allFailed(ids, fmt.Sprintf("notify upstream returned %d", resp.StatusCode))
	}

	var out readyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		// 2xx with an unreadable body: the notification went through.
		return nil
	}
	var errs []OrderError
	for _, e := range out.Errors {
		errs = append(errs, OrderError{OrderID: types.ID(e.OrderID), Message: e.Message})
	}
	return errs
}

func (c *HTTPClient) CloseOrder(ctx context.Context, id types.ID) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/orders/"+string(id)+"/close", nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("close upstream returned %d", resp.StatusCode)
	}
	return nil
}

func allFailed(ids []types.ID, msg string) []OrderError {
	errs := make([]OrderError, len(ids))
	for i, id := range ids {
		errs[i] = OrderError{OrderID: id, Message: msg}
	}
	return errs
}

// Nop is used when no upstream is configured (counter-only stores, tests).
type Nop struct{}

func (Nop) OrdersReady(context.Context, []types.ID) []OrderError { return nil }
func (Nop) CloseOrder(context.Context, types.ID) error           { return nil }
