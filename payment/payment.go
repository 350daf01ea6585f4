/*
Package payment provides executors that move money to a receiver.

PURPOSE:
  The engine only depends on the engine.Executor capability: pay this
  receiver this amount, tell me whether the money moved. This package
  supplies the two variants a deployment needs:

	Stub:    deterministic, for tests and dry runs
	Gateway: HTTP adapter for a real payment processor

  Neither is ever hard-coded into the core; the driver receives whichever
  one the shell wires in.
*/
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/warp/payout-engine/engine"
)

// =============================================================================
// STUB - deterministic executor for tests and dry runs
// =============================================================================

// Call records one Pay invocation.
type Call struct {
	Receiver engine.ReceiverID
	Amount   engine.Money
}

// Stub is a deterministic engine.Executor. By default every payment
// succeeds; set Err to fail all payments, or FailReceivers to fail
// specific ones. All calls are recorded.
type Stub struct {
	mu            sync.Mutex
	calls         []Call
	Err           error
	FailReceivers map[engine.ReceiverID]error
}

func (s *Stub) Pay(_ context.Context, receiver engine.ReceiverID, amount engine.Money) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, Call{Receiver: receiver, Amount: amount})
	if s.Err != nil {
		return s.Err
	}
	if err, ok := s.FailReceivers[receiver]; ok {
		return err
	}
	return nil
}

// Calls returns a copy of all recorded invocations.
func (s *Stub) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// =============================================================================
// GATEWAY - HTTP payment processor adapter
// =============================================================================

// GatewayConfig configures the HTTP adapter. Credentials arrive here
// explicitly at construction time; there are no package-level secrets.
type GatewayConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration // per-payment; defaults to 15s
}

// Gateway posts transfer requests to a payment processor. Amounts are
// converted to integer minor units (cents) at this boundary only; the
// engine's decimals stay exact everywhere else.
type Gateway struct {
	cfg    GatewayConfig
	client *http.Client
}

func NewGateway(cfg GatewayConfig) *Gateway {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Gateway{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

type transferRequest struct {
	Receiver    string `json:"receiver"`
	AmountCents int64  `json:"amount_cents"`
}

type transferResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Pay executes one transfer. Any transport error, non-2xx response, or
// unconfirmed status is a failure; the caller maps it to that entry's
// Failed outcome without touching the ledger.
func (g *Gateway) Pay(ctx context.Context, receiver engine.ReceiverID, amount engine.Money) error {
	body, err := json.Marshal(transferRequest{
		Receiver:    string(receiver),
		AmountCents: amount.Round(2).Shift(2).IntPart(),
	})
	if err != nil {
		return fmt.Errorf("%w: encode: %v", engine.ErrPaymentExecutionFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+"/v1/transfers", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", engine.ErrPaymentExecutionFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", engine.ErrPaymentExecutionFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: gateway returned %d: %s", engine.ErrPaymentExecutionFailed, resp.StatusCode, msg)
	}

	var tr transferResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return fmt.Errorf("%w: decode response: %v", engine.ErrPaymentExecutionFailed, err)
	}
	if tr.Status != "succeeded" {
		return fmt.Errorf("%w: status %q: %s", engine.ErrPaymentExecutionFailed, tr.Status, tr.Error)
	}
	return nil
}
