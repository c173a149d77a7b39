package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMock_SubmitConfirmBalance(t *testing.T) {
	ctx := context.Background()
	m := NewMock("platform")
	ref, err := m.Submit(ctx, Submission{SessionID: "s1", ContentID: "Article-1", Amount: 1_000_000, PlatformFee: 20_000})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	again, _ := m.Submit(ctx, Submission{SessionID: "s1", ContentID: "article-1", Amount: 1_000_000, PlatformFee: 20_000})
	if again != ref {
		t.Fatalf("resubmission must return the same ref")
	}
	if ok, err := m.Confirm(ctx, ref); err != nil || !ok {
		t.Fatalf("Confirm = %v, %v", ok, err)
	}
	if ok, _ := m.Confirm(ctx, "0xdead"); ok {
		t.Fatalf("unknown ref confirmed")
	}
	if b, _ := m.GetBalance(ctx, "platform"); b.Int64() != 20_000 {
		t.Fatalf("platform balance = %s", b)
	}
	if b, _ := m.GetBalance(ctx, "article-1"); b.Int64() != 980_000 {
		t.Fatalf("content balance = %s", b)
	}
	if _, err := m.Submit(ctx, Submission{SessionID: "s2", Amount: 0}); err == nil {
		t.Fatalf("zero amount accepted")
	}
}

// rpcServer answers JSON-RPC calls from a fixed table.
func rpcServer(t *testing.T, results map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
			return
		}
		res, ok := results[req.Method]
		w.Header().Set("Content-Type", "application/json")
		if !ok {
			_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":` + string(req.ID) + `,"error":{"code":-32601,"message":"method not found"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":` + string(req.ID) + `,"result":` + res + `}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

const txHash = "0x1111111111111111111111111111111111111111111111111111111111111111"

func receipt(status string) string {
	return `{
		"type":"0x0","status":"` + status + `","cumulativeGasUsed":"0x5208",
		"logsBloom":"0x` + strings.Repeat("0", 512) + `","logs":[],
		"transactionHash":"` + txHash + `","contractAddress":null,"gasUsed":"0x5208",
		"effectiveGasPrice":"0x1","blockHash":"` + txHash + `","blockNumber":"0x1","transactionIndex":"0x0"
	}`
}

func TestRPC_SubmitConfirmBalance(t *testing.T) {
	ctx := context.Background()
	srv := rpcServer(t, map[string]string{
		SubmitMethod:                `"` + txHash + `"`,
		"eth_getTransactionReceipt": receipt("0x1"),
		"eth_getBalance":            `"0x3e8"`,
	})
	c, err := DialRPC(ctx, srv.URL)
	if err != nil {
		t.Fatalf("DialRPC: %v", err)
	}
	defer c.Close()

	ref, err := c.Submit(ctx, Submission{SessionID: "s1", Amount: 5})
	if err != nil || ref != txHash {
		t.Fatalf("Submit = %q, %v", ref, err)
	}
	if ok, err := c.Confirm(ctx, ref); err != nil || !ok {
		t.Fatalf("Confirm = %v, %v", ok, err)
	}
	bal, err := c.GetBalance(ctx, "0x00000000000000000000000000000000000000aa")
	if err != nil || bal.Int64() != 1000 {
		t.Fatalf("GetBalance = %v, %v", bal, err)
	}
	if _, err := c.GetBalance(ctx, "not-an-address"); err == nil {
		t.Fatalf("bad address accepted")
	}
}

func TestRPC_ConfirmPendingAndReverted(t *testing.T) {
	ctx := context.Background()
	pending := rpcServer(t, map[string]string{"eth_getTransactionReceipt": "null"})
	c, _ := DialRPC(ctx, pending.URL)
	if ok, err := c.Confirm(ctx, txHash); ok || err != nil {
		t.Fatalf("pending: %v, %v", ok, err)
	}

	reverted := rpcServer(t, map[string]string{"eth_getTransactionReceipt": receipt("0x0")})
	c, _ = DialRPC(ctx, reverted.URL)
	if _, err := c.Confirm(ctx, txHash); !errors.Is(err, ErrReverted) {
		t.Fatalf("reverted: %v", err)
	}
}

func TestDialRPC_EmptyURL(t *testing.T) {
	if _, err := DialRPC(context.Background(), " "); err == nil {
		t.Fatalf("expected error")
	}
}
