package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mmeshcher/paylink-service/internal/signature"
)

func testSigner() *signature.Signer {
	return signature.NewSigner("TestTerminal", "test-password", signature.KeySortByte)
}

func TestInitPayment_SBP(t *testing.T) {
	signer := testSigner()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/Init" {
			t.Fatalf("path = %s, want /Init", r.URL.Path)
		}

		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode payload: %v", err)
		}

		wantToken := signer.InitToken(880000, "20240501_001")
		if payload["Token"] != wantToken {
			t.Fatalf("token = %v, want %v", payload["Token"], wantToken)
		}
		if payload["TerminalKey"] != "TestTerminal" {
			t.Fatalf("terminal key = %v", payload["TerminalKey"])
		}
		if payload["PayType"] != "SBP" {
			t.Fatalf("pay type = %v, want SBP", payload["PayType"])
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"Success":    true,
			"PaymentId":  3418974344,
			"PaymentURL": "https://qr.example/pay/1",
		})
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "TestTerminal", signer)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	res, err := client.InitPayment(ctx, InitRequest{
		Amount:  880000,
		OrderID: "20240501_001",
		PayType: "SBP",
	})
	if err != nil {
		t.Fatalf("InitPayment error: %v", err)
	}
	if res.PaymentID != "3418974344" {
		t.Fatalf("payment id = %s, want 3418974344", res.PaymentID)
	}
	if res.PaymentURL != "https://qr.example/pay/1" {
		t.Fatalf("payment url = %s", res.PaymentURL)
	}
}

func TestInitPayment_NonSBPUsesPayloadToken(t *testing.T) {
	signer := testSigner()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode payload: %v", err)
		}

		got, _ := payload["Token"].(string)
		if got == "" {
			t.Fatalf("token missing in payload")
		}
		// Подпись должна сходиться по полному payload без Token/Receipt.
		if want := signer.PayloadToken(payload); got != want {
			t.Fatalf("token = %s, want %s", got, want)
		}
		if got == signer.InitToken(880000, "20240501_002") {
			t.Fatalf("non-SBP Init must not use the short token formula")
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"Success":         true,
			"PaymentId":       "12345",
			"ConfirmationURL": "https://pay.example/2",
		})
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "TestTerminal", signer)

	res, err := client.InitPayment(context.Background(), InitRequest{
		Amount:  880000,
		OrderID: "20240501_002",
		Email:   "buyer@example.com",
		Receipt: map[string]any{
			"Items": []any{map[string]any{"Name": "box", "Amount": 880000}},
		},
	})
	if err != nil {
		t.Fatalf("InitPayment error: %v", err)
	}
	if res.PaymentURL != "https://pay.example/2" {
		t.Fatalf("payment url = %s, want ConfirmationURL fallback", res.PaymentURL)
	}
}

func TestInitPayment_BankError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"Success":   false,
			"ErrorCode": "331",
			"Message":   "Wrong params",
			"Details":   "Terminal not found",
		})
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "TestTerminal", testSigner())

	_, err := client.InitPayment(context.Background(), InitRequest{
		Amount:  100,
		OrderID: "20240501_003",
		PayType: "SBP",
	})

	var gwErr *Error
	if !errors.As(err, &gwErr) {
		t.Fatalf("expected *gateway.Error, got %v", err)
	}
	if gwErr.Code != "331" || gwErr.Message != "Wrong params" {
		t.Fatalf("unexpected error: %+v", gwErr)
	}
}

func TestInitPayment_MissingPaymentURL(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"Success":   true,
			"PaymentId": 1,
		})
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "TestTerminal", testSigner())

	_, err := client.InitPayment(context.Background(), InitRequest{
		Amount:  100,
		OrderID: "20240501_004",
		PayType: "SBP",
	})

	var gwErr *Error
	if !errors.As(err, &gwErr) {
		t.Fatalf("expected *gateway.Error for missing URL, got %v", err)
	}
}

func TestGetState_OK(t *testing.T) {
	signer := testSigner()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/GetState" {
			t.Fatalf("path = %s, want /GetState", r.URL.Path)
		}

		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		if want := signer.StateToken("3418974344"); payload["Token"] != want {
			t.Fatalf("token = %v, want %v", payload["Token"], want)
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"Success": true,
			"Status":  "CONFIRMED",
		})
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "TestTerminal", signer)

	status, err := client.GetState(context.Background(), "3418974344")
	if err != nil {
		t.Fatalf("GetState error: %v", err)
	}
	if status != "CONFIRMED" {
		t.Fatalf("status = %s, want CONFIRMED", status)
	}
}

func TestCheckOrder_ReturnsLatestPaymentStatus(t *testing.T) {
	signer := testSigner()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/CheckOrder" {
			t.Fatalf("path = %s, want /CheckOrder", r.URL.Path)
		}

		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		if want := signer.CheckOrderToken("20240501_001"); payload["Token"] != want {
			t.Fatalf("token = %v, want %v", payload["Token"], want)
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"Success": true,
			"Payments": []map[string]any{
				{"PaymentId": 1, "Status": "REJECTED"},
				{"PaymentId": 2, "Status": "CONFIRMED"},
			},
		})
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "TestTerminal", signer)

	status, err := client.CheckOrder(context.Background(), "20240501_001")
	if err != nil {
		t.Fatalf("CheckOrder error: %v", err)
	}
	if status != "CONFIRMED" {
		t.Fatalf("status = %s, want CONFIRMED", status)
	}
}

func TestClient_Timeout(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "TestTerminal", testSigner())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := client.GetState(ctx, "1"); err == nil {
		t.Fatalf("expected timeout error")
	}
}
