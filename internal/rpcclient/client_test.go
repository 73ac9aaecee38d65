package rpcclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGetSlot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Method != "getSlot" {
			t.Errorf("expected getSlot, got %s", req.Method)
		}
		json.NewEncoder(w).Encode(rpcResponse{Result: json.RawMessage(`12345`)})
	}))
	defer srv.Close()

	c := New(srv.URL, 0)
	slot, err := c.GetSlot(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if slot != 12345 {
		t.Errorf("expected 12345, got %d", slot)
	}
}

func TestGetAccountInfoAbsent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(rpcResponse{Result: json.RawMessage(`null`)})
	}))
	defer srv.Close()

	c := New(srv.URL, 0)
	acct, err := c.GetAccountInfo(context.Background(), "somepda")
	if err != nil {
		t.Fatal(err)
	}
	if acct.Exists {
		t.Error("expected account to be absent")
	}
}

func TestGetAccountInfoPresent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(rpcResponse{Result: json.RawMessage(`{"lamports":100}`)})
	}))
	defer srv.Close()

	c := New(srv.URL, 0)
	acct, err := c.GetAccountInfo(context.Background(), "somepda")
	if err != nil {
		t.Fatal(err)
	}
	if !acct.Exists {
		t.Error("expected account to be present")
	}
}

func TestRPCErrorPropagates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(rpcResponse{Error: &rpcError{Code: -1, Message: "boom"}})
	}))
	defer srv.Close()

	c := New(srv.URL, 0)
	if _, err := c.GetSlot(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
