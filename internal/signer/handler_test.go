package signer

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/stablebridge/gateway-minter/internal/attester"
	"github.com/stablebridge/gateway-minter/internal/wire"
)

// stubDecrypter returns the ciphertext unchanged, standing in for KMS.
type stubDecrypter struct {
	err error
}

func (s *stubDecrypter) Decrypt(_ context.Context, ciphertext []byte) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([]byte, len(ciphertext))
	copy(out, ciphertext)
	return out, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *SessionManager, wire.Identity, string) {
	t.Helper()

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	var id wire.Identity
	copy(id[12:], crypto.PubkeyToAddress(key.PublicKey).Bytes())

	session := NewSessionManager(time.Hour)
	srv := httptest.NewServer(NewHandler(session, &stubDecrypter{}).Mux())
	t.Cleanup(srv.Close)

	ciphertext := base64.StdEncoding.EncodeToString(crypto.FromECDSA(key))
	return srv, session, id, ciphertext
}

func postJSON(t *testing.T, url string, v any) *http.Response {
	t.Helper()
	body, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	return resp
}

func TestHandler_ActivateAndSign(t *testing.T) {
	srv, _, id, ciphertext := newTestServer(t)

	resp := postJSON(t, srv.URL+"/v1/session", activateRequest{
		KeyCiphertext: ciphertext,
		MaxValue:      "1000000",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("activate: status %d, want 204", resp.StatusCode)
	}

	raw := testSetBytes(t, 100)
	resp = postJSON(t, srv.URL+"/v1/sign", signRequest{Attestation: hex.EncodeToString(raw)})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("sign: status %d, want 200", resp.StatusCode)
	}

	var out signResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	sig, err := hex.DecodeString(out.Signature)
	if err != nil {
		t.Fatalf("signature hex: %v", err)
	}
	if _, err := attester.Verify(raw, sig, []wire.Identity{id}); err != nil {
		t.Fatalf("returned signature does not verify: %v", err)
	}
}

func TestHandler_SignWithoutSession(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	raw := testSetBytes(t, 100)
	resp := postJSON(t, srv.URL+"/v1/sign", signRequest{Attestation: hex.EncodeToString(raw)})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status %d, want 409", resp.StatusCode)
	}
}

func TestHandler_StatusAndDestroy(t *testing.T) {
	srv, _, _, ciphertext := newTestServer(t)

	resp := postJSON(t, srv.URL+"/v1/session", activateRequest{
		KeyCiphertext: ciphertext,
		MaxValue:      "500",
	})
	resp.Body.Close()

	resp, err := http.Get(srv.URL + "/v1/session")
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	var st statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	resp.Body.Close()
	if !st.Active || st.MaxValue != "500" || st.Identity == "" {
		t.Fatalf("unexpected status: %+v", st)
	}

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/v1/session", nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("destroy: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("destroy: status %d, want 204", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/v1/session")
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	resp.Body.Close()
	if st.Active {
		t.Fatal("session still active after destroy")
	}
}

func TestHandler_InvalidMaxValue(t *testing.T) {
	srv, _, _, ciphertext := newTestServer(t)

	resp := postJSON(t, srv.URL+"/v1/session", activateRequest{
		KeyCiphertext: ciphertext,
		MaxValue:      "not-a-number",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", resp.StatusCode)
	}
}
