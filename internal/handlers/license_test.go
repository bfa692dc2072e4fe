package handlers

import (
	"net/http"
	"testing"

	"github.com/stripe/stripe-go/v82"

	"intently.app/cloud/internal/models"
	"intently.app/cloud/internal/testutil"
)

func TestResolveLicense_Found(t *testing.T) {
	store := testutil.NewStorage()
	lic := testutil.NewLicense("U1", "cus_1", models.StatusActive)
	testutil.SaveLicense(t, store, lic)
	server := newTestServer(store, testutil.NewFakeGateway())

	w := postJSON(t, server, "/api/v1/licenses/resolve", ResolveRequest{UserID: "U1"})

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	var response ResolveResponse
	decodeJSON(t, w, &response)
	if !response.Found {
		t.Fatal("Expected found=true")
	}
	if response.License.Key != lic.Key {
		t.Errorf("Expected key %q, got %q", lic.Key, response.License.Key)
	}
}

func TestResolveLicense_Absent(t *testing.T) {
	server := newTestServer(testutil.NewStorage(), testutil.NewFakeGateway())

	w := postJSON(t, server, "/api/v1/licenses/resolve", ResolveRequest{UserID: "nobody"})

	if w.Code != http.StatusOK {
		t.Fatalf("Absence must not be an error, got status %d", w.Code)
	}

	var response ResolveResponse
	decodeJSON(t, w, &response)
	if response.Found || response.License != nil {
		t.Errorf("Expected absence, got %+v", response)
	}
}

func TestResolveLicense_MissingFields(t *testing.T) {
	server := newTestServer(testutil.NewStorage(), testutil.NewFakeGateway())

	w := postJSON(t, server, "/api/v1/licenses/resolve", ResolveRequest{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
}

func TestResolveLicense_ProviderDown(t *testing.T) {
	gateway := testutil.NewFakeGateway()
	gateway.ListErr = errProviderDown
	server := newTestServer(testutil.NewStorage(), gateway)

	w := postJSON(t, server, "/api/v1/licenses/resolve", ResolveRequest{UserID: "U1"})
	if w.Code != http.StatusBadGateway {
		t.Errorf("Expected status %d, got %d", http.StatusBadGateway, w.Code)
	}
}

func TestValidateLicense(t *testing.T) {
	store := testutil.NewStorage()
	active := testutil.NewLicense("U1", "cus_1", models.StatusActive)
	canceled := testutil.NewLicense("U2", "cus_2", models.StatusCanceled)
	testutil.SaveLicense(t, store, active)
	testutil.SaveLicense(t, store, canceled)
	server := newTestServer(store, testutil.NewFakeGateway())

	cases := []struct {
		name        string
		licenseKey  string
		wantValid   bool
		wantMessage string
	}{
		{"valid license", active.Key, true, "License valid"},
		{"canceled license", canceled.Key, false, "License not active"},
		{"unknown key", "ITP-0-NOPE", false, "License not found"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := postJSON(t, server, "/api/v1/licenses/validate", ValidateRequest{LicenseKey: tc.licenseKey})

			if w.Code != http.StatusOK {
				t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
			}

			var response ValidateResponse
			decodeJSON(t, w, &response)
			if response.Valid != tc.wantValid {
				t.Errorf("Expected valid=%v, got %v", tc.wantValid, response.Valid)
			}
			if response.Message != tc.wantMessage {
				t.Errorf("Expected message %q, got %q", tc.wantMessage, response.Message)
			}
		})
	}
}

func TestReconcileLicense_Eligible(t *testing.T) {
	store := testutil.NewStorage()
	gateway := testutil.NewFakeGateway()
	gateway.AddSubscription("sub_1", "cus_1", stripe.SubscriptionStatusActive)
	gateway.AddCheckoutSession("cs_1", "U1", "sub_1")
	server := newTestServer(store, gateway)

	w := postJSON(t, server, "/api/v1/licenses/reconcile",
		ReconcileRequest{SessionID: "cs_1", UserID: "U1"})

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	var response ReconcileResponse
	decodeJSON(t, w, &response)
	if !response.Eligible || response.License == nil {
		t.Fatalf("Expected an eligible result, got %+v", response)
	}
	if response.License.UserID != "U1" || response.License.Status != models.StatusActive {
		t.Errorf("Unexpected license: %+v", response.License)
	}
}

func TestReconcileLicense_NotEligible(t *testing.T) {
	gateway := testutil.NewFakeGateway()
	gateway.AddSubscription("sub_1", "cus_1", stripe.SubscriptionStatusActive)
	session := gateway.AddCheckoutSession("cs_1", "U1", "sub_1")
	session.PaymentStatus = stripe.CheckoutSessionPaymentStatusUnpaid
	server := newTestServer(testutil.NewStorage(), gateway)

	w := postJSON(t, server, "/api/v1/licenses/reconcile",
		ReconcileRequest{SessionID: "cs_1", UserID: "U1"})

	if w.Code != http.StatusOK {
		t.Fatalf("Not-eligible is a normal result, got status %d", w.Code)
	}

	var response ReconcileResponse
	decodeJSON(t, w, &response)
	if response.Eligible {
		t.Error("Expected eligible=false")
	}
	if response.License != nil {
		t.Error("Expected no license to be created")
	}
}

func TestReconcileLicense_MissingFields(t *testing.T) {
	server := newTestServer(testutil.NewStorage(), testutil.NewFakeGateway())

	w := postJSON(t, server, "/api/v1/licenses/reconcile", ReconcileRequest{UserID: "U1"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
}
