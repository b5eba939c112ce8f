package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/dmethood/casino-sub001/internal/cache"
	"github.com/dmethood/casino-sub001/internal/game"
)

// testServerWith wires the HTTP surface against the in-memory store and the
// given fairness cache, mirroring New()'s rotation hook.
func testServerWith(t *testing.T, fairness fairnessCache) (*FiberServer, *game.MemoryStore) {
	t.Helper()

	store := game.NewMemoryStore()
	seeds, err := game.NewSeedManager(context.Background(), store, time.Hour)
	if err != nil {
		t.Fatalf("NewSeedManager() error = %v", err)
	}
	seeds.OnRotate(func(ctx context.Context, commitment string) {
		if err := fairness.SetCommitment(ctx, commitment); err != nil {
			t.Logf("commitment cache refresh failed: %v", err)
		}
	})

	hub := game.NewHub()
	go hub.Run()

	srv := &FiberServer{
		App:      fiber.New(),
		fairness: fairness,
		engine:   game.NewEngine(game.DefaultConfig(), store, seeds, hub, nil),
		hub:      hub,
		seeds:    seeds,
	}
	srv.RegisterFiberRoutes()
	return srv, store
}

// testServer points the fairness cache at a dead Redis address, so every
// handler exercises its engine fallback path.
func testServer(t *testing.T) (*FiberServer, *game.MemoryStore) {
	t.Helper()

	deadClient := redis.NewClient(&redis.Options{
		Addr:        "localhost:1",
		DialTimeout: 50 * time.Millisecond,
		ReadTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	return testServerWith(t, cache.NewFairnessCache(deadClient))
}

// memFairness is an in-process stand-in for the Redis fairness cache, used
// where a test needs the warm-cache read path.
type memFairness struct {
	mu         sync.Mutex
	commitment string
	records    map[string]game.VerificationRecord
}

func newMemFairness() *memFairness {
	return &memFairness{records: make(map[string]game.VerificationRecord)}
}

func (m *memFairness) Commitment(context.Context) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commitment
}

func (m *memFairness) SetCommitment(_ context.Context, commitment string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commitment = commitment
	return nil
}

func (m *memFairness) Record(_ context.Context, roundID string) (game.VerificationRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[roundID]
	return rec, ok
}

func jsonRequest(method, target string, payload any) *http.Request {
	var body io.Reader
	if payload != nil {
		data, _ := json.Marshal(payload)
		body = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("could not read response body: %v", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		t.Fatalf("could not unmarshal response %q: %v", body, err)
	}
}

func TestCommitmentEndpoint(t *testing.T) {
	srv, _ := testServer(t)

	resp, err := srv.App.Test(jsonRequest("GET", "/api/v1/fair/commitment", nil))
	if err != nil {
		t.Fatalf("could not perform request: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status OK; got %v", resp.Status)
	}

	var result map[string]string
	decodeBody(t, resp, &result)
	if len(result["commitment_hash"]) != 64 {
		t.Errorf("commitment_hash = %q, want 64 hex characters", result["commitment_hash"])
	}
}

// A settled round reveals its generation's secret, which rotates the active
// generation; the warm cache must follow or the endpoint would keep serving
// a commitment whose secret is already public.
func TestCommitmentEndpoint_FreshAfterSettle(t *testing.T) {
	fake := newMemFairness()
	srv, store := testServerWith(t, fake)
	ctx := context.Background()

	// Warm the cache the way New() does at startup.
	initial, err := srv.engine.Commitment(ctx)
	if err != nil {
		t.Fatalf("Commitment() error = %v", err)
	}
	if err := fake.SetCommitment(ctx, initial); err != nil {
		t.Fatalf("SetCommitment() error = %v", err)
	}

	if _, err := store.Deposit(ctx, "acct-1", 10000); err != nil {
		t.Fatalf("Deposit() error = %v", err)
	}

	resp, err := srv.App.Test(jsonRequest("POST", "/api/v1/rounds", game.OpenRequest{
		AccountID:  "acct-1",
		GameType:   game.GameTypeDice,
		Stake:      1000,
		Selection:  game.Selection{Target: 4},
		ClientSeed: "clientseed123",
	}))
	if err != nil {
		t.Fatalf("open request failed: %v", err)
	}
	var opened game.OpenResponse
	decodeBody(t, resp, &opened)

	resp, err = srv.App.Test(jsonRequest("POST", "/api/v1/rounds/"+opened.RoundID+"/settle", nil))
	if err != nil {
		t.Fatalf("settle request failed: %v", err)
	}
	var settled game.SettleResponse
	decodeBody(t, resp, &settled)

	resp, err = srv.App.Test(jsonRequest("GET", "/api/v1/fair/commitment", nil))
	if err != nil {
		t.Fatalf("commitment request failed: %v", err)
	}
	var result map[string]string
	decodeBody(t, resp, &result)
	served := result["commitment_hash"]

	if served == opened.CommitmentHash {
		t.Error("endpoint still serves the revealed generation's commitment")
	}
	if served == game.HashCommitment(settled.RevealedSecret) {
		t.Error("served commitment corresponds to a public secret")
	}
	current, err := srv.engine.Commitment(ctx)
	if err != nil {
		t.Fatalf("Commitment() error = %v", err)
	}
	if served != current {
		t.Errorf("served commitment %s, active generation %s", served, current)
	}
	if fake.Commitment(ctx) != current {
		t.Error("cache was not refreshed by the rotation")
	}
}

func TestRoundLifecycleEndpoints(t *testing.T) {
	srv, store := testServer(t)

	// Fund the account through the API.
	resp, err := srv.App.Test(jsonRequest("POST", "/api/v1/accounts/acct-1/deposit", fiber.Map{"amount": 10000}))
	if err != nil {
		t.Fatalf("deposit request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("deposit: expected status OK; got %v", resp.Status)
	}

	resp, err = srv.App.Test(jsonRequest("POST", "/api/v1/rounds", game.OpenRequest{
		AccountID:  "acct-1",
		GameType:   game.GameTypeDice,
		Stake:      1000,
		Selection:  game.Selection{Target: 4},
		ClientSeed: "clientseed123",
	}))
	if err != nil {
		t.Fatalf("open request failed: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("open: expected status Created; got %v", resp.Status)
	}

	var opened game.OpenResponse
	decodeBody(t, resp, &opened)
	if opened.RoundID == "" || opened.Nonce != 1 {
		t.Fatalf("open response: %+v", opened)
	}
	if opened.Balance != 9000 {
		t.Errorf("balance after open = %d, want 9000", opened.Balance)
	}

	resp, err = srv.App.Test(jsonRequest("POST", "/api/v1/rounds/"+opened.RoundID+"/settle", nil))
	if err != nil {
		t.Fatalf("settle request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("settle: expected status OK; got %v", resp.Status)
	}

	var settled game.SettleResponse
	decodeBody(t, resp, &settled)
	if settled.State != game.RoundClosed {
		t.Errorf("state = %v, want CLOSED", settled.State)
	}
	if game.HashCommitment(settled.RevealedSecret) != opened.CommitmentHash {
		t.Error("revealed secret does not match the commitment")
	}

	// Settling again over HTTP returns the same stored result.
	resp, err = srv.App.Test(jsonRequest("POST", "/api/v1/rounds/"+opened.RoundID+"/settle", nil))
	if err != nil {
		t.Fatalf("repeat settle request failed: %v", err)
	}
	var repeat game.SettleResponse
	decodeBody(t, resp, &repeat)
	if repeat.Payout != settled.Payout {
		t.Errorf("repeat payout = %d, want %d", repeat.Payout, settled.Payout)
	}

	resp, err = srv.App.Test(jsonRequest("GET", "/api/v1/rounds/"+opened.RoundID, nil))
	if err != nil {
		t.Fatalf("get round request failed: %v", err)
	}
	var round game.Round
	decodeBody(t, resp, &round)
	if round.State != game.RoundClosed || round.Nonce != 1 {
		t.Errorf("stored round: state=%v nonce=%d", round.State, round.Nonce)
	}

	// The verification record lands asynchronously after settle.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := store.GetVerificationRecord(context.Background(), opened.RoundID); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("verification record never published")
		}
		time.Sleep(10 * time.Millisecond)
	}

	resp, err = srv.App.Test(jsonRequest("GET", "/api/v1/fair/records/"+opened.RoundID, nil), 5000)
	if err != nil {
		t.Fatalf("record request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("record: expected status OK; got %v", resp.Status)
	}
	var rec game.VerificationRecord
	decodeBody(t, resp, &rec)
	if rec.Secret != settled.RevealedSecret {
		t.Error("record secret differs from revealed secret")
	}
}

func TestVerifyEndpoint(t *testing.T) {
	srv, _ := testServer(t)

	secret := game.GenerateSeed()
	outcome, err := game.DeriveOutcome(game.DefaultConfig(), game.GameTypeDice, secret, "clientseed123", 1, game.Selection{Target: 4})
	if err != nil {
		t.Fatalf("DeriveOutcome() error = %v", err)
	}

	resp, err := srv.App.Test(jsonRequest("POST", "/api/v1/fair/verify", game.VerifyRequest{
		Secret:     secret,
		ClientSeed: "clientseed123",
		Nonce:      1,
		GameType:   game.GameTypeDice,
		Selection:  game.Selection{Target: 4},
		Outcome:    outcome,
	}))
	if err != nil {
		t.Fatalf("verify request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status OK; got %v", resp.Status)
	}

	var result game.VerifyResult
	decodeBody(t, resp, &result)
	if !result.Valid {
		t.Error("honest outcome failed verification over HTTP")
	}
	if len(result.Steps) == 0 {
		t.Error("verify response carries no recomputation steps")
	}
}

func TestErrorStatuses(t *testing.T) {
	srv, _ := testServer(t)

	tests := []struct {
		name string
		req  *http.Request
		want int
	}{
		{
			name: "Settle unknown round",
			req:  jsonRequest("POST", "/api/v1/rounds/no-such-round/settle", nil),
			want: http.StatusNotFound,
		},
		{
			name: "Get unknown round",
			req:  jsonRequest("GET", "/api/v1/rounds/no-such-round", nil),
			want: http.StatusNotFound,
		},
		{
			name: "Open without account",
			req:  jsonRequest("POST", "/api/v1/rounds", fiber.Map{"game_type": "dice", "stake": 1000}),
			want: http.StatusBadRequest,
		},
		{
			name: "Open with bad stake",
			req: jsonRequest("POST", "/api/v1/rounds", game.OpenRequest{
				AccountID: "acct-1",
				GameType:  game.GameTypeDice,
				Stake:     1,
				Selection: game.Selection{Target: 4},
			}),
			want: http.StatusBadRequest,
		},
		{
			name: "Open beyond balance",
			req: jsonRequest("POST", "/api/v1/rounds", game.OpenRequest{
				AccountID: "acct-broke",
				GameType:  game.GameTypeDice,
				Stake:     1000,
				Selection: game.Selection{Target: 4},
			}),
			want: http.StatusPaymentRequired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := srv.App.Test(tt.req, 5000)
			if err != nil {
				t.Fatalf("could not perform request: %v", err)
			}
			if resp.StatusCode != tt.want {
				body, _ := io.ReadAll(resp.Body)
				t.Errorf("status = %d, want %d (body %s)", resp.StatusCode, tt.want, body)
			}
		})
	}
}

func TestRotateEndpoint(t *testing.T) {
	srv, _ := testServer(t)

	resp, err := srv.App.Test(jsonRequest("GET", "/api/v1/fair/commitment", nil))
	if err != nil {
		t.Fatalf("commitment request failed: %v", err)
	}
	var before map[string]string
	decodeBody(t, resp, &before)

	resp, err = srv.App.Test(jsonRequest("POST", "/api/v1/fair/rotate", nil), 5000)
	if err != nil {
		t.Fatalf("rotate request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("rotate: expected status OK; got %v", resp.Status)
	}

	var after map[string]string
	decodeBody(t, resp, &after)
	if after["commitment_hash"] == before["commitment_hash"] {
		t.Error("rotation did not change the commitment")
	}
}

func TestBalanceEndpoint(t *testing.T) {
	srv, store := testServer(t)

	if _, err := store.Deposit(context.Background(), "acct-2", 4200); err != nil {
		t.Fatalf("Deposit() error = %v", err)
	}

	resp, err := srv.App.Test(jsonRequest("GET", "/api/v1/accounts/acct-2/balance", nil))
	if err != nil {
		t.Fatalf("balance request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status OK; got %v", resp.Status)
	}

	var result struct {
		AccountID string `json:"account_id"`
		Balance   int64  `json:"balance"`
	}
	decodeBody(t, resp, &result)
	if result.Balance != 4200 {
		t.Errorf("balance = %d, want 4200", result.Balance)
	}
}

func TestDepositEndpoint_RejectsNonPositive(t *testing.T) {
	srv, _ := testServer(t)

	resp, err := srv.App.Test(jsonRequest("POST", "/api/v1/accounts/acct-3/deposit", fiber.Map{"amount": -5}))
	if err != nil {
		t.Fatalf("deposit request failed: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestHealthHandler(t *testing.T) {
	// The real handler needs live backends; this covers the route shape.
	app := fiber.New()
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
		})
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/health", nil))
	if err != nil {
		t.Fatalf("could not perform request: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected status OK; got %v", resp.Status)
	}

	var result map[string]any
	decodeBody(t, resp, &result)
	if result["status"] != "ok" {
		t.Errorf("expected status to be 'ok'; got %v", result["status"])
	}
}
