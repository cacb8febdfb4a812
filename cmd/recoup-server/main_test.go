package main

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/recoup/recoup/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Env:              "development",
		Port:             "8000",
		DefaultCurrency:  "EUR",
		MemberRef:        "self",
		ProofTolerance:   0.01,
		ProofWindowDays:  30,
		GenerationWindow: "last_month",
	}
}

func TestNewApplication_MemoryBackend(t *testing.T) {
	app, cleanup, err := newApplication(context.Background(), testConfig(), zerolog.Nop())
	if err != nil {
		t.Fatalf("newApplication: %v", err)
	}
	defer cleanup()

	if app.pool != nil {
		t.Fatal("expected no database pool when DATABASE_URL is empty")
	}
	if app.docs == nil || app.claims == nil || app.illnesses == nil ||
		app.matching == nil || app.drafts == nil || app.sched == nil {
		t.Fatal("expected every service to be wired")
	}
	if err := app.ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestNewApplication_SchedulerRunsAgainstMemoryStore(t *testing.T) {
	app, cleanup, err := newApplication(context.Background(), testConfig(), zerolog.Nop())
	if err != nil {
		t.Fatalf("newApplication: %v", err)
	}
	defer cleanup()

	res, err := app.sched.RunMatching(context.Background())
	if err != nil {
		t.Fatalf("RunMatching: %v", err)
	}
	if res.DocumentsScanned != 0 || res.CandidatesCreated != 0 {
		t.Errorf("expected an empty pass on a fresh store, got %+v", res)
	}
}
