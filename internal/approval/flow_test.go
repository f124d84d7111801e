package approval

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ramp-quote-go/internal/models"
	"ramp-quote-go/internal/wallet"

	"github.com/shopspring/decimal"
)

type fakeSurface struct {
	mu       sync.Mutex
	external []string
	webviews []string
	observer func(string)
	err      error
}

func (s *fakeSurface) OpenExternal(_ context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.external = append(s.external, url)
	return s.err
}

func (s *fakeSurface) OpenWebView(_ context.Context, url string, onURLChange func(string)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.webviews = append(s.webviews, url)
	s.observer = onURLChange
	return s.err
}

func (s *fakeSurface) webviewCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.webviews)
}

func (s *fakeSurface) navigate(url string) {
	s.mu.Lock()
	observer := s.observer
	s.mu.Unlock()
	observer(url)
}

type fakeSink struct {
	mu     sync.Mutex
	events []models.FlowEvent
}

func (s *fakeSink) RecordFlowEvent(_ context.Context, e models.FlowEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *fakeSink) names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	for i, e := range s.events {
		out[i] = e.Event
	}
	return out
}

type fakeWallet struct {
	mu      sync.Mutex
	results []error
	sent    []wallet.SendRequest
}

func (w *fakeWallet) ReceiveAddress(context.Context, models.CryptoAsset) (string, error) {
	return "bc1qtest", nil
}

func (w *fakeWallet) Balance(context.Context, models.CryptoAsset) (decimal.Decimal, error) {
	return decimal.NewFromInt(1), nil
}

func (w *fakeWallet) Send(_ context.Context, req wallet.SendRequest) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sent = append(w.sent, req)
	var err error
	if len(w.results) > 0 {
		err = w.results[0]
		w.results = w.results[1:]
	}
	if err != nil {
		return "", err
	}
	return "tx-123", nil
}

func buyPlan() Plan {
	return Plan{
		Provider:  "banxa",
		Direction: models.DirectionBuy,
		OrderID:   "order-1",
		URL:       "https://checkout.example/order-1",
		ResolveDeeplink: func(link Link) Outcome {
			return Outcome{State: StatusOutcome(link.Query.Get("status"))}
		},
		Asset:    models.CryptoAsset{PluginID: "ethereum"},
		FiatCode: "USD",
	}
}

func waitState(t *testing.T, f *Flow, want State) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	got, err := f.Wait(ctx)
	if err != nil {
		t.Fatalf("Flow did not finish: state=%s err=%v", f.State(), err)
	}
	if got != want {
		t.Fatalf("Expected %s, got %s (%s)", want, got, f.Detail())
	}
}

func TestBuyFlow_DeeplinkOutcomes(t *testing.T) {
	tests := []struct {
		status string
		want   State
		event  string
	}{
		{"success", StateCompleted, "Buy_Success"},
		{"cancelled", StateCancelled, "Buy_Cancelled"},
		{"failure", StateFailed, "Buy_Failed"},
		{"garbage", StateFailed, "Buy_Failed"},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			surface := &fakeSurface{}
			sink := &fakeSink{}
			orch := NewOrchestrator(OrchestratorConfig{Surface: surface, Sink: sink})

			f, err := orch.Start(context.Background(), buyPlan(), &fakeWallet{})
			if err != nil {
				t.Fatalf("Start failed: %v", err)
			}
			if f.State() != StateAwaitingExternalAction {
				t.Errorf("Expected AwaitingExternalAction after start, got %s", f.State())
			}
			if len(surface.external) != 1 {
				t.Fatalf("Expected external surface opened once, got %d", len(surface.external))
			}

			link := Link{Direction: models.DirectionBuy, ProviderID: "banxa", Query: url.Values{"status": {tt.status}}}
			if err := orch.Registry().Dispatch(context.Background(), link); err != nil {
				t.Fatalf("Dispatch failed: %v", err)
			}
			waitState(t, f, tt.want)

			if _, _, ok := orch.Registry().Active(); ok {
				t.Error("Expected registration released")
			}
			names := sink.names()
			if names[len(names)-1] != tt.event {
				t.Errorf("Expected last event %s, got %v", tt.event, names)
			}
		})
	}
}

func TestFlow_CloseIsIdempotent(t *testing.T) {
	surface := &fakeSurface{}
	sink := &fakeSink{}
	orch := NewOrchestrator(OrchestratorConfig{Surface: surface, Sink: sink})

	f, err := orch.Start(context.Background(), buyPlan(), &fakeWallet{})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	f.Close()
	first := sink.names()
	f.Close()
	second := sink.names()

	if f.State() != StateCancelled {
		t.Errorf("Expected Cancelled after close, got %s", f.State())
	}
	if len(first) != len(second) {
		t.Errorf("Expected second close to have no effect, events %v then %v", first, second)
	}
	if _, _, ok := orch.Registry().Active(); ok {
		t.Error("Expected registration released on close")
	}
	if _, ok := orch.Flow(f.ID()); ok {
		t.Error("Expected flow forgotten after close")
	}

	link := Link{Direction: models.DirectionBuy, ProviderID: "banxa", Query: url.Values{"status": {"success"}}}
	var routingErr *RoutingError
	if err := orch.Registry().Dispatch(context.Background(), link); !errors.As(err, &routingErr) {
		t.Errorf("Expected routing error after close, got %v", err)
	}
}

func TestStart_SurfaceFailure(t *testing.T) {
	surface := &fakeSurface{err: errors.New("no browser")}
	orch := NewOrchestrator(OrchestratorConfig{Surface: surface})

	f, err := orch.Start(context.Background(), buyPlan(), &fakeWallet{})
	if err == nil {
		t.Fatal("Expected error when the surface cannot open")
	}
	if f.State() != StateFailed {
		t.Errorf("Expected Failed, got %s", f.State())
	}
	if _, _, ok := orch.Registry().Active(); ok {
		t.Error("Expected registration released after failure")
	}
}

func TestStart_InvalidPlan(t *testing.T) {
	orch := NewOrchestrator(OrchestratorConfig{Surface: &fakeSurface{}})
	plan := buyPlan()
	plan.ResolveDeeplink = nil
	if _, err := orch.Start(context.Background(), plan, &fakeWallet{}); err == nil {
		t.Fatal("Expected invalid plan error")
	}
}

func sellPlan(poll func(ctx context.Context) (PollResult, error), confirmed *atomic.Int32) Plan {
	return Plan{
		Provider:  "banxa",
		Direction: models.DirectionSell,
		OrderID:   "order-7",
		URL:       "https://checkout.example/sell/order-7",
		InApp:     true,
		Sell: &SellHooks{
			CancelURLPrefixes: []string{"https://return.example/cancelled"},
			PollTrigger: func(raw string) bool {
				return strings.HasPrefix(raw, "https://checkout.example/status/")
			},
			PollInterval: 5 * time.Millisecond,
			Poll:         poll,
			Confirm: func(ctx context.Context, p Payment, txID string) error {
				confirmed.Add(1)
				return nil
			},
		},
		Asset:      models.CryptoAsset{PluginID: "bitcoin"},
		FiatCode:   "USD",
		FiatAmount: decimal.NewFromInt(100),
	}
}

func waitingPaymentPoll(calls *atomic.Int32) func(ctx context.Context) (PollResult, error) {
	return func(ctx context.Context) (PollResult, error) {
		if calls.Add(1) < 2 {
			return PollResult{Status: PollPending}, nil
		}
		return PollResult{Status: PollAwaitingPayment, Payment: &Payment{
			Address: "bc1qdeposit",
			Amount:  decimal.RequireFromString("0.0015"),
		}}, nil
	}
}

func TestSellFlow_PollSendConfirm(t *testing.T) {
	var polls, confirmed atomic.Int32
	surface := &fakeSurface{}
	sink := &fakeSink{}
	w := &fakeWallet{}
	orch := NewOrchestrator(OrchestratorConfig{Surface: surface, Sink: sink})

	f, err := orch.Start(context.Background(), sellPlan(waitingPaymentPoll(&polls), &confirmed), w)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if surface.webviewCount() != 1 {
		t.Fatalf("Expected webview opened")
	}

	surface.navigate("https://checkout.example/status/order-7")
	waitState(t, f, StateCompleted)

	if confirmed.Load() != 1 {
		t.Errorf("Expected one confirmation, got %d", confirmed.Load())
	}
	if f.TxID() != "tx-123" {
		t.Errorf("Expected tx-123, got %s", f.TxID())
	}
	if len(w.sent) != 1 || w.sent[0].Address != "bc1qdeposit" || w.sent[0].OrderID != "order-7" {
		t.Errorf("Unexpected sends %+v", w.sent)
	}

	names := sink.names()
	want := []string{"Sell_Started", "Sell_Payment_Requested", "Sell_Payment_Submitted", "Sell_Success"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Errorf("Expected events %v, got %v", want, names)
	}
}

func TestSellFlow_WalletCancelReopensSurface(t *testing.T) {
	var polls, confirmed atomic.Int32
	surface := &fakeSurface{}
	w := &fakeWallet{results: []error{wallet.ErrSendCancelled}}
	orch := NewOrchestrator(OrchestratorConfig{Surface: surface})

	f, err := orch.Start(context.Background(), sellPlan(waitingPaymentPoll(&polls), &confirmed), w)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	surface.navigate("https://checkout.example/status/order-7")

	deadline := time.Now().Add(2 * time.Second)
	for surface.webviewCount() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if surface.webviewCount() != 2 {
		t.Fatalf("Expected checkout reopened after wallet cancel, got %d opens", surface.webviewCount())
	}
	if f.State().Terminal() {
		t.Fatalf("Expected flow to stay open, got %s", f.State())
	}

	// the status page is reached again and the second send succeeds
	surface.navigate("https://checkout.example/status/order-7")
	waitState(t, f, StateCompleted)
	if confirmed.Load() != 1 {
		t.Errorf("Expected one confirmation, got %d", confirmed.Load())
	}
}

func TestSellFlow_CancelURL(t *testing.T) {
	var confirmed atomic.Int32
	surface := &fakeSurface{}
	orch := NewOrchestrator(OrchestratorConfig{Surface: surface})
	poll := func(ctx context.Context) (PollResult, error) { return PollResult{Status: PollPending}, nil }

	f, err := orch.Start(context.Background(), sellPlan(poll, &confirmed), &fakeWallet{})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	surface.navigate("https://checkout.example/status/order-7")
	surface.navigate("https://return.example/cancelled?x=1")
	waitState(t, f, StateCancelled)
}

func TestSellFlow_DetectPaymentFromRedirect(t *testing.T) {
	surface := &fakeSurface{}
	w := &fakeWallet{}
	orch := NewOrchestrator(OrchestratorConfig{Surface: surface})

	plan := Plan{
		Provider:  "moonpay",
		Direction: models.DirectionSell,
		URL:       "https://sell.example/?a=1",
		InApp:     true,
		Sell: &SellHooks{
			DetectPayment: func(ctx context.Context, raw string) (*Payment, error) {
				u, err := url.Parse(raw)
				if err != nil {
					return nil, err
				}
				if u.Query().Get("depositWalletAddress") == "" {
					return nil, nil
				}
				return &Payment{
					OrderID: u.Query().Get("transactionId"),
					Address: u.Query().Get("depositWalletAddress"),
					Amount:  decimal.RequireFromString(u.Query().Get("baseCurrencyAmount")),
					Memo:    &wallet.Memo{Type: wallet.MemoNumber, Value: u.Query().Get("depositWalletAddressTag")},
				}, nil
			},
		},
		Asset: models.CryptoAsset{PluginID: "ripple"},
	}

	f, err := orch.Start(context.Background(), plan, w)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	surface.navigate("https://sell.example/widget")
	surface.navigate("https://return.example/sell?transactionId=tx9&depositWalletAddress=rAddr&depositWalletAddressTag=42&baseCurrencyAmount=25")
	waitState(t, f, StateCompleted)

	if len(w.sent) != 1 {
		t.Fatalf("Expected one send, got %d", len(w.sent))
	}
	if w.sent[0].Memo == nil || w.sent[0].Memo.Value != "42" || w.sent[0].OrderID != "tx9" {
		t.Errorf("Unexpected send %+v", w.sent[0])
	}
}

func TestSellFlow_SuccessURLCompletes(t *testing.T) {
	var polls atomic.Int32
	tests := []struct {
		name  string
		hooks *SellHooks
	}{
		{
			name: "success while polling",
			hooks: &SellHooks{
				SuccessURLPrefixes: []string{"https://return.example/success"},
				PollTrigger:        func(raw string) bool { return strings.HasPrefix(raw, "https://checkout.example/status/") },
				PollInterval:       time.Hour,
				Poll: func(ctx context.Context) (PollResult, error) {
					polls.Add(1)
					return PollResult{Status: PollPending}, nil
				},
			},
		},
		{
			name: "success without payment details",
			hooks: &SellHooks{
				SuccessURLPrefixes: []string{"https://return.example/success"},
				DetectPayment: func(ctx context.Context, raw string) (*Payment, error) {
					return nil, nil
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			surface := &fakeSurface{}
			w := &fakeWallet{}
			orch := NewOrchestrator(OrchestratorConfig{Surface: surface})
			plan := Plan{
				Provider:  "paybis",
				Direction: models.DirectionSell,
				URL:       "https://widget.example/?requestId=r1",
				InApp:     true,
				Sell:      tt.hooks,
				Asset:     models.CryptoAsset{PluginID: "bitcoin"},
			}

			f, err := orch.Start(context.Background(), plan, w)
			if err != nil {
				t.Fatalf("Start failed: %v", err)
			}
			surface.navigate("https://checkout.example/status/r1")
			surface.navigate("https://return.example/success?requestId=r1")
			waitState(t, f, StateCompleted)

			if len(w.sent) != 0 {
				t.Errorf("Expected no wallet send, got %d", len(w.sent))
			}
		})
	}
}

func TestPoller_ReentrancyGuard(t *testing.T) {
	release := make(chan struct{})
	var runs atomic.Int32
	p := NewPoller(time.Hour, func(ctx context.Context) {
		runs.Add(1)
		<-release
	})

	started := make(chan bool)
	go func() { started <- p.Tick(context.Background()) }()

	deadline := time.Now().Add(time.Second)
	for runs.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if p.Tick(context.Background()) {
		t.Error("Expected overlapping tick to be skipped")
	}
	close(release)
	if !<-started {
		t.Error("Expected first tick to run")
	}
	if runs.Load() != 1 {
		t.Errorf("Expected one run, got %d", runs.Load())
	}

	p.Start(context.Background())
	p.Stop()
	p.Stop()
}
