package digest

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type fakeSource struct {
	prices map[string]float64
	errs   map[string]error
	calls  []string
}

func (f *fakeSource) Acquire(_ context.Context, symbol string) (float64, error) {
	f.calls = append(f.calls, symbol)
	if err, ok := f.errs[symbol]; ok {
		return 0, err
	}
	return f.prices[symbol], nil
}

type fakeCache struct {
	data map[string]float64
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: make(map[string]float64)}
}

func (f *fakeCache) Get(_ context.Context, key string) (float64, bool) {
	v, ok := f.data[key]
	return v, ok
}

func (f *fakeCache) Put(_ context.Context, key string, v float64) error {
	f.data[key] = v
	return nil
}

func (f *fakeCache) PutIfAbsent(_ context.Context, key string, v float64, _ time.Duration) (bool, error) {
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	f.data[key] = v
	return true, nil
}

type fakeSender struct {
	texts []string
	err   error
}

func (f *fakeSender) SendText(_ context.Context, text string) error {
	if f.err != nil {
		return f.err
	}
	f.texts = append(f.texts, text)
	return nil
}

func TestRunFullScenario(t *testing.T) {
	source := &fakeSource{prices: map[string]float64{"USDTIRT": 1100}}
	cache := newFakeCache()
	cache.data["USDTIRT"] = 100
	cache.data["USDTIRT_yesterday"] = 90
	sender := &fakeSender{}

	svc := NewService(source, cache, sender, nil, []Symbol{
		{Symbol: "USDTIRT", Title: "Tether", Unit: "Toman", Factor: 0.1},
	}, 0)

	sum := svc.Run(context.Background(), "http")
	if sum.Attempted != 1 || sum.Delivered != 1 || sum.Status != StatusSent {
		t.Fatalf("summary = %+v", sum)
	}
	if len(sender.texts) != 1 {
		t.Fatalf("sender calls = %d, want 1", len(sender.texts))
	}
	if want := "🔼 Tether: 110 Toman (22.22%)"; sender.texts[0] != want {
		t.Errorf("line = %q, want %q", sender.texts[0], want)
	}
	if got := cache.data["USDTIRT"]; got != 1100*0.1 {
		t.Errorf("last price = %v", got)
	}
	if got := cache.data["USDTIRT_yesterday"]; got != 90 {
		t.Errorf("yesterday price = %v, want unchanged 90", got)
	}
}

func TestRunColdCache(t *testing.T) {
	source := &fakeSource{prices: map[string]float64{"BTCUSDT": 500}}
	cache := newFakeCache()
	sender := &fakeSender{}

	svc := NewService(source, cache, sender, nil, []Symbol{
		{Symbol: "BTCUSDT", Title: "Bitcoin", Unit: "USD", Factor: 1},
	}, 0)

	sum := svc.Run(context.Background(), "timer")
	if sum.Status != StatusSent {
		t.Fatalf("summary = %+v", sum)
	}
	if want := " Bitcoin: 500 USD ()"; sender.texts[0] != want {
		t.Errorf("line = %q, want %q", sender.texts[0], want)
	}
	if cache.data["BTCUSDT"] != 500 {
		t.Errorf("last price = %v", cache.data["BTCUSDT"])
	}
	if cache.data["BTCUSDT_yesterday"] != 500 {
		t.Errorf("yesterday price = %v, want first-write 500", cache.data["BTCUSDT_yesterday"])
	}
}

func TestRunThousandsGrouping(t *testing.T) {
	source := &fakeSource{prices: map[string]float64{"BTCIRT": 165000000}}
	sender := &fakeSender{}

	svc := NewService(source, newFakeCache(), sender, nil, []Symbol{
		{Symbol: "BTCIRT", Title: "Bitcoin", Unit: "Toman", Factor: 0.1},
	}, 0)

	svc.Run(context.Background(), "timer")
	if want := " Bitcoin: 16,500,000 Toman ()"; sender.texts[0] != want {
		t.Errorf("line = %q, want %q", sender.texts[0], want)
	}
}

func TestRunPreservesOrderAndSkipsFailures(t *testing.T) {
	source := &fakeSource{
		prices: map[string]float64{"A": 10, "C": 30},
		errs:   map[string]error{"B": errors.New("read frame: connection reset")},
	}
	sender := &fakeSender{}

	svc := NewService(source, newFakeCache(), sender, nil, []Symbol{
		{Symbol: "A", Title: "A", Unit: "u", Factor: 1},
		{Symbol: "B", Title: "B", Unit: "u", Factor: 1},
		{Symbol: "C", Title: "C", Unit: "u", Factor: 1},
	}, 0)

	sum := svc.Run(context.Background(), "http")
	if sum.Attempted != 3 || sum.Delivered != 2 {
		t.Fatalf("summary = %+v", sum)
	}
	if got, want := strings.Join(source.calls, ","), "A,B,C"; got != want {
		t.Errorf("acquire order = %s, want %s", got, want)
	}
	lines := strings.Split(sender.texts[0], "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %q", lines)
	}
	if !strings.Contains(lines[0], " A: ") || !strings.Contains(lines[1], " C: ") {
		t.Errorf("order not preserved: %q", lines)
	}
}

func TestRunAllFailSendsNothing(t *testing.T) {
	boom := errors.New("dial feed: refused")
	source := &fakeSource{errs: map[string]error{"A": boom, "B": boom}}
	sender := &fakeSender{}

	svc := NewService(source, newFakeCache(), sender, nil, []Symbol{
		{Symbol: "A", Title: "A", Unit: "u", Factor: 1},
		{Symbol: "B", Title: "B", Unit: "u", Factor: 1},
	}, 0)

	sum := svc.Run(context.Background(), "timer")
	if len(sender.texts) != 0 {
		t.Fatalf("delivery called %d times, want 0", len(sender.texts))
	}
	if sum.Attempted != 2 || sum.Delivered != 0 || sum.Status != StatusEmpty {
		t.Errorf("summary = %+v", sum)
	}
}

func TestRunYesterdayIdempotentWithinWindow(t *testing.T) {
	source := &fakeSource{prices: map[string]float64{"A": 100}}
	cache := newFakeCache()
	sender := &fakeSender{}

	svc := NewService(source, cache, sender, nil, []Symbol{
		{Symbol: "A", Title: "A", Unit: "u", Factor: 1},
	}, 0)

	svc.Run(context.Background(), "timer")
	source.prices["A"] = 120
	svc.Run(context.Background(), "timer")
	source.prices["A"] = 80
	svc.Run(context.Background(), "timer")

	if cache.data["A"] != 80 {
		t.Errorf("last price = %v, want 80", cache.data["A"])
	}
	if cache.data["A_yesterday"] != 100 {
		t.Errorf("yesterday price = %v, want first-seen 100", cache.data["A_yesterday"])
	}
}

func TestRunDeliveryFailureIsNotFatal(t *testing.T) {
	source := &fakeSource{prices: map[string]float64{"A": 100}}
	sender := &fakeSender{err: errors.New("telegram error_code=429")}

	svc := NewService(source, newFakeCache(), sender, nil, []Symbol{
		{Symbol: "A", Title: "A", Unit: "u", Factor: 1},
	}, 0)

	sum := svc.Run(context.Background(), "http")
	if sum.Status != StatusSendFailed {
		t.Errorf("status = %s, want %s", sum.Status, StatusSendFailed)
	}
	if sum.Attempted != 1 || sum.Delivered != 1 {
		t.Errorf("summary = %+v", sum)
	}
}

func TestRunNoCacheWritesOnFeedFailure(t *testing.T) {
	source := &fakeSource{errs: map[string]error{"A": errors.New("read frame: eof")}}
	cache := newFakeCache()

	svc := NewService(source, cache, &fakeSender{}, nil, []Symbol{
		{Symbol: "A", Title: "A", Unit: "u", Factor: 1},
	}, 0)

	svc.Run(context.Background(), "timer")
	if len(cache.data) != 0 {
		t.Errorf("cache written on failed acquire: %v", cache.data)
	}
}
