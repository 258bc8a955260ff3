package digest

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"price-digest-bot/internal/store"
	"price-digest-bot/internal/trend"
)

// Symbol describes one tracked market: the feed symbol, the display title
// and unit for the published line, and the factor that converts the raw
// feed price into display units.
type Symbol struct {
	Symbol string
	Title  string
	Unit   string
	Factor float64
}

type PriceSource interface {
	Acquire(ctx context.Context, symbol string) (float64, error)
}

type PriceCache interface {
	Get(ctx context.Context, key string) (float64, bool)
	Put(ctx context.Context, key string, v float64) error
	PutIfAbsent(ctx context.Context, key string, v float64, ttl time.Duration) (bool, error)
}

type Sender interface {
	SendText(ctx context.Context, text string) error
}

const yesterdaySuffix = "_yesterday"

const (
	StatusSent       = "sent"
	StatusEmpty      = "empty"
	StatusSendFailed = "send_failed"
)

type Service struct {
	source       PriceSource
	cache        PriceCache
	sender       Sender
	store        *store.Store
	symbols      []Symbol
	yesterdayTTL time.Duration
	printer      *message.Printer
}

func NewService(source PriceSource, cache PriceCache, sender Sender, st *store.Store, symbols []Symbol, yesterdayTTL time.Duration) *Service {
	if yesterdayTTL <= 0 {
		yesterdayTTL = 24 * time.Hour
	}
	return &Service{
		source:       source,
		cache:        cache,
		sender:       sender,
		store:        st,
		symbols:      symbols,
		yesterdayTTL: yesterdayTTL,
		printer:      message.NewPrinter(language.English),
	}
}

type Summary struct {
	RunID     string `json:"run_id"`
	Attempted int    `json:"attempted"`
	Delivered int    `json:"delivered"`
	Status    string `json:"status"`
}

// Run walks the symbol list in order, one connection at a time. A failed
// symbol is logged and skipped; it never aborts the batch. If at least one
// line was produced the whole digest goes out as a single message.
func (s *Service) Run(ctx context.Context, triggeredBy string) Summary {
	runID := uuid.NewString()
	lines := make([]string, 0, len(s.symbols))

	for _, sym := range s.symbols {
		line, price, err := s.runSymbol(ctx, sym)
		if err != nil {
			log.Printf("digest %s: symbol %s skipped: %v", runID, sym.Symbol, err)
			s.recordSymbol(runID, sym.Symbol, "skipped", 0, err)
			continue
		}
		lines = append(lines, line)
		s.recordSymbol(runID, sym.Symbol, "sent", price, nil)
	}

	sum := Summary{
		RunID:     runID,
		Attempted: len(s.symbols),
		Delivered: len(lines),
		Status:    StatusEmpty,
	}
	if len(lines) == 0 {
		s.recordRun(triggeredBy, sum, nil)
		return sum
	}

	if err := s.sender.SendText(ctx, strings.Join(lines, "\n")); err != nil {
		log.Printf("digest %s: delivery error: %v", runID, err)
		sum.Status = StatusSendFailed
		s.recordRun(triggeredBy, sum, err)
		return sum
	}
	sum.Status = StatusSent
	s.recordRun(triggeredBy, sum, nil)
	return sum
}

// RunLoop drives scheduled digests. Errors stay inside the loop: a
// scheduled run has nowhere to surface them.
func (s *Service) RunLoop(interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	for {
		s.runScheduled()
		time.Sleep(interval)
	}
}

func (s *Service) runScheduled() {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("scheduled digest panic: %v", r)
		}
	}()
	sum := s.Run(context.Background(), "timer")
	log.Printf("scheduled digest %s: attempted=%d delivered=%d status=%s",
		sum.RunID, sum.Attempted, sum.Delivered, sum.Status)
}

func (s *Service) runSymbol(ctx context.Context, sym Symbol) (string, float64, error) {
	raw, err := s.source.Acquire(ctx, sym.Symbol)
	if err != nil {
		return "", 0, err
	}
	price := raw * sym.Factor

	last, hasLast := s.cache.Get(ctx, sym.Symbol)
	yesterday, hasYesterday := s.cache.Get(ctx, sym.Symbol+yesterdaySuffix)

	res := trend.Evaluate(trend.Input{
		Current:      price,
		Last:         last,
		HasLast:      hasLast,
		Yesterday:    yesterday,
		HasYesterday: hasYesterday,
	})

	if err := s.cache.Put(ctx, sym.Symbol, price); err != nil {
		log.Printf("digest: %v", err)
	}
	if _, err := s.cache.PutIfAbsent(ctx, sym.Symbol+yesterdaySuffix, price, s.yesterdayTTL); err != nil {
		log.Printf("digest: %v", err)
	}

	line := fmt.Sprintf("%s %s: %s %s (%s)",
		res.Marker, sym.Title, s.formatPrice(price), sym.Unit, res.ChangePct)
	return line, price, nil
}

// formatPrice renders the display price with en-US grouping and at most
// three fraction digits, matching what the channel has always shown.
func (s *Service) formatPrice(v float64) string {
	return s.printer.Sprintf("%v", number.Decimal(v, number.MaxFractionDigits(3)))
}

func (s *Service) recordRun(triggeredBy string, sum Summary, sendErr error) {
	rec := store.RunRecord{
		TS:        time.Now().Unix(),
		RunID:     sum.RunID,
		Trigger:   triggeredBy,
		Attempted: sum.Attempted,
		Delivered: sum.Delivered,
		Status:    sum.Status,
	}
	if sendErr != nil {
		rec.Error = sendErr.Error()
	}
	if err := s.store.InsertRun(rec); err != nil {
		log.Printf("insert run record error: %v", err)
	}
}

func (s *Service) recordSymbol(runID, symbol, status string, price float64, symErr error) {
	rec := store.SymbolRecord{
		RunID:  runID,
		Symbol: symbol,
		Status: status,
		Price:  price,
	}
	if symErr != nil {
		rec.Error = symErr.Error()
	}
	if err := s.store.InsertSymbol(rec); err != nil {
		log.Printf("insert run symbol record error: %v", err)
	}
}
