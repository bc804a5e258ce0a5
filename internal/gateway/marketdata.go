package gateway

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"xtgate/internal/domain"
	"xtgate/internal/util"
	"xtgate/internal/xtapi"
)

// Sector names are the data service's own identifiers and must be passed
// verbatim.
var (
	stockSectors = []string{
		"沪深A股",
		"沪深转债",
		"沪深ETF",
		"沪深指数",
		"京市A股",
	}
	futureSectors = []string{
		"中金所期货",
		"上期所期货",
		"能源中心期货",
		"大商所期货",
		"郑商所期货",
		"广期所期货",
	}
	optionSectors = []string{
		"上证期权",
		"深证期权",
		"中金所期权",
		"上期所期权",
		"能源中心期权",
		"大商所期权",
		"郑商所期权",
		"广期所期权",
	}
)

// MarketSession owns the market-data connection: contract population at
// connect time, the subscribed-symbol set, and tick enrichment. onMarketData
// runs on the data client's delivery goroutine.
type MarketSession struct {
	gw     *Gateway
	log    *slog.Logger
	client xtapi.MarketClient

	mu         sync.Mutex
	inited     bool
	subscribed map[string]struct{}
}

func newMarketSession(gw *Gateway, client xtapi.MarketClient, logger *slog.Logger) *MarketSession {
	return &MarketSession{
		gw:         gw,
		log:        logger.With("component", "marketdata"),
		client:     client,
		subscribed: make(map[string]struct{}),
	}
}

// Connect authenticates against the data service and populates the contract
// cache for the activated asset classes. Re-connecting an initialised
// session is a logged no-op.
func (s *MarketSession) Connect(token string, stockActive, futuresActive, optionActive bool) error {
	s.mu.Lock()
	if s.inited {
		s.mu.Unlock()
		s.gw.writeLog("market data session already initialised")
		return nil
	}
	s.mu.Unlock()

	if err := s.client.Init(token); err != nil {
		s.gw.writeLog("market data service init failed: " + err.Error())
		return fmt.Errorf("initialising market data service: %w", err)
	}

	s.mu.Lock()
	s.inited = true
	s.mu.Unlock()
	s.gw.writeLog("market data session connected")

	if stockActive {
		s.queryStockContracts()
	}
	if futuresActive {
		s.queryFutureContracts()
	}
	if optionActive {
		s.queryOptionContracts()
	}

	s.gw.writeLog(fmt.Sprintf("contract query finished, %d contracts cached", s.gw.contracts.Len()))
	return nil
}

// Close clears the subscription set so a future session starts clean.
func (s *MarketSession) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inited = false
	s.subscribed = make(map[string]struct{})
}

// Subscribe requests tick pushes for one instrument. Unknown contracts are
// ignored; re-subscribing an already-subscribed symbol is a no-op.
func (s *MarketSession) Subscribe(req domain.SubscribeRequest) {
	if _, ok := s.gw.contracts.Get(req.Symbol, req.Exchange); !ok {
		s.log.Debug("subscribe ignored for unknown contract", "symbol", req.Symbol, "exchange", req.Exchange)
		return
	}

	stockCode, ok := StockCode(req.Symbol, req.Exchange)
	if !ok {
		return
	}

	// Reserve the key before hitting the client so a concurrent subscribe for
	// the same symbol cannot slip past the duplicate check.
	s.mu.Lock()
	if _, dup := s.subscribed[stockCode]; dup {
		s.mu.Unlock()
		return
	}
	s.subscribed[stockCode] = struct{}{}
	s.mu.Unlock()

	if err := s.client.SubscribeQuote(stockCode, "tick", s.onMarketData); err != nil {
		s.gw.writeLog("market data subscribe failed: " + err.Error())
		s.mu.Lock()
		delete(s.subscribed, stockCode)
		s.mu.Unlock()
	}
}

// SubscribedCount reports the size of the subscription set.
func (s *MarketSession) SubscribedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscribed)
}

// onMarketData enriches and emits pushed ticks. Ticks for symbols missing
// from the contract cache are noise and dropped without logging.
func (s *MarketSession) onMarketData(stockCode string, ticks []*xtapi.MarketTick) {
	symbol, exchange, ok := SplitStockCode(stockCode)
	if !ok {
		s.log.Warn("dropping tick with unknown stock code", "stockCode", stockCode)
		return
	}

	contract, ok := s.gw.contracts.Get(symbol, exchange)
	if !ok {
		return
	}

	for _, t := range ticks {
		tick := &domain.Tick{
			Symbol:       symbol,
			Exchange:     exchange,
			Name:         contract.Name,
			Time:         time.UnixMilli(t.Time).In(util.ChinaTZ),
			Volume:       t.Volume,
			Turnover:     t.Amount,
			OpenInterest: t.OpenInt,
			LastPrice:    domain.RoundTo(t.LastPrice, contract.PriceTick),
			Open:         domain.RoundTo(t.Open, contract.PriceTick),
			High:         domain.RoundTo(t.High, contract.PriceTick),
			Low:          domain.RoundTo(t.Low, contract.PriceTick),
			PreClose:     domain.RoundTo(t.LastClose, contract.PriceTick),
			LimitUp:      contract.LimitUp,
			LimitDown:    contract.LimitDown,
		}

		for i := 0; i < 5; i++ {
			tick.BidPrice[i] = domain.RoundTo(t.BidPrice[i], contract.PriceTick)
			tick.AskPrice[i] = domain.RoundTo(t.AskPrice[i], contract.PriceTick)
			tick.BidVolume[i] = t.BidVol[i]
			tick.AskVolume[i] = t.AskVol[i]
		}

		s.gw.emitTick(tick)
	}
}

// ---------------------------------------------------------------------------
// Contract population
// ---------------------------------------------------------------------------

func (s *MarketSession) queryStockContracts() {
	for _, sector := range stockSectors {
		stockCodes, err := s.client.SectorSymbols(sector)
		if err != nil {
			s.log.Warn("sector query failed", "sector", sector, "error", err)
			continue
		}

		for _, stockCode := range stockCodes {
			symbol, xtExchange, found := strings.Cut(stockCode, ".")
			if !found {
				continue
			}

			product, ok := ClassifyStock(xtExchange, symbol)
			if !ok {
				continue
			}

			exchange, ok := ExchangeFromXT(xtExchange)
			if !ok {
				continue
			}

			detail, err := s.client.InstrumentDetail(stockCode, false)
			if err != nil {
				s.log.Debug("instrument detail unavailable", "stockCode", stockCode, "error", err)
				continue
			}

			contract := &domain.Contract{
				Symbol:    symbol,
				Exchange:  exchange,
				Name:      detail.InstrumentName,
				Product:   product,
				Size:      detail.VolumeMultiple,
				PriceTick: detail.PriceTick,
				MinVolume: detail.MinLimitOrderVolume,
				LimitUp:   detail.UpStopPrice,
				LimitDown: detail.DownStopPrice,
			}

			if s.gw.contracts.Add(contract) {
				s.gw.emitContract(contract)
			}
		}
	}
}

func (s *MarketSession) queryFutureContracts() {
	for _, sector := range futureSectors {
		stockCodes, err := s.client.SectorSymbols(sector)
		if err != nil {
			s.log.Warn("sector query failed", "sector", sector, "error", err)
			continue
		}

		for _, stockCode := range stockCodes {
			symbol, xtExchange, found := strings.Cut(stockCode, ".")
			if !found {
				continue
			}

			product := ClassifyFuture(xtExchange, symbol)

			exchange, ok := ExchangeFromXT(xtExchange)
			if !ok {
				continue
			}

			detail, err := s.client.InstrumentDetail(stockCode, product == domain.ProductOption)
			if err != nil {
				s.log.Debug("instrument detail unavailable", "stockCode", stockCode, "error", err)
				continue
			}

			// Skip expired listings but keep the continuous ("00") contracts
			// the service reports without an expiry.
			if detail.ExpireDate == "" && !strings.Contains(symbol, "00") {
				continue
			}

			contract := &domain.Contract{
				Symbol:    symbol,
				Exchange:  exchange,
				Name:      detail.InstrumentName,
				Product:   product,
				Size:      detail.VolumeMultiple,
				PriceTick: detail.PriceTick,
				MinVolume: detail.MinLimitOrderVolume,
				LimitUp:   detail.UpStopPrice,
				LimitDown: detail.DownStopPrice,
			}

			if s.gw.contracts.Add(contract) {
				s.gw.emitContract(contract)
			}
		}
	}
}

func (s *MarketSession) queryOptionContracts() {
	for _, sector := range optionSectors {
		stockCodes, err := s.client.SectorSymbols(sector)
		if err != nil {
			s.log.Warn("sector query failed", "sector", sector, "error", err)
			continue
		}

		for _, stockCode := range stockCodes {
			_, xtExchange, found := strings.Cut(stockCode, ".")
			if !found {
				continue
			}

			var contract *domain.Contract
			if xtExchange == "SHO" || xtExchange == "SZO" {
				contract = s.etfOptionContract(stockCode)
			} else {
				contract = s.futuresOptionContract(stockCode)
			}

			if contract != nil && s.gw.contracts.Add(contract) {
				s.gw.emitContract(contract)
			}
		}
	}
}

// etfOptionContract parses an ETF option listing. ETF option symbols are
// eight digits; anything else in the option sectors is noise.
func (s *MarketSession) etfOptionContract(stockCode string) *domain.Contract {
	symbol, xtExchange, _ := strings.Cut(stockCode, ".")
	if len(symbol) != 8 {
		return nil
	}

	exchange, ok := ExchangeFromXT(xtExchange)
	if !ok {
		return nil
	}

	detail, err := s.client.InstrumentDetail(stockCode, true)
	if err != nil {
		s.log.Debug("instrument detail unavailable", "stockCode", stockCode, "error", err)
		return nil
	}

	var optionType domain.OptionType
	switch {
	case strings.Contains(detail.InstrumentName, "购"):
		optionType = domain.OptionCall
	case strings.Contains(detail.InstrumentName, "沽"):
		optionType = domain.OptionPut
	default:
		return nil
	}

	strike := strconv.FormatFloat(detail.OptExercisePrice, 'f', -1, 64)
	optionIndex := strike + "-M"
	if strings.Contains(detail.InstrumentName, "A") {
		// Adjusted contracts after corporate actions.
		optionIndex = strike + "-A"
	}

	underlying := detail.OptUndlCode
	if len(detail.ExpireDate) >= 6 {
		underlying += "-" + detail.ExpireDate[:6]
	}

	return &domain.Contract{
		Symbol:           detail.InstrumentID,
		Exchange:         exchange,
		Name:             detail.InstrumentName,
		Product:          domain.ProductOption,
		Size:             detail.VolumeMultiple,
		PriceTick:        detail.PriceTick,
		MinVolume:        detail.MinLimitOrderVolume,
		OptionStrike:     detail.OptExercisePrice,
		OptionType:       optionType,
		OptionUnderlying: underlying,
		OptionPortfolio:  detail.OptUndlCode + "_O",
		OptionIndex:      optionIndex,
		OptionListed:     parseInstrumentDate(detail.OpenDate),
		OptionExpiry:     parseInstrumentDate(detail.ExpireDate),
	}
}

// futuresOptionContract parses a futures option listing.
func (s *MarketSession) futuresOptionContract(stockCode string) *domain.Contract {
	symbol, xtExchange, _ := strings.Cut(stockCode, ".")

	exchange, ok := ExchangeFromXT(xtExchange)
	if !ok {
		return nil
	}

	detail, err := s.client.InstrumentDetail(stockCode, true)
	if err != nil {
		s.log.Debug("instrument detail unavailable", "stockCode", stockCode, "error", err)
		return nil
	}

	if detail.OptExercisePrice == 0 {
		return nil
	}

	// Combination and spread listings are not tradable options.
	if strings.ContainsAny(symbol, "( ") {
		return nil
	}

	// Strip the product prefix; the call/put marker lives in the suffix.
	ix := strings.IndexFunc(symbol, unicode.IsDigit)
	if ix < 0 {
		return nil
	}
	suffix := symbol[ix:]

	var optionType domain.OptionType
	switch {
	case strings.Contains(suffix, "C"):
		optionType = domain.OptionCall
	case strings.Contains(suffix, "P"):
		optionType = domain.OptionPut
	default:
		return nil
	}

	underlying := detail.OptUndlCode
	if before, _, found := strings.Cut(symbol, "-"); found {
		underlying = before
	}

	portfolio := detail.ProductID
	if exchange == domain.ExchangeCZCE && len(portfolio) > 0 {
		portfolio = portfolio[:len(portfolio)-1]
	}

	return &domain.Contract{
		Symbol:           detail.InstrumentID,
		Exchange:         exchange,
		Name:             detail.InstrumentName,
		Product:          domain.ProductOption,
		Size:             detail.VolumeMultiple,
		PriceTick:        detail.PriceTick,
		MinVolume:        detail.MinLimitOrderVolume,
		OptionStrike:     detail.OptExercisePrice,
		OptionType:       optionType,
		OptionUnderlying: underlying,
		OptionPortfolio:  portfolio,
		OptionIndex:      strconv.FormatFloat(detail.OptExercisePrice, 'f', -1, 64),
		OptionListed:     parseInstrumentDate(detail.OpenDate),
		OptionExpiry:     parseInstrumentDate(detail.ExpireDate),
	}
}

// parseInstrumentDate parses the service's YYYYMMDD date strings, returning
// the zero time for empty or malformed input.
func parseInstrumentDate(s string) time.Time {
	t, err := time.ParseInLocation("20060102", s, util.ChinaTZ)
	if err != nil {
		return time.Time{}
	}
	return t
}
