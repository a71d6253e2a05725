package indicator

import (
	"fmt"
	"sync"
)

// Engine keeps the per-pair price windows and evaluates RSI/EMA over them.
type Engine struct {
	rsiPoints int
	emaPeriod int

	mu    sync.Mutex
	state map[string]*pairState
}

type pairState struct {
	rsi *Window
	ema *Window
}

func NewEngine(rsiPoints, emaPeriod int) *Engine {
	return &Engine{
		rsiPoints: rsiPoints,
		emaPeriod: emaPeriod,
		state:     make(map[string]*pairState),
	}
}

func (e *Engine) get(pair string) *pairState {
	if st, ok := e.state[pair]; ok {
		return st
	}
	st := &pairState{
		rsi: NewWindow(e.rsiPoints),
		ema: NewWindow(e.emaPeriod),
	}
	e.state[pair] = st
	return st
}

// Update appends price to both windows of pair.
func (e *Engine) Update(pair string, price float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := e.get(pair)
	st.rsi.Push(price)
	st.ema.Push(price)
}

// Seed feeds historical prices (oldest first).
func (e *Engine) Seed(pair string, prices []float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := e.get(pair)
	for _, p := range prices {
		st.rsi.Push(p)
		st.ema.Push(p)
	}
}

func (e *Engine) RSI(pair string) (float64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, ok := e.state[pair]
	if !ok {
		return 0, false
	}
	return RSI(st.rsi.Values(), e.rsiPoints)
}

func (e *Engine) EMA(pair string) (float64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, ok := e.state[pair]
	if !ok {
		return 0, false
	}
	return EMA(st.ema.Values(), e.emaPeriod)
}

// Samples returns how many prices the RSI and EMA windows currently hold.
func (e *Engine) Samples(pair string) (rsi, ema int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, ok := e.state[pair]
	if !ok {
		return 0, 0
	}
	return st.rsi.Len(), st.ema.Len()
}

// Dump is for logs.
func (e *Engine) Dump(pair string) string {
	rsiN, emaN := e.Samples(pair)
	rsi, rok := e.RSI(pair)
	ema, eok := e.EMA(pair)
	if !rok || !eok {
		return fmt.Sprintf("warmup rsi=%d/%d ema=%d/%d", rsiN, e.rsiPoints, emaN, e.emaPeriod)
	}
	return fmt.Sprintf("RSI=%.2f EMA%d=%.8f", rsi, e.emaPeriod, ema)
}
