package ledger

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bytedance/sonic"

	"scalper/internal/models"
)

const (
	portfolioFile = "portfolio.json"
	tradesFile    = "trades.json"
)

// json is the codec for both files. Sorted keys keep the output stable
// so a rewrite of unchanged state produces identical bytes.
var json = sonic.ConfigStd

// FileStore keeps portfolio.json and trades.json under one directory.
// Every write goes to a temp file first and is renamed into place.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) *FileStore {
	if dir == "" {
		dir = "data"
	}
	return &FileStore{dir: dir}
}

func (s *FileStore) PortfolioPath() string { return filepath.Join(s.dir, portfolioFile) }
func (s *FileStore) TradesPath() string    { return filepath.Join(s.dir, tradesFile) }

func (s *FileStore) LoadPortfolio() (models.Portfolio, error) {
	b, err := readIfExists(s.PortfolioPath())
	if err != nil || b == nil {
		return models.Portfolio{}, err
	}

	var p models.Portfolio
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.PortfolioPath(), err)
	}
	if p == nil {
		p = models.Portfolio{}
	}
	for pair, ps := range p {
		for i := range ps {
			ps[i].Pair = pair
		}
	}
	return p, nil
}

func (s *FileStore) SavePortfolio(p models.Portfolio) error {
	out := make(models.Portfolio, len(p))
	for pair, ps := range p {
		// a pair without positions is not written at all
		if len(ps) > 0 {
			out[pair] = ps
		}
	}
	b, err := json.MarshalIndent(out, "", "    ")
	if err != nil {
		return err
	}
	return writeAtomic(s.PortfolioPath(), b)
}

func (s *FileStore) LoadTrades() ([]models.Trade, error) {
	b, err := readIfExists(s.TradesPath())
	if err != nil || b == nil {
		return nil, err
	}

	var trades []models.Trade
	if err := json.Unmarshal(b, &trades); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.TradesPath(), err)
	}
	return trades, nil
}

func (s *FileStore) AppendTrade(t models.Trade) error {
	trades, err := s.LoadTrades()
	if err != nil {
		return err
	}
	trades = append(trades, t)

	b, err := json.MarshalIndent(trades, "", "    ")
	if err != nil {
		return err
	}
	return writeAtomic(s.TradesPath(), b)
}

func readIfExists(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return nil, nil
	}
	return b, nil
}

func writeAtomic(path string, b []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
