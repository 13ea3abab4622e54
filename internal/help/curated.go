package help

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

type curatedFile struct {
	ID       int               `json:"id"`
	Name     string            `json:"name"`
	Strategy []StrategySection `json:"strategy"`
}

// CuratedProvider serves hand-written strategies loaded from <id>.json files.
type CuratedProvider struct {
	strategies map[int]curatedFile
}

// LoadCurated reads every *.json file in dir. An empty dir yields an empty
// provider.
func LoadCurated(dir string) (*CuratedProvider, error) {
	p := &CuratedProvider{strategies: map[int]curatedFile{}}
	if dir == "" {
		return p, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read curated dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", e.Name(), err)
		}
		var f curatedFile
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("decode %s: %w", e.Name(), err)
		}
		if f.ID <= 0 {
			return nil, fmt.Errorf("%s: missing achievement id", e.Name())
		}
		p.strategies[f.ID] = f
	}
	return p, nil
}

func (p *CuratedProvider) Name() string { return "Curated" }

func (p *CuratedProvider) Fetch(_ context.Context, achievementID, _ int) (*Payload, error) {
	f, ok := p.strategies[achievementID]
	if !ok {
		return nil, nil
	}
	return &Payload{
		Strategy: f.Strategy,
		Sources:  []Source{{Name: "Curated", URL: ""}},
	}, nil
}
