// Package reference loads canonical team names and model coefficients from
// TOML files.
package reference

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"plus-ev-alerts/internal/engine"
	"plus-ev-alerts/internal/odds"
)

type sportTeams struct {
	Teams []string `toml:"teams"`
}

// ParseTeams reads a teams document of the form
//
//	[basketball_nba]
//	teams = ["Boston Celtics", "Miami Heat"]
//
// Sports are returned in name order and teams in file order.
func ParseTeams(r io.Reader) ([]odds.TeamName, error) {
	var doc map[string]sportTeams
	md, err := toml.NewDecoder(r).Decode(&doc)
	if err != nil {
		return nil, fmt.Errorf("decode teams: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("decode teams: unknown keys %v", undecoded)
	}

	sports := make([]string, 0, len(doc))
	for sport := range doc {
		sports = append(sports, sport)
	}
	sort.Strings(sports)

	var out []odds.TeamName
	for _, sport := range sports {
		seen := make(map[string]struct{})
		for _, name := range doc[sport].Teams {
			name = strings.TrimSpace(name)
			if name == "" {
				return nil, fmt.Errorf("decode teams: empty team name under %s", sport)
			}
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}
			out = append(out, odds.TeamName{Sport: sport, Name: name})
		}
	}
	return out, nil
}

// LoadTeams reads a teams file from disk.
func LoadTeams(path string) ([]odds.TeamName, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open teams file: %w", err)
	}
	defer f.Close()
	return ParseTeams(f)
}

// TeamsFile is a teams file path read afresh on every FetchTeams call.
type TeamsFile string

// FetchTeams loads the file.
func (p TeamsFile) FetchTeams(context.Context) ([]odds.TeamName, error) {
	return LoadTeams(string(p))
}

type modelFile struct {
	Logistic *engine.LogisticModel `toml:"logistic"`
}

// ParseModel reads logistic calibration coefficients:
//
//	[logistic]
//	intercept = -0.05
//	slope = 1.02
func ParseModel(r io.Reader) (engine.LogisticModel, error) {
	var doc modelFile
	if _, err := toml.NewDecoder(r).Decode(&doc); err != nil {
		return engine.LogisticModel{}, fmt.Errorf("decode model: %w", err)
	}
	if doc.Logistic == nil {
		return engine.LogisticModel{}, fmt.Errorf("decode model: missing [logistic] table")
	}
	if doc.Logistic.Slope == 0 {
		return engine.LogisticModel{}, fmt.Errorf("decode model: slope must be non-zero")
	}
	return *doc.Logistic, nil
}

// LoadModel reads a model file from disk.
func LoadModel(path string) (engine.LogisticModel, error) {
	f, err := os.Open(path)
	if err != nil {
		return engine.LogisticModel{}, fmt.Errorf("open model file: %w", err)
	}
	defer f.Close()
	return ParseModel(f)
}
