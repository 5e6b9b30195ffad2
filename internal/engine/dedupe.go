package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"plus-ev-alerts/internal/odds"
)

// IDTimeLayout formats start times inside opportunity identities. Times are
// converted to UTC first.
const IDTimeLayout = "2006-01-02 15:04:05"

// OpportunityID is the SHA-256 hex digest of
// "<home>-<away>-<outcome>-<start UTC in IDTimeLayout>". Book and price are
// not part of the identity, so a matchup that resurfaces at another book is
// still the same opportunity.
func OpportunityID(home, away, outcome string, start time.Time) string {
	data := fmt.Sprintf("%s-%s-%s-%s", home, away, outcome, start.UTC().Format(IDTimeLayout))
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}

// IdentityOf computes the id of an opportunity from its identity fields.
func IdentityOf(o odds.Opportunity) string {
	return OpportunityID(o.HomeTeam, o.AwayTeam, o.Outcome, o.StartTime)
}

// Archive is the append-only set of opportunities already recommended,
// in first-seen order.
type Archive struct {
	rows  []odds.Opportunity
	index map[string]struct{}
}

// NewArchive returns an empty archive.
func NewArchive() *Archive {
	return &Archive{index: make(map[string]struct{})}
}

// LoadArchive validates persisted archive rows. Any row without a well formed
// id, or whose id disagrees with its identity fields, fails the whole load
// with an *ArchiveCorruptionError. Repeated ids keep the first row.
func LoadArchive(rows []odds.Opportunity) (*Archive, error) {
	a := NewArchive()
	for i, row := range rows {
		if err := validateArchived(i, row); err != nil {
			return nil, err
		}
		a.add(row)
	}
	return a, nil
}

func validateArchived(i int, row odds.Opportunity) error {
	switch {
	case len(row.ID) != sha256.Size*2:
		return &ArchiveCorruptionError{Row: i, ID: row.ID, Reason: "id is not a sha256 hex digest"}
	case row.HomeTeam == "" || row.AwayTeam == "" || row.Outcome == "":
		return &ArchiveCorruptionError{Row: i, ID: row.ID, Reason: "missing identity fields"}
	case row.StartTime.IsZero():
		return &ArchiveCorruptionError{Row: i, ID: row.ID, Reason: "missing start time"}
	}
	if _, err := hex.DecodeString(row.ID); err != nil {
		return &ArchiveCorruptionError{Row: i, ID: row.ID, Reason: "id is not hex"}
	}
	if want := IdentityOf(row); want != row.ID {
		return &ArchiveCorruptionError{Row: i, ID: row.ID, Reason: "id does not match identity fields"}
	}
	return nil
}

func (a *Archive) add(o odds.Opportunity) bool {
	if _, ok := a.index[o.ID]; ok {
		return false
	}
	a.index[o.ID] = struct{}{}
	a.rows = append(a.rows, o)
	return true
}

// Contains reports whether id was already recommended.
func (a *Archive) Contains(id string) bool {
	_, ok := a.index[id]
	return ok
}

// Len is the number of archived opportunities.
func (a *Archive) Len() int {
	return len(a.rows)
}

// Rows returns a copy of the archived opportunities in first-seen order.
func (a *Archive) Rows() []odds.Opportunity {
	out := make([]odds.Opportunity, len(a.rows))
	copy(out, a.rows)
	return out
}

func (a *Archive) clone() *Archive {
	c := &Archive{
		rows:  make([]odds.Opportunity, len(a.rows), len(a.rows)+8),
		index: make(map[string]struct{}, len(a.index)),
	}
	copy(c.rows, a.rows)
	for id := range a.index {
		c.index[id] = struct{}{}
	}
	return c
}

// AssignIDs stamps each opportunity with its identity hash.
func AssignIDs(opps []odds.Opportunity) {
	for i := range opps {
		opps[i].ID = IdentityOf(opps[i])
	}
}

// Deduplicate returns the opportunities whose id is not yet archived, and an
// archive extended with them. The input archive is left untouched. Ids repeated
// within opps are emitted once.
func Deduplicate(opps []odds.Opportunity, archive *Archive) ([]odds.Opportunity, *Archive) {
	if archive == nil {
		archive = NewArchive()
	}
	updated := archive.clone()
	fresh := make([]odds.Opportunity, 0)
	for _, o := range opps {
		if o.ID == "" {
			o.ID = IdentityOf(o)
		}
		if updated.add(o) {
			fresh = append(fresh, o)
		}
	}
	return fresh, updated
}
