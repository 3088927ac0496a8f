// Package grouping partitions clinical line items into settlement groups.
// Grouping is a pure function over a snapshot: callers re-invoke it whenever
// the input set or the exclusion state changes, never patch a stale result.
package grouping

import (
	"sort"
	"strings"
	"time"

	"liquimed/internal/core/types"
	"liquimed/internal/domain/records"
)

// UnknownKey is the bucket for items with an empty grouping dimension.
const UnknownKey = "unknown"

// GroupState describes how much of a group has been settled.
type GroupState string

const (
	StateUnsettled        GroupState = "UNSETTLED"
	StatePartiallySettled GroupState = "PARTIALLY_SETTLED"
	StateSettled          GroupState = "SETTLED"
)

// KeyFunc extracts the grouping dimensions of a line item, most significant
// first. Empty dimensions bucket under UnknownKey.
type KeyFunc func(it *records.LineItem) []string

// ByClientUnitExam groups by client, production unit and exam type.
func ByClientUnitExam(it *records.LineItem) []string {
	return []string{it.ClientName, it.ProductionUnit, it.ExamType}
}

// BySiteExam groups by site and exam type (auditor/evaluator modules).
func BySiteExam(it *records.LineItem) []string {
	return []string{it.SiteCode, it.ExamType}
}

// SettlementGroup is one aggregation bucket.
type SettlementGroup struct {
	// GroupID is the joined key, stable across a processing run for the
	// same inputs. Not globally persisted.
	GroupID string `json:"groupId"`

	// Keys are the grouping dimensions in declaration order.
	Keys []string `json:"keys"`

	// Items holds every member, excluded and settled ones included.
	Items []records.LineItem `json:"items"`

	// TotalAmount is the sum over eligible members only (not excluded,
	// not already settled).
	TotalAmount types.Money `json:"totalAmount"`

	// EarliestServiceDate is the minimum service start date over all members.
	EarliestServiceDate time.Time `json:"earliestServiceDate"`

	// State is derived from member flags.
	State GroupState `json:"state"`

	ExcludedCount int `json:"excludedCount"`
	SettledCount  int `json:"settledCount"`
	EligibleCount int `json:"eligibleCount"`
}

// keySeparator joins dimensions into a GroupID. Unit separator avoids
// collisions with user-entered text.
const keySeparator = "\x1f"

// KeyOf returns the GroupID an item belongs to under key.
func KeyOf(it *records.LineItem, key KeyFunc) string {
	dims := key(it)
	normalized := make([]string, len(dims))
	for i, d := range dims {
		d = strings.TrimSpace(d)
		if d == "" {
			d = UnknownKey
		}
		normalized[i] = d
	}
	return strings.Join(normalized, keySeparator)
}

// Group partitions items into settlement groups. Single pass, pure; an empty
// input yields an empty slice. Output order is case-insensitive lexicographic
// over the key fields, ties broken left-to-right then case-sensitively.
func Group(items []records.LineItem, key KeyFunc) []SettlementGroup {
	byKey := make(map[string]*SettlementGroup)
	order := make([]string, 0)

	for i := range items {
		it := items[i]
		groupID := KeyOf(&it, key)

		g, ok := byKey[groupID]
		if !ok {
			g = &SettlementGroup{
				GroupID: groupID,
				Keys:    strings.Split(groupID, keySeparator),
			}
			byKey[groupID] = g
			order = append(order, groupID)
		}

		g.Items = append(g.Items, it)
		if g.EarliestServiceDate.IsZero() || (!it.ServiceStartDate.IsZero() && it.ServiceStartDate.Before(g.EarliestServiceDate)) {
			g.EarliestServiceDate = it.ServiceStartDate
		}

		switch {
		case it.IsSettled:
			g.SettledCount++
		case it.IsExcluded:
			g.ExcludedCount++
		default:
			g.EligibleCount++
			g.TotalAmount = g.TotalAmount.Add(it.Amount)
		}
	}

	groups := make([]SettlementGroup, 0, len(order))
	for _, groupID := range order {
		g := byKey[groupID]
		g.State = deriveState(g)
		groups = append(groups, *g)
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return lessKeys(groups[i].Keys, groups[j].Keys)
	})

	return groups
}

// deriveState computes the group state from member counters.
func deriveState(g *SettlementGroup) GroupState {
	switch {
	case g.SettledCount == 0:
		return StateUnsettled
	case g.EligibleCount == 0 && g.ExcludedCount == 0:
		return StateSettled
	default:
		return StatePartiallySettled
	}
}

// lessKeys compares key slices field by field, case-insensitive first.
func lessKeys(a, b []string) bool {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		la, lb := strings.ToLower(a[i]), strings.ToLower(b[i])
		if la != lb {
			return la < lb
		}
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

// Select returns the groups whose GroupID is in ids, preserving group order.
func Select(groups []SettlementGroup, ids map[string]struct{}) []SettlementGroup {
	selected := make([]SettlementGroup, 0, len(ids))
	for _, g := range groups {
		if _, ok := ids[g.GroupID]; ok {
			selected = append(selected, g)
		}
	}
	return selected
}
