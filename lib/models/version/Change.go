package version

import (
	"encoding/json"
	"fmt"
)

type ChangeKind string

const (
	KindAddition     ChangeKind = "addition"
	KindDeletion     ChangeKind = "deletion"
	KindModification ChangeKind = "modification"
)

type ChangeImpact string

const (
	ImpactMinor    ChangeImpact = "minor"
	ImpactModerate ChangeImpact = "moderate"
	ImpactMajor    ChangeImpact = "major"
)

// LineRange is a 1-based inclusive range of lines.
type LineRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

func (r LineRange) Len() int {
	return r.End - r.Start + 1
}

func (r LineRange) Overlaps(other LineRange) bool {
	return r.Start <= other.End && other.Start <= r.End
}

// VersionChange is the closed set of edit descriptions a version can carry.
// The only variants are Addition, Deletion and Modification; the unexported
// marker keeps the set closed outside this package.
type VersionChange interface {
	Kind() ChangeKind
	isVersionChange()
}

// Addition inserts Content after line After of the source content (After 0
// inserts at the top). Lines is the range the inserted lines occupy in the
// resulting content.
type Addition struct {
	Section string
	After   int
	Lines   LineRange
	Content string
	Impact  ChangeImpact
}

func (Addition) Kind() ChangeKind { return KindAddition }
func (Addition) isVersionChange() {}

// Deletion removes the source lines covered by Lines. Content preserves what
// was removed.
type Deletion struct {
	Section string
	Lines   LineRange
	Content string
	Impact  ChangeImpact
}

func (Deletion) Kind() ChangeKind { return KindDeletion }
func (Deletion) isVersionChange() {}

// Modification replaces the source lines covered by Lines with New. Old and
// New always hold the same number of lines; a replacement that grows or
// shrinks the content decomposes into Modification plus Addition or Deletion.
type Modification struct {
	Section string
	Lines   LineRange
	Old     string
	New     string
	Impact  ChangeImpact
}

func (Modification) Kind() ChangeKind { return KindModification }
func (Modification) isVersionChange() {}

// changeEnvelope is the kind-tagged wire form shared by all three variants.
type changeEnvelope struct {
	Kind    ChangeKind   `json:"kind"`
	Section string       `json:"section,omitempty"`
	After   *int         `json:"after,omitempty"`
	Lines   LineRange    `json:"lineRange"`
	Old     string       `json:"oldContent,omitempty"`
	New     string       `json:"newContent,omitempty"`
	Impact  ChangeImpact `json:"impact,omitempty"`
}

func (a Addition) MarshalJSON() ([]byte, error) {
	after := a.After
	return json.Marshal(changeEnvelope{
		Kind:    KindAddition,
		Section: a.Section,
		After:   &after,
		Lines:   a.Lines,
		New:     a.Content,
		Impact:  a.Impact,
	})
}

func (d Deletion) MarshalJSON() ([]byte, error) {
	return json.Marshal(changeEnvelope{
		Kind:    KindDeletion,
		Section: d.Section,
		Lines:   d.Lines,
		Old:     d.Content,
		Impact:  d.Impact,
	})
}

func (m Modification) MarshalJSON() ([]byte, error) {
	return json.Marshal(changeEnvelope{
		Kind:    KindModification,
		Section: m.Section,
		Lines:   m.Lines,
		Old:     m.Old,
		New:     m.New,
		Impact:  m.Impact,
	})
}

func changeFromEnvelope(env changeEnvelope) (VersionChange, error) {
	switch env.Kind {
	case KindAddition:
		after := 0
		if env.After != nil {
			after = *env.After
		}
		return Addition{
			Section: env.Section,
			After:   after,
			Lines:   env.Lines,
			Content: env.New,
			Impact:  env.Impact,
		}, nil
	case KindDeletion:
		return Deletion{
			Section: env.Section,
			Lines:   env.Lines,
			Content: env.Old,
			Impact:  env.Impact,
		}, nil
	case KindModification:
		return Modification{
			Section: env.Section,
			Lines:   env.Lines,
			Old:     env.Old,
			New:     env.New,
			Impact:  env.Impact,
		}, nil
	default:
		return nil, fmt.Errorf("unknown change kind %q", env.Kind)
	}
}

// MarshalChanges serializes a change list to its kind-tagged JSON form.
func MarshalChanges(changes []VersionChange) ([]byte, error) {
	if changes == nil {
		changes = []VersionChange{}
	}
	return json.Marshal(changes)
}

// UnmarshalChanges reconstructs the concrete variants from kind-tagged JSON.
func UnmarshalChanges(data []byte) ([]VersionChange, error) {
	if len(data) == 0 {
		return []VersionChange{}, nil
	}

	var envelopes []changeEnvelope
	if err := json.Unmarshal(data, &envelopes); err != nil {
		return nil, fmt.Errorf("error unmarshaling changes: %w", err)
	}

	changes := make([]VersionChange, 0, len(envelopes))
	for _, env := range envelopes {
		change, err := changeFromEnvelope(env)
		if err != nil {
			return nil, err
		}
		changes = append(changes, change)
	}
	return changes, nil
}

// AncestorSpan is the region of the source content a change touches, used for
// overlap checks during merges. Additions are zero-width insertion points
// between After and After+1.
func AncestorSpan(change VersionChange) (start int, end int, point bool) {
	switch c := change.(type) {
	case Addition:
		return c.After, c.After, true
	case Deletion:
		return c.Lines.Start, c.Lines.End, false
	case Modification:
		return c.Lines.Start, c.Lines.End, false
	}
	return 0, 0, false
}

// ChangeConflict pairs two changes from different branches that touch the
// same region of their common ancestor.
type ChangeConflict struct {
	Source VersionChange `json:"source"`
	Target VersionChange `json:"target"`
}

func (c *ChangeConflict) UnmarshalJSON(data []byte) error {
	var aux struct {
		Source json.RawMessage `json:"source"`
		Target json.RawMessage `json:"target"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	var err error
	if c.Source, err = unmarshalChange(aux.Source); err != nil {
		return err
	}
	c.Target, err = unmarshalChange(aux.Target)
	return err
}

func unmarshalChange(data []byte) (VersionChange, error) {
	var env changeEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("error unmarshaling change: %w", err)
	}
	return changeFromEnvelope(env)
}

// UnmarshalChange reconstructs a single change from its kind-tagged JSON form.
func UnmarshalChange(data []byte) (VersionChange, error) {
	return unmarshalChange(data)
}

// ChangesCollide reports whether two changes touch overlapping regions of the
// same source content. Two insertions at the same point collide because their
// relative order would be ambiguous; an insertion inside another change's
// replaced or deleted region collides with it.
func ChangesCollide(a VersionChange, b VersionChange) bool {
	aStart, aEnd, aPoint := AncestorSpan(a)
	bStart, bEnd, bPoint := AncestorSpan(b)

	if aPoint && bPoint {
		return aStart == bStart
	}
	if aPoint {
		return bStart <= aStart && aStart < bEnd
	}
	if bPoint {
		return aStart <= bStart && bStart < aEnd
	}
	return aStart <= bEnd && bStart <= aEnd
}
