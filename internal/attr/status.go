package attr

import "github.com/rotisserie/eris"

// Status tracks how far resolution of one field got.
type Status int

const (
	// StatusUnknown means no resolution was attempted yet.
	StatusUnknown Status = iota
	// StatusRequested means a decision was created and is awaiting an answer.
	StatusRequested
	// StatusAvailable means the value is final until overwritten by Set.
	StatusAvailable
	// StatusNotAvailable means every provider was tried and none had a value.
	StatusNotAvailable
)

var statusNames = map[Status]string{
	StatusUnknown:      "UNKNOWN",
	StatusRequested:    "REQUESTED",
	StatusAvailable:    "AVAILABLE",
	StatusNotAvailable: "NOT_AVAILABLE",
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return "INVALID"
}

// ParseStatus is the inverse of Status.String.
func ParseStatus(s string) (Status, error) {
	for st, n := range statusNames {
		if n == s {
			return st, nil
		}
	}
	return StatusUnknown, eris.Errorf("attr: invalid status %q", s)
}

// Source names the provider kind that produced a value.
type Source string

const (
	SourceNone        Source = ""
	SourcePropertySet Source = "property_set"
	SourceAssociation Source = "association"
	SourceFinder      Source = "finder"
	SourcePattern     Source = "pattern"
	SourceFunction    Source = "function"
	SourceEnrichment  Source = "enrichment"
	SourceDefault     Source = "default"
	SourceDecision    Source = "decision"
	SourceSet         Source = "set"
)

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(b []byte) error {
	st, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = st
	return nil
}
