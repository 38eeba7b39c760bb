package drift

// Kind classifies one URL's result for the current run.
type Kind string

const (
	KindErrored   Kind = "errored"
	KindFirstSeen Kind = "first-seen"
	KindChanged   Kind = "changed"
	KindUnchanged Kind = "unchanged"
)

// Outcome is the per-URL classification produced by a run.
//
// DuplicateOf is independent of Kind: it lists other URLs whose recorded
// digest equals Digest, and may accompany any successful Kind.
type Outcome struct {
	Index       int      `json:"index"`
	URL         string   `json:"url"`
	Kind        Kind     `json:"kind"`
	Status      int      `json:"status,omitempty"`
	FinalURL    string   `json:"final_url,omitempty"`
	Digest      string   `json:"digest,omitempty"`
	Previous    string   `json:"previous,omitempty"`
	DuplicateOf []string `json:"duplicate_of,omitempty"`
	Reason      string   `json:"reason,omitempty"`
}

func (o Outcome) Errored() bool {
	return o.Kind == KindErrored
}

// Drifted reports whether the content changed since the previous run.
func (o Outcome) Drifted() bool {
	return o.Kind == KindChanged
}

func (o Outcome) Duplicate() bool {
	return len(o.DuplicateOf) > 0
}
