package types

// KeyKind tags a CandidateKey.
type KeyKind int

const (
	KeyLiteral KeyKind = iota // concrete model config id
	KeyAlias                  // binding slot resolved through the alias table
)

func (k KeyKind) String() string {
	switch k {
	case KeyLiteral:
		return "literal"
	case KeyAlias:
		return "alias"
	default:
		return "unknown"
	}
}

// CandidateKey names a backend either literally or through a binding alias.
type CandidateKey struct {
	Kind  KeyKind
	Value string
}

func Literal(id string) CandidateKey  { return CandidateKey{Kind: KeyLiteral, Value: id} }
func Alias(name string) CandidateKey  { return CandidateKey{Kind: KeyAlias, Value: name} }
func (k CandidateKey) String() string { return k.Kind.String() + ":" + k.Value }
func (k CandidateKey) IsZero() bool   { return k.Value == "" }

// ModelCandidate is a resolved, callable backend identity.
type ModelCandidate struct {
	Key     CandidateKey
	ID      string
	ModelID string
	APIKey  string
	BaseURL string
}

// Signature identifies the physical backend; two keys resolving to the same
// signature are attempted once per turn.
func (c ModelCandidate) Signature() string {
	return c.ID + "|" + c.ModelID
}
