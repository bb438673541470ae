package sshpass

const (
	// DefaultPasswordPrompt omits the leading letter so that both
	// "Password" and "password" match.
	DefaultPasswordPrompt = "assword"

	// HostAuthenticityPrompt is what ssh prints before asking to accept an
	// unknown host key.
	HostAuthenticityPrompt = "The authenticity of host "
)

// A Matcher scans a byte stream for a literal pattern, carrying its progress
// across calls to Feed so that a pattern split between reads still matches.
//
// On a mismatch the state drops to zero and only the current byte is
// re-checked against the first pattern byte. That is enough for prompts such
// as "assword" but can miss matches of patterns that overlap themselves
// (e.g. "aab" in "aaab").
type Matcher struct {
	pattern []byte
	state   int
}

func NewMatcher(pattern string) *Matcher {
	return &Matcher{pattern: []byte(pattern)}
}

// Feed advances the match over p and reports whether the pattern is fully
// matched. Once matched, the remainder of p is not examined and the state
// stays full until Reset.
func (m *Matcher) Feed(p []byte) bool {
	for i := 0; m.state < len(m.pattern) && i < len(p); i++ {
		if m.pattern[m.state] == p[i] {
			m.state++
			continue
		}
		m.state = 0
		if m.pattern[0] == p[i] {
			m.state++
		}
	}
	return m.Matched()
}

func (m *Matcher) Matched() bool { return m.state == len(m.pattern) }

func (m *Matcher) Reset() { m.state = 0 }

// State is the number of pattern bytes matched contiguously so far.
func (m *Matcher) State() int { return m.state }

func (m *Matcher) Pattern() string { return string(m.pattern) }
