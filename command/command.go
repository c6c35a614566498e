// Package command parses chat messages into bot commands.
package command

import (
	"strings"
	"unicode"
)

const DefaultPrefix = ">>"

type Verb string

const (
	Add    Verb = "add"
	Stats  Verb = "stats"
	Remove Verb = "remove"
	Help   Verb = "help"
)

// Capability is what an issuer needs to run a command.
type Capability int

const (
	CapabilityNone Capability = iota
	CapabilityAdmin
)

func (c Capability) String() string {
	if c == CapabilityAdmin {
		return "admin"
	}
	return "none"
}

type verbSpec struct {
	needsParam bool
	capability Capability
}

var verbs = map[Verb]verbSpec{
	Add:    {needsParam: true, capability: CapabilityNone},
	Stats:  {capability: CapabilityAdmin},
	Remove: {needsParam: true, capability: CapabilityAdmin},
	Help:   {capability: CapabilityNone},
}

type Kind int

const (
	// None means the text is not addressed to the bot.
	None Kind = iota
	Valid
	Invalid
	MissingParameter
)

func (k Kind) String() string {
	switch k {
	case Valid:
		return "valid"
	case Invalid:
		return "invalid"
	case MissingParameter:
		return "missing_parameter"
	default:
		return "none"
	}
}

type Command struct {
	Verb  Verb
	Param string
}

func (c Command) Capability() Capability {
	return verbs[c.Verb].capability
}

type Result struct {
	Kind    Kind
	Command Command
	// Verb is the raw verb token, set for Invalid and MissingParameter.
	Verb string
}

// Parse recognises "<prefix><verb> <param...>". Whitespace between the prefix
// and the verb is allowed, verbs are case-insensitive.
func Parse(prefix, text string) Result {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	text = strings.TrimLeftFunc(text, unicode.IsSpace)
	rest, ok := strings.CutPrefix(text, prefix)
	if !ok {
		return Result{Kind: None}
	}
	rest = strings.TrimLeftFunc(rest, unicode.IsSpace)

	token, param := rest, ""
	if i := strings.IndexFunc(rest, unicode.IsSpace); i >= 0 {
		token, param = rest[:i], rest[i:]
	}
	param = strings.TrimSpace(param)

	v := Verb(strings.ToLower(token))
	def, known := verbs[v]
	if !known {
		return Result{Kind: Invalid, Verb: token}
	}
	if def.needsParam && param == "" {
		return Result{Kind: MissingParameter, Verb: token, Command: Command{Verb: v}}
	}
	return Result{Kind: Valid, Command: Command{Verb: v, Param: param}, Verb: token}
}

// Usage renders the command overview shown by the help command.
func Usage(prefix string) string {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	var b strings.Builder
	b.WriteString("Commands:\n")
	b.WriteString("`" + prefix + "add NAME` with one image attached: submit an emote for voting\n")
	b.WriteString("`" + prefix + "stats`: show the current ranking (admins)\n")
	b.WriteString("`" + prefix + "remove ID|#RANK`: remove a candidate (admins)\n")
	b.WriteString("`" + prefix + "help`: this message")
	return b.String()
}
