package models

import (
	"fmt"
	"strings"
)

// Mnemonic is an IL operator.
type Mnemonic string

const (
	OpLD     Mnemonic = "LD"
	OpLDN    Mnemonic = "LDN"
	OpAND    Mnemonic = "AND"
	OpANDN   Mnemonic = "ANDN"
	OpOR     Mnemonic = "OR"
	OpORN    Mnemonic = "ORN"
	OpANDP   Mnemonic = "AND("
	OpORP    Mnemonic = "OR("
	OpClose  Mnemonic = ")"
	OpST     Mnemonic = "ST"
	OpSTN    Mnemonic = "STN"
	OpS      Mnemonic = "S"
	OpR      Mnemonic = "R"
	OpBLK    Mnemonic = "BLK"
	OpIN     Mnemonic = "IN"
	OpCU     Mnemonic = "CU"
	OpCD     Mnemonic = "CD"
	OpOutBLK Mnemonic = "OUT_BLK"
	OpEndBLK Mnemonic = "END_BLK"
	OpJMP    Mnemonic = "JMP"
	OpCAL    Mnemonic = "CAL"
	OpExpr   Mnemonic = "[ expr ]"
)

// mnemonicField is the width the mnemonic is padded to before the operand.
const mnemonicField = 6

var mnemonics = map[string]Mnemonic{}

func init() {
	for _, m := range []Mnemonic{
		OpLD, OpLDN, OpAND, OpANDN, OpOR, OpORN, OpANDP, OpORP, OpClose,
		OpST, OpSTN, OpS, OpR, OpBLK, OpIN, OpCU, OpCD, OpOutBLK, OpEndBLK, OpJMP, OpCAL,
	} {
		mnemonics[string(m)] = m
	}
}

// Instruction is one IL statement.
type Instruction struct {
	Op      Mnemonic `json:"op" yaml:"op"`
	Operand string   `json:"operand,omitempty" yaml:"operand,omitempty"`
	Comment string   `json:"comment,omitempty" yaml:"comment,omitempty"`
}

// Text renders the statement with the operand aligned after a six-column
// mnemonic field, e.g. "LD    %I0.0". Assignment blocks render as "[ x := y ]".
func (in Instruction) Text() string {
	if in.Op == OpExpr {
		return "[ " + in.Operand + " ]"
	}
	if in.Operand == "" {
		return string(in.Op)
	}
	op := string(in.Op)
	if len(op) < mnemonicField {
		op += strings.Repeat(" ", mnemonicField-len(op))
	} else {
		op += " "
	}
	return op + in.Operand
}

// ParseInstruction reads one line of IL. Surrounding whitespace and (* *)
// comments are stripped; the comment text is kept.
func ParseInstruction(line string) (Instruction, error) {
	t := strings.TrimSpace(line)
	var comment string
	if i := strings.Index(t, "(*"); i >= 0 {
		if j := strings.LastIndex(t, "*)"); j > i {
			comment = strings.TrimSpace(t[i+2 : j])
			t = strings.TrimSpace(t[:i] + t[j+2:])
		}
	}
	if t == "" {
		return Instruction{}, fmt.Errorf("empty instruction")
	}
	if strings.HasPrefix(t, "[") {
		if !strings.HasSuffix(t, "]") {
			return Instruction{}, fmt.Errorf("unterminated expression %q", line)
		}
		return Instruction{Op: OpExpr, Operand: strings.TrimSpace(t[1 : len(t)-1]), Comment: comment}, nil
	}
	for _, paren := range []Mnemonic{OpANDP, OpORP} {
		if len(t) >= len(paren) && strings.EqualFold(t[:len(paren)], string(paren)) {
			return Instruction{Op: paren, Operand: strings.TrimSpace(t[len(paren):]), Comment: comment}, nil
		}
	}
	word, rest, _ := strings.Cut(t, " ")
	m, ok := mnemonics[strings.ToUpper(word)]
	if !ok {
		return Instruction{}, fmt.Errorf("unknown mnemonic %q", word)
	}
	return Instruction{Op: m, Operand: strings.TrimSpace(rest), Comment: comment}, nil
}

// ParseListing reads IL text, one statement per line, skipping blank lines
// and lines holding only a comment.
func ParseListing(text string) ([]Instruction, error) {
	var out []Instruction
	for n, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		t := strings.TrimSpace(line)
		if t == "" || (strings.HasPrefix(t, "(*") && strings.HasSuffix(t, "*)")) {
			continue
		}
		in, err := ParseInstruction(t)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n+1, err)
		}
		out = append(out, in)
	}
	return out, nil
}

// Listing renders instructions one per line.
func Listing(ins []Instruction) string {
	var b strings.Builder
	for _, in := range ins {
		b.WriteString(in.Text())
		b.WriteByte('\n')
	}
	return b.String()
}
