package milp

import (
	"fmt"
	"io"
	"math"
	"strings"
)

// WriteLP outputs the model in CPLEX LP text format so it can be handed to
// an external solver or inspected by hand.
//
// Ranged rows (finite on both ends, not an equality) have no direct LP-format
// encoding and are emitted as a pair of one-sided rows sharing the base name.
// Variables and rows with empty names get positional names ("v12", "c7");
// names are sanitized to the LP identifier alphabet.
func WriteLP(w io.Writer, m *Model) error {
	varNames := make([]string, len(m.Vars))
	for i, v := range m.Vars {
		varNames[i] = lpIdent(v.Name, fmt.Sprintf("v%d", i))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "\\ Problem: %s\n", m.Name)
	b.WriteString("Minimize\n obj:")
	if len(m.Objective) == 0 {
		b.WriteString(" 0 " + varNames[0])
	}
	for _, t := range m.Objective {
		writeTerm(&b, t.Coeff, varNames[t.Var])
	}
	if m.ObjOffset != 0 {
		writeNum(&b, m.ObjOffset)
	}
	b.WriteString("\nSubject To\n")
	for i, r := range m.Rows {
		name := lpIdent(r.Name, fmt.Sprintf("c%d", i))
		loOpen, hiOpen := math.IsInf(r.Bounds.Lo, -1), math.IsInf(r.Bounds.Hi, 1)
		switch {
		case loOpen && hiOpen:
			continue
		case r.Bounds.IsFixed():
			writeRow(&b, name, r.Terms, varNames, "=", r.Bounds.Lo)
		case loOpen:
			writeRow(&b, name, r.Terms, varNames, "<=", r.Bounds.Hi)
		case hiOpen:
			writeRow(&b, name, r.Terms, varNames, ">=", r.Bounds.Lo)
		default:
			writeRow(&b, name+"_lo", r.Terms, varNames, ">=", r.Bounds.Lo)
			writeRow(&b, name+"_hi", r.Terms, varNames, "<=", r.Bounds.Hi)
		}
	}
	b.WriteString("Bounds\n")
	for i, v := range m.Vars {
		if v.Kind == Binary && v.Bounds == (Bounds{0, 1}) {
			continue
		}
		lo, hi := v.Bounds.Lo, v.Bounds.Hi
		switch {
		case math.IsInf(lo, -1) && math.IsInf(hi, 1):
			fmt.Fprintf(&b, " %s free\n", varNames[i])
		case v.Bounds.IsFixed():
			fmt.Fprintf(&b, " %s = %s\n", varNames[i], fmtNum(lo))
		case math.IsInf(hi, 1):
			fmt.Fprintf(&b, " %s >= %s\n", varNames[i], fmtNum(lo))
		case math.IsInf(lo, -1):
			fmt.Fprintf(&b, " %s <= %s\n", varNames[i], fmtNum(hi))
		default:
			fmt.Fprintf(&b, " %s <= %s <= %s\n", fmtNum(lo), varNames[i], fmtNum(hi))
		}
	}
	writeKindSection(&b, m, varNames, Integer, "Generals")
	writeKindSection(&b, m, varNames, Binary, "Binaries")
	b.WriteString("End\n")

	_, err := io.WriteString(w, b.String())
	return err
}

func writeKindSection(b *strings.Builder, m *Model, varNames []string, k VarKind, header string) {
	wrote := false
	for i, v := range m.Vars {
		if v.Kind != k {
			continue
		}
		if !wrote {
			b.WriteString(header + "\n")
			wrote = true
		}
		fmt.Fprintf(b, " %s\n", varNames[i])
	}
}

func writeRow(b *strings.Builder, name string, terms []Term, varNames []string, op string, rhs float64) {
	fmt.Fprintf(b, " %s:", name)
	if len(terms) == 0 {
		b.WriteString(" 0 " + varNames[0])
	}
	for _, t := range terms {
		writeTerm(b, t.Coeff, varNames[t.Var])
	}
	fmt.Fprintf(b, " %s %s\n", op, fmtNum(rhs))
}

func writeTerm(b *strings.Builder, coeff float64, name string) {
	if coeff >= 0 {
		fmt.Fprintf(b, " + %s %s", fmtNum(coeff), name)
	} else {
		fmt.Fprintf(b, " - %s %s", fmtNum(-coeff), name)
	}
}

func writeNum(b *strings.Builder, v float64) {
	if v >= 0 {
		fmt.Fprintf(b, " + %s", fmtNum(v))
	} else {
		fmt.Fprintf(b, " - %s", fmtNum(-v))
	}
}

// LP format readers accept plain decimal and exponent notation; %g keeps
// small integers readable.
func fmtNum(v float64) string {
	return fmt.Sprintf("%g", v)
}

// lpIdent sanitizes a name to the LP identifier alphabet, falling back to
// `fallback` for empty names.
func lpIdent(name, fallback string) string {
	if name == "" {
		return fallback
	}
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '_', r == '.', r == '(', r == ')':
			b.WriteRune(r)
		case r == '[':
			b.WriteRune('(')
		case r == ']':
			b.WriteRune(')')
		default:
			b.WriteRune('_')
		}
	}
	s := b.String()
	if s[0] >= '0' && s[0] <= '9' {
		s = "x" + s
	}
	return s
}
