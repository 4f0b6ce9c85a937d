package console

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"

	"futures-console/internal/core"
)

// prompter reads line-oriented answers from the session input. Every method
// returns io.EOF unchanged when the input ends, so the menu loop can exit
// cleanly on a closed stdin.
type prompter struct {
	in  *bufio.Reader
	out io.Writer
}

func (p *prompter) line(label string) (string, error) {
	fmt.Fprint(p.out, label)
	raw, err := p.in.ReadString('\n')
	if err != nil && (err != io.EOF || raw == "") {
		return "", err
	}
	return strings.TrimSpace(raw), nil
}

func (p *prompter) symbol(label string) (string, error) {
	raw, err := p.line(label)
	if err != nil {
		return "", err
	}
	symbol := strings.ToUpper(raw)
	if symbol == "" {
		return "", fmt.Errorf("symbol cannot be empty")
	}
	return symbol, nil
}

// optionalSymbol accepts an empty answer, meaning "all symbols".
func (p *prompter) optionalSymbol(label string) (string, error) {
	raw, err := p.line(label)
	if err != nil {
		return "", err
	}
	return strings.ToUpper(raw), nil
}

func (p *prompter) side(label string) (core.Side, error) {
	raw, err := p.line(label)
	if err != nil {
		return "", err
	}
	side := core.Side(strings.ToUpper(raw))
	if !side.Valid() {
		return "", fmt.Errorf("side must be BUY or SELL")
	}
	return side, nil
}

func (p *prompter) decimal(label string) (decimal.Decimal, error) {
	raw, err := p.line(label)
	if err != nil {
		return decimal.Zero, err
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid number %q", raw)
	}
	if value.Cmp(decimal.Zero) <= 0 {
		return decimal.Zero, fmt.Errorf("value must be > 0")
	}
	return value, nil
}

func (p *prompter) withDefault(label, def string) (string, error) {
	raw, err := p.line(label)
	if err != nil {
		return "", err
	}
	if raw == "" {
		return def, nil
	}
	return raw, nil
}

// confirm returns true only on an explicit "y"; anything else declines.
func (p *prompter) confirm(label string) (bool, error) {
	raw, err := p.line(label)
	if err != nil {
		return false, err
	}
	return strings.EqualFold(raw, "y"), nil
}
