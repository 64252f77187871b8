package core

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidPersona = errors.New("invalid persona")
	ErrInvalidTariff  = errors.New("invalid tariff")
)

// Persona selects the behavioural modifier of the system instruction.
// The zero value is not a valid persona.
type Persona uint8

const (
	PersonaEmpathic Persona = iota + 1
	PersonaCBT
	PersonaMindfulness
	PersonaCoach
)

var personaNames = map[Persona]string{
	PersonaEmpathic:    "empathic",
	PersonaCBT:         "cbt",
	PersonaMindfulness: "mindfulness",
	PersonaCoach:       "coach",
}

func (p Persona) String() string {
	if name, ok := personaNames[p]; ok {
		return name
	}
	return fmt.Sprintf("Persona(%d)", uint8(p))
}

func (p Persona) Valid() bool {
	_, ok := personaNames[p]
	return ok
}

func ParsePersona(s string) (Persona, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for p, n := range personaNames {
		if n == name {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidPersona, s)
}

// PersonaOrDefault parses s and falls back to PersonaEmpathic.
func PersonaOrDefault(s string) Persona {
	p, err := ParsePersona(s)
	if err != nil {
		return PersonaEmpathic
	}
	return p
}

// Tariff is the subscription tier. It gates response depth and model choice.
type Tariff uint8

const (
	TariffFree Tariff = iota + 1
	TariffBasic
	TariffPro
	TariffPremium
)

var tariffNames = map[Tariff]string{
	TariffFree:    "free",
	TariffBasic:   "basic",
	TariffPro:     "pro",
	TariffPremium: "premium",
}

func (t Tariff) String() string {
	if name, ok := tariffNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Tariff(%d)", uint8(t))
}

func (t Tariff) Valid() bool {
	_, ok := tariffNames[t]
	return ok
}

func ParseTariff(s string) (Tariff, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for t, n := range tariffNames {
		if n == name {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidTariff, s)
}

// TariffOrDefault parses s and falls back to TariffFree.
func TariffOrDefault(s string) Tariff {
	t, err := ParseTariff(s)
	if err != nil {
		return TariffFree
	}
	return t
}
