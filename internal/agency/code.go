// Package agency fetches daily discharge records from the gauge agencies
// whose statistics can replace canonical reach priors.
package agency

import (
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/sos-priors/internal/model"
)

// ErrUnknownAgency is returned when a name does not match a supported agency.
var ErrUnknownAgency = eris.New("agency: unknown agency")

// Code identifies a gauge agency.
type Code int

// Supported agencies.
const (
	GRDC Code = iota + 1
	USGS
	WSC
	DEFRA
	ABOM
	MLIT
	Hidroweb
	DGA
	EAU
	DWA
	MEFCCWP
	HydroShare
)

// codeNames are also the provenance source names, so grdc and usgs stay
// lower case.
var codeNames = map[Code]string{
	GRDC:       "grdc",
	USGS:       "usgs",
	WSC:        "WSC",
	DEFRA:      "DEFRA",
	ABOM:       "ABOM",
	MLIT:       "MLIT",
	Hidroweb:   "Hidroweb",
	DGA:        "DGA",
	EAU:        "EAU",
	DWA:        "DWA",
	MEFCCWP:    "MEFCCWP",
	HydroShare: "HydroShare",
}

// Codes returns every supported agency in declaration order.
func Codes() []Code {
	out := make([]Code, 0, len(codeNames))
	for c := GRDC; c <= HydroShare; c++ {
		out = append(out, c)
	}
	return out
}

// ParseCode matches name case-insensitively against the supported agencies.
func ParseCode(name string) (Code, error) {
	for c, n := range codeNames {
		if strings.EqualFold(n, strings.TrimSpace(name)) {
			return c, nil
		}
	}
	return 0, eris.Wrapf(ErrUnknownAgency, "%q", name)
}

func (c Code) String() string {
	if n, ok := codeNames[c]; ok {
		return n
	}
	return "unknown"
}

// Key is the lower-case name used in configuration keys.
func (c Code) Key() string { return strings.ToLower(c.String()) }

// SourceCode is the short code written to the provenance ledger.
func (c Code) SourceCode() model.SourceCode {
	return model.NewSourceCode(c.String())
}

// MarshalText implements encoding.TextMarshaler.
func (c Code) MarshalText() ([]byte, error) {
	if _, ok := codeNames[c]; !ok {
		return nil, eris.Wrapf(ErrUnknownAgency, "code %d", int(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Code) UnmarshalText(b []byte) error {
	parsed, err := ParseCode(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
