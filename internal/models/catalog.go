package models

import "strings"

type catalogEntry struct {
	di, do, ai, hsc, pto int
	ethernet, serial     bool
}

// embedded I/O of the supported controllers
var catalog = map[string]catalogEntry{
	"TM221CE16T":  {di: 9, do: 7, ai: 2, hsc: 4, pto: 2, ethernet: true, serial: true},
	"TM221CE24T":  {di: 14, do: 10, ai: 2, hsc: 4, pto: 2, ethernet: true, serial: true},
	"TM221CE40T":  {di: 24, do: 16, ai: 2, hsc: 4, pto: 2, ethernet: true, serial: true},
	"TM221C16R":   {di: 9, do: 7, ai: 2, hsc: 4, serial: true},
	"TM241CE40T":  {di: 24, do: 16, hsc: 8, pto: 4, ethernet: true, serial: true},
	"TM241CEC24T": {di: 14, do: 10, hsc: 8, pto: 4, ethernet: true, serial: true},
}

// CatalogReferences lists the known controller references.
func CatalogReferences() []string {
	return []string{"TM221C16R", "TM221CE16T", "TM221CE24T", "TM221CE40T", "TM241CE40T", "TM241CEC24T"}
}

// CatalogIO returns the embedded I/O modules of a controller reference.
func CatalogIO(reference string) ([]*Module, bool) {
	ref := strings.ToUpper(strings.TrimSpace(reference))
	e, ok := catalog[ref]
	if !ok {
		return nil, false
	}
	var mods []*Module
	add := func(t ModuleType, n int) {
		if n > 0 {
			mods = append(mods, NewModule(0, t, ref, n))
		}
	}
	add(ModuleDigitalIn, e.di)
	add(ModuleDigitalOut, e.do)
	add(ModuleAnalogIn, e.ai)
	add(ModuleHSC, e.hsc)
	add(ModulePulseTrain, e.pto)
	if e.ethernet {
		mods = append(mods, &Module{Type: ModuleEthernet, Catalog: ref})
	}
	if e.serial {
		mods = append(mods, &Module{Type: ModuleSerial, Catalog: ref})
	}
	return mods, true
}

// UseCatalog sets the controller reference and, when it is known, replaces
// the hardware plan with the controller's embedded I/O.
func (p *Project) UseCatalog(reference string) error {
	if err := p.mutable(); err != nil {
		return err
	}
	p.Catalog = strings.TrimSpace(reference)
	if mods, ok := CatalogIO(reference); ok {
		p.Hardware = Hardware{Modules: mods}
	}
	return nil
}
