package analysis

import (
	"path"
	"strings"
)

// ResolveImport finds the module an import specifier names, relative to
// from. Relative specifiers ("./x", "../x") are joined with the importing
// module's directory; anything else is looked up from the project root.
// Each candidate is tried as is, with ".js" appended and as a directory
// holding "index.js".
func (p *Project) ResolveImport(from *ModuleRecord, specifier string) (*ModuleRecord, bool) {
	fromName := ""
	if from != nil {
		fromName = from.name
	}
	key := resolveKey{from: path.Dir(fromName), specifier: specifier}
	if name, ok := p.resolved.Get(key); ok {
		if name == "" {
			return nil, false
		}
		if m := p.Module(name); m != nil {
			return m, true
		}
	}

	for _, candidate := range importCandidates(fromName, specifier) {
		if m := p.Module(candidate); m != nil {
			p.resolved.Add(key, m.name)
			return m, true
		}
	}
	p.resolved.Add(key, "")
	return nil, false
}

func importCandidates(from, specifier string) []string {
	base := specifier
	if strings.HasPrefix(specifier, "./") || strings.HasPrefix(specifier, "../") {
		base = path.Join(path.Dir(from), specifier)
	} else {
		base = strings.TrimPrefix(path.Clean(specifier), "/")
	}
	candidates := []string{base}
	if !strings.HasSuffix(base, ".js") {
		candidates = append(candidates, base+".js")
	}
	return append(candidates, path.Join(base, "index.js"))
}
