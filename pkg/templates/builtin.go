package templates

import (
	"embed"
	"io/fs"
)

//go:embed all:builtin
var builtinFS embed.FS

// BuiltinName names the embedded template tree in search paths and errors.
const BuiltinName = "<builtin>"

// Builtin returns the embedded template tree. It is always the last entry
// of a search path built by SearchPath.
func Builtin() Source {
	sub, err := fs.Sub(builtinFS, "builtin")
	if err != nil {
		panic(err)
	}
	return Source{Name: BuiltinName, FS: sub}
}

// SearchPath turns configured template directories into sources, in order,
// followed by the built-in tree.
func SearchPath(dirs []string) []Source {
	sources := make([]Source, 0, len(dirs)+1)
	for _, d := range dirs {
		sources = append(sources, DirSource(d))
	}
	return append(sources, Builtin())
}
