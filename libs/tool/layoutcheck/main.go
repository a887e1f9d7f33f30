// Layoutcheck verifies that the IPC record types keep their fixed 128-byte
// layout. The shared rings copy raw struct bytes between processes, so an
// accidental field edit that changes size or alignment is a wire break; this
// tool fails the build before it ships.
//
// Usage:
//
//	go run ./libs/tool/layoutcheck [-pkg main/internal/schema] [-size 128]
package main

import (
	"flag"
	"fmt"
	"go/types"
	"os"
	"strings"

	"golang.org/x/tools/go/packages"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "layoutcheck: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	pkgPath := flag.String("pkg", "main/internal/schema", "package holding the record types")
	wantSize := flag.Int64("size", 128, "required record size in bytes")
	flag.Parse()

	cfg := &packages.Config{
		Mode: packages.NeedName |
			packages.NeedTypes |
			packages.NeedTypesInfo |
			packages.NeedTypesSizes,
	}
	pkgs, err := packages.Load(cfg, *pkgPath)
	if err != nil {
		return err
	}
	if len(pkgs) == 0 {
		return fmt.Errorf("no packages found for %s", *pkgPath)
	}
	pkg := pkgs[0]
	if len(pkg.Errors) > 0 {
		return fmt.Errorf("load failed: %s", pkg.Errors[0])
	}

	sizes := pkg.TypesSizes
	scope := pkg.Types.Scope()
	checked := 0
	var bad []string
	for _, name := range scope.Names() {
		if !strings.HasSuffix(name, "Message") {
			continue
		}
		obj, ok := scope.Lookup(name).(*types.TypeName)
		if !ok {
			continue
		}
		st, ok := obj.Type().Underlying().(*types.Struct)
		if !ok {
			continue
		}
		checked++

		if got := sizes.Sizeof(obj.Type()); got != *wantSize {
			bad = append(bad, fmt.Sprintf("%s: size %d, want %d", name, got, *wantSize))
		}
		offsets := fieldOffsets(sizes, st)
		for i := 0; i < st.NumFields(); i++ {
			field := st.Field(i)
			align := sizes.Alignof(field.Type())
			if align > 0 && offsets[i]%align != 0 {
				bad = append(bad, fmt.Sprintf("%s.%s: offset %d not aligned to %d",
					name, field.Name(), offsets[i], align))
			}
		}
	}

	if checked == 0 {
		return fmt.Errorf("no *Message record types found in %s", *pkgPath)
	}
	if len(bad) > 0 {
		for _, line := range bad {
			fmt.Fprintln(os.Stderr, line)
		}
		return fmt.Errorf("%d layout violations", len(bad))
	}
	fmt.Printf("layoutcheck: %d record types verified at %d bytes\n", checked, *wantSize)
	return nil
}

func fieldOffsets(sizes types.Sizes, st *types.Struct) []int64 {
	fields := make([]*types.Var, st.NumFields())
	for i := range fields {
		fields[i] = st.Field(i)
	}
	return sizes.Offsetsof(fields)
}
