// Command ronin-gen generates a Go source file declaring a model catalog
// from a JSON model definition, so applications can embed their catalog as
// compiled code instead of parsing it at startup.
//
// Usage:
//
//	ronin-gen -models models.json -o catalog_gen.go -package myapp
package main

import (
	"flag"
	"log"
	"os"

	"github.com/roninql/compiler/cmd/ronin-gen/generator"
)

func main() {
	modelsPath := flag.String("models", "", "path to the model catalog (JSON)")
	outPath := flag.String("o", "catalog_gen.go", "output file")
	pkgName := flag.String("package", "main", "package name of the generated file")
	varName := flag.String("var", "Models", "variable name of the generated catalog")
	flag.Parse()

	if *modelsPath == "" {
		log.Fatal("ronin-gen: -models is required")
	}

	data, err := os.ReadFile(*modelsPath)
	if err != nil {
		log.Fatalf("ronin-gen: failed to read models: %v", err)
	}

	source, err := generator.Generate(data, *pkgName, *varName)
	if err != nil {
		log.Fatalf("ronin-gen: %v", err)
	}

	if err := os.WriteFile(*outPath, source, 0o644); err != nil {
		log.Fatalf("ronin-gen: failed to write %s: %v", *outPath, err)
	}
	log.Printf("ronin-gen: wrote %s", *outPath)
}
