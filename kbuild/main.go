// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Command kbuild generates the kernel's static configuration sources.
//
// It reads the build-declared inputs from the environment:
//
//	HUBRIS_IMAGE_ID  decimal 64-bit image identifier
//	HUBRIS_SECURE    security-domain flag ("0" = non-secure)
//	HUBRIS_KCONFIG   TOML kernel configuration document
//	TARGET           target triple, selects the lookup encodings
//
// and writes consts.rs and kconfig.rs to -out (default $OUT_DIR). Any
// failure aborts the build; re-running is always safe because the
// generator is deterministic.
package main

import (
	"flag"
	"log"
	"os"

	"github.com/mharsch/hubris/gen"
)

func init() {
	log.SetFlags(0)
}

func main() {
	var out string
	flag.StringVar(&out, "out", "", "directory to write generated sources")
	flag.Parse()

	if out == "" {
		out = os.Getenv("OUT_DIR")
	}

	if out == "" {
		log.Fatalf("-out not specified and OUT_DIR not set")
	}

	env := gen.BuildEnv{
		ImageID: os.Getenv("HUBRIS_IMAGE_ID"),
		Secure:  os.Getenv("HUBRIS_SECURE"),
		Target:  os.Getenv("TARGET"),
		KConfig: os.Getenv("HUBRIS_KCONFIG"),
	}

	if err := gen.Generate(env, out); err != nil {
		log.Fatalf("failed to generate kernel sources: %v", err)
	}
}
