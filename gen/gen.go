// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package gen renders the kernel's generated sources: consts.rs with
// the exception-return constant and kconfig.rs with the task and
// region descriptor tables and the two interrupt lookup tables.
package gen

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"text/template"

	"github.com/mharsch/hubris/kconfig"
)

// BuildEnv carries the build-declared inputs, exactly as the build
// system supplies them. The generator is a pure function of this
// struct: it reads no environment of its own, so the same inputs
// always produce byte-identical output.
type BuildEnv struct {
	// ImageID is the decimal 64-bit image identifier, echoed
	// verbatim into the output.
	ImageID string

	// Secure is the security-domain flag: "0" selects the
	// non-secure domain, anything else (including absent, "")
	// selects secure.
	Secure string

	// Target is the target triple, which selects the lookup
	// encoding policy.
	Target string

	// KConfig is the TOML kernel configuration document.
	KConfig string
}

// UnsupportedTargetError reports a target triple with no lookup
// encoding policy. Emitting a table the kernel's dispatcher cannot
// evaluate would corrupt interrupt dispatch, so there is no default.
type UnsupportedTargetError struct {
	Target string
}

func (e *UnsupportedTargetError) Error() string {
	return fmt.Sprintf("no lookup encoding policy for target %q", e.Target)
}

//go:embed templates/*.txt
var templatesFS embed.FS

var templates = template.Must(template.New("").ParseFS(templatesFS, "templates/*.txt"))

// Generate renders consts.rs and kconfig.rs into outDir. Both files
// are rendered completely in memory before either is written, so a
// failed build never leaves a partial artifact behind.
func Generate(env BuildEnv, outDir string) error {
	imageID, err := strconv.ParseUint(env.ImageID, 10, 64)
	if err != nil {
		return fmt.Errorf("failed to parse image id %q: %v", env.ImageID, err)
	}

	config, err := kconfig.Parse([]byte(env.KConfig))
	if err != nil {
		return err
	}

	consts, err := renderConsts(env.Secure)
	if err != nil {
		return err
	}

	statics, err := renderKConfig(imageID, env.Target, config)
	if err != nil {
		return err
	}

	if err := writeFile(outDir, "consts.rs", consts); err != nil {
		return err
	}

	return writeFile(outDir, "kconfig.rs", statics)
}

func writeFile(dir, name string, data []byte) error {
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0666); err != nil {
		return fmt.Errorf("failed to write %s: %v", path, err)
	}

	return nil
}
